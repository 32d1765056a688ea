package main

import (
	"context"
	"fmt"
	"path"

	"dagger/mnemo/internal/dagger"
)

// bucket is an S3-compatible release bucket.
type bucket struct {
	endpoint        *dagger.Secret
	name            *dagger.Secret
	accessKeyID     *dagger.Secret
	secretAccessKey *dagger.Secret
}

// sync copies artifacts to the bucket under each prefix in turn.
func (b *bucket) sync(ctx context.Context, artifacts *dagger.Directory, prefixes ...string) error {
	name, err := b.name.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bucket name: %w", err)
	}
	endpoint, err := b.endpoint.Plaintext(ctx)
	if err != nil {
		return fmt.Errorf("failed to get endpoint: %w", err)
	}

	awsCli := dag.Container().
		From("amazon/aws-cli:latest").
		WithSecretVariable("AWS_ACCESS_KEY_ID", b.accessKeyID).
		WithSecretVariable("AWS_SECRET_ACCESS_KEY", b.secretAccessKey).
		WithEnvVariable("AWS_DEFAULT_REGION", "auto").
		WithDirectory("/artifacts", artifacts).
		WithWorkdir("/artifacts")

	for _, prefix := range prefixes {
		destination := "s3://" + path.Join(name, prefix)
		_, err := awsCli.
			WithExec([]string{"aws", "s3", "sync", ".", destination, "--endpoint-url", endpoint}).
			Sync(ctx)
		if err != nil {
			return fmt.Errorf("failed to upload artifacts to %s: %w", prefix, err)
		}
	}
	return nil
}

// ReleaseLatest builds versioned release binaries and uploads them under the
// version and under "latest"
func (m *Mnemo) ReleaseLatest(
	ctx context.Context,

	// Version string (e.g., "v1.0.0")
	version string,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := m.BuildRelease(ctx, version, commit)
	b := &bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyId, secretAccessKey: secretAccessKey}

	if err := b.sync(ctx, artifacts, version, "latest"); err != nil {
		return artifacts, fmt.Errorf("could not upload release artifacts: %w", err)
	}
	return artifacts, nil
}

// Nightly builds binaries from the given commit and uploads them under
// "nightly"
func (m *Mnemo) Nightly(
	ctx context.Context,

	// Git commit SHA
	commit string,

	// Bucket endpoint URL
	endpoint *dagger.Secret,

	// Bucket name
	bucketName *dagger.Secret,

	// Bucket access key ID
	accessKeyId *dagger.Secret,

	// Bucket secret access key
	secretAccessKey *dagger.Secret,
) (*dagger.Directory, error) {
	artifacts := m.BuildRelease(ctx, "nightly", commit)
	b := &bucket{endpoint: endpoint, name: bucketName, accessKeyID: accessKeyId, secretAccessKey: secretAccessKey}

	return artifacts, b.sync(ctx, artifacts, "nightly")
}
