// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/papercomputeco/mnemo/pkg/vector"
	"github.com/papercomputeco/mnemo/pkg/vector/chroma"
	"github.com/papercomputeco/mnemo/pkg/vector/chromem"
	"github.com/papercomputeco/mnemo/pkg/vector/qdrant"
	"github.com/papercomputeco/mnemo/pkg/vector/sqlitevec"
)

type NewVectorDriverOpts struct {
	// ProviderType is one of "sqlite-vec", "chromem", "chroma" or "qdrant".
	ProviderType string

	// TargetURL is the server URL for chroma and qdrant, the database file
	// for sqlite-vec, and the optional persist directory for chromem.
	TargetURL string

	Collection string
	Dimensions uint
	APIKey     string
	Logger     *slog.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	switch o.ProviderType {
	case "sqlite-vec", "sqlitevec":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.TargetURL,
			Dimensions: o.Dimensions,
		}, o.Logger)
	case "chromem":
		return chromem.NewDriver(chromem.Config{
			PersistDir:     o.TargetURL,
			CollectionName: o.Collection,
		}, o.Logger)
	case "chroma":
		return chroma.NewDriver(chroma.Config{
			URL:            o.TargetURL,
			CollectionName: o.Collection,
		}, o.Logger)
	case "qdrant":
		host, port, tls, err := splitQdrantURL(o.TargetURL)
		if err != nil {
			return nil, err
		}
		return qdrant.NewDriver(qdrant.Config{
			Host:           host,
			Port:           port,
			UseTLS:         tls,
			APIKey:         o.APIKey,
			CollectionName: o.Collection,
			Dimensions:     o.Dimensions,
		}, o.Logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}

// splitQdrantURL accepts "host:port" or a URL such as "https://host:6334".
// An empty target selects the driver defaults.
func splitQdrantURL(target string) (string, int, bool, error) {
	if target == "" {
		return "", 0, false, nil
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" {
		u, err = url.Parse("grpc://" + target)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant target %q: %w", target, err)
		}
	}

	port := 0
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			return "", 0, false, fmt.Errorf("invalid qdrant port %q: %w", p, err)
		}
	}
	return u.Hostname(), port, u.Scheme == "https", nil
}
