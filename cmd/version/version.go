// Package versioncmder implements "mnemo version".
package versioncmder

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/utils"
)

const versionLongDesc string = `Print the version, commit, and build time this mnemo binary was built from.

Use --short to print only the version string.`

const versionShortDesc string = "Print build information"

type versionCommander struct {
	short bool
}

func NewVersionCmd() *cobra.Command {
	cmder := &versionCommander{}

	cmd := &cobra.Command{
		Use:   "version",
		Short: versionShortDesc,
		Long:  versionLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&cmder.short, "short", false, "Print only the version")

	return cmd
}

func (c *versionCommander) run(w io.Writer) error {
	if c.short {
		_, err := fmt.Fprintln(w, utils.Version)
		return err
	}

	_, err := fmt.Fprintf(w, "mnemo %s\n  commit:  %s\n  built:   %s\n", utils.Version, utils.Sha, utils.Buildtime)
	return err
}
