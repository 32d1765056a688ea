// Package digestcmder provides the digest command, which shows the MEMORY.md
// core memory digest.
package digestcmder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/lifecycle"
)

type digestCommander struct {
	refresh bool
	raw     bool
}

const digestLongDesc string = `Show the MEMORY.md core memory digest.

The digest lists the rules, preferences and most important facts, and is
injected ahead of ranked memories by mnemo context. It is rewritten by
mnemo consolidate, or right away with --refresh. The file may also be edited
by hand.

Output is rendered for the terminal unless --raw is given or stdout is not a
terminal.

Examples:
  mnemo digest
  mnemo digest --refresh
  mnemo digest --raw > MEMORY.md.bak`

const digestShortDesc string = "Show the MEMORY.md digest"

func NewDigestCmd() *cobra.Command {
	cmder := &digestCommander{}

	cmd := &cobra.Command{
		Use:   "digest",
		Short: digestShortDesc,
		Long:  digestLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.refresh, "refresh", false, "Rewrite the digest from the stored memories first")
	cmd.Flags().BoolVar(&cmder.raw, "raw", false, "Print the markdown source")
	engine.AddFlags(cmd)

	return cmd
}

func (c *digestCommander) run(cmd *cobra.Command) error {
	cfg, dir, err := engine.Settings(cmd)
	if err != nil {
		return err
	}
	identityDir := cfg.Memory.IdentityDir
	if identityDir == "" {
		identityDir = dir
	}

	if c.refresh {
		e, err := engine.Open(cmd.Context(), cmd)
		if err != nil {
			return err
		}
		_, err = e.Manager.Lifecycle().RefreshMemoryMD(cmd.Context(), identityDir)
		if cerr := e.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return fmt.Errorf("refreshing digest: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	data, err := os.ReadFile(filepath.Join(identityDir, lifecycle.DigestFile))
	if errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No digest yet. Run mnemo consolidate or mnemo digest --refresh."))
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading digest: %w", err)
	}

	content := string(data)
	if !c.raw && isTerminal(out) {
		if rendered, err := cliui.RenderMarkdown(content); err == nil {
			content = rendered
		}
	}
	fmt.Fprint(out, content)
	return nil
}

func isTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
