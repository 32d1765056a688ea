// Package mnemocmder
package mnemocmder

import (
	"github.com/spf13/cobra"

	configcmder "github.com/papercomputeco/mnemo/cmd/mnemo/config"
	consolidatecmder "github.com/papercomputeco/mnemo/cmd/mnemo/consolidate"
	contextcmder "github.com/papercomputeco/mnemo/cmd/mnemo/context"
	digestcmder "github.com/papercomputeco/mnemo/cmd/mnemo/digest"
	exportcmder "github.com/papercomputeco/mnemo/cmd/mnemo/export"
	forgetcmder "github.com/papercomputeco/mnemo/cmd/mnemo/forget"
	initcmder "github.com/papercomputeco/mnemo/cmd/mnemo/init"
	remembercmder "github.com/papercomputeco/mnemo/cmd/mnemo/remember"
	searchcmder "github.com/papercomputeco/mnemo/cmd/mnemo/search"
	sessioncmder "github.com/papercomputeco/mnemo/cmd/mnemo/session"
	statscmder "github.com/papercomputeco/mnemo/cmd/mnemo/stats"
	versioncmder "github.com/papercomputeco/mnemo/cmd/version"
)

const mnemoLongDesc string = `Mnemo is long-term memory for your agents.

It stores facts, preferences, rules and skills learned from conversations in
a local SQLite database, and hands the most relevant ones back as context.

Common commands:
  mnemo remember "..."     Store a memory
  mnemo context "<task>"   Print the memory context for a task
  mnemo session start      Start recording a conversation
  mnemo consolidate        Run the daily memory consolidation`

const mnemoShortDesc string = "Mnemo - Agent Memory"

func NewMnemoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mnemo",
		Short:        mnemoShortDesc,
		Long:         mnemoLongDesc,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to the .mnemo/ directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(remembercmder.NewRememberCmd())
	cmd.AddCommand(searchcmder.NewSearchCmd())
	cmd.AddCommand(forgetcmder.NewForgetCmd())
	cmd.AddCommand(contextcmder.NewContextCmd())
	cmd.AddCommand(sessioncmder.NewSessionCmd())
	cmd.AddCommand(consolidatecmder.NewConsolidateCmd())
	cmd.AddCommand(digestcmder.NewDigestCmd())
	cmd.AddCommand(statscmder.NewStatsCmd())
	cmd.AddCommand(exportcmder.NewExportCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
