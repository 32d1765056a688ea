package sessioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
)

const extractLongDesc string = `Extract memories from the recent turns of the active session.

Call this when the conversation changes topic, so memories from the previous
topic are saved before the session ends. Needs a configured language model
and a few recorded turns.

Examples:
  mnemo session extract`

const extractShortDesc string = "Extract memories from recent turns"

func newExtractCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "extract",
		Short: extractShortDesc,
		Long:  extractLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd)
		},
	}

	engine.AddFlags(cmd)

	return cmd
}

func runExtract(cmd *cobra.Command) error {
	e, _, err := resume(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	saved, err := e.Manager.ExtractOnTopicChange(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "  %s Saved %s\n",
		cliui.SuccessMark,
		cliui.ValueStyle.Render(fmt.Sprintf("%d memories", saved)),
	)
	return nil
}
