// Package forgetcmder provides the forget command for deleting memories.
package forgetcmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
)

const forgetLongDesc string = `Delete memories by id.

Removes each memory from the database and the search backend. Unknown ids
are reported and skipped.

Examples:
  mnemo forget 3f2b9c1e-0d4a-4e55-9b61-2a7d4c0e8f10
  mnemo forget $(mnemo search "old laptop" --quiet)`

const forgetShortDesc string = "Delete memories"

func NewForgetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "forget <id>...",
		Short: forgetShortDesc,
		Long:  forgetLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runForget(cmd, args)
		},
	}

	engine.AddFlags(cmd)

	return cmd
}

func runForget(cmd *cobra.Command, ids []string) error {
	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := cmd.OutOrStdout()
	for _, id := range ids {
		ok, err := e.Manager.DeleteMemory(cmd.Context(), id)
		if err != nil {
			return fmt.Errorf("forgetting %s: %w", id, err)
		}
		if !ok {
			fmt.Fprintf(out, "  %s %s %s\n", cliui.FailMark, cliui.IDStyle.Render(id), cliui.DimStyle.Render("not found"))
			continue
		}
		fmt.Fprintf(out, "  %s Forgot %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
	}
	return nil
}
