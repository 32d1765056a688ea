package sessioncmder

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/utils"
)

const statusShortDesc string = "Show the active session"

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long: `Show the active session and the scratchpad.

Examples:
  mnemo session status`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd)
		},
	}

	engine.AddFlags(cmd)

	return cmd
}

func runStatus(cmd *cobra.Command) error {
	out := cmd.OutOrStdout()

	e, state, err := resume(cmd)
	if errors.Is(err, ErrNoActiveSession) {
		fmt.Fprintf(out, "\n  %s\n\n", cliui.DimStyle.Render("No active session."))
		return nil
	}
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	fmt.Fprintf(out, "\n  %s %s\n", cliui.KeyStyle.Render("Session:"), cliui.IDStyle.Render(state.SessionID))
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Started:"),
		cliui.ValueStyle.Render(state.StartedAt.Local().Format(time.DateTime)))
	stats, err := e.Manager.Stats(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Turns:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d", stats.SessionTurns)))
	fmt.Fprintf(out, "  %s %s\n", cliui.KeyStyle.Render("Cited:"),
		cliui.ValueStyle.Render(fmt.Sprintf("%d memories", len(state.Cited))))
	for _, c := range state.Cited {
		fmt.Fprintf(out, "    %s %s\n", cliui.IDStyle.Render(c.ID), cliui.DimStyle.Render(utils.Truncate(c.Content, 60)))
	}

	pad, err := e.Manager.Scratchpad(cmd.Context())
	if err != nil {
		return err
	}
	if pad == nil {
		fmt.Fprintln(out)
		return nil
	}
	if md := strings.TrimSpace(pad.ToMarkdown()); md != "" {
		fmt.Fprintf(out, "\n  %s\n\n%s\n", cliui.HeaderStyle.Render("Scratchpad"), md)
	}
	fmt.Fprintln(out)
	return nil
}
