package sessioncmder

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/extractor"
	"github.com/papercomputeco/mnemo/pkg/manager"
)

const endLongDesc string = `Finalize the active session.

Saves the session as an episode, extracts memories from it, scores the
memories cited during the session, links the recorded turns to the episode
and updates the scratchpad. The session state is cleared even when a step
fails; failed steps are reported.

Examples:
  mnemo session end`

const endShortDesc string = "Finalize the active session"

func newEndCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "end",
		Short: endShortDesc,
		Long:  endLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEnd(cmd)
		},
	}

	engine.AddFlags(cmd)

	return cmd
}

func runEnd(cmd *cobra.Command) error {
	e, state, err := resume(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	cited := make([]extractor.CitedMemory, 0, len(state.Cited))
	for _, c := range state.Cited {
		cited = append(cited, extractor.CitedMemory{ID: c.ID, Content: c.Content})
	}
	e.Manager.RecordCitedMemories(cited...)

	var report *manager.SessionReport
	endErr := cliui.Step(cmd.ErrOrStderr(), "Finalizing session "+state.SessionID, func() error {
		report, err = e.Manager.EndSession(cmd.Context())
		return err
	})

	configDir, _ := cmd.Flags().GetString("config-dir")
	if err := dotdir.NewManager().ClearSessionState(configDir); err != nil {
		return err
	}

	if report != nil {
		printReport(cmd, report)
	}
	return endErr
}

func printReport(cmd *cobra.Command, r *manager.SessionReport) {
	out := cmd.OutOrStdout()
	rows := []struct {
		key   string
		value string
	}{
		{"Episode:", r.EpisodeID},
		{"Turns:", fmt.Sprintf("%d", r.Turns)},
		{"Memories saved:", fmt.Sprintf("%d", r.MemoriesSaved)},
		{"Useful citations:", fmt.Sprintf("%d", r.UsefulCitation)},
		{"Turns linked:", fmt.Sprintf("%d", r.TurnsLinked)},
		{"Expired removed:", fmt.Sprintf("%d", r.Expired)},
	}

	fmt.Fprintln(out)
	for _, row := range rows {
		if row.value == "" {
			continue
		}
		fmt.Fprintf(out, "  %-18s %s\n", cliui.KeyStyle.Render(row.key), cliui.ValueStyle.Render(row.value))
	}
	fmt.Fprintln(out)
}
