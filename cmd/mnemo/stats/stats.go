// Package statscmder provides the stats command for memory store counts.
package statscmder

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/manager"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type statsCommander struct {
	jsonOutput bool
}

const statsLongDesc string = `Show memory store statistics.

Prints counts of memories by type and priority, episodes, attachments,
recorded turns, pending extractions and cached embeddings, together with the
active search backend.

Examples:
  mnemo stats
  mnemo stats --json`

const statsShortDesc string = "Show memory store statistics"

func NewStatsCmd() *cobra.Command {
	cmder := &statsCommander{}

	cmd := &cobra.Command{
		Use:   "stats",
		Short: statsShortDesc,
		Long:  statsLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.jsonOutput, "json", false, "Output as JSON")
	engine.AddFlags(cmd)

	return cmd
}

func (c *statsCommander) run(cmd *cobra.Command) error {
	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	stats, err := e.Manager.Stats(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if c.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	printStats(out, stats)
	return nil
}

func printStats(w io.Writer, s *manager.Stats) {
	row := func(key string, value any) {
		fmt.Fprintf(w, "  %-22s %s\n", cliui.KeyStyle.Render(key), cliui.ValueStyle.Render(fmt.Sprint(value)))
	}

	fmt.Fprintf(w, "\n%s\n\n", cliui.HeaderStyle.Render("Memories"))
	row("Total", s.Store.Memories)
	for _, t := range memory.AllTypes {
		if n := s.Store.ByType[t]; n > 0 {
			fmt.Fprintf(w, "    %s %s\n", cliui.TypeTag(string(t)), cliui.ValueStyle.Render(fmt.Sprint(n)))
		}
	}
	for _, p := range []memory.Priority{memory.PriorityPermanent, memory.PriorityLongTerm, memory.PriorityShortTerm, memory.PriorityTransient} {
		if n := s.Store.ByPriority[p]; n > 0 {
			fmt.Fprintf(w, "    %s %s\n", cliui.DimStyle.Render(string(p)), cliui.ValueStyle.Render(fmt.Sprint(n)))
		}
	}

	fmt.Fprintf(w, "\n%s\n\n", cliui.HeaderStyle.Render("Store"))
	row("Episodes", s.Store.Episodes)
	row("Attachments", s.Store.Attachments)
	row("Turns", s.Store.Turns)
	row("Pending extractions", s.Store.PendingExtractions)
	row("Cached embeddings", s.Store.CachedEmbeddings)
	row("Full-text index", s.Store.FTSEnabled)

	fmt.Fprintf(w, "\n%s\n\n", cliui.HeaderStyle.Render("Engine"))
	row("Search backend", s.Backend)
	row("Language model", s.Thinker)
	fmt.Fprintln(w)
}
