// Package searchcmder provides the search command for looking up stored
// memories.
package searchcmder

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/manager"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type searchCommander struct {
	query   string
	memType string
	tags    []string
	limit   int
	quiet   bool
}

const searchLongDesc string = `Search stored memories.

Matches memories whose content contains the query, case-insensitively, and
lists them most important first. Without a query every memory matches the
type and tag filters.

While a session is being recorded, the memories found are remembered as
cited and scored for usefulness when the session ends.

Use --quiet to output only memory ids, one per line. This is useful for
piping into other commands like mnemo forget.

Examples:
  mnemo search deploy
  mnemo search --type rule
  mnemo search "staging" --tags infra --limit 20
  mnemo forget $(mnemo search "old laptop" --quiet)`

const searchShortDesc string = "Search stored memories"

func NewSearchCmd() *cobra.Command {
	cmder := &searchCommander{}

	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: searchShortDesc,
		Long:  searchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				cmder.query = args[0]
			}
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.memType, "type", "t", "", "Only memories of this type")
	cmd.Flags().StringSliceVar(&cmder.tags, "tags", nil, "Only memories carrying any of these tags")
	cmd.Flags().IntVarP(&cmder.limit, "limit", "k", 10, "Number of results to return")
	cmd.Flags().BoolVarP(&cmder.quiet, "quiet", "q", false, "Output only memory ids, one per line (for piping)")
	engine.AddFlags(cmd)

	return cmd
}

func (c *searchCommander) run(cmd *cobra.Command) error {
	opts := manager.SearchOptions{Query: c.query, Tags: c.tags, Limit: c.limit}
	if c.memType != "" {
		t, ok := memory.ParseMemoryType(c.memType)
		if !ok {
			return fmt.Errorf("unknown memory type: %q", c.memType)
		}
		opts.Type = t
	}

	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	results := e.Manager.SearchMemories(opts)
	if err := cite(cmd, results); err != nil {
		e.Logger.Warn("recording cited memories failed", "error", err)
	}

	out := cmd.OutOrStdout()
	if c.quiet {
		for _, m := range results {
			fmt.Fprintln(out, m.ID)
		}
		return nil
	}

	if len(results) == 0 {
		fmt.Fprintln(out, "No memories found.")
		return nil
	}

	if c.query != "" {
		fmt.Fprintf(out, "\n%s %s\n\n",
			cliui.HeaderStyle.Render("Memories matching:"),
			cliui.IDStyle.Render(fmt.Sprintf("%q", c.query)),
		)
	} else {
		fmt.Fprintf(out, "\n%s\n\n", cliui.HeaderStyle.Render("Memories:"))
	}

	for i, m := range results {
		PrintMemory(out, i+1, m)
	}
	return nil
}

// cite records results in the active session state, if any.
func cite(cmd *cobra.Command, results []*memory.SemanticMemory) error {
	if len(results) == 0 {
		return nil
	}
	configDir, _ := cmd.Flags().GetString("config-dir")
	ddm := dotdir.NewManager()

	state, err := ddm.LoadSessionState(configDir)
	if err != nil || state == nil {
		return err
	}
	for _, m := range results {
		state.Cite(dotdir.CitedMemory{ID: m.ID, Content: m.Content})
	}
	return ddm.SaveSessionState(state, configDir)
}

// PrintMemory writes one ranked memory listing entry.
func PrintMemory(w io.Writer, rank int, m *memory.SemanticMemory) {
	fmt.Fprintf(w, "  %s  %s %s\n",
		cliui.ScoreStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.TypeTag(string(m.Type)),
		cliui.ValueStyle.Render(m.Content),
	)

	meta := []string{
		fmt.Sprintf("importance %.2f", m.ImportanceScore),
		string(m.Priority),
	}
	if m.AccessCount > 0 {
		meta = append(meta, fmt.Sprintf("accessed %dx", m.AccessCount))
	}
	if len(m.Tags) > 0 {
		meta = append(meta, "tags "+strings.Join(m.Tags, ","))
	}
	fmt.Fprintf(w, "      %s  %s\n\n",
		cliui.IDStyle.Render(m.ID),
		cliui.DimStyle.Render(strings.Join(meta, " · ")),
	)
}
