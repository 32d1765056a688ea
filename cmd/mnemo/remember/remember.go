// Package remembercmder provides the remember command for storing a memory.
package remembercmder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/manager"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type rememberCommander struct {
	content    string
	memType    string
	priority   string
	tags       []string
	importance float64
	subject    string
	predicate  string
	source     string
}

const rememberLongDesc string = `Store a memory.

The memory is saved to the local database and indexed by the configured
search backend. A live memory of the same type with the same content,
ignoring case and spacing, is reported and not stored twice.

Types: rule, preference, fact, skill, error, context, persona_trait.
Priorities: transient, short_term, long_term, permanent.

Examples:
  mnemo remember "The API gateway runs on port 8443"
  mnemo remember "Never force-push to main" --type rule --priority permanent
  mnemo remember "Prefers table-driven tests" --type preference --tags testing,go`

const rememberShortDesc string = "Store a memory"

func NewRememberCmd() *cobra.Command {
	cmder := &rememberCommander{}

	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: rememberShortDesc,
		Long:  rememberLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.content = strings.Join(args, " ")
			return cmder.run(cmd)
		},
	}

	cmd.Flags().StringVarP(&cmder.memType, "type", "t", string(memory.TypeFact), "Memory type")
	cmd.Flags().StringVarP(&cmder.priority, "priority", "p", string(memory.PriorityLongTerm), "Retention priority")
	cmd.Flags().StringSliceVar(&cmder.tags, "tags", nil, "Comma-separated tags")
	cmd.Flags().Float64Var(&cmder.importance, "importance", memory.DefaultImportance, "Importance between 0 and 1")
	cmd.Flags().StringVar(&cmder.subject, "subject", "", "Subject of the fact, for in-place updates")
	cmd.Flags().StringVar(&cmder.predicate, "predicate", "", "Predicate of the fact, for in-place updates")
	cmd.Flags().StringVar(&cmder.source, "source", "cli", "Where the memory came from")
	engine.AddFlags(cmd)

	return cmd
}

// newMemory validates the flags into a memory.
func (c *rememberCommander) newMemory() (*memory.SemanticMemory, error) {
	t, ok := memory.ParseMemoryType(c.memType)
	if !ok {
		return nil, fmt.Errorf("unknown memory type: %q", c.memType)
	}
	p, ok := memory.ParsePriority(c.priority)
	if !ok {
		return nil, fmt.Errorf("unknown priority: %q", c.priority)
	}

	m := memory.NewSemanticMemory(t, strings.TrimSpace(c.content))
	m.Priority = p
	m.ImportanceScore = c.importance
	m.Subject = c.subject
	m.Predicate = c.predicate
	m.Source = c.source
	for _, tag := range c.tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			m.Tags = append(m.Tags, tag)
		}
	}
	return m, nil
}

func (c *rememberCommander) run(cmd *cobra.Command) error {
	m, err := c.newMemory()
	if err != nil {
		return err
	}

	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	out := cmd.OutOrStdout()
	id, err := e.Manager.AddMemory(cmd.Context(), m)
	if errors.Is(err, manager.ErrDuplicate) {
		fmt.Fprintf(out, "  %s %s\n", cliui.DimStyle.Render("Already remembered:"), cliui.ValueStyle.Render(m.Content))
		return nil
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Remembered %s %s\n",
		cliui.SuccessMark,
		cliui.TypeTag(string(m.Type)),
		cliui.IDStyle.Render(id),
	)
	return nil
}
