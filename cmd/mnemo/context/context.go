// Package contextcmder provides the context command, which prints the memory
// context an agent should see before working on a task.
package contextcmder

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
)

const contextLongDesc string = `Print the memory context for a task.

Builds the markdown block injected into an agent's prompt: the MEMORY.md
digest first, then the memories most relevant to the task within the token
budget. When ranked retrieval fails, keyword matches are printed instead.
Nothing is printed when no memory applies.

The output is plain markdown on stdout, suitable for hooks and pipes.

Examples:
  mnemo context "fix the flaky login test"
  mnemo context "plan the postgres upgrade" --max-tokens 400`

const contextShortDesc string = "Print the memory context for a task"

func NewContextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <task>",
		Short: contextShortDesc,
		Long:  contextLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContext(cmd, strings.Join(args, " "))
		},
	}

	engine.AddFlags(cmd)

	return cmd
}

func runContext(cmd *cobra.Command, task string) error {
	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if block := e.Manager.GetInjectionContext(cmd.Context(), task); block != "" {
		fmt.Fprintln(cmd.OutOrStdout(), block)
	}
	return nil
}
