// Package sessioncmder provides the session commands, which record a
// conversation across mnemo invocations and finalize it into memories.
package sessioncmder

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
)

// ErrNoActiveSession is returned when a command needs a session that was
// never started.
var ErrNoActiveSession = errors.New("no active session, run \"mnemo session start\" first")

const sessionLongDesc string = `Record a conversation as a session.

The active session is kept in session.json in the .mnemo/ directory, so
every turn can be recorded by a separate mnemo invocation, for example from
agent hooks. Ending the session summarizes it into an episode, extracts
memories from it and updates the scratchpad.

Use subcommands to drive the session:
  mnemo session start [id]            Start or resume a session
  mnemo session record <content>      Record one turn
  mnemo session extract               Extract memories from recent turns
  mnemo session status                Show the active session
  mnemo session end                   Finalize the session

Examples:
  mnemo session start
  mnemo session record --role user "migrate the billing service to go 1.25"
  echo "done, tests pass" | mnemo session record --role assistant -
  mnemo session end`

const sessionShortDesc string = "Record a conversation as a session"

func NewSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: sessionShortDesc,
		Long:  sessionLongDesc,
	}

	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newRecordCmd())
	cmd.AddCommand(newExtractCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newEndCmd())

	return cmd
}

// resume loads the active session state and reopens the session on a fresh
// engine.
func resume(cmd *cobra.Command) (*engine.Engine, *dotdir.SessionState, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	state, err := dotdir.NewManager().LoadSessionState(configDir)
	if err != nil {
		return nil, nil, err
	}
	if state == nil {
		return nil, nil, ErrNoActiveSession
	}

	e, err := engine.Open(cmd.Context(), cmd)
	if err != nil {
		return nil, nil, err
	}
	if err := e.Manager.StartSession(cmd.Context(), state.SessionID); err != nil {
		_ = e.Close()
		return nil, nil, fmt.Errorf("resuming session %s: %w", state.SessionID, err)
	}
	return e, state, nil
}
