package sessioncmder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/dotdir"
	"github.com/papercomputeco/mnemo/pkg/git"
)

const startLongDesc string = `Start or resume a session.

Without an id a new one is generated, prefixed with the name of the git
repository (or directory) it starts in. Starting the session that is already
active resumes it. Another active session must be ended first.

Examples:
  mnemo session start
  mnemo session start pr-4312`

const startShortDesc string = "Start or resume a session"

func newStartCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [id]",
		Short: startShortDesc,
		Long:  startLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			configDir, _ := cmd.Flags().GetString("config-dir")
			return runStart(cmd, id, configDir)
		},
	}

	return cmd
}

func runStart(cmd *cobra.Command, id, configDir string) error {
	ddm := dotdir.NewManager()
	state, err := ddm.LoadSessionState(configDir)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if state != nil {
		if id == "" || id == state.SessionID {
			fmt.Fprintf(out, "  %s Resumed session %s\n", cliui.SuccessMark, cliui.IDStyle.Render(state.SessionID))
			return nil
		}
		return fmt.Errorf("session %s is active, end it before starting %s", state.SessionID, id)
	}

	if id == "" {
		id = newSessionID(cmd.Context())
	}
	state = &dotdir.SessionState{SessionID: id, StartedAt: time.Now().UTC()}
	if err := ddm.SaveSessionState(state, configDir); err != nil {
		return err
	}

	fmt.Fprintf(out, "  %s Started session %s\n", cliui.SuccessMark, cliui.IDStyle.Render(id))
	return nil
}

// newSessionID returns "<project>-<8 hex chars>".
func newSessionID(ctx context.Context) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if project := git.RepoName(ctx, ""); project != "" {
		return project + "-" + suffix
	}
	return suffix
}
