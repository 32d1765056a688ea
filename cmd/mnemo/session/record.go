package sessioncmder

import (
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/memory"
)

type recordCommander struct {
	role        string
	attachments []string
	description string
}

const recordLongDesc string = `Record one turn of the active session.

The content is the joined arguments, or stdin when the only argument is "-".
Files given with --attach are recorded as attachments of the turn: inbound
on user turns and outbound otherwise.

Examples:
  mnemo session record --role user "why does the nightly build fail?"
  mnemo session record --role assistant - < reply.md
  mnemo session record --role user "see the trace" --attach trace.log`

const recordShortDesc string = "Record one turn"

func newRecordCmd() *cobra.Command {
	cmder := &recordCommander{}

	cmd := &cobra.Command{
		Use:   "record <content>",
		Short: recordShortDesc,
		Long:  recordLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return cmder.run(cmd, content)
		},
	}

	cmd.Flags().StringVarP(&cmder.role, "role", "r", "user", "Role of the speaker (user or assistant)")
	cmd.Flags().StringSliceVarP(&cmder.attachments, "attach", "a", nil, "Files attached to the turn")
	cmd.Flags().StringVar(&cmder.description, "attach-description", "", "Description stored with the attachments")
	engine.AddFlags(cmd)

	return cmd
}

func readContent(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return strings.Join(args, " "), nil
}

func (c *recordCommander) run(cmd *cobra.Command, content string) error {
	attachments := make([]*memory.Attachment, 0, len(c.attachments))
	for _, path := range c.attachments {
		a, err := c.newAttachment(path)
		if err != nil {
			return err
		}
		attachments = append(attachments, a)
	}

	e, _, err := resume(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	return e.Manager.RecordTurn(cmd.Context(), memory.ConversationTurn{
		Role:    c.role,
		Content: content,
	}, attachments...)
}

// newAttachment describes a local file. The direction is left empty so the
// turn role decides it.
func (c *recordCommander) newAttachment(path string) (*memory.Attachment, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving attachment %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("reading attachment %s: %w", path, err)
	}

	a := memory.NewAttachment(filepath.Base(abs))
	a.Direction = ""
	a.LocalPath = abs
	a.FileSize = info.Size()
	a.MimeType = mime.TypeByExtension(filepath.Ext(abs))
	a.Description = c.description
	return a, nil
}
