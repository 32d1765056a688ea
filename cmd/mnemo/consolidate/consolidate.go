// Package consolidatecmder provides the consolidate command, which runs the
// memory lifecycle passes once or on a cron schedule.
package consolidatecmder

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/papercomputeco/mnemo/cmd/mnemo/engine"
	"github.com/papercomputeco/mnemo/pkg/cliui"
	"github.com/papercomputeco/mnemo/pkg/config"
	"github.com/papercomputeco/mnemo/pkg/lifecycle"
)

type consolidateCommander struct {
	daemon bool
}

const consolidateLongDesc string = `Run the daily memory consolidation.

Processes queued turns into memories, merges duplicates, decays stale
memories, removes empty attachments, has the language model review and
synthesize memories, rewrites the MEMORY.md digest and resyncs the search
backend. A failing pass is reported and the remaining passes still run.

With --daemon the consolidation runs on the cron schedule from --schedule or
lifecycle.schedule until interrupted. --log-file keeps a JSON log of every
run next to the terminal output.

Examples:
  mnemo consolidate
  mnemo consolidate --daemon
  mnemo consolidate --daemon --schedule "30 2 * * *"
  mnemo consolidate --daemon --log-file ~/.mnemo/consolidate.log`

const consolidateShortDesc string = "Run the daily memory consolidation"

func NewConsolidateCmd() *cobra.Command {
	cmder := &consolidateCommander{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	cmd.Flags().BoolVar(&cmder.daemon, "daemon", false, "Keep running and consolidate on the cron schedule")
	cmd.Flags().String("log-file", "", "Also append JSON logs to this file")
	engine.AddFlags(cmd)
	config.AddFlags(cmd, config.Registry, []string{config.FlagSchedule})

	return cmd
}

func (c *consolidateCommander) run(cmd *cobra.Command) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := engine.Open(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = e.Close() }()

	if !c.daemon {
		return consolidate(ctx, cmd.ErrOrStderr(), cmd.OutOrStdout(), e)
	}

	schedule := e.Config.Lifecycle.Schedule
	sched := cron.New(cron.WithLogger(cron.DiscardLogger))
	_, err = sched.AddFunc(schedule, func() {
		if err := consolidate(ctx, cmd.ErrOrStderr(), cmd.OutOrStdout(), e); err != nil {
			e.Logger.Error("scheduled consolidation failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	sched.Start()
	e.Logger.Info("consolidation scheduled", "schedule", schedule, "next", sched.Entries()[0].Next)

	<-ctx.Done()
	e.Logger.Info("stopping scheduler")
	<-sched.Stop().Done()
	return nil
}

// consolidate runs one pass with a spinner on progress and the report on out.
func consolidate(ctx context.Context, progress, out io.Writer, e *engine.Engine) error {
	var report *lifecycle.Report
	err := cliui.Step(progress, "Consolidating memories", func() error {
		var err error
		report, err = e.Manager.ConsolidateDaily(ctx)
		return err
	})
	if report != nil {
		PrintReport(out, report)
	}
	return err
}

// PrintReport writes a consolidation report as aligned key/value rows.
func PrintReport(w io.Writer, r *lifecycle.Report) {
	rows := []struct {
		key   string
		value int
	}{
		{"Turns extracted", r.Extracted},
		{"Duplicates removed", r.DuplicatesRemoved},
		{"Memories decayed", r.Decayed},
		{"Stale attachments", r.StaleAttachments},
		{"Reviewed deleted", r.Review.Deleted},
		{"Reviewed updated", r.Review.Updated},
		{"Reviewed merged", r.Review.Merged},
		{"Experiences synthesized", r.Synthesized},
		{"Vectors synced", r.VectorsSynced},
	}

	fmt.Fprintln(w)
	for _, row := range rows {
		fmt.Fprintf(w, "  %-25s %s\n", cliui.KeyStyle.Render(row.key), cliui.ValueStyle.Render(fmt.Sprintf("%d", row.value)))
	}
	digest := "unchanged"
	if r.DigestWritten {
		digest = "rewritten"
	}
	fmt.Fprintf(w, "  %-25s %s\n", cliui.KeyStyle.Render("Digest"), cliui.ValueStyle.Render(digest))
	fmt.Fprintf(w, "  %-25s %s\n\n",
		cliui.KeyStyle.Render("Duration"),
		cliui.DimStyle.Render(cliui.FormatDuration(r.FinishedAt.Sub(r.StartedAt))),
	)
}
