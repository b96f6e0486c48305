package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mol-collab/internal/models"
	"mol-collab/internal/replay"
	"mol-collab/internal/scene"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	Speed    float64
	From     float64
	Interval time.Duration
}

// PlaySummary is the end-of-playback report.
type PlaySummary struct {
	EventsApplied int     `json:"events_applied"`
	PositionMs    float64 `json:"position_ms"`
	DurationMs    float64 `json:"duration_ms"`
	Speed         float64 `json:"speed"`
	Completed     bool    `json:"completed"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <recording>",
		Short: "Play a recording back in real time",
		Long: `Play the recording on a virtual clock, printing each event as its
timeline position is reached. Speed above 1.0 compresses the session;
0.5 runs at half pace. Ctrl-C stops playback.

Exit codes:
  0 - Playback reached the end of the recording (or was interrupted)
  1 - An event failed to apply mid-playback
  2 - Command error (file not found, corrupt container, etc.)

Examples:
  replayctl play session.molrec
  replayctl play session.molrec --speed 4
  replayctl play session.molrec --from 60000 --speed 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, cmd, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.Speed, "speed", 1.0, "playback speed multiplier (0.1 to 10)")
	cmd.Flags().Float64Var(&opts.From, "from", 0, "start position in ms")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 50*time.Millisecond, "poll interval")

	return cmd
}

func runPlay(opts *PlayOptions, cmd *cobra.Command, path string) error {
	rec, err := LoadRecording(path)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	applied := 0
	completed := false

	doc := scene.NewDocument()
	engine, err := replay.NewEngine(rec, doc,
		replay.WithOnEvent(func(ev models.Event) {
			applied++
			printPlayEvent(w, ev, opts.Format)
		}),
		replay.WithOnComplete(func() {
			completed = true
		}),
	)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load recording", err)
	}

	if speed := engine.SetSpeed(opts.Speed); speed != opts.Speed {
		fmt.Fprintf(cmd.ErrOrStderr(), "speed clamped to %.1fx\n", speed)
	}
	if opts.From > 0 {
		if err := engine.Seek(opts.From); err != nil {
			return WrapExitError(ExitFailure, "seek failed", err)
		}
	}

	// Ctrl-C cancels the context; playback stops cleanly at the current
	// position instead of dying mid-frame.
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Play()
	runErr := engine.Run(ctx, opts.Interval)

	summary := PlaySummary{
		EventsApplied: applied,
		PositionMs:    engine.Position(),
		DurationMs:    engine.Duration(),
		Speed:         engine.Speed(),
		Completed:     completed,
	}

	switch {
	case runErr == nil:
		// Reached the end of the log.
	case errors.Is(runErr, context.Canceled):
		if opts.Format != "json" {
			fmt.Fprintln(w, "playback interrupted")
		}
	default:
		return WrapExitError(ExitFailure, "playback failed", runErr)
	}

	if opts.Format == "json" {
		return writeJSON(w, summary)
	}
	fmt.Fprintf(w, "\n%d event(s) applied, position %s / %s at %.1fx\n",
		summary.EventsApplied, formatMs(summary.PositionMs), formatMs(summary.DurationMs), summary.Speed)
	return nil
}

func printPlayEvent(w io.Writer, ev models.Event, format string) {
	if format == "json" {
		// One JSON object per line so the stream stays parseable.
		fmt.Fprintf(w, `{"relative_ms":%.0f,"type":%q,"user_id":%q}`+"\n", ev.RelativeMs, ev.Type.String(), ev.OriginUserID)
		return
	}
	fmt.Fprintf(w, "%10s  %-20s %s\n", formatMs(ev.RelativeMs), ev.Type.String(), ev.OriginUserID)
}
