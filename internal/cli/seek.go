package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"mol-collab/internal/models"
	"mol-collab/internal/replay"
	"mol-collab/internal/scene"
)

// SeekOptions holds flags for the seek command.
type SeekOptions struct {
	*RootOptions
	To float64
}

// SeekResult is the reconstructed room view at one point of the timeline.
type SeekResult struct {
	PositionMs   float64                    `json:"position_ms"`
	DurationMs   float64                    `json:"duration_ms"`
	Participants []models.Participant       `json:"participants"`
	Cursors      map[string]models.Vector3  `json:"cursors,omitempty"`
	ChatMessages []models.ChatPayload       `json:"chat_messages,omitempty"`
	Annotations  []models.AnnotationPayload `json:"annotations,omitempty"`
	Scene        map[string]interface{}     `json:"scene"`
}

// NewSeekCommand creates the seek command.
func NewSeekCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeekOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seek <recording>",
		Short: "Reconstruct the room state at a point in time",
		Long: `Rebuild the shared scene, the participant roster and the chat
transcript exactly as they were at the target position. The engine
restores the nearest snapshot at or before the target and replays
forward, so the result is identical to what a live participant saw.

Examples:
  replayctl seek session.molrec --to 90000
  replayctl seek session.molrec --to 90000 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeek(opts, cmd, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.To, "to", 0, "target position in ms (required)")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runSeek(opts *SeekOptions, cmd *cobra.Command, path string) error {
	rec, err := LoadRecording(path)
	if err != nil {
		return err
	}

	doc := scene.NewDocument()
	engine, err := replay.NewEngine(rec, doc)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load recording", err)
	}
	if err := engine.Seek(opts.To); err != nil {
		return WrapExitError(ExitFailure, "seek failed", err)
	}

	result := SeekResult{
		PositionMs:   engine.Position(),
		DurationMs:   engine.Duration(),
		Participants: engine.Participants(),
		Cursors:      engine.Cursors(),
		ChatMessages: engine.Chat(),
		Annotations:  engine.Annotations(),
		Scene:        doc.Values(),
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return outputSeekText(cmd, result, opts.Verbose)
}

func outputSeekText(cmd *cobra.Command, result SeekResult, verbose bool) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Position: %s / %s\n", formatMs(result.PositionMs), formatMs(result.DurationMs))
	fmt.Fprintf(w, "Participants: %d\n", len(result.Participants))
	for _, p := range result.Participants {
		fmt.Fprintf(w, "  %s (%s, %s)\n", p.Username, p.UserID, p.Role)
	}

	fmt.Fprintf(w, "Chat: %d message(s)\n", len(result.ChatMessages))
	if verbose {
		for _, m := range result.ChatMessages {
			fmt.Fprintf(w, "  <%s> %s\n", m.Username, m.Message)
		}
	}

	fmt.Fprintf(w, "Annotations: %d\n", len(result.Annotations))
	if verbose {
		for _, a := range result.Annotations {
			fmt.Fprintf(w, "  [%s] %s\n", a.UserID, a.Text)
		}
	}

	fmt.Fprintf(w, "Scene paths: %d top-level\n", len(result.Scene))
	return nil
}
