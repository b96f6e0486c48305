package cli

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"mol-collab/internal/models"
)

// InfoOptions holds flags for the info command.
type InfoOptions struct {
	*RootOptions
}

// InfoResult summarises one recording file.
type InfoResult struct {
	File       string         `json:"file"`
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	DurationMs float64        `json:"duration_ms"`
	EventCount int            `json:"event_count"`
	Snapshots  int            `json:"snapshots"`
	Types      map[string]int `json:"types"`
	Users      []string       `json:"users"`
}

// NewInfoCommand creates the info command.
func NewInfoCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InfoOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "info <recording>",
		Short: "Summarise a recording file",
		Long: `Print metadata for an exported recording: duration, event counts
per type, snapshot restore points and the users seen on the timeline.

Examples:
  replayctl info session.molrec
  replayctl info session.molrec --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(opts, cmd, args[0])
		},
	}

	return cmd
}

func runInfo(opts *InfoOptions, cmd *cobra.Command, path string) error {
	rec, err := LoadRecording(path)
	if err != nil {
		return err
	}

	result := InfoResult{
		File:       path,
		ID:         rec.ID,
		StartedAt:  rec.StartedAt,
		DurationMs: rec.DurationMs,
		EventCount: len(rec.Events),
		Types:      make(map[string]int),
	}

	users := make(map[string]struct{})
	for _, ev := range rec.Events {
		result.Types[ev.Type.String()]++
		if ev.Type == models.EventStateSnapshot {
			result.Snapshots++
		}
		if ev.OriginUserID != "" {
			users[ev.OriginUserID] = struct{}{}
		}
	}
	for u := range users {
		result.Users = append(result.Users, u)
	}
	sort.Strings(result.Users)

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), result)
	}
	return outputInfoText(cmd, result)
}

func outputInfoText(cmd *cobra.Command, result InfoResult) error {
	w := cmd.OutOrStdout()

	fmt.Fprintf(w, "Recording: %s\n", result.ID)
	fmt.Fprintf(w, "  File:     %s\n", result.File)
	if !result.StartedAt.IsZero() {
		fmt.Fprintf(w, "  Started:  %s\n", result.StartedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "  Duration: %s\n", formatMs(result.DurationMs))
	fmt.Fprintf(w, "  Events:   %d (%d snapshots)\n", result.EventCount, result.Snapshots)
	fmt.Fprintf(w, "  Users:    %d\n", len(result.Users))
	fmt.Fprintln(w)

	// Stable order for the type histogram
	names := make([]string, 0, len(result.Types))
	for name := range result.Types {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-20s %6d\n", name, result.Types[name])
	}
	return nil
}

// formatMs renders a millisecond offset as a human-friendly duration.
func formatMs(ms float64) string {
	return time.Duration(ms * float64(time.Millisecond)).Round(time.Millisecond).String()
}
