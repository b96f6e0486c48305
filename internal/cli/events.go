package cli

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/spf13/cobra"

	"mol-collab/internal/models"
)

// EventsOptions holds flags for the events command.
type EventsOptions struct {
	*RootOptions
	From float64 // lower bound, relative ms
	To   float64 // upper bound, relative ms
	Type string  // optional type filter, symbolic name
}

// EventRow is the listing view of a single event.
type EventRow struct {
	Index      int             `json:"index"`
	RelativeMs float64         `json:"relative_ms"`
	Type       string          `json:"type"`
	UserID     string          `json:"user_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEventsCommand creates the events command.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EventsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "events <recording>",
		Short: "List the events on a recording's timeline",
		Long: `List recorded events in timeline order, optionally restricted to a
time window or a single event type.

Examples:
  replayctl events session.molrec
  replayctl events session.molrec --from 60000 --to 120000
  replayctl events session.molrec --type chat-message --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(opts, cmd, args[0])
		},
	}

	cmd.Flags().Float64Var(&opts.From, "from", 0, "window start in ms")
	cmd.Flags().Float64Var(&opts.To, "to", math.Inf(1), "window end in ms")
	cmd.Flags().StringVar(&opts.Type, "type", "", "only events of this type (e.g. chat-message)")

	return cmd
}

func runEvents(opts *EventsOptions, cmd *cobra.Command, path string) error {
	if opts.Type != "" && !validTypeName(opts.Type) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown event type %q", opts.Type))
	}

	rec, err := LoadRecording(path)
	if err != nil {
		return err
	}

	rows := make([]EventRow, 0, len(rec.Events))
	for idx, ev := range rec.Events {
		if ev.RelativeMs < opts.From || ev.RelativeMs > opts.To {
			continue
		}
		if opts.Type != "" && ev.Type.String() != opts.Type {
			continue
		}
		row := EventRow{
			Index:      idx,
			RelativeMs: ev.RelativeMs,
			Type:       ev.Type.String(),
			UserID:     ev.OriginUserID,
		}
		if opts.Verbose {
			row.Payload = ev.Payload
		}
		rows = append(rows, row)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), rows)
	}
	return outputEventsText(cmd, rows, opts.Verbose)
}

func outputEventsText(cmd *cobra.Command, rows []EventRow, verbose bool) error {
	w := cmd.OutOrStdout()

	if len(rows) == 0 {
		fmt.Fprintln(w, "No events in window.")
		return nil
	}

	for _, row := range rows {
		fmt.Fprintf(w, "%6d  %10s  %-20s %s\n", row.Index, formatMs(row.RelativeMs), row.Type, row.UserID)
		if verbose && len(row.Payload) > 0 {
			fmt.Fprintf(w, "        %s\n", row.Payload)
		}
	}
	fmt.Fprintf(w, "\n%d event(s)\n", len(rows))
	return nil
}

func validTypeName(name string) bool {
	var t models.EventType
	data, _ := json.Marshal(name)
	return t.UnmarshalJSON(data) == nil
}
