package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"
)

// LoadRecording reads an exported recording container from disk. The
// recording id is taken from the file name since the container itself
// only carries the event log and duration.
func LoadRecording(path string) (*models.Recording, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &ExitError{Code: ExitCommandError, Message: fmt.Sprintf("recording not found: %s", path)}
	}
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to access recording", err)
	}
	if info.IsDir() {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("not a file: %s", path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read recording", err)
	}

	durationMs, events, err := recording.DecodeEvents(data)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to decode recording", err)
	}

	rec := &models.Recording{
		ID:         strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		DurationMs: durationMs,
		Events:     events,
	}
	if len(events) > 0 {
		rec.StartedAt = time.UnixMilli(int64(events[0].Timestamp)).UTC()
	}
	return rec, nil
}
