package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mol-collab/internal/models"
	"mol-collab/internal/recording"
	"mol-collab/internal/scene"
	"mol-collab/internal/testfixtures"
)

// sessionEvents is a small but representative capture: a snapshot with
// one participant, a scene edit, presence churn and chat.
func sessionEvents(t *testing.T) []models.Event {
	t.Helper()

	doc := scene.NewDocument()
	_, err := doc.ApplyUpdate(testfixtures.SceneUpdate("representation.style", "cartoon", 50))
	require.NoError(t, err)

	alice := models.Participant{SessionID: "sess-a", UserID: "alice", Username: "Alice", Role: models.RoleOwner}
	return []models.Event{
		testfixtures.SnapshotEvent(0, doc.Snapshot(), []models.Participant{alice}),
		testfixtures.StateUpdateEvent(1000, "alice", testfixtures.SceneUpdate("atoms.0.color", "#ff0000", 1000)),
		testfixtures.CursorEvent(1500, "alice", 1, 2, 3),
		testfixtures.ChatEvent(2000, "alice", "Alice", "hello"),
		testfixtures.JoinEvent(2500, "sess-b", "bob", "Bob", models.RoleViewer),
		testfixtures.ChatEvent(3000, "bob", "Bob", "hi"),
	}
}

// writeRecordingFile exports sessionEvents to a temp .molrec container.
func writeRecordingFile(t *testing.T) string {
	t.Helper()
	events := sessionEvents(t)
	data, err := recording.EncodeEvents(events[len(events)-1].RelativeMs, events)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "session.molrec")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// runCommand executes replayctl with the given args, capturing output.
func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

// decodeCLIData unwraps the JSON envelope and decodes its data payload.
func decodeCLIData(t *testing.T, out string, dst interface{}) {
	t.Helper()
	var envelope struct {
		Status string          `json:"status"`
		Data   json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &envelope))
	require.Equal(t, "ok", envelope.Status)
	require.NoError(t, json.Unmarshal(envelope.Data, dst))
}

// TestLoadRecording_RoundTrip tests reading back an exported container.
func TestLoadRecording_RoundTrip(t *testing.T) {
	path := writeRecordingFile(t)

	rec, err := LoadRecording(path)
	require.NoError(t, err)
	assert.Equal(t, "session", rec.ID, "id comes from the file name")
	assert.Equal(t, float64(3000), rec.DurationMs)
	assert.Len(t, rec.Events, 6)
	assert.Equal(t, testfixtures.ReferenceTime(), rec.StartedAt, "start is the first event's wall timestamp")
}

// TestLoadRecording_Failures tests the loader's error taxonomy: all
// command errors, not playback failures.
func TestLoadRecording_Failures(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadRecording(filepath.Join(t.TempDir(), "nope.molrec"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "recording not found")
	})

	t.Run("directory", func(t *testing.T) {
		_, err := LoadRecording(t.TempDir())
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "not a file")
	})

	t.Run("corrupt container", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.molrec")
		require.NoError(t, os.WriteFile(path, []byte("this is not a container"), 0o644))

		_, err := LoadRecording(path)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "failed to decode recording")
	})
}

// TestRootCommand_RejectsBadFormat tests persistent flag validation.
func TestRootCommand_RejectsBadFormat(t *testing.T) {
	path := writeRecordingFile(t)

	_, err := runCommand(t, "--format", "xml", "info", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "format")
}
