package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestInfo_Text tests the human-readable summary.
func TestInfo_Text(t *testing.T) {
	path := writeRecordingFile(t)

	out, err := runCommand(t, "info", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Recording: session")
	assert.Contains(t, out, "Duration: 3s")
	assert.Contains(t, out, "Events:   6 (1 snapshots)")
	assert.Contains(t, out, "Users:    2")
	assert.Contains(t, out, "chat-message")
}

// TestInfo_JSON tests the machine-readable envelope.
func TestInfo_JSON(t *testing.T) {
	path := writeRecordingFile(t)

	out, err := runCommand(t, "--format", "json", "info", path)
	require.NoError(t, err)

	var result InfoResult
	decodeCLIData(t, out, &result)
	assert.Equal(t, "session", result.ID)
	assert.Equal(t, float64(3000), result.DurationMs)
	assert.Equal(t, 6, result.EventCount)
	assert.Equal(t, 1, result.Snapshots)
	assert.Equal(t, []string{"alice", "bob"}, result.Users)
	assert.Equal(t, 2, result.Types["chat-message"])
	assert.Equal(t, 1, result.Types["crdt-update"])
}

// TestInfo_MissingFile tests error propagation through the command.
func TestInfo_MissingFile(t *testing.T) {
	_, err := runCommand(t, "info", "/does/not/exist.molrec")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
