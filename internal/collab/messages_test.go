package collab

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseClientMessage_Valid tests envelope decoding.
func TestParseClientMessage_Valid(t *testing.T) {
	msg, err := ParseClientMessage([]byte(`{"type":"chat-message","payload":{"message":"hi"}}`))
	require.NoError(t, err)
	assert.Equal(t, MsgChatMessage, msg.Type)

	var chat ChatRequest
	require.NoError(t, json.Unmarshal(msg.Payload, &chat))
	assert.Equal(t, "hi", chat.Message)
}

// TestParseClientMessage_Malformed tests that garbage and untyped
// envelopes are rejected with the malformed-message error.
func TestParseClientMessage_Malformed(t *testing.T) {
	_, err := ParseClientMessage([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformedMessage)

	_, err = ParseClientMessage([]byte(`{"payload":{}}`))
	assert.ErrorIs(t, err, ErrMalformedMessage)
}
