package recording

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"mol-collab/internal/models"
)

/*
LEARNING: BINARY EVENT FORMAT

Events are packed little-endian with a fixed 57-byte header:

  offset  size  field
  0       8     absolute timestamp (float64, Unix ms)
  8       8     relative time (float64, ms since recording start)
  16      1     event type index
  17      36    origin user id (UTF-8, null padded)
  53      4     payload length (uint32)
  57      n     payload (JSON)

A recording container prefixes the packed events with:

  0       4     event count (uint32)
  4       8     total duration (float64, ms)

The header is fixed-size so a reader can skip events without parsing
payloads. 36 bytes fits a canonical UUID string exactly.
*/

const (
	originUserIDSize = 36
	eventHeaderSize  = 8 + 8 + 1 + originUserIDSize + 4
	containerHeader  = 4 + 8
)

var (
	// ErrCorruptEvent reports a frame that cannot be decoded: truncated
	// header, unknown type index, or a payload length past the buffer.
	ErrCorruptEvent = errors.New("corrupt event")

	// ErrUserIDTooLong reports an origin user id that does not fit the
	// fixed 36-byte header field.
	ErrUserIDTooLong = errors.New("origin user id exceeds 36 bytes")
)

// EncodeEvent packs a single event into its binary frame.
func EncodeEvent(e models.Event) ([]byte, error) {
	if !e.Type.Valid() {
		return nil, fmt.Errorf("cannot encode event type %d: %w", uint8(e.Type), ErrCorruptEvent)
	}
	userID := []byte(e.OriginUserID)
	if len(userID) > originUserIDSize {
		return nil, fmt.Errorf("%w: %q", ErrUserIDTooLong, e.OriginUserID)
	}

	buf := make([]byte, eventHeaderSize+len(e.Payload))
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(e.Timestamp))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(e.RelativeMs))
	buf[16] = byte(e.Type)
	copy(buf[17:17+originUserIDSize], userID) // rest stays null padding
	binary.LittleEndian.PutUint32(buf[53:57], uint32(len(e.Payload)))
	copy(buf[eventHeaderSize:], e.Payload)
	return buf, nil
}

// DecodeEvent reads one event frame from the front of data and returns
// it along with the number of bytes consumed.
func DecodeEvent(data []byte) (models.Event, int, error) {
	if len(data) < eventHeaderSize {
		return models.Event{}, 0, fmt.Errorf("%w: truncated header (%d bytes)", ErrCorruptEvent, len(data))
	}

	typ := models.EventType(data[16])
	if !typ.Valid() {
		return models.Event{}, 0, fmt.Errorf("%w: unknown type index %d", ErrCorruptEvent, data[16])
	}

	payloadLen := int(binary.LittleEndian.Uint32(data[53:57]))
	total := eventHeaderSize + payloadLen
	if payloadLen < 0 || total > len(data) {
		return models.Event{}, 0, fmt.Errorf("%w: payload length %d exceeds buffer", ErrCorruptEvent, payloadLen)
	}

	e := models.Event{
		Timestamp:    math.Float64frombits(binary.LittleEndian.Uint64(data[0:8])),
		RelativeMs:   math.Float64frombits(binary.LittleEndian.Uint64(data[8:16])),
		Type:         typ,
		OriginUserID: string(bytes.TrimRight(data[17:17+originUserIDSize], "\x00")),
	}
	if payloadLen > 0 {
		e.Payload = make([]byte, payloadLen)
		copy(e.Payload, data[eventHeaderSize:total])
	}
	return e, total, nil
}

// EncodeEvents packs a full recording container: count and duration
// header followed by the packed events in order.
func EncodeEvents(durationMs float64, events []models.Event) ([]byte, error) {
	if len(events) > math.MaxUint32 {
		return nil, fmt.Errorf("too many events: %d", len(events))
	}

	var buf bytes.Buffer
	header := make([]byte, containerHeader)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(events)))
	binary.LittleEndian.PutUint64(header[4:12], math.Float64bits(durationMs))
	buf.Write(header)

	for i, e := range events {
		frame, err := EncodeEvent(e)
		if err != nil {
			return nil, fmt.Errorf("failed to encode event %d: %w", i, err)
		}
		buf.Write(frame)
	}
	return buf.Bytes(), nil
}

// DecodeEvents unpacks a recording container. The whole buffer must be
// consumed: trailing bytes mean the container is corrupt, not merely
// longer than expected.
func DecodeEvents(data []byte) (float64, []models.Event, error) {
	if len(data) < containerHeader {
		return 0, nil, fmt.Errorf("%w: truncated container header", ErrCorruptEvent)
	}
	count := int(binary.LittleEndian.Uint32(data[0:4]))
	durationMs := math.Float64frombits(binary.LittleEndian.Uint64(data[4:12]))

	// count is untrusted input: cap the pre-allocation by how many
	// fixed-size headers the buffer could possibly hold. The decode loop
	// still reports the corruption itself.
	capHint := count
	if max := (len(data) - containerHeader) / eventHeaderSize; capHint > max {
		capHint = max
	}
	events := make([]models.Event, 0, capHint)
	offset := containerHeader
	for i := 0; i < count; i++ {
		e, n, err := DecodeEvent(data[offset:])
		if err != nil {
			return 0, nil, fmt.Errorf("failed to decode event %d: %w", i, err)
		}
		events = append(events, e)
		offset += n
	}
	if offset != len(data) {
		return 0, nil, fmt.Errorf("%w: %d trailing bytes after %d events", ErrCorruptEvent, len(data)-offset, count)
	}
	return durationMs, events, nil
}
