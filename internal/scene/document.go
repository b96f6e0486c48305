package scene

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

/*
LEARNING: LAST-WRITE-WINS SCENE STATE

The shared molecular scene is a flat map of dotted paths
("representation.style", "atoms.12.color") to values, each tagged with
the sender's timestamp. Merging is last-write-wins per path:

  - higher timestamp replaces the stored value
  - equal timestamp: the later-applied op wins, so every replica that
    applies the same ops in the same order converges
  - lower timestamp is discarded as stale

This is deliberately simpler than an operation-based CRDT: updates are
idempotent per (path, ts, value) and the whole store serializes to a
plain JSON tree, which is exactly what late joiners and replay need.
*/

// Document is the shared scene state for one room.
// Safe for concurrent use, though the room applies updates from a single
// goroutine; the lock exists for replay tooling and snapshot readers.
type Document struct {
	mu     sync.RWMutex
	fields map[string]fieldState
}

type fieldState struct {
	value interface{}
	ts    float64
}

// Update is the wire form of a state mutation: a batch of per-path ops.
type Update struct {
	Ops []Op `json:"ops"`
}

// Op sets one path to a value, tagged with the sender's clock.
type Op struct {
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
	TS    float64     `json:"ts"`
}

func NewDocument() *Document {
	return &Document{fields: make(map[string]fieldState)}
}

// ApplyUpdate merges a JSON-encoded Update into the document. It returns
// true if any path actually changed; fully stale updates return false so
// callers can skip broadcasting and recording them.
func (d *Document) ApplyUpdate(data []byte) (bool, error) {
	var update Update
	if err := json.Unmarshal(data, &update); err != nil {
		return false, fmt.Errorf("failed to parse state update: %w", err)
	}
	if len(update.Ops) == 0 {
		return false, fmt.Errorf("state update has no ops")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	changed := false
	for _, op := range update.Ops {
		if op.Path == "" {
			return changed, fmt.Errorf("state update op has empty path")
		}
		cur, ok := d.fields[op.Path]
		// Equal timestamps take the incoming op: later-applied wins.
		if ok && op.TS < cur.ts {
			continue
		}
		d.fields[op.Path] = fieldState{value: op.Value, ts: op.TS}
		changed = true
	}
	return changed, nil
}

// Snapshot returns the full document state, timestamps included, as a
// JSON-safe tree. Feeding the result to Restore reproduces the document
// exactly, which keeps live and replayed merge decisions identical.
func (d *Document) Snapshot() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	fields := make(map[string]interface{}, len(d.fields))
	for path, fs := range d.fields {
		fields[path] = map[string]interface{}{
			"value": fs.value,
			"ts":    fs.ts,
		}
	}
	return map[string]interface{}{"fields": fields}
}

// Restore replaces the document contents with a previously taken
// snapshot. Used when seeking a replay back to an anchor point.
func (d *Document) Restore(snapshot map[string]interface{}) error {
	fields, err := snapshotFields(snapshot)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.fields = make(map[string]fieldState, len(fields))
	for path, raw := range fields {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("snapshot field %q is not an object", path)
		}
		ts, ok := entry["ts"].(float64)
		if !ok {
			return fmt.Errorf("snapshot field %q has no timestamp", path)
		}
		d.fields[path] = fieldState{value: entry["value"], ts: ts}
	}
	return nil
}

func snapshotFields(snapshot map[string]interface{}) (map[string]interface{}, error) {
	if snapshot == nil {
		return map[string]interface{}{}, nil
	}
	raw, ok := snapshot["fields"]
	if !ok {
		return map[string]interface{}{}, nil
	}
	fields, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("snapshot fields is not an object")
	}
	return fields, nil
}

// Values renders the document as a nested tree without LWW metadata,
// splitting dotted paths into objects: {"representation.style": x}
// becomes {"representation": {"style": x}}. Display only; Restore does
// not accept this shape.
func (d *Document) Values() map[string]interface{} {
	d.mu.RLock()
	defer d.mu.RUnlock()

	tree := make(map[string]interface{})
	for path, fs := range d.fields {
		parts := strings.Split(path, ".")
		node := tree
		for i, part := range parts {
			if i == len(parts)-1 {
				node[part] = fs.value
				break
			}
			child, ok := node[part].(map[string]interface{})
			if !ok {
				// A scalar and a subtree can collide on the same segment
				// ("a" vs "a.b"); the subtree wins for display purposes.
				child = make(map[string]interface{})
				node[part] = child
			}
			node = child
		}
	}
	return tree
}

// Len returns the number of tracked paths.
func (d *Document) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.fields)
}
