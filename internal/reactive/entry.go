package reactive

import (
	"encoding/json"
	"fmt"
)

// Entry is one key/value pair of a Map. It encodes as a two element JSON
// array so that map keys of any type survive serialisation.
type Entry[K comparable, V any] struct {
	Key   K
	Value V
}

// MarshalJSON encodes the entry as [key, value].
func (e Entry[K, V]) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{e.Key, e.Value})
}

// UnmarshalJSON decodes [key, value].
func (e *Entry[K, V]) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("reactive: entry must have 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &e.Key); err != nil {
		return fmt.Errorf("reactive: entry key: %w", err)
	}
	if err := json.Unmarshal(pair[1], &e.Value); err != nil {
		return fmt.Errorf("reactive: entry value: %w", err)
	}
	return nil
}
