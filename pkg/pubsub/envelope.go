package pubsub

import (
	"encoding/json"
	"errors"
)

// EventEnvelope relays one SSE event to sibling processes.
type EventEnvelope struct {
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	Source string          `json:"source"`
}

// StateEnvelope relays a full overlay snapshot to sibling processes.
type StateEnvelope struct {
	State     json.RawMessage `json:"state"`
	Source    string          `json:"source"`
	UpdatedAt int64           `json:"updatedAt"`
}

var errMissingSource = errors.New("pubsub: envelope has no source")

// DecodeEventEnvelope parses a relayed event. Envelopes without a source or
// event name are rejected.
func DecodeEventEnvelope(payload []byte) (*EventEnvelope, error) {
	var env EventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	if env.Source == "" {
		return nil, errMissingSource
	}
	if env.Event == "" {
		return nil, errors.New("pubsub: event envelope has no event name")
	}
	if len(env.Data) == 0 {
		env.Data = json.RawMessage("null")
	}
	return &env, nil
}

// DecodeStateEnvelope parses a relayed snapshot.
func DecodeStateEnvelope(payload []byte) (*StateEnvelope, error) {
	var env StateEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}
	if env.Source == "" {
		return nil, errMissingSource
	}
	if len(env.State) == 0 || string(env.State) == "null" {
		return nil, errors.New("pubsub: state envelope has no state")
	}
	return &env, nil
}
