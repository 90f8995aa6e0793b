package types

import (
	"encoding/json"
	"fmt"
)

// EntityType names a change-feed collection
type EntityType string

const (
	EntityDetailItems     EntityType = "detail_items"
	EntitySessionMessages EntityType = "session_messages"
	EntityUserProfiles    EntityType = "user_profiles"
)

// Valid reports whether e is a known collection
func (e EntityType) Valid() bool {
	return e == EntityDetailItems || e == EntitySessionMessages || e == EntityUserProfiles
}

// Operation is the kind of mutation a change event describes
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// Valid reports whether o is a known operation
func (o Operation) Valid() bool {
	return o == OpInsert || o == OpUpdate || o == OpDelete
}

// ChangeEvent is the unit consumed from both push and poll sources.
// Payload holds a DetailItem, SessionMessage or UserProfile value matching
// EntityType; delete events may carry only the id.
type ChangeEvent struct {
	EntityType EntityType
	Operation  Operation
	EntityID   string
	Payload    any
}

// Validate rejects events the merge loop cannot apply
func (e ChangeEvent) Validate() error {
	if e.EntityID == "" {
		return fmt.Errorf("%w: missing entity id", ErrMalformedEvent)
	}
	if !e.EntityType.Valid() {
		return fmt.Errorf("%w: unknown entity type %q", ErrMalformedEvent, e.EntityType)
	}
	if !e.Operation.Valid() {
		return fmt.Errorf("%w: unknown operation %q", ErrMalformedEvent, e.Operation)
	}
	if e.Operation != OpDelete && e.Payload == nil {
		return fmt.Errorf("%w: %s event without payload", ErrMalformedEvent, e.Operation)
	}
	return nil
}

// wireEvent is the JSON envelope used by network change-feed transports
type wireEvent struct {
	EntityType EntityType      `json:"entity_type"`
	Operation  Operation       `json:"operation"`
	EntityID   string          `json:"entity_id"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EncodeChangeEvent serializes an event for a network transport
func EncodeChangeEvent(e ChangeEvent) ([]byte, error) {
	w := wireEvent{
		EntityType: e.EntityType,
		Operation:  e.Operation,
		EntityID:   e.EntityID,
	}
	if e.Payload != nil {
		raw, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode payload: %w", err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// DecodeChangeEvent parses a transport envelope and decodes the payload into
// the typed value for its entity type. Unknown entity types and missing ids
// yield ErrMalformedEvent.
func DecodeChangeEvent(data []byte) (ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return ChangeEvent{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	evt := ChangeEvent{
		EntityType: w.EntityType,
		Operation:  w.Operation,
		EntityID:   w.EntityID,
	}
	// Without a known entity type the payload cannot be decoded
	if evt.EntityID == "" || !evt.EntityType.Valid() {
		return evt, evt.Validate()
	}

	if len(w.Payload) > 0 && string(w.Payload) != "null" {
		payload, err := decodePayload(w.EntityType, w.Payload)
		if err != nil {
			return evt, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		evt.Payload = payload
	}

	return evt, evt.Validate()
}

// decodePayload unmarshals a payload into the value type for entity
func decodePayload(entity EntityType, raw json.RawMessage) (any, error) {
	switch entity {
	case EntityDetailItems:
		var item DetailItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, err
		}
		return item, nil
	case EntitySessionMessages:
		var msg SessionMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		return msg, nil
	case EntityUserProfiles:
		var profile UserProfile
		if err := json.Unmarshal(raw, &profile); err != nil {
			return nil, err
		}
		return profile, nil
	default:
		return nil, fmt.Errorf("unknown entity type %q", entity)
	}
}
