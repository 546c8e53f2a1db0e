package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ObjectID wraps a store id as {"$oid": "<hex>"}.
type ObjectID struct{ primitive.ObjectID }

// MarshalJSON implements json.Marshaler.
func (o ObjectID) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		OID string `json:"$oid"`
	}{o.Hex()})
}

// UnmarshalJSON accepts the wrapped form or a bare hex string.
func (o *ObjectID) UnmarshalJSON(b []byte) error {
	s, err := unwrap(b, "$oid")
	if err != nil {
		return err
	}
	id, err := primitive.ObjectIDFromHex(s)
	if err != nil {
		return fmt.Errorf("invalid $oid %q: %w", s, err)
	}
	o.ObjectID = id
	return nil
}

// UUID wraps a user id as {"$uuid": "<hex without dashes>"}.
type UUID struct{ uuid.UUID }

// MarshalJSON implements json.Marshaler.
func (u UUID) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		UUID string `json:"$uuid"`
	}{UUIDHex(u.UUID)})
}

// UnmarshalJSON accepts the wrapped form or a bare string with or without dashes.
func (u *UUID) UnmarshalJSON(b []byte) error {
	s, err := unwrap(b, "$uuid")
	if err != nil {
		return err
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return fmt.Errorf("invalid $uuid %q: %w", s, err)
	}
	u.UUID = id
	return nil
}

// UUIDHex formats a UUID as 32 lowercase hex digits.
func UUIDHex(u uuid.UUID) string {
	return strings.ReplaceAll(u.String(), "-", "")
}

// unwrap reads {"<tag>": "value"} or "value".
func unwrap(b []byte, tag string) (string, error) {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		err := json.Unmarshal(b, &s)
		return s, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return "", fmt.Errorf("expected %s wrapper: %w", tag, err)
	}
	s, ok := m[tag]
	if !ok {
		return "", fmt.Errorf("missing %s field", tag)
	}
	return s, nil
}

// wireEntry is the archive layout of an entry.
type wireEntry struct {
	ID       ObjectID        `json:"_id"`
	UserID   UUID            `json:"user_id"`
	Metadata schema.Metadata `json:"metadata"`
	Data     json.RawMessage `json:"data"`
}

// MarshalEntry encodes an entry with type-tagged identifiers.
// The payload must decode under its key or a SerializationError is returned.
func MarshalEntry(e schema.Entry) ([]byte, error) {
	if _, err := Default.Decode(e.Metadata.Key, e.Data); err != nil {
		var se *contract.SerializationError
		if errors.As(err, &se) {
			se.EntryID = e.ID.Hex()
		}
		return nil, err
	}
	b, err := json.Marshal(wireEntry{
		ID:       ObjectID{e.ID},
		UserID:   UUID{e.UserID},
		Metadata: e.Metadata,
		Data:     e.Data,
	})
	if err != nil {
		return nil, &contract.SerializationError{Key: e.Metadata.Key, EntryID: e.ID.Hex(), Err: err}
	}
	return b, nil
}

// UnmarshalEntry decodes one archived entry and stamps its data timestamps.
func UnmarshalEntry(b []byte) (schema.Entry, error) {
	var w wireEntry
	if err := json.Unmarshal(b, &w); err != nil {
		return schema.Entry{}, &contract.SerializationError{Err: err}
	}
	e := schema.Entry{
		ID:       w.ID.ObjectID,
		UserID:   w.UserID.UUID,
		Metadata: w.Metadata,
		Data:     w.Data,
	}
	if err := Default.Stamp(&e); err != nil {
		return schema.Entry{}, err
	}
	return e, nil
}

// UnmarshalEntries decodes a JSON array of archived entries.
func UnmarshalEntries(b []byte) ([]schema.Entry, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(b, &raws); err != nil {
		return nil, &contract.SerializationError{Err: fmt.Errorf("expected a JSON array of entries: %w", err)}
	}
	entries := make([]schema.Entry, 0, len(raws))
	for i, raw := range raws {
		e, err := UnmarshalEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
