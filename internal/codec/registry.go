// Package codec maps metadata keys to typed payload strategies and encodes
// entries in the extended JSON layout used by archives.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// predictedSumTolerance bounds how far predicted mode masses may drift from 1.
const predictedSumTolerance = 1e-6

// FreeFormPrefixes are key families whose payload is any JSON object.
var FreeFormPrefixes = []string{"background/", "statemachine/", "config/", "stats/"}

// Strategy decodes and validates the payload of one metadata key.
type Strategy struct {
	// Decode parses the payload into its typed value.
	Decode func(raw json.RawMessage) (any, error)

	// Span returns the data timestamps of a decoded payload.
	// ok is false when the payload carries no timestamp.
	Span func(v any) (start, end float64, ok bool)
}

// Registry is the key to Strategy table.
// Exact keys take precedence over free-form prefixes.
type Registry struct {
	exact    map[string]Strategy
	prefixes []string
}

// Default is the registry used by the package level helpers.
var Default = NewRegistry()

// NewRegistry builds a registry with every structured key registered.
func NewRegistry() *Registry {
	r := &Registry{
		exact:    make(map[string]Strategy),
		prefixes: append([]string(nil), FreeFormPrefixes...),
	}
	Register(r, schema.KeyLocation, func(l *schema.Location) (float64, float64, bool) {
		return l.Ts, l.Ts, l.Ts != 0
	}, validateLocation)
	Register(r, schema.KeyCleanedSection, func(s *schema.SectionData) (float64, float64, bool) {
		return s.StartTs, s.EndTs, true
	}, validateSection)
	Register(r, schema.KeyConfirmedTrip, func(t *schema.TripData) (float64, float64, bool) {
		return t.StartTs, t.EndTs, true
	}, validateTrip)
	Register(r, schema.KeyModeConfirm, func(m *schema.ModeConfirm) (float64, float64, bool) {
		return m.Ts, m.Ts, m.Ts != 0
	}, validateModeConfirm)
	return r
}

// Register adds a typed strategy for key.
// span may be nil when the payload has no timestamp; validate may be nil.
func Register[T any](r *Registry, key string, span func(*T) (float64, float64, bool), validate func(*T) error) {
	r.exact[key] = Strategy{
		Decode: func(raw json.RawMessage) (any, error) {
			v := new(T)
			if err := json.Unmarshal(raw, v); err != nil {
				return nil, err
			}
			if validate != nil {
				if err := validate(v); err != nil {
					return nil, err
				}
			}
			return v, nil
		},
		Span: func(v any) (float64, float64, bool) {
			t, ok := v.(*T)
			if !ok || span == nil {
				return 0, 0, false
			}
			return span(t)
		},
	}
}

// Lookup returns the strategy for key.
func (r *Registry) Lookup(key string) (Strategy, bool) {
	if s, ok := r.exact[key]; ok {
		return s, true
	}
	for _, p := range r.prefixes {
		if strings.HasPrefix(key, p) {
			return freeForm, true
		}
	}
	return Strategy{}, false
}

// Decode type-tags a payload. Unknown keys and undecodable payloads yield a SerializationError.
func (r *Registry) Decode(key string, raw json.RawMessage) (any, error) {
	s, ok := r.Lookup(key)
	if !ok {
		return nil, &contract.SerializationError{Key: key, Err: errors.New("no strategy registered for key")}
	}
	v, err := s.Decode(raw)
	if err != nil {
		return nil, &contract.SerializationError{Key: key, Err: err}
	}
	return v, nil
}

// Stamp validates the entry payload and fills DataTs and DataEndTs.
// Payloads without a timestamp fall back to the write timestamp.
func (r *Registry) Stamp(e *schema.Entry) error {
	v, err := r.Decode(e.Metadata.Key, e.Data)
	if err != nil {
		var se *contract.SerializationError
		if errors.As(err, &se) && !e.ID.IsZero() {
			se.EntryID = e.ID.Hex()
		}
		return err
	}
	s, _ := r.Lookup(e.Metadata.Key)
	start, end, ok := s.Span(v)
	if !ok {
		start, end = e.Metadata.WriteTs, e.Metadata.WriteTs
	}
	e.DataTs = start
	e.DataEndTs = end
	return nil
}

// freeForm accepts any JSON object and reads ts or start_ts/end_ts if present.
var freeForm = Strategy{
	Decode: func(raw json.RawMessage) (any, error) {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, errors.New("free-form payload must be a JSON object")
		}
		var m map[string]any
		if err := json.Unmarshal(trimmed, &m); err != nil {
			return nil, err
		}
		return m, nil
	},
	Span: func(v any) (float64, float64, bool) {
		m, ok := v.(map[string]any)
		if !ok {
			return 0, 0, false
		}
		start, sok := m["start_ts"].(float64)
		end, eok := m["end_ts"].(float64)
		if sok && eok {
			return start, end, true
		}
		if ts, ok := m["ts"].(float64); ok {
			return ts, ts, true
		}
		return 0, 0, false
	},
}

func validateLocation(l *schema.Location) error {
	if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("coordinates out of range (%f, %f)", l.Latitude, l.Longitude)
	}
	return nil
}

func validateSection(s *schema.SectionData) error {
	if s.SectionID == "" || s.TripID == "" {
		return errors.New("section requires trip_id and section_id")
	}
	if s.StartTs >= s.EndTs {
		return fmt.Errorf("section %s must start before it ends (%f >= %f)", s.SectionID, s.StartTs, s.EndTs)
	}
	if s.Distance < 0 || s.Duration < 0 {
		return fmt.Errorf("section %s has negative distance or duration", s.SectionID)
	}
	if len(s.PredictedMode) > 0 {
		sum := 0.0
		for _, p := range s.PredictedMode {
			sum += p
		}
		if math.Abs(sum-1) > predictedSumTolerance {
			return fmt.Errorf("section %s predicted mode masses sum to %f", s.SectionID, sum)
		}
	}
	return nil
}

func validateTrip(t *schema.TripData) error {
	if t.TripID == "" {
		return errors.New("trip requires trip_id")
	}
	if t.StartTs > t.EndTs {
		return fmt.Errorf("trip %s ends before it starts", t.TripID)
	}
	return nil
}

func validateModeConfirm(m *schema.ModeConfirm) error {
	if m.TripID == "" || m.SectionID == "" {
		return errors.New("mode confirmation requires trip_id and section_id")
	}
	return nil
}

// Stamp validates and stamps e with the default registry.
func Stamp(e *schema.Entry) error {
	return Default.Stamp(e)
}

// DecodeAs decodes an entry payload into T.
func DecodeAs[T any](e schema.Entry) (T, error) {
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return v, &contract.SerializationError{Key: e.Metadata.Key, EntryID: e.ID.Hex(), Err: err}
	}
	return v, nil
}

// NewEntry builds and stamps an entry with a fresh id.
func NewEntry(user uuid.UUID, key string, payload any, writeTs float64) (schema.Entry, error) {
	if user == uuid.Nil {
		return schema.Entry{}, errors.New("entry requires a user id")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return schema.Entry{}, &contract.SerializationError{Key: key, Err: err}
	}
	e := schema.Entry{
		ID:     primitive.NewObjectID(),
		UserID: user,
		Metadata: schema.Metadata{
			Key:          key,
			WriteTs:      writeTs,
			WriteFmtTime: schema.EpochToTime(writeTs).Format(time.RFC3339Nano),
			TimeZone:     "UTC",
			Platform:     "server",
			Type:         "document",
		},
		Data: raw,
	}
	if err := Default.Stamp(&e); err != nil {
		return schema.Entry{}, err
	}
	return e, nil
}
