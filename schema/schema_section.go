package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// legacyModeCodes maps the numeric mode ids used by older clients.
var legacyModeCodes = map[int]Mode{
	1: ModeWalking,
	2: ModeRunning,
	3: ModeCycling,
	4: ModeTransport,
	5: ModeBus,
	6: ModeTrain,
	7: ModeDrive,
	8: ModeMixed,
	9: ModeAir,
}

// ModeFromLegacyCode returns the mode for a numeric mode id.
func ModeFromLegacyCode(code int) (Mode, error) {
	m, ok := legacyModeCodes[code]
	if !ok {
		return ModeUnconfirmed, fmt.Errorf("unknown legacy mode code %d", code)
	}
	return m, nil
}

// ParseMode normalizes a mode label. "car" is accepted as an alias of drive.
func ParseMode(s string) Mode {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "car" {
		return ModeDrive
	}
	return Mode(s)
}

// IsConfirmed reports whether the mode carries a confirmation.
func (m Mode) IsConfirmed() bool {
	return m != ModeUnconfirmed
}

// UnmarshalJSON accepts a label, a legacy numeric id, or null.
func (m *Mode) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*m = ModeUnconfirmed
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*m = ParseMode(s)
		return nil
	}
	var code int
	if err := json.Unmarshal(b, &code); err != nil {
		return fmt.Errorf("mode must be a string or an integer: %w", err)
	}
	mode, err := ModeFromLegacyCode(code)
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Location is the payload of a background/location entry.
type Location struct {
	Ts        float64 `json:"ts"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Accuracy  float64 `json:"accuracy,omitempty"`
	Altitude  float64 `json:"altitude,omitempty"`
	Speed     float64 `json:"speed,omitempty"`
	FmtTime   string  `json:"fmt_time,omitempty"`
}

// SectionData is the payload of an analysis/cleaned_section entry.
type SectionData struct {
	TripID        string           `json:"trip_id"`
	SectionID     string           `json:"section_id"`
	StartTs       float64          `json:"start_ts"`
	EndTs         float64          `json:"end_ts"`
	StartFmtTime  string           `json:"start_fmt_time,omitempty"`
	EndFmtTime    string           `json:"end_fmt_time,omitempty"`
	Distance      float64          `json:"distance"`
	Duration      float64          `json:"duration"`
	SensedMode    Mode             `json:"sensed_mode,omitempty"`
	ConfirmedMode Mode             `json:"confirmed_mode"`
	PredictedMode map[Mode]float64 `json:"predicted_mode,omitempty"`
	AutoConfirmed bool             `json:"auto_confirmed,omitempty"`
}

// ModeConfirm is the payload of a manual/mode_confirm entry.
// The latest confirmation for a section overrides its stored mode.
type ModeConfirm struct {
	Ts        float64 `json:"ts"`
	TripID    string  `json:"trip_id"`
	SectionID string  `json:"section_id"`
	Mode      Mode    `json:"mode"`
}

// TripData is the payload of an analysis/confirmed_trip entry.
type TripData struct {
	TripID            string  `json:"trip_id"`
	StartTs           float64 `json:"start_ts"`
	EndTs             float64 `json:"end_ts"`
	Distance          float64 `json:"distance"`
	Duration          float64 `json:"duration"`
	SectionCount      int     `json:"section_count"`
	ConfirmedSections int     `json:"confirmed_sections"`
	PrimaryMode       Mode    `json:"primary_mode"`
}

// Section is a cleaned section joined with its latest mode confirmation.
type Section struct {
	EntryID       primitive.ObjectID `json:"entry_id"`
	UserID        uuid.UUID          `json:"user_id"`
	TripID        string             `json:"trip_id"`
	SectionID     string             `json:"section_id"`
	Start         time.Time          `json:"section_start_datetime"`
	End           time.Time          `json:"section_end_datetime"`
	ConfirmedMode Mode               `json:"confirmed_mode"`
	PredictedMode map[Mode]float64   `json:"predicted_mode,omitempty"`
	Distance      float64            `json:"distance"`
	Duration      float64            `json:"duration"`
	AutoConfirmed bool               `json:"auto_confirmed"`
}

// IsConfirmed reports whether the section has an authoritative mode.
func (s Section) IsConfirmed() bool {
	return s.ConfirmedMode.IsConfirmed()
}

// SectionFromData builds a Section from its stored payload.
func SectionFromData(id primitive.ObjectID, user uuid.UUID, d SectionData) Section {
	return Section{
		EntryID:       id,
		UserID:        user,
		TripID:        d.TripID,
		SectionID:     d.SectionID,
		Start:         EpochToTime(d.StartTs),
		End:           EpochToTime(d.EndTs),
		ConfirmedMode: d.ConfirmedMode,
		PredictedMode: d.PredictedMode,
		Distance:      d.Distance,
		Duration:      d.Duration,
		AutoConfirmed: d.AutoConfirmed,
	}
}
