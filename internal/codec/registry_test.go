package codec

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testUser = uuid.MustParse("0763de67-f61e-3f5d-90e7-518e69793954")

func TestStampDerivesDataTimestamps(t *testing.T) {
	tests := []struct {
		name      string
		key       string
		payload   string
		writeTs   float64
		wantStart float64
		wantEnd   float64
		expectErr bool
	}{
		{
			name:      "location point",
			key:       schema.KeyLocation,
			payload:   `{"ts": 1440168891.5, "latitude": 37.39, "longitude": -122.08}`,
			writeTs:   1440169000,
			wantStart: 1440168891.5,
			wantEnd:   1440168891.5,
		},
		{
			name:      "section interval",
			key:       schema.KeyCleanedSection,
			payload:   `{"trip_id": "t1", "section_id": "s1", "start_ts": 100, "end_ts": 200, "distance": 10, "confirmed_mode": "bus"}`,
			writeTs:   300,
			wantStart: 100,
			wantEnd:   200,
		},
		{
			name:      "free-form with ts",
			key:       "background/battery",
			payload:   `{"ts": 55, "battery_level_pct": 80}`,
			writeTs:   60,
			wantStart: 55,
			wantEnd:   55,
		},
		{
			name:      "free-form without ts falls back to write_ts",
			key:       "config/consent",
			payload:   `{"category": "emSensorDataCollectionProtocol"}`,
			writeTs:   77,
			wantStart: 77,
			wantEnd:   77,
		},
		{
			name:      "statemachine interval",
			key:       "statemachine/transition",
			payload:   `{"start_ts": 10, "end_ts": 12}`,
			wantStart: 10,
			wantEnd:   12,
		},
		{name: "unknown key", key: "analysis/smoothing", payload: `{}`, expectErr: true},
		{name: "free-form must be object", key: "stats/server_api_time", payload: `[1,2]`, expectErr: true},
		{name: "section start after end", key: schema.KeyCleanedSection, payload: `{"trip_id": "t", "section_id": "s", "start_ts": 5, "end_ts": 5}`, expectErr: true},
		{name: "predicted masses off", key: schema.KeyCleanedSection, payload: `{"trip_id": "t", "section_id": "s", "start_ts": 1, "end_ts": 2, "predicted_mode": {"walking": 0.5}}`, expectErr: true},
		{name: "mode confirm without section", key: schema.KeyModeConfirm, payload: `{"trip_id": "t", "mode": "bus"}`, expectErr: true},
		{name: "bad latitude", key: schema.KeyLocation, payload: `{"ts": 1, "latitude": 137, "longitude": 0}`, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := schema.Entry{
				UserID:   testUser,
				Metadata: schema.Metadata{Key: tt.key, WriteTs: tt.writeTs},
				Data:     json.RawMessage(tt.payload),
			}
			err := Stamp(&e)
			if tt.expectErr {
				var se *contract.SerializationError
				require.ErrorAs(t, err, &se)
				assert.Equal(t, tt.key, se.Key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantStart, e.DataTs)
			assert.Equal(t, tt.wantEnd, e.DataEndTs)
		})
	}
}

func TestRegisterOverridesPrefix(t *testing.T) {
	type battery struct {
		Ts    float64 `json:"ts"`
		Level float64 `json:"battery_level_pct"`
	}
	r := NewRegistry()
	Register(r, "background/battery", func(b *battery) (float64, float64, bool) {
		return b.Ts, b.Ts, true
	}, nil)

	v, err := r.Decode("background/battery", json.RawMessage(`{"ts": 3, "battery_level_pct": 42}`))
	require.NoError(t, err)
	assert.Equal(t, 42.0, v.(*battery).Level)

	// other background keys stay free-form
	v, err = r.Decode("background/filtered_location", json.RawMessage(`{"ts": 3}`))
	require.NoError(t, err)
	assert.IsType(t, map[string]any{}, v)
}

func TestNewEntry(t *testing.T) {
	e, err := NewEntry(testUser, schema.KeyConfirmedTrip, schema.TripData{TripID: "t1", StartTs: 10, EndTs: 20}, 30)
	require.NoError(t, err)
	assert.False(t, e.ID.IsZero())
	assert.Equal(t, testUser, e.UserID)
	assert.Equal(t, 10.0, e.DataTs)
	assert.Equal(t, 20.0, e.DataEndTs)
	assert.Equal(t, 30.0, e.Metadata.WriteTs)

	trip, err := DecodeAs[schema.TripData](e)
	require.NoError(t, err)
	assert.Equal(t, "t1", trip.TripID)

	_, err = NewEntry(uuid.Nil, schema.KeyConfirmedTrip, schema.TripData{TripID: "t1"}, 1)
	assert.Error(t, err)

	_, err = NewEntry(testUser, "unknown/key", map[string]any{}, 1)
	assert.Error(t, err)
}
