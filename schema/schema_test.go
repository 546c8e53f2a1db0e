package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeUnmarshalJSON(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		expected  Mode
		expectErr bool
	}{
		{"label", `"bus"`, ModeBus, false},
		{"car alias", `"Car"`, ModeDrive, false},
		{"legacy code", `5`, ModeBus, false},
		{"legacy air", `9`, ModeAir, false},
		{"empty string", `""`, ModeUnconfirmed, false},
		{"null", `null`, ModeUnconfirmed, false},
		{"unknown code", `42`, ModeUnconfirmed, true},
		{"object", `{}`, ModeUnconfirmed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Mode
			err := json.Unmarshal([]byte(tt.input), &m)
			if tt.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, m)
		})
	}
}

func TestSectionDataPredictedModeKeys(t *testing.T) {
	var d SectionData
	require.NoError(t, json.Unmarshal([]byte(`{"trip_id":"t1","confirmed_mode":7,"predicted_mode":{"walking":1.0}}`), &d))
	assert.Equal(t, ModeDrive, d.ConfirmedMode)
	assert.Equal(t, 1.0, d.PredictedMode[ModeWalking])
}

func TestTimeQueryContains(t *testing.T) {
	inclusive := TimeQuery{StartTs: 10, EndTs: 20}
	assert.True(t, inclusive.Contains(10))
	assert.True(t, inclusive.Contains(20))
	assert.False(t, inclusive.Contains(20.001))

	exclusive := TimeRange{StartTs: 10, EndTs: 20}.Query(TimeFieldData)
	assert.True(t, exclusive.StartExclusive)
	assert.False(t, exclusive.Contains(10))
	assert.True(t, exclusive.Contains(10.5))

	first := TimeRange{StartTs: 10, EndTs: 20, FirstRun: true}.Query(TimeFieldWrite)
	assert.False(t, first.StartExclusive)
	assert.Equal(t, TimeFieldWrite, first.Field)
}

func TestEpochRoundTrip(t *testing.T) {
	ts := 1440168891.095
	assert.InDelta(t, ts, TimeToEpoch(EpochToTime(ts)), 1e-6)
}

func TestPipelineStateWithWatermark(t *testing.T) {
	var s PipelineState
	next := s.WithWatermark(42.5, 7, EpochToTime(100))
	require.NotNil(t, next.LastProcessedTs)
	assert.Equal(t, 42.5, *next.LastProcessedTs)
	assert.Equal(t, int64(7), next.LastRunID)
	assert.Equal(t, RunSuccess, next.LastRunStatus)
	assert.Nil(t, s.LastProcessedTs)
}

func TestDefaultFootprintPolicy(t *testing.T) {
	p := DefaultFootprintPolicy()
	assert.True(t, p.IsLongMotorized(ModeAir))
	assert.False(t, p.IsLongMotorized(ModeBus))
	assert.Equal(t, 0.0, p.Intensity(ModeWalking))
	assert.InDelta(t, 267.0/1609, p.Intensity(ModeBus), 1e-12)
}
