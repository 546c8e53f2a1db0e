package outwriter

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func testSections() []schema.Section {
	start := time.Date(2015, 7, 22, 8, 14, 53, 0, time.UTC)
	return []schema.Section{
		{
			EntryID:       primitive.NewObjectID(),
			UserID:        testUser,
			TripID:        "trip_1",
			SectionID:     "section_1",
			Start:         start,
			End:           start.Add(10 * time.Minute),
			ConfirmedMode: schema.ModeBus,
			Distance:      2162.67,
			Duration:      600,
		},
		{
			EntryID:   primitive.NewObjectID(),
			UserID:    testUser,
			TripID:    "trip_1",
			SectionID: "section_2",
			Start:     start.Add(10 * time.Minute),
			End:       start.Add(25 * time.Minute),
			Distance:  1057.26,
			Duration:  900,
		},
	}
}

func TestSectionCSVRows(t *testing.T) {
	fmtFloat, _ := createFormatters(1)
	var buf bytes.Buffer
	require.NoError(t, writeCSVRows(&buf, sectionCSVRows(testSections(), fmtFloat)))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "rank,entry_id,trip_id,section_id,section_start_datetime,section_end_datetime,confirmed_mode,distance_m,duration_s,auto_confirmed", lines[0])
	assert.Contains(t, lines[1], ",trip_1,section_1,2015-07-22T08:14:53Z,2015-07-22T08:24:53Z,bus,2162.7,600.0,false")
	assert.Contains(t, lines[2], ",section_2,")
	assert.Contains(t, lines[2], ",,1057.3,")
}

func TestWriteSectionsJSONRanks(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeJSON(&buf, schema.EnrichSections(testSections())))

	var result []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &result))
	require.Len(t, result, 2)
	assert.Equal(t, float64(1), result[0]["rank"])
	assert.Equal(t, "bus", result[0]["confirmed_mode"])
	assert.Equal(t, float64(2), result[1]["rank"])
	assert.Equal(t, "", result[1]["confirmed_mode"])
}

func TestWriteSectionsTable(t *testing.T) {
	cfg := &contract.Config{Precision: 2, Width: 200}
	fmtFloat, _ := createFormatters(cfg.Precision)

	var buf bytes.Buffer
	require.NoError(t, writeSectionsTable(testSections(), cfg, fmtFloat, &buf))

	out := buf.String()
	assert.Contains(t, out, "section_1")
	assert.Contains(t, out, "bus")
	assert.Contains(t, out, "Showing 2 sections (confirmed: 1, total distance: 3219.93 m)")
}

func TestGetMaxTableIDWidth(t *testing.T) {
	tests := []struct {
		name     string
		width    int
		expected int
	}{
		{"narrow terminal clamps to minimum", 60, 8},
		{"medium terminal", 135, 20},
		{"wide terminal clamps to maximum", 400, 36},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, getMaxTableIDWidth(&contract.Config{Width: tt.width}))
		})
	}
}

func TestModeLabel(t *testing.T) {
	assert.Equal(t, "-", modeLabel(schema.ModeUnconfirmed))
	assert.Equal(t, "walking", modeLabel(schema.ModeWalking))
}
