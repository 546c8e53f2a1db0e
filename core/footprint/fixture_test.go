package footprint

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/schema"
	"github.com/stretchr/testify/mock"
)

var testUser = uuid.MustParse("0763de67-f61e-3f5d-90e7-518e69793954")

const (
	fixtureBusMeters  = 2162.668467546699
	fixtureWalkMeters = 1057.2524056424411
)

// fixtureSections returns a bus and a walking section, a confirmed air copy and
// an unconfirmed copy. Each call builds fresh values.
func fixtureSections() []schema.Section {
	start := time.Date(2015, 8, 21, 17, 0, 0, 0, time.UTC)
	section := func(id string, mode schema.Mode, distance float64, offset time.Duration) schema.Section {
		return schema.Section{
			UserID:        testUser,
			TripID:        "55d8c47b7d65cb39ee983c2d",
			SectionID:     id,
			Start:         start.Add(offset),
			End:           start.Add(offset + 10*time.Minute),
			ConfirmedMode: mode,
			PredictedMode: map[schema.Mode]float64{schema.ModeWalking: 1.0},
			Distance:      distance,
			Duration:      600,
		}
	}
	return []schema.Section{
		section("bus", schema.ModeBus, fixtureBusMeters, 0),
		section("walk", schema.ModeWalking, fixtureWalkMeters, 10*time.Minute),
		section("air", schema.ModeAir, fixtureBusMeters, 20*time.Minute),
		section("unconfirmed", schema.ModeUnconfirmed, fixtureBusMeters, 30*time.Minute),
	}
}

// mockSource is a testify mock of SectionSource.
type mockSource struct {
	mock.Mock
}

func (m *mockSource) Load(ctx context.Context, user uuid.UUID, start, end time.Time) ([]schema.Section, error) {
	args := m.Called(ctx, user, start, end)
	sections, _ := args.Get(0).([]schema.Section)
	return sections, args.Error(1)
}
