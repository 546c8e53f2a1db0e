package section

import (
	"slices"

	"github.com/jiji14/e-mission-server/schema"
)

// BuildTrips groups sections by trip id. Trips come out in order of first appearance.
func BuildTrips(sections []schema.Section) []schema.TripData {
	var order []string
	grouped := make(map[string][]schema.Section)
	for _, s := range sections {
		if _, ok := grouped[s.TripID]; !ok {
			order = append(order, s.TripID)
		}
		grouped[s.TripID] = append(grouped[s.TripID], s)
	}

	trips := make([]schema.TripData, 0, len(order))
	for _, id := range order {
		trips = append(trips, buildTrip(id, grouped[id]))
	}
	return trips
}

func buildTrip(id string, sections []schema.Section) schema.TripData {
	start, end := sections[0].Start, sections[0].End
	trip := schema.TripData{TripID: id, SectionCount: len(sections)}
	modeDistance := make(map[schema.Mode]float64)

	for _, s := range sections {
		if s.Start.Before(start) {
			start = s.Start
		}
		if s.End.After(end) {
			end = s.End
		}
		trip.Distance += s.Distance
		if s.IsConfirmed() {
			trip.ConfirmedSections++
			modeDistance[s.ConfirmedMode] += s.Distance
		}
	}

	trip.StartTs = schema.TimeToEpoch(start)
	trip.EndTs = schema.TimeToEpoch(end)
	trip.Duration = end.Sub(start).Seconds()
	trip.PrimaryMode = primaryMode(modeDistance)
	return trip
}

// primaryMode picks the mode with the largest distance. Ties go to the smaller mode name.
func primaryMode(modeDistance map[schema.Mode]float64) schema.Mode {
	best := schema.ModeUnconfirmed
	bestDistance := -1.0
	modes := make([]schema.Mode, 0, len(modeDistance))
	for m := range modeDistance {
		modes = append(modes, m)
	}
	slices.Sort(modes)
	for _, m := range modes {
		if modeDistance[m] > bestDistance {
			best, bestDistance = m, modeDistance[m]
		}
	}
	return best
}
