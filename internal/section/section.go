// Package section reads cleaned sections with their mode confirmations and
// groups them into trips.
package section

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/codec"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// Loader reads the sections of one user from a time series.
type Loader struct {
	series contract.TimeSeries
}

// NewLoader returns a loader over series.
func NewLoader(series contract.TimeSeries) *Loader {
	return &Loader{series: series}
}

// Load returns the sections whose start lies in [start, end], in start order.
func (l *Loader) Load(ctx context.Context, user uuid.UUID, start, end time.Time) ([]schema.Section, error) {
	return l.Query(ctx, user, &schema.TimeQuery{
		Field:   schema.TimeFieldData,
		StartTs: schema.TimeToEpoch(start),
		EndTs:   schema.TimeToEpoch(end),
	})
}

// Query returns the sections matching q, or every section when q is nil.
// The latest mode confirmation of each section overrides its stored mode, and
// sections without a distance get the length of their location trace.
func (l *Loader) Query(ctx context.Context, user uuid.UUID, q *schema.TimeQuery) ([]schema.Section, error) {
	entries, err := l.series.FindEntries(ctx, user, []string{schema.KeyCleanedSection}, q)
	if err != nil {
		return nil, fmt.Errorf("failed to load sections: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	confirms, err := l.latestConfirmations(ctx, user)
	if err != nil {
		return nil, err
	}

	sections := make([]schema.Section, 0, len(entries))
	missing := false
	for _, e := range entries {
		data, err := codec.DecodeAs[schema.SectionData](e)
		if err != nil {
			return nil, err
		}
		s := schema.SectionFromData(e.ID, e.UserID, data)
		if mode, ok := confirms[sectionKey{s.TripID, s.SectionID}]; ok {
			s.ConfirmedMode = mode
		}
		if s.Distance == 0 {
			missing = true
		}
		sections = append(sections, s)
	}

	if missing {
		if err := l.fillDistances(ctx, user, sections); err != nil {
			return nil, err
		}
	}
	return sections, nil
}

// ForTrips returns every section belonging to the given trips, in start order.
func (l *Loader) ForTrips(ctx context.Context, user uuid.UUID, tripIDs []string) ([]schema.Section, error) {
	if len(tripIDs) == 0 {
		return nil, nil
	}
	all, err := l.Query(ctx, user, nil)
	if err != nil {
		return nil, err
	}
	wanted := make(map[string]struct{}, len(tripIDs))
	for _, id := range tripIDs {
		wanted[id] = struct{}{}
	}
	return slices.DeleteFunc(all, func(s schema.Section) bool {
		_, ok := wanted[s.TripID]
		return !ok
	}), nil
}

type sectionKey struct {
	trip, section string
}

// latestConfirmations returns the mode of the most recently written confirmation per section.
func (l *Loader) latestConfirmations(ctx context.Context, user uuid.UUID) (map[sectionKey]schema.Mode, error) {
	entries, err := l.series.FindEntries(ctx, user, []string{schema.KeyModeConfirm}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load mode confirmations: %w", err)
	}

	type confirm struct {
		mode    schema.Mode
		writeTs float64
	}
	latest := make(map[sectionKey]confirm, len(entries))
	for _, e := range entries {
		mc, err := codec.DecodeAs[schema.ModeConfirm](e)
		if err != nil {
			return nil, err
		}
		key := sectionKey{mc.TripID, mc.SectionID}
		if prev, ok := latest[key]; ok && prev.writeTs > e.Metadata.WriteTs {
			continue
		}
		latest[key] = confirm{mode: mc.Mode, writeTs: e.Metadata.WriteTs}
	}

	modes := make(map[sectionKey]schema.Mode, len(latest))
	for k, c := range latest {
		modes[k] = c.mode
	}
	return modes, nil
}

// fillDistances sets the distance of zero-length sections from their location trace.
func (l *Loader) fillDistances(ctx context.Context, user uuid.UUID, sections []schema.Section) error {
	lo, hi := sections[0].Start, sections[0].End
	for _, s := range sections[1:] {
		if s.Start.Before(lo) {
			lo = s.Start
		}
		if s.End.After(hi) {
			hi = s.End
		}
	}

	entries, err := l.series.FindEntries(ctx, user, []string{schema.KeyLocation}, &schema.TimeQuery{
		Field:   schema.TimeFieldData,
		StartTs: schema.TimeToEpoch(lo),
		EndTs:   schema.TimeToEpoch(hi),
	})
	if err != nil {
		return fmt.Errorf("failed to load locations: %w", err)
	}
	points := make([]schema.Location, 0, len(entries))
	for _, e := range entries {
		loc, err := codec.DecodeAs[schema.Location](e)
		if err != nil {
			return err
		}
		points = append(points, loc)
	}

	for i := range sections {
		if sections[i].Distance != 0 {
			continue
		}
		start, end := schema.TimeToEpoch(sections[i].Start), schema.TimeToEpoch(sections[i].End)
		var trace []schema.Location
		for _, p := range points {
			if p.Ts >= start && p.Ts < end {
				trace = append(trace, p)
			}
		}
		sections[i].Distance = TraceDistance(trace)
	}
	return nil
}
