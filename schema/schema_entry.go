package schema

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Metadata describes where and when an entry was written.
type Metadata struct {
	Key          string  `json:"key"`
	WriteTs      float64 `json:"write_ts"`
	WriteFmtTime string  `json:"write_fmt_time,omitempty"`
	TimeZone     string  `json:"time_zone,omitempty"`
	Platform     string  `json:"platform,omitempty"`
	Type         string  `json:"type,omitempty"`
}

// Entry is one immutable record of a user's time series.
// DataTs and DataEndTs are derived from the payload when the entry is stored.
type Entry struct {
	ID        primitive.ObjectID
	UserID    uuid.UUID
	Metadata  Metadata
	Data      json.RawMessage
	DataTs    float64
	DataEndTs float64
}

// Timestamp returns the entry timestamp on the given axis.
func (e Entry) Timestamp(field TimeField) float64 {
	if field == TimeFieldWrite {
		return e.Metadata.WriteTs
	}
	return e.DataTs
}

// TimeQuery bounds a range query on one timestamp axis.
// Both bounds are inclusive unless StartExclusive is set.
type TimeQuery struct {
	Field          TimeField
	StartTs        float64
	EndTs          float64
	StartExclusive bool
}

// Contains reports whether ts falls inside the query bounds.
func (q TimeQuery) Contains(ts float64) bool {
	if q.StartExclusive {
		if ts <= q.StartTs {
			return false
		}
	} else if ts < q.StartTs {
		return false
	}
	return ts <= q.EndTs
}

// TimeRange is the window resolved for one pipeline stage run.
// FirstRun marks a window whose start is the earliest entry and therefore inclusive.
type TimeRange struct {
	StartTs  float64 `json:"start_ts"`
	EndTs    float64 `json:"end_ts"`
	FirstRun bool    `json:"first_run"`
}

// Query converts the window into a store query on the given axis.
func (r TimeRange) Query(field TimeField) TimeQuery {
	return TimeQuery{
		Field:          field,
		StartTs:        r.StartTs,
		EndTs:          r.EndTs,
		StartExclusive: !r.FirstRun,
	}
}

// EpochToTime converts float epoch seconds into a UTC time.
func EpochToTime(ts float64) time.Time {
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}

// TimeToEpoch converts a time into float epoch seconds.
func TimeToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
