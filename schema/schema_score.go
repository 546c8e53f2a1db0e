package schema

import (
	"github.com/google/uuid"
)

// ScoreCacheVersion is bumped whenever the cached score layout changes.
const ScoreCacheVersion = 1

// Default carbon intensities in grams of CO2 per meter (per-mile figures over 1609 m).
const (
	DefaultBusIntensity     = 267.0 / 1609
	DefaultAirIntensity     = 217.0 / 1609
	DefaultDriveIntensity   = 278.0 / 1609
	DefaultOptimalIntensity = 92.0 / 1609
)

// DefaultDailyGoalKg is the regional per-day emissions target in kg of CO2.
const DefaultDailyGoalKg = 40.142892 / 7

// DefaultShortTripMeters is the distance under which a zero-carbon alternative is assumed.
const DefaultShortTripMeters = 5000.0

// FootprintPolicy holds the injected parameters of the scoring engine.
type FootprintPolicy struct {
	// Intensities maps a confirmed mode to grams of CO2 per meter.
	// Modes without an entry are treated as zero-carbon.
	Intensities map[Mode]float64

	// OptimalIntensity is the best-case transit intensity used for long trips.
	OptimalIntensity float64

	// LongMotorized lists modes that have no modeled lower-carbon substitute.
	// Sections in these modes are left out of every footprint sum.
	LongMotorized map[Mode]struct{}

	// ShortTripMeters is the distance under which the optimal alternative is zero-carbon.
	ShortTripMeters float64

	// DailyGoalKg is the per-period emissions target.
	DailyGoalKg float64

	// ScaleGoalToWindow multiplies the goal by the window length in days.
	ScaleGoalToWindow bool
}

// DefaultFootprintPolicy returns the policy used when nothing is configured.
func DefaultFootprintPolicy() FootprintPolicy {
	return FootprintPolicy{
		Intensities: map[Mode]float64{
			ModeBus:   DefaultBusIntensity,
			ModeAir:   DefaultAirIntensity,
			ModeDrive: DefaultDriveIntensity,
		},
		OptimalIntensity: DefaultOptimalIntensity,
		LongMotorized:    map[Mode]struct{}{ModeAir: {}},
		ShortTripMeters:  DefaultShortTripMeters,
		DailyGoalKg:      DefaultDailyGoalKg,
	}
}

// Intensity returns the intensity for a mode, zero if unknown.
func (p FootprintPolicy) Intensity(m Mode) float64 {
	return p.Intensities[m]
}

// IsLongMotorized reports whether the mode is excluded from footprint sums.
func (p FootprintPolicy) IsLongMotorized(m Mode) bool {
	_, ok := p.LongMotorized[m]
	return ok
}

// Score component indexes.
const (
	ComponentCoverage = iota
	ComponentOptimal
	ComponentAllDrive
	ComponentGoal
	NumComponents
)

// ComponentNames labels the score components for output.
var ComponentNames = [NumComponents]string{
	"confirmation coverage",
	"excess over optimal",
	"savings vs all-drive",
	"progress vs goal",
}

// ScoreReport is the full result of a footprint scoring pass.
type ScoreReport struct {
	UserID       uuid.UUID `json:"user_id"`
	StartTs      float64   `json:"start_ts"`
	EndTs        float64   `json:"end_ts"`
	Components   []float64 `json:"components"`
	SectionCount int       `json:"section_count"`
	Relevant     int       `json:"relevant_sections"`
	Confirmed    int       `json:"confirmed_sections"`
	ActualKg     float64   `json:"actual_kg"`
	OptimalKg    float64   `json:"optimal_kg"`
	AllDriveKg   float64   `json:"all_drive_kg"`
	GoalKg       float64   `json:"goal_kg"`
}
