package footprint

import (
	"time"

	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// Compute scores sections under policy. It never fails: degenerate inputs give zeros.
//
// The components are:
//   - 0: share of sections needing confirmation that are confirmed
//   - 1: relative excess of the actual footprint over the optimal one
//   - 2: relative savings of the actual footprint against driving everywhere
//   - 3: relative distance of the actual footprint below the goal
func Compute(sections []schema.Section, policy schema.FootprintPolicy, start, end time.Time) schema.ScoreReport {
	report := schema.ScoreReport{
		StartTs:      schema.TimeToEpoch(start),
		EndTs:        schema.TimeToEpoch(end),
		SectionCount: len(sections),
	}

	for _, s := range sections {
		if s.AutoConfirmed {
			continue
		}
		report.Relevant++
		if s.IsConfirmed() {
			report.Confirmed++
		}
	}

	driveIntensity := policy.Intensity(schema.ModeDrive)
	for _, s := range sections {
		if !s.IsConfirmed() || policy.IsLongMotorized(s.ConfirmedMode) {
			continue
		}
		report.ActualKg += s.Distance * policy.Intensity(s.ConfirmedMode) / 1000
		report.AllDriveKg += s.Distance * driveIntensity / 1000
		if s.Distance >= policy.ShortTripMeters {
			report.OptimalKg += s.Distance * policy.OptimalIntensity / 1000
		}
	}

	report.GoalKg = policy.DailyGoalKg
	if policy.ScaleGoalToWindow {
		report.GoalKg *= contract.WindowDays(report.StartTs, report.EndTs)
	}

	components := make([]float64, schema.NumComponents)
	components[schema.ComponentCoverage] = handleZero(float64(report.Confirmed), float64(report.Relevant))
	components[schema.ComponentOptimal] = handleZero(report.ActualKg-report.OptimalKg, report.OptimalKg)
	components[schema.ComponentAllDrive] = handleZero(report.AllDriveKg-report.ActualKg, report.AllDriveKg)
	components[schema.ComponentGoal] = handleZero(report.GoalKg-report.ActualKg, report.GoalKg)
	report.Components = components
	return report
}

// handleZero divides x by y, returning 0 when y is 0.
func handleZero(x, y float64) float64 {
	if y == 0 {
		return 0
	}
	return x / y
}
