package footprint

import (
	"math"
	"testing"
	"time"

	"github.com/jiji14/e-mission-server/schema"
)

// FuzzCompute checks that scoring never produces NaN or a wrong component count.
func FuzzCompute(f *testing.F) {
	f.Add(fixtureBusMeters, fixtureWalkMeters, "bus", "walking", false)
	f.Add(0.0, 0.0, "", "", true)
	f.Add(10000.0, 5000.0, "drive", "air", false)

	f.Fuzz(func(t *testing.T, d1, d2 float64, m1, m2 string, auto bool) {
		if d1 < 0 || d2 < 0 || math.IsNaN(d1) || math.IsNaN(d2) || math.IsInf(d1, 0) || math.IsInf(d2, 0) || d1 > 1e12 || d2 > 1e12 {
			return
		}
		start := time.Unix(0, 0)
		sections := []schema.Section{
			{Start: start, End: start.Add(time.Minute), Distance: d1, ConfirmedMode: schema.ParseMode(m1), AutoConfirmed: auto},
			{Start: start, End: start.Add(time.Minute), Distance: d2, ConfirmedMode: schema.ParseMode(m2)},
		}
		r := Compute(sections, schema.DefaultFootprintPolicy(), start, start.Add(24*time.Hour))
		if len(r.Components) != schema.NumComponents {
			t.Fatalf("expected %d components, got %d", schema.NumComponents, len(r.Components))
		}
		for i, c := range r.Components {
			if math.IsNaN(c) || math.IsInf(c, 0) {
				t.Fatalf("component %d is not finite: %v", i, c)
			}
		}
		if r.Components[schema.ComponentCoverage] < 0 || r.Components[schema.ComponentCoverage] > 1 {
			t.Fatalf("coverage out of range: %v", r.Components[schema.ComponentCoverage])
		}
	})
}
