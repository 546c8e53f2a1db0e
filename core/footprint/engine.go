// Package footprint scores a user's travel by its carbon footprint.
package footprint

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jiji14/e-mission-server/internal/contract"
	"github.com/jiji14/e-mission-server/schema"
)

// DefaultCacheTTL is how long a cached score stays valid.
const DefaultCacheTTL = 24 * time.Hour

// SectionSource loads the sections that start inside a window.
type SectionSource interface {
	Load(ctx context.Context, user uuid.UUID, start, end time.Time) ([]schema.Section, error)
}

// Engine computes score components from sections under a footprint policy.
type Engine struct {
	sections SectionSource
	policy   schema.FootprintPolicy
	cache    contract.CacheStore
	cacheTTL time.Duration
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithCache stores computed reports in cache for ttl.
func WithCache(cache contract.CacheStore, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cache = cache
		e.cacheTTL = ttl
	}
}

// WithClock overrides the clock used for cache timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine returns an engine reading sections from src.
func NewEngine(src SectionSource, policy schema.FootprintPolicy, opts ...Option) *Engine {
	e := &Engine{
		sections: src,
		policy:   policy,
		cacheTTL: DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Policy returns the policy the engine scores with.
func (e *Engine) Policy() schema.FootprintPolicy {
	return e.policy
}

// GetScoreComponents returns the four score components for the window [start, end].
func (e *Engine) GetScoreComponents(ctx context.Context, user uuid.UUID, start, end time.Time) ([]float64, error) {
	report, err := e.Score(ctx, user, start, end)
	if err != nil {
		return nil, err
	}
	return report.Components, nil
}

// Score returns the full report for the window [start, end], reading through the cache when one is set.
// A report that cannot be written to the cache is an error.
func (e *Engine) Score(ctx context.Context, user uuid.UUID, start, end time.Time) (schema.ScoreReport, error) {
	return e.score(ctx, user, start, end, false)
}

// ScoreAfter is Score over (start, end]: a section starting exactly at start is left out.
// Consecutive windows sharing a boundary score each section once.
func (e *Engine) ScoreAfter(ctx context.Context, user uuid.UUID, start, end time.Time) (schema.ScoreReport, error) {
	return e.score(ctx, user, start, end, true)
}

func (e *Engine) score(ctx context.Context, user uuid.UUID, start, end time.Time, startExclusive bool) (schema.ScoreReport, error) {
	if e.cache == nil {
		return e.compute(ctx, user, start, end, startExclusive)
	}

	key := e.cacheKey(user, start, end, startExclusive)
	if report, ok := e.checkCacheHit(key); ok {
		return report, nil
	}

	report, err := e.compute(ctx, user, start, end, startExclusive)
	if err != nil {
		return report, err
	}
	data, err := json.Marshal(report)
	if err != nil {
		return report, fmt.Errorf("failed to encode score: %w", err)
	}
	if err := e.cache.Set(key, data, schema.ScoreCacheVersion, e.now().Unix()); err != nil {
		return report, fmt.Errorf("failed to cache score: %w", err)
	}
	return report, nil
}

func (e *Engine) compute(ctx context.Context, user uuid.UUID, start, end time.Time, startExclusive bool) (schema.ScoreReport, error) {
	sections, err := e.sections.Load(ctx, user, start, end)
	if err != nil {
		return schema.ScoreReport{}, fmt.Errorf("failed to load sections for scoring: %w", err)
	}
	if startExclusive {
		sections = slices.DeleteFunc(sections, func(s schema.Section) bool { return !s.Start.After(start) })
	}
	report := Compute(sections, e.policy, start, end)
	report.UserID = user
	return report, nil
}

// checkCacheHit returns a cached report if it is current and fresh.
func (e *Engine) checkCacheHit(key string) (schema.ScoreReport, bool) {
	var report schema.ScoreReport
	data, version, ts, err := e.cache.Get(key)
	if err != nil || version != schema.ScoreCacheVersion {
		return report, false
	}
	if e.now().Sub(time.Unix(ts, 0)) > e.cacheTTL {
		return report, false
	}
	if err := json.Unmarshal(data, &report); err != nil || len(report.Components) != schema.NumComponents {
		return report, false
	}
	return report, true
}

// cacheKey identifies a score by user, window and policy.
func (e *Engine) cacheKey(user uuid.UUID, start, end time.Time, startExclusive bool) string {
	key := fmt.Sprintf("score:%s:%d:%d:%s", user, start.Unix(), end.Unix(), policyFingerprint(e.policy))
	if startExclusive {
		key += ":after"
	}
	return key
}

// policyFingerprint hashes the policy so a changed policy misses the cache.
func policyFingerprint(p schema.FootprintPolicy) string {
	h := sha256.New()
	for _, m := range slices.Sorted(maps.Keys(p.Intensities)) {
		_, _ = fmt.Fprintf(h, "%s=%g;", m, p.Intensities[m])
	}
	for _, m := range slices.Sorted(maps.Keys(p.LongMotorized)) {
		_, _ = fmt.Fprintf(h, "long=%s;", m)
	}
	_, _ = fmt.Fprintf(h, "opt=%g;short=%g;goal=%g;scale=%t", p.OptimalIntensity, p.ShortTripMeters, p.DailyGoalKg, p.ScaleGoalToWindow)
	return fmt.Sprintf("%x", h.Sum(nil))[:16]
}
