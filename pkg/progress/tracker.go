// Package progress tracks per-job completion percentages that many
// concurrent chunk workers increment.
package progress

import (
	"context"
	"fmt"
	"math"

	"github.com/Gobusters/ectologger"
)

// Failed is the sentinel value pollers see when a job could not start,
// for example an unconfigured export type.
const Failed = -1

// Key builds the namespaced progress key for a stage and job id,
// e.g. "match_buildings:42".
func Key(stage string, jobID string) string {
	return fmt.Sprintf("%s:%s", stage, jobID)
}

// Store is the backing counter store. Increments must be atomic so
// concurrent chunk workers never lose updates.
type Store interface {
	IncrByFloat(ctx context.Context, key string, delta float64) (float64, error)
	Set(ctx context.Context, key string, value float64) error
	Get(ctx context.Context, key string) (float64, bool, error)
}

// Tracker is the progress counter service. Writers are not clamped;
// reads clamp to [0,100] so uneven chunk arithmetic can never surface
// an impossible percentage to pollers. The Failed sentinel passes
// through unclamped.
type Tracker struct {
	store  Store
	logger ectologger.Logger
}

// NewTracker creates a tracker on the given store.
func NewTracker(store Store, logger ectologger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
	}
}

// Increment atomically adds delta to the job's percentage.
func (t *Tracker) Increment(ctx context.Context, key string, delta float64) {
	if _, err := t.store.IncrByFloat(ctx, key, delta); err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("progress_key", key).Error("Failed to increment progress")
	}
}

// Set overwrites the job's percentage.
func (t *Tracker) Set(ctx context.Context, key string, value float64) {
	if err := t.store.Set(ctx, key, value); err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("progress_key", key).Error("Failed to set progress")
	}
}

// Get returns the job's percentage rounded to an integer. Unknown keys
// report zero.
func (t *Tracker) Get(ctx context.Context, key string) int {
	value, ok, err := t.store.Get(ctx, key)
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).WithField("progress_key", key).Error("Failed to read progress")
		return 0
	}
	if !ok {
		return 0
	}
	if value == Failed {
		return Failed
	}
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return int(math.Round(value))
}
