package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/odgrim/abathur-swarm-sub016/pkg/models"
)

// RetryConfig configures exponential backoff for optimistic-concurrency
// write retries.
type RetryConfig struct {
	InitialInterval     time.Duration // Initial retry interval (default 10ms)
	MaxInterval         time.Duration // Maximum retry interval (default 500ms)
	MaxElapsedTime      time.Duration // Maximum total retry time (default 10s)
	Multiplier          float64       // Backoff multiplier (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultRetryConfig returns the default retry configuration. Version
// conflicts resolve quickly, so the intervals are short.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval:     10 * time.Millisecond,
		MaxInterval:         500 * time.Millisecond,
		MaxElapsedTime:      10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

func (c RetryConfig) newBackOff(ctx context.Context) backoff.BackOffContext {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.InitialInterval
	policy.MaxInterval = c.MaxInterval
	policy.MaxElapsedTime = c.MaxElapsedTime
	policy.Multiplier = c.Multiplier
	policy.RandomizationFactor = c.RandomizationFactor
	return backoff.WithContext(policy, ctx)
}

// UpdateStatusRetry transitions a task's status, re-fetching and retrying
// with exponential backoff when another writer wins the version race.
// Errors other than version conflicts are permanent.
func (db *DB) UpdateStatusRetry(ctx context.Context, id string, to models.TaskStatus, cfg RetryConfig) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		t, err := db.GetTask(id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if t.Status == to {
			return nil
		}

		err = db.UpdateStatus(id, to, t.Version)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrVersionConflict) {
			return err // retry with fresh version
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, cfg.newBackOff(ctx))
}

// FailTaskRetry marks a task failed with the given message, retrying
// version conflicts with exponential backoff.
func (db *DB) FailTaskRetry(ctx context.Context, id string, message string, cfg RetryConfig) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		t, err := db.GetTask(id)
		if err != nil {
			return backoff.Permanent(err)
		}
		if t.Status == models.TaskStatusFailed {
			return nil
		}

		err = db.FailTask(id, message, t.Version)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrVersionConflict) {
			return err // retry with fresh version
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, cfg.newBackOff(ctx))
}

// UpdatePriorityRetry writes a recalculated priority, retrying version
// conflicts with exponential backoff.
func (db *DB) UpdatePriorityRetry(ctx context.Context, id string, priority float64, cfg RetryConfig) error {
	operation := func() error {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}

		t, err := db.GetTask(id)
		if err != nil {
			return backoff.Permanent(err)
		}

		err = db.UpdatePriority(id, priority, t.Version)
		if err == nil {
			return nil
		}
		if errors.Is(err, models.ErrVersionConflict) {
			return err // retry with fresh version
		}
		return backoff.Permanent(err)
	}

	return backoff.Retry(operation, cfg.newBackOff(ctx))
}
