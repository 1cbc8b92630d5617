// Package maintenance runs periodic pruning of expired authorizations and
// tokens.
package maintenance

//go:generate mockgen -source=runner.go -destination=mock_pruner_test.go -package=maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Pruner removes records created before threshold and reports how many
// were removed.
type Pruner interface {
	Prune(ctx context.Context, threshold time.Time) (int, error)
}

// Task prunes one entity kind. Records younger than MaxAge are kept.
type Task struct {
	Kind   string
	Pruner Pruner
	MaxAge time.Duration
}

// Runner prunes its tasks once at start and then every Interval until
// the context is cancelled.
type Runner struct {
	Interval time.Duration
	Tasks    []Task

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time

	// OnPruned, if set, is called after each successful task with the
	// number of records removed.
	OnPruned func(kind string, n int)
}

// Run blocks until ctx is done. Pruning errors are logged and do not stop
// the loop.
func (r *Runner) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		return fmt.Errorf("maintenance interval must be positive, got %s", r.Interval)
	}

	r.logger().Info("maintenance started", slog.Duration("interval", r.Interval), slog.Int("tasks", len(r.Tasks)))

	r.runLogged(ctx)

	ticker := time.NewTicker(r.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.runLogged(ctx)
		case <-ctx.Done():
			r.logger().Info("maintenance stopped")
			return nil
		}
	}
}

func (r *Runner) runLogged(ctx context.Context) {
	if _, err := r.RunOnce(ctx); err != nil && ctx.Err() == nil {
		r.logger().Warn("pruning failed", slog.String("error", err.Error()))
	}
}

// RunOnce runs every task and returns the total number of records
// removed. A failing task does not prevent the others from running; the
// returned error joins the failures.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now()

	var (
		total int
		errs  []error
	)

	for _, task := range r.Tasks {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}

		n, err := task.Pruner.Prune(ctx, now.Add(-task.MaxAge))
		if err != nil {
			errs = append(errs, fmt.Errorf("pruning %s: %w", task.Kind, err))
			continue
		}

		total += n

		if n > 0 {
			r.logger().Info("pruned records", slog.String("kind", task.Kind), slog.Int("count", n))
		}

		if r.OnPruned != nil {
			r.OnPruned(task.Kind, n)
		}
	}

	return total, errors.Join(errs...)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}
