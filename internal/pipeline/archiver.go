package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/marginterm/internal/domain"
)

// Archiver moves settled actions and their audit trail past the retention
// window to cold storage. Runs never overlap.
type Archiver struct {
	target    domain.Archiver
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu sync.Mutex
}

// NewArchiver creates an Archiver keeping retentionDays of history in the
// primary store.
func NewArchiver(target domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	return &Archiver{
		target:    target,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// Cutoff is the creation time before which history is archived.
func (a *Archiver) Cutoff() time.Time {
	return a.now().UTC().Add(-a.retention)
}

// Run performs one archive pass and returns the number of actions moved.
func (a *Archiver) Run(ctx context.Context) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cutoff := a.Cutoff()
	start := a.now()
	archived, err := a.target.ArchiveActions(ctx, cutoff)
	if err != nil {
		return archived, fmt.Errorf("archiver: actions before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	a.logger.InfoContext(ctx, "archiver: run complete",
		slog.Time("cutoff", cutoff),
		slog.Int64("actions_archived", archived),
		slog.Duration("took", a.now().Sub(start)),
	)
	return archived, nil
}

// RunLoop archives once immediately and then on every interval until ctx is
// cancelled. A failed pass is logged and retried on the next tick.
func (a *Archiver) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Run(ctx); err != nil && ctx.Err() == nil {
			a.logger.ErrorContext(ctx, "archiver: run failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
