package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/notify"
)

const (
	archiveLockKey = "archive"
	archiveLockTTL = 30 * time.Minute
)

// RejectPruner deletes reject rows once they are archived.
type RejectPruner interface {
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventPruner deletes raw event batches written before a cutoff.
type EventPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// ArchiveReport summarises one archive run.
type ArchiveReport struct {
	Cutoff       time.Time `json:"cutoff"`
	Rejects      int64     `json:"rejects"`
	Pruned       int64     `json:"pruned"`
	Messages     int64     `json:"messages"`
	EventBatches int64     `json:"event_batches_pruned"`
	Skipped      bool      `json:"skipped"`
}

// Archiver copies rejects and trade messages older than the retention
// window to cold storage. Archived rejects are then pruned; the trade
// message log is kept. With a lock manager only one instance runs at a time.
type Archiver struct {
	blob      domain.Archiver
	pruner    RejectPruner
	locks     domain.LockManager
	notifier  Notifier
	retention time.Duration
	now       func() time.Time
	logger    *slog.Logger

	events         EventPruner
	eventRetention time.Duration
}

// NewArchiver creates an Archiver. pruner, locks and notifier may be nil.
func NewArchiver(
	blob domain.Archiver,
	pruner RejectPruner,
	locks domain.LockManager,
	notifier Notifier,
	retentionDays int,
	logger *slog.Logger,
) *Archiver {
	return &Archiver{
		blob:      blob,
		pruner:    pruner,
		locks:     locks,
		notifier:  notifier,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// WithEventRetention also deletes raw event batches older than days on
// each run. Zero days keeps them.
func (a *Archiver) WithEventRetention(events EventPruner, days int) *Archiver {
	a.events = events
	a.eventRetention = time.Duration(days) * 24 * time.Hour
	return a
}

// Run executes a single archive pass. It reports Skipped when another
// instance holds the archive lock.
func (a *Archiver) Run(ctx context.Context) (ArchiveReport, error) {
	report := ArchiveReport{Cutoff: a.now().UTC().Add(-a.retention)}

	if a.locks != nil {
		unlock, err := a.locks.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive already running elsewhere, skipping")
			report.Skipped = true
			return report, nil
		}
		if err != nil {
			return report, fmt.Errorf("pipeline: archive lock: %w", err)
		}
		defer unlock()
	}

	a.logger.InfoContext(ctx, "starting archive run", slog.Time("cutoff", report.Cutoff))

	var err error
	if report.Rejects, err = a.blob.ArchiveRejects(ctx, report.Cutoff); err != nil {
		return report, fmt.Errorf("pipeline: archive rejects before %v: %w", report.Cutoff, err)
	}
	if report.Rejects > 0 && a.pruner != nil {
		if report.Pruned, err = a.pruner.DeleteBefore(ctx, report.Cutoff); err != nil {
			return report, fmt.Errorf("pipeline: prune rejects before %v: %w", report.Cutoff, err)
		}
	}
	if report.Messages, err = a.blob.ArchiveMessages(ctx, report.Cutoff); err != nil {
		return report, fmt.Errorf("pipeline: archive trade messages before %v: %w", report.Cutoff, err)
	}

	if a.events != nil && a.eventRetention > 0 {
		eventCutoff := a.now().UTC().Add(-a.eventRetention)
		if report.EventBatches, err = a.events.PruneBefore(ctx, eventCutoff); err != nil {
			return report, fmt.Errorf("pipeline: prune event batches before %v: %w", eventCutoff, err)
		}
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("rejects", report.Rejects),
		slog.Int64("pruned", report.Pruned),
		slog.Int64("messages", report.Messages),
		slog.Int64("event_batches", report.EventBatches),
	)
	if a.notifier != nil {
		n := notify.Notification{
			Event:   notify.EventArchiveComplete,
			Title:   "Archive complete",
			Message: "cutoff " + report.Cutoff.Format(time.RFC3339),
			Fields: map[string]string{
				"rejects":  strconv.FormatInt(report.Rejects, 10),
				"messages": strconv.FormatInt(report.Messages, 10),
			},
		}
		if err := a.notifier.Notify(ctx, n); err != nil {
			a.logger.DebugContext(ctx, "archive notify failed", slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// RunCron runs the archiver on a 5-field cron schedule until ctx ends.
func (a *Archiver) RunCron(ctx context.Context, expr string) error {
	if _, err := parseSchedule(expr); err != nil {
		return fmt.Errorf("pipeline: archive cron %q: %w", expr, err)
	}
	a.logger.Info("archiver cron started", slog.String("cron", expr))

	for {
		next, err := nextCronTime(expr, a.now().UTC())
		if err != nil {
			return fmt.Errorf("pipeline: archive cron %q: %w", expr, err)
		}
		wait := time.Until(next)
		a.logger.Debug("archiver waiting", slog.Time("next_run", next), slog.Duration("wait", wait))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			if _, err := a.Run(ctx); err != nil {
				a.logger.Error("archive run failed", slog.String("error", err.Error()))
			}
		}
	}
}
