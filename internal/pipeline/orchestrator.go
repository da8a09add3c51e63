package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedvm/internal/metrics"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
)

// Source produces relay events until ctx is cancelled.
type Source interface {
	Run(ctx context.Context) error
}

// BatchProcessor handles one batch of relay events.
type BatchProcessor interface {
	Process(ctx context.Context, events []nostr.Event) (Result, error)
}

// EventArchive stores raw relay events.
type EventArchive interface {
	WriteBatch(ctx context.Context, batchID string, at time.Time, events []nostr.Event) (string, error)
}

// OrchestratorConfig holds batching and archival settings.
type OrchestratorConfig struct {
	BatchSize     int
	FlushInterval time.Duration
	ArchiveCron   string
}

// Stats is a snapshot of the orchestrator counters.
type Stats struct {
	Received int64 `json:"received"`
	Batches  int64 `json:"batches"`
	Stored   int64 `json:"stored"`
	Rejected int64 `json:"rejected"`
	Messages int64 `json:"messages"`
	Archived int64 `json:"archived"`
}

// Orchestrator buffers events from a Source, processes them in batches on
// size or on the flush interval, writes each raw batch to the event
// archive and runs the retention archiver on its cron schedule.
type Orchestrator struct {
	processor BatchProcessor
	events    EventArchive
	archiver  *Archiver
	cfg       OrchestratorConfig
	metrics   *metrics.Metrics
	buffer    chan nostr.Event
	now       func() time.Time
	logger    *slog.Logger

	received atomic.Int64
	batches  atomic.Int64
	stored   atomic.Int64
	rejected atomic.Int64
	messages atomic.Int64
	archived atomic.Int64
}

// NewOrchestrator creates an Orchestrator. events and archiver may be nil.
func NewOrchestrator(
	processor BatchProcessor,
	events EventArchive,
	archiver *Archiver,
	cfg OrchestratorConfig,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 30 * time.Second
	}
	return &Orchestrator{
		processor: processor,
		events:    events,
		archiver:  archiver,
		cfg:       cfg,
		metrics:   m,
		buffer:    make(chan nostr.Event, cfg.BatchSize*2),
		now:       time.Now,
		logger:    logger.With(slog.String("component", "orchestrator")),
	}
}

// Handle queues one event. It blocks while the buffer is full, which
// slows the relay reader instead of dropping events.
func (o *Orchestrator) Handle(ctx context.Context, _ string, ev nostr.Event) {
	select {
	case o.buffer <- ev:
		o.received.Add(1)
	case <-ctx.Done():
	}
}

// Stats returns the running counters.
func (o *Orchestrator) Stats() Stats {
	return Stats{
		Received: o.received.Load(),
		Batches:  o.batches.Load(),
		Stored:   o.stored.Load(),
		Rejected: o.rejected.Load(),
		Messages: o.messages.Load(),
		Archived: o.archived.Load(),
	}
}

// Run starts the source, the batch loop and the archive cron. It returns
// nil on a clean shutdown, after flushing whatever is still buffered.
func (o *Orchestrator) Run(ctx context.Context, source Source) error {
	o.logger.Info("orchestrator starting",
		slog.Int("batch_size", o.cfg.BatchSize),
		slog.Duration("flush_interval", o.cfg.FlushInterval),
		slog.String("archive_cron", o.cfg.ArchiveCron),
	)

	g, gctx := errgroup.WithContext(ctx)

	if source != nil {
		g.Go(func() error {
			err := source.Run(gctx)
			if gctx.Err() != nil {
				return nil
			}
			if err != nil {
				return fmt.Errorf("event source: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		return o.batchLoop(gctx)
	})

	if o.archiver != nil && o.cfg.ArchiveCron != "" {
		g.Go(func() error {
			err := o.archiver.RunCron(gctx, o.cfg.ArchiveCron)
			if gctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("archiver: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) batchLoop(ctx context.Context) error {
	ticker := time.NewTicker(o.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]nostr.Event, 0, o.cfg.BatchSize)
	for {
		select {
		case <-ctx.Done():
			o.drain(&batch)
			if len(batch) > 0 {
				// Use a fresh context so the final flush can still reach the stores.
				flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				o.flush(flushCtx, batch)
				cancel()
			}
			return nil
		case ev := <-o.buffer:
			batch = append(batch, ev)
			if len(batch) >= o.cfg.BatchSize {
				o.flush(ctx, batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				o.flush(ctx, batch)
				batch = batch[:0]
			}
		}
	}
}

// drain moves anything still buffered into batch without blocking.
func (o *Orchestrator) drain(batch *[]nostr.Event) {
	for {
		select {
		case ev := <-o.buffer:
			*batch = append(*batch, ev)
		default:
			return
		}
	}
}

func (o *Orchestrator) flush(ctx context.Context, batch []nostr.Event) {
	events := make([]nostr.Event, len(batch))
	copy(events, batch)
	o.batches.Add(1)

	res, err := o.processor.Process(ctx, events)
	o.stored.Add(int64(res.Stored))
	o.rejected.Add(int64(res.Rejected))
	o.messages.Add(int64(res.Messages))
	if err != nil {
		o.logger.Error("batch processing failed",
			slog.Int("events", len(events)),
			slog.String("error", err.Error()),
		)
	} else {
		o.logger.Info("batch processed",
			slog.Int("events", len(events)),
			slog.Int("stored", res.Stored),
			slog.Int("rejected", res.Rejected),
			slog.Int("messages", res.Messages),
			slog.Int("duplicates", res.Duplicates),
		)
	}

	if o.events == nil {
		return
	}
	batchID := uuid.NewString()
	path, err := o.events.WriteBatch(ctx, batchID, o.now().UTC(), events)
	o.metrics.ObserveArchive(len(events), err)
	if err != nil {
		o.logger.Warn("event archive failed",
			slog.String("batch_id", batchID),
			slog.String("error", err.Error()),
		)
		return
	}
	o.archived.Add(int64(len(events)))
	o.logger.Debug("event batch archived", slog.String("path", path), slog.Int("events", len(events)))
}
