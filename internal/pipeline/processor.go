package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	rediscache "github.com/alanyoungcy/tradedvm/internal/cache/redis"
	"github.com/alanyoungcy/tradedvm/internal/domain"
	"github.com/alanyoungcy/tradedvm/internal/metrics"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/notify"
	"github.com/alanyoungcy/tradedvm/internal/trade"
)

// ListingValidator validates listing events and persists the valid ones.
type ListingValidator interface {
	Validate(ev nostr.Event) (trade.TradeListing, error)
	StoreBatch(ctx context.Context, recs []domain.ListingRecord) error
}

// MessageRecorder appends trade negotiation events to the message log.
type MessageRecorder interface {
	RecordMessage(ctx context.Context, ev nostr.Event) (domain.TradeMessage, error)
}

// Notifier delivers operator notifications.
type Notifier interface {
	Notify(ctx context.Context, n notify.Notification) error
}

// Result counts what one Process call did with its events.
type Result struct {
	Stored     int `json:"stored"`
	Rejected   int `json:"rejected"`
	Messages   int `json:"messages"`
	Duplicates int `json:"duplicates"`
	Ignored    int `json:"ignored"`
	Failed     int `json:"failed"`
}

// Total is the number of events handled.
func (r Result) Total() int {
	return r.Stored + r.Rejected + r.Messages + r.Duplicates + r.Ignored + r.Failed
}

// Processor validates relay events and routes them: valid listings to the
// listing store, invalid ones to the reject log, and trade kinds to the
// message log. Optional collaborators (seen set, bus, notifier, metrics)
// may be nil.
type Processor struct {
	listings ListingValidator
	messages MessageRecorder
	rejects  domain.RejectStore
	seen     domain.SeenSet
	bus      domain.SignalBus
	notifier Notifier
	metrics  *metrics.Metrics
	workers  int
	now      func() time.Time
	logger   *slog.Logger
}

// ProcessorDeps groups the Processor's collaborators.
type ProcessorDeps struct {
	Listings ListingValidator
	Messages MessageRecorder
	Rejects  domain.RejectStore
	Seen     domain.SeenSet
	Bus      domain.SignalBus
	Notifier Notifier
	Metrics  *metrics.Metrics
}

// NewProcessor creates a Processor validating up to workers events at once.
func NewProcessor(deps ProcessorDeps, workers int, logger *slog.Logger) *Processor {
	if workers <= 0 {
		workers = 1
	}
	return &Processor{
		listings: deps.Listings,
		messages: deps.Messages,
		rejects:  deps.Rejects,
		seen:     deps.Seen,
		bus:      deps.Bus,
		notifier: deps.Notifier,
		metrics:  deps.Metrics,
		workers:  workers,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "processor")),
	}
}

type outcome struct {
	ev      nostr.Event
	rec     *domain.ListingRecord
	reject  *domain.ListingReject
	message *domain.TradeMessage
	err     error
}

// Process handles one batch. Per-event failures are counted, not returned;
// the error is non-nil only when the batch could not be stored or ctx ended.
func (p *Processor) Process(ctx context.Context, events []nostr.Event) (Result, error) {
	var res Result
	fresh := p.dedup(ctx, events, &res)
	if len(fresh) == 0 {
		return res, nil
	}

	outcomes := make([]outcome, len(fresh))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, ev := range fresh {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.handle(gctx, ev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		p.forget(ctx, fresh)
		return res, fmt.Errorf("pipeline: process batch: %w", err)
	}

	latest := make(map[string]int)
	var recs []domain.ListingRecord
	var listingEvents, failed []nostr.Event
	for _, o := range outcomes {
		switch {
		case o.rec != nil:
			listingEvents = append(listingEvents, o.ev)
			if j, ok := latest[o.rec.Addr]; ok {
				if o.rec.Newer(recs[j]) {
					recs[j] = *o.rec
				}
				p.metrics.ObserveOutcome(metrics.OutcomeDuplicate)
				res.Duplicates++
				continue
			}
			latest[o.rec.Addr] = len(recs)
			recs = append(recs, *o.rec)
		case o.reject != nil:
			p.recordReject(ctx, *o.reject)
			res.Rejected++
		case o.message != nil:
			p.metrics.ObserveOutcome(metrics.OutcomeMessage)
			p.publish(ctx, domain.IngestEvent{EventID: o.ev.ID, Kind: o.ev.Kind, ListingAddr: o.message.ListingAddr, Valid: true, At: p.now().UTC()})
			p.publishTo(ctx, rediscache.ChannelTradeMessage, "", o.ev.ID, o.message)
			res.Messages++
		case o.err != nil:
			p.metrics.ObserveOutcome(metrics.OutcomeError)
			p.logger.WarnContext(ctx, "event handling failed",
				slog.String("event_id", o.ev.ID),
				slog.Int("kind", o.ev.Kind),
				slog.String("error", o.err.Error()),
			)
			failed = append(failed, o.ev)
			res.Failed++
		default:
			res.Ignored++
		}
	}

	p.forget(ctx, failed)

	if len(recs) > 0 {
		if err := p.listings.StoreBatch(ctx, recs); err != nil {
			p.forget(ctx, listingEvents)
			res.Failed += len(recs)
			return res, fmt.Errorf("pipeline: store listings: %w", err)
		}
		for _, rec := range recs {
			p.metrics.ObserveOutcome(metrics.OutcomeStored)
			p.publish(ctx, domain.IngestEvent{EventID: rec.EventID, Kind: nostr.KindListing, ListingAddr: rec.Addr, Valid: true, At: rec.IngestedAt})
			p.notify(ctx, notify.Notification{
				Event:   notify.EventListingStored,
				Title:   "Listing stored",
				Message: rec.Title,
				Fields:  map[string]string{"addr": rec.Addr, "product_type": rec.ProductType},
			})
		}
		res.Stored += len(recs)
	}

	p.logger.DebugContext(ctx, "batch processed",
		slog.Int("stored", res.Stored),
		slog.Int("rejected", res.Rejected),
		slog.Int("messages", res.Messages),
		slog.Int("duplicates", res.Duplicates),
		slog.Int("failed", res.Failed),
	)
	return res, nil
}

// dedup drops events without an id, repeats within the batch and ids the
// shared seen set already holds. A seen-set failure lets the event through;
// the stores are idempotent. Events that later fail are forgotten again.
func (p *Processor) dedup(ctx context.Context, events []nostr.Event, res *Result) []nostr.Event {
	batch := make(map[string]struct{}, len(events))
	out := make([]nostr.Event, 0, len(events))
	for _, ev := range events {
		if ev.ID == "" {
			res.Ignored++
			continue
		}
		if _, dup := batch[ev.ID]; dup {
			res.Duplicates++
			p.metrics.ObserveOutcome(metrics.OutcomeDuplicate)
			continue
		}
		batch[ev.ID] = struct{}{}

		if p.seen != nil {
			isNew, err := p.seen.MarkSeen(ctx, ev.ID)
			if err != nil {
				p.logger.WarnContext(ctx, "seen set unavailable",
					slog.String("event_id", ev.ID),
					slog.String("error", err.Error()),
				)
			} else if !isNew {
				res.Duplicates++
				p.metrics.ObserveOutcome(metrics.OutcomeDuplicate)
				continue
			}
		}
		out = append(out, ev)
	}
	return out
}

// forget drops events from the seen set after a failure, so a redelivery
// gets another attempt. It runs even when ctx is already cancelled.
func (p *Processor) forget(ctx context.Context, events []nostr.Event) {
	if p.seen == nil || len(events) == 0 {
		return
	}
	ids := make([]string, len(events))
	for i, ev := range events {
		ids[i] = ev.ID
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.seen.Forget(ctx, ids...); err != nil {
		p.logger.WarnContext(ctx, "seen set forget failed",
			slog.Int("events", len(ids)),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) handle(ctx context.Context, ev nostr.Event) outcome {
	switch {
	case ev.Kind == nostr.KindListing:
		start := time.Now()
		tl, err := p.listings.Validate(ev)
		p.metrics.ObserveValidate(time.Since(start))
		if err != nil {
			return outcome{ev: ev, reject: p.rejectFor(ev, err)}
		}
		rec := domain.NewListingRecord(tl, ev, p.now())
		return outcome{ev: ev, rec: &rec}

	case trade.IsTradeKind(ev.Kind):
		if p.messages == nil {
			return outcome{ev: ev}
		}
		msg, err := p.messages.RecordMessage(ctx, ev)
		if err != nil {
			return outcome{ev: ev, err: err}
		}
		return outcome{ev: ev, message: &msg}
	}
	return outcome{ev: ev}
}

func (p *Processor) rejectFor(ev nostr.Event, err error) *domain.ListingReject {
	code := string(trade.CodeParseError)
	var ve *trade.ValidationError
	if errors.As(err, &ve) {
		code = string(ve.Code)
	}
	return &domain.ListingReject{
		EventID:   ev.ID,
		PubKey:    ev.PubKey,
		Kind:      ev.Kind,
		Code:      code,
		Message:   err.Error(),
		CreatedAt: p.now().UTC(),
	}
}

func (p *Processor) recordReject(ctx context.Context, r domain.ListingReject) {
	p.metrics.ObserveReject(r.Code)
	if p.rejects != nil {
		if err := p.rejects.Insert(ctx, r); err != nil {
			p.logger.WarnContext(ctx, "reject insert failed",
				slog.String("event_id", r.EventID),
				slog.String("error", err.Error()),
			)
		}
	}
	p.publish(ctx, domain.IngestEvent{EventID: r.EventID, Kind: r.Kind, Valid: false, Code: r.Code, At: r.CreatedAt})
	p.notify(ctx, notify.Notification{
		Event:   notify.EventListingRejected,
		Title:   "Listing rejected",
		Message: r.Message,
		Fields:  map[string]string{"event_id": r.EventID, "pubkey": r.PubKey, "code": r.Code},
		At:      r.CreatedAt,
	})
}

func (p *Processor) publish(ctx context.Context, ev domain.IngestEvent) {
	p.publishTo(ctx, rediscache.ChannelIngest, rediscache.StreamIngest, ev.EventID, ev)
}

func (p *Processor) publishTo(ctx context.Context, channel, stream, eventID string, v any) {
	if p.bus == nil {
		return
	}
	if err := rediscache.PublishJSON(ctx, p.bus, channel, stream, v); err != nil {
		p.logger.DebugContext(ctx, "signal publish failed",
			slog.String("channel", channel),
			slog.String("event_id", eventID),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) notify(ctx context.Context, n notify.Notification) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, n); err != nil {
		p.logger.DebugContext(ctx, "notify failed",
			slog.String("event", n.Event),
			slog.String("error", err.Error()),
		)
	}
}
