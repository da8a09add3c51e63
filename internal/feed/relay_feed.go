package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/tradedvm/internal/metrics"
	"github.com/alanyoungcy/tradedvm/internal/nostr"
	"github.com/alanyoungcy/tradedvm/internal/relay"
)

const (
	subscriptionID     = "tradedvm"
	defaultSeenSize    = 16384
	defaultRetryDelay  = 2 * time.Second
	defaultDialTimeout = 15 * time.Second
)

// EventHandler is called once per distinct event id across all relays.
type EventHandler func(ctx context.Context, relayURL string, ev nostr.Event)

// Options configures a RelayFeed. Zero values use defaults.
type Options struct {
	// SeenSize bounds the in-memory set of event ids already delivered.
	SeenSize int
	// RetryDelay is the pause between failed initial connects.
	RetryDelay time.Duration
	Relay      relay.Options
}

// RelayFeed subscribes to the same filters on every configured relay and
// forwards each event to the handler at most once. Events a relay sends
// that do not match the filters are dropped.
type RelayFeed struct {
	urls    []string
	filters []relay.Filter
	handler EventHandler
	opts    Options
	seen    *lru.Cache[string, struct{}]
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]*relay.Client
}

// NewRelayFeed creates a feed over urls. m may be nil.
func NewRelayFeed(urls []string, filters []relay.Filter, handler EventHandler, opts Options, m *metrics.Metrics, logger *slog.Logger) (*RelayFeed, error) {
	if len(filters) == 0 {
		return nil, errors.New("feed: at least one filter is required")
	}
	if handler == nil {
		return nil, errors.New("feed: handler is required")
	}
	if opts.SeenSize <= 0 {
		opts.SeenSize = defaultSeenSize
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}
	seen, err := lru.New[string, struct{}](opts.SeenSize)
	if err != nil {
		return nil, fmt.Errorf("feed: seen cache: %w", err)
	}
	return &RelayFeed{
		urls:    urls,
		filters: filters,
		handler: handler,
		opts:    opts,
		seen:    seen,
		metrics: m,
		logger:  logger.With(slog.String("component", "relay_feed")),
		clients: make(map[string]*relay.Client),
	}, nil
}

// Run connects to every relay and blocks until ctx is cancelled. A relay
// that cannot be reached is retried without affecting the others.
func (f *RelayFeed) Run(ctx context.Context) error {
	if len(f.urls) == 0 {
		f.logger.Info("no relays configured, exiting")
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, url := range f.urls {
		g.Go(func() error {
			return f.runRelay(gctx, url)
		})
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Connected returns the relays with a live client.
func (f *RelayFeed) Connected() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.clients))
	for url := range f.clients {
		out = append(out, url)
	}
	return out
}

func (f *RelayFeed) runRelay(ctx context.Context, url string) error {
	logger := f.logger.With(slog.String("relay", url))
	for {
		client, err := f.connect(ctx, url)
		if err == nil {
			logger.Info("relay subscribed", slog.Int("filters", len(f.filters)))
			<-ctx.Done()
			f.drop(url)
			_ = client.Close()
			return ctx.Err()
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("relay connect failed, retrying", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.opts.RetryDelay):
		}
	}
}

// connect dials url and opens the subscription. The client redials on its
// own after a dropped connection.
func (f *RelayFeed) connect(ctx context.Context, url string) (*relay.Client, error) {
	client := relay.NewClient(url, f.opts.Relay)
	client.OnEvent(func(_ string, ev nostr.Event) {
		f.deliver(ctx, url, ev)
	})
	client.OnNotice(func(subID, text string) {
		f.logger.Debug("relay notice",
			slog.String("relay", url),
			slog.String("sub", subID),
			slog.String("text", text),
		)
	})

	dialCtx, cancel := context.WithTimeout(ctx, defaultDialTimeout)
	defer cancel()
	if err := client.Connect(dialCtx); err != nil {
		_ = client.Close()
		return nil, err
	}
	if err := client.Subscribe(ctx, subscriptionID, f.filters...); err != nil {
		_ = client.Close()
		return nil, err
	}

	f.mu.Lock()
	f.clients[url] = client
	f.mu.Unlock()
	return client, nil
}

func (f *RelayFeed) drop(url string) {
	f.mu.Lock()
	delete(f.clients, url)
	f.mu.Unlock()
}

func (f *RelayFeed) deliver(ctx context.Context, url string, ev nostr.Event) {
	f.metrics.ObserveRelayEvent(url, ev.Kind)
	if ev.ID == "" || !f.matches(ev) {
		return
	}
	if found, _ := f.seen.ContainsOrAdd(ev.ID, struct{}{}); found {
		return
	}
	f.handler(ctx, url, ev)
}

func (f *RelayFeed) matches(ev nostr.Event) bool {
	for _, flt := range f.filters {
		if flt.Matches(ev) {
			return true
		}
	}
	return false
}

// BuildFilter returns the single REQ filter for kinds, optionally limited to
// authors and to events newer than since (zero means no lower bound).
func BuildFilter(kinds []int, authors []string, since time.Duration, now time.Time) relay.Filter {
	flt := relay.Filter{Kinds: kinds, Authors: authors}
	if since > 0 {
		ts := now.Add(-since).Unix()
		flt.Since = &ts
	}
	return flt
}
