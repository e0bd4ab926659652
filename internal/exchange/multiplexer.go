package exchange

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// Exchange is the identifier carried in every subscription key this
// adapter serves.
const Exchange = "BINANCE"

// Multiplexer keeps one combined-stream connection per market aligned
// with the realtime store's key set. Incremental changes arrive as
// subscription.add / subscription.remove; subscription.clean and every
// reconnect trigger a full sync against the store.
type Multiplexer struct {
	cfg      config.ExchangeConfig
	realtime *store.RealtimeStore
	logger   *slog.Logger

	spot *marketMux
	perp *marketMux

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// MultiplexerStats provides counters for the health endpoint.
type MultiplexerStats struct {
	SpotConnected bool
	SpotStreams   int
	PerpConnected bool
	PerpStreams   int
}

// NewMultiplexer creates a Multiplexer.
func NewMultiplexer(cfg config.ExchangeConfig, realtime *store.RealtimeStore, logger *slog.Logger) *Multiplexer {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "multiplexer")

	m := &Multiplexer{
		cfg:      cfg,
		realtime: realtime,
		logger:   logger,
	}
	m.spot = newMarketMux(MarketSpot, cfg.SpotWSURL, cfg, m, logger)
	m.perp = newMarketMux(MarketFutures, cfg.FuturesWSURL, cfg, m, logger)
	return m
}

// Register wires the multiplexer's handlers onto the listener. Must run
// before the listener starts.
func (m *Multiplexer) Register(l notify.Listener) {
	l.Handle(notify.ChanSubscriptionAdd, m.onAdd)
	l.Handle(notify.ChanSubscriptionRem, m.onRemove)
	l.Handle(notify.ChanSubscriptionClean, m.onClean)
}

// Start seeds the wanted sets from the store and launches both market
// loops.
func (m *Multiplexer) Start(ctx context.Context) error {
	m.ctx, m.cancel = context.WithCancel(ctx)

	if err := m.syncFromStore(m.ctx); err != nil {
		// The store may simply be unreachable yet; the run loops retry.
		m.logger.Warn("initial subscription sync failed", "error", err)
	}

	m.wg.Add(2)
	go m.spot.run(m.ctx, &m.wg)
	go m.perp.run(m.ctx, &m.wg)

	m.logger.Info("stream multiplexer started")
	return nil
}

// Stop closes both market connections.
func (m *Multiplexer) Stop(ctx context.Context) error {
	if m.cancel != nil {
		m.cancel()
	}
	m.spot.close()
	m.perp.close()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("stream multiplexer stopped")
	case <-ctx.Done():
		m.logger.Warn("stream multiplexer stop timed out")
	}
	return nil
}

// Stats returns per-market connection state.
func (m *Multiplexer) Stats() MultiplexerStats {
	return MultiplexerStats{
		SpotConnected: m.spot.isConnected(),
		SpotStreams:   m.spot.size(),
		PerpConnected: m.perp.isConnected(),
		PerpStreams:   m.perp.size(),
	}
}

func (m *Multiplexer) onAdd(_ context.Context, env notify.Envelope) {
	var ev notify.SubscriptionEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		m.logger.Warn("bad subscription event", "error", err)
		return
	}
	m.want(ev.SubscriptionKey)
}

func (m *Multiplexer) onRemove(_ context.Context, env notify.Envelope) {
	var ev notify.SubscriptionEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		m.logger.Warn("bad subscription event", "error", err)
		return
	}
	m.unwant(ev.SubscriptionKey)
}

// onClean rebuilds the wanted sets from scratch; a bulk teardown is
// cheaper to reconcile than to replay row by row.
func (m *Multiplexer) onClean(ctx context.Context, _ notify.Envelope) {
	if err := m.syncFromStore(ctx); err != nil {
		m.logger.Warn("sync after clean failed", "error", err)
	}
}

// want routes a key to its market mux. Keys this adapter cannot serve
// (foreign exchanges, account keys, malformed) are skipped.
func (m *Multiplexer) want(key string) {
	mux, stream, ok := m.route(key)
	if !ok {
		return
	}
	mux.add(stream, key)
}

func (m *Multiplexer) unwant(key string) {
	mux, stream, ok := m.route(key)
	if !ok {
		return
	}
	mux.remove(stream)
}

func (m *Multiplexer) route(key string) (*marketMux, string, bool) {
	k, err := subkey.Parse(key)
	if err != nil {
		m.logger.Debug("unroutable subscription key", "key", key, "error", err)
		return nil, "", false
	}
	if k.Exchange != Exchange || k.Kind == subkey.KindAccount {
		return nil, "", false
	}

	stream, err := k.StreamName()
	if err != nil {
		m.logger.Debug("no stream for key", "key", key, "error", err)
		return nil, "", false
	}

	if k.IsPerp() {
		return m.perp, stream, true
	}
	return m.spot, stream, true
}

// syncFromStore replaces both wanted sets with the store's current keys.
func (m *Multiplexer) syncFromStore(ctx context.Context) error {
	keys, err := m.realtime.ListKeys(ctx)
	if err != nil {
		return err
	}

	spotWanted := make(map[string]string)
	perpWanted := make(map[string]string)
	for _, key := range keys {
		mux, stream, ok := m.route(key)
		if !ok {
			continue
		}
		if mux == m.perp {
			perpWanted[stream] = key
		} else {
			spotWanted[stream] = key
		}
	}

	m.spot.replace(spotWanted)
	m.perp.replace(perpWanted)
	m.logger.Info("subscriptions synced",
		"spot", len(spotWanted),
		"perp", len(perpWanted),
	)
	return nil
}

// deliver writes one upstream event through the realtime store. The row's
// update trigger publishes realtime.update.
func (m *Multiplexer) deliver(ctx context.Context, key string, data json.RawMessage) {
	var et streamEventTime
	_ = json.Unmarshal(data, &et)
	eventTime := et.EventTime
	if eventTime == 0 {
		eventTime = time.Now().UnixMilli()
	}

	if err := m.realtime.UpdatePayload(ctx, key, data, eventTime); err != nil {
		m.logger.Warn("realtime write failed", "key", key, "error", err)
	}
}

// marketMux is the per-market half: one connection, one wanted set.
type marketMux struct {
	market Market
	url    string
	cfg    config.ExchangeConfig
	parent *Multiplexer
	logger *slog.Logger

	mu     sync.Mutex
	wanted map[string]string // stream name -> subscription key
	client *StreamClient
}

func newMarketMux(market Market, url string, cfg config.ExchangeConfig, parent *Multiplexer, logger *slog.Logger) *marketMux {
	return &marketMux{
		market: market,
		url:    url,
		cfg:    cfg,
		parent: parent,
		logger: logger.With("market", string(market)),
		wanted: make(map[string]string),
	}
}

// add registers interest in one stream and subscribes it live when a
// connection is up.
func (x *marketMux) add(stream, key string) {
	x.mu.Lock()
	_, known := x.wanted[stream]
	x.wanted[stream] = key
	client := x.client
	x.mu.Unlock()

	if known || client == nil {
		return
	}
	if err := client.Subscribe([]string{stream}); err != nil {
		x.logger.Warn("live subscribe failed", "stream", stream, "error", err)
	}
}

func (x *marketMux) remove(stream string) {
	x.mu.Lock()
	_, known := x.wanted[stream]
	delete(x.wanted, stream)
	client := x.client
	x.mu.Unlock()

	if !known || client == nil {
		return
	}
	if err := client.Unsubscribe([]string{stream}); err != nil {
		x.logger.Warn("live unsubscribe failed", "stream", stream, "error", err)
	}
}

// replace swaps the wanted set and applies the diff to the live
// connection.
func (x *marketMux) replace(wanted map[string]string) {
	x.mu.Lock()
	var added, removed []string
	for stream := range wanted {
		if _, ok := x.wanted[stream]; !ok {
			added = append(added, stream)
		}
	}
	for stream := range x.wanted {
		if _, ok := wanted[stream]; !ok {
			removed = append(removed, stream)
		}
	}
	x.wanted = wanted
	client := x.client
	x.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.Unsubscribe(removed); err != nil {
		x.logger.Warn("sync unsubscribe failed", "error", err)
	}
	if err := client.Subscribe(added); err != nil {
		x.logger.Warn("sync subscribe failed", "error", err)
	}
}

func (x *marketMux) size() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.wanted)
}

func (x *marketMux) isConnected() bool {
	x.mu.Lock()
	client := x.client
	x.mu.Unlock()
	return client != nil && client.IsConnected()
}

func (x *marketMux) close() {
	x.mu.Lock()
	client := x.client
	x.client = nil
	x.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

// run owns the connection lifecycle: connect, subscribe the wanted set,
// pump messages, and on any failure reconnect with fixed backoff and a
// fresh full sync. Runs until ctx is cancelled.
func (x *marketMux) run(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	backoff := x.cfg.ReconnectBackoff
	if backoff == 0 {
		backoff = 2 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		client := NewStreamClient(StreamConfig{
			URL:          x.url,
			PingInterval: x.cfg.PingInterval,
			PongTimeout:  x.cfg.ReadTimeout,
		}, x.logger)

		if err := client.Connect(ctx); err != nil {
			x.logger.Warn("stream connect failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
				continue
			}
		}

		x.mu.Lock()
		x.client = client
		streams := make([]string, 0, len(x.wanted))
		for stream := range x.wanted {
			streams = append(streams, stream)
		}
		x.mu.Unlock()

		// Re-read the store on every (re)connect so adds and removes that
		// raced the outage are not lost.
		if err := x.parent.syncFromStore(ctx); err != nil {
			x.logger.Warn("sync on connect failed", "error", err)
		}

		if err := client.Subscribe(streams); err != nil {
			x.logger.Warn("resubscribe failed", "streams", len(streams), "error", err)
		} else {
			x.logger.Info("streams subscribed", "count", len(streams))
		}

		x.pump(ctx, client)

		x.mu.Lock()
		if x.client == client {
			x.client = nil
		}
		x.mu.Unlock()
		client.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			x.logger.Info("stream reconnecting")
		}
	}
}

// pump consumes one connection until it fails or the context ends.
func (x *marketMux) pump(ctx context.Context, client *StreamClient) {
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-client.Errors():
			x.logger.Warn("stream failed", "error", err)
			return

		case msg := <-client.Messages():
			x.mu.Lock()
			key, ok := x.wanted[msg.Stream]
			x.mu.Unlock()
			if !ok {
				// Late frame for a stream already unsubscribed.
				continue
			}
			x.parent.deliver(ctx, key, msg.Data)
		}
	}
}
