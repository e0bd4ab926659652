package signal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/signal/strategy"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// WorkerStores bundles the repositories the worker uses.
type WorkerStores struct {
	Alerts   *store.AlertStore
	Signals  *store.SignalStore
	Realtime *store.RealtimeStore
}

// Worker is the signal service: one series state per distinct
// (symbol, interval) among the enabled alert configs, fed by
// realtime.update events and evaluated per alert trigger policy.
type Worker struct {
	cfg        config.WorkerConfig
	stores     WorkerStores
	backfiller *Backfiller
	logger     *slog.Logger

	// evalSem caps concurrent strategy evaluations across all series.
	evalSem chan struct{}

	mu     sync.Mutex
	series map[string]*series   // kline key -> series
	alerts map[string]*alertRef // alert id -> ref

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// alertRef is one live alert binding.
type alertRef struct {
	cfg  *model.AlertConfig
	gate *Gate
	key  string
}

// series is the shared state of one kline subscription. Its mutex covers
// the buffer, the gates of every bound alert, and the filling flag.
type series struct {
	key        string
	symbol     string
	resolution string

	mu      sync.Mutex
	buf     *Buffer
	filling bool
	alerts  map[string]struct{}
}

// NewWorker creates a Worker.
func NewWorker(cfg config.WorkerConfig, stores WorkerStores, backfiller *Backfiller, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	evalSlots := cfg.Signals.EvalConcurrency
	if evalSlots < 1 {
		evalSlots = 1
	}
	return &Worker{
		cfg:        cfg,
		stores:     stores,
		backfiller: backfiller,
		logger:     logger.With("component", "signal_worker"),
		evalSem:    make(chan struct{}, evalSlots),
		series:     make(map[string]*series),
		alerts:     make(map[string]*alertRef),
	}
}

// Register wires the worker's handlers onto the listener. Must run before
// the listener starts.
func (w *Worker) Register(l notify.Listener) {
	l.Handle(notify.ChanRealtimeUpdate, w.onRealtime)
	l.Handle(notify.ChanAlertConfigNew, w.onAlertChanged)
	l.Handle(notify.ChanAlertConfigUpdate, w.onAlertChanged)
	l.Handle(notify.ChanAlertConfigDelete, w.onAlertDeleted)
}

// Start cleans rows left by a previous run and binds every enabled alert.
func (w *Worker) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	removed, err := w.stores.Realtime.Clean(w.ctx, w.cfg.Instance.ID)
	if err != nil {
		return err
	}
	if removed > 0 {
		w.logger.Info("cleaned stale subscriptions", "removed", removed)
	}

	configs, err := w.stores.Alerts.List(w.ctx, true)
	if err != nil {
		return err
	}
	for _, cfg := range configs {
		w.bind(cfg)
	}

	w.logger.Info("signal worker started", "alerts", len(configs), "strategies", strategy.Names())
	return nil
}

// Stop releases every subscription.
func (w *Worker) Stop(ctx context.Context) error {
	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("signal worker stop timed out")
	}

	w.mu.Lock()
	keys := make([]string, 0, len(w.series))
	for key := range w.series {
		keys = append(keys, key)
	}
	w.mu.Unlock()

	for _, key := range keys {
		if err := w.stores.Realtime.Unregister(ctx, key, w.cfg.Instance.ID); err != nil {
			w.logger.Warn("unregister failed", "key", key, "error", err)
		}
	}

	w.logger.Info("signal worker stopped")
	return nil
}

// bind attaches one enabled config, creating its series on first use.
func (w *Worker) bind(cfg *model.AlertConfig) {
	if _, err := strategy.Lookup(cfg.StrategyType); err != nil {
		w.logger.Warn("alert references unknown strategy, skipping",
			"alert", cfg.ID,
			"strategy", cfg.StrategyType,
		)
		return
	}

	key := subkey.ForKline(cfg.Symbol, cfg.Interval)

	var emptied string
	w.mu.Lock()
	if old, ok := w.alerts[cfg.ID]; ok && old.key != key {
		emptied = w.detachLocked(cfg.ID)
	}
	s, ok := w.series[key]
	if !ok {
		buf, err := NewBuffer(w.cfg.Signals.BufferSize, cfg.Interval, w.cfg.Signals.GapFactor)
		if err != nil {
			w.mu.Unlock()
			w.logger.Warn("alert has invalid interval, skipping",
				"alert", cfg.ID,
				"interval", cfg.Interval,
				"error", err,
			)
			return
		}
		s = &series{
			key:        key,
			symbol:     cfg.Symbol,
			resolution: cfg.Interval,
			buf:        buf,
			alerts:     make(map[string]struct{}),
		}
		w.series[key] = s
	}
	s.alerts[cfg.ID] = struct{}{}
	ref, existing := w.alerts[cfg.ID]
	if existing {
		ref.cfg = cfg // keep the gate: an update must not re-fire once_only
	} else {
		w.alerts[cfg.ID] = &alertRef{cfg: cfg, gate: NewGate(cfg.TriggerType), key: key}
	}
	isNew := !ok
	w.mu.Unlock()

	if emptied != "" {
		if err := w.stores.Realtime.Unregister(w.ctx, emptied, w.cfg.Instance.ID); err != nil {
			w.logger.Warn("unregister failed", "key", emptied, "error", err)
		}
	}
	if isNew {
		if err := w.stores.Realtime.Register(w.ctx, key, string(subkey.KindKline), w.cfg.Instance.ID); err != nil {
			w.logger.Error("register subscription failed", "key", key, "error", err)
		}
		w.fill(s)
	}

	w.logger.Info("alert bound", "alert", cfg.ID, "key", key, "strategy", cfg.StrategyType)
}

// detachLocked removes an alert binding; callers hold w.mu. Returns the
// series key that became empty, if any.
func (w *Worker) detachLocked(alertID string) (emptied string) {
	ref, ok := w.alerts[alertID]
	if !ok {
		return ""
	}
	delete(w.alerts, alertID)

	s, ok := w.series[ref.key]
	if !ok {
		return ""
	}
	delete(s.alerts, alertID)
	if len(s.alerts) == 0 {
		delete(w.series, ref.key)
		return ref.key
	}
	return ""
}

func (w *Worker) unbind(alertID string) {
	w.mu.Lock()
	emptied := w.detachLocked(alertID)
	w.mu.Unlock()

	if emptied != "" {
		if err := w.stores.Realtime.Unregister(w.ctx, emptied, w.cfg.Instance.ID); err != nil {
			w.logger.Warn("unregister failed", "key", emptied, "error", err)
		}
	}
	w.logger.Info("alert unbound", "alert", alertID)
}

// onAlertChanged handles alert_config.new and .update: re-binding is
// idempotent, and a disabled config unbinds.
func (w *Worker) onAlertChanged(_ context.Context, env notify.Envelope) {
	var ev notify.AlertConfigEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		w.logger.Warn("bad alert config event", "error", err)
		return
	}

	if !ev.IsEnabled {
		w.unbind(ev.ID)
		return
	}
	w.bind(&model.AlertConfig{
		ID:           ev.ID,
		Name:         ev.Name,
		StrategyType: ev.StrategyType,
		Symbol:       ev.Symbol,
		Interval:     ev.Interval,
		TriggerType:  model.TriggerType(ev.TriggerType),
		Params:       ev.Params,
		IsEnabled:    ev.IsEnabled,
		CreatedBy:    ev.CreatedBy,
	})
}

func (w *Worker) onAlertDeleted(_ context.Context, env notify.Envelope) {
	var ev notify.AlertConfigEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		w.logger.Warn("bad alert config event", "error", err)
		return
	}
	w.unbind(ev.ID)
}

// wsKlinePayload is the upstream kline stream event held in realtime_data.
type wsKlinePayload struct {
	Kline struct {
		OpenTime    int64  `json:"t"`
		CloseTime   int64  `json:"T"`
		Open        string `json:"o"`
		High        string `json:"h"`
		Low         string `json:"l"`
		Close       string `json:"c"`
		Volume      string `json:"v"`
		QuoteVolume string `json:"q"`
		Trades      int64  `json:"n"`
		TakerBase   string `json:"V"`
		TakerQuote  string `json:"Q"`
		Closed      bool   `json:"x"`
	} `json:"k"`
}

// onRealtime folds a live kline into its series and evaluates the bound
// alerts. Updates for series currently back-filling are dropped; the fill
// re-reads history afterwards.
func (w *Worker) onRealtime(_ context.Context, env notify.Envelope) {
	var ev notify.RealtimeEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		w.logger.Warn("bad realtime event", "error", err)
		return
	}

	w.mu.Lock()
	s, ok := w.series[ev.SubscriptionKey]
	w.mu.Unlock()
	if !ok {
		return
	}

	var payload wsKlinePayload
	if err := json.Unmarshal(ev.Data, &payload); err != nil || payload.Kline.OpenTime == 0 {
		w.logger.Warn("unparseable kline payload", "key", ev.SubscriptionKey)
		return
	}
	k := payload.Kline

	bar := model.Kline{
		Symbol:             s.symbol,
		Interval:           s.resolution,
		OpenTime:           k.OpenTime,
		CloseTime:          k.CloseTime,
		Open:               atof(k.Open),
		High:               atof(k.High),
		Low:                atof(k.Low),
		Close:              atof(k.Close),
		Volume:             atof(k.Volume),
		QuoteVolume:        atof(k.QuoteVolume),
		Trades:             k.Trades,
		TakerBuyBaseVolume: atof(k.TakerBase),
		TakerBuyQuoteVol:   atof(k.TakerQuote),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.filling {
		return
	}

	switch s.buf.Apply(bar) {
	case ApplyStale:
		return
	case ApplyGap:
		w.logger.Warn("gap detected, refilling series",
			"key", s.key,
			"bar_open", bar.OpenTime,
		)
		w.fillLocked(s)
		return
	}

	if !s.buf.Valid() {
		if !s.filling {
			w.fillLocked(s)
		}
		return
	}

	w.evaluateLocked(s, bar, barClosed(k.Closed, k.CloseTime, time.Now()))
}

// barClosed reports whether a bar counts as closed: either the upstream
// close flag is set, or the bar's close time has already passed. The
// fallback keeps close-triggered alerts alive when the final update of a
// bar is lost.
func barClosed(explicit bool, closeTime int64, now time.Time) bool {
	return explicit || now.UnixMilli() > closeTime
}

// evaluateLocked runs every bound alert against the series buffer.
// Callers hold s.mu.
func (w *Worker) evaluateLocked(s *series, bar model.Kline, closed bool) {
	now := time.Now()
	bars := s.buf.Bars()

	w.mu.Lock()
	refs := make([]*alertRef, 0, len(s.alerts))
	for id := range s.alerts {
		if ref, ok := w.alerts[id]; ok {
			refs = append(refs, ref)
		}
	}
	w.mu.Unlock()

	for _, ref := range refs {
		if !ref.gate.Allow(bar, closed, now) {
			continue
		}

		strat, err := strategy.Lookup(ref.cfg.StrategyType)
		if err != nil {
			continue
		}
		w.evalSem <- struct{}{}
		verdict, err := strat.Evaluate(bars, ref.cfg.Params)
		<-w.evalSem
		if err != nil {
			w.logger.Warn("evaluation failed",
				"alert", ref.cfg.ID,
				"strategy", ref.cfg.StrategyType,
				"error", err,
			)
			ref.gate.Mark(bar, closed, now)
			continue
		}

		value := verdict.Last()
		if value != model.SignalNone {
			sig := &model.Signal{
				AlertID:      ref.cfg.ID,
				StrategyType: ref.cfg.StrategyType,
				Symbol:       ref.cfg.Symbol,
				Interval:     ref.cfg.Interval,
				TriggerType:  ref.cfg.TriggerType,
				Value:        value.Bool(),
				Reason:       value.String() + " on bar " + strconv.FormatInt(bar.OpenTime, 10),
				ComputedAt:   now.UnixMilli(),
				SourceKey:    s.key,
			}
			if _, err := w.stores.Signals.Insert(w.ctx, sig); err != nil {
				w.logger.Error("persist signal failed", "alert", ref.cfg.ID, "error", err)
			} else {
				w.logger.Info("signal",
					"alert", ref.cfg.ID,
					"strategy", ref.cfg.StrategyType,
					"value", value.String(),
					"bar_open", bar.OpenTime,
				)
			}
		}
		ref.gate.Mark(bar, closed, now)
	}
}

// fill launches an asynchronous back-fill for a series.
func (w *Worker) fill(s *series) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.filling {
		w.fillLocked(s)
	}
}

// fillLocked marks the series filling and spawns the fill goroutine.
// Callers hold s.mu.
func (w *Worker) fillLocked(s *series) {
	s.filling = true
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		bars, err := w.backfiller.Fill(w.ctx, s.symbol, s.resolution, w.cfg.Signals.BufferSize)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.filling = false
		if err != nil {
			if w.ctx.Err() == nil {
				w.logger.Error("backfill failed", "key", s.key, "error", err)
			}
			return
		}
		s.buf.Load(bars)
	}()
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
