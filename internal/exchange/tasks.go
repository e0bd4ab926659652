package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// Account subscription keys. The adapter refreshes these realtime rows
// whenever an account task runs, so subscribed sessions see balance
// changes without polling.
const (
	SpotAccountKey    = Exchange + ":SPOT@ACCOUNT"
	FuturesAccountKey = Exchange + ":FUTURES.PERP@ACCOUNT"
)

// RunnerStores bundles the repositories the task runner writes.
type RunnerStores struct {
	Tasks    *store.TaskStore
	Klines   *store.KlineStore
	Accounts *store.AccountStore
	Realtime *store.RealtimeStore
	Symbols  *store.ExchangeInfoStore
}

// TaskRunner claims queue tasks and executes them against the exchange.
// The claim is a compare-and-swap, so duplicate task.new deliveries and
// competing adapter instances are both harmless.
type TaskRunner struct {
	cfg    config.TasksConfig
	rest   *RESTClient
	stores RunnerStores
	logger *slog.Logger

	queue chan int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTaskRunner creates a TaskRunner.
func NewTaskRunner(cfg config.TasksConfig, rest *RESTClient, stores RunnerStores, logger *slog.Logger) *TaskRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskRunner{
		cfg:    cfg,
		rest:   rest,
		stores: stores,
		logger: logger.With("component", "task_runner"),
		queue:  make(chan int64, 256),
	}
}

// Register wires the runner onto the listener. Must run before the
// listener starts.
func (r *TaskRunner) Register(l notify.Listener) {
	l.Handle(notify.ChanTaskNew, r.onTaskNew)
}

// Start launches the workers and sweeps tasks enqueued while the adapter
// was down.
func (r *TaskRunner) Start(ctx context.Context) error {
	r.ctx, r.cancel = context.WithCancel(ctx)

	workers := r.cfg.Concurrency
	if workers <= 0 {
		workers = 4
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}

	ids, err := r.stores.Tasks.PendingIDs(r.ctx, cap(r.queue))
	if err != nil {
		return fmt.Errorf("sweep pending tasks: %w", err)
	}
	for _, id := range ids {
		r.enqueue(id)
	}

	r.logger.Info("task runner started", "workers", workers, "swept", len(ids))
	return nil
}

// Stop drains in-flight work within the context deadline.
func (r *TaskRunner) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("task runner stopped")
	case <-ctx.Done():
		r.logger.Warn("task runner stop timed out")
	}
	return nil
}

func (r *TaskRunner) onTaskNew(ctx context.Context, env notify.Envelope) {
	var ev notify.TaskEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		r.logger.Warn("bad task event", "error", err)
		return
	}

	select {
	case r.queue <- ev.ID:
	case <-ctx.Done():
	}
}

func (r *TaskRunner) enqueue(id int64) {
	select {
	case r.queue <- id:
	default:
		// The sweep on next start picks it up; it stays pending.
		r.logger.Warn("task queue full", "task", id)
	}
}

func (r *TaskRunner) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case id := <-r.queue:
			r.execute(r.ctx, id)
		}
	}
}

// execute claims and runs one task, then writes the terminal status. The
// status transition trigger publishes task.completed or task.failed.
func (r *TaskRunner) execute(ctx context.Context, id int64) {
	claimed, err := r.stores.Tasks.Claim(ctx, id)
	if err != nil {
		r.logger.Error("claim failed", "task", id, "error", err)
		return
	}
	if !claimed {
		return
	}

	task, err := r.stores.Tasks.Get(ctx, id)
	if err != nil {
		r.logger.Error("load claimed task failed", "task", id, "error", err)
		return
	}

	start := time.Now()
	result, err := r.run(ctx, task)
	if err != nil {
		r.logger.Warn("task failed",
			"task", id,
			"type", task.Type,
			"elapsed", time.Since(start),
			"error", err,
		)
		if ferr := r.stores.Tasks.Fail(ctx, id, err.Error()); ferr != nil {
			r.logger.Error("record failure failed", "task", id, "error", ferr)
		}
		return
	}

	if cerr := r.stores.Tasks.Complete(ctx, id, result); cerr != nil {
		r.logger.Error("record completion failed", "task", id, "error", cerr)
		return
	}
	r.logger.Debug("task completed", "task", id, "type", task.Type, "elapsed", time.Since(start))
}

// run dispatches one claimed task. Bulk outputs land in side tables and
// return a nil result; small outputs return inline.
func (r *TaskRunner) run(ctx context.Context, task *model.Task) (json.RawMessage, error) {
	switch task.Type {
	case model.TaskGetKlines:
		return nil, r.runKlines(ctx, task.Payload)
	case model.TaskGetQuotes:
		return r.runQuotes(ctx, task.Payload)
	case model.TaskGetSpotAccount:
		return r.runAccount(ctx, MarketSpot)
	case model.TaskGetFuturesAccount:
		return r.runAccount(ctx, MarketFutures)
	case model.TaskGetSearchSymbols:
		return r.runSearchSymbols(ctx, task.Payload)
	case model.TaskGetResolveSymbol:
		return r.runResolveSymbol(ctx, task.Payload)
	default:
		return nil, fmt.Errorf("unknown task type %q", task.Type)
	}
}

// runKlines pages through the requested range and upserts every bar into
// history. The result stays nil: the requester re-reads the table.
func (r *TaskRunner) runKlines(ctx context.Context, payload json.RawMessage) error {
	var params model.KlinesTaskParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return fmt.Errorf("bad klines params: %w", err)
	}

	raw, market, err := parseSymbol(params.Symbol)
	if err != nil {
		return err
	}
	interval, err := subkey.UpstreamInterval(params.Interval)
	if err != nil {
		return err
	}
	period, err := subkey.Period(params.Interval)
	if err != nil {
		return err
	}

	page := params.Limit
	if page <= 0 {
		page = r.cfg.KlinePage
	}
	if page <= 0 {
		page = 1000
	}

	cursor := params.FromTime
	for cursor <= params.ToTime {
		klines, err := r.rest.Klines(ctx, market, params.Symbol, raw,
			params.Interval, interval, cursor, params.ToTime, page)
		if err != nil {
			return err
		}
		if len(klines) == 0 {
			break
		}

		if err := r.stores.Klines.UpsertBatch(ctx, klines); err != nil {
			return err
		}

		last := klines[len(klines)-1].OpenTime
		if len(klines) < page {
			break
		}
		cursor = last + period.Milliseconds()
	}
	return nil
}

// runQuotes gathers consolidated tickers across both markets and returns
// them inline in the client's wire shape.
func (r *TaskRunner) runQuotes(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params model.QuotesTaskParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("bad quotes params: %w", err)
	}

	var spotRaw, perpRaw []string
	fullName := make(map[string]string) // raw -> requested form
	for _, sym := range params.Symbols {
		raw, market, err := parseSymbol(sym)
		if err != nil {
			return nil, err
		}
		fullName[raw] = sym
		if market == MarketFutures {
			perpRaw = append(perpRaw, raw)
		} else {
			spotRaw = append(spotRaw, raw)
		}
	}

	var tickers []restTicker
	if len(spotRaw) > 0 {
		ts, err := r.rest.SpotTickers(ctx, spotRaw)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, ts...)
	}
	if len(perpRaw) > 0 {
		ts, err := r.rest.FuturesTickers(ctx, perpRaw)
		if err != nil {
			return nil, err
		}
		tickers = append(tickers, ts...)
	}

	quotes := make([]protocol.Quote, 0, len(tickers))
	for _, t := range tickers {
		name := fullName[t.Symbol]
		if name == "" {
			name = Exchange + ":" + t.Symbol
		}
		quotes = append(quotes, protocol.Quote{
			Symbol:        name,
			Price:         parseDecimal(t.LastPrice),
			Change:        parseDecimal(t.PriceChange),
			ChangePercent: parseDecimal(t.ChangePercent),
			High:          parseDecimal(t.HighPrice),
			Low:           parseDecimal(t.LowPrice),
			Volume:        parseDecimal(t.Volume),
			Bid:           parseDecimal(t.BidPrice),
			Ask:           parseDecimal(t.AskPrice),
		})
	}

	return json.Marshal(protocol.QuotesData{Quotes: quotes})
}

// runAccount snapshots one account, stores it, and refreshes the matching
// realtime row for push subscribers.
func (r *TaskRunner) runAccount(ctx context.Context, market Market) (json.RawMessage, error) {
	body, updateTime, err := r.rest.Account(ctx, market)
	if err != nil {
		return nil, err
	}

	accountType := "spot"
	key := SpotAccountKey
	if market == MarketFutures {
		accountType = "futures"
		key = FuturesAccountKey
	}

	if err := r.stores.Accounts.Upsert(ctx, accountType, body, updateTime); err != nil {
		return nil, err
	}
	// No-op unless some session subscribed the account key.
	if err := r.stores.Realtime.UpdatePayload(ctx, key, body, updateTime); err != nil {
		r.logger.Warn("account realtime write failed", "key", key, "error", err)
	}

	return json.Marshal(map[string]any{
		"account_type": accountType,
		"update_time":  updateTime,
	})
}

func (r *TaskRunner) runSearchSymbols(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params model.SearchSymbolsTaskParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("bad search params: %w", err)
	}

	infos, err := r.stores.Symbols.Search(ctx, params.Query, params.Exchange, params.Type, params.Limit)
	if err != nil {
		return nil, err
	}
	return json.Marshal(map[string]any{"symbols": infos})
}

func (r *TaskRunner) runResolveSymbol(ctx context.Context, payload json.RawMessage) (json.RawMessage, error) {
	var params model.ResolveSymbolTaskParams
	if err := json.Unmarshal(payload, &params); err != nil {
		return nil, fmt.Errorf("bad resolve params: %w", err)
	}

	info, err := r.stores.Symbols.Resolve(ctx, params.Symbol)
	if err != nil {
		return nil, err
	}
	return json.Marshal(info)
}

// parseSymbol splits "BINANCE:BTCUSDT[.PERP]" into the exchange-native
// symbol and its market.
func parseSymbol(symbol string) (raw string, market Market, err error) {
	colon := strings.Index(symbol, ":")
	if colon <= 0 || colon == len(symbol)-1 {
		return "", "", fmt.Errorf("%w: %q", subkey.ErrMalformed, symbol)
	}
	if symbol[:colon] != Exchange {
		return "", "", fmt.Errorf("unsupported exchange in %q", symbol)
	}

	raw = symbol[colon+1:]
	market = MarketSpot
	if dot := strings.Index(raw, "."); dot >= 0 {
		if strings.EqualFold(raw[dot+1:], subkey.PerpSuffix) {
			market = MarketFutures
		}
		raw = raw[:dot]
	}
	return raw, market, nil
}

func parseDecimal(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
