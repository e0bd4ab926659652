package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// SupportedResolutions is the chart resolution set advertised by
// GET_CONFIG.
var SupportedResolutions = []string{"1", "5", "15", "60", "240", "1D", "1W", "1M"}

// RouterStores bundles the repositories the router consults.
type RouterStores struct {
	Klines   *store.KlineStore
	Alerts   *store.AlertStore
	Signals  *store.SignalStore
	Accounts *store.AccountStore
	Symbols  *store.ExchangeInfoStore
	Tasks    *store.TaskStore
}

// Router parses framed requests, emits the unconditional ACK, and routes
// each request either to an in-process handler or onto the task queue.
// It is the single place that converts internal errors to ERROR frames.
type Router struct {
	hub    *Hub
	reg    *Registry
	stores RouterStores
	logger *slog.Logger
}

// NewRouter creates a Router.
func NewRouter(hub *Hub, reg *Registry, stores RouterStores, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		hub:    hub,
		reg:    reg,
		stores: stores,
		logger: logger.With("component", "router"),
	}
}

// HandleFrame processes one inbound frame through the three-phase
// sequence: ACK immediately after parse, then either a synchronous
// terminal frame or a task enqueue whose completion the dispatcher
// answers later.
func (r *Router) HandleFrame(ctx context.Context, s *Session, data []byte) {
	var req protocol.Request
	if err := json.Unmarshal(data, &req); err != nil || req.Type == "" {
		s.Send(protocol.ErrorFrame("", protocol.CodeInvalidMessage, "malformed frame"))
		return
	}

	// Phase 1 is unconditional: even a cache hit answers the ACK first.
	s.Send(protocol.Ack(req.RequestID))
	r.hub.TrackRequest(req.RequestID, s.ID)

	frame, async := r.dispatch(ctx, s, &req)
	if async {
		return
	}

	s.Send(frame)
	r.hub.ClearRequest(req.RequestID)
}

// dispatch returns the terminal frame, or async=true when the terminal
// frame will come from the dispatcher on task completion.
func (r *Router) dispatch(ctx context.Context, s *Session, req *protocol.Request) (protocol.Frame, bool) {
	switch req.Type {
	case protocol.ReqGetConfig:
		return r.handleGetConfig(req), false
	case protocol.ReqGetServerTime:
		return protocol.Success(protocol.TypeServerTimeData, req.RequestID,
			protocol.ServerTimeBody{ServerTime: time.Now().UnixMilli()}), false
	case protocol.ReqGetMetrics:
		return r.handleGetMetrics(req), false
	case protocol.ReqSubscribe:
		return r.handleSubscribe(ctx, s, req), false
	case protocol.ReqUnsubscribe:
		return r.handleUnsubscribe(ctx, s, req), false
	case protocol.ReqGetKlines:
		return r.handleGetKlines(ctx, s, req)
	case protocol.ReqGetQuotes:
		return r.handleGetQuotes(ctx, s, req)
	case protocol.ReqGetSpotAccount:
		return r.enqueueTask(ctx, s, req, model.TaskGetSpotAccount, struct{}{})
	case protocol.ReqGetFuturesAccount:
		return r.enqueueTask(ctx, s, req, model.TaskGetFuturesAccount, struct{}{})
	case protocol.ReqGetSearchSymbols:
		return r.handleSearchSymbols(ctx, req), false
	case protocol.ReqGetResolveSymbol:
		return r.handleResolveSymbol(ctx, req), false
	case protocol.ReqCreateAlertConfig:
		return r.handleCreateAlert(ctx, req), false
	case protocol.ReqListAlertConfigs:
		return r.handleListAlerts(ctx, req), false
	case protocol.ReqUpdateAlertConfig:
		return r.handleUpdateAlert(ctx, req), false
	case protocol.ReqDeleteAlertConfig:
		return r.handleAlertByID(ctx, req, "delete"), false
	case protocol.ReqEnableAlertConfig:
		return r.handleAlertByID(ctx, req, "enable"), false
	case protocol.ReqDisableAlertConfig:
		return r.handleAlertByID(ctx, req, "disable"), false
	case protocol.ReqListSignals:
		return r.handleListSignals(ctx, req), false
	default:
		return protocol.ErrorFrame(req.RequestID, protocol.CodeUnknownType,
			fmt.Sprintf("unknown request type %q", req.Type)), false
	}
}

func (r *Router) handleGetConfig(req *protocol.Request) protocol.Frame {
	return protocol.Success(protocol.TypeConfigData, req.RequestID, protocol.ConfigBody{
		Type:                 "config",
		SupportedResolutions: SupportedResolutions,
		SupportsSearch:       true,
		SupportsGroupRequest: false,
		Exchanges: []protocol.ExchangeDescriptor{
			{Name: "BINANCE", Value: "BINANCE", Desc: "Binance spot and perpetual futures"},
		},
	})
}

func (r *Router) handleGetMetrics(req *protocol.Request) protocol.Frame {
	hs := r.hub.Stats()
	return protocol.Success(protocol.TypeMetricsData, req.RequestID, protocol.MetricsData{
		Sessions:      hs.Sessions,
		Subscriptions: r.reg.Size(),
		PendingTasks:  hs.PendingTasks,
		Broadcasts:    hs.Broadcasts,
		FramesSent:    hs.FramesSent,
		FramesDropped: hs.FramesDropped,
		UptimeSeconds: int64(time.Since(hs.StartedAt).Seconds()),
	})
}

func (r *Router) handleSubscribe(ctx context.Context, s *Session, req *protocol.Request) protocol.Frame {
	var body protocol.SubscribeBody
	if err := json.Unmarshal(req.Data, &body); err != nil || len(body.Subscriptions) == 0 {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			"subscriptions must be a non-empty array")
	}

	for _, key := range body.Subscriptions {
		if err := r.reg.Subscribe(ctx, s.ID, key); err != nil {
			r.logger.Warn("subscribe failed", "session", s.ID, "key", key, "error", err)
			return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
				fmt.Sprintf("subscribe %s: %v", key, err))
		}
	}

	return protocol.Success(protocol.TypeSubscriptionData, req.RequestID, protocol.SubscriptionData{
		Action:        "subscribe",
		Subscriptions: body.Subscriptions,
	})
}

func (r *Router) handleUnsubscribe(ctx context.Context, s *Session, req *protocol.Request) protocol.Frame {
	var body protocol.SubscribeBody
	if err := json.Unmarshal(req.Data, &body); err != nil {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "malformed unsubscribe body")
	}

	keys := body.Subscriptions
	if body.All {
		keys = r.reg.Keys(s.ID)
	}
	if len(keys) == 0 && !body.All {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			"subscriptions must be a non-empty array or all must be true")
	}

	for _, key := range keys {
		if err := r.reg.Unsubscribe(ctx, s.ID, key); err != nil {
			r.logger.Warn("unsubscribe failed", "session", s.ID, "key", key, "error", err)
		}
	}

	return protocol.Success(protocol.TypeSubscriptionData, req.RequestID, protocol.SubscriptionData{
		Action:        "unsubscribe",
		Subscriptions: keys,
	})
}

// handleGetKlines probes the history table at both aligned endpoints and
// answers synchronously on a hit; otherwise the range is fetched through a
// get_klines task and pushed on completion.
func (r *Router) handleGetKlines(ctx context.Context, s *Session, req *protocol.Request) (protocol.Frame, bool) {
	var body protocol.KlinesBody
	if err := json.Unmarshal(req.Data, &body); err != nil ||
		body.Symbol == "" || body.Interval == "" || body.FromTime <= 0 || body.ToTime < body.FromTime {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			"symbol, interval, from_time and to_time are required"), false
	}

	from, err := subkey.AlignTime(body.FromTime, body.Interval)
	if err != nil {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, err.Error()), false
	}
	to, _ := subkey.AlignTime(body.ToTime, body.Interval)

	hit, err := r.stores.Klines.HasEndpoints(ctx, body.Symbol, body.Interval, from, to)
	if err != nil {
		return r.internalError(req, err), false
	}

	if hit {
		bars, err := r.klineBars(ctx, body.Symbol, body.Interval, from, to)
		if err != nil {
			return r.internalError(req, err), false
		}
		return protocol.Success(protocol.TypeKlinesData, req.RequestID, protocol.KlinesData{
			Symbol:   body.Symbol,
			Interval: body.Interval,
			Bars:     bars,
		}), false
	}

	return r.enqueueTask(ctx, s, req, model.TaskGetKlines, model.KlinesTaskParams{
		Symbol:   body.Symbol,
		Interval: body.Interval,
		FromTime: from,
		ToTime:   to,
	})
}

func (r *Router) handleGetQuotes(ctx context.Context, s *Session, req *protocol.Request) (protocol.Frame, bool) {
	var body protocol.QuotesBody
	if err := json.Unmarshal(req.Data, &body); err != nil || len(body.Symbols) == 0 {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			"symbols must be a non-empty array"), false
	}
	return r.enqueueTask(ctx, s, req, model.TaskGetQuotes, model.QuotesTaskParams{Symbols: body.Symbols})
}

// enqueueTask inserts a task row and correlates it back to the session.
// The terminal frame is produced by the dispatcher when task.completed or
// task.failed arrives.
func (r *Router) enqueueTask(ctx context.Context, s *Session, req *protocol.Request, typ model.TaskType, params any) (protocol.Frame, bool) {
	raw, err := json.Marshal(params)
	if err != nil {
		return r.internalError(req, err), false
	}
	id, err := r.stores.Tasks.Insert(ctx, typ, params)
	if err != nil {
		return r.internalError(req, err), false
	}
	r.hub.TrackTask(id, s.ID, req.RequestID, req.Type, raw)
	r.logger.Debug("task enqueued", "task", id, "type", typ, "session", s.ID)
	return protocol.Frame{}, true
}

func (r *Router) handleSearchSymbols(ctx context.Context, req *protocol.Request) protocol.Frame {
	var body protocol.SearchSymbolsBody
	if err := json.Unmarshal(req.Data, &body); err != nil {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "malformed search body")
	}

	ok, err := r.stores.Symbols.Initialized(ctx)
	if err != nil {
		return r.internalError(req, err)
	}
	if !ok {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeNotInitialized,
			"exchange info not loaded yet, retry shortly")
	}

	infos, err := r.stores.Symbols.Search(ctx, body.Query, body.Exchange, body.Type, body.Limit)
	if err != nil {
		return r.internalError(req, err)
	}
	return protocol.Success(protocol.TypeSearchSymbolsData, req.RequestID, map[string]any{
		"symbols": symbolViews(infos),
	})
}

func (r *Router) handleResolveSymbol(ctx context.Context, req *protocol.Request) protocol.Frame {
	var body protocol.ResolveSymbolBody
	if err := json.Unmarshal(req.Data, &body); err != nil || body.Symbol == "" {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "symbol is required")
	}

	info, err := r.stores.Symbols.Resolve(ctx, body.Symbol)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeSymbolNotFound,
			fmt.Sprintf("symbol %s not found", body.Symbol))
	}
	if err != nil {
		return r.internalError(req, err)
	}
	return protocol.Success(protocol.TypeSymbolData, req.RequestID, symbolView(*info))
}

func (r *Router) handleCreateAlert(ctx context.Context, req *protocol.Request) protocol.Frame {
	cfg, frame := r.parseAlertBody(req)
	if frame != nil {
		return *frame
	}
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}

	if err := r.stores.Alerts.Create(ctx, cfg); err != nil {
		return r.internalError(req, err)
	}

	created, err := r.stores.Alerts.Get(ctx, cfg.ID)
	if err != nil {
		return r.internalError(req, err)
	}
	return protocol.Success(protocol.TypeAlertConfigData, req.RequestID, alertView(created))
}

func (r *Router) handleUpdateAlert(ctx context.Context, req *protocol.Request) protocol.Frame {
	cfg, frame := r.parseAlertBody(req)
	if frame != nil {
		return *frame
	}
	if cfg.ID == "" {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "id is required")
	}

	err := r.stores.Alerts.Update(ctx, cfg)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeAlertNotFound,
			fmt.Sprintf("alert config %s not found", cfg.ID))
	}
	if err != nil {
		return r.internalError(req, err)
	}

	updated, err := r.stores.Alerts.Get(ctx, cfg.ID)
	if err != nil {
		return r.internalError(req, err)
	}
	return protocol.Success(protocol.TypeAlertConfigData, req.RequestID, alertView(updated))
}

func (r *Router) handleAlertByID(ctx context.Context, req *protocol.Request, action string) protocol.Frame {
	var body protocol.AlertIDBody
	if err := json.Unmarshal(req.Data, &body); err != nil || body.ID == "" {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "id is required")
	}

	var err error
	switch action {
	case "delete":
		err = r.stores.Alerts.Delete(ctx, body.ID)
	case "enable":
		err = r.stores.Alerts.SetEnabled(ctx, body.ID, true)
	case "disable":
		err = r.stores.Alerts.SetEnabled(ctx, body.ID, false)
	}
	if errors.Is(err, store.ErrNotFound) {
		return protocol.ErrorFrame(req.RequestID, protocol.CodeAlertNotFound,
			fmt.Sprintf("alert config %s not found", body.ID))
	}
	if err != nil {
		return r.internalError(req, err)
	}

	if action == "delete" {
		return protocol.Success(protocol.TypeAlertConfigData, req.RequestID,
			map[string]any{"id": body.ID, "deleted": true})
	}
	cfg, err := r.stores.Alerts.Get(ctx, body.ID)
	if err != nil {
		return r.internalError(req, err)
	}
	return protocol.Success(protocol.TypeAlertConfigData, req.RequestID, alertView(cfg))
}

func (r *Router) handleListAlerts(ctx context.Context, req *protocol.Request) protocol.Frame {
	configs, err := r.stores.Alerts.List(ctx, false)
	if err != nil {
		return r.internalError(req, err)
	}
	views := make([]map[string]any, 0, len(configs))
	for _, c := range configs {
		views = append(views, alertView(c))
	}
	return protocol.Success(protocol.TypeAlertConfigData, req.RequestID,
		map[string]any{"configs": views})
}

func (r *Router) handleListSignals(ctx context.Context, req *protocol.Request) protocol.Frame {
	var body protocol.ListSignalsBody
	if len(req.Data) > 0 {
		if err := json.Unmarshal(req.Data, &body); err != nil {
			return protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "malformed list body")
		}
	}

	signals, err := r.stores.Signals.List(ctx, body.AlertID, body.Limit)
	if err != nil {
		return r.internalError(req, err)
	}
	views := make([]map[string]any, 0, len(signals))
	for _, sig := range signals {
		views = append(views, signalView(sig))
	}
	return protocol.Success(protocol.TypeSignalData, req.RequestID,
		map[string]any{"signals": views})
}

func (r *Router) parseAlertBody(req *protocol.Request) (*model.AlertConfig, *protocol.Frame) {
	var body protocol.AlertConfigBody
	if err := json.Unmarshal(req.Data, &body); err != nil {
		f := protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, "malformed alert config body")
		return nil, &f
	}
	if body.Name == "" || body.StrategyType == "" || body.Symbol == "" || body.Interval == "" {
		f := protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			"name, strategy_type, symbol and interval are required")
		return nil, &f
	}

	switch model.TriggerType(body.TriggerType) {
	case model.TriggerOnceOnly, model.TriggerEachKline, model.TriggerEachKlineClose, model.TriggerEachMinute:
	default:
		f := protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters,
			fmt.Sprintf("unknown trigger_type %q", body.TriggerType))
		return nil, &f
	}
	if _, err := subkey.Period(body.Interval); err != nil {
		f := protocol.ErrorFrame(req.RequestID, protocol.CodeInvalidParameters, err.Error())
		return nil, &f
	}

	params := body.Params
	if params == nil {
		params = []byte(`{}`)
	}
	return &model.AlertConfig{
		ID:           body.ID,
		Name:         body.Name,
		StrategyType: body.StrategyType,
		Symbol:       body.Symbol,
		Interval:     body.Interval,
		TriggerType:  model.TriggerType(body.TriggerType),
		Params:       params,
		IsEnabled:    body.IsEnabled,
		CreatedBy:    body.CreatedBy,
	}, nil
}

func (r *Router) klineBars(ctx context.Context, symbol, interval string, from, to int64) ([]protocol.Bar, error) {
	klines, err := r.stores.Klines.Range(ctx, symbol, interval, from, to)
	if err != nil {
		return nil, err
	}
	bars := make([]protocol.Bar, 0, len(klines))
	for _, k := range klines {
		bars = append(bars, protocol.Bar{
			Time:   k.OpenTime,
			Open:   k.Open,
			High:   k.High,
			Low:    k.Low,
			Close:  k.Close,
			Volume: k.Volume,
		})
	}
	return bars, nil
}

func (r *Router) internalError(req *protocol.Request, err error) protocol.Frame {
	r.logger.Error("request failed", "type", req.Type, "request", req.RequestID, "error", err)
	return protocol.ErrorFrame(req.RequestID, protocol.CodeInternal, err.Error())
}

// alertView renders a config as a wire object.
func alertView(c *model.AlertConfig) map[string]any {
	return map[string]any{
		"id":            c.ID,
		"name":          c.Name,
		"strategy_type": c.StrategyType,
		"symbol":        c.Symbol,
		"interval":      c.Interval,
		"trigger_type":  string(c.TriggerType),
		"params":        json.RawMessage(c.Params),
		"is_enabled":    c.IsEnabled,
		"created_by":    c.CreatedBy,
		"created_at":    c.CreatedAt,
		"updated_at":    c.UpdatedAt,
	}
}

func signalView(s *model.Signal) map[string]any {
	return map[string]any{
		"id":                      s.ID,
		"alert_id":                s.AlertID,
		"strategy_type":           s.StrategyType,
		"symbol":                  s.Symbol,
		"interval":                s.Interval,
		"trigger_type":            string(s.TriggerType),
		"signal_value":            s.Value,
		"signal_reason":           s.Reason,
		"computed_at":             s.ComputedAt,
		"source_subscription_key": s.SourceKey,
	}
}

func symbolView(info model.SymbolInfo) map[string]any {
	full := info.Exchange + ":" + info.Symbol
	if info.Market == "perp" {
		full += "." + subkey.PerpSuffix
	}
	return map[string]any{
		"symbol":           full,
		"ticker":           info.Symbol,
		"exchange":         info.Exchange,
		"type":             info.Market,
		"base_asset":       info.BaseAsset,
		"quote_asset":      info.QuoteAsset,
		"status":           info.Status,
		"price_precision":  info.PricePrecision,
		"volume_precision": info.VolumePrecision,
	}
}

func symbolViews(infos []model.SymbolInfo) []map[string]any {
	out := make([]map[string]any, 0, len(infos))
	for _, info := range infos {
		out = append(out, symbolView(info))
	}
	return out
}
