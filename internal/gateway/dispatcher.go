package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/model"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/notify"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/store"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/subkey"
)

// Dispatcher turns bus events into client frames: task completions become
// the deferred phase-3 replies, realtime updates and new signals become
// UPDATE broadcasts.
type Dispatcher struct {
	hub      *Hub
	klines   *store.KlineStore
	accounts *store.AccountStore
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(hub *Hub, klines *store.KlineStore, accounts *store.AccountStore, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		hub:      hub,
		klines:   klines,
		accounts: accounts,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Register wires the dispatcher's handlers onto the listener. Must run
// before the listener starts.
func (d *Dispatcher) Register(l notify.Listener) {
	l.Handle(notify.ChanTaskCompleted, d.onTaskDone)
	l.Handle(notify.ChanTaskFailed, d.onTaskDone)
	l.Handle(notify.ChanRealtimeUpdate, d.onRealtimeUpdate)
	l.Handle(notify.ChanSignalNew, d.onSignalNew)
}

// onTaskDone answers the request that enqueued the task. Tasks with no
// correlation belong to sessions that already disconnected (or to another
// gateway instance) and are dropped.
func (d *Dispatcher) onTaskDone(ctx context.Context, env notify.Envelope) {
	var ev notify.TaskEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		d.logger.Warn("bad task event", "error", err)
		return
	}

	ref, ok := d.hub.TakeTask(ev.ID)
	if !ok {
		return
	}

	if env.EventType == notify.ChanTaskFailed {
		d.hub.SendTo(ref.SessionID, protocol.ErrorFrame(ref.RequestID,
			protocol.CodeTaskFailed, failureMessage(ev.Result)))
		d.hub.ClearRequest(ref.RequestID)
		return
	}

	frame, err := d.completionFrame(ctx, ref, ev)
	if err != nil {
		d.logger.Error("build completion reply failed", "task", ev.ID, "error", err)
		frame = protocol.ErrorFrame(ref.RequestID, protocol.CodeInternal, err.Error())
	}
	d.hub.SendTo(ref.SessionID, frame)
	d.hub.ClearRequest(ref.RequestID)
}

// completionFrame builds the typed success frame for one finished task.
// Bulk results (klines) are re-read from their side table; inline results
// pass through.
func (d *Dispatcher) completionFrame(ctx context.Context, ref taskRef, ev notify.TaskEvent) (protocol.Frame, error) {
	switch ref.ReqType {
	case protocol.ReqGetKlines:
		params, err := klinesParams(ref)
		if err != nil {
			return protocol.Frame{}, err
		}
		klines, err := d.klines.Range(ctx, params.Symbol, params.Interval, params.FromTime, params.ToTime)
		if err != nil {
			return protocol.Frame{}, err
		}
		bars := make([]protocol.Bar, 0, len(klines))
		for _, k := range klines {
			bars = append(bars, protocol.Bar{
				Time: k.OpenTime, Open: k.Open, High: k.High,
				Low: k.Low, Close: k.Close, Volume: k.Volume,
			})
		}
		return protocol.Success(protocol.TypeKlinesData, ref.RequestID, protocol.KlinesData{
			Symbol:   params.Symbol,
			Interval: params.Interval,
			Bars:     bars,
			NoData:   len(bars) == 0,
		}), nil

	case protocol.ReqGetQuotes:
		return protocol.Success(protocol.TypeQuotesData, ref.RequestID,
			json.RawMessage(ev.Result)), nil

	case protocol.ReqGetSpotAccount, protocol.ReqGetFuturesAccount:
		accountType := "spot"
		if ref.ReqType == protocol.ReqGetFuturesAccount {
			accountType = "futures"
		}
		snap, err := d.accounts.Get(ctx, accountType)
		if err != nil {
			return protocol.Frame{}, err
		}
		return protocol.Success(protocol.TypeAccountData, ref.RequestID, map[string]any{
			"account_type": snap.AccountType,
			"data":         snap.Data,
			"update_time":  snap.UpdateTime,
		}), nil

	default:
		// A task kind without a dedicated shape carries its result inline.
		return protocol.Success(protocol.TypeAccountData, ref.RequestID,
			json.RawMessage(ev.Result)), nil
	}
}

// onRealtimeUpdate fans a market-data change out to every matching session.
func (d *Dispatcher) onRealtimeUpdate(_ context.Context, env notify.Envelope) {
	var ev notify.RealtimeEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		d.logger.Warn("bad realtime event", "error", err)
		return
	}

	content := FormatContent(ev.DataType, ev.Data)
	d.hub.Broadcast(ev.SubscriptionKey, protocol.Update(ev.SubscriptionKey, content, ev.DataType))
}

// onSignalNew fans a strategy signal out to sessions subscribed to its
// SIGNAL: key.
func (d *Dispatcher) onSignalNew(_ context.Context, env notify.Envelope) {
	var ev notify.SignalEvent
	if err := json.Unmarshal(env.Data, &ev); err != nil {
		d.logger.Warn("bad signal event", "error", err)
		return
	}

	key := subkey.ForSignal(ev.AlertID)
	content := map[string]any{
		"id":            ev.ID,
		"alert_id":      ev.AlertID,
		"strategy_type": ev.StrategyType,
		"symbol":        ev.Symbol,
		"interval":      ev.Interval,
		"trigger_type":  ev.TriggerType,
		"signal_value":  ev.SignalValue,
		"signal_reason": ev.Reason,
		"computed_at":   ev.ComputedAt,
	}
	d.hub.Broadcast(key, protocol.Update(key, content, "SIGNAL"))
}

// klinesParams recovers the range the client originally requested. The
// completion event carries only id/status/result, so the range rides the
// correlation ref from enqueue to completion.
func klinesParams(ref taskRef) (model.KlinesTaskParams, error) {
	var params model.KlinesTaskParams
	if err := json.Unmarshal(ref.Params, &params); err != nil {
		return params, fmt.Errorf("task params for request %s: %w", ref.RequestID, err)
	}
	return params, nil
}

func failureMessage(result json.RawMessage) string {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(result, &body); err == nil && body.Error != "" {
		return body.Error
	}
	return "task failed"
}
