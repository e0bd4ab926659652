package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/protocol"
)

// frameHandler is the router's surface as seen by the hub. The hub depends
// on this interface, never on the router type, so the session↔router cycle
// stays flat.
type frameHandler interface {
	HandleFrame(ctx context.Context, s *Session, data []byte)
}

// taskRef correlates one enqueued task back to the request that caused
// it. Params holds the original task parameters: completion events carry
// only id/status/result, so any reply that re-reads a side table recovers
// the requested range from here.
type taskRef struct {
	SessionID string
	RequestID string
	ReqType   string
	Params    json.RawMessage
	Deadline  time.Time
}

// HubStats provides counters for GET_METRICS and the health endpoint.
type HubStats struct {
	Sessions      int
	Broadcasts    int64
	FramesSent    int64
	FramesDropped int64
	PendingTasks  int
	StartedAt     time.Time
}

// Hub owns every live session, the correlation maps, and the broadcast
// path. It accepts WebSocket upgrades and runs the two per-session flows.
type Hub struct {
	cfg      *config.GatewayConfig
	registry *Registry
	logger   *slog.Logger

	handler frameHandler

	upgrader websocket.Upgrader

	mu              sync.Mutex
	sessions        map[string]*Session
	pendingRequests map[string]string // request id -> session id
	pendingTasks    map[int64]taskRef // task id -> origin

	statsMu       sync.Mutex
	broadcasts    int64
	framesSent    int64
	framesDropped int64
	startedAt     time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a Hub.
func NewHub(cfg *config.GatewayConfig, registry *Registry, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		cfg:      cfg,
		registry: registry,
		logger:   logger.With("component", "hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The gateway fronts browser clients from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions:        make(map[string]*Session),
		pendingRequests: make(map[string]string),
		pendingTasks:    make(map[int64]taskRef),
		startedAt:       time.Now(),
	}
}

// SetHandler wires the router in after construction.
func (h *Hub) SetHandler(handler frameHandler) {
	h.handler = handler
}

// Start prepares the hub for accepting sessions and runs the task-expiry
// sweep.
func (h *Hub) Start(ctx context.Context) error {
	h.ctx, h.cancel = context.WithCancel(ctx)
	go h.expireLoop()
	h.logger.Info("session hub started")
	return nil
}

// expireLoop abandons task correlations whose deadline passed.
func (h *Hub) expireLoop() {
	interval := h.cfg.Session.TaskTimeout / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			h.expireTasks(now)
		}
	}
}

// expireTasks drops every correlation past its deadline and answers the
// waiting request with an error, so the client is not left hanging when
// the adapter never picks the task up.
func (h *Hub) expireTasks(now time.Time) int {
	h.mu.Lock()
	var expired []taskRef
	for taskID, ref := range h.pendingTasks {
		if !ref.Deadline.IsZero() && now.After(ref.Deadline) {
			expired = append(expired, ref)
			delete(h.pendingTasks, taskID)
		}
	}
	h.mu.Unlock()

	for _, ref := range expired {
		h.SendTo(ref.SessionID, protocol.ErrorFrame(ref.RequestID,
			protocol.CodeTaskFailed, "task result wait timed out"))
		h.ClearRequest(ref.RequestID)
		h.logger.Warn("task correlation expired", "request", ref.RequestID, "type", ref.ReqType)
	}
	return len(expired)
}

// Stop closes every live session.
func (h *Hub) Stop(ctx context.Context) error {
	if h.cancel != nil {
		h.cancel()
	}

	h.mu.Lock()
	sessions := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}

	h.logger.Info("session hub stopped", "closed", len(sessions))
	return nil
}

// ServeHTTP upgrades a client connection and runs its session.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	s := newSession(uuid.NewString(), conn, h, h.logger)

	h.mu.Lock()
	h.sessions[s.ID] = s
	count := len(h.sessions)
	h.mu.Unlock()

	h.logger.Info("session connected", "session", s.ID, "remote", r.RemoteAddr, "total", count)

	go s.writeLoop()
	go s.readLoop()
}

// handleFrame forwards an inbound frame to the router.
func (h *Hub) handleFrame(s *Session, data []byte) {
	if h.handler == nil {
		return
	}
	h.handler.HandleFrame(h.ctx, s, data)
}

// dropSession runs the disconnect path: remove the session, purge both
// correlation maps, and release its subscriptions.
func (h *Hub) dropSession(s *Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID)
	for reqID, sessID := range h.pendingRequests {
		if sessID == s.ID {
			delete(h.pendingRequests, reqID)
		}
	}
	for taskID, ref := range h.pendingTasks {
		if ref.SessionID == s.ID {
			delete(h.pendingTasks, taskID)
		}
	}
	count := len(h.sessions)
	h.mu.Unlock()

	h.registry.DropSession(h.baseCtx(), s.ID)

	h.logger.Info("session disconnected", "session", s.ID, "total", count)
}

func (h *Hub) baseCtx() context.Context {
	if h.ctx != nil {
		return h.ctx
	}
	return context.Background()
}

// Session returns a live session by id.
func (h *Hub) Session(id string) (*Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.sessions[id]
	return s, ok
}

// SendTo delivers a frame to one session; unknown ids are silently
// dropped (the session may have gone away while work was in flight).
func (h *Hub) SendTo(sessionID string, frame protocol.Frame) bool {
	s, ok := h.Session(sessionID)
	if !ok {
		return false
	}
	if !s.Send(frame) {
		h.countDropped()
		return false
	}
	return true
}

// Broadcast fans a frame out to every session whose registered keys match
// the event key. Sessions fail independently: one full queue never blocks
// the others.
func (h *Hub) Broadcast(eventKey string, frame protocol.Frame) int {
	ids := MatchSessions(eventKey, h.registry.Snapshot())
	sent := 0
	for _, id := range ids {
		if h.SendTo(id, frame) {
			sent++
		}
	}

	h.statsMu.Lock()
	h.broadcasts++
	h.statsMu.Unlock()
	return sent
}

// TrackRequest records the request -> session correlation.
func (h *Hub) TrackRequest(requestID, sessionID string) {
	h.mu.Lock()
	h.pendingRequests[requestID] = sessionID
	h.mu.Unlock()
}

// ClearRequest drops the request correlation once the terminal frame is
// sent.
func (h *Hub) ClearRequest(requestID string) {
	h.mu.Lock()
	delete(h.pendingRequests, requestID)
	h.mu.Unlock()
}

// TrackTask records the task -> (session, request) correlation. The
// correlation is abandoned after the session task timeout: the adapter may
// be down, and the client should not wait forever for phase 3.
func (h *Hub) TrackTask(taskID int64, sessionID, requestID, reqType string, params json.RawMessage) {
	var deadline time.Time
	if d := h.cfg.Session.TaskTimeout; d > 0 {
		deadline = time.Now().Add(d)
	}
	h.mu.Lock()
	h.pendingTasks[taskID] = taskRef{
		SessionID: sessionID,
		RequestID: requestID,
		ReqType:   reqType,
		Params:    params,
		Deadline:  deadline,
	}
	h.mu.Unlock()
}

// TakeTask removes and returns the correlation for a completed task.
// Unknown task ids return false: the session is already gone and the
// completion is dropped.
func (h *Hub) TakeTask(taskID int64) (taskRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	ref, ok := h.pendingTasks[taskID]
	if ok {
		delete(h.pendingTasks, taskID)
	}
	return ref, ok
}

func (h *Hub) countSent() {
	h.statsMu.Lock()
	h.framesSent++
	h.statsMu.Unlock()
}

func (h *Hub) countDropped() {
	h.statsMu.Lock()
	h.framesDropped++
	h.statsMu.Unlock()
}

// Stats returns current counters.
func (h *Hub) Stats() HubStats {
	h.mu.Lock()
	sessions := len(h.sessions)
	pending := len(h.pendingTasks)
	h.mu.Unlock()

	h.statsMu.Lock()
	defer h.statsMu.Unlock()
	return HubStats{
		Sessions:      sessions,
		PendingTasks:  pending,
		Broadcasts:    h.broadcasts,
		FramesSent:    h.framesSent,
		FramesDropped: h.framesDropped,
		StartedAt:     h.startedAt,
	}
}
