package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/database"
)

// Handler processes one notification. It runs on a dispatch worker, not on
// the listen connection's goroutine, and must be idempotent.
type Handler func(ctx context.Context, env Envelope)

// Listener owns a dedicated connection and fans notifications out to
// registered handlers.
type Listener interface {
	// Handle registers a handler for a channel. Must be called before Start.
	Handle(channel string, h Handler)

	// Start listens on all registered channels and dispatches until Stop.
	Start(ctx context.Context) error

	// Stop shuts the listener down and closes its connection.
	Stop(ctx context.Context) error

	// Stats returns dispatch counters.
	Stats() ListenerStats
}

// ListenerStats provides counters for the health endpoint.
type ListenerStats struct {
	Received   int64
	Dispatched int64
	Dropped    int64
	BadPayload int64
	Reconnects int64
}

// ListenerConfig configures a Listener.
type ListenerConfig struct {
	// DB is the connection config; the listener dials its own connection.
	DB config.DBConfig

	// ReconnectBackoff is the fixed wait between reconnect attempts.
	ReconnectBackoff time.Duration

	// QueueSize bounds the dispatch queue between the listen loop and the
	// handler workers.
	QueueSize int

	// Workers is the number of dispatch goroutines.
	Workers int
}

type queued struct {
	channel string
	env     Envelope
}

type listener struct {
	cfg    ListenerConfig
	logger *slog.Logger

	mu       sync.Mutex
	handlers map[string]Handler

	queue chan queued

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	statsMu sync.Mutex
	stats   ListenerStats
}

// NewListener creates a Listener.
func NewListener(cfg ListenerConfig, logger *slog.Logger) Listener {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ReconnectBackoff == 0 {
		cfg.ReconnectBackoff = 2 * time.Second
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = 1024
	}
	if cfg.Workers == 0 {
		cfg.Workers = 4
	}
	return &listener{
		cfg:      cfg,
		logger:   logger.With("component", "notify_listener"),
		handlers: make(map[string]Handler),
		queue:    make(chan queued, cfg.QueueSize),
	}
}

func (l *listener) Handle(channel string, h Handler) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.handlers[channel] = h
}

func (l *listener) Start(ctx context.Context) error {
	l.ctx, l.cancel = context.WithCancel(ctx)

	for i := 0; i < l.cfg.Workers; i++ {
		l.wg.Add(1)
		go l.dispatchWorker()
	}

	l.wg.Add(1)
	go l.listenLoop()

	l.logger.Info("notify listener started",
		"channels", len(l.handlers),
		"workers", l.cfg.Workers,
	)
	return nil
}

func (l *listener) Stop(ctx context.Context) error {
	if l.cancel != nil {
		l.cancel()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		l.logger.Info("notify listener stopped")
	case <-ctx.Done():
		l.logger.Warn("notify listener stop timed out")
	}
	return nil
}

func (l *listener) Stats() ListenerStats {
	l.statsMu.Lock()
	defer l.statsMu.Unlock()
	return l.stats
}

// listenLoop dials the dedicated connection, issues LISTEN for every
// registered channel, and blocks on WaitForNotification. On any connection
// error it reconnects with fixed backoff, forever.
func (l *listener) listenLoop() {
	defer l.wg.Done()

	for {
		conn, err := l.connect()
		if err != nil {
			select {
			case <-l.ctx.Done():
				return
			case <-time.After(l.cfg.ReconnectBackoff):
				continue
			}
		}

		l.receive(conn)
		conn.Close(context.Background())

		select {
		case <-l.ctx.Done():
			return
		case <-time.After(l.cfg.ReconnectBackoff):
			l.statsMu.Lock()
			l.stats.Reconnects++
			l.statsMu.Unlock()
		}
	}
}

func (l *listener) connect() (*pgx.Conn, error) {
	conn, err := database.ConnectListen(l.ctx, l.cfg.DB)
	if err != nil {
		l.logger.Warn("listen connect failed", "error", err)
		return nil, err
	}

	l.mu.Lock()
	channels := make([]string, 0, len(l.handlers))
	for ch := range l.handlers {
		channels = append(channels, ch)
	}
	l.mu.Unlock()

	for _, ch := range channels {
		// Channel names contain dots, so the identifier must be quoted.
		if _, err := conn.Exec(l.ctx, fmt.Sprintf(`LISTEN %q`, ch)); err != nil {
			conn.Close(context.Background())
			l.logger.Warn("listen failed", "channel", ch, "error", err)
			return nil, err
		}
	}

	l.logger.Info("listening", "channels", channels)
	return conn, nil
}

// receive blocks on the connection until it fails or the listener stops.
func (l *listener) receive(conn *pgx.Conn) {
	for {
		n, err := conn.WaitForNotification(l.ctx)
		if err != nil {
			if l.ctx.Err() != nil {
				return
			}
			l.logger.Warn("wait for notification failed", "error", err)
			return
		}

		l.statsMu.Lock()
		l.stats.Received++
		l.statsMu.Unlock()

		var env Envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			l.statsMu.Lock()
			l.stats.BadPayload++
			l.statsMu.Unlock()
			l.logger.Warn("bad notify payload, dropping",
				"channel", n.Channel,
				"error", err,
			)
			continue
		}

		// Hand off so the listen connection never blocks on a handler.
		select {
		case l.queue <- queued{channel: n.Channel, env: env}:
		default:
			l.statsMu.Lock()
			l.stats.Dropped++
			l.statsMu.Unlock()
			l.logger.Warn("dispatch queue full, dropping event",
				"channel", n.Channel,
				"event_id", env.EventID,
			)
		}
	}
}

func (l *listener) dispatchWorker() {
	defer l.wg.Done()

	for {
		select {
		case <-l.ctx.Done():
			return
		case q := <-l.queue:
			l.mu.Lock()
			h := l.handlers[q.channel]
			l.mu.Unlock()
			if h == nil {
				continue
			}
			h(l.ctx, q.env)
			l.statsMu.Lock()
			l.stats.Dispatched++
			l.statsMu.Unlock()
		}
	}
}
