package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

var (
	ErrNotConnected    = errors.New("stream not connected")
	ErrAlreadyClosed   = errors.New("stream already closed")
	ErrStaleConnection = errors.New("stream stale, no data or pong received")
)

// StreamMessage is one raw combined-stream frame plus its receive time.
type StreamMessage struct {
	Stream     string
	Data       json.RawMessage
	ReceivedAt time.Time
}

// StreamConfig configures a StreamClient.
type StreamConfig struct {
	// URL is the combined-stream endpoint, e.g. "wss://.../stream".
	URL string

	// PingInterval is the keepalive cadence; PongTimeout declares the
	// connection stale when nothing arrives for that long.
	PingInterval time.Duration
	PongTimeout  time.Duration

	// WriteTimeout bounds every write.
	WriteTimeout time.Duration

	// BufferSize is the capacity of the Messages channel.
	BufferSize int
}

// StreamClient is a single combined-stream WebSocket connection. Stream
// management goes through Subscribe/Unsubscribe; market payloads come out
// of Messages, connection failures out of Errors.
type StreamClient struct {
	cfg    StreamConfig
	logger *slog.Logger

	conn *websocket.Conn

	messages chan StreamMessage
	errors   chan error
	done     chan struct{}

	writeMu sync.Mutex
	cmdID   atomic.Int64

	mu        sync.RWMutex
	connected bool
	lastSeen  time.Time
	closed    bool
}

// NewStreamClient creates a stream client.
func NewStreamClient(cfg StreamConfig, logger *slog.Logger) *StreamClient {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = 30 * time.Second
	}
	if cfg.PongTimeout == 0 {
		cfg.PongTimeout = 90 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.BufferSize == 0 {
		cfg.BufferSize = 1024
	}

	return &StreamClient{
		cfg:      cfg,
		logger:   logger,
		messages: make(chan StreamMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *StreamClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.lastSeen = time.Now()
	c.mu.Unlock()

	// The upstream pings us; answer and refresh liveness.
	conn.SetPingHandler(func(data string) error {
		c.touch()
		return conn.WriteControl(
			websocket.PongMessage,
			[]byte(data),
			time.Now().Add(time.Second),
		)
	})
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop(conn)
	go c.heartbeatLoop(conn)

	c.logger.Debug("stream connected", "url", c.cfg.URL)
	return nil
}

// Close gracefully closes the connection.
func (c *StreamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	close(c.done)

	if conn != nil {
		conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		return conn.Close()
	}
	return nil
}

// Subscribe adds streams to the connection.
func (c *StreamClient) Subscribe(streams []string) error {
	return c.sendCommand("SUBSCRIBE", streams)
}

// Unsubscribe removes streams from the connection.
func (c *StreamClient) Unsubscribe(streams []string) error {
	return c.sendCommand("UNSUBSCRIBE", streams)
}

func (c *StreamClient) sendCommand(method string, streams []string) error {
	if len(streams) == 0 {
		return nil
	}

	cmd := streamCommand{
		Method: method,
		Params: streams,
		ID:     c.cmdID.Add(1),
	}
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	return c.send(data)
}

func (c *StreamClient) send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// Messages returns the channel of market payloads.
func (c *StreamClient) Messages() <-chan StreamMessage {
	return c.messages
}

// Errors returns the channel of connection errors.
func (c *StreamClient) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *StreamClient) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *StreamClient) touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

func (c *StreamClient) fail(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// readLoop decodes combined-stream frames. Command acknowledgements (id
// echoes) are consumed here; everything else flows to Messages.
func (c *StreamClient) readLoop(conn *websocket.Conn) {
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		receivedAt := time.Now()

		if err != nil {
			select {
			case <-c.done:
			default:
				c.fail(err)
			}
			return
		}
		c.touch()

		var env streamEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Stream == "" {
			var reply streamReply
			if json.Unmarshal(data, &reply) == nil && reply.ID > 0 {
				c.logger.Debug("stream command acknowledged", "id", reply.ID)
				continue
			}
			c.logger.Warn("unrecognised stream frame, dropping")
			continue
		}

		msg := StreamMessage{
			Stream:     env.Stream,
			Data:       env.Data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		default:
			c.logger.Warn("stream buffer full, dropping message", "stream", env.Stream)
		}
	}
}

// heartbeatLoop pings on a cadence and declares the connection stale when
// nothing has arrived within the pong timeout.
func (c *StreamClient) heartbeatLoop(conn *websocket.Conn) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastSeen := c.lastSeen
			connected := c.connected
			c.mu.RUnlock()
			if !connected {
				return
			}

			if time.Since(lastSeen) > c.cfg.PongTimeout {
				c.logger.Warn("stream stale",
					"last_seen", lastSeen,
					"timeout", c.cfg.PongTimeout,
				)
				c.fail(ErrStaleConnection)
				return
			}
		}
	}
}
