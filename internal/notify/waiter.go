package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mj2154/quant-trading-system-2602-sub000/internal/config"
	"github.com/mj2154/quant-trading-system-2602-sub000/internal/database"
)

// TaskWaiter waits for completion notifications of specific tasks on its
// own dedicated connection. The back-fill loop reuses one waiter across
// iterations, so the connection is dialed once and kept.
type TaskWaiter struct {
	db     config.DBConfig
	logger *slog.Logger
	conn   *pgx.Conn
}

// NewTaskWaiter creates a waiter; the connection is dialed lazily on the
// first Wait.
func NewTaskWaiter(db config.DBConfig, logger *slog.Logger) *TaskWaiter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskWaiter{db: db, logger: logger.With("component", "task_waiter")}
}

func (w *TaskWaiter) ensureConn(ctx context.Context) error {
	if w.conn != nil && !w.conn.IsClosed() {
		return nil
	}
	conn, err := database.ConnectListen(ctx, w.db)
	if err != nil {
		return err
	}
	for _, ch := range []string{ChanTaskCompleted, ChanTaskFailed} {
		if _, err := conn.Exec(ctx, fmt.Sprintf(`LISTEN %q`, ch)); err != nil {
			conn.Close(context.Background())
			return fmt.Errorf("listen %s: %w", ch, err)
		}
	}
	w.conn = conn
	return nil
}

// Wait blocks until the task with the given id completes or fails, or the
// timeout elapses. It returns (event, true, nil) on completion or failure,
// (zero, false, nil) on timeout. Notifications for other tasks are ignored.
func (w *TaskWaiter) Wait(ctx context.Context, taskID int64, timeout time.Duration) (TaskEvent, bool, error) {
	if err := w.ensureConn(ctx); err != nil {
		return TaskEvent{}, false, err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	for {
		n, err := w.conn.WaitForNotification(waitCtx)
		if err != nil {
			if waitCtx.Err() != nil && ctx.Err() == nil {
				return TaskEvent{}, false, nil // soft timeout
			}
			// Connection-level failure: drop the conn so the next Wait
			// re-dials.
			w.conn.Close(context.Background())
			w.conn = nil
			return TaskEvent{}, false, err
		}

		var env Envelope
		if err := json.Unmarshal([]byte(n.Payload), &env); err != nil {
			w.logger.Warn("bad notify payload, dropping", "channel", n.Channel, "error", err)
			continue
		}
		var ev TaskEvent
		if err := json.Unmarshal(env.Data, &ev); err != nil {
			w.logger.Warn("bad task event, dropping", "error", err)
			continue
		}
		if ev.ID != taskID {
			continue
		}
		return ev, true, nil
	}
}

// Close releases the dedicated connection.
func (w *TaskWaiter) Close(ctx context.Context) {
	if w.conn != nil {
		w.conn.Close(ctx)
		w.conn = nil
	}
}
