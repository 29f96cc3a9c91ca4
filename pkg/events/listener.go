package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// Handler is invoked with the raw NOTIFY payload bytes whenever a
// notification arrives on a channel it was registered for.
type Handler func(payload []byte)

// Listener owns a dedicated LISTEN connection (NOTIFY delivery requires a
// persistent connection distinct from the pooled *sql.DB used for normal
// queries) and dispatches incoming notifications to registered handlers.
// It is a best-effort wake-up signal only: every role worker's poll loop
// is the correctness backstop, so Listener never blocks claiming and a
// missed or delayed notification only costs one extra poll interval of
// latency.
type Listener struct {
	connString string
	conn       *pgx.Conn

	handlers map[string][]Handler

	cancel context.CancelFunc
	done   chan struct{}
}

// NewListener creates a Listener that will connect to connString (a
// standard libpq-style DSN) when Start is called.
func NewListener(connString string) *Listener {
	return &Listener{
		connString: connString,
		handlers:   make(map[string][]Handler),
	}
}

// On registers fn to run whenever a notification arrives on channel.
// Must be called before Start; the channel set is fixed for the process
// lifetime, which is sufficient since every channel here is a small,
// known constant (see types.go) rather than dynamically per-event.
func (l *Listener) On(channel string, fn Handler) {
	l.handlers[channel] = append(l.handlers[channel], fn)
}

// Start opens the dedicated connection, issues LISTEN for every
// registered channel, and begins the receive loop in a goroutine.
func (l *Listener) Start(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.connString)
	if err != nil {
		return err
	}

	for channel := range l.handlers {
		sanitized := pgx.Identifier{channel}.Sanitize()
		if _, err := conn.Exec(ctx, "LISTEN "+sanitized); err != nil {
			_ = conn.Close(ctx)
			return err
		}
	}

	l.conn = conn

	loopCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		defer close(l.done)
		l.receiveLoop(loopCtx)
	}()

	slog.Info("notify listener started", "channels", len(l.handlers))
	return nil
}

// Stop cancels the receive loop and closes the dedicated connection.
func (l *Listener) Stop(ctx context.Context) {
	if l.cancel != nil {
		l.cancel()
		<-l.done
	}
	if l.conn != nil {
		_ = l.conn.Close(ctx)
	}
}

func (l *Listener) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		notification, err := l.conn.WaitForNotification(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if waitCtx.Err() != nil {
				continue
			}
			slog.Warn("notify listener receive error", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, fn := range l.handlers[notification.Channel] {
			fn([]byte(notification.Payload))
		}
	}
}
