package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"l2writer/internal/config"
	"l2writer/internal/logging"
	"l2writer/internal/services"
)

// Publisher delivers messages on a best-effort basis.
type Publisher interface {
	Send(ctx context.Context, m Message) error
	Close() error
}

// Connector opens a publish session. The caller owns the returned Publisher and
// must Close it.
type Connector func(ctx context.Context) (Publisher, error)

// ErrNotConnected is returned by Send while the connection is down.
var ErrNotConnected = errors.New("publisher not connected")

// natsConn is the subset of *nats.Conn used by NATSPublisher.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	IsConnected() bool
	Drain() error
}

// NATSPublisher publishes wire-encoded messages to NATS subjects.
type NATSPublisher struct {
	conn   natsConn
	prefix string
	sender string
	logger *slog.Logger
}

// Dial connects to the configured NATS servers.
func Dial(ctx context.Context, cfg config.Publisher, logger *slog.Logger) (*NATSPublisher, error) {
	if len(cfg.URLs) == 0 {
		return nil, services.Wrap(services.ErrConfiguration, "notify", "dial", "No publisher urls configured", nil)
	}
	logger = logging.NewComponentLogger(logger, "notify")
	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining > 0 && (timeout <= 0 || remaining < timeout) {
			timeout = remaining
		}
	}

	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.Timeout(timeout),
		nats.MaxReconnects(-1),
		nats.RetryOnFailedConnect(true),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logging.WarnWithContext(logger, "publisher disconnected", "publisher_disconnected",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check NATS server availability"),
					logging.String(logging.FieldImpact, "notifications are dropped until reconnect"),
				)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("publisher reconnected", logging.String("server", c.ConnectedUrl()))
		}),
	}
	conn, err := nats.Connect(strings.Join(cfg.URLs, ","), opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "notify", "dial", "NATS connection failed", err)
	}
	if conn.IsConnected() {
		logger.Info("publisher connected", logging.String("server", conn.ConnectedUrl()))
	} else {
		logging.WarnWithContext(logger, "publisher connecting in background", "publisher_pending",
			logging.Strings("urls", cfg.URLs),
			logging.String(logging.FieldErrorHint, "check NATS server availability"),
			logging.String(logging.FieldImpact, "notifications stay in the outbox until connected"),
		)
	}
	return newNATSPublisher(conn, cfg.SubjectPrefix, senderName(cfg.Name), logger), nil
}

func newNATSPublisher(conn natsConn, prefix, sender string, logger *slog.Logger) *NATSPublisher {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATSPublisher{conn: conn, prefix: prefix, sender: sender, logger: logger}
}

// Send publishes m without waiting for acknowledgement.
func (p *NATSPublisher) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !p.conn.IsConnected() {
		return ErrNotConnected
	}
	if m.Sender == "" {
		m.Sender = p.sender
	}
	raw, err := Encode(m)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(Subject(p.prefix, m.Topic))
	msg.Data = []byte(raw)
	if m.ID != "" {
		msg.Header.Set(nats.MsgIdHdr, m.ID)
	}
	if err := p.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	p.logger.Debug("message published", logging.String("subject", msg.Subject), logging.String("type", m.Type))
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Noop discards messages.
type Noop struct{}

func (Noop) Send(context.Context, Message) error { return nil }
func (Noop) Close() error                        { return nil }

// NewConnector returns a Connector for the [publisher] section. A disabled
// publisher yields Noop sessions.
func NewConnector(cfg config.Publisher, logger *slog.Logger) Connector {
	return func(ctx context.Context) (Publisher, error) {
		if !cfg.Enabled {
			return Noop{}, nil
		}
		return Dial(ctx, cfg, logger)
	}
}

func senderName(name string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "localhost"
	}
	return name + "@" + host
}
