package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
)

// Publisher sends JSON events to the message bus.
type Publisher interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// NATSPublisher publishes core NATS messages under a subject prefix.
type NATSPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *slog.Logger
}

func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("absence"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "err", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSPublisher{conn: conn, prefix: prefix, log: logger}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, subject string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	full := Subject(p.prefix, subject)
	if err := p.conn.Publish(full, data); err != nil {
		return fmt.Errorf("publish %s: %w", full, err)
	}
	p.log.Debug("event published", "subject", full, "bytes", len(data))
	return nil
}

func (p *NATSPublisher) Ready() bool {
	return p.conn != nil && p.conn.IsConnected()
}

func (p *NATSPublisher) Close() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("nats drain failed", "err", err)
	}
}

// Noop drops every event. It is used when no bus is configured.
type Noop struct{}

func (Noop) Publish(context.Context, string, any) error { return nil }

// Subject joins non-empty tokens with dots, lower-casing each token.
func Subject(parts ...string) string {
	tokens := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), ".")
		if part == "" {
			continue
		}
		tokens = append(tokens, strings.ToLower(part))
	}
	return strings.Join(tokens, ".")
}
