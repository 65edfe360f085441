package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

const (
	defaultSubjectPrefix = "configs"
	defaultReconnectWait = 2 * time.Second
	defaultMaxReconnects = -1
	defaultDrainTimeout  = 5 * time.Second
)

// NATSConfig configures the NATS publisher.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
	ClientName    string `yaml:"client_name"`
	Token         string `yaml:"token"`
}

// NATS publishes events to <prefix>.<service>.saved.
type NATS struct {
	conn    *nats.Conn
	prefix  string
	publish func(subject string, data []byte) error
	logger  *slog.Logger
}

// NewNATS connects to the server and returns a publisher.
func NewNATS(cfg NATSConfig, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.MaxReconnects(defaultMaxReconnects),
		nats.ReconnectWait(defaultReconnectWait),
		nats.DrainTimeout(defaultDrainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("nats disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("nats reconnected", "url", c.ConnectedUrl())
		}),
	}
	if cfg.ClientName != "" {
		opts = append(opts, nats.Name(cfg.ClientName))
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	n := newNATS(cfg.SubjectPrefix, conn.Publish, logger)
	n.conn = conn
	return n, nil
}

func newNATS(prefix string, publish func(string, []byte) error, logger *slog.Logger) *NATS {
	if prefix == "" {
		prefix = defaultSubjectPrefix
	}
	return &NATS{prefix: prefix, publish: publish, logger: logger}
}

// Subject returns the subject events for service are published on.
func (n *NATS) Subject(service string) string {
	return n.prefix + "." + service + ".saved"
}

// Saved publishes event.
func (n *NATS) Saved(_ context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encoding save event: %w", err)
	}
	if err := n.publish(n.Subject(event.Service), data); err != nil {
		return fmt.Errorf("publishing save event: %w", err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		return fmt.Errorf("draining nats connection: %w", err)
	}
	return nil
}

var _ Notifier = (*NATS)(nil)
