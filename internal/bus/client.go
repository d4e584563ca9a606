package bus

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/leafline-ai/voiced/internal/config"
	"github.com/nats-io/nats.go"
)

// Subjects the bridge republishes hub traffic on.
const (
	SubjectSynthesis  = "voiced.synthesis.completed"
	SubjectTranscript = "voiced.transcript.final"
	SubjectHubPrefix  = "voiced.hub."
)

// Client wraps a NATS connection with the few helpers the bridge needs.
type Client struct {
	conn *nats.Conn
	log  *slog.Logger
}

func Connect(ctx context.Context, cfg config.BusConfig, log *slog.Logger) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.New("no NATS servers configured")
	}

	options := []nats.Option{
		nats.Name("voiced"),
		nats.Timeout(time.Duration(cfg.ConnectTimeout) * time.Millisecond),
	}

	if cfg.Username != "" || cfg.Password != "" {
		options = append(options, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.Token != "" {
		options = append(options, nats.Token(cfg.Token))
	}
	if cfg.TLSInsecure {
		options = append(options, nats.Secure(&tls.Config{InsecureSkipVerify: true}))
	}

	url := strings.Join(cfg.Servers, ",")
	conn, err := nats.Connect(url, options...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	log.Info("connected to NATS", slog.String("servers", url))

	return &Client{conn: conn, log: log.With(slog.String("component", "bus"))}, nil
}

// Publish forwards a payload on a subject. Failures are logged and
// swallowed: the bus is an optional mirror of hub traffic, never a
// dependency of the voice path.
func (c *Client) Publish(subject string, payload []byte) {
	if c == nil || c.conn == nil {
		return
	}
	if err := c.conn.Publish(subject, payload); err != nil {
		c.log.Warn("bus publish failed",
			slog.String("subject", subject), slog.String("error", err.Error()))
	}
}

func (c *Client) Close() {
	if c == nil || c.conn == nil {
		return
	}
	c.log.Info("closing NATS connection")
	c.conn.Drain()
	c.conn.Close()
}

func (c *Client) Healthy() bool {
	return c != nil && c.conn != nil && c.conn.Status() == nats.CONNECTED
}

func (c *Client) Conn() *nats.Conn {
	return c.conn
}
