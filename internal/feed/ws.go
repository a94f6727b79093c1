// Package feed manages a single persistent websocket session against the
// venue's streaming endpoint.
package feed

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

// Connection timeouts and intervals.
const (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultReadTimeout      = 60 * time.Second
	DefaultWriteTimeout     = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPongTimeout      = 10 * time.Second

	healthCheckInterval = 5 * time.Second
	messageBuffer       = 100
)

// Config holds websocket-specific configuration.
type Config struct {
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	PongTimeout      time.Duration
}

// DefaultConfig returns the default websocket configuration.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: DefaultHandshakeTimeout,
		ReadTimeout:      DefaultReadTimeout,
		WriteTimeout:     DefaultWriteTimeout,
		PingInterval:     DefaultPingInterval,
		PongTimeout:      DefaultPongTimeout,
	}
}

// Conn runs one connection at a time. It never reconnects on its own;
// restart policy belongs to the supervisor, which also re-acquires
// credentials since endpoint tokens are single-use.
type Conn struct {
	cfg Config
	log *logrus.Logger
}

// NewConn creates a Conn with the given configuration.
func NewConn(cfg Config, log *logrus.Logger) *Conn {
	return &Conn{cfg: cfg, log: log}
}

// Run dials wsURL and forwards every inbound frame verbatim and in order to
// onMessage. It blocks until the connection terminates: any transport error,
// protocol error, or heartbeat timeout returns a descriptive error. Context
// cancellation closes the connection and returns nil.
func (c *Conn) Run(ctx context.Context, wsURL string, onMessage func([]byte)) error {
	u, err := url.Parse(wsURL)
	if err != nil {
		return fmt.Errorf("invalid websocket URL: %w", err)
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.HandshakeTimeout}
	conn, _, err := dialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect to websocket: %w", err)
	}
	defer conn.Close()

	c.log.Info("Connected to websocket")

	connCtx, connCancel := context.WithCancel(ctx)
	defer connCancel()

	var lastPong atomic.Int64
	lastPong.Store(time.Now().UnixNano())

	conn.SetPongHandler(func(string) error {
		lastPong.Store(time.Now().UnixNano())
		return nil
	})
	conn.SetPingHandler(func(message string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(message), time.Now().Add(c.cfg.WriteTimeout))
		if err != nil {
			c.log.Errorf("Failed to answer server ping: %v", err)
		}
		return err
	})

	readErrors := make(chan error, 1)
	messages := make(chan []byte, messageBuffer)

	// Single reader; frame order is preserved end to end.
	go func() {
		defer close(messages)
		for {
			conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
			_, message, err := conn.ReadMessage()
			if err != nil {
				select {
				case readErrors <- err:
				case <-connCtx.Done():
				}
				return
			}
			select {
			case messages <- message:
			case <-connCtx.Done():
				return
			}
		}
	}()

	pingTicker := time.NewTicker(c.cfg.PingInterval)
	defer pingTicker.Stop()

	healthTicker := time.NewTicker(healthCheckInterval)
	defer healthTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("Context cancelled, closing connection")
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.cfg.WriteTimeout))
			return nil

		case err := <-readErrors:
			return fmt.Errorf("websocket read error: %w", err)

		case message := <-messages:
			onMessage(message)

		case <-pingTicker.C:
			conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return fmt.Errorf("failed to send ping: %w", err)
			}

		case <-healthTicker.C:
			sincePong := time.Since(time.Unix(0, lastPong.Load()))
			if sincePong > c.cfg.PingInterval+c.cfg.PongTimeout {
				return fmt.Errorf("heartbeat timeout: last pong was %v ago", sincePong)
			}
		}
	}
}
