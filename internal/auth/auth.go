// Package auth exchanges long-lived venue credentials for a one-time
// streaming endpoint.
//
// The exchange is two steps: POST the credentials to the CAS ticket endpoint
// for a short-lived TGT, then present the TGT to the session-info endpoint,
// which returns the websocket path. Tickets are single-use, so every call
// performs the full exchange; nothing is cached across reconnects.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const requestTimeout = 20 * time.Second

// Error reports a failed step of the credential exchange.
type Error struct {
	Step string // "ticket" or "session"
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("auth %s exchange failed: %v", e.Step, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds everything needed to resolve a streaming endpoint.
type Config struct {
	Username string
	Password string

	// TicketURL is the CAS ticket-issuing endpoint.
	TicketURL string

	// SessionURL is the user/session-info endpoint.
	SessionURL string

	// StreamHost is the host the final wss:// URL is assembled against.
	StreamHost string

	// ServicePrefix is prepended to the returned path when missing.
	ServicePrefix string

	// Channels are appended as one event query parameter each.
	Channels []string
}

// Broker resolves fresh streaming endpoints. It performs no retries of its
// own; retry policy belongs to the supervisor. A rate limiter paces upstream
// calls so a tight reconnect loop cannot hammer the venue.
type Broker struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *logrus.Logger
}

// NewBroker creates a Broker for one channel set.
func NewBroker(cfg Config, log *logrus.Logger) *Broker {
	return &Broker{
		cfg:     cfg,
		client:  &http.Client{Timeout: requestTimeout},
		limiter: rate.NewLimiter(rate.Every(2*time.Second), 1),
		log:     log,
	}
}

// AcquireEndpoint performs the two-step credential exchange and returns the
// assembled wss:// URL for the configured channels.
func (b *Broker) AcquireEndpoint(ctx context.Context) (string, error) {
	if err := b.limiter.Wait(ctx); err != nil {
		return "", err
	}

	ticket, err := b.requestTicket(ctx)
	if err != nil {
		return "", &Error{Step: "ticket", Err: err}
	}

	path, err := b.requestEndpointPath(ctx, ticket)
	if err != nil {
		return "", &Error{Step: "session", Err: err}
	}

	endpoint := b.assembleURL(path)
	b.log.WithField("endpoint", endpoint).Info("Resolved streaming endpoint")
	return endpoint, nil
}

// requestTicket posts the credentials and returns the plain-text TGT.
// Success is strictly 201 Created.
func (b *Broker) requestTicket(ctx context.Context) (string, error) {
	form := url.Values{
		"username": {b.cfg.Username},
		"password": {b.cfg.Password},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.TicketURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 120))
	}

	ticket := strings.TrimSpace(string(body))
	if ticket == "" {
		return "", fmt.Errorf("empty ticket body")
	}
	return ticket, nil
}

// sessionResponse mirrors the user-info JSON shape down to the endpoint path.
type sessionResponse struct {
	Body struct {
		Content struct {
			WebSocketDto struct {
				URL string `json:"url"`
			} `json:"webSocketDto"`
		} `json:"content"`
	} `json:"body"`
}

// requestEndpointPath presents the ticket and extracts the websocket path.
func (b *Broker) requestEndpointPath(ctx context.Context, ticket string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.cfg.SessionURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("TGT", ticket)
	req.Header.Set("Accept", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(body), 120))
	}

	var session sessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return "", fmt.Errorf("decoding session response: %w", err)
	}

	path := session.Body.Content.WebSocketDto.URL
	if path == "" {
		return "", fmt.Errorf("session response carries no websocket url")
	}
	return path, nil
}

// assembleURL normalizes the path prefix and appends one event parameter per
// subscribed channel.
func (b *Broker) assembleURL(path string) string {
	if !strings.HasPrefix(path, b.cfg.ServicePrefix) {
		path = b.cfg.ServicePrefix + path
	}

	var params strings.Builder
	for _, channel := range b.cfg.Channels {
		params.WriteString("&event=")
		params.WriteString(url.QueryEscape(channel))
	}

	query := params.String()
	if query == "" {
		return "wss://" + b.cfg.StreamHost + path
	}
	if strings.Contains(path, "?") {
		return "wss://" + b.cfg.StreamHost + path + query
	}
	return "wss://" + b.cfg.StreamHost + path + "?" + query[1:]
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
