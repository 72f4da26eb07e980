package uplink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/roman-kulish/drone-uplink/internal/telemetry"
)

const (
	// DefaultTimeout is the per-request timeout, independent of the send interval.
	DefaultTimeout = 10 * time.Second

	userAgentFormat = "DroneUplink/%s"

	contentType      = "application/json"
	maxBodySize      = 4 << 10 // bytes of a response body to read
	maxDetailsLength = 100
	maxRawBodyLength = 150
)

// WithTimeout sets the per-request timeout
func WithTimeout(d time.Duration) func(*Client) {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHTTPClient sets the HTTP client used for requests
func WithHTTPClient(hc *http.Client) func(*Client) {
	return func(c *Client) {
		c.http = hc
	}
}

// WithLogger sets the logger for the client
func WithLogger(logger *slog.Logger) func(*Client) {
	return func(c *Client) {
		c.logger = logger.With(slog.String("component", "uplink"))
	}
}

// Client posts readings to the collector. A Client performs exactly one
// request per Send and never retries.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a new Client with a discard logger
func NewClient(options ...func(*Client)) *Client {
	c := Client{
		http:    &http.Client{},
		timeout: DefaultTimeout,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)), // nil logger
	}

	for _, option := range options {
		option(&c)
	}

	return &c
}

// Send transmits r to endpoint on behalf of identifier. Every failure is
// reported through the returned Outcome.
func (c *Client) Send(ctx context.Context, r telemetry.Reading, endpoint, identifier string) Outcome {
	start := time.Now()
	outcome := c.send(ctx, r, endpoint, identifier)
	outcome.Latency = time.Since(start)

	c.logger.Debug("uplink attempt",
		slog.String("outcome", outcome.Kind.String()),
		slog.Int("status", outcome.StatusCode),
		slog.Duration("latency", outcome.Latency),
	)

	return outcome
}

func (c *Client) send(ctx context.Context, r telemetry.Reading, endpoint, identifier string) Outcome {
	body, err := json.Marshal(NewPayload(r, identifier))
	if err != nil {
		return Outcome{Kind: LocalError, Message: fmt.Sprintf("encoding payload: %s", err.Error())}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return Outcome{Kind: LocalError, Message: fmt.Sprintf("building request: %s", err.Error())}
	}
	if req.URL.Scheme != "http" && req.URL.Scheme != "https" {
		return Outcome{Kind: LocalError, Message: fmt.Sprintf("unsupported endpoint scheme '%s'", req.URL.Scheme)}
	}

	req.Header.Set("Content-Type", contentType)
	if identifier != "" {
		req.Header.Set("User-Agent", fmt.Sprintf(userAgentFormat, identifier))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return transportOutcome(err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated {
		return Outcome{Kind: Delivered, StatusCode: resp.StatusCode}
	}

	return Outcome{
		Kind:       Rejected,
		StatusCode: resp.StatusCode,
		Message:    rejectionMessage(resp.StatusCode, raw),
	}
}

func transportOutcome(err error) Outcome {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return Outcome{Kind: Timeout, Message: err.Error()}
	}
	return Outcome{Kind: NetworkError, Message: err.Error()}
}

// errorBody is the error document returned by the collector.
type errorBody struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Details json.RawMessage `json:"details"`
}

// rejectionMessage extracts "<error> | <details>" from a structured body and
// falls back to the truncated raw body otherwise.
func rejectionMessage(status int, raw []byte) string {
	var body errorBody
	if err := json.Unmarshal(raw, &body); err == nil && (body.Error != "" || body.Message != "") {
		msg := body.Error
		if msg == "" {
			msg = body.Message
		}
		if details := detailsText(body.Details); details != "" {
			msg = fmt.Sprintf("%s | %s", msg, truncate(details, maxDetailsLength))
		}
		return msg
	}

	text := strings.TrimSpace(string(raw))
	if text == "" {
		return http.StatusText(status)
	}
	return truncate(text, maxRawBodyLength)
}

func detailsText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
