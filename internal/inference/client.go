// Package inference is the HTTP client for an Ollama-compatible model
// server.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/starford/mnemo/internal/apperr"
)

// Fixed per-operation timeouts.
const (
	MetadataTimeout = 30 * time.Second
	GenerateTimeout = 120 * time.Second
	PullTimeout     = 600 * time.Second
)

const service = "ollama"

// Config configures a Client.
type Config struct {
	Host         string
	Port         int
	DefaultModel string
	EmbedModel   string

	// BreakerMaxFailures is the number of consecutive unreachable failures
	// that open the circuit. Zero disables the breaker.
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
}

// BaseURL renders host and port as an http URL. A host that already
// carries a scheme is used as is.
func (c Config) BaseURL() string {
	host := strings.TrimRight(c.Host, "/")
	if host == "" {
		host = "localhost"
	}
	if !strings.Contains(host, "://") {
		host = "http://" + host
	}
	if c.Port > 0 && !hasPort(host) {
		host += ":" + strconv.Itoa(c.Port)
	}
	return host
}

func hasPort(u string) bool {
	hostport := u[strings.Index(u, "://")+3:]
	_, _, err := net.SplitHostPort(hostport)
	return err == nil
}

// Client talks to the model server.
type Client struct {
	baseURL      string
	http         *http.Client
	breaker      *gobreaker.CircuitBreaker
	defaultModel string
	embedModel   string
}

// New creates a Client. Timeouts are applied per call through the
// context, so the underlying http.Client has none.
func New(cfg Config) *Client {
	c := &Client{
		baseURL:      cfg.BaseURL(),
		http:         &http.Client{},
		defaultModel: cfg.DefaultModel,
		embedModel:   cfg.EmbedModel,
	}
	if cfg.BreakerMaxFailures > 0 {
		timeout := cfg.BreakerOpenTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        service,
			MaxRequests: 1,
			Timeout:     timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.BreakerMaxFailures
			},
			// Only an unreachable server counts against the breaker.
			IsSuccessful: func(err error) bool {
				return err == nil || !errors.Is(err, apperr.ErrServiceUnreachable)
			},
		})
	}
	return c
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// BreakerState reports the circuit state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

func (c *Client) guard(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w: %v", service, apperr.ErrServiceUnreachable, err)
	}
	return err
}

// send performs the request and returns the response when the status is
// 2xx. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, in any) (*http.Response, error) {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("%s: encode %s: %w", service, path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", service, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %s %s: %w: %v", service, method, path, apperr.ErrServiceUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &apperr.StatusError{Service: service, StatusCode: resp.StatusCode, Body: errorBody(raw)}
	}
	return resp, nil
}

// errorBody prefers the server's {"error": "..."} message over the raw body.
func errorBody(raw []byte) string {
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &e) == nil && e.Error != "" {
		return e.Error
	}
	return strings.TrimSpace(string(raw))
}

func (c *Client) call(ctx context.Context, timeout time.Duration, method, path string, in, out any) error {
	return c.guard(func() error {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		resp, err := c.send(ctx, method, path, in)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%s: decode %s: %w: %v", service, path, apperr.ErrUnexpectedResponse, err)
		}
		return nil
	})
}

func (c *Client) model(requested string) (string, error) {
	if requested != "" {
		return requested, nil
	}
	if c.defaultModel != "" {
		return c.defaultModel, nil
	}
	return "", fmt.Errorf("%s: model is required: %w", service, apperr.ErrValidation)
}

// Version returns the server version. It doubles as a liveness check.
func (c *Client) Version(ctx context.Context) (string, error) {
	var out struct {
		Version string `json:"version"`
	}
	if err := c.call(ctx, MetadataTimeout, http.MethodGet, "/api/version", nil, &out); err != nil {
		return "", err
	}
	return out.Version, nil
}
