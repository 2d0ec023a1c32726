// Package agentsapi provides an HTTP client for the agent pipeline that
// generates test hierarchies from requirement text.
package agentsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/port/pipeline"
	"github.com/Strob0t/CaseForge/internal/resilience"
)

// errorPrefix marks a failure the pipeline reports inside a 200 response.
const errorPrefix = "Error processing query:"

// StatusError is a non-2xx answer from the pipeline.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agents API error %d: %s", e.Code, e.Body)
}

// Unwrap lets errors.Is(err, domain.ErrUpstream) succeed.
func (e *StatusError) Unwrap() error { return domain.ErrUpstream }

type queryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
}

type queryResponse struct {
	Response  string `json:"response"`
	DebugInfo string `json:"debug_info"`
}

// Client talks to the agent pipeline's /query endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ pipeline.Runner = (*Client)(nil)

// NewClient creates a client for baseURL. A trailing "/query" is accepted
// and stripped.
func NewClient(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimSuffix(strings.TrimSuffix(baseURL, "/"), "/query")
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otel.Transport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls. Session
// expiry and client errors do not count against it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b.CountOnly(func(err error) bool {
		var se *StatusError
		if errors.As(err, &se) {
			return se.Code >= 500
		}
		return !errors.Is(err, pipeline.ErrSessionExpired)
	})
}

// Query sends one prompt and returns the pipeline's final answer.
func (c *Client) Query(ctx context.Context, req pipeline.Request) (answer string, err error) {
	ctx, span := otel.StartClientSpan(ctx, "agents", "query")
	defer func() { otel.End(span, err) }()

	body, err := json.Marshal(queryRequest{Query: req.Prompt, SessionID: req.SessionID, UserID: req.UserID})
	if err != nil {
		return "", fmt.Errorf("marshal query: %w", err)
	}
	q := url.Values{"isnewproject": {strconv.FormatBool(req.NewSession)}}
	endpoint := c.baseURL + "/query?" + q.Encode()

	call := func(ctx context.Context) error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("session %s: %w", req.SessionID, pipeline.ErrSessionExpired)
		case resp.StatusCode >= 400:
			return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(data))}
		}

		var out queryResponse
		if err := json.Unmarshal(data, &out); err != nil {
			return fmt.Errorf("%w: unmarshal response: %w", domain.ErrUpstream, err)
		}
		if strings.HasPrefix(out.Response, errorPrefix) {
			return fmt.Errorf("%w: agents pipeline: %s", domain.ErrUpstream, strings.TrimSpace(strings.TrimPrefix(out.Response, errorPrefix)))
		}
		answer = out.Response
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("query agents: %w", err)
	}
	return answer, nil
}
