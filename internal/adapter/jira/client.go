// Package jira creates issues through the Jira Cloud REST API v3.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Strob0t/CaseForge/internal/adapter/otel"
	"github.com/Strob0t/CaseForge/internal/config"
	"github.com/Strob0t/CaseForge/internal/domain"
	"github.com/Strob0t/CaseForge/internal/port/tracker"
	"github.com/Strob0t/CaseForge/internal/resilience"
)

const issuePath = "/rest/api/3/issue"

// APIError is a non-2xx answer from Jira.
type APIError struct {
	Code     int
	Messages []string
}

func (e *APIError) Error() string {
	if len(e.Messages) == 0 {
		return fmt.Sprintf("jira API error %d", e.Code)
	}
	return fmt.Sprintf("jira API error %d: %s", e.Code, strings.Join(e.Messages, "; "))
}

// Unwrap lets errors.Is(err, domain.ErrUpstream) succeed.
func (e *APIError) Unwrap() error { return domain.ErrUpstream }

// Client creates Jira issues. Calls are rate limited and, when a breaker is
// set, short-circuited while Jira is failing.
type Client struct {
	baseURL    string
	email      string
	token      string
	limiter    *rate.Limiter
	httpClient *http.Client
	breaker    *resilience.Breaker
}

var _ tracker.Tracker = (*Client)(nil)

// NewClient creates a client from cfg.
func NewClient(cfg config.Jira) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		email:   cfg.Email,
		token:   cfg.APIToken,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otel.Transport(http.DefaultTransport),
		},
	}
}

// SetBreaker attaches a circuit breaker. Only 5xx answers and transport
// failures count against it.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b.CountOnly(func(err error) bool {
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return apiErr.Code >= 500
		}
		return true
	})
}

// Name returns "jira".
func (c *Client) Name() string { return "jira" }

// CreateIssue creates issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, issue tracker.Issue) (key string, err error) {
	ctx, span := otel.StartClientSpan(ctx, "jira", "create_issue")
	defer func() { otel.End(span, err) }()

	body, err := json.Marshal(createRequest(issue))
	if err != nil {
		return "", fmt.Errorf("marshal issue: %w", err)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("jira rate limit: %w", err)
	}

	call := func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+issuePath, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		req.SetBasicAuth(c.email, c.token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: http request: %w", domain.ErrUpstream, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return apiError(resp.StatusCode, data)
		}

		var created struct {
			ID  string `json:"id"`
			Key string `json:"key"`
		}
		if err := json.Unmarshal(data, &created); err != nil {
			return fmt.Errorf("%w: unmarshal response: %w", domain.ErrUpstream, err)
		}
		if created.Key == "" {
			return fmt.Errorf("%w: jira returned no issue key", domain.ErrUpstream)
		}
		key = created.Key
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Do(ctx, call)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return "", fmt.Errorf("create %s issue in %s: %w", issue.Type, issue.ProjectKey, err)
	}
	return key, nil
}

type fields struct {
	Project     keyRef   `json:"project"`
	Summary     string   `json:"summary"`
	Description *doc     `json:"description,omitempty"`
	IssueType   nameRef  `json:"issuetype"`
	Labels      []string `json:"labels,omitempty"`
	Parent      *keyRef  `json:"parent,omitempty"`
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

// doc is the subset of the Atlassian Document Format needed for plain text.
type doc struct {
	Type    string `json:"type"`
	Version int    `json:"version,omitempty"`
	Content []node `json:"content"`
}

type node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Content []node `json:"content,omitempty"`
}

func createRequest(issue tracker.Issue) map[string]fields {
	f := fields{
		Project:   keyRef{Key: issue.ProjectKey},
		Summary:   issue.Summary,
		IssueType: nameRef{Name: string(issue.Type)},
		Labels:    issue.Labels,
	}
	if issue.Description != "" {
		f.Description = plainDoc(issue.Description)
	}
	if issue.ParentKey != "" {
		f.Parent = &keyRef{Key: issue.ParentKey}
	}
	return map[string]fields{"fields": f}
}

// plainDoc renders text as one paragraph per line.
func plainDoc(text string) *doc {
	d := &doc{Type: "doc", Version: 1}
	for line := range strings.SplitSeq(text, "\n") {
		if line = strings.TrimSpace(line); line == "" {
			continue
		}
		d.Content = append(d.Content, node{Type: "paragraph", Content: []node{{Type: "text", Text: line}}})
	}
	return d
}

func apiError(code int, body []byte) *APIError {
	var payload struct {
		ErrorMessages []string          `json:"errorMessages"`
		Errors        map[string]string `json:"errors"`
	}
	e := &APIError{Code: code}
	if json.Unmarshal(body, &payload) != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			e.Messages = []string{s}
		}
		return e
	}
	e.Messages = append(e.Messages, payload.ErrorMessages...)
	for field, msg := range payload.Errors {
		e.Messages = append(e.Messages, field+": "+msg)
	}
	return e
}
