// Package remote implements the server-facing store over HTTP. All
// payloads are JSON; asset content never travels through here, only
// descriptors, users, threads and interaction metadata.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"framesync/pkg/logger"
	"framesync/pkg/metrics"
	"framesync/pkg/models"
)

// Client talks to the sync server. Safe for concurrent use; requests
// are throttled through a shared rate limiter so interaction fan-outs
// across many anchors cannot stampede the server.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *fasthttp.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

type Option func(*Client)

// WithRateLimit caps outgoing requests per second with the given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

func New(baseURL, authToken string, opts ...Option) *Client {
	c := &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &fasthttp.Client{
			MaxConnsPerHost:     64,
			ReadTimeout:         30 * time.Second,
			WriteTimeout:        10 * time.Second,
			MaxIdleConnDuration: 90 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(20), 40),
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	endpoint := endpointLabel(path)
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "rate limit wait")
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(c.baseURL + path)
	req.Header.SetMethod(method)
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		req.Header.SetContentType("application/json")
		req.SetBody(payload)
	}

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.httpClient.DoDeadline(req, resp, deadline); err != nil {
		metrics.RemoteRequests.WithLabelValues(endpoint, "transport_error").Inc()
		return errors.Wrapf(err, "%s %s", method, path)
	}

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		metrics.RemoteRequests.WithLabelValues(endpoint, fmt.Sprintf("http_%d", status)).Inc()
		logger.Warn("remote_request_failed", "method", method, "path", path, "status", status)
		return errors.Newf("%s %s: status %d", method, path, status)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			metrics.RemoteRequests.WithLabelValues(endpoint, "decode_error").Inc()
			return errors.Wrapf(err, "decode %s response", path)
		}
	}
	metrics.RemoteRequests.WithLabelValues(endpoint, "ok").Inc()
	return nil
}

// GetDescriptors fetches the full authoritative descriptor set.
func (c *Client) GetDescriptors(ctx context.Context) ([]models.AssetDescriptor, error) {
	var out struct {
		Descriptors []models.AssetDescriptor `json:"descriptors"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/assets/descriptors", nil, &out); err != nil {
		return nil, err
	}
	return out.Descriptors, nil
}

// GetUsers resolves user records for the given ids.
func (c *Client) GetUsers(ctx context.Context, userIDs []string) ([]models.User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	in := struct {
		UserIdentifiers []string `json:"user_identifiers"`
	}{UserIdentifiers: userIDs}
	var out struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, fasthttp.MethodPost, "/users/retrieve", in, &out); err != nil {
		return nil, err
	}
	return out.Users, nil
}

// ListThreads fetches every thread this user is a member of.
func (c *Client) ListThreads(ctx context.Context) ([]models.ConversationThread, error) {
	var out struct {
		Threads []models.ConversationThread `json:"threads"`
	}
	if err := c.do(ctx, fasthttp.MethodGet, "/threads", nil, &out); err != nil {
		return nil, err
	}
	return out.Threads, nil
}

// RetrieveInteractions fetches one anchor's interactions, newest first.
// limit 0 means no pagination.
func (c *Client) RetrieveInteractions(ctx context.Context, anchor models.InteractionAnchor, anchorID string, typ models.InteractionType, before *time.Time, limit int) (models.InteractionsGroup, error) {
	in := struct {
		Type   string     `json:"type,omitempty"`
		Before *time.Time `json:"before,omitempty"`
		Limit  int        `json:"limit,omitempty"`
	}{Type: string(typ), Before: before, Limit: limit}
	var out models.InteractionsGroup
	path := fmt.Sprintf("/interactions/%s/%s/retrieve", anchor, anchorID)
	if err := c.do(ctx, fasthttp.MethodPost, path, in, &out); err != nil {
		return models.InteractionsGroup{}, err
	}
	return out, nil
}

// TopLevelInteractionsSummary fetches the cheap thread/group projection.
func (c *Client) TopLevelInteractionsSummary(ctx context.Context) (models.InteractionsSummary, error) {
	var out models.InteractionsSummary
	if err := c.do(ctx, fasthttp.MethodGet, "/interactions/summary", nil, &out); err != nil {
		return models.InteractionsSummary{}, err
	}
	return out, nil
}

// endpointLabel strips path parameters so metric cardinality stays flat.
func endpointLabel(path string) string {
	switch {
	case path == "/assets/descriptors":
		return "descriptors"
	case path == "/users/retrieve":
		return "users"
	case path == "/threads":
		return "threads"
	case path == "/interactions/summary":
		return "summary"
	default:
		return "interactions"
	}
}
