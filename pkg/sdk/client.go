package scout

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultUserAgent = "scout-go"
	maxErrorBody     = 64 << 10
)

// Client is the scout API entry point. It is safe for concurrent use.
type Client struct {
	baseURL   *url.URL
	token     string
	userAgent string
	http      *http.Client
	obs       *observer
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("scout: base url required")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("scout: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("scout: unsupported scheme %q", u.Scheme)
	}

	cfg := &clientConfig{userAgent: defaultUserAgent}
	for _, o := range opts {
		o.apply(cfg)
	}
	hc := cfg.httpClient
	if hc == nil {
		hc = &http.Client{Timeout: defaultTimeout}
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:   u,
		token:     cfg.token,
		userAgent: cfg.userAgent,
		http:      hc,
		obs:       obs,
	}, nil
}

// Discover fetches one page. Pass the previous page's NextCursor in
// req.Cursor to continue a session.
func (c *Client) Discover(ctx context.Context, kind string, req DiscoverRequest) (_ *Page, err error) {
	start := time.Now()
	defer func() { c.obs.observe("discover", kind, start, err) }()

	var p Page
	if err = c.do(ctx, http.MethodPost, kindPath(kind, "discover"), req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// Pages iterates a discovery session from req onwards. Iteration stops
// after the last page or on the first error, which is yielded once.
func (c *Client) Pages(ctx context.Context, kind string, req DiscoverRequest) iter.Seq2[*Page, error] {
	return func(yield func(*Page, error) bool) {
		for {
			p, err := c.Discover(ctx, kind, req)
			if err != nil {
				yield(nil, err)
				return
			}
			c.obs.page(kind)
			if !yield(p, nil) {
				return
			}
			if !p.HasMore || p.NextCursor == "" {
				return
			}
			req.Cursor = p.NextCursor
		}
	}
}

// UpsertCandidate creates or replaces a candidate. Requires an elevated token.
func (c *Client) UpsertCandidate(ctx context.Context, kind, id string, in CandidateInput) (_ *Candidate, err error) {
	start := time.Now()
	defer func() { c.obs.observe("upsert", kind, start, err) }()

	var out Candidate
	if err = c.do(ctx, http.MethodPut, kindPath(kind, "candidates", id), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Heartbeat marks a candidate as active now and returns the stored time.
func (c *Client) Heartbeat(ctx context.Context, kind, id string) (_ time.Time, err error) {
	start := time.Now()
	defer func() { c.obs.observe("heartbeat", kind, start, err) }()

	var out heartbeatResponse
	if err = c.do(ctx, http.MethodPost, kindPath(kind, "candidates", id, "heartbeat"), nil, &out); err != nil {
		return time.Time{}, err
	}
	return out.LastActivityAt, nil
}

// Health reports server health. An unhealthy server is not an error: the
// status is returned as-is.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/health", nil)
	if err != nil {
		return HealthStatus{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("scout: health: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("scout: decode health (http %d): %w", resp.StatusCode, err)
	}
	return hs, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("scout: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("scout: decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rdr io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("scout: encode request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.String()+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("scout: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var body errorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&body); err == nil {
		apiErr.Code = body.Code
		apiErr.Message = body.Message
	}
	return apiErr
}

func kindPath(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/v1/kinds/")
	b.WriteString(url.PathEscape(kind))
	for _, p := range parts {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
