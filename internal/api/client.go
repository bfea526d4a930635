package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"dmchat/internal/session"
	dmchat_errors "dmchat/pkg/errors"
	"dmchat/pkg/logger"
)

const maxErrorBody = 64 * 1024

// Client calls the chat HTTP API. Authenticated calls take the bearer token
// from the injected TokenSource on every request.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  session.TokenSource
	log     *logger.Logger
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

func WithLogger(l *logger.Logger) Option {
	return func(c *Client) { c.log = l.Named("api") }
}

func NewClient(baseURL string, tokens session.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		tokens:  tokens,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveURL turns a server-relative path such as an image url into an
// absolute one.
func (c *Client) ResolveURL(path string) string {
	if path == "" || strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

type request struct {
	method      string
	path        string
	body        io.Reader
	contentType string
	auth        bool
}

func (r request) op() string {
	path := r.path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	return r.method + " " + path
}

func (c *Client) jsonRequest(method, path string, in any, auth bool) (request, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return request{}, err
	}
	return request{method: method, path: path, body: bytes.NewReader(data), contentType: "application/json", auth: auth}, nil
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	op := r.op()
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseURL+r.path, r.body)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	req.Header.Set("Accept", "application/json")
	if r.auth {
		token, err := c.tokens.Token()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Ctx(ctx).Warn("request failed", zap.String("op", op), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", op, dmchat_errors.ErrTransport, err)
	}
	defer resp.Body.Close()

	c.log.Ctx(ctx).Debug("request done",
		zap.String("op", op),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(started)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &dmchat_errors.APIError{Op: op, Status: resp.StatusCode, Detail: readDetail(resp.Body)}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// readDetail extracts the "detail" of an error body. Validation errors carry
// a list there; it is kept as raw JSON.
func readDetail(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(data, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(data))
	}
	var text string
	if err := json.Unmarshal(payload.Detail, &text); err == nil {
		return text
	}
	return string(payload.Detail)
}
