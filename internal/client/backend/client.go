// Package backend is the client for the hosted backend service: the auth
// API, the table API and the realtime change feed. A *Client is safe for
// concurrent use.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/neighborwatch/internal/logging"
)

// Options configures a Client.
type Options struct {
	// URL is the project base URL, e.g. https://<ref>.supabase.co.
	URL string
	// Key is the public (anon) API key.
	Key string

	HTTPClient *http.Client
	// Heartbeat is the realtime keep-alive interval; zero means 25s.
	Heartbeat time.Duration
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Client is a configured handle to the backend.
type Client struct {
	Auth     *AuthClient
	Realtime *RealtimeClient

	base   *url.URL
	key    string
	http   *http.Client
	now    func() time.Time
	logger logging.Logger
}

// New builds a Client. store may be nil, in which case sessions only live
// in memory.
func New(opts Options, store SessionStore, logger logging.Logger) (*Client, error) {
	if opts.URL == "" || opts.Key == "" {
		return nil, errors.New("backend: url and key are required")
	}
	base, err := url.Parse(strings.TrimRight(opts.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("backend: invalid url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported url scheme %q", base.Scheme)
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	c := &Client{
		base:   base,
		key:    opts.Key,
		http:   hc,
		now:    now,
		logger: logger,
	}
	c.Auth = newAuthClient(c, store, logger.With("component", "auth"))
	c.Realtime = newRealtimeClient(c, opts.Heartbeat, logger.With("component", "realtime"))
	return c, nil
}

// From starts a query against table.
func (c *Client) From(table string) *Query {
	return &Query{c: c, table: table, params: url.Values{}}
}

// RPC calls a database function with args encoded as JSON and decodes the
// result into dest (which may be nil).
func (c *Client) RPC(ctx context.Context, fn string, args any, dest any) error {
	req := request{
		method: http.MethodPost,
		path:   "/rest/v1/rpc/" + url.PathEscape(fn),
		body:   args,
		bearer: c.bearer(),
	}
	status, body, _, err := c.do(ctx, req)
	if err != nil {
		return err
	}
	if status >= 300 {
		return decodeAPIError(status, body)
	}
	return decodeInto(body, dest)
}

// bearer is the user's access token, or the anon key when signed out.
func (c *Client) bearer() string {
	if tok := c.Auth.AccessToken(); tok != "" {
		return tok
	}
	return c.key
}

type request struct {
	method string
	path   string
	query  url.Values
	header http.Header
	body   any
	bearer string
}

// do sends req and returns the status, the body and the response header.
// Only transport failures are returned as err.
func (c *Client) do(ctx context.Context, r request) (int, []byte, http.Header, error) {
	u := *c.base
	u.Path = c.base.Path + r.path
	if len(r.query) > 0 {
		u.RawQuery = r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, nil, fmt.Errorf("encode %s body: %w", r.path, err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u.String(), body)
	if err != nil {
		return 0, nil, nil, err
	}
	req.Header.Set("apikey", c.key)
	req.Header.Set("Accept", "application/json")
	if r.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+r.bearer)
	}
	for k, vs := range r.header {
		req.Header[k] = vs
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, nil, transportError(r.method+" "+r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, nil, transportError(r.method+" "+r.path, err)
	}
	c.logger.Debug(ctx, "backend request", "method", r.method, "path", r.path, "status", resp.StatusCode)
	return resp.StatusCode, data, resp.Header, nil
}

func decodeInto(body []byte, dest any) error {
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
