// Package lmsapi is the HTTP gateway to the remote LMS API.
//
// Every protected call takes the bearer credential as an explicit argument;
// the client never reads it from ambient state.
package lmsapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lmsportal/internal/metrics"
)

// Client calls the LMS API.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

// New creates a client with a fixed base URL.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type request struct {
	op          string
	method      string
	path        string
	token       string
	body        io.Reader
	contentType string
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	req, err := http.NewRequestWithContext(ctx, r.method, c.BaseURL+r.path, r.body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	start := time.Now()
	resp, err := c.HTTP.Do(req)
	metrics.UpstreamLatency.WithLabelValues(r.op).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(r.op, metrics.Result(0)).Inc()
		return fmt.Errorf("%w: %s %s: %w", ErrTransport, r.method, r.path, err)
	}
	defer resp.Body.Close()
	metrics.UpstreamRequests.WithLabelValues(r.op, metrics.Result(resp.StatusCode)).Inc()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newAPIError(r.op, resp.StatusCode, body)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && err != io.EOF {
		return fmt.Errorf("lmsapi %s: decode response: %w", r.op, err)
	}
	return nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path, token string, in, out any) error {
	r := request{op: op, method: method, path: path, token: token}
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("lmsapi %s: encode request: %w", op, err)
		}
		r.body = bytes.NewReader(body)
		r.contentType = "application/json"
	}
	return c.do(ctx, r, out)
}

func seg(id string) string { return url.PathEscape(id) }
