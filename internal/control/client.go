package control

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"rmsched/internal/sched"
)

// Client talks to the HTTP control channel.
type Client struct {
	base string
	hc   *http.Client
}

// NewClient returns a client for the server at base (e.g. http://127.0.0.1:8423).
func NewClient(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), hc: hc}
}

// Register submits "R,<id>,<period>,<budget>". A nil error does not mean
// the task was admitted; check Status.
func (c *Client) Register(ctx context.Context, id sched.TaskID, period, budget uint64) error {
	return c.Send(ctx, Request{Action: ActionRegister, ID: id, Period: period, Budget: budget})
}

// Yield submits "Y,<id>" and blocks until the task is dispatched again.
func (c *Client) Yield(ctx context.Context, id sched.TaskID) error {
	return c.Send(ctx, Request{Action: ActionYield, ID: id})
}

// Deregister submits "D,<id>".
func (c *Client) Deregister(ctx context.Context, id sched.TaskID) error {
	return c.Send(ctx, Request{Action: ActionDeregister, ID: id})
}

// Send posts one request line.
func (c *Client) Send(ctx context.Context, req Request) error {
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/status", strings.NewReader(req.String()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := c.hc.Do(hreq)
	if err != nil {
		return fmt.Errorf("send %s: %w", req, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent || resp.StatusCode == http.StatusOK {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	text := strings.TrimSpace(string(msg))
	return fmt.Errorf("%w: %s", errorFor(resp.StatusCode, text), text)
}

// Status reads the snapshot with the given capacity (0 = server default).
func (c *Client) Status(ctx context.Context, size int) ([]StatusLine, error) {
	url := c.base + "/status"
	if size > 0 {
		url += "?size=" + strconv.Itoa(size)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.hc.Do(hreq)
	if err != nil {
		return nil, fmt.Errorf("read status: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read status body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		text := strings.TrimSpace(string(body))
		return nil, fmt.Errorf("%w: %s", errorFor(resp.StatusCode, text), text)
	}
	if resp.Header.Get(truncatedHeader) != "" {
		return nil, ErrShortBuffer
	}
	return ParseStatus(string(body))
}

// errorFor maps a response back to the sentinel the server started from.
// 503 covers both a full scheduler and one that is shutting down; the body
// carries the error text and tells them apart.
func errorFor(code int, body string) error {
	switch code {
	case http.StatusBadRequest:
		return ErrMalformedRequest
	case http.StatusNotFound:
		return sched.ErrUnknownTask
	case http.StatusGone:
		return sched.ErrTaskRemoved
	case http.StatusServiceUnavailable:
		if strings.Contains(body, sched.ErrClosed.Error()) {
			return sched.ErrClosed
		}
		return sched.ErrResourceExhausted
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
