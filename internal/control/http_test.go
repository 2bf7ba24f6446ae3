package control

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

func newTestServer(t *testing.T) (*httptest.Server, *sched.Scheduler, *sched.ManualClock) {
	t.Helper()
	a, s, clock := newTestAdapter(t)
	ts := httptest.NewServer(NewHandler(a, 512, logging.Discard()))
	t.Cleanup(ts.Close)
	return ts, s, clock
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url+"/status", "text/plain", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %q: %v", body, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHandler_WriteStatusCodes(t *testing.T) {
	ts, _, _ := newTestServer(t)

	tests := []struct {
		body string
		want int
	}{
		{"R,1,50,10", http.StatusNoContent},
		{"R,2,10,8", http.StatusNoContent}, // rejected by admission, silently
		{"R,1,50,10", http.StatusBadRequest},
		{"bogus", http.StatusBadRequest},
		{"D,99", http.StatusNotFound},
		{"Y,99", http.StatusNotFound},
		{"D,1", http.StatusNoContent},
	}
	for _, tt := range tests {
		if resp := post(t, ts.URL, tt.body); resp.StatusCode != tt.want {
			t.Errorf("POST %q status=%d, want %d", tt.body, resp.StatusCode, tt.want)
		}
	}
}

func TestHandler_ReadStatus(t *testing.T) {
	ts, _, clock := newTestServer(t)
	post(t, ts.URL, "R,1,50,10")
	clock.Advance(50 * time.Millisecond)

	resp, err := http.Get(ts.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK || string(body) != "1,50,10,1\n" {
		t.Fatalf("GET /status = %d %q", resp.StatusCode, body)
	}

	short, err := http.Get(ts.URL + "/status?size=3")
	if err != nil {
		t.Fatalf("GET /status?size=3: %v", err)
	}
	defer short.Body.Close()
	body, _ = io.ReadAll(short.Body)
	if len(body) != 0 || short.Header.Get(truncatedHeader) != "true" {
		t.Fatalf("short read = %q, header=%q", body, short.Header.Get(truncatedHeader))
	}

	bad, err := http.Get(ts.URL + "/status?size=x")
	if err != nil {
		t.Fatalf("GET /status?size=x: %v", err)
	}
	bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("size=x status=%d, want 400", bad.StatusCode)
	}
}

func TestClient(t *testing.T) {
	ts, s, clock := newTestServer(t)
	c := NewClient(ts.URL+"/", ts.Client())
	ctx := context.Background()

	if err := c.Register(ctx, 1, 100, 30); err != nil {
		t.Fatalf("Register err=%v", err)
	}
	if err := c.Deregister(ctx, 5); !errors.Is(err, sched.ErrUnknownTask) {
		t.Fatalf("Deregister(5) err=%v, want ErrUnknownTask", err)
	}
	if err := c.Send(ctx, Request{Action: ActionRegister, ID: 1, Period: 100, Budget: 30}); !errors.Is(err, ErrMalformedRequest) {
		t.Fatalf("duplicate Register err=%v, want ErrMalformedRequest", err)
	}

	lines, err := c.Status(ctx, 0)
	if err != nil {
		t.Fatalf("Status err=%v", err)
	}
	if len(lines) != 1 || lines[0] != (StatusLine{ID: 1, Period: 100, Budget: 30, State: sched.StateSleeping}) {
		t.Fatalf("Status = %+v", lines)
	}
	if _, err := c.Status(ctx, 2); !errors.Is(err, ErrShortBuffer) {
		t.Fatalf("Status(2) err=%v, want ErrShortBuffer", err)
	}

	// yield over HTTP blocks until the task is dispatched
	done := make(chan error, 1)
	go func() { done <- c.Yield(ctx, 1) }()
	deadline := time.Now().Add(time.Second)
	for {
		ti, _ := s.Registry().Find(1)
		if !ti.NextDeadline.IsZero() {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("yield never reached the scheduler")
		}
		time.Sleep(time.Millisecond)
	}
	clock.Advance(70 * time.Millisecond)
	s.Dispatcher().Pass()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Yield err=%v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Yield did not return")
	}

	// a yield that is waiting when the task is deregistered gets 410
	go func() { done <- c.Yield(ctx, 1) }()
	deadlineSleep := time.Now().Add(time.Second)
	for {
		ti, _ := s.Registry().Find(1)
		if ti.State == sched.StateSleeping {
			break
		}
		if time.Now().After(deadlineSleep) {
			t.Fatal("second yield never reached the scheduler")
		}
		time.Sleep(time.Millisecond)
	}
	if err := c.Deregister(ctx, 1); err != nil {
		t.Fatalf("Deregister err=%v", err)
	}
	if err := <-done; !errors.Is(err, sched.ErrTaskRemoved) {
		t.Fatalf("Yield after deregister err=%v, want ErrTaskRemoved", err)
	}
}

func TestClient_UnavailableErrors(t *testing.T) {
	ts, s, _ := newTestServer(t)
	c := NewClient(ts.URL, ts.Client())
	ctx := context.Background()

	if err := errorFor(http.StatusServiceUnavailable, "sched: cannot allocate task: 64 tasks admitted"); !errors.Is(err, sched.ErrResourceExhausted) {
		t.Fatalf("errorFor(503, exhausted) = %v, want ErrResourceExhausted", err)
	}

	s.Shutdown()
	err := c.Register(ctx, 1, 100, 10)
	if !errors.Is(err, sched.ErrClosed) {
		t.Fatalf("Register after shutdown err=%v, want ErrClosed", err)
	}
	if errors.Is(err, sched.ErrResourceExhausted) {
		t.Fatalf("Register after shutdown err=%v also matches ErrResourceExhausted", err)
	}
}

func TestHandler_Healthz(t *testing.T) {
	ts, _, _ := newTestServer(t)
	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status=%d", resp.StatusCode)
	}
}
