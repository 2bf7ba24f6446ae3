package control

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"rmsched/internal/logging"
	"rmsched/internal/sched"
)

// Scheduler is what the adapter drives.
type Scheduler interface {
	Register(id sched.TaskID, period, budget time.Duration) error
	Yield(ctx context.Context, id sched.TaskID) error
	Deregister(id sched.TaskID) error
	Snapshot() []sched.TaskInfo
}

// Adapter turns control-channel lines into scheduler calls and renders the
// status snapshot. It keeps no state between calls.
type Adapter struct {
	s      Scheduler
	unit   time.Duration
	logger *slog.Logger
}

// NewAdapter returns an adapter whose protocol time unit is unit.
func NewAdapter(s Scheduler, unit time.Duration, logger *slog.Logger) *Adapter {
	if unit <= 0 {
		unit = time.Millisecond
	}
	return &Adapter{s: s, unit: unit, logger: logging.Component(logger, "control")}
}

// Write executes one request line. A registration refused by admission
// control is not an error here: the request was well formed, it simply
// produced no task.
func (a *Adapter) Write(ctx context.Context, line string) error {
	req, err := ParseRequest(line)
	if err != nil {
		a.logger.Warn("fail to interpret command", "line", line, "error", err)
		return err
	}
	return a.Do(ctx, req)
}

// Do executes a parsed request.
func (a *Adapter) Do(ctx context.Context, req Request) error {
	switch req.Action {
	case ActionRegister:
		if limit := uint64(math.MaxInt64 / int64(a.unit)); req.Period > limit || req.Budget > limit {
			return fmt.Errorf("%w: period/budget out of range", ErrMalformedRequest)
		}
		err := a.s.Register(req.ID, time.Duration(req.Period)*a.unit, time.Duration(req.Budget)*a.unit)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, sched.ErrAdmissionRejected):
			a.logger.Info("registration rejected", "task", req.ID, "error", err)
			return nil
		case errors.Is(err, sched.ErrDuplicateTask), errors.Is(err, sched.ErrInvalidParams):
			return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
		default:
			return err
		}
	case ActionYield:
		return a.s.Yield(ctx, req.ID)
	case ActionDeregister:
		return a.s.Deregister(req.ID)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrMalformedRequest, req.Action)
	}
}

// Read renders the status snapshot. If it does not fit in capacity bytes,
// nothing is returned and the error is ErrShortBuffer.
func (a *Adapter) Read(capacity int) ([]byte, error) {
	out := FormatStatus(a.s.Snapshot(), a.unit)
	if len(out) > capacity {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, len(out), capacity)
	}
	return out, nil
}

// FormatStatus renders "<id>,<period>,<budget>,<state>\n" per task, with
// durations expressed in unit.
func FormatStatus(tasks []sched.TaskInfo, unit time.Duration) []byte {
	var buf bytes.Buffer
	for _, t := range tasks {
		fmt.Fprintf(&buf, "%d,%d,%d,%d\n", t.ID, t.Period/unit, t.Budget/unit, int(t.State))
	}
	return buf.Bytes()
}
