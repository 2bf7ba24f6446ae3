package control

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"rmsched/internal/sched"
)

var (
	// ErrMalformedRequest is returned for a request line that does not parse.
	ErrMalformedRequest = errors.New("control: malformed request")
	// ErrShortBuffer is returned by a status read whose capacity cannot hold the snapshot.
	ErrShortBuffer = errors.New("control: status buffer too small")
)

// Action is the first field of a request line.
type Action byte

const (
	ActionRegister   Action = 'R'
	ActionYield      Action = 'Y'
	ActionDeregister Action = 'D'
)

// Request is one parsed control-channel line.
type Request struct {
	Action Action
	ID     sched.TaskID
	Period uint64 // time units, Register only
	Budget uint64 // time units, Register only
}

// ParseRequest parses "R,<id>,<period>,<budget>", "Y,<id>" or "D,<id>".
// Surrounding whitespace and trailing NULs are ignored.
func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\x00")
	line = strings.TrimSpace(line)
	fields := strings.Split(line, ",")

	if len(fields[0]) != 1 {
		return Request{}, fmt.Errorf("%w: bad action in %q", ErrMalformedRequest, line)
	}
	req := Request{Action: Action(fields[0][0])}

	want := 2
	switch req.Action {
	case ActionRegister:
		want = 4
	case ActionYield, ActionDeregister:
	default:
		return Request{}, fmt.Errorf("%w: unknown action %q", ErrMalformedRequest, fields[0])
	}
	if len(fields) != want {
		return Request{}, fmt.Errorf("%w: %c wants %d fields, got %d", ErrMalformedRequest, req.Action, want, len(fields))
	}

	nums := make([]uint64, len(fields)-1)
	for i, f := range fields[1:] {
		n, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return Request{}, fmt.Errorf("%w: field %d: %v", ErrMalformedRequest, i+2, err)
		}
		nums[i] = n
	}

	req.ID = sched.TaskID(nums[0])
	if req.Action == ActionRegister {
		req.Period, req.Budget = nums[1], nums[2]
		if req.Period == 0 || req.Budget == 0 {
			return Request{}, fmt.Errorf("%w: period and budget must be positive", ErrMalformedRequest)
		}
	}
	return req, nil
}

// String renders the request in wire form.
func (r Request) String() string {
	if r.Action == ActionRegister {
		return fmt.Sprintf("R,%d,%d,%d", r.ID, r.Period, r.Budget)
	}
	return fmt.Sprintf("%c,%d", r.Action, r.ID)
}

// StatusLine is one line of the status snapshot.
type StatusLine struct {
	ID     sched.TaskID
	Period uint64
	Budget uint64
	State  sched.State
}

// ParseStatus parses the output of a status read.
func ParseStatus(data string) ([]StatusLine, error) {
	var out []StatusLine
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		f := strings.Split(line, ",")
		if len(f) != 4 {
			return nil, fmt.Errorf("status line %q: want 4 fields", line)
		}
		var nums [4]uint64
		for i := range f {
			n, err := strconv.ParseUint(f[i], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("status line %q: %w", line, err)
			}
			nums[i] = n
		}
		out = append(out, StatusLine{
			ID:     sched.TaskID(nums[0]),
			Period: nums[1],
			Budget: nums[2],
			State:  sched.State(nums[3]),
		})
	}
	return out, nil
}
