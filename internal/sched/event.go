// internal/sched/event.go

package sched

import (
	"time"
)

// EventKind represents the type of scheduler event
type EventKind int

const (
	EventAdmit EventKind = iota
	EventReject
	EventWakeup
	EventDispatch
	EventPreempt
	EventYield
	EventDeregister
	EventIdle
)

// Event is emitted on every lifecycle transition the scheduler makes.
type Event struct {
	Time        time.Time
	Kind        EventKind
	TaskID      TaskID
	Period      time.Duration
	Utilization int64 // registry total after the event, ten-thousandths
}

func (k EventKind) String() string {
	switch k {
	case EventAdmit:
		return "Admit"
	case EventReject:
		return "Reject"
	case EventWakeup:
		return "Wakeup"
	case EventDispatch:
		return "Dispatch"
	case EventPreempt:
		return "Preempt"
	case EventYield:
		return "Yield"
	case EventDeregister:
		return "Deregister"
	case EventIdle:
		return "Idle"
	default:
		return "Unknown"
	}
}
