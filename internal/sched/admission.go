package sched

import (
	"math"
	"math/bits"
	"time"
)

const (
	// UtilizationScale expresses utilization in ten-thousandths.
	UtilizationScale = 10000
	// AdmissionBound is ln 2 scaled by UtilizationScale, the Liu-Layland
	// limit as n grows. It is deliberately not the per-n bound.
	AdmissionBound = 6930
)

// Utilization returns budget/period in ten-thousandths, truncated.
// The product is taken in 128 bits so long budgets cannot wrap; a ratio too
// large for int64 saturates at math.MaxInt64.
func Utilization(period, budget time.Duration) int64 {
	if period <= 0 || budget <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(budget), UtilizationScale)
	if hi >= uint64(period) {
		return math.MaxInt64
	}
	q, _ := bits.Div64(hi, lo, uint64(period))
	if q > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(q)
}

// AdmissionController decides whether a candidate task fits under the
// Rate-Monotonic bound given the tasks already in the registry.
type AdmissionController struct {
	reg *Registry
}

// NewAdmissionController returns a controller that reads utilization from reg.
func NewAdmissionController(reg *Registry) *AdmissionController {
	return &AdmissionController{reg: reg}
}

// Admit reports whether a task with the given period and budget can be added.
// It has no side effects.
func (a *AdmissionController) Admit(period, budget time.Duration) bool {
	a.reg.mu.Lock()
	defer a.reg.mu.Unlock()
	return a.admitLocked(period, budget)
}

func (a *AdmissionController) admitLocked(period, budget time.Duration) bool {
	return fits(a.reg.util, period, budget)
}

// fits is the admission test: existing + candidate <= AdmissionBound.
func fits(existing int64, period, budget time.Duration) bool {
	return Utilization(period, budget) <= AdmissionBound-existing
}
