package core

import "sync"

// StepLimiter enforces the maximum number of model steps in a single run.
type StepLimiter struct {
	max   int
	count int
	mu    sync.Mutex
}

// NewStepLimiter creates a new limiter. If max <= 0, unlimited steps are allowed.
func NewStepLimiter(max int) *StepLimiter {
	return &StepLimiter{max: max}
}

// Increment consumes one step and returns its 1-based index. It returns a
// *BudgetExceededError without consuming when the ceiling is already reached.
func (sl *StepLimiter) Increment() (int, error) {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max > 0 && sl.count >= sl.max {
		return sl.count, &BudgetExceededError{MaxSteps: sl.max}
	}

	sl.count++

	return sl.count, nil
}

// Count returns the number of steps consumed so far.
func (sl *StepLimiter) Count() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	return sl.count
}

// Max returns the configured ceiling (0 means unlimited).
func (sl *StepLimiter) Max() int { return sl.max }

// Remaining returns how many steps are left before hitting the limit.
func (sl *StepLimiter) Remaining() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()

	if sl.max <= 0 {
		return -1 // unlimited
	}

	return sl.max - sl.count
}
