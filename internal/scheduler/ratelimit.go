package scheduler

// Default per-tick agent creation caps by model class. The limits are global
// across tenants because the upstream provider enforces them at the
// organization level, not per tenant.
const (
	DefaultSmallCap = 2
	DefaultLargeCap = 5
)

// RateLimiter counts agents created during one scheduler tick, per model
// class. It is created fresh at the start of every tick and discarded at the
// end; no state crosses ticks, so a slow tick never borrows against a future
// tick's budget. It is an explicit value passed through the skip checks, not
// process-wide shared state, and it is not safe for concurrent use; the
// tick processes jobs sequentially.
type RateLimiter struct {
	counts map[ModelClass]int
	caps   map[ModelClass]int
}

// NewRateLimiter creates a limiter for one tick. Non-positive caps select the
// defaults.
func NewRateLimiter(smallCap, largeCap int) *RateLimiter {
	if smallCap <= 0 {
		smallCap = DefaultSmallCap
	}
	if largeCap <= 0 {
		largeCap = DefaultLargeCap
	}
	return &RateLimiter{
		counts: make(map[ModelClass]int),
		caps: map[ModelClass]int{
			ClassSmall: smallCap,
			ClassLarge: largeCap,
		},
	}
}

// Count returns how many agents were created for the class this tick.
func (r *RateLimiter) Count(class ModelClass) int {
	return r.counts[class]
}

// Cap returns the class budget for this tick.
func (r *RateLimiter) Cap(class ModelClass) int {
	return r.caps[class]
}

// AtCap reports whether the class has exhausted its budget.
func (r *RateLimiter) AtCap(class ModelClass) bool {
	return r.counts[class] >= r.caps[class]
}

// Increment records one created agent for the class. The scheduler calls this
// immediately after staging each agent, before evaluating the next job, so
// later skip checks see up-to-date counts within the same tick.
func (r *RateLimiter) Increment(class ModelClass) {
	r.counts[class]++
}
