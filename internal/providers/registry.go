// Package providers tracks the registered answer providers: the current
// selection, per-provider sliding-window rate limits, attempt history, and
// the ordered fallback chain.
package providers

import (
	"log/slog"
	"sync"
	"time"
)

// DefaultHistoryCap bounds the per-provider attempt history.
const DefaultHistoryCap = 100

// Window defines a sliding-window rate limit: at most Max requests within
// the trailing Interval.
type Window struct {
	Max      int
	Interval time.Duration
}

// DefaultWindow allows 20 requests per minute.
var DefaultWindow = Window{Max: 20, Interval: time.Minute}

// Config registers one provider. Registration order is the fallback
// priority order.
type Config struct {
	Name   string
	Window Window
}

// Attempt is one recorded provider call outcome.
type Attempt struct {
	Time    time.Time
	Success bool
	Latency time.Duration
	Code    string
}

// Stats aggregates a provider's recorded outcomes.
type Stats struct {
	Success    int64
	Failure    int64
	AvgLatency time.Duration
	InWindow   int
}

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed bool
	// RetryAfter is how long until the oldest counted request leaves the
	// window. Zero when Allowed.
	RetryAfter time.Duration
}

type record struct {
	window       Window
	calls        []time.Time // request log inside the sliding window
	history      []Attempt
	success      int64
	failure      int64
	totalLatency time.Duration
}

func (r *record) prune(now time.Time) {
	cutoff := now.Add(-r.window.Interval)
	i := 0
	for i < len(r.calls) && !r.calls[i].After(cutoff) {
		i++
	}
	if i > 0 {
		r.calls = append(r.calls[:0], r.calls[i:]...)
	}
}

// Registry is the provider/fallback manager. It is explicitly constructed
// and safe for concurrent use; the mutex preserves count-then-decide
// atomicity on the shared rate-limit logs.
type Registry struct {
	mu         sync.Mutex
	order      []string
	records    map[string]*record
	current    string
	historyCap int
	logger     *slog.Logger
}

// NewRegistry builds a registry from the ordered provider configs. The
// first provider becomes the current selection.
func NewRegistry(configs []Config, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		records:    make(map[string]*record),
		historyCap: DefaultHistoryCap,
		logger:     logger,
	}
	for _, cfg := range configs {
		r.register(cfg)
	}
	return r
}

func (r *Registry) register(cfg Config) {
	if _, exists := r.records[cfg.Name]; exists {
		return
	}
	w := cfg.Window
	if w.Max <= 0 || w.Interval <= 0 {
		w = DefaultWindow
	}
	r.order = append(r.order, cfg.Name)
	r.records[cfg.Name] = &record{window: w}
	if r.current == "" {
		r.current = cfg.Name
	}
}

// Register adds a provider at the end of the fallback order. Registering
// an existing name is a no-op.
func (r *Registry) Register(cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.register(cfg)
}

// Select switches the current provider. Selecting an unregistered name
// fails without mutating the current selection; re-selecting the current
// provider is a no-op.
func (r *Registry) Select(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[name]; !ok {
		return false
	}
	r.current = name
	return true
}

// Current returns the currently selected provider name.
func (r *Registry) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Names returns the registered providers in fallback priority order.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// CheckLimit reports whether a request to name is allowed under its
// sliding window. Unregistered providers are denied outright.
func (r *Registry) CheckLimit(name string) Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.checkLimitLocked(name, time.Now())
}

func (r *Registry) checkLimitLocked(name string, now time.Time) Decision {
	rec, ok := r.records[name]
	if !ok {
		return Decision{}
	}
	rec.prune(now)
	if len(rec.calls) < rec.window.Max {
		return Decision{Allowed: true}
	}
	retryAfter := rec.calls[0].Add(rec.window.Interval).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return Decision{RetryAfter: retryAfter}
}

// Record logs an attempted call: it counts the request against the
// provider's window and appends the outcome to its bounded history.
func (r *Registry) Record(name string, success bool, latency time.Duration, code string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return
	}
	now := time.Now()
	rec.prune(now)
	rec.calls = append(rec.calls, now)

	if success {
		rec.success++
	} else {
		rec.failure++
	}
	rec.totalLatency += latency

	rec.history = append(rec.history, Attempt{Time: now, Success: success, Latency: latency, Code: code})
	if len(rec.history) > r.historyCap {
		rec.history = rec.history[len(rec.history)-r.historyCap:]
	}
}

// FallbackOrder returns the providers eligible as fallbacks, in priority
// order, skipping excluded names and providers currently denied by their
// own rate limit.
func (r *Registry) FallbackOrder(excluding ...string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	skip := make(map[string]bool, len(excluding))
	for _, name := range excluding {
		skip[name] = true
	}

	now := time.Now()
	var out []string
	for _, name := range r.order {
		if skip[name] {
			continue
		}
		if d := r.checkLimitLocked(name, now); !d.Allowed {
			continue
		}
		out = append(out, name)
	}
	return out
}

// Stats returns the aggregate outcome counters for name.
func (r *Registry) Stats(name string) (Stats, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return Stats{}, false
	}
	rec.prune(time.Now())

	s := Stats{Success: rec.success, Failure: rec.failure, InWindow: len(rec.calls)}
	if total := rec.success + rec.failure; total > 0 {
		s.AvgLatency = rec.totalLatency / time.Duration(total)
	}
	return s, true
}

// History returns a copy of the bounded attempt history for name.
func (r *Registry) History(name string) []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[name]
	if !ok {
		return nil
	}
	out := make([]Attempt, len(rec.history))
	copy(out, rec.history)
	return out
}
