package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ventlab/tutorgate/internal/metrics"
)

// Manager composes the fast and durable tiers behind one read-through
// policy: lookups hit the fast tier first, fall through to the durable
// tier, and backfill the fast tier on a durable hit. Stores write the fast
// tier synchronously and the durable tier asynchronously, best-effort.
type Manager struct {
	fast            Store
	durable         Store // may be nil
	templateVersion string
	logger          *slog.Logger
	metrics         *metrics.Metrics

	// wg tracks in-flight async durable writes so Close can drain them.
	wg sync.WaitGroup
}

// NewManager builds the read-through cache. durable may be nil for a
// fast-tier-only configuration.
func NewManager(fast, durable Store, templateVersion string, logger *slog.Logger, m *metrics.Metrics) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		fast:            fast,
		durable:         durable,
		templateVersion: templateVersion,
		logger:          logger,
		metrics:         m,
	}
}

// Lookup returns the cached record for the question, or (nil, false). A
// durable-tier hit populates the fast tier before returning. Lookup never
// mutates the question or its ordering; its only side effect is tier
// population.
func (m *Manager) Lookup(ctx context.Context, question, lessonContext, provider string) (*Record, bool) {
	hash := Fingerprint(question, lessonContext, provider, m.templateVersion)

	if rec, err := m.fast.Get(ctx, hash); err == nil && rec != nil {
		m.metrics.CacheHit("fast")
		return rec, true
	}

	if m.durable != nil {
		rec, err := m.durable.Get(ctx, hash)
		if err != nil {
			m.logger.Debug("durable cache lookup failed", "error", err)
		} else if rec != nil {
			if err := m.fast.Set(ctx, rec); err != nil {
				m.logger.Debug("fast tier backfill failed", "error", err)
			}
			m.metrics.CacheHit("durable")
			return rec, true
		}
	}

	m.metrics.CacheMiss()
	return nil, false
}

// Store caches a fresh answer. The fast tier is written before returning;
// the durable write runs in the background and its failure is logged, never
// raised to the caller.
func (m *Manager) Store(ctx context.Context, question, lessonContext, provider, answer string, rec *Record) {
	if rec == nil {
		rec = &Record{}
	}
	rec.Hash = Fingerprint(question, lessonContext, provider, m.templateVersion)
	rec.Question = question
	rec.LessonContext = lessonContext
	rec.Provider = provider
	rec.TemplateVersion = m.templateVersion
	rec.Answer = answer
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	if err := m.fast.Set(ctx, rec); err != nil {
		m.logger.Debug("fast tier store failed", "error", err)
	}

	if m.durable == nil {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// The write must outlive the request's cancellation.
		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := m.durable.Set(wctx, rec); err != nil {
			m.logger.Debug("durable cache store failed", "hash", rec.Hash, "error", err)
		}
	}()
}

// Close waits for in-flight durable writes to finish.
func (m *Manager) Close() {
	m.wg.Wait()
}
