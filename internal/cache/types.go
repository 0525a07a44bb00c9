// Package cache implements the content-addressed answer cache: a fast
// session-scoped tier in front of a durable remote tier behind one
// read-through policy.
package cache

import (
	"context"
	"time"

	"github.com/ventlab/tutorgate/pkg/types"
)

// Record is one cached answer, keyed by its fingerprint. The original
// question fields travel with the record because the durable tier persists
// them alongside the answer.
type Record struct {
	Hash            string       `json:"hash"`
	Question        string       `json:"question"`
	LessonContext   string       `json:"lessonContext,omitempty"`
	Provider        string       `json:"provider,omitempty"`
	TemplateVersion string       `json:"promptTemplateVersion,omitempty"`
	Answer          string       `json:"answer"`
	Usage           *types.Usage `json:"usage,omitempty"`
	CreatedAt       time.Time    `json:"timestamp"`
}

// Store is a single cache tier. Get returns (nil, nil) on a miss.
type Store interface {
	Get(ctx context.Context, hash string) (*Record, error)
	Set(ctx context.Context, rec *Record) error
}
