// Package audit keeps a per-request log of completions: which route served
// them, whether structured output was requested and which conformance
// strategy produced the reply. Prompt and reply text are never stored.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Record struct {
	ID            string
	RequestID     string
	Model         string
	UpstreamModel string
	Backend       string
	RequiresJSON  bool
	Strategy      string
	Status        string
	DurationMS    int64
	CreatedAt     time.Time
}

// NewRecord fills in ID and CreatedAt.
func NewRecord(now time.Time) Record {
	return Record{
		ID:        uuid.NewString(),
		CreatedAt: now.UTC(),
	}
}

type Store interface {
	Save(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Close() error
}
