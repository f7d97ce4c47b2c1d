// Package drafts keeps in-progress grid edits per (stage, order) so an
// interrupted session can resume. Drafts are scratch state: losing one only
// forces re-entry, durable order data never depends on them.
package drafts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/odyssey-erp/odyssey-garment/internal/grid"
)

// Stage names the pipeline stage a draft belongs to.
type Stage string

const (
	StageReturn   Stage = "return"
	StageRevision Stage = "revision"
	StagePacking  Stage = "packing"
)

// ErrUnknownStage is returned for stages outside the pipeline.
var ErrUnknownStage = errors.New("drafts: unknown stage")

// ParseStage validates a stage name.
func ParseStage(s string) (Stage, error) {
	switch Stage(s) {
	case StageReturn, StageRevision, StagePacking:
		return Stage(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownStage, s)
	}
}

// Store is the scratch key/value surface.
type Store interface {
	Get(ctx context.Context, stage Stage, orderID int64) (grid.Grid, bool, error)
	Put(ctx context.Context, stage Stage, orderID int64, g grid.Grid) error
	Clear(ctx context.Context, stage Stage, orderID int64) error
}

// Key returns the storage key of a draft.
func Key(stage Stage, orderID int64) string {
	return fmt.Sprintf("drafts:%s:%d", stage, orderID)
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu     sync.RWMutex
	drafts map[string]grid.Grid
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{drafts: make(map[string]grid.Grid)}
}

func (s *MemoryStore) Get(_ context.Context, stage Stage, orderID int64) (grid.Grid, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.drafts[Key(stage, orderID)]
	if !ok {
		return nil, false, nil
	}
	return grid.Clone(g), true, nil
}

func (s *MemoryStore) Put(_ context.Context, stage Stage, orderID int64, g grid.Grid) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[Key(stage, orderID)] = grid.Clone(g)
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, stage Stage, orderID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drafts, Key(stage, orderID))
	return nil
}
