package repository

import (
	"context"
	"sync"

	"testbridge/internal/dashboard/model"
	appErr "testbridge/pkg/errors"
)

// ResultStore owns the single current verdict slot.
//
// Reset, Submit and Consume are linearizable with respect to each other.
// Consume hands a terminal verdict to at most one caller: the read and the
// reset back to Pending happen in the same critical section.
type ResultStore interface {
	// Reset sets the slot to Pending.
	Reset(ctx context.Context) error
	// Submit stores Pass or Fail. Any other verdict is rejected with
	// InvalidVerdict and the slot is left unchanged.
	Submit(ctx context.Context, verdict model.Verdict) error
	// Consume returns the current verdict and, if it was terminal, resets
	// the slot to Pending before returning.
	Consume(ctx context.Context) (model.Verdict, error)
}

// MemoryResultStore keeps the slot in process memory behind a mutex.
type MemoryResultStore struct {
	mu      sync.Mutex
	current model.Verdict
}

// NewMemoryResultStore returns a store initialized to Pending.
func NewMemoryResultStore() *MemoryResultStore {
	return &MemoryResultStore{current: model.VerdictPending}
}

func (s *MemoryResultStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	s.current = model.VerdictPending
	s.mu.Unlock()
	return nil
}

func (s *MemoryResultStore) Submit(ctx context.Context, verdict model.Verdict) error {
	if !verdict.IsTerminal() {
		return appErr.InvalidVerdictError(string(verdict))
	}
	s.mu.Lock()
	s.current = verdict
	s.mu.Unlock()
	return nil
}

func (s *MemoryResultStore) Consume(ctx context.Context) (model.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	read := s.current
	if read.IsTerminal() {
		s.current = model.VerdictPending
	}
	return read, nil
}
