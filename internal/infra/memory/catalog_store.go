package memory

import (
	"context"
	"sync"

	"forum-quiz-service/internal/domain"
)

// CatalogStore keeps the catalog in process memory (useful for tests/demos).
type CatalogStore struct {
	mu      sync.Mutex
	state   domain.CatalogState
	saves   int
	saveErr error
}

func NewCatalogStore() *CatalogStore {
	return &CatalogStore{state: domain.NewCatalogState()}
}

// NewCatalogStoreWith seeds the store with an initial state.
func NewCatalogStoreWith(state domain.CatalogState) *CatalogStore {
	return &CatalogStore{state: state.Clone()}
}

func (s *CatalogStore) Load(_ context.Context) (domain.CatalogState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *CatalogStore) Save(_ context.Context, state domain.CatalogState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.state = state.Clone()
	s.saves++
	return nil
}

// FailSaves makes every later Save return err (nil restores normal behavior).
func (s *CatalogStore) FailSaves(err error) {
	s.mu.Lock()
	s.saveErr = err
	s.mu.Unlock()
}

// Saves reports how many saves succeeded.
func (s *CatalogStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}
