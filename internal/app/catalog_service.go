package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"forum-quiz-service/internal/domain"
)

// CatalogStore abstracts where the catalog document lives (file, Redis, SQLite).
// Save must persist the whole state atomically: a failed Save leaves the
// previously stored state loadable.
type CatalogStore interface {
	Load(ctx context.Context) (domain.CatalogState, error)
	Save(ctx context.Context, state domain.CatalogState) error
}

// CatalogService owns the Group/Topic catalog. Mutations are serialized and
// written through to the store before they become visible.
type CatalogService struct {
	store  CatalogStore
	logger *slog.Logger

	mu    sync.RWMutex
	state domain.CatalogState
}

// NewCatalogService loads the persisted catalog. A malformed document is
// rejected here rather than on first access.
func NewCatalogService(ctx context.Context, store CatalogStore, logger *slog.Logger) (*CatalogService, error) {
	if logger == nil {
		logger = slog.Default()
	}
	state, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	if state.Groups == nil {
		state.Groups = make(map[string]*domain.Group)
	}
	if err := state.Validate(); err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return &CatalogService{store: store, logger: logger, state: state}, nil
}

// SetCurrentGroup registers the group if unseen and makes it the current context.
func (s *CatalogService) SetCurrentGroup(ctx context.Context, groupID string) error {
	if err := domain.ValidateGroupID(groupID); err != nil {
		return err
	}
	return s.mutate(ctx, "set group", func(next *domain.CatalogState) error {
		if _, ok := next.Groups[groupID]; !ok {
			next.Groups[groupID] = &domain.Group{ID: groupID, Topics: make(map[string]int64)}
		}
		next.CurrentGroup = groupID
		return nil
	})
}

// CurrentGroup returns the current group id, or ErrNoCurrentGroup.
func (s *CatalogService) CurrentGroup() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state.CurrentGroup == "" {
		return "", domain.ErrNoCurrentGroup
	}
	return s.state.CurrentGroup, nil
}

// AddTopic maps name to threadID in the group. An existing name is overwritten.
// An empty groupID means the current group.
func (s *CatalogService) AddTopic(ctx context.Context, groupID, name string, threadID int64) (domain.Topic, error) {
	name = domain.NormalizeTopicName(name)
	if name == "" {
		return domain.Topic{}, domain.NewValidationError("name", "empty topic name")
	}
	if err := domain.ValidateThreadID(threadID); err != nil {
		return domain.Topic{}, err
	}
	err := s.mutate(ctx, "add topic", func(next *domain.CatalogState) error {
		g, err := resolveGroup(next, groupID)
		if err != nil {
			return err
		}
		if prev, ok := g.Topics[name]; ok && prev != threadID {
			s.logger.Info("topic thread overwritten", "group", g.ID, "topic", name, "old_thread", prev, "new_thread", threadID)
		}
		g.Topics[name] = threadID
		return nil
	})
	if err != nil {
		return domain.Topic{}, err
	}
	return domain.Topic{Name: name, ThreadID: threadID}, nil
}

// RemoveTopic deletes a topic mapping. Already dispatched quizzes are untouched.
func (s *CatalogService) RemoveTopic(ctx context.Context, groupID, name string) error {
	name = domain.NormalizeTopicName(name)
	return s.mutate(ctx, "remove topic", func(next *domain.CatalogState) error {
		g, err := resolveGroup(next, groupID)
		if err != nil {
			return err
		}
		if _, ok := g.Topics[name]; !ok {
			return fmt.Errorf("%q: %w", name, domain.ErrTopicNotFound)
		}
		delete(g.Topics, name)
		return nil
	})
}

// ListTopics returns the group's topics ordered by name.
func (s *CatalogService) ListTopics(groupID string) ([]domain.Topic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := resolveGroup(&s.state, groupID)
	if err != nil {
		return nil, err
	}
	return g.SortedTopics(), nil
}

// TopicThread looks up the thread id of a topic.
func (s *CatalogService) TopicThread(groupID, name string) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := resolveGroup(&s.state, groupID)
	if err != nil {
		return 0, false
	}
	thread, ok := g.Topics[domain.NormalizeTopicName(name)]
	return thread, ok
}

// ResolveGroup returns the effective group id for groupID ("" means current).
func (s *CatalogService) ResolveGroup(groupID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, err := resolveGroup(&s.state, groupID)
	if err != nil {
		return "", err
	}
	return g.ID, nil
}

// Snapshot returns a deep copy of the catalog.
func (s *CatalogService) Snapshot() domain.CatalogState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// mutate applies fn to a copy, persists the copy and only then commits it.
func (s *CatalogService) mutate(ctx context.Context, op string, fn func(next *domain.CatalogState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	if err := s.store.Save(ctx, next); err != nil {
		s.logger.Error("catalog save failed", "op", op, "error", err)
		return &domain.PersistenceError{Op: op, Err: err}
	}
	s.state = next
	return nil
}

func resolveGroup(state *domain.CatalogState, groupID string) (*domain.Group, error) {
	if groupID == "" {
		if state.CurrentGroup == "" {
			return nil, domain.ErrNoCurrentGroup
		}
		groupID = state.CurrentGroup
	}
	g, ok := state.Groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%s: %w", groupID, domain.ErrGroupNotFound)
	}
	return g, nil
}
