package memory

import (
	"context"
	"sync"

	"forum-quiz-service/internal/domain"
)

// Sink records dispatches instead of delivering them. It backs dry runs and tests.
type Sink struct {
	mu      sync.Mutex
	sent    []domain.Dispatch
	stopped []int
	nextID  int
	failing map[string]error // question -> error
}

func NewSink() *Sink {
	return &Sink{nextID: 1, failing: make(map[string]error)}
}

func (s *Sink) Send(ctx context.Context, d domain.Dispatch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.failing[d.Question]; ok {
		return 0, err
	}
	d.Options = append([]string(nil), d.Options...)
	s.sent = append(s.sent, d)
	id := s.nextID
	s.nextID++
	return id, nil
}

func (s *Sink) StopPoll(_ context.Context, _ string, messageID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = append(s.stopped, messageID)
	return nil
}

// FailQuestion makes Send fail with err for quizzes asking question.
func (s *Sink) FailQuestion(question string, err error) {
	s.mu.Lock()
	s.failing[question] = err
	s.mu.Unlock()
}

// Sent returns the dispatches recorded so far.
func (s *Sink) Sent() []domain.Dispatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Dispatch(nil), s.sent...)
}

// Stopped returns the message ids passed to StopPoll.
func (s *Sink) Stopped() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int(nil), s.stopped...)
}
