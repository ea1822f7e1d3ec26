package memory

import (
	"context"
	"sync"

	"forum-quiz-service/internal/domain"
)

// QuizLog is an in-memory implementation of app.QuizLog.
type QuizLog struct {
	mu        sync.RWMutex
	events    map[string][]domain.LogEntry
	appendErr error
}

func NewQuizLog() *QuizLog {
	return &QuizLog{events: make(map[string][]domain.LogEntry)}
}

func (l *QuizLog) Append(_ context.Context, entry domain.LogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.appendErr != nil {
		return l.appendErr
	}
	k := key(entry.GroupID, entry.Topic)
	l.events[k] = append(l.events[k], entry)
	return nil
}

func (l *QuizLog) Entries(_ context.Context, groupID, topic string) ([]domain.LogEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]domain.LogEntry(nil), l.events[key(groupID, topic)]...), nil
}

// FailAppends makes every later Append return err.
func (l *QuizLog) FailAppends(err error) {
	l.mu.Lock()
	l.appendErr = err
	l.mu.Unlock()
}

func key(groupID, topic string) string {
	return groupID + "/" + topic
}
