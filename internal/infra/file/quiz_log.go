package file

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"forum-quiz-service/internal/domain"
)

// QuizLog writes one JSON-lines file per group topic:
//
//	{dir}/{groupID}/{escaped topic}.jsonl
type QuizLog struct {
	dir string
	mu  sync.Mutex
}

func NewQuizLog(dir string) *QuizLog {
	return &QuizLog{dir: dir}
}

func (l *QuizLog) Append(_ context.Context, entry domain.LogEntry) error {
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.path(entry.GroupID, entry.Topic)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(line); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (l *QuizLog) Entries(_ context.Context, groupID, topic string) ([]domain.LogEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path(groupID, topic))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []domain.LogEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for n := 1; scanner.Scan(); n++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry domain.LogEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", f.Name(), n, err)
		}
		entries = append(entries, entry)
	}
	return entries, scanner.Err()
}

func (l *QuizLog) path(groupID, topic string) string {
	return filepath.Join(l.dir, url.PathEscape(groupID), url.PathEscape(topic)+".jsonl")
}
