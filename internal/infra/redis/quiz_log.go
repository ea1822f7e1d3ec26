package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"forum-quiz-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// QuizLog appends log events to one list per group topic:
//
//	RPUSH {prefix}quizlog:{groupID}:{topic} <json entry>
//
// With a positive ttl the list expires that long after its last append.
type QuizLog struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewQuizLog(client *redis.Client, prefix string, ttl time.Duration) *QuizLog {
	return &QuizLog{client: client, prefix: prefix, ttl: ttl}
}

func (l *QuizLog) Append(ctx context.Context, entry domain.LogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	key := l.key(entry.GroupID, entry.Topic)
	pipe := l.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	if l.ttl > 0 {
		pipe.Expire(ctx, key, l.ttl)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (l *QuizLog) Entries(ctx context.Context, groupID, topic string) ([]domain.LogEntry, error) {
	items, err := l.client.LRange(ctx, l.key(groupID, topic), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LogEntry, 0, len(items))
	for i, item := range items {
		var entry domain.LogEntry
		if err := json.Unmarshal([]byte(item), &entry); err != nil {
			return nil, fmt.Errorf("decode quiz log item %d: %w", i, err)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (l *QuizLog) key(groupID, topic string) string {
	return l.prefix + "quizlog:" + groupID + ":" + topic
}
