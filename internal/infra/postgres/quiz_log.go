package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"forum-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// QuizLog archives quiz log events in the dispatched_quizzes table.
type QuizLog struct {
	pool *pgxpool.Pool
}

func NewQuizLog(pool *pgxpool.Pool) *QuizLog {
	return &QuizLog{pool: pool}
}

func (l *QuizLog) Append(ctx context.Context, e domain.LogEntry) error {
	quiz, err := json.Marshal(e.Quiz)
	if err != nil {
		return fmt.Errorf("marshal quiz: %w", err)
	}
	_, err = l.pool.Exec(ctx, `
		INSERT INTO dispatched_quizzes
			(entry_id, import_id, group_id, topic, thread_id, quiz, status, message_id, error, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ImportID, e.GroupID, e.Topic, e.ThreadID, quiz, string(e.Status), int64(e.MessageID), e.Error, e.At,
	)
	if err != nil {
		return fmt.Errorf("append quiz log: %w", err)
	}
	return nil
}

func (l *QuizLog) Entries(ctx context.Context, groupID, topic string) ([]domain.LogEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT entry_id, import_id, group_id, topic, thread_id, quiz, status, message_id, error, at
		FROM dispatched_quizzes
		WHERE group_id = $1 AND topic = $2
		ORDER BY seq`, groupID, topic)
	if err != nil {
		return nil, fmt.Errorf("query quiz log: %w", err)
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e         domain.LogEntry
			raw       []byte
			status    string
			messageID int64
		)
		if err := rows.Scan(&e.ID, &e.ImportID, &e.GroupID, &e.Topic, &e.ThreadID, &raw, &status, &messageID, &e.Error, &e.At); err != nil {
			return nil, fmt.Errorf("scan quiz log: %w", err)
		}
		if err := json.Unmarshal(raw, &e.Quiz); err != nil {
			return nil, fmt.Errorf("unmarshal quiz: %w", err)
		}
		e.Status = domain.LogStatus(status)
		e.MessageID = int(messageID)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
