package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"forum-quiz-service/internal/domain"
)

// QuizLog stores log events in insertion order in the quiz_log table.
type QuizLog struct {
	db *sql.DB
}

func NewQuizLog(db *sql.DB) *QuizLog {
	return &QuizLog{db: db}
}

func (l *QuizLog) Append(ctx context.Context, e domain.LogEntry) error {
	options, err := json.Marshal(e.Quiz.Options)
	if err != nil {
		return err
	}
	insert := builder.Insert("quiz_log").
		Columns("entry_id", "import_id", "group_id", "topic", "thread_id", "question", "options", "correct_option", "status", "message_id", "error", "at").
		Values(e.ID, e.ImportID, e.GroupID, e.Topic, e.ThreadID, e.Quiz.Question, string(options), e.Quiz.CorrectOption, string(e.Status), e.MessageID, e.Error, e.At.UTC().Format(time.RFC3339Nano))
	return execInsert(ctx, l.db, insert)
}

func (l *QuizLog) Entries(ctx context.Context, groupID, topic string) ([]domain.LogEntry, error) {
	query, args, err := builder.
		Select("entry_id", "import_id", "group_id", "topic", "thread_id", "question", "options", "correct_option", "status", "message_id", "error", "at").
		From("quiz_log").
		Where(sq.Eq{"group_id": groupID, "topic": topic}).
		OrderBy("seq").
		ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.LogEntry
	for rows.Next() {
		var (
			e       domain.LogEntry
			options string
			status  string
			at      string
		)
		if err := rows.Scan(&e.ID, &e.ImportID, &e.GroupID, &e.Topic, &e.ThreadID, &e.Quiz.Question, &options, &e.Quiz.CorrectOption, &status, &e.MessageID, &e.Error, &at); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(options), &e.Quiz.Options); err != nil {
			return nil, fmt.Errorf("decode options of %s: %w", e.ID, err)
		}
		if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, fmt.Errorf("decode time of %s: %w", e.ID, err)
		}
		e.Status = domain.LogStatus(status)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execInsert(ctx context.Context, db execer, insert sq.InsertBuilder) error {
	query, args, err := insert.ToSql()
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, query, args...)
	return err
}
