package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"forum-quiz-service/internal/domain"
)

const currentGroupKey = "current_group"

// CatalogStore maps the catalog onto relational tables. Save replaces the
// stored catalog in a single transaction.
type CatalogStore struct {
	db *sql.DB
}

func NewCatalogStore(db *sql.DB) *CatalogStore {
	return &CatalogStore{db: db}
}

func (s *CatalogStore) Load(ctx context.Context) (domain.CatalogState, error) {
	state := domain.NewCatalogState()

	query, args, err := builder.Select("id").From("catalog_groups").ToSql()
	if err != nil {
		return state, err
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return state, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return state, err
		}
		state.Groups[id] = &domain.Group{ID: id, Topics: make(map[string]int64)}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return state, err
	}

	query, args, err = builder.Select("group_id", "name", "thread_id").From("catalog_topics").ToSql()
	if err != nil {
		return state, err
	}
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return state, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			groupID, name string
			thread        int64
		)
		if err := rows.Scan(&groupID, &name, &thread); err != nil {
			return state, err
		}
		g, ok := state.Groups[groupID]
		if !ok {
			return state, fmt.Errorf("topic %q references unknown group %s", name, groupID)
		}
		g.Topics[name] = thread
	}
	if err := rows.Err(); err != nil {
		return state, err
	}

	query, args, err = builder.Select("value").From("catalog_settings").Where("key = ?", currentGroupKey).ToSql()
	if err != nil {
		return state, err
	}
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&state.CurrentGroup)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return state, err
	}

	if err := state.Validate(); err != nil {
		return domain.CatalogState{}, err
	}
	return state, nil
}

func (s *CatalogStore) Save(ctx context.Context, state domain.CatalogState) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, table := range []string{"catalog_topics", "catalog_groups", "catalog_settings"} {
		query, args, err := builder.Delete(table).ToSql()
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	if len(state.Groups) > 0 {
		groups := builder.Insert("catalog_groups").Columns("id")
		topics := builder.Insert("catalog_topics").Columns("group_id", "name", "thread_id")
		topicCount := 0
		for id, g := range state.Groups {
			groups = groups.Values(id)
			for name, thread := range g.Topics {
				topics = topics.Values(id, name, thread)
				topicCount++
			}
		}
		if err := execInsert(ctx, tx, groups); err != nil {
			return fmt.Errorf("insert groups: %w", err)
		}
		if topicCount > 0 {
			if err := execInsert(ctx, tx, topics); err != nil {
				return fmt.Errorf("insert topics: %w", err)
			}
		}
	}

	if state.CurrentGroup != "" {
		current := builder.Insert("catalog_settings").Columns("key", "value").Values(currentGroupKey, state.CurrentGroup)
		if err := execInsert(ctx, tx, current); err != nil {
			return fmt.Errorf("store current group: %w", err)
		}
	}
	return tx.Commit()
}
