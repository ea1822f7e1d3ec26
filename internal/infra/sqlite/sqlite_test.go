package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"forum-quiz-service/internal/domain"
)

func openTestDB(t *testing.T) *CatalogStore {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "quizbot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewCatalogStore(db)
}

func TestOpenIsRepeatable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizbot.db")
	db, err := Open(context.Background(), path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path)
	require.NoError(t, err, "second open must find migrations already applied")
	require.NoError(t, db.Close())
}

func TestCatalogStoreEmpty(t *testing.T) {
	store := openTestDB(t)
	state, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, state.CurrentGroup)
	assert.Empty(t, state.Groups)
}

func TestCatalogStoreReplacesState(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)

	first := domain.NewCatalogState()
	first.CurrentGroup = "100"
	first.Groups["100"] = &domain.Group{ID: "100", Topics: map[string]int64{"biology": 7, "physics": 9}}
	first.Groups["-200"] = &domain.Group{ID: "-200", Topics: map[string]int64{}}
	require.NoError(t, store.Save(ctx, first))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "100", loaded.CurrentGroup)
	assert.Equal(t, map[string]int64{"biology": 7, "physics": 9}, loaded.Groups["100"].Topics)
	assert.Contains(t, loaded.Groups, "-200")

	second := loaded.Clone()
	delete(second.Groups["100"].Topics, "physics")
	second.CurrentGroup = "-200"
	require.NoError(t, store.Save(ctx, second))

	loaded, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "-200", loaded.CurrentGroup)
	assert.Equal(t, map[string]int64{"biology": 7}, loaded.Groups["100"].Topics)
}

func TestQuizLogOrdersByInsertion(t *testing.T) {
	ctx := context.Background()
	store := openTestDB(t)
	log := NewQuizLog(store.db)

	at := time.Date(2024, 11, 22, 9, 30, 0, 123, time.UTC)
	quiz := domain.Quiz{Question: "2+2?", Options: []string{"3", "4", "5"}, CorrectOption: 1}
	require.NoError(t, log.Append(ctx, domain.LogEntry{ID: "e1", ImportID: "imp", GroupID: "100", Topic: "biology", ThreadID: 7, Quiz: quiz, Status: domain.LogPending, At: at}))
	require.NoError(t, log.Append(ctx, domain.LogEntry{ID: "e1", ImportID: "imp", GroupID: "100", Topic: "biology", ThreadID: 7, Quiz: quiz, Status: domain.LogSent, MessageID: 31, At: at}))
	require.NoError(t, log.Append(ctx, domain.LogEntry{ID: "e2", GroupID: "100", Topic: "physics", Quiz: quiz, Status: domain.LogPending, At: at}))

	entries, err := log.Entries(ctx, "100", "biology")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, domain.LogPending, entries[0].Status)
	assert.Equal(t, domain.LogSent, entries[1].Status)
	assert.Equal(t, 31, entries[1].MessageID)
	assert.Equal(t, quiz, entries[1].Quiz)
	assert.True(t, entries[0].At.Equal(at))

	folded := domain.FoldLog(entries)
	require.Len(t, folded, 1)
	assert.Equal(t, domain.LogSent, folded[0].Status)
}
