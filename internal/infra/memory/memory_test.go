package memory

import (
	"context"
	"errors"
	"testing"

	"forum-quiz-service/internal/domain"
)

func TestCatalogStoreIsolatesCopies(t *testing.T) {
	ctx := context.Background()
	store := NewCatalogStore()

	state := domain.NewCatalogState()
	state.Groups["100"] = &domain.Group{ID: "100", Topics: map[string]int64{"biology": 7}}
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("save: %v", err)
	}
	state.Groups["100"].Topics["biology"] = 99

	loaded, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Groups["100"].Topics["biology"] != 7 {
		t.Fatalf("store shares memory with caller: %+v", loaded.Groups["100"].Topics)
	}

	store.FailSaves(errors.New("disk full"))
	if err := store.Save(ctx, domain.NewCatalogState()); err == nil {
		t.Fatalf("expected save failure")
	}
	if store.Saves() != 1 {
		t.Fatalf("expected 1 successful save, got %d", store.Saves())
	}
}

func TestQuizLogKeepsPerTopicOrder(t *testing.T) {
	ctx := context.Background()
	log := NewQuizLog()
	for _, id := range []string{"a", "b"} {
		if err := log.Append(ctx, domain.LogEntry{ID: id, GroupID: "100", Topic: "biology", Status: domain.LogPending}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	_ = log.Append(ctx, domain.LogEntry{ID: "c", GroupID: "100", Topic: "physics"})

	entries, err := log.Entries(ctx, "100", "biology")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "a" || entries[1].ID != "b" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestSinkAssignsMessageIDs(t *testing.T) {
	sink := NewSink()
	sink.FailQuestion("bad", errors.New("rejected"))

	id1, err := sink.Send(context.Background(), domain.Dispatch{GroupID: "100", Question: "q1", Options: []string{"a", "b"}})
	if err != nil || id1 != 1 {
		t.Fatalf("unexpected first send %d %v", id1, err)
	}
	if _, err := sink.Send(context.Background(), domain.Dispatch{Question: "bad"}); err == nil {
		t.Fatalf("expected configured failure")
	}
	id2, _ := sink.Send(context.Background(), domain.Dispatch{Question: "q2"})
	if id2 != 2 || len(sink.Sent()) != 2 {
		t.Fatalf("expected two recorded sends, got id=%d sent=%d", id2, len(sink.Sent()))
	}
}
