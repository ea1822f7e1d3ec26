package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/domain"
	"forum-quiz-service/internal/infra/memory"
)

type countingPacer struct {
	mu       sync.Mutex
	waits    int
	releases int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *countingPacer) Release() {
	p.mu.Lock()
	p.releases++
	p.mu.Unlock()
}

// cancelingSink cancels the import after n successful sends.
type cancelingSink struct {
	*memory.Sink
	after  int
	cancel context.CancelFunc
}

func (s *cancelingSink) Send(ctx context.Context, d domain.Dispatch) (int, error) {
	id, err := s.Sink.Send(ctx, d)
	if err == nil && len(s.Sink.Sent()) == s.after {
		s.cancel()
	}
	return id, err
}

// blockingSink holds every Send until unblock is closed.
type blockingSink struct {
	*memory.Sink
	entered chan struct{}
	unblock chan struct{}
	once    sync.Once
}

func newBlockingSink() *blockingSink {
	return &blockingSink{Sink: memory.NewSink(), entered: make(chan struct{}), unblock: make(chan struct{})}
}

func (s *blockingSink) Send(ctx context.Context, d domain.Dispatch) (int, error) {
	s.once.Do(func() { close(s.entered) })
	<-s.unblock
	return s.Sink.Send(ctx, d)
}

func seededCatalog(t *testing.T) *app.CatalogService {
	t.Helper()
	catalog := newCatalog(t, memory.NewCatalogStore())
	mustSetGroup(t, catalog, "100")
	for name, thread := range map[string]int64{"biology": 7, "physics": 9} {
		if _, err := catalog.AddTopic(context.Background(), "", name, thread); err != nil {
			t.Fatalf("add %s: %v", name, err)
		}
	}
	return catalog
}

func record(topic, question string, correct any, options ...any) domain.RawRecord {
	return domain.RawRecord{"topic": topic, "question": question, "options": options, "correct_option": correct}
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func TestAddQuizDispatchesToTopicThread(t *testing.T) {
	sink := memory.NewSink()
	importer := app.NewImporter(seededCatalog(t), sink, nil)

	msgID, err := importer.AddQuiz(context.Background(), "", "Biology", domain.Quiz{
		Question:      "2+2?",
		Options:       []string{"3", "4", "5"},
		CorrectOption: 1,
	})
	if err != nil {
		t.Fatalf("add quiz: %v", err)
	}
	if msgID != 1 {
		t.Fatalf("expected message id 1, got %d", msgID)
	}

	sent := sink.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(sent))
	}
	d := sent[0]
	if d.GroupID != "100" || d.ThreadID != 7 || d.Question != "2+2?" || d.CorrectIndex != 1 {
		t.Fatalf("unexpected dispatch %+v", d)
	}
	if len(d.Options) != 3 || d.Options[1] != "4" {
		t.Fatalf("unexpected options %v", d.Options)
	}
}

func TestAddQuizFailures(t *testing.T) {
	sink := memory.NewSink()
	importer := app.NewImporter(seededCatalog(t), sink, nil)
	ctx := context.Background()

	if _, err := importer.AddQuiz(ctx, "", "history", domain.Quiz{Question: "q", Options: []string{"a", "b"}}); !errors.Is(err, domain.ErrTopicNotFound) {
		t.Fatalf("expected topic not found, got %v", err)
	}
	if _, err := importer.AddQuiz(ctx, "", "biology", domain.Quiz{Question: "q", Options: []string{"a", "b"}, CorrectOption: 2}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := importer.AddQuiz(ctx, "999", "biology", domain.Quiz{Question: "q", Options: []string{"a", "b"}}); !errors.Is(err, domain.ErrGroupNotFound) {
		t.Fatalf("expected group not found, got %v", err)
	}
	if len(sink.Sent()) != 0 {
		t.Fatalf("failed quizzes must not reach the sink")
	}

	sink.FailQuestion("boom", errors.New("chat not found"))
	if _, err := importer.AddQuiz(ctx, "", "biology", domain.Quiz{Question: "boom", Options: []string{"a", "b"}}); !errors.Is(err, domain.ErrSink) {
		t.Fatalf("expected sink error, got %v", err)
	}
}

func TestImportBatchIsolatesItemFailures(t *testing.T) {
	sink := memory.NewSink()
	pacer := &countingPacer{}
	importer := app.NewImporter(seededCatalog(t), sink, pacer)

	records := []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("biology", "q2", 1, "a", "b"),
		record("physics", "q3", 99, "a", "b"),
		record("physics", "q4", 0, "a", "b", "c"),
		record("biology", "q5", 2, "a", "b", "c"),
	}
	summary, err := importer.ImportBatch(context.Background(), "", records)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Failed != 1 || summary.TotalAccepted() != 4 {
		t.Fatalf("expected 4 accepted and 1 failed, got %+v", summary)
	}
	if summary.Accepted["biology"] != 3 || summary.Accepted["physics"] != 1 {
		t.Fatalf("unexpected per-topic counts %v", summary.Accepted)
	}
	if len(summary.Failures) != 1 || summary.Failures[0].Index != 2 || summary.Failures[0].Kind != domain.KindValidation {
		t.Fatalf("unexpected failure detail %+v", summary.Failures)
	}

	sent := sink.Sent()
	if len(sent) != 4 {
		t.Fatalf("expected 4 dispatches, got %d", len(sent))
	}
	for i, want := range []string{"q1", "q2", "q4", "q5"} {
		if sent[i].Question != want {
			t.Fatalf("dispatch %d: expected %s, got %s", i, want, sent[i].Question)
		}
	}
	if pacer.waits != len(records) || pacer.releases != len(records) {
		t.Fatalf("expected one pacing step per record, got waits=%d releases=%d", pacer.waits, pacer.releases)
	}
}

func TestImportBatchUnknownTopicSkipsSink(t *testing.T) {
	sink := memory.NewSink()
	importer := app.NewImporter(seededCatalog(t), sink, nil)

	summary, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{
		record("history", "q", 0, "a", "b"),
		nil,
		{"topic": "biology", "question": "q", "options": []any{"a", "b"}},
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if len(sink.Sent()) != 0 {
		t.Fatalf("no record should have been dispatched")
	}
	wantKinds := []domain.Kind{domain.KindNotFound, domain.KindValidation, domain.KindValidation}
	for i, f := range summary.Failures {
		if f.Kind != wantKinds[i] {
			t.Fatalf("failure %d: expected %s, got %s (%s)", i, wantKinds[i], f.Kind, f.Reason)
		}
	}
	if summary.FailuresByKind[domain.KindValidation] != 2 {
		t.Fatalf("unexpected kind counts %v", summary.FailuresByKind)
	}
}

func TestImportBatchSinkFailureDoesNotStopBatch(t *testing.T) {
	sink := memory.NewSink()
	sink.FailQuestion("q2", errors.New("Bad Request: message thread not found"))
	importer := app.NewImporter(seededCatalog(t), sink, nil)

	summary, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("biology", "q2", 0, "a", "b"),
		record("biology", "q3", 0, "a", "b"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Accepted["biology"] != 2 || summary.Failed != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Failures[0].Kind != domain.KindSink {
		t.Fatalf("expected sink failure, got %s", summary.Failures[0].Kind)
	}
}

func TestImportBatchRequiresGroup(t *testing.T) {
	sink := memory.NewSink()
	catalog := newCatalog(t, memory.NewCatalogStore())
	importer := app.NewImporter(catalog, sink, nil)

	_, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{record("biology", "q", 0, "a", "b")})
	if !errors.Is(err, domain.ErrNoCurrentGroup) {
		t.Fatalf("expected no current group, got %v", err)
	}
}

func TestImportBatchEmpty(t *testing.T) {
	importer := app.NewImporter(seededCatalog(t), memory.NewSink(), nil)
	summary, err := importer.ImportBatch(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.TotalAccepted() != 0 || summary.Failed != 0 {
		t.Fatalf("expected empty summary, got %+v", summary)
	}
}

func TestImportBatchCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink := &cancelingSink{Sink: memory.NewSink(), after: 2, cancel: cancel}
	importer := app.NewImporter(seededCatalog(t), sink, nil)

	records := make([]domain.RawRecord, 5)
	for i := range records {
		records[i] = record("biology", fmt.Sprintf("q%d", i), 0, "a", "b")
	}
	summary, err := importer.ImportBatch(ctx, "", records)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
	if !summary.Canceled || summary.Accepted["biology"] != 2 || summary.Failed != 0 {
		t.Fatalf("expected partial summary of 2 records, got %+v", summary)
	}
	if len(sink.Sent()) != 2 {
		t.Fatalf("no dispatch may happen after cancellation, got %d", len(sink.Sent()))
	}
}

func TestImportBatchWritesQuizLog(t *testing.T) {
	sink := memory.NewSink()
	sink.FailQuestion("q2", errors.New("forbidden"))
	quizLog := memory.NewQuizLog()
	importer := app.NewImporter(seededCatalog(t), sink, nil, app.WithQuizLog(quizLog), app.WithIDs(sequentialIDs()))

	summary, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("biology", "q2", 0, "a", "b"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.ImportID != "id-1" {
		t.Fatalf("unexpected import id %s", summary.ImportID)
	}

	events, _ := quizLog.Entries(context.Background(), "100", "biology")
	if len(events) != 4 {
		t.Fatalf("expected pending and outcome per quiz, got %d events", len(events))
	}
	folded := domain.FoldLog(events)
	if len(folded) != 2 {
		t.Fatalf("expected 2 folded entries, got %d", len(folded))
	}
	if folded[0].Status != domain.LogSent || folded[0].MessageID != 1 || folded[0].ImportID != "id-1" {
		t.Fatalf("unexpected first entry %+v", folded[0])
	}
	if folded[1].Status != domain.LogFailed || folded[1].Error == "" {
		t.Fatalf("unexpected second entry %+v", folded[1])
	}
}

func TestQuizLogFailureBlocksDispatch(t *testing.T) {
	sink := memory.NewSink()
	quizLog := memory.NewQuizLog()
	quizLog.FailAppends(errors.New("read-only file system"))
	importer := app.NewImporter(seededCatalog(t), sink, nil, app.WithQuizLog(quizLog))

	summary, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{record("biology", "q1", 0, "a", "b")})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if summary.Failed != 1 || summary.Failures[0].Kind != domain.KindPersistence {
		t.Fatalf("expected persistence failure, got %+v", summary)
	}
	if len(sink.Sent()) != 0 {
		t.Fatalf("quiz must not be sent without a log entry")
	}
}

func TestImportBatchPublishesProgress(t *testing.T) {
	hub := app.NewProgressHub()
	events, cancel := hub.Subscribe("")
	defer cancel()
	importer := app.NewImporter(seededCatalog(t), memory.NewSink(), nil, app.WithProgress(hub))

	_, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("chemistry", "q2", 0, "a", "b"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	first, second, done := <-events, <-events, <-events
	if first.Type != "record" || !first.Accepted || first.Index != 0 || first.Total != 2 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second.Accepted || second.Kind != domain.KindNotFound {
		t.Fatalf("unexpected second event %+v", second)
	}
	if done.Type != "done" || done.Summary == nil || done.Summary.Failed != 1 {
		t.Fatalf("unexpected done event %+v", done)
	}
}

func TestClearResponsesStopsSentPolls(t *testing.T) {
	ctx := context.Background()
	catalog := seededCatalog(t)
	sink := memory.NewSink()
	sink.FailQuestion("q3", errors.New("forbidden"))
	quizLog := memory.NewQuizLog()
	importer := app.NewImporter(catalog, sink, nil, app.WithQuizLog(quizLog))

	_, err := importer.ImportBatch(ctx, "", []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("physics", "q2", 0, "a", "b"),
		record("physics", "q3", 0, "a", "b"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}

	res, err := importer.ClearResponses(ctx, catalog, "")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if res.Stopped != 2 || res.Failed != 0 {
		t.Fatalf("unexpected clear result %+v", res)
	}
	if stopped := sink.Stopped(); len(stopped) != 2 {
		t.Fatalf("expected 2 stopped polls, got %v", stopped)
	}
}

func TestClearResponsesSkipsStoppedPolls(t *testing.T) {
	ctx := context.Background()
	catalog := seededCatalog(t)
	sink := memory.NewSink()
	quizLog := memory.NewQuizLog()
	pacer := &countingPacer{}
	importer := app.NewImporter(catalog, sink, pacer, app.WithQuizLog(quizLog))

	_, err := importer.ImportBatch(ctx, "", []domain.RawRecord{
		record("biology", "q1", 0, "a", "b"),
		record("physics", "q2", 0, "a", "b"),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	dispatchWaits := pacer.waits

	first, err := importer.ClearResponses(ctx, catalog, "")
	if err != nil {
		t.Fatalf("first clear: %v", err)
	}
	second, err := importer.ClearResponses(ctx, catalog, "")
	if err != nil {
		t.Fatalf("second clear: %v", err)
	}
	if first.Stopped != 2 || second.Stopped != 0 || second.Failed != 0 {
		t.Fatalf("unexpected clear results first=%+v second=%+v", first, second)
	}
	if stopped := sink.Stopped(); len(stopped) != 2 {
		t.Fatalf("expected each poll stopped once, got %v", stopped)
	}
	if got := pacer.waits - dispatchWaits; got != 2 {
		t.Fatalf("expected 2 paced stop calls, got %d", got)
	}

	events, err := quizLog.Entries(ctx, "100", "biology")
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	folded := domain.FoldLog(events)
	if len(folded) != 1 || folded[0].Status != domain.LogStopped || folded[0].MessageID == 0 {
		t.Fatalf("expected stopped entry, got %+v", folded)
	}
}

func TestAddQuizHonorsCancelWhileLaneBusy(t *testing.T) {
	catalog := seededCatalog(t)
	sink := newBlockingSink()
	importer := app.NewImporter(catalog, sink, nil)

	imported := make(chan error, 1)
	go func() {
		_, err := importer.ImportBatch(context.Background(), "", []domain.RawRecord{record("biology", "q1", 0, "a", "b")})
		imported <- err
	}()
	select {
	case <-sink.entered:
	case <-time.After(2 * time.Second):
		t.Fatalf("import never reached the sink")
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	quiz := domain.Quiz{Question: "q2", Options: []string{"a", "b"}}
	if _, err := importer.AddQuiz(canceled, "", "biology", quiz); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if _, err := importer.AddQuiz(short, "", "biology", quiz); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline while the lane is busy, got %v", err)
	}
	if _, err := importer.ImportBatch(short, "", []domain.RawRecord{record("biology", "q3", 0, "a", "b")}); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected queued import to give up, got %v", err)
	}

	close(sink.unblock)
	if err := <-imported; err != nil {
		t.Fatalf("import: %v", err)
	}
	if sent := sink.Sent(); len(sent) != 1 || sent[0].Question != "q1" {
		t.Fatalf("expected only the first import to dispatch, got %+v", sent)
	}

	// The lane is free again.
	if _, err := importer.AddQuiz(context.Background(), "", "biology", quiz); err != nil {
		t.Fatalf("add quiz after import: %v", err)
	}
}
