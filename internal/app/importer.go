package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"forum-quiz-service/internal/batchfile"
	"forum-quiz-service/internal/domain"
	"github.com/google/uuid"
)

// DispatchSink delivers one quiz to a group thread and returns the message id.
type DispatchSink interface {
	Send(ctx context.Context, d domain.Dispatch) (int, error)
}

// PollCloser stops a previously dispatched poll.
type PollCloser interface {
	StopPoll(ctx context.Context, groupID string, messageID int) error
}

// QuizLog is the append-only per-topic record of dispatched quizzes.
type QuizLog interface {
	Append(ctx context.Context, entry domain.LogEntry) error
	Entries(ctx context.Context, groupID, topic string) ([]domain.LogEntry, error)
}

// TopicResolver is the read side of the catalog the importer needs.
type TopicResolver interface {
	ResolveGroup(groupID string) (string, error)
	TopicThread(groupID, name string) (int64, bool)
}

// Importer validates quizzes and dispatches them one at a time.
type Importer struct {
	catalog    TopicResolver
	sink       DispatchSink
	pacer      Pacer
	quizLog    QuizLog
	progress   ProgressPublisher
	logger     *slog.Logger
	now        func() time.Time
	newID      func() string
	maxOptions int

	// lane holds one token; whoever owns it may talk to the sink. It serializes
	// every dispatch so the per-chat rate limit holds across callers.
	lane chan struct{}
}

// ImporterOption customizes an Importer.
type ImporterOption func(*Importer)

// WithQuizLog records every dispatch in l before and after the sink call.
func WithQuizLog(l QuizLog) ImporterOption { return func(i *Importer) { i.quizLog = l } }

// WithProgress publishes per-record import events to p.
func WithProgress(p ProgressPublisher) ImporterOption { return func(i *Importer) { i.progress = p } }

// WithLogger overrides slog.Default.
func WithLogger(l *slog.Logger) ImporterOption { return func(i *Importer) { i.logger = l } }

// WithMaxOptions caps the number of answer options a quiz may carry.
func WithMaxOptions(n int) ImporterOption { return func(i *Importer) { i.maxOptions = n } }

// WithIDs is test-only for deterministic import and entry ids.
func WithIDs(next func() string) ImporterOption { return func(i *Importer) { i.newID = next } }

// WithNow is test-only for deterministic log timestamps.
func WithNow(now func() time.Time) ImporterOption { return func(i *Importer) { i.now = now } }

// NewImporter returns an importer dispatching to sink. A nil pacer never waits.
func NewImporter(catalog TopicResolver, sink DispatchSink, pacer Pacer, opts ...ImporterOption) *Importer {
	i := &Importer{
		lane:       make(chan struct{}, 1),
		catalog:    catalog,
		sink:       sink,
		pacer:      pacer,
		logger:     slog.Default(),
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
		maxOptions: domain.MaxPlatformOptions,
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.pacer == nil {
		i.pacer = NoopPacer{}
	}
	return i
}

// ImportBatch processes records strictly in order. Per-record failures are
// tallied in the summary and never abort the batch. On cancellation the
// summary covers the records handled so far and the context error is returned
// alongside it.
func (i *Importer) ImportBatch(ctx context.Context, groupID string, records []domain.RawRecord) (domain.ImportSummary, error) {
	group, err := i.catalog.ResolveGroup(groupID)
	if err != nil {
		return domain.ImportSummary{}, err
	}

	summary := domain.NewImportSummary(i.newID())
	if err := i.acquire(ctx); err != nil {
		summary.Canceled = true
		return summary, fmt.Errorf("import canceled: %w", err)
	}
	defer i.release()

	logger := i.logger.With("import_id", summary.ImportID, "group", group)
	logger.Info("import started", "records", len(records))

	for idx, raw := range records {
		if err := i.pacer.Wait(ctx); err != nil {
			summary.Canceled = true
			break
		}
		topic, err := i.processRecord(ctx, summary.ImportID, group, raw)
		i.pacer.Release()

		event := domain.ImportEvent{Type: "record", ImportID: summary.ImportID, Index: idx, Total: len(records), Topic: topic}
		if err != nil {
			failure := domain.ItemFailure{Index: idx, Topic: topic, Kind: domain.KindOf(err), Reason: err.Error()}
			summary.Fail(failure)
			event.Kind, event.Reason = failure.Kind, failure.Reason
			logger.Warn("import record failed", "index", idx, "topic", topic, "kind", failure.Kind, "error", err)
		} else {
			summary.Accepted[topic]++
			event.Accepted = true
		}
		i.publish(event)
	}

	final := summary
	i.publish(domain.ImportEvent{Type: "done", ImportID: summary.ImportID, Total: len(records), Summary: &final})
	logger.Info("import finished", "accepted", summary.TotalAccepted(), "failed", summary.Failed, "canceled", summary.Canceled)

	if summary.Canceled {
		return summary, fmt.Errorf("import canceled: %w", ctx.Err())
	}
	return summary, nil
}

// ImportDocument decodes a batch document and imports it. A document that
// cannot be decoded fails as a whole before anything is dispatched.
func (i *Importer) ImportDocument(ctx context.Context, groupID string, r io.Reader, format batchfile.Format) (domain.ImportSummary, error) {
	records, err := batchfile.Decode(r, format)
	if err != nil {
		return domain.ImportSummary{}, err
	}
	return i.ImportBatch(ctx, groupID, records)
}

// AddQuiz dispatches a single quiz and reports its specific failure.
func (i *Importer) AddQuiz(ctx context.Context, groupID, topic string, quiz domain.Quiz) (int, error) {
	group, err := i.catalog.ResolveGroup(groupID)
	if err != nil {
		return 0, err
	}
	topic = domain.NormalizeTopicName(topic)
	if err := quiz.Validate(i.maxOptions); err != nil {
		return 0, err
	}
	thread, ok := i.catalog.TopicThread(group, topic)
	if !ok {
		return 0, fmt.Errorf("%q: %w", topic, domain.ErrTopicNotFound)
	}

	if err := i.acquire(ctx); err != nil {
		return 0, err
	}
	defer i.release()
	if err := i.pacer.Wait(ctx); err != nil {
		return 0, err
	}
	defer i.pacer.Release()
	return i.deliver(ctx, "", group, topic, thread, quiz)
}

func (i *Importer) processRecord(ctx context.Context, importID, group string, raw domain.RawRecord) (string, error) {
	topic, quiz, err := domain.ParseRecord(raw, i.maxOptions)
	if err != nil {
		return topic, err
	}
	thread, ok := i.catalog.TopicThread(group, topic)
	if !ok {
		return topic, fmt.Errorf("%q: %w", topic, domain.ErrTopicNotFound)
	}
	_, err = i.deliver(ctx, importID, group, topic, thread, quiz)
	return topic, err
}

// deliver logs the quiz as pending, dispatches it and logs the outcome.
func (i *Importer) deliver(ctx context.Context, importID, group, topic string, thread int64, quiz domain.Quiz) (int, error) {
	entry := domain.LogEntry{
		ID:       i.newID(),
		ImportID: importID,
		GroupID:  group,
		Topic:    topic,
		ThreadID: thread,
		Quiz:     quiz,
		Status:   domain.LogPending,
		At:       i.now().UTC(),
	}
	if i.quizLog != nil {
		if err := i.quizLog.Append(ctx, entry); err != nil {
			return 0, &domain.PersistenceError{Op: "append quiz log", Err: err}
		}
	}

	messageID, err := i.sink.Send(ctx, domain.Dispatch{
		GroupID:      group,
		ThreadID:     thread,
		Question:     quiz.Question,
		Options:      quiz.Options,
		CorrectIndex: quiz.CorrectOption,
	})
	if err != nil {
		var sinkErr *domain.SinkError
		if !errors.As(err, &sinkErr) {
			err = &domain.SinkError{Err: err}
		}
		entry.Status, entry.Error = domain.LogFailed, err.Error()
		i.appendOutcome(ctx, entry)
		return 0, err
	}

	entry.Status, entry.MessageID = domain.LogSent, messageID
	i.appendOutcome(ctx, entry)
	return messageID, nil
}

// appendOutcome records the final status. The quiz is already delivered (or
// not), so a log failure here is reported but does not change the outcome.
func (i *Importer) appendOutcome(ctx context.Context, entry domain.LogEntry) {
	if i.quizLog == nil {
		return
	}
	entry.At = i.now().UTC()
	if err := i.quizLog.Append(context.WithoutCancel(ctx), entry); err != nil {
		i.logger.Error("quiz log outcome append failed", "entry_id", entry.ID, "status", entry.Status, "error", err)
	}
}

func (i *Importer) publish(event domain.ImportEvent) {
	if i.progress != nil {
		i.progress.Publish(event)
	}
}

// ClearResult counts polls stopped by ClearResponses.
type ClearResult struct {
	Stopped int
	Failed  int
}

// ClearResponses stops every poll the quiz log records as sent in the group
// and logs each stopped poll, so a later call skips it. Stop calls share the
// dispatch lane and pacing.
func (i *Importer) ClearResponses(ctx context.Context, catalog *CatalogService, groupID string) (ClearResult, error) {
	closer, ok := i.sink.(PollCloser)
	if !ok {
		return ClearResult{}, errors.New("dispatch sink cannot stop polls")
	}
	if i.quizLog == nil {
		return ClearResult{}, errors.New("quiz log is disabled")
	}
	topics, err := catalog.ListTopics(groupID)
	if err != nil {
		return ClearResult{}, err
	}
	group, err := catalog.ResolveGroup(groupID)
	if err != nil {
		return ClearResult{}, err
	}

	if err := i.acquire(ctx); err != nil {
		return ClearResult{}, err
	}
	defer i.release()

	var res ClearResult
	for _, topic := range topics {
		events, err := i.quizLog.Entries(ctx, group, topic.Name)
		if err != nil {
			return res, &domain.PersistenceError{Op: "read quiz log", Err: err}
		}
		for _, entry := range domain.FoldLog(events) {
			if entry.Status != domain.LogSent || entry.MessageID == 0 {
				continue
			}
			if err := i.pacer.Wait(ctx); err != nil {
				return res, err
			}
			err := closer.StopPoll(ctx, group, entry.MessageID)
			i.pacer.Release()
			if err != nil {
				res.Failed++
				i.logger.Warn("stop poll failed", "group", group, "topic", topic.Name, "message_id", entry.MessageID, "error", err)
				continue
			}
			res.Stopped++
			entry.Status, entry.Error = domain.LogStopped, ""
			i.appendOutcome(ctx, entry)
		}
	}
	return res, nil
}

func (i *Importer) acquire(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case i.lane <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Importer) release() { <-i.lane }
