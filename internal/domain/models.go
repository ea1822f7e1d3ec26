package domain

import (
	"sort"
	"time"
)

// Topic is a named thread inside a group.
type Topic struct {
	Name     string `json:"name"`
	ThreadID int64  `json:"thread_id"`
}

// Group is a destination chat owning a set of topics keyed by normalized name.
type Group struct {
	ID     string
	Topics map[string]int64
}

// CatalogState is the whole persisted catalog.
type CatalogState struct {
	CurrentGroup string
	Groups       map[string]*Group
}

// NewCatalogState returns an empty state.
func NewCatalogState() CatalogState {
	return CatalogState{Groups: make(map[string]*Group)}
}

// Clone returns a deep copy so callers can mutate without touching the original.
func (s CatalogState) Clone() CatalogState {
	out := CatalogState{
		CurrentGroup: s.CurrentGroup,
		Groups:       make(map[string]*Group, len(s.Groups)),
	}
	for id, g := range s.Groups {
		topics := make(map[string]int64, len(g.Topics))
		for name, thread := range g.Topics {
			topics[name] = thread
		}
		out.Groups[id] = &Group{ID: id, Topics: topics}
	}
	return out
}

// SortedTopics lists the topics of g ordered by name.
func (g *Group) SortedTopics() []Topic {
	topics := make([]Topic, 0, len(g.Topics))
	for name, thread := range g.Topics {
		topics = append(topics, Topic{Name: name, ThreadID: thread})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return topics
}

// Quiz is a validated multiple-choice question.
type Quiz struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectOption int      `json:"correct_option"`
}

// CorrectText returns the text of the correct option.
func (q Quiz) CorrectText() string {
	return q.Options[q.CorrectOption]
}

// RawRecord is one undecoded entry of a batch document. A nil map marks an
// entry that was not an object.
type RawRecord map[string]any

// Dispatch is what the sink needs to deliver one quiz.
type Dispatch struct {
	GroupID      string
	ThreadID     int64
	Question     string
	Options      []string
	CorrectIndex int
}

// LogStatus tracks the lifecycle of a quiz log entry.
type LogStatus string

const (
	LogPending LogStatus = "pending"
	LogSent    LogStatus = "sent"
	LogFailed  LogStatus = "failed"
	// LogStopped marks a sent poll closed by clearResponses.
	LogStopped LogStatus = "stopped"
)

// LogEntry is one event in a per-topic quiz log. An entry is appended as
// pending before dispatch and again with its final status afterwards.
type LogEntry struct {
	ID        string    `json:"id"`
	ImportID  string    `json:"import_id,omitempty"`
	GroupID   string    `json:"group_id"`
	Topic     string    `json:"topic"`
	ThreadID  int64     `json:"thread_id"`
	Quiz      Quiz      `json:"quiz"`
	Status    LogStatus `json:"status"`
	MessageID int       `json:"message_id,omitempty"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// FoldLog collapses a raw event sequence to the latest event per entry id,
// keeping the order in which ids were first seen.
func FoldLog(events []LogEntry) []LogEntry {
	index := make(map[string]int, len(events))
	out := make([]LogEntry, 0, len(events))
	for _, e := range events {
		if i, ok := index[e.ID]; ok {
			out[i] = e
			continue
		}
		index[e.ID] = len(out)
		out = append(out, e)
	}
	return out
}

// ItemFailure describes why one record of a batch was not accepted.
type ItemFailure struct {
	Index  int    `json:"index"`
	Topic  string `json:"topic,omitempty"`
	Kind   Kind   `json:"kind"`
	Reason string `json:"reason"`
}

// ImportSummary is the outcome of a batch import.
type ImportSummary struct {
	ImportID       string         `json:"import_id"`
	Accepted       map[string]int `json:"accepted"`
	Failed         int            `json:"failed"`
	FailuresByKind map[Kind]int   `json:"failures_by_kind,omitempty"`
	Failures       []ItemFailure  `json:"failures,omitempty"`
	Canceled       bool           `json:"canceled,omitempty"`
}

// NewImportSummary returns an empty summary for the given batch.
func NewImportSummary(importID string) ImportSummary {
	return ImportSummary{
		ImportID:       importID,
		Accepted:       make(map[string]int),
		FailuresByKind: make(map[Kind]int),
	}
}

// Fail records a failed record.
func (s *ImportSummary) Fail(f ItemFailure) {
	s.Failed++
	s.FailuresByKind[f.Kind]++
	s.Failures = append(s.Failures, f)
}

// TotalAccepted sums accepted counts across topics.
func (s ImportSummary) TotalAccepted() int {
	total := 0
	for _, n := range s.Accepted {
		total += n
	}
	return total
}

// ImportEvent is published while a batch is processed.
type ImportEvent struct {
	Type     string         `json:"type"` // "record" or "done"
	ImportID string         `json:"importId"`
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	Topic    string         `json:"topic,omitempty"`
	Accepted bool           `json:"accepted"`
	Kind     Kind           `json:"kind,omitempty"`
	Reason   string         `json:"reason,omitempty"`
	Summary  *ImportSummary `json:"summary,omitempty"`
}
