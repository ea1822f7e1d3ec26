package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MaxPlatformOptions is the number of poll options the platform accepts.
const MaxPlatformOptions = 10

// NormalizeTopicName trims and lowercases a topic name.
func NormalizeTopicName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ValidateGroupID checks that id is a decimal chat id. Chat ids are kept as
// strings so large values survive JSON round-trips.
func ValidateGroupID(id string) error {
	if id == "" {
		return NewValidationError("group_id", "empty group id")
	}
	if _, err := strconv.ParseInt(id, 10, 64); err != nil {
		return NewValidationError("group_id", fmt.Sprintf("%q is not an integer chat id", id))
	}
	return nil
}

// ValidateThreadID rejects negative thread ids.
func ValidateThreadID(thread int64) error {
	if thread < 0 {
		return NewValidationError("thread_id", "thread id must not be negative")
	}
	return nil
}

// Validate checks the option count and the correct index.
func (q Quiz) Validate(maxOptions int) error {
	if maxOptions <= 0 || maxOptions > MaxPlatformOptions {
		maxOptions = MaxPlatformOptions
	}
	if strings.TrimSpace(q.Question) == "" {
		return NewValidationError("question", "empty question")
	}
	if q.Options == nil {
		return ErrMissingOptions
	}
	if len(q.Options) < 2 {
		return NewValidationError("options", "at least two options are required")
	}
	if len(q.Options) > maxOptions {
		return NewValidationError("options", fmt.Sprintf("at most %d options are allowed", maxOptions))
	}
	for i, opt := range q.Options {
		if strings.TrimSpace(opt) == "" {
			return NewValidationError("options", fmt.Sprintf("option %d is empty", i))
		}
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return NewValidationError("correct_option", fmt.Sprintf("index %d out of range [0,%d)", q.CorrectOption, len(q.Options)))
	}
	return nil
}

// ParseRecord turns a raw batch entry into its topic name and a validated quiz.
func ParseRecord(raw RawRecord, maxOptions int) (string, Quiz, error) {
	if raw == nil {
		return "", Quiz{}, NewValidationError("record", "record is not an object")
	}
	topic, err := stringField(raw, "topic")
	if err != nil {
		return "", Quiz{}, err
	}
	topic = NormalizeTopicName(topic)
	if topic == "" {
		return "", Quiz{}, NewValidationError("topic", "empty topic")
	}
	question, err := stringField(raw, "question")
	if err != nil {
		return topic, Quiz{}, err
	}
	quiz, err := QuizFromRecord(raw)
	if err != nil {
		return topic, Quiz{}, err
	}
	quiz.Question = strings.TrimSpace(question)
	if err := quiz.Validate(maxOptions); err != nil {
		return topic, Quiz{}, err
	}
	return topic, quiz, nil
}

// QuizFromRecord extracts options and correct_option from raw without
// checking ranges. It is shared by the importer and the randomizer.
func QuizFromRecord(raw RawRecord) (Quiz, error) {
	rawOptions, ok := raw["options"]
	if !ok || rawOptions == nil {
		return Quiz{}, ErrMissingOptions
	}
	options, err := AsStringList(rawOptions)
	if err != nil {
		return Quiz{}, err
	}
	rawCorrect, ok := raw["correct_option"]
	if !ok || rawCorrect == nil {
		return Quiz{}, ErrMissingCorrectOption
	}
	correct, err := AsIndex(rawCorrect)
	if err != nil {
		return Quiz{}, err
	}
	q := Quiz{Options: options, CorrectOption: correct}
	if s, ok := raw["question"].(string); ok {
		q.Question = s
	}
	return q, nil
}

func stringField(raw RawRecord, field string) (string, error) {
	v, ok := raw[field]
	if !ok || v == nil {
		return "", NewValidationError(field, "missing")
	}
	s, ok := v.(string)
	if !ok {
		return "", NewValidationError(field, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

// AsStringList accepts a decoded JSON/YAML list of strings.
func AsStringList(v any) ([]string, error) {
	switch list := v.(type) {
	case []string:
		return append([]string(nil), list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, NewValidationError("options", fmt.Sprintf("option %d is %T, not a string", i, item))
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, NewValidationError("options", fmt.Sprintf("expected a list, got %T", v))
	}
}

// AsIndex accepts integers, integral floats and decimal strings.
func AsIndex(v any) (int, error) {
	bad := func() (int, error) {
		return 0, NewValidationError("correct_option", fmt.Sprintf("%v is not an integer", v))
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case uint64:
		if n > math.MaxInt32 {
			return bad()
		}
		return int(n), nil
	case float64:
		if n != math.Trunc(n) || math.Abs(n) > math.MaxInt32 {
			return bad()
		}
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return bad()
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return bad()
		}
		return i, nil
	default:
		return bad()
	}
}

// Validate checks the invariants of a loaded catalog.
func (s CatalogState) Validate() error {
	for id, g := range s.Groups {
		if err := ValidateGroupID(id); err != nil {
			return err
		}
		if g == nil {
			return NewValidationError("groups", fmt.Sprintf("group %s has no body", id))
		}
		for name, thread := range g.Topics {
			if name == "" || name != NormalizeTopicName(name) {
				return NewValidationError("topics", fmt.Sprintf("group %s: topic name %q is not normalized", id, name))
			}
			if err := ValidateThreadID(thread); err != nil {
				return err
			}
		}
	}
	if s.CurrentGroup != "" {
		if _, ok := s.Groups[s.CurrentGroup]; !ok {
			return NewValidationError("current_group", fmt.Sprintf("current group %s is not registered", s.CurrentGroup))
		}
	}
	return nil
}
