package app

import (
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"forum-quiz-service/internal/batchfile"
	"forum-quiz-service/internal/domain"
)

// Tally counts how many quizzes have their correct answer at each letter.
type Tally map[string]int

// Letter maps an option index to its answer letter (0 -> "A").
func Letter(index int) string {
	return string(rune('A' + index))
}

// Total returns the number of quizzes counted.
func (t Tally) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// String renders the tally with letters in order, e.g. "{A: 3, B: 2}".
func (t Tally) String() string {
	letters := make([]string, 0, len(t))
	for l := range t {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	parts := make([]string, 0, len(letters))
	for _, l := range letters {
		parts = append(parts, fmt.Sprintf("%s: %d", l, t[l]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Randomizer reshuffles answer options while keeping the correct answer text.
type Randomizer struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandomizer seeds from the wall clock.
func NewRandomizer() *Randomizer {
	return NewRandomizerWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewRandomizerWithSource allows deterministic shuffles in tests.
func NewRandomizerWithSource(src rand.Source) *Randomizer {
	return &Randomizer{rnd: rand.New(src)}
}

// Shuffle permutes the options of a valid quiz and relocates CorrectOption to
// the first index that holds the previously correct text.
func (r *Randomizer) Shuffle(q domain.Quiz) domain.Quiz {
	correct := q.CorrectText()
	options := append([]string(nil), q.Options...)

	r.mu.Lock()
	r.rnd.Shuffle(len(options), func(i, j int) { options[i], options[j] = options[j], options[i] })
	r.mu.Unlock()

	out := domain.Quiz{Question: q.Question, Options: options}
	for i, opt := range options {
		if opt == correct {
			out.CorrectOption = i
			break
		}
	}
	return out
}

// RandomizeOne shuffles a raw batch record. Every other key of the record is
// carried over unchanged.
func (r *Randomizer) RandomizeOne(rec domain.RawRecord) (domain.RawRecord, error) {
	if rec == nil {
		return nil, domain.NewValidationError("record", "record is not an object")
	}
	q, err := domain.QuizFromRecord(rec)
	if err != nil {
		return nil, err
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return nil, domain.NewValidationError("correct_option", fmt.Sprintf("index %d out of range [0,%d)", q.CorrectOption, len(q.Options)))
	}
	shuffled := r.Shuffle(q)

	out := make(domain.RawRecord, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	out["options"] = shuffled.Options
	out["correct_option"] = shuffled.CorrectOption
	return out, nil
}

// RandomizeBatch randomizes every record and the record order. The first
// malformed record aborts the whole batch.
func (r *Randomizer) RandomizeBatch(records []domain.RawRecord) ([]domain.RawRecord, Tally, error) {
	out := make([]domain.RawRecord, 0, len(records))
	tally := make(Tally)
	for i, rec := range records {
		next, err := r.RandomizeOne(rec)
		if err != nil {
			return nil, nil, fmt.Errorf("record %d: %w", i, err)
		}
		tally[Letter(next["correct_option"].(int))]++
		out = append(out, next)
	}

	r.mu.Lock()
	r.rnd.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	r.mu.Unlock()

	return out, tally, nil
}

// RandomizeFile rewrites the batch document at path with randomized records.
// The file is left untouched when any record is malformed.
func (r *Randomizer) RandomizeFile(path string) (Tally, error) {
	records, format, err := batchfile.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out, tally, err := r.RandomizeBatch(records)
	if err != nil {
		return nil, err
	}
	if err := batchfile.WriteFile(path, format, out); err != nil {
		return nil, fmt.Errorf("rewrite %s: %w", path, err)
	}
	return tally, nil
}
