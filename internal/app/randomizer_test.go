package app_test

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"forum-quiz-service/internal/app"
	"forum-quiz-service/internal/batchfile"
	"forum-quiz-service/internal/domain"
)

func TestShufflePreservesCorrectText(t *testing.T) {
	r := app.NewRandomizerWithSource(rand.NewSource(42))
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := 2 + rnd.Intn(9)
		options := make([]string, n)
		for j := range options {
			options[j] = fmt.Sprintf("option-%d-%d", i, j)
		}
		q := domain.Quiz{Question: "q", Options: options, CorrectOption: rnd.Intn(n)}
		want := q.CorrectText()

		got := r.Shuffle(q)
		if got.CorrectOption < 0 || got.CorrectOption >= len(got.Options) {
			t.Fatalf("index %d out of range after shuffle", got.CorrectOption)
		}
		if got.CorrectText() != want {
			t.Fatalf("correct text moved: got %q want %q", got.CorrectText(), want)
		}
		if len(got.Options) != n {
			t.Fatalf("option count changed: %d -> %d", n, len(got.Options))
		}
		if q.Options[q.CorrectOption] != want {
			t.Fatalf("input quiz was mutated")
		}
	}
}

func TestShuffleTargetsFirstDuplicate(t *testing.T) {
	r := app.NewRandomizerWithSource(rand.NewSource(3))
	q := domain.Quiz{Question: "q", Options: []string{"yes", "no", "yes", "maybe"}, CorrectOption: 2}
	for i := 0; i < 50; i++ {
		got := r.Shuffle(q)
		for j := 0; j < got.CorrectOption; j++ {
			if got.Options[j] == "yes" {
				t.Fatalf("relocated to %d but %d also holds the correct text: %v", got.CorrectOption, j, got.Options)
			}
		}
		if got.CorrectText() != "yes" {
			t.Fatalf("wrong correct text %q", got.CorrectText())
		}
	}
}

func TestRandomizeOneRejectsMissingFields(t *testing.T) {
	r := app.NewRandomizer()
	if _, err := r.RandomizeOne(domain.RawRecord{"correct_option": 0}); !errors.Is(err, domain.ErrMissingOptions) {
		t.Fatalf("expected missing options, got %v", err)
	}
	if _, err := r.RandomizeOne(domain.RawRecord{"options": []any{"a", "b"}}); !errors.Is(err, domain.ErrMissingCorrectOption) {
		t.Fatalf("expected missing correct option, got %v", err)
	}
	if _, err := r.RandomizeOne(domain.RawRecord{"options": []any{"a", "b"}, "correct_option": 5}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestRandomizeOneKeepsOtherKeys(t *testing.T) {
	r := app.NewRandomizerWithSource(rand.NewSource(1))
	rec := domain.RawRecord{"topic": "biology", "question": "2+2?", "options": []any{"3", "4", "5"}, "correct_option": 1, "source": "book"}
	out, err := r.RandomizeOne(rec)
	if err != nil {
		t.Fatalf("randomize: %v", err)
	}
	if out["topic"] != "biology" || out["question"] != "2+2?" || out["source"] != "book" {
		t.Fatalf("keys not preserved: %+v", out)
	}
	options := out["options"].([]string)
	if options[out["correct_option"].(int)] != "4" {
		t.Fatalf("correct answer lost: %+v", out)
	}
	if rec["correct_option"] != 1 {
		t.Fatalf("input record mutated")
	}
}

func TestRandomizeBatchTally(t *testing.T) {
	r := app.NewRandomizerWithSource(rand.NewSource(11))
	records := make([]domain.RawRecord, 0, 40)
	for i := 0; i < 40; i++ {
		records = append(records, domain.RawRecord{
			"question":       fmt.Sprintf("q%d", i),
			"options":        []any{"a", "b", "c", "d"},
			"correct_option": 0,
		})
	}

	out, tally, err := r.RandomizeBatch(records)
	if err != nil {
		t.Fatalf("randomize batch: %v", err)
	}
	if len(out) != len(records) {
		t.Fatalf("expected %d records, got %d", len(records), len(out))
	}
	if tally.Total() != len(records) {
		t.Fatalf("tally sums to %d, want %d", tally.Total(), len(records))
	}
	for letter := range tally {
		if letter < "A" || letter > "D" {
			t.Fatalf("unexpected letter %q", letter)
		}
	}
	seen := make(map[string]bool)
	for _, rec := range out {
		if rec["options"].([]string)[rec["correct_option"].(int)] != "a" {
			t.Fatalf("correct answer lost in %+v", rec)
		}
		seen[rec["question"].(string)] = true
	}
	if len(seen) != len(records) {
		t.Fatalf("records lost while shuffling order")
	}
}

func TestRandomizeBatchAbortsOnMalformedRecord(t *testing.T) {
	r := app.NewRandomizer()
	records := []domain.RawRecord{
		{"options": []any{"a", "b"}, "correct_option": 0},
		{"options": []any{"a", "b"}},
	}
	out, tally, err := r.RandomizeBatch(records)
	if !errors.Is(err, domain.ErrMissingCorrectOption) {
		t.Fatalf("expected batch abort, got %v", err)
	}
	if out != nil || tally != nil {
		t.Fatalf("expected no partial output")
	}
}

func TestTallyString(t *testing.T) {
	tally := app.Tally{"C": 1, "A": 3, "B": 2}
	if got := tally.String(); got != "{A: 3, B: 2, C: 1}" {
		t.Fatalf("unexpected rendering %q", got)
	}
	if app.Letter(0) != "A" || app.Letter(3) != "D" {
		t.Fatalf("unexpected letters")
	}
}

func TestRandomizeFileRewritesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.json")
	doc := `[
  {"topic": "biology", "question": "q1", "options": ["right", "w1", "w2"], "correct_option": 0},
  {"topic": "biology", "question": "q2", "options": ["w1", "right"], "correct_option": 1}
]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}

	tally, err := app.NewRandomizerWithSource(rand.NewSource(5)).RandomizeFile(path)
	if err != nil {
		t.Fatalf("randomize file: %v", err)
	}
	if tally.Total() != 2 {
		t.Fatalf("expected tally over 2 records, got %v", tally)
	}

	records, _, err := batchfile.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	for _, rec := range records {
		_, quiz, err := domain.ParseRecord(rec, domain.MaxPlatformOptions)
		if err != nil {
			t.Fatalf("rewritten record invalid: %v", err)
		}
		if quiz.CorrectText() != "right" {
			t.Fatalf("correct answer lost: %+v", quiz)
		}
	}
}

func TestRandomizeFileLeavesMalformedFileAlone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quizzes.json")
	doc := `[{"question": "q1", "options": ["a", "b"]}]`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, err := app.NewRandomizer().RandomizeFile(path); !errors.Is(err, domain.ErrMissingCorrectOption) {
		t.Fatalf("expected missing correct option, got %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != doc {
		t.Fatalf("file modified despite failure: %s", data)
	}
}
