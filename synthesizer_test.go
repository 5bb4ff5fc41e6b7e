package docquiz

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func snippetsForUnits(n int) []SampledSnippet {
	snippets := make([]SampledSnippet, 0, n)
	for i := 0; i < n; i++ {
		snippets = append(snippets, SampledSnippet{
			DocumentID: "doc1",
			Page:       i + 1,
			Content:    fmt.Sprintf("excerpt %d about subject%d and its behavior under condition%d", i, i, i),
			Reason:     ReasonPeriodic,
		})
	}
	return snippets
}

func documentContext(units int, difficulty Difficulty) DocumentContext {
	return DocumentContext{
		DocumentID: "doc1",
		Title:      "Test Document",
		Snippets:   snippetsForUnits(units),
		Difficulty: difficulty,
	}
}

func TestSynthesizeEasyCountPolicy(t *testing.T) {
	drafter := countingDrafter()
	synth := NewSynthesizer(drafter)

	// 9 units at easy difficulty: clamp(9/3, 5, 10) = 5.
	result, err := synth.Synthesize(context.Background(), documentContext(9, DifficultyEasy))
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(result.Questions) != 5 {
		t.Fatalf("questions = %d, want 5", len(result.Questions))
	}

	seen := make(map[string]bool)
	for _, q := range result.Questions {
		if seen[q.ID] {
			t.Errorf("duplicate question id %s", q.ID)
		}
		seen[q.ID] = true

		if len(q.Options) != 4 {
			t.Errorf("question %s has %d options", q.ID, len(q.Options))
		}
		if _, ok := q.CorrectOption(); !ok {
			t.Errorf("question %s: correct id matches no option", q.ID)
		}
		if len(q.SourceRefs) == 0 {
			t.Errorf("question %s has no source refs", q.ID)
		}
		if q.Difficulty != DifficultyEasy {
			t.Errorf("question %s difficulty = %q", q.ID, q.Difficulty)
		}
		for i, opt := range q.Options {
			if opt.Label != optionLabels[i] {
				t.Errorf("question %s option %d label = %q", q.ID, i, opt.Label)
			}
		}
	}
}

func TestSynthesizeHarderCountPolicy(t *testing.T) {
	synth := NewSynthesizer(countingDrafter())

	// 30 units at hard difficulty: clamp(30/2, 8, 12) = 12.
	result, err := synth.Synthesize(context.Background(), documentContext(30, DifficultyHard))
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(result.Questions) != 12 {
		t.Errorf("questions = %d, want 12", len(result.Questions))
	}

	// Medium uses the same harder policy as hard.
	result, err = synth.Synthesize(context.Background(), documentContext(30, DifficultyMedium))
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if len(result.Questions) != 12 {
		t.Errorf("medium questions = %d, want 12", len(result.Questions))
	}
}

func TestSynthesizeMalformedDraftsFail(t *testing.T) {
	drafter := &fakeDrafter{}
	drafter.draft = func(req DraftRequest) ([]QuestionDraft, error) {
		bad := goodDraft(0)
		bad.Options = bad.Options[:3] // only 3 options
		return []QuestionDraft{bad}, nil
	}
	synth := NewSynthesizer(drafter)

	_, err := synth.Synthesize(context.Background(), documentContext(6, DifficultyEasy))
	if !IsUpstream(err) {
		t.Fatalf("expected upstream error after all rounds, got %v", err)
	}
	if drafter.calls != maxDraftRounds {
		t.Errorf("drafter called %d times, want %d", drafter.calls, maxDraftRounds)
	}
}

func TestSynthesizeScreensDrafts(t *testing.T) {
	drafter := &fakeDrafter{}
	drafter.draft = func(req DraftRequest) ([]QuestionDraft, error) {
		structural := goodDraft(0)
		structural.Prompt = "How many pages does chapter two span?"

		drafts := []QuestionDraft{structural}
		for i := 0; i < req.Count; i++ {
			drafts = append(drafts, goodDraft(i%len(req.Units)))
		}
		return drafts, nil
	}
	synth := NewSynthesizer(drafter)

	result, err := synth.Synthesize(context.Background(), documentContext(15, DifficultyEasy))
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	if result.Diagnostics.DropCounts.Structural == 0 {
		t.Error("structural drop not counted")
	}
	for _, q := range result.Questions {
		if q.Prompt == "How many pages does chapter two span?" {
			t.Error("structural question survived screening")
		}
	}
}

func TestSynthesizeKeepsEarlierRoundsOnLaterFailure(t *testing.T) {
	drafter := &fakeDrafter{}
	drafter.draft = func(req DraftRequest) ([]QuestionDraft, error) {
		if drafter.calls > 1 {
			return nil, errors.New("backend down")
		}
		return []QuestionDraft{goodDraft(0), goodDraft(1)}, nil
	}
	synth := NewSynthesizer(drafter)

	result, err := synth.Synthesize(context.Background(), documentContext(15, DifficultyEasy))
	if err != nil {
		t.Fatalf("partial result should not fail: %v", err)
	}
	if len(result.Questions) != 2 {
		t.Errorf("questions = %d, want the 2 from round one", len(result.Questions))
	}
}

func TestSynthesizeFirstRoundFailure(t *testing.T) {
	drafter := &fakeDrafter{}
	drafter.draft = func(req DraftRequest) ([]QuestionDraft, error) {
		return nil, errors.New("backend down")
	}
	synth := NewSynthesizer(drafter)

	if _, err := synth.Synthesize(context.Background(), documentContext(6, DifficultyEasy)); err == nil {
		t.Fatal("expected error when the first round fails")
	}
}

func TestSynthesizeEmptyContext(t *testing.T) {
	synth := NewSynthesizer(countingDrafter())
	_, err := synth.Synthesize(context.Background(), documentContext(0, DifficultyEasy))
	if !IsValidation(err) {
		t.Errorf("expected validation error for zero units, got %v", err)
	}
}

func TestSynthesizeDiagnosticsRatios(t *testing.T) {
	synth := NewSynthesizer(countingDrafter())

	result, err := synth.Synthesize(context.Background(), documentContext(9, DifficultyEasy))
	if err != nil {
		t.Fatalf("synthesize failed: %v", err)
	}
	d := result.Diagnostics
	if d.CoverageRatio < 0 || d.CoverageRatio > 1 {
		t.Errorf("coverage ratio %v out of [0,1]", d.CoverageRatio)
	}
	if d.ApplicationRatio < 0 || d.ApplicationRatio > 1 {
		t.Errorf("application ratio %v out of [0,1]", d.ApplicationRatio)
	}
	// countingDrafter labels every draft conceptual.
	if d.IntentCounts.Conceptual != len(result.Questions) {
		t.Errorf("conceptual count = %d, want %d", d.IntentCounts.Conceptual, len(result.Questions))
	}
}

func TestSynthesizeAllPreservesOrder(t *testing.T) {
	synth := NewSynthesizer(countingDrafter())

	contexts := []QuizContext{
		TopicContext{
			Topic:      Topic{ID: "t1", Title: "First"},
			DocumentID: "doc1",
			Snippets:   snippetsForUnits(9),
			Difficulty: DifficultyEasy,
		},
		TopicContext{
			Topic:      Topic{ID: "t2", Title: "Second"},
			DocumentID: "doc1",
			Snippets:   snippetsForUnits(30),
			Difficulty: DifficultyHard,
		},
	}

	results, err := synth.SynthesizeAll(context.Background(), contexts)
	if err != nil {
		t.Fatalf("synthesize all failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	if len(results[0].Questions) != 5 {
		t.Errorf("first scope questions = %d, want 5", len(results[0].Questions))
	}
	if len(results[1].Questions) != 12 {
		t.Errorf("second scope questions = %d, want 12", len(results[1].Questions))
	}
}

func TestQuestionCountPolicy(t *testing.T) {
	cases := []struct {
		difficulty Difficulty
		units      int
		want       int
	}{
		{DifficultyEasy, 9, 5},
		{DifficultyEasy, 3, 5},
		{DifficultyEasy, 60, 10},
		{DifficultyMedium, 30, 12},
		{DifficultyHard, 4, 8},
		{DifficultyHard, 20, 10},
	}
	for _, tc := range cases {
		if got := questionCount(tc.difficulty, tc.units); got != tc.want {
			t.Errorf("questionCount(%q, %d) = %d, want %d", tc.difficulty, tc.units, got, tc.want)
		}
	}
}
