package docquiz

import (
	"strings"
	"testing"
)

func draftWith(prompt, answer string) QuestionDraft {
	return QuestionDraft{
		Prompt:       prompt,
		Options:      []string{answer, "wrong one", "wrong two", "wrong three"},
		CorrectIndex: 0,
	}
}

func TestScreenStructural(t *testing.T) {
	prompts := []string{
		"On what page is the conclusion found?",
		"How many chapters does the document have?",
		"In which section is memory management discussed?",
		"What does the table of contents list first?",
		"What font is used for headings?",
		"What is the title of the document?",
	}
	s := newScreener()
	for _, prompt := range prompts {
		if reason := s.check(draftWith(prompt, "an answer"), "source text"); reason != DropStructural {
			t.Errorf("prompt %q screened as %q, want structural", prompt, reason)
		}
	}

	ok := "What causes cells to divide?"
	if reason := s.check(draftWith(ok, "an answer"), "source text"); reason != "" {
		t.Errorf("prompt %q screened as %q, want kept", ok, reason)
	}
}

func TestScreenRedundant(t *testing.T) {
	s := newScreener()
	first := draftWith("What mechanism drives osmosis across the membrane?", "water potential gradients")

	if reason := s.check(first, "unrelated source"); reason != "" {
		t.Fatalf("first draft screened as %q, want kept", reason)
	}
	s.keep(first)

	// Same question again, trivially reworded.
	dup := draftWith("What mechanism drives osmosis across the membrane??", "water potential gradients")
	if reason := s.check(dup, "unrelated source"); reason != DropRedundant {
		t.Errorf("duplicate screened as %q, want redundant", reason)
	}

	different := draftWith("Why do enzymes lower activation energy in reactions?", "transition state stabilization")
	if reason := s.check(different, "unrelated source"); reason != "" {
		t.Errorf("distinct draft screened as %q, want kept", reason)
	}
}

func TestScreenLiteral(t *testing.T) {
	source := "Photosynthesis converts light energy into chemical energy stored in glucose molecules inside chloroplasts."

	// Correct answer lifted verbatim from the source.
	lifted := draftWith("What does photosynthesis do?", "converts light energy into chemical energy")
	if reason := newScreener().check(lifted, source); reason != DropLiteral {
		t.Errorf("lifted answer screened as %q, want literal", reason)
	}

	// Short verbatim answers pass; only long lifts are mechanical.
	short := draftWith("Where is the product stored?", "glucose molecules")
	if reason := newScreener().check(short, source); reason != "" {
		t.Errorf("short answer screened as %q, want kept", reason)
	}

	// Prompt that is itself a verbatim excerpt substring.
	echo := draftWith("converts light energy into chemical energy stored in glucose molecules?", "a paraphrased answer")
	if reason := newScreener().check(echo, source); reason != DropLiteral {
		t.Errorf("echoed prompt screened as %q, want literal", reason)
	}

	paraphrase := draftWith("Which organelle hosts the light reactions?", "the chloroplast stroma region")
	if reason := newScreener().check(paraphrase, source); reason != "" {
		t.Errorf("paraphrase screened as %q, want kept", reason)
	}
}

func TestClassifyIntent(t *testing.T) {
	cases := []struct {
		name  string
		draft QuestionDraft
		want  QuestionIntent
	}{
		{
			"backend label wins",
			QuestionDraft{Prompt: "Why does it work?", Intent: "recall"},
			IntentRecall,
		},
		{
			"invalid label falls back to heuristics",
			QuestionDraft{Prompt: "Suppose a user uploads a corrupt file. What happens?", Intent: "bogus"},
			IntentScenario,
		},
		{
			"why prompt is conceptual",
			QuestionDraft{Prompt: "Why does entropy increase in closed systems?"},
			IntentConceptual,
		},
		{
			"difference prompt is conceptual",
			QuestionDraft{Prompt: "What is the difference between mitosis and meiosis?"},
			IntentConceptual,
		},
		{
			"plain fact is recall",
			QuestionDraft{Prompt: "What year was the treaty signed?"},
			IntentRecall,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classifyIntent(tc.draft); got != tc.want {
				t.Errorf("classifyIntent = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestDraftSignatureNormalizes(t *testing.T) {
	a := draftWith("What   Is  OSMOSIS?", "Water Movement Along Gradients")
	b := draftWith("what is osmosis?", "water movement along gradients")
	if draftSignature(a) != draftSignature(b) {
		t.Error("signatures should be case and whitespace insensitive")
	}
	if !strings.Contains(draftSignature(a), "osmosis") {
		t.Error("signature lost the prompt text")
	}
}
