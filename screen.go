package docquiz

import (
	"regexp"
	"strings"
)

// Screening policy. These heuristics are deliberately deterministic and
// tunable; the counters they feed are advisory diagnostics, not gates.
//
// A draft is dropped as:
//   - structural: it asks about the document's layout (pages, sections,
//     figures, formatting) rather than its content;
//   - redundant: its prompt+answer pair is a near-duplicate of a
//     question already kept in this run;
//   - literal: it can be answered by verbatim string match against the
//     source excerpt without comprehension.

// DropReason names the screen that rejected a draft.
type DropReason string

const (
	DropStructural DropReason = "structural"
	DropRedundant  DropReason = "redundant"
	DropLiteral    DropReason = "literal"
)

// redundancyThreshold is the prompt+answer similarity above which a
// draft duplicates an earlier question.
const redundancyThreshold = 0.8

var structuralPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:which|what|on what)\s+page\b`),
	regexp.MustCompile(`(?i)\bhow many\s+(?:pages|chapters|sections|paragraphs|figures|tables|bullet points)\b`),
	regexp.MustCompile(`(?i)\b(?:in|under)\s+(?:which|what)\s+(?:section|chapter|heading|appendix)\b`),
	regexp.MustCompile(`(?i)\btable of contents\b`),
	regexp.MustCompile(`(?i)\b(?:font|formatting|layout|typeface|margin)\b`),
	regexp.MustCompile(`(?i)\btitle of\s+(?:the\s+)?(?:document|section|chapter|figure|table)\b`),
}

// screener applies the drop policy and classifies intent, tracking the
// prompt+answer pairs of every question kept so far in the run.
type screener struct {
	kept []string // normalized prompt+answer signatures
}

func newScreener() *screener {
	return &screener{}
}

// check returns the reason a draft must be dropped, or "" to keep it.
// unitText is the source excerpt the draft was built from.
func (s *screener) check(draft QuestionDraft, unitText string) DropReason {
	if isStructural(draft.Prompt) {
		return DropStructural
	}
	if s.isRedundant(draft) {
		return DropRedundant
	}
	if isLiteral(draft, unitText) {
		return DropLiteral
	}
	return ""
}

// keep records an accepted draft so later drafts can be screened for
// redundancy against it.
func (s *screener) keep(draft QuestionDraft) {
	s.kept = append(s.kept, draftSignature(draft))
}

func isStructural(prompt string) bool {
	for _, pattern := range structuralPatterns {
		if pattern.MatchString(prompt) {
			return true
		}
	}
	return false
}

func (s *screener) isRedundant(draft QuestionDraft) bool {
	signature := draftSignature(draft)
	for _, existing := range s.kept {
		if textSimilarity(signature, existing) > redundancyThreshold {
			return true
		}
	}
	return false
}

// isLiteral flags drafts answerable without comprehension: either the
// correct option is a long phrase lifted verbatim from the excerpt, or
// the prompt itself is a verbatim excerpt substring.
func isLiteral(draft QuestionDraft, unitText string) bool {
	source := normalizeWhitespace(strings.ToLower(unitText))
	if source == "" {
		return false
	}

	if draft.CorrectIndex >= 0 && draft.CorrectIndex < len(draft.Options) {
		answer := normalizeWhitespace(strings.ToLower(draft.Options[draft.CorrectIndex]))
		if len(answer) >= 25 && strings.Contains(source, answer) {
			return true
		}
	}

	prompt := normalizeWhitespace(strings.ToLower(strings.TrimRight(draft.Prompt, "?")))
	return len(prompt) >= 40 && strings.Contains(source, prompt)
}

func draftSignature(draft QuestionDraft) string {
	answer := ""
	if draft.CorrectIndex >= 0 && draft.CorrectIndex < len(draft.Options) {
		answer = draft.Options[draft.CorrectIndex]
	}
	return normalizeWhitespace(strings.ToLower(draft.Prompt + " " + answer))
}

var (
	scenarioPattern   = regexp.MustCompile(`(?i)\b(?:suppose|imagine|consider a|a (?:user|student|company|team) |what would happen|in a scenario|if you|were to)\b`)
	conceptualPattern = regexp.MustCompile(`(?i)^(?:why|how)\b|\b(?:explain|relationship|difference between|compare|because|principle|concept|implies|mechanism)\b`)
)

// classifyIntent maps a draft to scenario/conceptual/recall. The
// backend's own label wins when it supplied a valid one.
func classifyIntent(draft QuestionDraft) QuestionIntent {
	switch QuestionIntent(draft.Intent) {
	case IntentScenario, IntentConceptual, IntentRecall:
		return QuestionIntent(draft.Intent)
	}
	if scenarioPattern.MatchString(draft.Prompt) {
		return IntentScenario
	}
	if conceptualPattern.MatchString(draft.Prompt) {
		return IntentConceptual
	}
	return IntentRecall
}
