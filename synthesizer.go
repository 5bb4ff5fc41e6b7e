package docquiz

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxDraftRounds bounds how many times the synthesizer goes back to the
// backend when screening rejects too many drafts.
const maxDraftRounds = 3

var optionLabels = [4]string{"A", "B", "C", "D"}

// Synthesizer turns a scoped QuizContext into screened, well-formed
// multiple-choice questions plus diagnostics for the run.
type Synthesizer struct {
	drafter Drafter
	logger  *GenerationLogger
}

// NewSynthesizer creates a synthesizer over the given drafting backend.
func NewSynthesizer(drafter Drafter) *Synthesizer {
	return &Synthesizer{drafter: drafter}
}

// SetLogger attaches a per-generation file logger. Optional.
func (s *Synthesizer) SetLogger(logger *GenerationLogger) {
	s.logger = logger
}

// SynthesisResult is one scope's output.
type SynthesisResult struct {
	Questions   []Question
	Diagnostics DocumentQuizDiagnostics
}

// Synthesize generates questions for one scope. The question count
// policy: easy difficulty targets clamp(units/3, 5, 10); anything
// harder targets clamp(units/2, 8, 12). Drafting repeats up to
// maxDraftRounds until the target is met; a run that screens out every
// draft fails rather than returning an empty quiz.
func (s *Synthesizer) Synthesize(ctx context.Context, qc QuizContext) (SynthesisResult, error) {
	plan, err := planFromContext(qc)
	if err != nil {
		return SynthesisResult{}, err
	}
	if len(plan.units) == 0 {
		return SynthesisResult{}, Validationf("no content units for %s scope", qc.Scope())
	}

	target := questionCount(plan.difficulty, len(plan.units))
	VerboseLog("synthesizing %d questions for %s scope (%d units)", target, qc.Scope(), len(plan.units))

	diag := plan.diagnostics
	screen := newScreener()
	pool := newDraftPool()
	var kept []Question
	coveredUnits := make(map[int]bool)

	for round := 0; round < maxDraftRounds && len(kept) < target; round++ {
		req := DraftRequest{
			Scope:       qc.Scope(),
			Title:       plan.title,
			Units:       plan.units,
			Difficulty:  plan.difficulty,
			Count:       target - len(kept),
			Performance: plan.performance,
		}
		if s.logger != nil {
			s.logger.LogLLMRequest("drafter", buildDraftPrompt(req))
		}
		drafts, err := s.drafter.DraftQuestions(ctx, req)
		if err != nil {
			if len(kept) > 0 {
				// A later round failing does not void what earlier
				// rounds produced.
				VerboseLog("draft round %d failed, keeping %d questions: %v", round+1, len(kept), err)
				break
			}
			return SynthesisResult{}, err
		}
		if s.logger != nil {
			s.logger.LogLLMResponse("drafter", formatDrafts(drafts))
		}
		for _, draft := range drafts {
			pool.Add(draft)
		}
		VerboseLog("draft round %d: %d drafts queued", round+1, pool.Size())

		for !pool.IsEmpty() && len(kept) < target {
			draft, _ := pool.Next()

			unit, err := unitForDraft(plan.units, draft)
			if err != nil {
				// Malformed draft: fail this unit, never persist it.
				VerboseLog("dropping malformed draft: %v", err)
				if s.logger != nil {
					s.logger.LogScreenResult(draft.Prompt, "malformed", err.Error())
				}
				continue
			}

			if reason := screen.check(draft, unit.Text); reason != "" {
				countDrop(&diag, reason)
				if s.logger != nil {
					s.logger.LogScreenResult(draft.Prompt, string(reason), "")
				}
				continue
			}

			question := buildQuestion(draft, unit, plan.difficulty)
			screen.keep(draft)
			kept = append(kept, question)
			coveredUnits[draft.UnitIndex] = true
			countIntent(&diag, question.Intent)
		}
	}

	if len(kept) == 0 {
		return SynthesisResult{}, &UpstreamError{
			Backend: "generation",
			Msg:     fmt.Sprintf("no acceptable questions for %s scope after %d rounds", qc.Scope(), maxDraftRounds),
		}
	}

	diag.CoverageRatio = coverageRatio(plan.units, coveredUnits)
	diag.ApplicationRatio = applicationRatio(diag.IntentCounts, len(kept))

	if s.logger != nil {
		s.logger.LogDiagnostics(diag)
	}
	return SynthesisResult{Questions: kept, Diagnostics: diag}, nil
}

// SynthesizeAll runs independent sibling scopes concurrently. Results
// keep the input order; the first failure cancels the rest.
func (s *Synthesizer) SynthesizeAll(ctx context.Context, contexts []QuizContext) ([]SynthesisResult, error) {
	results := make([]SynthesisResult, len(contexts))
	g, gctx := errgroup.WithContext(ctx)
	for i, qc := range contexts {
		g.Go(func() error {
			result, err := s.Synthesize(gctx, qc)
			if err != nil {
				return fmt.Errorf("%s scope: %w", qc.Scope(), err)
			}
			results[i] = result
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// formatDrafts renders the backend's structured reply for the log
// file, where the raw wire response is not available.
func formatDrafts(drafts []QuestionDraft) string {
	data, err := json.MarshalIndent(drafts, "", "  ")
	if err != nil {
		return fmt.Sprintf("%d drafts (unencodable: %v)", len(drafts), err)
	}
	return string(data)
}

// synthesisPlan is the scope-independent view the generation loop works
// from.
type synthesisPlan struct {
	title       string
	units       []GenerationUnit
	difficulty  Difficulty
	performance UserQuizPerformance
	diagnostics DocumentQuizDiagnostics
}

// planFromContext switches exhaustively over the QuizContext sum.
// Adding a new scope variant fails compilation at the callers that
// construct it, and this switch rejects unknown variants loudly.
func planFromContext(qc QuizContext) (synthesisPlan, error) {
	switch c := qc.(type) {
	case SubtopicContext:
		return synthesisPlan{
			title:       c.Subtopic.Title,
			units:       unitsFromSnippets(c.Snippets, c.Subtopic.Title),
			difficulty:  c.Difficulty,
			performance: c.Performance,
		}, nil
	case TopicContext:
		units := unitsFromSnippets(c.Snippets, c.Topic.Title)
		units = append(units, unitsFromSummaries(c.Summaries, c.DocumentID)...)
		return synthesisPlan{
			title:       c.Topic.Title,
			units:       units,
			difficulty:  c.Difficulty,
			performance: c.Performance,
		}, nil
	case DocumentContext:
		units := unitsFromSnippets(c.Snippets, c.Title)
		units = append(units, unitsFromSummaries(c.Summaries, c.DocumentID)...)
		return synthesisPlan{
			title:       c.Title,
			units:       units,
			difficulty:  c.Difficulty,
			performance: c.Performance,
			diagnostics: c.Diagnostics,
		}, nil
	default:
		return synthesisPlan{}, fmt.Errorf("unknown quiz context variant %T", qc)
	}
}

func unitsFromSnippets(snippets []SampledSnippet, fallbackTitle string) []GenerationUnit {
	units := make([]GenerationUnit, 0, len(snippets))
	for _, sn := range snippets {
		title := sn.TopicID
		if title == "" {
			title = fallbackTitle
		}
		units = append(units, GenerationUnit{
			Text:       sn.Content,
			TopicID:    sn.TopicID,
			TopicTitle: title,
			Refs:       []SourceRef{{DocumentID: sn.DocumentID, Page: sn.Page}},
		})
	}
	return units
}

// unitsFromSummaries attributes every summary page to documentID, the
// run's primary document. Summaries aggregate pages without per-page
// document attribution, and the outline the pages map through belongs
// to the primary document, so refs from a multi-document run name it
// even for pages contributed by other documents.
func unitsFromSummaries(summaries []CompressedSummary, documentID string) []GenerationUnit {
	units := make([]GenerationUnit, 0, len(summaries))
	for _, sum := range summaries {
		refs := make([]SourceRef, 0, len(sum.Pages))
		for _, page := range sum.Pages {
			refs = append(refs, SourceRef{DocumentID: documentID, Page: page})
		}
		units = append(units, GenerationUnit{
			Text:       sum.Summary,
			TopicID:    sum.TopicID,
			TopicTitle: sum.Title,
			Refs:       refs,
		})
	}
	return units
}

// questionCount applies the per-difficulty count policy.
func questionCount(difficulty Difficulty, availableUnits int) int {
	if difficulty.Harder() {
		return clamp(availableUnits/2, 8, 12)
	}
	return clamp(availableUnits/3, 5, 10)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// unitForDraft validates a draft's shape against the invariants every
// persisted question must satisfy, and resolves its source unit.
func unitForDraft(units []GenerationUnit, draft QuestionDraft) (GenerationUnit, error) {
	if draft.UnitIndex < 0 || draft.UnitIndex >= len(units) {
		return GenerationUnit{}, fmt.Errorf("draft references unit %d of %d", draft.UnitIndex, len(units))
	}
	if len(draft.Options) != 4 {
		return GenerationUnit{}, fmt.Errorf("draft has %d options, want 4", len(draft.Options))
	}
	if draft.CorrectIndex < 0 || draft.CorrectIndex > 3 {
		return GenerationUnit{}, fmt.Errorf("draft correct index %d out of range", draft.CorrectIndex)
	}
	if draft.Prompt == "" {
		return GenerationUnit{}, fmt.Errorf("draft has empty prompt")
	}
	unit := units[draft.UnitIndex]
	if len(unit.Refs) == 0 {
		return GenerationUnit{}, fmt.Errorf("unit %d has no source refs", draft.UnitIndex)
	}
	return unit, nil
}

func buildQuestion(draft QuestionDraft, unit GenerationUnit, difficulty Difficulty) Question {
	options := make([]Option, 4)
	for i, text := range draft.Options {
		options[i] = Option{
			ID:    uuid.NewString(),
			Label: optionLabels[i],
			Text:  text,
		}
	}
	return Question{
		ID:          uuid.NewString(),
		Prompt:      draft.Prompt,
		Options:     options,
		Correct:     options[draft.CorrectIndex].ID,
		Explanation: draft.Explanation,
		Difficulty:  difficulty,
		Intent:      classifyIntent(draft),
		SourceRefs:  append([]SourceRef(nil), unit.Refs...),
	}
}

func countDrop(diag *DocumentQuizDiagnostics, reason DropReason) {
	switch reason {
	case DropStructural:
		diag.DropCounts.Structural++
		diag.StructuralQuestionCount++
	case DropRedundant:
		diag.DropCounts.Redundant++
		diag.RedundantQuestionCount++
	case DropLiteral:
		diag.DropCounts.Literal++
		diag.LiteralQuestionCount++
	}
}

func countIntent(diag *DocumentQuizDiagnostics, intent QuestionIntent) {
	switch intent {
	case IntentScenario:
		diag.IntentCounts.Scenario++
	case IntentConceptual:
		diag.IntentCounts.Conceptual++
	default:
		diag.IntentCounts.Recall++
	}
}

// coverageRatio is the fraction of distinct topics (pages when a unit
// has no topic) represented across kept questions.
func coverageRatio(units []GenerationUnit, covered map[int]bool) float64 {
	available := make(map[string]bool)
	hit := make(map[string]bool)
	for i, unit := range units {
		key := unit.TopicID
		if key == "" {
			key = fmt.Sprintf("page:%d", unit.Refs[0].Page)
		}
		available[key] = true
		if covered[i] {
			hit[key] = true
		}
	}
	if len(available) == 0 {
		return 0
	}
	return float64(len(hit)) / float64(len(available))
}

// applicationRatio is the fraction of kept questions that are
// scenario or conceptual rather than recall.
func applicationRatio(counts IntentCounts, kept int) float64 {
	if kept == 0 {
		return 0
	}
	return float64(counts.Scenario+counts.Conceptual) / float64(kept)
}
