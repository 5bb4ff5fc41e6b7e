package docquiz

import (
	"regexp"
	"sort"
	"strings"
)

// SampleResult is what the sampler hands the synthesizer: budgeted
// snippets, per-topic summaries, and the partial diagnostics the
// synthesizer will finish filling in.
type SampleResult struct {
	Snippets    []SampledSnippet
	Summaries   []CompressedSummary
	Diagnostics DocumentQuizDiagnostics
}

// SampleChunks selects representative snippets from a possibly huge
// chunk set under cfg.TokenBudget, then folds each topic's snippets
// into a compressed summary. Selection passes run in order: anchor,
// topic coverage, periodic, fallback. Pure and deterministic.
func SampleChunks(chunks []Chunk, outline []Topic, cfg DocumentQuizConfig) (SampleResult, error) {
	if err := cfg.Validate(); err != nil {
		return SampleResult{}, err
	}

	ordered := append([]Chunk(nil), chunks...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Page != ordered[j].Page {
			return ordered[i].Page < ordered[j].Page
		}
		return ordered[i].DocumentID < ordered[j].DocumentID
	})

	s := &sampleRun{cfg: cfg, outline: outline, taken: make(map[int]bool)}

	if cfg.AnchorPages {
		s.anchorPass(ordered)
	}
	if cfg.TopicCoverage {
		s.topicPass(ordered)
	}
	s.periodicPass(ordered)
	s.fallbackPass(ordered)

	snippets := trimToBudget(s.selected, cfg.TokenBudget)

	total := 0
	for _, sn := range snippets {
		total += sn.ApproxTokens
	}

	return SampleResult{
		Snippets:  snippets,
		Summaries: compressSnippets(snippets, outline, cfg),
		Diagnostics: DocumentQuizDiagnostics{
			ApproxTokenCount: total,
			SnippetCount:     len(snippets),
		},
	}, nil
}

type sampleRun struct {
	cfg      DocumentQuizConfig
	outline  []Topic
	selected []SampledSnippet
	taken    map[int]bool // indices into the ordered chunk slice
}

// anchorPass always includes chunks from structurally important pages:
// the first and last page of every topic.
func (s *sampleRun) anchorPass(chunks []Chunk) {
	anchors := make(map[int]bool)
	for _, topic := range s.outline {
		if len(topic.Pages) == 0 {
			continue
		}
		anchors[topic.Pages[0]] = true
		anchors[topic.Pages[len(topic.Pages)-1]] = true
	}

	for i, chunk := range chunks {
		if s.full() {
			break
		}
		if anchors[chunk.Page] && !s.taken[i] {
			s.admit(i, chunk, ReasonAnchor)
		}
	}
}

// topicPass guarantees at least one snippet per topic and subtopic so
// coverage does not collapse for long documents.
func (s *sampleRun) topicPass(chunks []Chunk) {
	covered := make(map[string]bool)
	for _, sn := range s.selected {
		if sn.TopicID != "" {
			covered[sn.TopicID] = true
		}
	}

	want := make([]Topic, 0, len(s.outline)*2)
	for _, topic := range s.outline {
		want = append(want, topic)
		want = append(want, topic.Subtopics...)
	}

	for _, topic := range want {
		if covered[topic.ID] || s.full() {
			continue
		}
		for i, chunk := range chunks {
			if s.taken[i] || !containsPage(topic.Pages, chunk.Page) {
				continue
			}
			if s.admit(i, chunk, ReasonTopic) {
				covered[topic.ID] = true
				break
			}
		}
	}
}

// periodicPass takes every PeriodicInterval-th remaining chunk for
// uniform spatial coverage.
func (s *sampleRun) periodicPass(chunks []Chunk) {
	remaining := 0
	for i, chunk := range chunks {
		if s.taken[i] {
			continue
		}
		remaining++
		if remaining%s.cfg.PeriodicInterval != 0 {
			continue
		}
		if s.full() {
			return
		}
		s.admit(i, chunk, ReasonPeriodic)
	}
}

// fallbackPass tops the selection up to MinimumSnippets in page order
// when the earlier passes came up short.
func (s *sampleRun) fallbackPass(chunks []Chunk) {
	for i, chunk := range chunks {
		if len(s.selected) >= s.cfg.MinimumSnippets || s.full() {
			return
		}
		if s.taken[i] {
			continue
		}
		s.admitUnchecked(i, chunk, ReasonFallback)
	}
}

func (s *sampleRun) full() bool {
	return len(s.selected) >= s.cfg.MaxSamples
}

// admit adds a chunk unless its normalized text is a near-duplicate of
// an already-selected snippet.
func (s *sampleRun) admit(idx int, chunk Chunk, reason SampleReason) bool {
	normalized := normalizeWhitespace(strings.ToLower(chunk.Content))
	for _, existing := range s.selected {
		if textSimilarity(normalized, normalizeWhitespace(strings.ToLower(existing.Content))) > s.cfg.DiversityThreshold {
			VerboseLog("sampler: rejected near-duplicate chunk page=%d reason=%s", chunk.Page, reason)
			return false
		}
	}
	s.admitUnchecked(idx, chunk, reason)
	return true
}

func (s *sampleRun) admitUnchecked(idx int, chunk Chunk, reason SampleReason) {
	topicID := ""
	if topic, sub, ok := TopicForPage(s.outline, chunk.Page); ok {
		topicID = topic.ID
		if sub != nil {
			topicID = sub.ID
		}
	}
	s.taken[idx] = true
	s.selected = append(s.selected, SampledSnippet{
		DocumentID:   chunk.DocumentID,
		Page:         chunk.Page,
		Content:      chunk.Content,
		Reason:       reason,
		ApproxTokens: approxTokens(chunk),
		TopicID:      topicID,
	})
}

// approxTokens estimates a chunk's token cost: the embedder's reported
// count when available, else content length / 4.
func approxTokens(chunk Chunk) int {
	if chunk.Tokens != nil && *chunk.Tokens > 0 {
		return *chunk.Tokens
	}
	return len(chunk.Content) / 4
}

// trimToBudget drops snippets until the approx-token sum fits budget.
// Drop order: fallback first, then periodic, then topic. Anchors are
// never dropped, so when the anchors alone exceed the budget the
// result stays over it; losing structural coverage is worse than a
// longer prompt. Within a reason, later selections go first.
func trimToBudget(snippets []SampledSnippet, budget int) []SampledSnippet {
	total := 0
	for _, sn := range snippets {
		total += sn.ApproxTokens
	}
	if total <= budget {
		return snippets
	}

	dropOrder := []SampleReason{ReasonFallback, ReasonPeriodic, ReasonTopic}
	kept := append([]SampledSnippet(nil), snippets...)
	for _, reason := range dropOrder {
		for i := len(kept) - 1; i >= 0 && total > budget; i-- {
			if kept[i].Reason != reason {
				continue
			}
			total -= kept[i].ApproxTokens
			kept = append(kept[:i], kept[i+1:]...)
		}
		if total <= budget {
			break
		}
	}
	return kept
}

var sentenceSplitPattern = regexp.MustCompile(`[.!?]+\s+`)

// compressSnippets folds each topic's snippets into one short summary,
// capped at MaxSentences/MaxCharacters, discarding sentences outside
// the [MinSentenceLength, MaxSentenceLength] band as likely noise.
func compressSnippets(snippets []SampledSnippet, outline []Topic, cfg DocumentQuizConfig) []CompressedSummary {
	var summaries []CompressedSummary

	byTopic := make(map[string][]SampledSnippet)
	for _, sn := range snippets {
		if sn.TopicID == "" {
			continue
		}
		byTopic[sn.TopicID] = append(byTopic[sn.TopicID], sn)
	}

	emit := func(topic Topic, kind SummaryKind, parentID string) {
		group := byTopic[topic.ID]
		if kind == SummaryTopic {
			// Topic summaries also cover snippets attributed to their
			// subtopics.
			for _, sub := range topic.Subtopics {
				group = append(group, byTopic[sub.ID]...)
			}
		}
		if len(group) == 0 {
			return
		}

		summary := summarizeText(group, cfg)
		if summary == "" {
			return
		}

		pages := make([]int, 0, len(group))
		seen := make(map[int]bool)
		for _, sn := range group {
			if !seen[sn.Page] {
				seen[sn.Page] = true
				pages = append(pages, sn.Page)
			}
		}
		sort.Ints(pages)

		summaries = append(summaries, CompressedSummary{
			TopicID:       topic.ID,
			Title:         topic.Title,
			Summary:       summary,
			Pages:         pages,
			Kind:          kind,
			ParentTopicID: parentID,
		})
	}

	for _, topic := range outline {
		emit(topic, SummaryTopic, "")
		for _, sub := range topic.Subtopics {
			emit(sub, SummarySubtopic, topic.ID)
		}
	}
	return summaries
}

func summarizeText(group []SampledSnippet, cfg DocumentQuizConfig) string {
	var sb strings.Builder
	sentences := 0
	for _, sn := range group {
		for _, sentence := range sentenceSplitPattern.Split(sn.Content, -1) {
			sentence = strings.TrimSpace(sentence)
			if len(sentence) < cfg.MinSentenceLength || len(sentence) > cfg.MaxSentenceLength {
				continue
			}
			if sentences >= cfg.MaxSentences {
				return strings.TrimSpace(sb.String())
			}
			next := sentence + ". "
			if sb.Len()+len(next) > cfg.MaxCharacters {
				return strings.TrimSpace(sb.String())
			}
			sb.WriteString(next)
			sentences++
		}
	}
	return strings.TrimSpace(sb.String())
}

// textSimilarity is the Jaccard similarity of the two texts' word
// sets, in [0,1]. Cheap and good enough to catch repeated boilerplate.
func textSimilarity(a, b string) float64 {
	wordsA := strings.Fields(a)
	wordsB := strings.Fields(b)
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]bool, len(wordsA))
	for _, w := range wordsA {
		setA[w] = true
	}
	setB := make(map[string]bool, len(wordsB))
	for _, w := range wordsB {
		setB[w] = true
	}

	intersection := 0
	for w := range setA {
		if setB[w] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	return float64(intersection) / float64(union)
}
