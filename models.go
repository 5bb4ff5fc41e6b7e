package docquiz

import "time"

// Document is an uploaded source document. It is created once on upload
// and never mutated by the pipeline; chunks reference it by ID.
type Document struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	PageCount int       `json:"page_count"`
	Outline   []Topic   `json:"outline,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Page is one page of extracted plain text.
type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Chunk is a bounded, overlapping slice of one page's normalized text.
// Embedding and Tokens stay nil until the embedder has processed it.
type Chunk struct {
	DocumentID string    `json:"document_id"`
	Page       int       `json:"page"`
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Tokens     *int      `json:"tokens,omitempty"`
}

// SampleReason records why the sampler selected a snippet. The order
// matters for budget trimming: anchor > topic > periodic > fallback.
type SampleReason string

const (
	ReasonAnchor   SampleReason = "anchor"
	ReasonPeriodic SampleReason = "periodic"
	ReasonTopic    SampleReason = "topic"
	ReasonFallback SampleReason = "fallback"
)

// SampledSnippet is a transient view over a chunk selected for one
// generation request. Never persisted.
type SampledSnippet struct {
	DocumentID   string       `json:"document_id"`
	Page         int          `json:"page"`
	Content      string       `json:"content"`
	Reason       SampleReason `json:"reason"`
	ApproxTokens int          `json:"approx_tokens"`
	TopicID      string       `json:"topic_id,omitempty"`
}

// SummaryKind distinguishes topic-level from subtopic-level summaries.
type SummaryKind string

const (
	SummaryTopic    SummaryKind = "topic"
	SummarySubtopic SummaryKind = "subtopic"
)

// CompressedSummary is a short derived text for one topic or subtopic,
// consumed immediately by the synthesizer and never persisted.
type CompressedSummary struct {
	TopicID       string      `json:"topic_id"`
	Title         string      `json:"title"`
	Summary       string      `json:"summary"`
	Pages         []int       `json:"pages"`
	Kind          SummaryKind `json:"kind"`
	ParentTopicID string      `json:"parent_topic_id,omitempty"`
}

// Topic is one entry of a document's heuristic outline. Subtopics nest
// one level deep.
type Topic struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Pages     []int   `json:"pages"`
	Subtopics []Topic `json:"subtopics,omitempty"`
}

// Difficulty selects the question count policy.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Harder reports whether this difficulty uses the larger count policy.
func (d Difficulty) Harder() bool {
	return d != DifficultyEasy && d != ""
}

// Option is one multiple-choice option. Labels run A through D.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Text  string `json:"text"`
}

// SourceRef points a question back at the document page it was built
// from. Every question carries at least one.
type SourceRef struct {
	DocumentID string `json:"document_id"`
	Page       int    `json:"page"`
}

// QuestionIntent classifies what a question asks for.
type QuestionIntent string

const (
	IntentScenario   QuestionIntent = "scenario"
	IntentConceptual QuestionIntent = "conceptual"
	IntentRecall     QuestionIntent = "recall"
)

// Question is a persisted multiple-choice question. Invariant: Correct
// equals the ID of exactly one of the four options.
type Question struct {
	ID          string         `json:"id"`
	QuizID      string         `json:"quiz_id"`
	Prompt      string         `json:"prompt"`
	Options     []Option       `json:"options"`
	Correct     string         `json:"correct"`
	Explanation string         `json:"explanation"`
	Difficulty  Difficulty     `json:"difficulty"`
	Intent      QuestionIntent `json:"intent"`
	SourceRefs  []SourceRef    `json:"source_refs"`
}

// CorrectOption returns the option matching the Correct ID.
func (q Question) CorrectOption() (Option, bool) {
	for _, opt := range q.Options {
		if opt.ID == q.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Quiz is one generated quiz. Identity fields are immutable; questions
// are created together with the quiz and never partially updated.
type Quiz struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	DocumentID string     `json:"document_id"`
	Title      string     `json:"title"`
	Topic      string     `json:"topic,omitempty"`
	Difficulty Difficulty `json:"difficulty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// QuizAttempt is one learner submission, created exactly once and
// immutable afterwards. Attempts are append-only history.
type QuizAttempt struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quiz_id"`
	UserID      string    `json:"user_id"`
	StartedAt   time.Time `json:"started_at"`
	SubmittedAt time.Time `json:"submitted_at"`
	ScorePct    int       `json:"score_pct"`
}

// Answer is one graded response. A nil ChosenOptionID means the learner
// skipped the question; that grades as incorrect, never as an error.
type Answer struct {
	AttemptID      string  `json:"attempt_id"`
	QuestionID     string  `json:"question_id"`
	ChosenOptionID *string `json:"chosen_option_id,omitempty"`
	IsCorrect      bool    `json:"is_correct"`
	Feedback       string  `json:"feedback,omitempty"`
}

// SubmittedAnswer is the learner's raw choice for one question.
type SubmittedAnswer struct {
	QuestionID     string  `json:"question_id"`
	ChosenOptionID *string `json:"chosen_option_id"`
}

// QuizResult is the outcome of grading one submission.
type QuizResult struct {
	QuizID       string   `json:"quiz_id"`
	AttemptID    string   `json:"attempt_id"`
	Total        int      `json:"total"`
	CorrectCount int      `json:"correct_count"`
	Score        int      `json:"score"`
	Answers      []Answer `json:"answers"`
}

// UserQuizPerformance is the learner's score history, used to steer
// prompt difficulty.
type UserQuizPerformance struct {
	QuizCount    int   `json:"quiz_count"`
	RecentScores []int `json:"recent_scores"`
}

// IntentCounts breaks kept questions down by intent.
type IntentCounts struct {
	Scenario   int `json:"scenario"`
	Conceptual int `json:"conceptual"`
	Recall     int `json:"recall"`
}

// DropCounts records how many question drafts each screen rejected.
type DropCounts struct {
	Structural int `json:"structural"`
	Redundant  int `json:"redundant"`
	Literal    int `json:"literal"`
}

// DocumentQuizDiagnostics aggregates quality and coverage counters for
// one generation run. Advisory metadata, never a hard gate.
type DocumentQuizDiagnostics struct {
	ApproxTokenCount        int          `json:"approx_token_count"`
	SnippetCount            int          `json:"snippet_count"`
	CoverageRatio           float64      `json:"coverage_ratio"`
	ApplicationRatio        float64      `json:"application_ratio"`
	StructuralQuestionCount int          `json:"structural_question_count"`
	RedundantQuestionCount  int          `json:"redundant_question_count"`
	LiteralQuestionCount    int          `json:"literal_question_count"`
	IntentCounts            IntentCounts `json:"intent_counts"`
	DropCounts              DropCounts   `json:"drop_counts"`
}

// QuizContext is the scope-tagged input to the synthesizer. It is a
// closed sum: SubtopicContext, TopicContext and DocumentContext are the
// only variants, and consumers switch over them exhaustively.
type QuizContext interface {
	quizContext()
	// Scope returns the granularity name for logging and prompts.
	Scope() string
}

// SubtopicContext generates a quiz for a single subtopic.
type SubtopicContext struct {
	Subtopic    Topic
	ParentTopic Topic
	DocumentID  string
	Snippets    []SampledSnippet
	Performance UserQuizPerformance
	Difficulty  Difficulty
}

func (SubtopicContext) quizContext() {}

// Scope implements QuizContext.
func (SubtopicContext) Scope() string { return "subtopic" }

// TopicContext generates a quiz for one topic.
type TopicContext struct {
	Topic       Topic
	DocumentID  string
	Snippets    []SampledSnippet
	Summaries   []CompressedSummary
	Performance UserQuizPerformance
	Difficulty  Difficulty
}

func (TopicContext) quizContext() {}

// Scope implements QuizContext.
func (TopicContext) Scope() string { return "topic" }

// DocumentContext generates a quiz spanning a whole document.
type DocumentContext struct {
	DocumentID  string
	Title       string
	Outline     []Topic
	Snippets    []SampledSnippet
	Summaries   []CompressedSummary
	Config      DocumentQuizConfig
	Diagnostics DocumentQuizDiagnostics
	Performance UserQuizPerformance
	Difficulty  Difficulty
}

func (DocumentContext) quizContext() {}

// Scope implements QuizContext.
func (DocumentContext) Scope() string { return "document" }
