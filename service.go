package docquiz

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ChunkEmbedder is the embedding stage as the service consumes it.
type ChunkEmbedder interface {
	EmbedChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error)
}

// Service wires the pipeline stages behind the operations the
// surrounding application calls.
type Service struct {
	store     Store
	users     UserResolver
	embedder  ChunkEmbedder
	drafter   Drafter
	retriever *Retriever
	cache     *ChunkCache
	config    DocumentQuizConfig
	chunkOpts ChunkOptions
	logDir    string
	now       func() time.Time
}

// NewService creates the service. cache may be nil to disable chunk
// caching.
func NewService(store Store, users UserResolver, embedder ChunkEmbedder, drafter Drafter, cache *ChunkCache) *Service {
	return &Service{
		store:     store,
		users:     users,
		embedder:  embedder,
		drafter:   drafter,
		retriever: NewRetriever(store, cache),
		cache:     cache,
		config:    DefaultQuizConfig(),
		chunkOpts: DefaultChunkOptions(),
		now:       time.Now,
	}
}

// SetQuizConfig overrides the sampling/compression config.
func (s *Service) SetQuizConfig(cfg DocumentQuizConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.config = cfg
	return nil
}

// SetLogDir enables per-generation file logs under dir.
func (s *Service) SetLogDir(dir string) {
	s.logDir = dir
}

// SetClock overrides the clock, for tests.
func (s *Service) SetClock(clock func() time.Time) {
	s.now = clock
}

// IngestResult reports what one upload produced.
type IngestResult struct {
	Document   Document `json:"document"`
	ChunkCount int      `json:"chunk_count"`
}

// IngestDocument runs extract, chunk and embed over a PDF upload and
// persists the result. The embed batch is all-or-nothing: on failure
// nothing is committed and the caller retries the whole upload.
func (s *Service) IngestDocument(ctx context.Context, title string, pdfData []byte) (IngestResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return IngestResult{}, ErrUnauthorized
	}

	pages, err := ExtractPages(pdfData)
	if err != nil {
		return IngestResult{}, err
	}

	chunks, err := ChunkPages(pages, s.chunkOpts)
	if err != nil {
		return IngestResult{}, err
	}
	if len(chunks) == 0 {
		return IngestResult{}, Validationf("document produced no content chunks")
	}

	embedded, err := s.embedder.EmbedChunks(ctx, chunks)
	if err != nil {
		return IngestResult{}, err
	}

	doc := Document{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		PageCount: len(pages),
		Outline:   BuildOutline(pages),
		CreatedAt: s.now().UTC(),
	}
	for i := range embedded {
		embedded[i].DocumentID = doc.ID
	}

	if err := s.store.CreateDocument(ctx, doc); err != nil {
		return IngestResult{}, err
	}
	if err := s.store.SaveDocChunks(ctx, doc.ID, embedded); err != nil {
		return IngestResult{}, err
	}

	if s.cache != nil {
		s.cache.Invalidate(chunkCacheKey(userID, nil))
	}

	VerboseLog("ingested %q: %d pages, %d chunks", title, len(pages), len(embedded))
	return IngestResult{Document: doc, ChunkCount: len(embedded)}, nil
}

// GenerateQuizRequest selects the documents and difficulty for one
// generation run.
type GenerateQuizRequest struct {
	DocumentIDs []string   `json:"document_ids"`
	Difficulty  Difficulty `json:"difficulty"`
}

// GenerateQuizResult identifies the created quiz.
type GenerateQuizResult struct {
	QuizID string `json:"quiz_id"`
	Count  int    `json:"count"`
	Title  string `json:"title"`
}

// GenerateQuiz runs retrieve, sample and synthesize at document scope
// and persists the quiz with its questions.
func (s *Service) GenerateQuiz(ctx context.Context, req GenerateQuizRequest) (GenerateQuizResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return GenerateQuizResult{}, ErrUnauthorized
	}
	if len(req.DocumentIDs) == 0 {
		return GenerateQuizResult{}, Validationf("empty document set")
	}

	doc, err := s.store.GetDocument(ctx, req.DocumentIDs[0], userID)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	chunks, err := s.retriever.RetrieveTopK(ctx, userID, req.DocumentIDs, 40)
	if err != nil {
		return GenerateQuizResult{}, err
	}
	if len(chunks) == 0 {
		return GenerateQuizResult{}, fmt.Errorf("no chunks for documents %v: %w", req.DocumentIDs, ErrNotFound)
	}

	sample, err := SampleChunks(chunks, doc.Outline, s.config)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	perf, err := s.store.GetUserPerformance(ctx, userID, doc.ID)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	qctx := DocumentContext{
		DocumentID:  doc.ID,
		Title:       doc.Title,
		Outline:     doc.Outline,
		Snippets:    sample.Snippets,
		Summaries:   sample.Summaries,
		Config:      s.config,
		Diagnostics: sample.Diagnostics,
		Performance: perf,
		Difficulty:  req.Difficulty,
	}

	quizID := uuid.NewString()
	result, err := s.synthesize(ctx, quizID, qctx)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	quiz := Quiz{
		ID:         quizID,
		UserID:     userID,
		DocumentID: doc.ID,
		Title:      fmt.Sprintf("Quiz: %s", doc.Title),
		Difficulty: req.Difficulty,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.persistQuiz(ctx, quiz, result.Questions); err != nil {
		return GenerateQuizResult{}, err
	}

	return GenerateQuizResult{QuizID: quiz.ID, Count: len(result.Questions), Title: quiz.Title}, nil
}

// GenerateTopicQuiz generates a quiz scoped to one topic or subtopic
// of a document. topicID may name either level; subtopic ids resolve
// to the subtopic scope.
func (s *Service) GenerateTopicQuiz(ctx context.Context, documentID, topicID string, difficulty Difficulty) (GenerateQuizResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return GenerateQuizResult{}, ErrUnauthorized
	}

	doc, err := s.store.GetDocument(ctx, documentID, userID)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	qctx, title, err := s.topicContext(ctx, userID, doc, topicID, difficulty)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	quizID := uuid.NewString()
	result, err := s.synthesize(ctx, quizID, qctx)
	if err != nil {
		return GenerateQuizResult{}, err
	}

	quiz := Quiz{
		ID:         quizID,
		UserID:     userID,
		DocumentID: doc.ID,
		Title:      fmt.Sprintf("Quiz: %s", title),
		Topic:      title,
		Difficulty: difficulty,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.persistQuiz(ctx, quiz, result.Questions); err != nil {
		return GenerateQuizResult{}, err
	}
	return GenerateQuizResult{QuizID: quiz.ID, Count: len(result.Questions), Title: quiz.Title}, nil
}

// GenerateTopicQuizzes generates one quiz per top-level topic of the
// document, fanning sibling topics out concurrently.
func (s *Service) GenerateTopicQuizzes(ctx context.Context, documentID string, difficulty Difficulty) ([]GenerateQuizResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}

	doc, err := s.store.GetDocument(ctx, documentID, userID)
	if err != nil {
		return nil, err
	}
	if len(doc.Outline) == 0 {
		return nil, fmt.Errorf("document %s has no outline: %w", documentID, ErrNotFound)
	}

	contexts := make([]QuizContext, 0, len(doc.Outline))
	titles := make([]string, 0, len(doc.Outline))
	for _, topic := range doc.Outline {
		qctx, title, err := s.topicContext(ctx, userID, doc, topic.ID, difficulty)
		if err != nil {
			return nil, err
		}
		contexts = append(contexts, qctx)
		titles = append(titles, title)
	}

	synth := NewSynthesizer(s.drafter)
	results, err := synth.SynthesizeAll(ctx, contexts)
	if err != nil {
		return nil, err
	}

	out := make([]GenerateQuizResult, 0, len(results))
	for i, result := range results {
		quiz := Quiz{
			ID:         uuid.NewString(),
			UserID:     userID,
			DocumentID: doc.ID,
			Title:      fmt.Sprintf("Quiz: %s", titles[i]),
			Topic:      titles[i],
			Difficulty: difficulty,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.persistQuiz(ctx, quiz, result.Questions); err != nil {
			return nil, err
		}
		out = append(out, GenerateQuizResult{QuizID: quiz.ID, Count: len(result.Questions), Title: quiz.Title})
	}
	return out, nil
}

// QuizView is the question set handed to the caller for display.
type QuizView struct {
	QuizID    string     `json:"quiz_id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// OpenQuizResult is the payload for opening a quiz.
type OpenQuizResult struct {
	DocumentID string   `json:"document_id"`
	Title      string   `json:"title"`
	Quiz       QuizView `json:"quiz"`
}

// OpenQuiz loads a quiz with its questions. A quiz with zero questions
// reports not-found.
func (s *Service) OpenQuiz(ctx context.Context, quizID string) (OpenQuizResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return OpenQuizResult{}, ErrUnauthorized
	}

	quiz, err := s.store.GetQuizByID(ctx, quizID, userID)
	if err != nil {
		return OpenQuizResult{}, err
	}

	questions, err := s.store.GetQuestionsByQuizID(ctx, quiz.ID)
	if err != nil {
		return OpenQuizResult{}, err
	}
	if len(questions) == 0 {
		return OpenQuizResult{}, fmt.Errorf("quiz %s has no questions: %w", quizID, ErrNotFound)
	}

	return OpenQuizResult{
		DocumentID: quiz.DocumentID,
		Title:      quiz.Title,
		Quiz:       QuizView{QuizID: quiz.ID, Title: quiz.Title, Questions: questions},
	}, nil
}

// SubmitQuizAttempt grades one submission and records it.
func (s *Service) SubmitQuizAttempt(ctx context.Context, quizID string, answers []SubmittedAnswer) (QuizResult, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return QuizResult{}, ErrUnauthorized
	}
	grader := NewGrader(s.store, s.now)
	return grader.Grade(ctx, userID, quizID, answers)
}

// ListQuizzes returns the caller's quizzes, newest first.
func (s *Service) ListQuizzes(ctx context.Context, limit int) ([]Quiz, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.store.ListQuizzes(ctx, userID, limit)
}

// ListDocuments returns the caller's documents, newest first.
func (s *Service) ListDocuments(ctx context.Context) ([]Document, error) {
	userID, ok := s.users.CurrentUser(ctx)
	if !ok {
		return nil, ErrUnauthorized
	}
	return s.store.ListDocuments(ctx, userID)
}

// topicContext builds the scoped context for topicID, which may name a
// topic or one of its subtopics.
func (s *Service) topicContext(ctx context.Context, userID string, doc Document, topicID string, difficulty Difficulty) (QuizContext, string, error) {
	topic, subtopic, ok := findTopic(doc.Outline, topicID)
	if !ok {
		return nil, "", fmt.Errorf("topic %s: %w", topicID, ErrNotFound)
	}

	chunks, err := s.retriever.RetrieveTopK(ctx, userID, []string{doc.ID}, 40)
	if err != nil {
		return nil, "", err
	}

	scope := topic
	if subtopic != nil {
		scope = *subtopic
	}
	scoped := make([]Chunk, 0, len(chunks))
	for _, chunk := range chunks {
		if containsPage(scope.Pages, chunk.Page) {
			scoped = append(scoped, chunk)
		}
	}
	if len(scoped) == 0 {
		return nil, "", fmt.Errorf("no chunks for topic %s: %w", topicID, ErrNotFound)
	}

	sample, err := SampleChunks(scoped, []Topic{topic}, s.config)
	if err != nil {
		return nil, "", err
	}

	perf, err := s.store.GetUserPerformance(ctx, userID, doc.ID)
	if err != nil {
		return nil, "", err
	}

	if subtopic != nil {
		return SubtopicContext{
			Subtopic:    *subtopic,
			ParentTopic: topic,
			DocumentID:  doc.ID,
			Snippets:    sample.Snippets,
			Performance: perf,
			Difficulty:  difficulty,
		}, subtopic.Title, nil
	}
	return TopicContext{
		Topic:       topic,
		DocumentID:  doc.ID,
		Snippets:    sample.Snippets,
		Summaries:   sample.Summaries,
		Performance: perf,
		Difficulty:  difficulty,
	}, topic.Title, nil
}

func (s *Service) synthesize(ctx context.Context, quizID string, qctx QuizContext) (SynthesisResult, error) {
	synth := NewSynthesizer(s.drafter)
	if s.logDir != "" {
		logger, err := NewGenerationLogger(s.logDir, quizID, qctx.Scope(), difficultyOf(qctx))
		if err != nil {
			// Generation proceeds without the file log rather than
			// failing the request.
			VerboseLog("failed to create generation logger: %v", err)
		} else {
			synth.SetLogger(logger)
			logSamplePasses(logger, snippetsOf(qctx))
			defer logger.Close()
		}
	}
	return synth.Synthesize(ctx, qctx)
}

// logSamplePasses replays the sampler's pass outcomes, in pass order,
// into the generation log.
func logSamplePasses(logger *GenerationLogger, snippets []SampledSnippet) {
	counts := make(map[SampleReason]int)
	for _, sn := range snippets {
		counts[sn.Reason]++
	}
	total := 0
	for _, reason := range []SampleReason{ReasonAnchor, ReasonTopic, ReasonPeriodic, ReasonFallback} {
		if counts[reason] == 0 {
			continue
		}
		total += counts[reason]
		logger.LogSamplePass(reason, counts[reason], total)
	}
}

func snippetsOf(qc QuizContext) []SampledSnippet {
	switch c := qc.(type) {
	case SubtopicContext:
		return c.Snippets
	case TopicContext:
		return c.Snippets
	case DocumentContext:
		return c.Snippets
	default:
		return nil
	}
}

func (s *Service) persistQuiz(ctx context.Context, quiz Quiz, questions []Question) error {
	for i := range questions {
		questions[i].QuizID = quiz.ID
	}
	if err := s.store.CreateQuizRecord(ctx, quiz); err != nil {
		return err
	}
	return s.store.SaveQuizQuestions(ctx, quiz.ID, questions)
}

func difficultyOf(qc QuizContext) Difficulty {
	switch c := qc.(type) {
	case SubtopicContext:
		return c.Difficulty
	case TopicContext:
		return c.Difficulty
	case DocumentContext:
		return c.Difficulty
	default:
		return ""
	}
}

// findTopic locates topicID in the outline, returning the owning topic
// and the subtopic when the id names one.
func findTopic(outline []Topic, topicID string) (Topic, *Topic, bool) {
	for _, topic := range outline {
		if topic.ID == topicID {
			return topic, nil, true
		}
		for i := range topic.Subtopics {
			if topic.Subtopics[i].ID == topicID {
				return topic, &topic.Subtopics[i], true
			}
		}
	}
	return Topic{}, nil, false
}
