package docquiz

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.CloseDB() })
	if err := db.CreateTables(); err != nil {
		t.Fatalf("failed to create tables: %v", err)
	}
	return db
}

func TestDocumentRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	doc := Document{
		ID:        "doc1",
		UserID:    "u1",
		Title:     "Course Notes",
		PageCount: 12,
		Outline: []Topic{
			{ID: "t1", Title: "Intro", Pages: []int{1, 2}, Subtopics: []Topic{
				{ID: "t1.s1", Title: "Scope", Pages: []int{2}},
			}},
		},
		CreatedAt: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	if err := db.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := db.GetDocument(ctx, "doc1", "u1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Title != doc.Title || got.PageCount != doc.PageCount {
		t.Errorf("got %+v, want %+v", got, doc)
	}
	if !reflect.DeepEqual(got.Outline, doc.Outline) {
		t.Errorf("outline = %+v, want %+v", got.Outline, doc.Outline)
	}

	if _, err := db.GetDocument(ctx, "doc1", "intruder"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign user should see not-found, got %v", err)
	}
	if _, err := db.GetDocument(ctx, "missing", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing document should be not-found, got %v", err)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, doc := range []Document{
		{ID: "doc1", UserID: "u1", Title: "A", PageCount: 2, CreatedAt: time.Now().UTC()},
		{ID: "doc2", UserID: "u2", Title: "B", PageCount: 1, CreatedAt: time.Now().UTC()},
	} {
		if err := db.CreateDocument(ctx, doc); err != nil {
			t.Fatalf("create document failed: %v", err)
		}
	}

	tokens := 42
	chunks := []Chunk{
		{DocumentID: "doc1", Page: 1, Content: "first chunk", Embedding: []float32{0.5, -1.25}, Tokens: &tokens},
		{DocumentID: "doc1", Page: 2, Content: "second chunk"},
	}
	if err := db.SaveDocChunks(ctx, "doc1", chunks); err != nil {
		t.Fatalf("save chunks failed: %v", err)
	}
	if err := db.SaveDocChunks(ctx, "doc2", []Chunk{{DocumentID: "doc2", Page: 1, Content: "other user"}}); err != nil {
		t.Fatalf("save chunks failed: %v", err)
	}

	got, err := db.GetDocumentChunks(ctx, "doc1")
	if err != nil {
		t.Fatalf("get chunks failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if !reflect.DeepEqual(got[0].Embedding, []float32{0.5, -1.25}) {
		t.Errorf("embedding = %v, want round-tripped vector", got[0].Embedding)
	}
	if got[0].Tokens == nil || *got[0].Tokens != 42 {
		t.Errorf("tokens = %v, want 42", got[0].Tokens)
	}
	if got[1].Embedding != nil || got[1].Tokens != nil {
		t.Errorf("unembedded chunk grew values: %+v", got[1])
	}

	// User scoping joins through documents.
	user, err := db.GetUserChunks(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("get user chunks failed: %v", err)
	}
	if len(user) != 2 {
		t.Errorf("user chunks = %d, want 2 (no cross-user leak)", len(user))
	}
	filtered, err := db.GetUserChunks(ctx, "u1", []string{"doc2"})
	if err != nil {
		t.Fatalf("get filtered chunks failed: %v", err)
	}
	if len(filtered) != 0 {
		t.Errorf("doc2 belongs to u2; filter returned %d chunks", len(filtered))
	}

	// Re-saving replaces, not appends.
	if err := db.SaveDocChunks(ctx, "doc1", chunks[:1]); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	got, err = db.GetDocumentChunks(ctx, "doc1")
	if err != nil {
		t.Fatalf("get chunks failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("chunks after re-save = %d, want 1", len(got))
	}
}

func TestQuizAndQuestionsRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	quiz := Quiz{
		ID:         "quiz1",
		UserID:     "u1",
		DocumentID: "doc1",
		Title:      "Quiz: Course Notes",
		Topic:      "Intro",
		Difficulty: DifficultyMedium,
		CreatedAt:  time.Now().UTC(),
	}
	if err := db.CreateQuizRecord(ctx, quiz); err != nil {
		t.Fatalf("create quiz failed: %v", err)
	}

	questions := []Question{
		{
			ID:     "q1",
			QuizID: "quiz1",
			Prompt: "Why is the sky blue?",
			Options: []Option{
				{ID: "o1", Label: "A", Text: "Rayleigh scattering"},
				{ID: "o2", Label: "B", Text: "Reflection"},
				{ID: "o3", Label: "C", Text: "Refraction"},
				{ID: "o4", Label: "D", Text: "Absorption"},
			},
			Correct:     "o1",
			Explanation: "Short wavelengths scatter more.",
			Difficulty:  DifficultyMedium,
			Intent:      IntentConceptual,
			SourceRefs:  []SourceRef{{DocumentID: "doc1", Page: 3}},
		},
	}
	if err := db.SaveQuizQuestions(ctx, "quiz1", questions); err != nil {
		t.Fatalf("save questions failed: %v", err)
	}

	gotQuiz, err := db.GetQuizByID(ctx, "quiz1", "u1")
	if err != nil {
		t.Fatalf("get quiz failed: %v", err)
	}
	if gotQuiz.Topic != "Intro" || gotQuiz.Difficulty != DifficultyMedium {
		t.Errorf("quiz = %+v", gotQuiz)
	}
	if _, err := db.GetQuizByID(ctx, "quiz1", "intruder"); !errors.Is(err, ErrNotFound) {
		t.Errorf("foreign quiz should be not-found, got %v", err)
	}

	gotQuestions, err := db.GetQuestionsByQuizID(ctx, "quiz1")
	if err != nil {
		t.Fatalf("get questions failed: %v", err)
	}
	if len(gotQuestions) != 1 {
		t.Fatalf("questions = %d, want 1", len(gotQuestions))
	}
	q := gotQuestions[0]
	if !reflect.DeepEqual(q.Options, questions[0].Options) {
		t.Errorf("options = %+v", q.Options)
	}
	if !reflect.DeepEqual(q.SourceRefs, questions[0].SourceRefs) {
		t.Errorf("source refs = %+v", q.SourceRefs)
	}
	if q.Intent != IntentConceptual || q.Explanation == "" {
		t.Errorf("question metadata lost: %+v", q)
	}

	quizzes, err := db.ListQuizzes(ctx, "u1", 0)
	if err != nil {
		t.Fatalf("list quizzes failed: %v", err)
	}
	if len(quizzes) != 1 {
		t.Errorf("quizzes = %d, want 1", len(quizzes))
	}
}

func TestAttemptsAndPerformance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.CreateQuizRecord(ctx, Quiz{
		ID: "quiz1", UserID: "u1", DocumentID: "doc1", Title: "T",
		Difficulty: DifficultyEasy, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create quiz failed: %v", err)
	}

	chosen := "o1"
	base := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	for i, score := range []int{40, 80} {
		attempt := QuizAttempt{
			ID:          "a" + string(rune('1'+i)),
			QuizID:      "quiz1",
			UserID:      "u1",
			StartedAt:   base.Add(time.Duration(i) * time.Hour),
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
			ScorePct:    score,
		}
		answers := []Answer{
			{AttemptID: attempt.ID, QuestionID: "q1", ChosenOptionID: &chosen, IsCorrect: score > 50},
			{AttemptID: attempt.ID, QuestionID: "q2", IsCorrect: false, Feedback: "see page 2"},
		}
		if err := db.CreateQuizAttempt(ctx, attempt, answers); err != nil {
			t.Fatalf("create attempt failed: %v", err)
		}
	}

	perf, err := db.GetUserPerformance(ctx, "u1", "doc1")
	if err != nil {
		t.Fatalf("get performance failed: %v", err)
	}
	if perf.QuizCount != 2 {
		t.Errorf("quiz count = %d, want 2", perf.QuizCount)
	}
	// Newest first.
	if !reflect.DeepEqual(perf.RecentScores, []int{80, 40}) {
		t.Errorf("recent scores = %v, want [80 40]", perf.RecentScores)
	}

	other, err := db.GetUserPerformance(ctx, "u1", "other-doc")
	if err != nil {
		t.Fatalf("get performance failed: %v", err)
	}
	if other.QuizCount != 0 {
		t.Errorf("other document performance = %+v, want empty", other)
	}
}
