package docquiz

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// fakeStore is an in-memory Store for tests.
type fakeStore struct {
	documents map[string]Document
	chunks    map[string][]Chunk // by documentID
	quizzes   map[string]Quiz
	questions map[string][]Question
	attempts  []QuizAttempt
	answers   map[string][]Answer // by attemptID
	perf      map[string]UserQuizPerformance

	userChunkCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		documents: make(map[string]Document),
		chunks:    make(map[string][]Chunk),
		quizzes:   make(map[string]Quiz),
		questions: make(map[string][]Question),
		answers:   make(map[string][]Answer),
		perf:      make(map[string]UserQuizPerformance),
	}
}

func (f *fakeStore) CreateDocument(_ context.Context, doc Document) error {
	f.documents[doc.ID] = doc
	return nil
}

func (f *fakeStore) GetDocument(_ context.Context, id, userID string) (Document, error) {
	doc, ok := f.documents[id]
	if !ok || doc.UserID != userID {
		return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(_ context.Context, userID string) ([]Document, error) {
	var out []Document
	for _, doc := range f.documents {
		if doc.UserID == userID {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) SaveDocChunks(_ context.Context, documentID string, chunks []Chunk) error {
	f.chunks[documentID] = append([]Chunk(nil), chunks...)
	return nil
}

func (f *fakeStore) GetDocumentChunks(_ context.Context, documentID string) ([]Chunk, error) {
	return append([]Chunk(nil), f.chunks[documentID]...), nil
}

func (f *fakeStore) GetUserChunks(_ context.Context, userID string, docIDs []string) ([]Chunk, error) {
	f.userChunkCalls++

	wanted := make(map[string]bool, len(docIDs))
	for _, id := range docIDs {
		wanted[id] = true
	}

	ids := make([]string, 0, len(f.documents))
	for id, doc := range f.documents {
		if doc.UserID != userID {
			continue
		}
		if len(docIDs) > 0 && !wanted[id] {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var out []Chunk
	for _, id := range ids {
		out = append(out, f.chunks[id]...)
	}
	return out, nil
}

func (f *fakeStore) CreateQuizRecord(_ context.Context, quiz Quiz) error {
	f.quizzes[quiz.ID] = quiz
	return nil
}

func (f *fakeStore) SaveQuizQuestions(_ context.Context, quizID string, questions []Question) error {
	f.questions[quizID] = append([]Question(nil), questions...)
	return nil
}

func (f *fakeStore) GetQuizByID(_ context.Context, id, userID string) (Quiz, error) {
	quiz, ok := f.quizzes[id]
	if !ok || quiz.UserID != userID {
		return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return quiz, nil
}

func (f *fakeStore) GetQuestionsByQuizID(_ context.Context, quizID string) ([]Question, error) {
	return append([]Question(nil), f.questions[quizID]...), nil
}

func (f *fakeStore) ListQuizzes(_ context.Context, userID string, limit int) ([]Quiz, error) {
	var out []Quiz
	for _, quiz := range f.quizzes {
		if quiz.UserID == userID {
			out = append(out, quiz)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) CreateQuizAttempt(_ context.Context, attempt QuizAttempt, answers []Answer) error {
	f.attempts = append(f.attempts, attempt)
	f.answers[attempt.ID] = append([]Answer(nil), answers...)
	return nil
}

func (f *fakeStore) GetUserPerformance(_ context.Context, userID, documentID string) (UserQuizPerformance, error) {
	return f.perf[userID], nil
}

// fakeDrafter returns canned or generated drafts and records calls.
type fakeDrafter struct {
	draft func(req DraftRequest) ([]QuestionDraft, error)
	calls int
}

func (f *fakeDrafter) DraftQuestions(_ context.Context, req DraftRequest) ([]QuestionDraft, error) {
	f.calls++
	return f.draft(req)
}

// goodDraft builds a well-formed draft for unit i with distinctive
// wording so the redundancy screen does not collapse siblings.
func goodDraft(i int) QuestionDraft {
	return QuestionDraft{
		UnitIndex: i,
		Prompt:    fmt.Sprintf("Why does alpha%d interact with beta%d under load?", i, i),
		Options: []string{
			fmt.Sprintf("It amplifies gamma%d", i),
			fmt.Sprintf("It dampens delta%d", i),
			fmt.Sprintf("It bypasses epsilon%d", i),
			fmt.Sprintf("It rewires zeta%d", i),
		},
		CorrectIndex: i % 4,
		Explanation:  fmt.Sprintf("Interaction %d follows from the excerpt.", i),
		Intent:       "conceptual",
	}
}

// countingDrafter answers every request with req.Count good drafts.
func countingDrafter() *fakeDrafter {
	d := &fakeDrafter{}
	d.draft = func(req DraftRequest) ([]QuestionDraft, error) {
		drafts := make([]QuestionDraft, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			drafts = append(drafts, goodDraft(i%len(req.Units)))
		}
		return drafts, nil
	}
	return d
}

// fakeEmbedder fills deterministic vectors without a backend.
type fakeEmbedder struct {
	dim   int
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedChunks(_ context.Context, chunks []Chunk) ([]Chunk, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	dim := f.dim
	if dim == 0 {
		dim = 4
	}
	out := make([]Chunk, len(chunks))
	for i, chunk := range chunks {
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = float32(len(chunk.Content)%7) + float32(j)
		}
		tokens := len(chunk.Content) / 4
		chunk.Embedding = vec
		chunk.Tokens = &tokens
		out[i] = chunk
	}
	return out, nil
}

// fixedClock returns a clock pinned to t, advanced through the pointer.
func fixedClock(t time.Time) (func() time.Time, *time.Time) {
	current := t
	return func() time.Time { return current }, &current
}
