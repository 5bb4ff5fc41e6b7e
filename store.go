package docquiz

import "context"

// Store is the opaque persistence layer the pipeline runs against.
// Every read that returns a Quiz or Document filters by the requesting
// user's id; implementations must not leak cross-user data.
type Store interface {
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id, userID string) (Document, error)
	ListDocuments(ctx context.Context, userID string) ([]Document, error)

	SaveDocChunks(ctx context.Context, documentID string, chunks []Chunk) error
	GetDocumentChunks(ctx context.Context, documentID string) ([]Chunk, error)
	// GetUserChunks returns every chunk whose owning document belongs to
	// userID, restricted to docIDs when non-empty.
	GetUserChunks(ctx context.Context, userID string, docIDs []string) ([]Chunk, error)

	CreateQuizRecord(ctx context.Context, quiz Quiz) error
	SaveQuizQuestions(ctx context.Context, quizID string, questions []Question) error
	GetQuizByID(ctx context.Context, id, userID string) (Quiz, error)
	GetQuestionsByQuizID(ctx context.Context, quizID string) ([]Question, error)
	ListQuizzes(ctx context.Context, userID string, limit int) ([]Quiz, error)

	// CreateQuizAttempt persists the attempt and its answers as one
	// atomic unit.
	CreateQuizAttempt(ctx context.Context, attempt QuizAttempt, answers []Answer) error
	GetUserPerformance(ctx context.Context, userID, documentID string) (UserQuizPerformance, error)
}
