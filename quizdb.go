package docquiz

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the SQLite-backed Store implementation.
type DB struct {
	db *sql.DB
}

// OpenDB opens a database connection and verifies it.
func OpenDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &DB{db: db}, nil
}

// CloseDB closes the database connection.
func (d *DB) CloseDB() error {
	return d.db.Close()
}

// CreateTables creates the schema if it does not exist. The question
// row shape (JSON options with A-D labels, correct option id) is the
// durable contract; changing it is a breaking schema change.
func (d *DB) CreateTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			title TEXT NOT NULL,
			page_count INTEGER NOT NULL,
			outline TEXT,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			document_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			page INTEGER NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT,
			tokens INTEGER,
			PRIMARY KEY (document_id, seq),
			FOREIGN KEY (document_id) REFERENCES documents(id)
		)`,
		`CREATE TABLE IF NOT EXISTS quizzes (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			document_id TEXT NOT NULL,
			title TEXT NOT NULL,
			topic TEXT,
			difficulty TEXT NOT NULL,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS questions (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			question_num INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			options TEXT NOT NULL,
			correct TEXT NOT NULL,
			explanation TEXT,
			difficulty TEXT NOT NULL,
			intent TEXT,
			source_refs TEXT NOT NULL,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)`,
		`CREATE TABLE IF NOT EXISTS attempts (
			id TEXT PRIMARY KEY,
			quiz_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			started_at DATETIME NOT NULL,
			submitted_at DATETIME NOT NULL,
			score_pct INTEGER NOT NULL,
			FOREIGN KEY (quiz_id) REFERENCES quizzes(id)
		)`,
		`CREATE TABLE IF NOT EXISTS answers (
			attempt_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			chosen_option_id TEXT,
			is_correct INTEGER NOT NULL,
			feedback TEXT,
			PRIMARY KEY (attempt_id, question_id),
			FOREIGN KEY (attempt_id) REFERENCES attempts(id)
		)`,
	}
	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute %s: %w", query, err)
		}
	}
	return nil
}

// CreateDocument inserts a document record, outline included.
func (d *DB) CreateDocument(ctx context.Context, doc Document) error {
	var outline sql.NullString
	if len(doc.Outline) > 0 {
		data, err := json.Marshal(doc.Outline)
		if err != nil {
			return fmt.Errorf("failed to marshal outline: %w", err)
		}
		outline = sql.NullString{String: string(data), Valid: true}
	}
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO documents (id, user_id, title, page_count, outline, created_at) VALUES (?, ?, ?, ?, ?, ?)",
		doc.ID, doc.UserID, doc.Title, doc.PageCount, outline, doc.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document: %w", err)
	}
	return nil
}

// GetDocument retrieves a document scoped to its owner.
func (d *DB) GetDocument(ctx context.Context, id, userID string) (Document, error) {
	var doc Document
	var outline sql.NullString
	err := d.db.QueryRowContext(ctx,
		"SELECT id, user_id, title, page_count, outline, created_at FROM documents WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.PageCount, &outline, &doc.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Document{}, fmt.Errorf("document %s: %w", id, ErrNotFound)
		}
		return Document{}, fmt.Errorf("failed to get document: %w", err)
	}
	if outline.Valid && outline.String != "" {
		if err := json.Unmarshal([]byte(outline.String), &doc.Outline); err != nil {
			return Document{}, fmt.Errorf("failed to unmarshal outline: %w", err)
		}
	}
	return doc, nil
}

// ListDocuments returns the user's documents, newest first.
func (d *DB) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, user_id, title, page_count, created_at FROM documents WHERE user_id = ? ORDER BY created_at DESC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.Title, &doc.PageCount, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating documents: %w", err)
	}
	return docs, nil
}

// SaveDocChunks replaces the chunk set of a document.
func (d *DB) SaveDocChunks(ctx context.Context, documentID string, chunks []Chunk) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM chunks WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to clear chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO chunks (document_id, seq, page, content, embedding, tokens) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, chunk := range chunks {
		embedding, err := embeddingToJSON(chunk.Embedding)
		if err != nil {
			return err
		}
		var tokens sql.NullInt64
		if chunk.Tokens != nil {
			tokens = sql.NullInt64{Int64: int64(*chunk.Tokens), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, documentID, i, chunk.Page, chunk.Content, embedding, tokens); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// GetDocumentChunks returns one document's chunks in ingestion order.
func (d *DB) GetDocumentChunks(ctx context.Context, documentID string) ([]Chunk, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT document_id, page, content, embedding, tokens FROM chunks WHERE document_id = ? ORDER BY seq",
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

// GetUserChunks returns every chunk owned by userID, restricted to
// docIDs when non-empty.
func (d *DB) GetUserChunks(ctx context.Context, userID string, docIDs []string) ([]Chunk, error) {
	query := `SELECT c.document_id, c.page, c.content, c.embedding, c.tokens
		FROM chunks c JOIN documents d ON c.document_id = d.id
		WHERE d.user_id = ?`
	args := []interface{}{userID}
	if len(docIDs) > 0 {
		query += " AND c.document_id IN (?" + strings.Repeat(",?", len(docIDs)-1) + ")"
		for _, id := range docIDs {
			args = append(args, id)
		}
	}
	query += " ORDER BY c.document_id, c.seq"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get user chunks: %w", err)
	}
	defer rows.Close()
	return scanChunks(rows)
}

func scanChunks(rows *sql.Rows) ([]Chunk, error) {
	var chunks []Chunk
	for rows.Next() {
		var chunk Chunk
		var embedding sql.NullString
		var tokens sql.NullInt64
		if err := rows.Scan(&chunk.DocumentID, &chunk.Page, &chunk.Content, &embedding, &tokens); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if embedding.Valid && embedding.String != "" {
			vector, err := jsonToEmbedding(embedding.String)
			if err != nil {
				return nil, err
			}
			chunk.Embedding = vector
		}
		if tokens.Valid {
			t := int(tokens.Int64)
			chunk.Tokens = &t
		}
		chunks = append(chunks, chunk)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chunks: %w", err)
	}
	return chunks, nil
}

// CreateQuizRecord inserts a quiz row.
func (d *DB) CreateQuizRecord(ctx context.Context, quiz Quiz) error {
	_, err := d.db.ExecContext(ctx,
		"INSERT INTO quizzes (id, user_id, document_id, title, topic, difficulty, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		quiz.ID, quiz.UserID, quiz.DocumentID, quiz.Title, quiz.Topic, string(quiz.Difficulty), quiz.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create quiz: %w", err)
	}
	return nil
}

// SaveQuizQuestions inserts a quiz's full question set in one
// transaction.
func (d *DB) SaveQuizQuestions(ctx context.Context, quizID string, questions []Question) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO questions (id, quiz_id, question_num, prompt, options, correct, explanation, difficulty, intent, source_refs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare question insert: %w", err)
	}
	defer stmt.Close()

	for i, q := range questions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			return fmt.Errorf("failed to marshal options: %w", err)
		}
		refs, err := json.Marshal(q.SourceRefs)
		if err != nil {
			return fmt.Errorf("failed to marshal source refs: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, q.ID, quizID, i+1, q.Prompt, string(options), q.Correct, q.Explanation, string(q.Difficulty), string(q.Intent), string(refs)); err != nil {
			return fmt.Errorf("failed to insert question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// GetQuizByID retrieves a quiz scoped to its owner.
func (d *DB) GetQuizByID(ctx context.Context, id, userID string) (Quiz, error) {
	var quiz Quiz
	var topic sql.NullString
	err := d.db.QueryRowContext(ctx,
		"SELECT id, user_id, document_id, title, topic, difficulty, created_at FROM quizzes WHERE id = ? AND user_id = ?",
		id, userID,
	).Scan(&quiz.ID, &quiz.UserID, &quiz.DocumentID, &quiz.Title, &topic, &quiz.Difficulty, &quiz.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
		}
		return Quiz{}, fmt.Errorf("failed to get quiz: %w", err)
	}
	quiz.Topic = topic.String
	return quiz, nil
}

// GetQuestionsByQuizID returns a quiz's questions in their stored
// order.
func (d *DB) GetQuestionsByQuizID(ctx context.Context, quizID string) ([]Question, error) {
	rows, err := d.db.QueryContext(ctx,
		"SELECT id, quiz_id, prompt, options, correct, explanation, difficulty, intent, source_refs FROM questions WHERE quiz_id = ? ORDER BY question_num",
		quizID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get questions: %w", err)
	}
	defer rows.Close()

	var questions []Question
	for rows.Next() {
		var q Question
		var options, refs string
		var explanation, intent sql.NullString
		if err := rows.Scan(&q.ID, &q.QuizID, &q.Prompt, &options, &q.Correct, &explanation, &q.Difficulty, &intent, &refs); err != nil {
			return nil, fmt.Errorf("failed to scan question: %w", err)
		}
		if err := json.Unmarshal([]byte(options), &q.Options); err != nil {
			return nil, fmt.Errorf("failed to unmarshal options: %w", err)
		}
		if err := json.Unmarshal([]byte(refs), &q.SourceRefs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal source refs: %w", err)
		}
		q.Explanation = explanation.String
		q.Intent = QuestionIntent(intent.String)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating questions: %w", err)
	}
	return questions, nil
}

// ListQuizzes returns the user's quizzes, newest first, optionally
// limited.
func (d *DB) ListQuizzes(ctx context.Context, userID string, limit int) ([]Quiz, error) {
	query := "SELECT id, user_id, document_id, title, topic, difficulty, created_at FROM quizzes WHERE user_id = ? ORDER BY created_at DESC"
	args := []interface{}{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list quizzes: %w", err)
	}
	defer rows.Close()

	var quizzes []Quiz
	for rows.Next() {
		var quiz Quiz
		var topic sql.NullString
		if err := rows.Scan(&quiz.ID, &quiz.UserID, &quiz.DocumentID, &quiz.Title, &topic, &quiz.Difficulty, &quiz.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan quiz: %w", err)
		}
		quiz.Topic = topic.String
		quizzes = append(quizzes, quiz)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating quizzes: %w", err)
	}
	return quizzes, nil
}

// CreateQuizAttempt persists the attempt and its answers atomically.
func (d *DB) CreateQuizAttempt(ctx context.Context, attempt QuizAttempt, answers []Answer) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO attempts (id, quiz_id, user_id, started_at, submitted_at, score_pct) VALUES (?, ?, ?, ?, ?, ?)",
		attempt.ID, attempt.QuizID, attempt.UserID, attempt.StartedAt, attempt.SubmittedAt, attempt.ScorePct,
	); err != nil {
		return fmt.Errorf("failed to insert attempt: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO answers (attempt_id, question_id, chosen_option_id, is_correct, feedback) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare answer insert: %w", err)
	}
	defer stmt.Close()

	for _, answer := range answers {
		var chosen sql.NullString
		if answer.ChosenOptionID != nil {
			chosen = sql.NullString{String: *answer.ChosenOptionID, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, answer.AttemptID, answer.QuestionID, chosen, answer.IsCorrect, answer.Feedback); err != nil {
			return fmt.Errorf("failed to insert answer for question %s: %w", answer.QuestionID, err)
		}
	}
	return tx.Commit()
}

// GetUserPerformance summarizes the user's attempt history for quizzes
// over one document (all documents when documentID is empty).
func (d *DB) GetUserPerformance(ctx context.Context, userID, documentID string) (UserQuizPerformance, error) {
	query := `SELECT a.score_pct FROM attempts a
		JOIN quizzes q ON a.quiz_id = q.id
		WHERE a.user_id = ?`
	args := []interface{}{userID}
	if documentID != "" {
		query += " AND q.document_id = ?"
		args = append(args, documentID)
	}
	query += " ORDER BY a.submitted_at DESC LIMIT 10"

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return UserQuizPerformance{}, fmt.Errorf("failed to get performance: %w", err)
	}
	defer rows.Close()

	var perf UserQuizPerformance
	for rows.Next() {
		var score int
		if err := rows.Scan(&score); err != nil {
			return UserQuizPerformance{}, fmt.Errorf("failed to scan score: %w", err)
		}
		perf.RecentScores = append(perf.RecentScores, score)
	}
	if err := rows.Err(); err != nil {
		return UserQuizPerformance{}, fmt.Errorf("error iterating scores: %w", err)
	}
	perf.QuizCount = len(perf.RecentScores)
	return perf, nil
}

func embeddingToJSON(embedding []float32) (sql.NullString, error) {
	if len(embedding) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func jsonToEmbedding(s string) ([]float32, error) {
	var embedding []float32
	if err := json.Unmarshal([]byte(s), &embedding); err != nil {
		return nil, fmt.Errorf("failed to unmarshal embedding: %w", err)
	}
	return embedding, nil
}
