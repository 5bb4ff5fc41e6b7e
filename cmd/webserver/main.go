package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"docquiz"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/gorilla/sessions"
	"github.com/joho/godotenv"
)

const maxUploadBytes = 32 << 20

type Server struct {
	svc *docquiz.Service
}

func main() {
	_ = godotenv.Load()
	docquiz.SetVerbose(true)

	cfg := docquiz.FromEnv()
	if cfg.OpenAIKey == "" {
		log.Fatal("OPENAI_API_KEY environment variable is required")
	}
	if cfg.SessionSecret == "" {
		log.Fatal("SESSION_SECRET environment variable is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("JWT_SECRET environment variable is required")
	}

	db, err := docquiz.OpenDB(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.CloseDB()

	if err := db.CreateTables(); err != nil {
		log.Fatalf("Failed to create tables: %v", err)
	}

	embedder, err := docquiz.NewEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	if err != nil {
		log.Fatalf("Failed to create embedder: %v", err)
	}
	drafter, err := docquiz.NewOpenAIDrafter(cfg.OpenAIKey, cfg.OpenAIBaseURL, "")
	if err != nil {
		log.Fatalf("Failed to create drafter: %v", err)
	}
	cache := docquiz.NewChunkCache(64, 5*time.Minute, nil)

	svc := docquiz.NewService(db, docquiz.ContextResolver{}, embedder, drafter, cache)
	svc.SetLogDir("logs")

	auth := NewAuthService(cfg.JWTSecret)
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))

	server := &Server{svc: svc}

	r := chi.NewRouter()
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Post("/api/login", LoginHandler(auth))

	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware(auth, sessionStore))

		r.Post("/api/documents", server.handleIngest)
		r.Get("/api/documents", server.handleListDocuments)
		r.Post("/api/documents/{documentID}/topic-quizzes", server.handleTopicQuizzes)

		r.Post("/api/quizzes", server.handleGenerate)
		r.Get("/api/quizzes", server.handleListQuizzes)
		r.Get("/api/quizzes/{quizID}", server.handleOpenQuiz)
		r.Post("/api/quizzes/{quizID}/attempts", server.handleSubmit)
	})

	log.Printf("Starting server on %s", cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, r))
}

func corsOrigins(raw string) []string {
	if raw == "" {
		return []string{"*"}
	}
	parts := strings.Split(raw, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// POST /api/documents — multipart upload with "file" and optional
// "title" fields.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		http.Error(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file field", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}
	if len(data) > maxUploadBytes {
		http.Error(w, "upload too large", http.StatusRequestEntityTooLarge)
		return
	}

	title := r.FormValue("title")
	if title == "" {
		title = header.Filename
	}

	result, err := s.svc.IngestDocument(r.Context(), title, data)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

type generateRequest struct {
	DocumentIDs []string           `json:"document_ids"`
	TopicID     string             `json:"topic_id,omitempty"`
	Difficulty  docquiz.Difficulty `json:"difficulty"`
}

// POST /api/quizzes — generate at document scope, or topic/subtopic
// scope when topic_id is set.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.Difficulty == "" {
		req.Difficulty = docquiz.DifficultyMedium
	}

	var (
		result docquiz.GenerateQuizResult
		err    error
	)
	if req.TopicID != "" {
		if len(req.DocumentIDs) != 1 {
			http.Error(w, "topic quizzes need exactly one document_id", http.StatusBadRequest)
			return
		}
		result, err = s.svc.GenerateTopicQuiz(r.Context(), req.DocumentIDs[0], req.TopicID, req.Difficulty)
	} else {
		result, err = s.svc.GenerateQuiz(r.Context(), docquiz.GenerateQuizRequest{
			DocumentIDs: req.DocumentIDs,
			Difficulty:  req.Difficulty,
		})
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// POST /api/documents/{documentID}/topic-quizzes — one quiz per
// top-level topic.
func (s *Server) handleTopicQuizzes(w http.ResponseWriter, r *http.Request) {
	difficulty := docquiz.Difficulty(r.URL.Query().Get("difficulty"))
	if difficulty == "" {
		difficulty = docquiz.DifficultyMedium
	}
	results, err := s.svc.GenerateTopicQuizzes(r.Context(), chi.URLParam(r, "documentID"), difficulty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, results)
}

func (s *Server) handleListQuizzes(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	quizzes, err := s.svc.ListQuizzes(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quizzes)
}

func (s *Server) handleOpenQuiz(w http.ResponseWriter, r *http.Request) {
	result, err := s.svc.OpenQuiz(r.Context(), chi.URLParam(r, "quizID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type submitRequest struct {
	Answers []docquiz.SubmittedAnswer `json:"answers"`
	// Older clients post a flat question_id -> option_id map.
	Responses map[string]string `json:"responses,omitempty"`
}

func (req submitRequest) normalized() []docquiz.SubmittedAnswer {
	if len(req.Answers) > 0 {
		return req.Answers
	}
	answers := make([]docquiz.SubmittedAnswer, 0, len(req.Responses))
	for questionID, optionID := range req.Responses {
		opt := optionID
		answers = append(answers, docquiz.SubmittedAnswer{QuestionID: questionID, ChosenOptionID: &opt})
	}
	return answers
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	result, err := s.svc.SubmitQuizAttempt(r.Context(), chi.URLParam(r, "quizID"), req.normalized())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, docquiz.ErrUnauthorized):
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	case errors.Is(err, docquiz.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case docquiz.IsValidation(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case docquiz.IsUpstream(err):
		log.Printf("Upstream error: %v", err)
		http.Error(w, "generation backend unavailable", http.StatusBadGateway)
	default:
		log.Printf("Internal error: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}
