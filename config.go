package docquiz

import (
	"os"

	"github.com/go-playground/validator/v10"
)

// DocumentQuizConfig is the versioned knob bundle controlling sampling
// and compression. Invariants: MinimumSnippets <= MaxSamples and
// TokenBudget > 0 (enforced by Validate).
type DocumentQuizConfig struct {
	Version int `json:"version"`

	// Sampling.
	PeriodicInterval   int     `json:"periodic_interval" validate:"gt=0"`
	MaxSamples         int     `json:"max_samples" validate:"gt=0"`
	DiversityThreshold float64 `json:"diversity_threshold" validate:"gte=0,lte=1"`
	TokenBudget        int     `json:"token_budget" validate:"gt=0"`
	TopicCoverage      bool    `json:"topic_coverage"`
	AnchorPages        bool    `json:"anchor_pages"`
	MinimumSnippets    int     `json:"minimum_snippets" validate:"gte=0,ltefield=MaxSamples"`

	// Compression.
	MaxSentences      int `json:"max_sentences" validate:"gt=0"`
	MaxCharacters     int `json:"max_characters" validate:"gt=0"`
	MinSentenceLength int `json:"min_sentence_length" validate:"gte=0"`
	MaxSentenceLength int `json:"max_sentence_length" validate:"gtfield=MinSentenceLength"`
}

// DefaultQuizConfig returns the config used when the caller supplies
// none.
func DefaultQuizConfig() DocumentQuizConfig {
	return DocumentQuizConfig{
		Version:            1,
		PeriodicInterval:   5,
		MaxSamples:         60,
		DiversityThreshold: 0.9,
		TokenBudget:        12000,
		TopicCoverage:      true,
		AnchorPages:        true,
		MinimumSnippets:    8,
		MaxSentences:       6,
		MaxCharacters:      900,
		MinSentenceLength:  25,
		MaxSentenceLength:  400,
	}
}

var configValidate = validator.New()

// Validate checks the config invariants. A failing config is a
// ValidationError, surfaced to the caller and never retried.
func (c DocumentQuizConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return Validationf("quiz config: %v", err)
	}
	return nil
}

// Config holds process-level settings for the binaries, read from the
// environment.
type Config struct {
	HTTPAddr       string
	DBPath         string
	OpenAIKey      string
	OpenAIBaseURL  string
	EmbeddingModel string
	JWTSecret      string
	SessionSecret  string
	CORSOrigins    string
}

// FromEnv builds a Config from environment variables with sensible
// defaults for local use.
func FromEnv() Config {
	cfg := Config{
		HTTPAddr:       os.Getenv("HTTP_ADDR"),
		DBPath:         os.Getenv("DB_PATH"),
		OpenAIKey:      os.Getenv("OPENAI_API_KEY"),
		OpenAIBaseURL:  os.Getenv("OPENAI_BASE_URL"),
		EmbeddingModel: os.Getenv("EMBEDDING_MODEL"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		SessionSecret:  os.Getenv("SESSION_SECRET"),
		CORSOrigins:    os.Getenv("CORS_ORIGINS"),
	}
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = ":8180"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./docquiz.db"
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = "text-embedding-3-small"
	}
	return cfg
}
