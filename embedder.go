package docquiz

import (
	"context"

	openai "github.com/sashabaranov/go-openai"
)

// Embedder computes one fixed-length vector per chunk through the
// embedding backend. Calls are strictly sequential: one in-flight
// request at a time, one round trip per chunk.
type Embedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewEmbedder creates an embedder. It fails fast with a validation
// error when the backend credential is absent.
func NewEmbedder(apiKey, baseURL, model string) (*Embedder, error) {
	if apiKey == "" {
		return nil, Validationf("embedding backend credential is not configured")
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	return &Embedder{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}, nil
}

// EmbedChunks populates Embedding and Tokens on every chunk. The batch
// aborts on the first failure with no partial-success continuation;
// callers needing resilience retry the whole batch.
func (e *Embedder) EmbedChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, len(chunks))
	for i, chunk := range chunks {
		vector, tokens, err := e.embedOne(ctx, chunk.Content)
		if err != nil {
			return nil, err
		}
		chunk.Embedding = vector
		chunk.Tokens = tokens
		out[i] = chunk
	}
	VerboseLog("embedded %d chunks", len(out))
	return out, nil
}

func (e *Embedder) embedOne(ctx context.Context, content string) ([]float32, *int, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequestStrings{
		Input: []string{content},
		Model: e.model,
	})
	if err != nil {
		return nil, nil, &UpstreamError{Backend: "embedding", Msg: "request failed", Err: err}
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, nil, &UpstreamError{Backend: "embedding", Msg: "response carried no vector"}
	}

	var tokens *int
	if resp.Usage.PromptTokens > 0 {
		t := resp.Usage.PromptTokens
		tokens = &t
	} else if resp.Usage.TotalTokens > 0 {
		t := resp.Usage.TotalTokens
		tokens = &t
	}
	return resp.Data[0].Embedding, tokens, nil
}
