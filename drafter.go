package docquiz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// GenerationUnit is one snippet or summary a question can be built
// from. Refs trace back to the originating document pages.
type GenerationUnit struct {
	Text       string
	TopicID    string
	TopicTitle string
	Refs       []SourceRef
}

// QuestionDraft is a raw question candidate from the generation
// backend, before screening and normalization.
type QuestionDraft struct {
	UnitIndex    int
	Prompt       string
	Options      []string
	CorrectIndex int
	Explanation  string
	Intent       string
}

// DraftRequest asks the backend for count question drafts over the
// given units, one question per unit.
type DraftRequest struct {
	Scope       string
	Title       string
	Units       []GenerationUnit
	Difficulty  Difficulty
	Count       int
	Performance UserQuizPerformance
}

// Drafter is the text-generation backend, treated as a black box that
// returns structured question candidates.
type Drafter interface {
	DraftQuestions(ctx context.Context, req DraftRequest) ([]QuestionDraft, error)
}

// OpenAIDrafter drafts questions with a single chat completion per
// request, forcing a function tool-call so the output is structured.
type OpenAIDrafter struct {
	client *openai.Client
	model  string
}

// NewOpenAIDrafter creates a drafter. Fails fast when the credential is
// absent.
func NewOpenAIDrafter(apiKey, baseURL, model string) (*OpenAIDrafter, error) {
	if apiKey == "" {
		return nil, Validationf("generation backend credential is not configured")
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIDrafter{client: openai.NewClientWithConfig(cfg), model: model}, nil
}

// DraftQuestions implements Drafter with one request per scope level.
func (d *OpenAIDrafter) DraftQuestions(ctx context.Context, req DraftRequest) ([]QuestionDraft, error) {
	if len(req.Units) == 0 {
		return nil, Validationf("no generation units for scope %s", req.Scope)
	}

	resp, err := d.client.CreateChatCompletion(
		ctx,
		openai.ChatCompletionRequest{
			Model: d.model,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleSystem,
					Content: "You are an expert quiz question generator. Generate high-quality multiple choice questions with exactly 4 options each, grounded strictly in the provided source excerpts.",
				},
				{
					Role:    openai.ChatMessageRoleUser,
					Content: buildDraftPrompt(req),
				},
			},
			Tools: []openai.Tool{
				{
					Type: openai.ToolTypeFunction,
					Function: &openai.FunctionDefinition{
						Name:        "submit_questions",
						Description: "Submit generated quiz questions",
						Parameters: map[string]interface{}{
							"type": "object",
							"properties": map[string]interface{}{
								"questions": map[string]interface{}{
									"type": "array",
									"items": map[string]interface{}{
										"type": "object",
										"properties": map[string]interface{}{
											"unit_index": map[string]interface{}{
												"type":        "integer",
												"description": "0-based index of the source excerpt this question is built from",
											},
											"prompt": map[string]interface{}{
												"type":        "string",
												"description": "The question text",
											},
											"options": map[string]interface{}{
												"type": "array",
												"items": map[string]interface{}{
													"type": "string",
												},
												"description": "Array of 4 multiple choice options",
											},
											"correct_index": map[string]interface{}{
												"type":        "integer",
												"description": "0-based index of the correct option",
											},
											"explanation": map[string]interface{}{
												"type":        "string",
												"description": "Brief explanation of why the answer is correct",
											},
											"intent": map[string]interface{}{
												"type":        "string",
												"enum":        []string{"scenario", "conceptual", "recall"},
												"description": "What kind of understanding the question tests",
											},
										},
										"required": []string{"unit_index", "prompt", "options", "correct_index", "explanation"},
									},
								},
							},
							"required": []string{"questions"},
						},
					},
				},
			},
			ToolChoice: openai.ToolChoice{
				Type: openai.ToolTypeFunction,
				Function: openai.ToolFunction{
					Name: "submit_questions",
				},
			},
		},
	)
	if err != nil {
		return nil, &UpstreamError{Backend: "generation", Msg: "request failed", Err: err}
	}

	if len(resp.Choices) == 0 {
		return nil, &UpstreamError{Backend: "generation", Msg: "no choices in response"}
	}
	choice := resp.Choices[0]
	if len(choice.Message.ToolCalls) == 0 {
		return nil, &UpstreamError{Backend: "generation", Msg: "no tool calls in response"}
	}
	toolCall := choice.Message.ToolCalls[0]
	if toolCall.Function.Name != "submit_questions" {
		return nil, &UpstreamError{Backend: "generation", Msg: fmt.Sprintf("unexpected tool call %q", toolCall.Function.Name)}
	}

	var toolArgs struct {
		Questions []struct {
			UnitIndex    int      `json:"unit_index"`
			Prompt       string   `json:"prompt"`
			Options      []string `json:"options"`
			CorrectIndex int      `json:"correct_index"`
			Explanation  string   `json:"explanation"`
			Intent       string   `json:"intent"`
		} `json:"questions"`
	}
	if err := json.Unmarshal([]byte(toolCall.Function.Arguments), &toolArgs); err != nil {
		return nil, &UpstreamError{Backend: "generation", Msg: "unparseable tool arguments", Err: err}
	}

	drafts := make([]QuestionDraft, 0, len(toolArgs.Questions))
	for _, q := range toolArgs.Questions {
		drafts = append(drafts, QuestionDraft{
			UnitIndex:    q.UnitIndex,
			Prompt:       q.Prompt,
			Options:      q.Options,
			CorrectIndex: q.CorrectIndex,
			Explanation:  q.Explanation,
			Intent:       q.Intent,
		})
	}

	VerboseLog("drafted %d questions for scope %s", len(drafts), req.Scope)
	return drafts, nil
}

func buildDraftPrompt(req DraftRequest) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Generate %d multiple choice questions for a %s-level quiz titled %q.\n\n", req.Count, req.Scope, req.Title))

	if req.Difficulty != "" {
		sb.WriteString(fmt.Sprintf("Difficulty level: %s\n", req.Difficulty))
	}
	if req.Performance.QuizCount > 0 {
		sb.WriteString(fmt.Sprintf("The learner has taken %d quizzes on this material; recent scores: %v. Calibrate difficulty accordingly.\n", req.Performance.QuizCount, req.Performance.RecentScores))
	}
	sb.WriteString("\nSource excerpts (each question must be built from exactly one excerpt, referenced by unit_index):\n\n")
	for i, unit := range req.Units {
		sb.WriteString(fmt.Sprintf("[%d] (%s)\n%s\n\n", i, unit.TopicTitle, unit.Text))
	}

	sb.WriteString("Requirements:\n")
	sb.WriteString("- Each question must have exactly 4 multiple choice options\n")
	sb.WriteString("- The correct answer should be non-obvious but clearly correct\n")
	sb.WriteString("- Incorrect options should be plausible but clearly wrong\n")
	sb.WriteString("- Questions must test understanding of the content, never the document's layout or formatting\n")
	sb.WriteString("- Do not write questions answerable by matching a phrase verbatim against the excerpt\n")
	sb.WriteString("- Avoid questions where the answer is given away in the question text\n")
	sb.WriteString("- Provide a brief explanation for why the correct answer is right\n")
	sb.WriteString("- Use the submit_questions tool to return your questions\n")

	return sb.String()
}
