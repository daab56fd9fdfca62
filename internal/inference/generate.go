package inference

import (
	"context"
	"fmt"
	"net/http"

	"github.com/starford/mnemo/internal/apperr"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the input of Chat.
type ChatRequest struct {
	Model    string
	Prompt   string
	System   string
	Messages []Message
	Options  map[string]any
}

// CompleteRequest is the input of Complete.
type CompleteRequest struct {
	Model   string
	Prompt  string
	System  string
	Suffix  string
	Options map[string]any
}

// Completion is the normalized result of Chat and Complete.
type Completion struct {
	Model           string `json:"model"`
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	DoneReason      string `json:"doneReason,omitempty"`
	TotalDuration   int64  `json:"totalDuration,omitempty"`
	PromptEvalCount int    `json:"promptEvalCount,omitempty"`
	EvalCount       int    `json:"evalCount,omitempty"`
}

// generation covers both response shapes: /api/chat answers with a
// message, /api/generate with a bare response string.
type generation struct {
	Model           string   `json:"model"`
	Message         *Message `json:"message"`
	Response        *string  `json:"response"`
	Done            bool     `json:"done"`
	DoneReason      string   `json:"done_reason"`
	TotalDuration   int64    `json:"total_duration"`
	PromptEvalCount int      `json:"prompt_eval_count"`
	EvalCount       int      `json:"eval_count"`
}

func (g generation) normalize(model string) (*Completion, error) {
	out := &Completion{
		Model:           g.Model,
		Done:            g.Done,
		DoneReason:      g.DoneReason,
		TotalDuration:   g.TotalDuration,
		PromptEvalCount: g.PromptEvalCount,
		EvalCount:       g.EvalCount,
	}
	if out.Model == "" {
		out.Model = model
	}
	switch {
	case g.Message != nil:
		out.Response = g.Message.Content
	case g.Response != nil:
		out.Response = *g.Response
	default:
		return nil, fmt.Errorf("%s: neither message nor response in reply: %w", service, apperr.ErrUnexpectedResponse)
	}
	return out, nil
}

// Chat sends a conversation. Prompt and System, when set, are appended as
// user and system turns around Messages.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Completion, error) {
	model, err := c.model(req.Model)
	if err != nil {
		return nil, err
	}
	var msgs []Message
	if req.System != "" {
		msgs = append(msgs, Message{Role: "system", Content: req.System})
	}
	msgs = append(msgs, req.Messages...)
	if req.Prompt != "" {
		msgs = append(msgs, Message{Role: "user", Content: req.Prompt})
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%s: chat needs a prompt or messages: %w", service, apperr.ErrValidation)
	}

	body := map[string]any{"model": model, "messages": msgs, "stream": false}
	if len(req.Options) > 0 {
		body["options"] = req.Options
	}
	var g generation
	if err := c.call(ctx, GenerateTimeout, http.MethodPost, "/api/chat", body, &g); err != nil {
		return nil, err
	}
	return g.normalize(model)
}

// Complete generates text for a single prompt.
func (c *Client) Complete(ctx context.Context, req CompleteRequest) (*Completion, error) {
	model, err := c.model(req.Model)
	if err != nil {
		return nil, err
	}
	body := map[string]any{"model": model, "prompt": req.Prompt, "stream": false}
	if req.System != "" {
		body["system"] = req.System
	}
	if req.Suffix != "" {
		body["suffix"] = req.Suffix
	}
	if len(req.Options) > 0 {
		body["options"] = req.Options
	}
	var g generation
	if err := c.call(ctx, GenerateTimeout, http.MethodPost, "/api/generate", body, &g); err != nil {
		return nil, err
	}
	return g.normalize(model)
}

// Embedding is the result of Embed.
type Embedding struct {
	Model      string    `json:"model"`
	Embedding  []float64 `json:"embedding"`
	Dimensions int       `json:"dimensions"`
}

// Embed returns the embedding vector of input. Both the batched
// "embeddings" field and the legacy single "embedding" field are accepted.
func (c *Client) Embed(ctx context.Context, model, input string) (*Embedding, error) {
	if model == "" {
		model = c.embedModel
	}
	model, err := c.model(model)
	if err != nil {
		return nil, err
	}
	var out struct {
		Model      string      `json:"model"`
		Embeddings [][]float64 `json:"embeddings"`
		Embedding  []float64   `json:"embedding"`
	}
	body := map[string]any{"model": model, "input": input}
	if err := c.call(ctx, GenerateTimeout, http.MethodPost, "/api/embed", body, &out); err != nil {
		return nil, err
	}
	vec := out.Embedding
	if len(out.Embeddings) > 0 {
		vec = out.Embeddings[0]
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%s: %w", service, apperr.ErrNoEmbedding)
	}
	if out.Model != "" {
		model = out.Model
	}
	return &Embedding{Model: model, Embedding: vec, Dimensions: len(vec)}, nil
}
