package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mnemo/internal/inference"
	"github.com/starford/mnemo/internal/registry"
)

// Inference exposes the local model server.
type Inference struct {
	client *inference.Client
	log    *slog.Logger
}

// NewInference creates the inference tool provider.
func NewInference(client *inference.Client, log *slog.Logger) *Inference {
	return &Inference{client: client, log: log}
}

// Name implements registry.Provider.
func (p *Inference) Name() string { return "inference" }

// Tools implements registry.Provider.
func (p *Inference) Tools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Tool: mcp.NewTool("chat",
				mcp.WithDescription("Send a chat prompt to a local model."),
				mcp.WithString("prompt", mcp.Required()),
				mcp.WithString("model", mcp.Description("Defaults to the configured model")),
				mcp.WithString("system", mcp.Description("System prompt")),
				mcp.WithNumber("temperature", mcp.Min(0), mcp.Max(2)),
				mcp.WithObject("options", mcp.Description("Raw model options")),
			),
			Handler: p.chat,
		},
		{
			Tool: mcp.NewTool("complete",
				mcp.WithDescription("Generate a completion for a prompt."),
				mcp.WithString("prompt", mcp.Required()),
				mcp.WithString("model"),
				mcp.WithString("system"),
				mcp.WithString("suffix", mcp.Description("Text after the insertion point")),
				mcp.WithNumber("temperature", mcp.Min(0), mcp.Max(2)),
				mcp.WithObject("options"),
			),
			Handler: p.complete,
		},
		{
			Tool: mcp.NewTool("embed",
				mcp.WithDescription("Compute an embedding vector for text."),
				mcp.WithString("input", mcp.Required()),
				mcp.WithString("model", mcp.Description("Defaults to the configured embedding model")),
			),
			Handler: p.embed,
		},
		{
			Tool:    mcp.NewTool("list_models", mcp.WithDescription("List installed models.")),
			Handler: p.listModels,
		},
		{
			Tool: mcp.NewTool("show_model_info",
				mcp.WithDescription("Show details of an installed model."),
				mcp.WithString("model", mcp.Required()),
			),
			Handler: p.showModel,
		},
		{
			Tool: mcp.NewTool("pull_model",
				mcp.WithDescription("Download a model. Blocks until the download finishes."),
				mcp.WithString("model", mcp.Required()),
			),
			Handler: p.pullModel,
		},
	}
}

func options(args registry.Args) map[string]any {
	opts := args.Map("options")
	if args.Has("temperature") {
		if opts == nil {
			opts = map[string]any{}
		}
		opts["temperature"] = args.Float("temperature", 0)
	}
	return opts
}

func (p *Inference) chat(ctx context.Context, args registry.Args) (any, error) {
	prompt, err := args.RequireString("prompt")
	if err != nil {
		return nil, err
	}
	return p.client.Chat(ctx, inference.ChatRequest{
		Model:   args.String("model", ""),
		Prompt:  prompt,
		System:  args.String("system", ""),
		Options: options(args),
	})
}

func (p *Inference) complete(ctx context.Context, args registry.Args) (any, error) {
	prompt, err := args.RequireString("prompt")
	if err != nil {
		return nil, err
	}
	return p.client.Complete(ctx, inference.CompleteRequest{
		Model:   args.String("model", ""),
		Prompt:  prompt,
		System:  args.String("system", ""),
		Suffix:  args.String("suffix", ""),
		Options: options(args),
	})
}

func (p *Inference) embed(ctx context.Context, args registry.Args) (any, error) {
	input, err := args.RequireString("input")
	if err != nil {
		return nil, err
	}
	return p.client.Embed(ctx, args.String("model", ""), input)
}

func (p *Inference) listModels(ctx context.Context, _ registry.Args) (any, error) {
	models, err := p.client.ListModels(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"models": models, "count": len(models)}, nil
}

func (p *Inference) showModel(ctx context.Context, args registry.Args) (any, error) {
	return p.client.ShowModel(ctx, args.String("model", ""))
}

func (p *Inference) pullModel(ctx context.Context, args registry.Args) (any, error) {
	model, err := args.RequireString("model")
	if err != nil {
		return nil, err
	}
	return p.client.PullModel(ctx, model, func(pr inference.PullProgress) {
		p.log.Debug("model pull progress",
			slog.String("model", model),
			slog.String("status", pr.Status),
			slog.Int64("completed", pr.Completed),
			slog.Int64("total", pr.Total))
	})
}
