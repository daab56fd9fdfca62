package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/memory"
	"github.com/starford/mnemo/internal/models"
	"github.com/starford/mnemo/internal/registry"
)

// Memory exposes the composite memory operations.
type Memory struct {
	orch *memory.Orchestrator
}

// NewMemory creates the memory tool provider.
func NewMemory(orch *memory.Orchestrator) *Memory {
	return &Memory{orch: orch}
}

// Name implements registry.Provider.
func (p *Memory) Name() string { return "memory" }

// Tools implements registry.Provider.
func (p *Memory) Tools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Tool: mcp.NewTool("store_memory",
				mcp.WithDescription("Store a memory in the knowledge graph and mirror it as a note. "+
					"The result reports the outcome for each store."),
				mcp.WithString("content", mcp.Required()),
				mcp.WithString("type", mcp.Enum(models.MemoryTypes...), mcp.DefaultString(models.MemoryFact)),
				mcp.WithNumber("importance", mcp.Min(0), mcp.Max(1), mcp.DefaultNumber(graph.DefaultImportance)),
				mcp.WithString("source", mcp.Description("Where the memory came from")),
				mcp.WithArray("tags", mcp.WithStringItems()),
				mcp.WithArray("entities", mcp.WithStringItems(), mcp.Description("Names of entities the memory mentions")),
			),
			Handler: p.store,
		},
		{
			Tool: mcp.NewTool("recall_memory",
				mcp.WithDescription("Search stored memories and notes. Results are tagged with their source and not deduplicated."),
				mcp.WithString("query", mcp.Required()),
				mcp.WithString("type", mcp.Enum(models.MemoryTypes...)),
				mcp.WithNumber("limit", mcp.DefaultNumber(10), mcp.Min(1)),
				mcp.WithBoolean("includeNotes", mcp.DefaultBool(true)),
			),
			Handler: p.recall,
		},
		{
			Tool: mcp.NewTool("create_knowledge_link",
				mcp.WithDescription("Link two concepts, creating either concept when missing."),
				mcp.WithString("from", mcp.Required()),
				mcp.WithString("to", mcp.Required()),
				mcp.WithString("relationship", mcp.DefaultString("RELATES_TO")),
				mcp.WithNumber("strength", mcp.Min(0), mcp.Max(1)),
			),
			Handler: p.link,
		},
		{
			Tool: mcp.NewTool("get_knowledge_graph",
				mcp.WithDescription("Return the concepts and links reachable from a concept."),
				mcp.WithString("concept", mcp.Required()),
				mcp.WithNumber("depth", mcp.DefaultNumber(2), mcp.Min(1), mcp.Max(graph.MaxDepth)),
			),
			Handler: p.knowledgeGraph,
		},
		{
			Tool: mcp.NewTool("search_memories_by_date",
				mcp.WithDescription("List memories created in a date range, newest first."),
				mcp.WithString("startDate", mcp.Required(), mcp.Description("YYYY-MM-DD or RFC 3339")),
				mcp.WithString("endDate", mcp.Description("Inclusive; defaults to now")),
				mcp.WithString("type", mcp.Enum(models.MemoryTypes...)),
				mcp.WithNumber("limit", mcp.DefaultNumber(50), mcp.Min(1)),
			),
			Handler: p.byDate,
		},
		{
			Tool: mcp.NewTool("update_memory_importance",
				mcp.WithDescription("Change the importance of a stored memory."),
				mcp.WithString("memoryId", mcp.Required()),
				mcp.WithNumber("importance", mcp.Required(), mcp.Min(0), mcp.Max(1)),
			),
			Handler: p.setImportance,
		},
		{
			Tool: mcp.NewTool("summarize_memories",
				mcp.WithDescription("Count memories per type with average importance, and optionally per tag."),
				mcp.WithString("type", mcp.Enum(models.MemoryTypes...)),
				mcp.WithBoolean("includeTags", mcp.DefaultBool(true)),
			),
			Handler: p.summarize,
		},
	}
}

func (p *Memory) store(ctx context.Context, args registry.Args) (any, error) {
	return p.orch.Store(ctx, memory.StoreRequest{
		Content:    args.String("content", ""),
		Type:       args.String("type", models.MemoryFact),
		Importance: args.Float("importance", graph.DefaultImportance),
		Source:     args.String("source", ""),
		Tags:       args.Strings("tags"),
		Entities:   args.Strings("entities"),
	})
}

func (p *Memory) recall(ctx context.Context, args registry.Args) (any, error) {
	return p.orch.Recall(ctx, memory.RecallRequest{
		Query:        args.String("query", ""),
		Type:         args.String("type", ""),
		Limit:        args.Int("limit", 0),
		IncludeNotes: args.Bool("includeNotes", true),
	})
}

func (p *Memory) link(ctx context.Context, args registry.Args) (any, error) {
	var strength *float64
	if args.Has("strength") {
		s := args.Float("strength", graph.DefaultStrength)
		strength = &s
	}
	return p.orch.Link(ctx,
		args.String("from", ""),
		args.String("to", ""),
		args.String("relationship", ""),
		strength)
}

func (p *Memory) knowledgeGraph(ctx context.Context, args registry.Args) (any, error) {
	concept, err := args.RequireString("concept")
	if err != nil {
		return nil, err
	}
	return p.orch.KnowledgeGraph(ctx, concept, args.Int("depth", 2))
}

func (p *Memory) byDate(ctx context.Context, args registry.Args) (any, error) {
	start, err := args.RequireString("startDate")
	if err != nil {
		return nil, err
	}
	return p.orch.ByDate(ctx, start, args.String("endDate", ""), args.String("type", ""), args.Int("limit", 0))
}

func (p *Memory) setImportance(ctx context.Context, args registry.Args) (any, error) {
	id, err := args.RequireString("memoryId")
	if err != nil {
		return nil, err
	}
	if !args.Has("importance") {
		return nil, fmt.Errorf("%q is required: %w", "importance", apperr.ErrValidation)
	}
	return p.orch.SetImportance(ctx, id, args.Float("importance", graph.DefaultImportance))
}

func (p *Memory) summarize(ctx context.Context, args registry.Args) (any, error) {
	return p.orch.Summarize(ctx, graph.SummaryQuery{
		Type:        args.String("type", ""),
		IncludeTags: args.Bool("includeTags", true),
	})
}
