package tools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mnemo/internal/graph"
	"github.com/starford/mnemo/internal/registry"
)

// Graph exposes entity and relationship operations.
type Graph struct {
	store graph.Store
	// queryLanguage names the dialect query_graph accepts.
	queryLanguage string
}

// NewGraph creates the graph tool provider. queryLanguage is shown in the
// query_graph description ("Cypher" or "SQL").
func NewGraph(store graph.Store, queryLanguage string) *Graph {
	return &Graph{store: store, queryLanguage: queryLanguage}
}

// Name implements registry.Provider.
func (p *Graph) Name() string { return "graph" }

// Tools implements registry.Provider.
func (p *Graph) Tools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Tool: mcp.NewTool("create_entity",
				mcp.WithDescription("Create an entity. Names are not unique; calling twice creates two entities."),
				mcp.WithString("label", mcp.Required(), mcp.Description("Entity category, e.g. Person or Concept")),
				mcp.WithString("name", mcp.Required()),
				mcp.WithObject("properties", mcp.Description("Additional properties")),
			),
			Handler: p.createEntity,
		},
		{
			Tool: mcp.NewTool("update_entity",
				mcp.WithDescription("Merge properties into an existing entity."),
				mcp.WithString("id", mcp.Required(), mcp.Description("Entity id as returned by create_entity")),
				mcp.WithObject("properties", mcp.Required()),
			),
			Handler: p.updateEntity,
		},
		{
			Tool: mcp.NewTool("delete_entity",
				mcp.WithDescription("Delete an entity. Without detach, entities that still have relationships are kept."),
				mcp.WithString("id", mcp.Required()),
				mcp.WithBoolean("detach", mcp.DefaultBool(false), mcp.Description("Remove relationships first")),
			),
			Handler: p.deleteEntity,
		},
		{
			Tool: mcp.NewTool("create_relationship",
				mcp.WithDescription("Create a directed relationship between two existing entities matched by label and name."),
				mcp.WithString("fromLabel", mcp.Required()),
				mcp.WithString("fromName", mcp.Required()),
				mcp.WithString("toLabel", mcp.Required()),
				mcp.WithString("toName", mcp.Required()),
				mcp.WithString("type", mcp.Required(), mcp.Description("Relationship type; stored uppercased")),
				mcp.WithObject("properties"),
			),
			Handler: p.createRelationship,
		},
		{
			Tool: mcp.NewTool("query_graph",
				mcp.WithDescription("Run a raw "+p.queryLanguage+" query with named parameters. Reads and writes are both allowed."),
				mcp.WithString("query", mcp.Required()),
				mcp.WithObject("params", mcp.Description("Named query parameters")),
			),
			Handler: p.query,
		},
		{
			Tool: mcp.NewTool("find_entities",
				mcp.WithDescription("Find entities whose name contains a substring."),
				mcp.WithString("label", mcp.Description("Restrict to one label")),
				mcp.WithString("nameContains", mcp.Description("Case-insensitive substring of the name")),
				mcp.WithNumber("limit", mcp.DefaultNumber(graph.DefaultFindLimit), mcp.Min(1)),
			),
			Handler: p.findEntities,
		},
		{
			Tool: mcp.NewTool("get_entity_context",
				mcp.WithDescription("Return an entity with its relationships and neighbours up to depth hops away."),
				mcp.WithString("label", mcp.Required()),
				mcp.WithString("name", mcp.Required()),
				mcp.WithNumber("depth", mcp.DefaultNumber(graph.DefaultDepth), mcp.Min(1), mcp.Max(graph.MaxDepth)),
			),
			Handler: p.entityContext,
		},
	}
}

func (p *Graph) createEntity(ctx context.Context, args registry.Args) (any, error) {
	label, err := args.RequireString("label")
	if err != nil {
		return nil, err
	}
	return p.store.CreateEntity(ctx, label, args.String("name", ""), args.Map("properties"))
}

func (p *Graph) updateEntity(ctx context.Context, args registry.Args) (any, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return nil, err
	}
	return p.store.UpdateEntity(ctx, id, args.Map("properties"))
}

func (p *Graph) deleteEntity(ctx context.Context, args registry.Args) (any, error) {
	id, err := args.RequireString("id")
	if err != nil {
		return nil, err
	}
	if err := p.store.DeleteEntity(ctx, id, args.Bool("detach", false)); err != nil {
		return nil, err
	}
	return map[string]any{"id": id, "deleted": true}, nil
}

func (p *Graph) createRelationship(ctx context.Context, args registry.Args) (any, error) {
	return p.store.CreateRelationship(ctx, graph.RelationshipSpec{
		FromLabel:  args.String("fromLabel", ""),
		FromName:   args.String("fromName", ""),
		ToLabel:    args.String("toLabel", ""),
		ToName:     args.String("toName", ""),
		Type:       args.String("type", ""),
		Properties: args.Map("properties"),
	})
}

func (p *Graph) query(ctx context.Context, args registry.Args) (any, error) {
	q, err := args.RequireString("query")
	if err != nil {
		return nil, err
	}
	return p.store.Query(ctx, q, args.Map("params"))
}

func (p *Graph) findEntities(ctx context.Context, args registry.Args) (any, error) {
	found, err := p.store.FindEntities(ctx, graph.EntityFilter{
		Label:        args.String("label", ""),
		NameContains: args.String("nameContains", ""),
		Limit:        args.Int("limit", graph.DefaultFindLimit),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"entities": found, "count": len(found)}, nil
}

func (p *Graph) entityContext(ctx context.Context, args registry.Args) (any, error) {
	return p.store.EntityContext(ctx,
		args.String("label", ""),
		args.String("name", ""),
		args.Int("depth", graph.DefaultDepth))
}
