// Package tools declares the tool catalogue: one provider per backend,
// each mapping tool arguments onto its adapter.
package tools

import (
	"context"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/mnemo/internal/notes"
	"github.com/starford/mnemo/internal/registry"
)

// Notes exposes the note vault.
type Notes struct {
	svc *notes.Service
}

// NewNotes creates the note tool provider.
func NewNotes(svc *notes.Service) *Notes {
	return &Notes{svc: svc}
}

// Name implements registry.Provider.
func (p *Notes) Name() string { return "notes" }

// Tools implements registry.Provider.
func (p *Notes) Tools() []registry.Descriptor {
	return []registry.Descriptor{
		{
			Tool: mcp.NewTool("read_note",
				mcp.WithDescription("Read a note from the vault."),
				mcp.WithString("filename", mcp.Required(), mcp.Description("Vault-relative path; .md is appended when missing")),
				mcp.WithBoolean("parseFrontmatter", mcp.DefaultBool(true), mcp.Description("Split the front-matter block from the content")),
			),
			Handler: p.read,
		},
		{
			Tool: mcp.NewTool("write_note",
				mcp.WithDescription("Write a note, replacing any existing content."),
				mcp.WithString("filename", mcp.Required(), mcp.Description("Vault-relative path")),
				mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body")),
				mcp.WithObject("frontmatter", mcp.Description("Flat key/value map written above the content")),
				mcp.WithBoolean("createDirs", mcp.DefaultBool(true), mcp.Description("Create missing parent directories")),
			),
			Handler: p.write,
		},
		{
			Tool: mcp.NewTool("append_note",
				mcp.WithDescription("Append content to an existing note."),
				mcp.WithString("filename", mcp.Required(), mcp.Description("Vault-relative path")),
				mcp.WithString("content", mcp.Required(), mcp.Description("Text to append")),
				mcp.WithString("separator", mcp.DefaultString("\n\n"), mcp.Description("Inserted between the old and new content")),
			),
			Handler: p.append,
		},
		{
			Tool: mcp.NewTool("list_notes",
				mcp.WithDescription("List notes in the vault, optionally filtered by tag."),
				mcp.WithString("directory", mcp.DefaultString(""), mcp.Description("Directory to list; empty for the vault root")),
				mcp.WithString("tag", mcp.Description("Only notes whose front-matter carries this tag")),
				mcp.WithBoolean("recursive", mcp.DefaultBool(true), mcp.Description("Descend into subdirectories")),
				mcp.WithNumber("limit", mcp.DefaultNumber(100), mcp.Min(1), mcp.Description("Maximum number of notes")),
			),
			Handler: p.list,
		},
		{
			Tool: mcp.NewTool("search_notes",
				mcp.WithDescription("Search note contents for a literal string."),
				mcp.WithString("query", mcp.Required(), mcp.Description("Text to find")),
				mcp.WithBoolean("caseSensitive", mcp.DefaultBool(false)),
				mcp.WithBoolean("includeContent", mcp.DefaultBool(false), mcp.Description("Return up to 5 matching lines per note")),
				mcp.WithNumber("limit", mcp.DefaultNumber(50), mcp.Min(1)),
			),
			Handler: p.search,
		},
		{
			Tool: mcp.NewTool("create_note",
				mcp.WithDescription("Create a note from a template with a generated front-matter block."),
				mcp.WithString("filename", mcp.Required(), mcp.Description("Vault-relative path")),
				mcp.WithString("title", mcp.Description("Defaults to the file name")),
				mcp.WithString("content", mcp.Required(), mcp.Description("Markdown body")),
				mcp.WithArray("tags", mcp.WithStringItems(), mcp.Description("Front-matter tags")),
				mcp.WithString("template", mcp.Enum(notes.Templates...), mcp.DefaultString(notes.TemplateDefault)),
			),
			Handler: p.create,
		},
		{
			Tool: mcp.NewTool("delete_note",
				mcp.WithDescription("Delete a note. Deleting a missing note is not an error."),
				mcp.WithString("filename", mcp.Required(), mcp.Description("Vault-relative path")),
			),
			Handler: p.delete,
		},
	}
}

func (p *Notes) read(ctx context.Context, args registry.Args) (any, error) {
	filename, err := args.RequireString("filename")
	if err != nil {
		return nil, err
	}
	return p.svc.ReadNote(ctx, filename, args.Bool("parseFrontmatter", true))
}

func (p *Notes) write(ctx context.Context, args registry.Args) (any, error) {
	filename, err := args.RequireString("filename")
	if err != nil {
		return nil, err
	}
	return p.svc.WriteNote(ctx, notes.WriteRequest{
		Filename:    filename,
		Content:     args.String("content", ""),
		Frontmatter: args.Map("frontmatter"),
		CreateDirs:  args.Bool("createDirs", true),
	})
}

func (p *Notes) append(ctx context.Context, args registry.Args) (any, error) {
	filename, err := args.RequireString("filename")
	if err != nil {
		return nil, err
	}
	return p.svc.AppendNote(ctx, filename, args.String("content", ""), args.String("separator", ""))
}

func (p *Notes) list(ctx context.Context, args registry.Args) (any, error) {
	return p.svc.ListNotes(ctx, notes.ListRequest{
		Directory: strings.Trim(args.String("directory", ""), "/"),
		Tag:       args.String("tag", ""),
		Recursive: args.Bool("recursive", true),
		Limit:     args.Int("limit", 0),
	})
}

func (p *Notes) search(ctx context.Context, args registry.Args) (any, error) {
	return p.svc.SearchNotes(ctx, notes.SearchRequest{
		Query:          args.String("query", ""),
		CaseSensitive:  args.Bool("caseSensitive", false),
		IncludeContent: args.Bool("includeContent", false),
		Limit:          args.Int("limit", 0),
	})
}

func (p *Notes) create(ctx context.Context, args registry.Args) (any, error) {
	filename, err := args.RequireString("filename")
	if err != nil {
		return nil, err
	}
	return p.svc.CreateNote(ctx, notes.CreateRequest{
		Filename: filename,
		Title:    args.String("title", ""),
		Content:  args.String("content", ""),
		Tags:     args.Strings("tags"),
		Template: args.String("template", notes.TemplateDefault),
	})
}

func (p *Notes) delete(ctx context.Context, args registry.Args) (any, error) {
	filename, err := args.RequireString("filename")
	if err != nil {
		return nil, err
	}
	return p.svc.DeleteNote(ctx, filename)
}
