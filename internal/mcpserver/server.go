// Package mcpserver serves the tool registry, the status resources and the
// prompt templates over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mnemo/internal/apperr"
	"github.com/starford/mnemo/internal/health"
	"github.com/starford/mnemo/internal/registry"
)

// Resource URIs.
const (
	HealthURI        = "memory://status/health"
	ConfigSummaryURI = "memory://config/summary"
)

// Deps are the collaborators of a Server.
type Deps struct {
	Name     string
	Version  string
	Registry *registry.Registry
	Health   *health.Checker
	// ConfigSummary is served as JSON; it must not carry secrets.
	ConfigSummary any
	Logger        *slog.Logger
}

// Server wraps the MCP server.
type Server struct {
	mcp  *server.MCPServer
	deps Deps
	log  *slog.Logger
}

// New creates a Server exposing every registered tool.
func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{deps: d, log: d.Logger}

	s.mcp = server.NewMCPServer(
		d.Name,
		d.Version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithPromptCapabilities(false),
		server.WithRecovery(),
	)

	for _, tool := range d.Registry.List() {
		s.mcp.AddTool(tool, s.callTool)
	}

	s.mcp.AddResource(
		mcp.NewResource(HealthURI, "Health status",
			mcp.WithResourceDescription("Reachability of the vault, graph and inference backends."),
			mcp.WithMIMEType("application/json"),
		),
		s.readHealth,
	)
	s.mcp.AddResource(
		mcp.NewResource(ConfigSummaryURI, "Configuration summary",
			mcp.WithResourceDescription("Effective configuration with credentials redacted."),
			mcp.WithMIMEType("application/json"),
		),
		s.readConfigSummary,
	)

	s.addPrompts()
	return s
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve reads requests from in and writes responses to out until ctx is
// cancelled or in is closed.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.log.Handler(), slog.LevelError))
	return stdio.Listen(ctx, in, out)
}

// callTool routes every tool call through the registry. Handler errors
// become error results; the connection is never failed by a tool.
func (s *Server) callTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.Params.Name
	out, err := s.deps.Registry.Dispatch(ctx, name, req.GetArguments())
	if err != nil {
		s.log.Warn("tool call failed",
			slog.String("tool", name),
			slog.String("kind", apperr.Kind(err)),
			slog.String("error", err.Error()))
		return mcp.NewToolResultError(fmt.Sprintf("%s: %v", apperr.Kind(err), err)), nil
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	s.log.Debug("tool call", slog.String("tool", name))
	return mcp.NewToolResultText(string(data)), nil
}

func jsonResource(uri string, v any) ([]mcp.ResourceContents, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", uri, err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) readHealth(ctx context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	var report any = map[string]string{"status": health.StatusOK}
	if s.deps.Health != nil {
		report = s.deps.Health.Run(ctx)
	}
	return jsonResource(HealthURI, report)
}

func (s *Server) readConfigSummary(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	summary := s.deps.ConfigSummary
	if summary == nil {
		summary = map[string]any{}
	}
	return jsonResource(ConfigSummaryURI, summary)
}
