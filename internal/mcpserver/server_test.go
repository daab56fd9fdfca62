package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mnemo/internal/health"
	"github.com/starford/mnemo/internal/notes"
	"github.com/starford/mnemo/internal/registry"
	"github.com/starford/mnemo/internal/testutil"
	"github.com/starford/mnemo/internal/tools"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, vault := testutil.TestVault(t)

	reg, err := registry.New([]registry.Provider{tools.NewNotes(notes.NewService(vault))})
	require.NoError(t, err)

	checker := health.NewChecker(log)
	checker.Add("vault", func(context.Context) (string, error) { return "", nil })
	checker.Add("graph", func(context.Context) (string, error) { return "", errors.New("connection refused") })
	checker.Disabled("inference")

	srv := New(Deps{
		Name:          "mnemo",
		Version:       "test",
		Registry:      reg,
		Health:        checker,
		ConfigSummary: map[string]any{"graph": map[string]any{"password": "***"}},
		Logger:        log,
	})

	resp := rpc(t, srv, "initialize", map[string]any{
		"protocolVersion": "2024-11-05",
		"clientInfo":      map[string]any{"name": "test", "version": "1"},
		"capabilities":    map[string]any{},
	})
	require.Contains(t, resp, "result")
	return srv
}

var nextID int

// rpc sends one JSON-RPC request and returns the decoded response.
func rpc(t *testing.T, srv *Server, method string, params any) map[string]any {
	t.Helper()
	nextID++
	msg, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"id":      nextID,
		"method":  method,
		"params":  params,
	})
	require.NoError(t, err)

	resp := srv.MCPServer().HandleMessage(context.Background(), msg)
	require.NotNil(t, resp)
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out))
	return out
}

func result(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	res, ok := resp["result"].(map[string]any)
	require.True(t, ok, "no result in %v", resp)
	return res
}

// callText calls a tool and returns its first text block and error flag.
func callText(t *testing.T, srv *Server, name string, args map[string]any) (string, bool) {
	t.Helper()
	res := result(t, rpc(t, srv, "tools/call", map[string]any{"name": name, "arguments": args}))
	content, _ := res["content"].([]any)
	require.NotEmpty(t, content)
	block := content[0].(map[string]any)
	isErr, _ := res["isError"].(bool)
	return fmt.Sprint(block["text"]), isErr
}

func TestToolsListMatchesRegistry(t *testing.T) {
	srv := testServer(t)
	res := result(t, rpc(t, srv, "tools/list", map[string]any{}))

	list, _ := res["tools"].([]any)
	names := make([]string, 0, len(list))
	for _, item := range list {
		names = append(names, item.(map[string]any)["name"].(string))
	}
	assert.ElementsMatch(t, []string{
		"read_note", "write_note", "append_note", "list_notes",
		"search_notes", "create_note", "delete_note",
	}, names)
}

func TestToolCallReturnsJSON(t *testing.T) {
	srv := testServer(t)

	text, isErr := callText(t, srv, "create_note", map[string]any{
		"filename": "ideas.md",
		"title":    "Ideas",
		"content":  "graph memory",
	})
	require.False(t, isErr, text)

	text, isErr = callText(t, srv, "search_notes", map[string]any{"query": "graph"})
	require.False(t, isErr, text)

	var out struct {
		Count   int `json:"count"`
		Results []struct {
			Path string `json:"path"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(text), &out))
	require.Equal(t, 1, out.Count)
	assert.Equal(t, "ideas.md", out.Results[0].Path)
}

func TestToolFailureIsErrorResult(t *testing.T) {
	srv := testServer(t)

	text, isErr := callText(t, srv, "read_note", map[string]any{"filename": "missing.md"})
	assert.True(t, isErr)
	assert.True(t, strings.HasPrefix(text, "NoteNotFound"), text)

	// The connection stays usable after a failed call.
	res := result(t, rpc(t, srv, "tools/list", map[string]any{}))
	assert.NotEmpty(t, res["tools"])
}

func TestUnknownToolIsProtocolError(t *testing.T) {
	srv := testServer(t)
	resp := rpc(t, srv, "tools/call", map[string]any{"name": "nope", "arguments": map[string]any{}})
	assert.Contains(t, resp, "error")
	assert.NotContains(t, resp, "result")

	// The session keeps serving after the rejected call.
	text, isErr := callText(t, srv, "list_notes", map[string]any{})
	assert.False(t, isErr, text)
	res := result(t, rpc(t, srv, "tools/list", map[string]any{}))
	assert.NotEmpty(t, res["tools"])
}

func readResource(t *testing.T, srv *Server, uri string) map[string]any {
	t.Helper()
	res := result(t, rpc(t, srv, "resources/read", map[string]any{"uri": uri}))
	contents, _ := res["contents"].([]any)
	require.Len(t, contents, 1)
	block := contents[0].(map[string]any)
	assert.Equal(t, "application/json", block["mimeType"])

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(block["text"].(string)), &doc))
	return doc
}

func TestHealthResource(t *testing.T) {
	srv := testServer(t)
	doc := readResource(t, srv, HealthURI)

	assert.Equal(t, health.StatusDegraded, doc["status"])
	checks := doc["checks"].(map[string]any)
	assert.Equal(t, health.StatusOK, checks["vault"].(map[string]any)["status"])
	assert.Equal(t, health.StatusDown, checks["graph"].(map[string]any)["status"])
	assert.Equal(t, health.StatusDisabled, checks["inference"].(map[string]any)["status"])
}

func TestConfigSummaryResource(t *testing.T) {
	srv := testServer(t)
	doc := readResource(t, srv, ConfigSummaryURI)
	assert.Equal(t, "***", doc["graph"].(map[string]any)["password"])
}

func TestResourcesList(t *testing.T) {
	srv := testServer(t)
	res := result(t, rpc(t, srv, "resources/list", map[string]any{}))
	list, _ := res["resources"].([]any)
	var uris []string
	for _, item := range list {
		uris = append(uris, item.(map[string]any)["uri"].(string))
	}
	assert.ElementsMatch(t, []string{HealthURI, ConfigSummaryURI}, uris)
}

func promptText(t *testing.T, srv *Server, name string, args map[string]string) string {
	t.Helper()
	res := result(t, rpc(t, srv, "prompts/get", map[string]any{"name": name, "arguments": args}))
	messages, _ := res["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	return msg["content"].(map[string]any)["text"].(string)
}

func TestPrompts(t *testing.T) {
	srv := testServer(t)

	text := promptText(t, srv, "analyze-memory", map[string]string{"topic": "Go"})
	assert.Contains(t, text, "recall_memory")
	assert.Contains(t, text, `concept "Go" and depth 2`)

	text = promptText(t, srv, "analyze-memory", map[string]string{"topic": "Go", "depth": "4"})
	assert.Contains(t, text, "depth 4")

	text = promptText(t, srv, "store-observation", map[string]string{
		"observation": "the cache is cold after deploys",
		"context":     "release review",
	})
	assert.Contains(t, text, "the cache is cold after deploys")
	assert.Contains(t, text, "Context: release review")
	assert.Contains(t, text, "store_memory")
}

func TestPromptMissingArgument(t *testing.T) {
	srv := testServer(t)
	resp := rpc(t, srv, "prompts/get", map[string]any{"name": "analyze-memory", "arguments": map[string]string{}})
	assert.Contains(t, resp, "error")
}
