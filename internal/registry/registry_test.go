package registry

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/mnemo/internal/apperr"
)

type staticProvider struct {
	name  string
	tools []Descriptor
}

func (p staticProvider) Name() string        { return p.name }
func (p staticProvider) Tools() []Descriptor { return p.tools }

func echoTool(name string, calls *int) Descriptor {
	return Descriptor{
		Tool: mcp.NewTool(name,
			mcp.WithDescription("echo"),
			mcp.WithString("text", mcp.Required()),
			mcp.WithString("mode", mcp.Enum("upper", "lower")),
			mcp.WithNumber("count", mcp.Min(1), mcp.Max(5)),
		),
		Handler: func(_ context.Context, args Args) (any, error) {
			*calls++
			return map[string]any{"text": args.String("text", ""), "count": args.Int("count", 1)}, nil
		},
	}
}

func TestNewKeepsProviderOrder(t *testing.T) {
	var calls int
	r, err := New([]Provider{
		staticProvider{"a", []Descriptor{echoTool("one", &calls), echoTool("two", &calls)}},
		staticProvider{"b", []Descriptor{echoTool("three", &calls)}},
	})
	require.NoError(t, err)

	var names []string
	for _, tool := range r.List() {
		names = append(names, tool.Name)
	}
	assert.Equal(t, []string{"one", "two", "three"}, names)
	assert.Equal(t, 3, r.Len())
}

func TestNewRejectsDuplicates(t *testing.T) {
	var calls int
	_, err := New([]Provider{
		staticProvider{"notes", []Descriptor{echoTool("dup", &calls)}},
		staticProvider{"graph", []Descriptor{echoTool("dup", &calls)}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notes")
	assert.Contains(t, err.Error(), "graph")
}

func TestDispatch(t *testing.T) {
	var calls int
	r, err := New([]Provider{staticProvider{"a", []Descriptor{echoTool("echo", &calls)}}})
	require.NoError(t, err)

	out, err := r.Dispatch(context.Background(), "echo", map[string]any{"text": "hi", "count": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"text": "hi", "count": 3}, out)
	assert.Equal(t, 1, calls)

	_, err = r.Dispatch(context.Background(), "missing", nil)
	assert.ErrorIs(t, err, apperr.ErrUnknownTool)
	assert.Equal(t, 1, calls, "unknown tool must not reach a handler")
}

func TestDispatchWithoutValidationPassesBadArgs(t *testing.T) {
	var calls int
	r, err := New([]Provider{staticProvider{"a", []Descriptor{echoTool("echo", &calls)}}})
	require.NoError(t, err)

	_, err = r.Dispatch(context.Background(), "echo", map[string]any{"count": 99})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDispatchWithValidation(t *testing.T) {
	var calls int
	r, err := New([]Provider{staticProvider{"a", []Descriptor{echoTool("echo", &calls)}}}, WithValidation(true))
	require.NoError(t, err)

	tests := []struct {
		name string
		args map[string]any
		ok   bool
	}{
		{"valid", map[string]any{"text": "x", "mode": "upper", "count": 2}, true},
		{"extra keys allowed", map[string]any{"text": "x", "other": true}, true},
		{"missing required", map[string]any{"mode": "upper"}, false},
		{"bad enum", map[string]any{"text": "x", "mode": "sideways"}, false},
		{"below minimum", map[string]any{"text": "x", "count": 0}, false},
		{"above maximum", map[string]any{"text": "x", "count": 6}, false},
		{"wrong type", map[string]any{"text": 12}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Dispatch(context.Background(), "echo", tt.args)
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, apperr.ErrValidation)
			}
		})
	}
	assert.Equal(t, 2, calls)
}

func TestArgs(t *testing.T) {
	a := Args{
		"s":     "text",
		"n":     float64(4),
		"ns":    "7",
		"b":     "true",
		"list":  []any{"a", " b ", ""},
		"csv":   "x, y,,z",
		"obj":   map[string]any{"k": "v"},
		"json":  `{"k":"v"}`,
		"null":  nil,
		"float": 0.25,
	}
	assert.Equal(t, "text", a.String("s", ""))
	assert.Equal(t, "def", a.String("null", "def"))
	assert.Equal(t, 4, a.Int("n", 0))
	assert.Equal(t, 7, a.Int("ns", 0))
	assert.Equal(t, 9, a.Int("missing", 9))
	assert.True(t, a.Bool("b", false))
	assert.Equal(t, 0.25, a.Float("float", 0))
	assert.Equal(t, []string{"a", "b"}, a.Strings("list"))
	assert.Equal(t, []string{"x", "y", "z"}, a.Strings("csv"))
	assert.Nil(t, a.Strings("missing"))
	assert.Equal(t, map[string]any{"k": "v"}, a.Map("obj"))
	assert.Equal(t, map[string]any{"k": "v"}, a.Map("json"))
	assert.False(t, a.Has("null"))

	_, err := a.RequireString("missing")
	assert.ErrorIs(t, err, apperr.ErrValidation)
	s, err := a.RequireString("s")
	require.NoError(t, err)
	assert.Equal(t, "text", s)
}
