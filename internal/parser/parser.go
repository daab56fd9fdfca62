// Package parser reads and writes the flat front-matter block that may
// precede note content.
//
// The format is deliberately restricted: one key per line, values are
// bracketed flow lists, the literals true/false, or quoted/bare scalars.
// Nested maps and multi-line values are not recognised.
package parser

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const delim = "---"

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Title       string
}

// Parse extracts front-matter, body and a display title from raw Markdown bytes.
func Parse(data []byte) *Result {
	fm, body := splitFrontmatter(string(data))
	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
	}
}

// splitFrontmatter separates the front-matter block (between leading ---
// lines) from the body. Without a complete block the whole input is body.
func splitFrontmatter(content string) (map[string]any, string) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	if !strings.HasPrefix(normalized, delim+"\n") {
		return nil, content
	}

	rest := normalized[len(delim)+1:]
	var block, body string
	switch {
	case strings.HasPrefix(rest, delim+"\n") || rest == delim:
		// Empty block.
		body = strings.TrimPrefix(rest, delim)
	default:
		idx := strings.Index(rest, "\n"+delim+"\n")
		if idx < 0 {
			if !strings.HasSuffix(rest, "\n"+delim) {
				return nil, content
			}
			idx = len(rest) - len(delim) - 1
		}
		block = rest[:idx]
		body = rest[min(idx+len(delim)+2, len(rest)):]
	}

	return scan(block), strings.TrimLeft(body, "\n")
}

// scan is a single pass key:value reader over the front-matter block.
func scan(block string) map[string]any {
	fm := make(map[string]any)
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, raw, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		fm[key] = scalarOrList(strings.TrimSpace(raw))
	}
	return fm
}

func scalarOrList(raw string) any {
	switch {
	case strings.HasPrefix(raw, "[") && strings.HasSuffix(raw, "]"):
		return parseList(raw)
	case raw == "true":
		return true
	case raw == "false":
		return false
	default:
		return unquote(raw)
	}
}

// parseList reads a bracketed list as a YAML flow sequence, so quoted
// items may hold commas. Lists YAML rejects are split on commas outside
// double quotes. Empty items are dropped.
func parseList(raw string) []string {
	var decoded []string
	if err := yaml.Unmarshal([]byte(raw), &decoded); err != nil {
		decoded = splitList(raw[1 : len(raw)-1])
	}
	items := []string{}
	for _, item := range decoded {
		if item != "" {
			items = append(items, item)
		}
	}
	return items
}

func splitList(inner string) []string {
	var (
		parts   []string
		start   int
		quoted  bool
		escaped bool
	)
	for i := 0; i < len(inner); i++ {
		switch c := inner[i]; {
		case escaped:
			escaped = false
		case c == '\\' && quoted:
			escaped = true
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			parts = append(parts, unquote(strings.TrimSpace(inner[start:i])))
			start = i + 1
		}
	}
	return append(parts, unquote(strings.TrimSpace(inner[start:])))
}

func unquote(s string) string {
	if len(s) >= 2 {
		if s[0] == '"' && s[len(s)-1] == '"' {
			if u, err := strconv.Unquote(s); err == nil {
				return u
			}
			return s[1 : len(s)-1]
		}
		if s[0] == '\'' && s[len(s)-1] == '\'' {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// keyOrder puts the common keys first; the rest follow alphabetically.
var keyOrder = map[string]int{"title": 0, "created": 1, "updated": 2, "tags": 3}

// Render serialises fm above body. Lists are written as quoted bracket
// lists, booleans bare, every other scalar quoted. A nil or empty fm
// returns body unchanged.
func Render(fm map[string]any, body string) string {
	if len(fm) == 0 {
		return body
	}
	keys := make([]string, 0, len(fm))
	for k := range fm {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := keyOrder[keys[i]]
		oj, jok := keyOrder[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})

	var b strings.Builder
	b.WriteString(delim + "\n")
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(renderValue(fm[k]))
		b.WriteByte('\n')
	}
	b.WriteString(delim + "\n\n")
	b.WriteString(body)
	return b.String()
}

func renderValue(v any) string {
	switch val := v.(type) {
	case bool:
		return strconv.FormatBool(val)
	case []string:
		return renderList(val)
	case []any:
		items := make([]string, len(val))
		for i, item := range val {
			items[i] = fmt.Sprint(item)
		}
		return renderList(items)
	case nil:
		return `""`
	default:
		return strconv.Quote(fmt.Sprint(val))
	}
}

func renderList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = strconv.Quote(item)
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

// HasTag reports whether the front-matter "tags" (or "tag") value equals
// tag or, when it is a list, contains it.
func HasTag(fm map[string]any, tag string) bool {
	for _, key := range []string{"tags", "tag"} {
		switch v := fm[key].(type) {
		case string:
			if v == tag {
				return true
			}
		case []string:
			for _, t := range v {
				if t == tag {
					return true
				}
			}
		}
	}
	return false
}

// deriveTitle returns the front-matter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if t, ok := fm["title"].(string); ok && t != "" {
		return t
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
