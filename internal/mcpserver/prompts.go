package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const analyzeMemoryText = `Analyze what is known about %q.

1. Call recall_memory with query %q to gather stored memories and notes.
2. Call get_knowledge_graph with concept %q and depth %s to see related concepts.
3. Summarize the key facts, note contradictions or gaps, and suggest new
   knowledge links worth creating with create_knowledge_link.`

const storeObservationText = `Record the following observation as a memory.

Observation: %s
%s
Call store_memory with type "observation". Choose an importance between 0 and 1,
add a few short tags, and list any people, projects or concepts it mentions in
"entities". Report the per-store status from the result.`

func (s *Server) addPrompts() {
	s.mcp.AddPrompt(
		mcp.NewPrompt("analyze-memory",
			mcp.WithPromptDescription("Investigate a topic across stored memories and the knowledge graph."),
			mcp.WithArgument("topic", mcp.ArgumentDescription("Topic or concept to analyze"), mcp.RequiredArgument()),
			mcp.WithArgument("depth", mcp.ArgumentDescription("Knowledge graph depth, 1 to 5 (default 2)")),
		),
		s.analyzeMemory,
	)
	s.mcp.AddPrompt(
		mcp.NewPrompt("store-observation",
			mcp.WithPromptDescription("Turn an observation into a stored memory."),
			mcp.WithArgument("observation", mcp.ArgumentDescription("What was observed"), mcp.RequiredArgument()),
			mcp.WithArgument("context", mcp.ArgumentDescription("Where or when it was observed")),
		),
		s.storeObservation,
	)
}

func (s *Server) analyzeMemory(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	topic := strings.TrimSpace(req.Params.Arguments["topic"])
	if topic == "" {
		return nil, fmt.Errorf("analyze-memory: topic is required")
	}
	depth := strings.TrimSpace(req.Params.Arguments["depth"])
	if depth == "" {
		depth = "2"
	}
	return mcp.NewGetPromptResult(
		"Analyze memories about "+topic,
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(fmt.Sprintf(analyzeMemoryText, topic, topic, topic, depth))),
		},
	), nil
}

func (s *Server) storeObservation(_ context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	observation := strings.TrimSpace(req.Params.Arguments["observation"])
	if observation == "" {
		return nil, fmt.Errorf("store-observation: observation is required")
	}
	var where string
	if c := strings.TrimSpace(req.Params.Arguments["context"]); c != "" {
		where = "Context: " + c + "\n"
	}
	return mcp.NewGetPromptResult(
		"Store an observation",
		[]mcp.PromptMessage{
			mcp.NewPromptMessage(mcp.RoleUser, mcp.NewTextContent(fmt.Sprintf(storeObservationText, observation, where))),
		},
	), nil
}
