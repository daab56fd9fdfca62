package models

// Entity is a labelled node in the graph store. ID is assigned by the store.
type Entity struct {
	ID         string         `json:"id"`
	Label      string         `json:"label"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties"`
	CreatedAt  string         `json:"createdAt,omitempty"`
	UpdatedAt  string         `json:"updatedAt,omitempty"`
}

// Relationship is a directed, typed edge between two entities.
type Relationship struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Properties map[string]any `json:"properties"`
}

// Memory is the graph-side view of a stored memory entity.
type Memory struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Type       string   `json:"type"`
	Importance float64  `json:"importance"`
	Source     string   `json:"source,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	CreatedAt  string   `json:"createdAt"`
	UpdatedAt  string   `json:"updatedAt,omitempty"`
}

// Memory types accepted by store_memory.
const (
	MemoryFact        = "fact"
	MemoryConcept     = "concept"
	MemoryEvent       = "event"
	MemoryObservation = "observation"
	MemoryTask        = "task"
)

// MemoryTypes lists every accepted memory type.
var MemoryTypes = []string{MemoryFact, MemoryConcept, MemoryEvent, MemoryObservation, MemoryTask}

// Labels and relationship types the orchestrator writes.
const (
	LabelMemory  = "Memory"
	LabelTag     = "Tag"
	LabelConcept = "Concept"
	LabelEntity  = "Entity"

	RelTaggedWith = "TAGGED_WITH"
	RelMentions   = "MENTIONS"
)
