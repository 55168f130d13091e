package knowledge

import "context"

// Type is the kind of knowledge a candidate carries.
type Type string

const (
	TypeProduct Type = "product"
	TypeFAQ     Type = "faq"
	TypePolicy  Type = "policy"
	TypeScript  Type = "script"
	TypeGeneral Type = "general"
)

// Candidate is one retrieved knowledge item with its scores.
type Candidate struct {
	ID           string            `json:"id,omitempty"`
	Text         string            `json:"text"`
	SourceID     string            `json:"source_id"`
	Type         Type              `json:"type,omitempty"`
	BaseScore    float64           `json:"base_score"`
	ContextBonus float64           `json:"context_bonus"`
	FinalScore   float64           `json:"final_score"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// RankContext is what the ranker knows about the user and session.
type RankContext struct {
	Tags          []string `json:"tags,omitempty"`
	SessionTopics []string `json:"session_topics,omitempty"`
	RecentQueries []string `json:"recent_queries,omitempty"`
}

// Source retrieves candidates with BaseScore already set.
type Source interface {
	Search(ctx context.Context, query string, limit int) ([]Candidate, error)
}

// Document is an item written into a vector-backed source.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Type     Type              `json:"type,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Payload keys shared by the vector-backed sources.
const (
	metaText  = "text"
	metaType  = "type"
	metaDocID = "doc_id"
)
