package models

import "fmt"

// Page is the text of one page (or sheet) of a source document.
type Page struct {
	Source string
	Number int
	Text   string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	ID            string
	Content       string
	Source        string
	PageNumber    int
	ChunkID       int
	ParentID      string
	ParentContent string
	Section       string
}

// Context returns the text handed to the language model for this chunk.
// Child chunks of a hierarchical index expand to their parent window.
func (c Chunk) Context() string {
	if c.ParentContent != "" {
		return c.ParentContent
	}
	return c.Content
}

// Ref is a short human readable pointer back to the source page.
func (c Chunk) Ref() string {
	return fmt.Sprintf("%s p.%d", c.Source, c.PageNumber)
}

type ScoredChunk struct {
	Chunk
	Score float32
}

type PromptResponse struct {
	Query   string
	Source  string
	Content string
	Chunks  []ScoredChunk
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// MetaSection is the metadata key holding a chunk's section number.
const MetaSection = "section"

// SectionFilter builds a metadata filter restricting a search to one section.
func SectionFilter(section string) map[string]string {
	return map[string]string{MetaSection: section}
}
