package parser

import (
	"fmt"
	"path/filepath"

	"copbot/internal/config"
	"copbot/internal/models"

	"github.com/tmc/langchaingo/textsplitter"
)

// Splitter cuts page text into overlapping windows. Lengths are counted in
// runes so Tamil text gets the same window size as English.
type Splitter struct {
	cfg config.RAGConfig
}

func NewSplitter(cfg config.RAGConfig) *Splitter {
	return &Splitter{cfg: cfg}
}

func newRecursive(size, overlap int) textsplitter.RecursiveCharacter {
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
	)
}

// Split chunks pages according to the configured strategy.
func (s *Splitter) Split(pages []models.Page) ([]models.Chunk, error) {
	if s.cfg.Strategy == config.StrategyHierarchical {
		return s.SplitHierarchical(pages)
	}
	return s.SplitPages(pages)
}

// SplitPages produces flat chunks of chunk_size runes with chunk_overlap.
func (s *Splitter) SplitPages(pages []models.Page) ([]models.Chunk, error) {
	splitter := newRecursive(s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	tracker := newSectionTracker()

	var chunks []models.Chunk
	for _, page := range pages {
		tracker.reset(page.Source)
		parts, err := splitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s page %d: %w", page.Source, page.Number, err)
		}
		for i, part := range parts {
			chunks = append(chunks, models.Chunk{
				ID:         fmt.Sprintf("%s-p%d-c%d", docKey(page.Source), page.Number, i+1),
				Content:    part,
				Source:     page.Source,
				PageNumber: page.Number,
				ChunkID:    i + 1,
				Section:    tracker.observe(part),
			})
		}
	}
	return chunks, nil
}

// SplitHierarchical cuts each page into large parent windows and every
// parent into small child windows. Only children are indexed; each child
// carries its parent's id and text.
func (s *Splitter) SplitHierarchical(pages []models.Page) ([]models.Chunk, error) {
	parentSplitter := newRecursive(s.cfg.ParentSize, s.cfg.ParentOverlap)
	childSplitter := newRecursive(s.cfg.ChildSize, s.cfg.ChildOverlap)
	tracker := newSectionTracker()

	var chunks []models.Chunk
	for _, page := range pages {
		tracker.reset(page.Source)
		parents, err := parentSplitter.SplitText(page.Text)
		if err != nil {
			return nil, fmt.Errorf("split %s page %d: %w", page.Source, page.Number, err)
		}
		for p, parent := range parents {
			parentID := fmt.Sprintf("%s-p%d-P%d", docKey(page.Source), page.Number, p+1)
			children, err := childSplitter.SplitText(parent)
			if err != nil {
				return nil, fmt.Errorf("split parent %s: %w", parentID, err)
			}
			for c, child := range children {
				chunks = append(chunks, models.Chunk{
					ID:            fmt.Sprintf("%s-c%d", parentID, c+1),
					Content:       child,
					Source:        page.Source,
					PageNumber:    page.Number,
					ChunkID:       c + 1,
					ParentID:      parentID,
					ParentContent: parent,
					Section:       tracker.observe(child),
				})
			}
		}
	}
	return chunks, nil
}

// docKey is the chunk id prefix for a source. Sources are paths relative
// to the data folder, so the full path (extension included) keeps files
// with equal names apart.
func docKey(source string) string {
	return filepath.ToSlash(source)
}
