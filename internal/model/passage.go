package model

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// UnknownSource is the provenance used when a passage carries no document identifier.
const UnknownSource = "unknown"

// Passage is a unit of retrieved evidence with its provenance.
// Passages are consumed immediately to build the research summary.
type Passage struct {
	Content string `json:"content"`
	Source  string `json:"source"`
	Page    int    `json:"page"`
}

// Normalize applies provenance defaults: an empty source becomes
// UnknownSource and a negative page becomes 0.
func (p Passage) Normalize() Passage {
	p.Source = strings.TrimSpace(p.Source)
	if p.Source == "" {
		p.Source = UnknownSource
	}
	if p.Page < 0 {
		p.Page = 0
	}
	return p
}

// Citation returns the tag drafts copy verbatim, e.g. "[Source: doc.pdf, page: 3]".
func (p Passage) Citation() string {
	return fmt.Sprintf("[Source: %s, page: %d]", p.Source, p.Page)
}

// ParsePage converts loosely typed page metadata into a page number.
// Missing or unparsable values yield 0.
func ParsePage(v any) int {
	switch n := v.(type) {
	case int:
		return max(n, 0)
	case int32:
		return max(int(n), 0)
	case int64:
		return max(int(n), 0)
	case float32:
		return max(int(n), 0)
	case float64:
		return max(int(n), 0)
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0
		}
		return max(i, 0)
	default:
		return 0
	}
}

// Chunk is an indexed slice of a source document: the passage it yields at
// query time plus the embedding it is found by.
type Chunk struct {
	ID        uuid.UUID
	Passage   Passage
	Embedding []float32
}

// ChunkID derives a stable chunk ID from its provenance and position so
// re-ingesting the same document overwrites rather than duplicates.
func ChunkID(source string, page, ordinal int) uuid.UUID {
	return uuid.NewSHA1(chunkNamespace, fmt.Appendf(nil, "%s\x00%d\x00%d", source, page, ordinal))
}

var chunkNamespace = uuid.MustParse("5d0f4c1e-8f6b-4b7e-9a43-1c2f7d9a6e10")
