package kenkyu

// Passage is the public representation of a unit of retrieved evidence.
// No internal package imports, so extension code can construct it directly.
type Passage struct {
	Content string
	Source  string // Document identifier; empty becomes "unknown".
	Page    int    // Zero when the source has no pages.
}
