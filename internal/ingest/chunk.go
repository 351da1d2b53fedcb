// Package ingest turns extracted document text into embedded chunks and
// writes them to a retrieval index.
package ingest

import (
	"fmt"
	"strings"
	"unicode"
)

// Default chunking parameters, in runes.
const (
	DefaultChunkSize    = 1024
	DefaultChunkOverlap = 120
)

// PageBreak separates pages in extracted text, as emitted by pdftotext.
const PageBreak = "\f"

// Splitter cuts text into overlapping windows of at most Size runes.
// Cuts prefer paragraph breaks, then line breaks, then spaces, falling back
// to a hard cut when a window has no break in its second half.
type Splitter struct {
	Size    int
	Overlap int
}

// NewSplitter validates and returns a Splitter.
func NewSplitter(size, overlap int) (Splitter, error) {
	if size <= 0 {
		return Splitter{}, fmt.Errorf("ingest: chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return Splitter{}, fmt.Errorf("ingest: chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return Splitter{Size: size, Overlap: overlap}, nil
}

// Split returns the chunks of text in order. Whitespace-only chunks are dropped.
func (s Splitter) Split(text string) []string {
	runes := []rune(text)
	var chunks []string
	start := 0
	for start < len(runes) {
		end := min(start+s.Size, len(runes))
		if end < len(runes) {
			end = breakPoint(runes, start, end)
		}
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if end == len(runes) {
			break
		}
		// The overlap starts at a word boundary, so it may be shorter than Overlap.
		next := end - s.Overlap
		for next < end && next > 0 && !unicode.IsSpace(runes[next-1]) {
			next++
		}
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// breakPoint finds the best cut in runes[start:end], searching only the
// second half of the window so chunks never shrink below half size.
func breakPoint(runes []rune, start, end int) int {
	floor := start + (end-start)/2
	for _, sep := range []string{"\n\n", "\n"} {
		if i := lastIndex(runes, floor, end, []rune(sep)); i >= 0 {
			return i + len(sep)
		}
	}
	for i := end - 1; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return i + 1
		}
	}
	return end
}

func lastIndex(runes []rune, lo, hi int, sep []rune) int {
	for i := hi - len(sep); i >= lo; i-- {
		match := true
		for j, r := range sep {
			if runes[i+j] != r {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

// Page is one page of a document; Number is 1-based.
type Page struct {
	Number int
	Text   string
}

// Pages splits extracted text on form feeds. Text without form feeds is a
// single page 1. Blank pages keep their number but are omitted.
func Pages(text string) []Page {
	raw := strings.Split(text, PageBreak)
	pages := make([]Page, 0, len(raw))
	for i, p := range raw {
		if strings.TrimSpace(p) == "" {
			continue
		}
		pages = append(pages, Page{Number: i + 1, Text: p})
	}
	return pages
}
