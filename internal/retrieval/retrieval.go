// Package retrieval selects the indexed document chunks that ground an
// answer. It layers query reformulation, metadata filtering and fallback
// cascades on top of a plain similarity index so that metadata-style
// requests ("what is on page 7 of the manual?") work against an index
// that only understands semantic closeness.
package retrieval

import (
	"context"
	"path/filepath"
	"strings"
)

// Chunk is one unit of indexed document text together with its attribution.
type Chunk struct {
	Content string
	// Source is the originating document filename, empty when unknown.
	Source string
	// Page is the 1-based page number, 0 when unknown.
	Page int
}

// Index is the similarity search the pipeline runs against. Implementations
// return the closest chunks first, tolerate an empty query by matching
// broadly, and must be safe for concurrent readers.
type Index interface {
	Search(ctx context.Context, query string, k int) ([]Chunk, error)
}

// Config holds the pipeline tunables. Zero fields fall back to the
// DefaultConfig values when a Retriever or PageExtractor is built.
type Config struct {
	// MinPageResults is how many page chunks the extractor wants before it
	// stops reformulating queries.
	MinPageResults int
	// PageQueryK is the result count for page-targeted queries.
	PageQueryK int
	// DocQueryK is the result count for document-targeted queries.
	DocQueryK int
	// BroadQueryK is the result count for the catch-all empty query.
	BroadQueryK int
	// ScanK is the result count for the last-resort index scan.
	ScanK int
	// FanOutK is the per-query result count of the question fan-out.
	FanOutK int
	// SourceFallbackK is the result count of the source narrowing fallback.
	SourceFallbackK int
	// DefaultK caps the final result when the caller does not.
	DefaultK int
}

// DefaultConfig returns the tunables used in production.
func DefaultConfig() Config {
	return Config{
		MinPageResults:  5,
		PageQueryK:      5,
		DocQueryK:       50,
		BroadQueryK:     100,
		ScanK:           500,
		FanOutK:         10,
		SourceFallbackK: 50,
		DefaultK:        3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPageResults < 1 {
		c.MinPageResults = d.MinPageResults
	}
	if c.PageQueryK < 1 {
		c.PageQueryK = d.PageQueryK
	}
	if c.DocQueryK < 1 {
		c.DocQueryK = d.DocQueryK
	}
	if c.BroadQueryK < 1 {
		c.BroadQueryK = d.BroadQueryK
	}
	if c.ScanK < 1 {
		c.ScanK = d.ScanK
	}
	if c.FanOutK < 1 {
		c.FanOutK = d.FanOutK
	}
	if c.SourceFallbackK < 1 {
		c.SourceFallbackK = d.SourceFallbackK
	}
	if c.DefaultK < 1 {
		c.DefaultK = d.DefaultK
	}
	return c
}

// baseName strips the extension from a document filename so it can be used
// inside reformulated queries ("report.pdf" becomes "report").
func baseName(source string) string {
	return strings.TrimSuffix(source, filepath.Ext(source))
}

// contents returns the text of up to k chunks, preserving order.
func contents(chunks []Chunk, k int) []string {
	if k > len(chunks) {
		k = len(chunks)
	}
	out := make([]string, 0, k)
	for _, c := range chunks[:k] {
		out = append(out, c.Content)
	}
	return out
}
