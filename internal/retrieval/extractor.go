package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// strategy is one similarity query in a fallback cascade.
type strategy struct {
	query string
	k     int
}

// runCascade executes strategies in order, adding results that pass keep to
// acc, and stops as soon as acc holds at least want chunks (want <= 0 runs
// every strategy). A failing query is logged, counted and skipped; the
// cascade itself never fails.
func runCascade(ctx context.Context, idx Index, errs *atomic.Uint64, acc *accumulator, strategies []strategy, keep func(Chunk) bool, want int) {
	for _, s := range strategies {
		found, err := idx.Search(ctx, s.query, s.k)
		if err != nil {
			errs.Add(1)
			log.Debug().Err(err).Str("query", s.query).Int("k", s.k).Msg("Retrieval strategy failed")
			continue
		}
		for _, c := range found {
			if keep(c) {
				acc.add(c)
			}
		}
		if want > 0 && acc.size() >= want {
			return
		}
	}
}

// PageExtractor retrieves every chunk belonging to one page of one document.
// A similarity index ranks by semantic closeness, not by metadata, so the
// extractor walks a cascade of reformulated queries, from narrow to broad,
// filtering each batch down to the exact source and page.
type PageExtractor struct {
	index Index
	cfg   Config
	errs  atomic.Uint64
}

func NewPageExtractor(index Index, cfg Config) *PageExtractor {
	return &PageExtractor{index: index, cfg: cfg.withDefaults()}
}

// Extract returns the deduplicated chunks whose source and page match
// exactly, in the order the cascade found them. The result is not capped.
// An empty source returns nil without touching the index, and an
// unreachable index yields an empty result, never an error.
func (e *PageExtractor) Extract(ctx context.Context, source string, page int) []Chunk {
	if source == "" {
		return nil
	}
	base := baseName(source)
	keep := func(c Chunk) bool { return c.Source == source && c.Page == page }

	acc := newAccumulator()
	runCascade(ctx, e.index, &e.errs, acc, []strategy{
		{fmt.Sprintf("content from page %d of %s", page, base), e.cfg.PageQueryK},
		{fmt.Sprintf("page %d", page), e.cfg.PageQueryK},
		{"document " + base, e.cfg.DocQueryK},
		{base, e.cfg.DocQueryK},
		{"", e.cfg.BroadQueryK},
	}, keep, e.cfg.MinPageResults)

	// last resort for pages with fewer chunks than the threshold
	if acc.size() < e.cfg.MinPageResults {
		runCascade(ctx, e.index, &e.errs, acc, []strategy{{"", e.cfg.ScanK}}, keep, 0)
	}

	log.Debug().Str("source", source).Int("page", page).Int("chunks", acc.size()).Msg("Page extraction finished")
	return acc.chunks()
}

// IndexErrors reports how many index queries failed and were skipped since
// the extractor was created. A climbing count alongside empty results points
// at a broken index rather than a missing page.
func (e *PageExtractor) IndexErrors() uint64 {
	return e.errs.Load()
}
