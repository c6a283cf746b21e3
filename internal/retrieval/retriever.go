package retrieval

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// FailureNotice is the single entry returned in place of context when the
// index cannot be queried at all. It is prose on purpose: downstream
// consumers hand the context to a language model or a user verbatim.
const FailureNotice = "Error retrieving document context. Please check your query and try again."

// Options carries the optional constraints of one retrieval call.
type Options struct {
	// K caps the number of returned entries. DefaultK applies when K <= 0.
	K int
	// Source restricts results to one document filename when set.
	Source string
	// Page restricts results to one 1-based page when > 0.
	Page int
}

// Retriever turns a free-text question into the chunk contents used to
// ground an answer. It never returns an error: index failures surface as a
// single FailureNotice entry so callers always get a usable sequence.
type Retriever struct {
	index     Index
	extractor *PageExtractor
	cfg       Config
	errs      atomic.Uint64
}

func NewRetriever(index Index, cfg Config) *Retriever {
	return &Retriever{
		index:     index,
		extractor: NewPageExtractor(index, cfg),
		cfg:       cfg.withDefaults(),
	}
}

// Retrieve returns the contents of at most opts.K chunks relevant to
// question, deduplicated, most relevant first. An empty question returns an
// empty result without touching the index.
//
// When both a source and a page are known the question itself is ignored
// and the page content wins. A page reference written into the question
// ("what is on page 7?") is honored the same way an explicit Options.Page
// would be.
func (r *Retriever) Retrieve(ctx context.Context, question string, opts Options) []string {
	if question == "" {
		return nil
	}
	k := opts.K
	if k <= 0 {
		k = r.cfg.DefaultK
	}

	// Page content requests skip the question pipeline entirely.
	if opts.Source != "" && opts.Page > 0 {
		if page := r.extractor.Extract(ctx, opts.Source, opts.Page); len(page) > 0 {
			return contents(page, k)
		}
	}

	page := opts.Page
	if page == 0 {
		if n, ok := detectPage(question); ok {
			page = n
			log.Debug().Int("page", n).Msg("Detected page reference in question")
		}
	}

	acc := newAccumulator()
	if err := r.fanOut(ctx, acc, question, opts.Source, page); err != nil {
		r.errs.Add(1)
		log.Error().Err(err).Str("question", question).Msg("Context retrieval failed")
		return []string{FailureNotice}
	}

	if opts.Source != "" {
		r.narrowToSource(ctx, acc, opts.Source, k)
	}
	if page > 0 {
		r.narrowToPage(ctx, acc, opts.Source, page)
	}

	return contents(acc.chunks(), k)
}

// PageChunks exposes whole-page extraction with attribution intact, for
// callers that need chunks rather than capped question context.
func (r *Retriever) PageChunks(ctx context.Context, source string, page int) []Chunk {
	return r.extractor.Extract(ctx, source, page)
}

// IndexErrors reports how many index failures were swallowed or converted
// into a FailureNotice since the retriever was created, the page
// extractor's included.
func (r *Retriever) IndexErrors() uint64 {
	return r.errs.Load() + r.extractor.IndexErrors()
}

// fanOut runs the question query set against the index and accumulates
// everything. Unlike the cascades, a failure here aborts the whole call;
// the caller converts it into the FailureNotice response.
func (r *Retriever) fanOut(ctx context.Context, acc *accumulator, question, source string, page int) error {
	queries := []string{
		question,
		question + " content details",
		question + " content information",
	}
	if source != "" {
		base := baseName(source)
		queries = append(queries,
			base+" content details",
			base+" content information",
		)
	}
	if page > 0 {
		queries = append(queries, fmt.Sprintf("content on page %d", page))
	}

	for _, q := range queries {
		found, err := r.index.Search(ctx, q, r.cfg.FanOutK)
		if err != nil {
			return fmt.Errorf("search %q: %w", q, err)
		}
		acc.merge(found)
	}
	return nil
}

// narrowToSource keeps only the chunks of source when enough accumulated,
// and otherwise merges one extra source-biased query into the accumulator
// without discarding the broader results.
func (r *Retriever) narrowToSource(ctx context.Context, acc *accumulator, source string, k int) {
	fromSource := func(c Chunk) bool { return c.Source == source }

	matching := acc.where(fromSource)
	if len(matching) >= min(3, k) {
		acc.replace(matching)
		return
	}
	runCascade(ctx, r.index, &r.errs, acc,
		[]strategy{{"document " + baseName(source), r.cfg.SourceFallbackK}},
		fromSource, 0)
}

// narrowToPage restricts the accumulator to the requested page, falling
// back to the dedicated extractor when nothing accumulated matches.
func (r *Retriever) narrowToPage(ctx context.Context, acc *accumulator, source string, page int) {
	matching := acc.where(func(c Chunk) bool { return c.Page == page })
	if len(matching) > 0 {
		acc.replace(matching)
		return
	}
	acc.merge(r.extractor.Extract(ctx, source, page))
}
