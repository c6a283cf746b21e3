package retrieval

// accumulator collects chunks across speculative searches, dropping chunks
// whose content was already seen while preserving first-seen order. The
// same text embedded from two documents counts as one chunk.
type accumulator struct {
	seen  map[string]struct{}
	items []Chunk
}

func newAccumulator() *accumulator {
	return &accumulator{seen: make(map[string]struct{})}
}

// add appends c unless a chunk with identical content came before it.
func (a *accumulator) add(c Chunk) bool {
	if _, dup := a.seen[c.Content]; dup {
		return false
	}
	a.seen[c.Content] = struct{}{}
	a.items = append(a.items, c)
	return true
}

// merge adds every chunk of cs and reports how many were new.
func (a *accumulator) merge(cs []Chunk) int {
	added := 0
	for _, c := range cs {
		if a.add(c) {
			added++
		}
	}
	return added
}

// replace resets the accumulator to exactly cs, re-deduplicating.
func (a *accumulator) replace(cs []Chunk) {
	a.seen = make(map[string]struct{}, len(cs))
	a.items = a.items[:0]
	for _, c := range cs {
		a.add(c)
	}
}

// where returns the accumulated chunks satisfying keep, in order.
func (a *accumulator) where(keep func(Chunk) bool) []Chunk {
	var out []Chunk
	for _, c := range a.items {
		if keep(c) {
			out = append(out, c)
		}
	}
	return out
}

func (a *accumulator) size() int { return len(a.items) }

// chunks returns the accumulated chunks in first-seen order. The slice is
// shared with the accumulator; callers must not grow it.
func (a *accumulator) chunks() []Chunk { return a.items }
