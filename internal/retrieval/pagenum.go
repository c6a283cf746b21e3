package retrieval

import (
	"regexp"
	"strconv"
)

// pagePattern pairs one way of writing a page reference with the code that
// pulls the number out of its match. Patterns are tried in order and the
// first one that matches and extracts wins, so the canonical spelling
// outranks the misspelling-tolerant one.
type pagePattern struct {
	re      *regexp.Regexp
	extract func(groups []string) (int, bool)
}

var pagePatterns = []pagePattern{
	// "page 12", "Page number 12", "page12"
	{regexp.MustCompile(`(?i)page\s*(?:number)?\s*(\d+)`), captureInt},
	// tolerates misspellings such as "paage 3" or "pge 3"
	{regexp.MustCompile(`(?i)p[ag]+e\s*(?:number)?\s*(\d+)`), captureInt},
}

func captureInt(groups []string) (int, bool) {
	if len(groups) < 2 {
		return 0, false
	}
	n, err := strconv.Atoi(groups[1])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// detectPage scans free text for an implicit page reference and returns the
// 1-based page number when one is found. A number too large for int counts
// as no reference at all.
func detectPage(question string) (int, bool) {
	for _, p := range pagePatterns {
		m := p.re.FindStringSubmatch(question)
		if m == nil {
			continue
		}
		if n, ok := p.extract(m); ok {
			return n, true
		}
	}
	return 0, false
}
