package qa

import (
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// pageRefPatterns accept common page phrasings and the misspellings seen in
// real questions, like "pg 5" and "paage 5".
var pageRefPatterns = []*regexp.Regexp{
	regexp.MustCompile(`p(?:age|g|aage)\.?\s*(?:number)?\s*(\d+)`),
	regexp.MustCompile(`on\s+p(?:age|g|aage)\s+(\d+)`),
	regexp.MustCompile(`from\s+p(?:age|g|aage)\s+(\d+)`),
	regexp.MustCompile(`at\s+p(?:age|g|aage)\s+(\d+)`),
	regexp.MustCompile(`in\s+p(?:age|g|aage)\s+(\d+)`),
	regexp.MustCompile(`content\s+(?:of|from|on)\s+p(?:age|g|aage)\s+(\d+)`),
}

// ExtractPageNumber pulls a page reference out of a question. It reports
// false when the question names no usable page.
func ExtractPageNumber(question string) (int, bool) {
	q := strings.ToLower(question)
	for _, re := range pageRefPatterns {
		m := re.FindStringSubmatch(q)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil || n < 1 {
			continue
		}
		return n, true
	}
	return 0, false
}

// PickSource matches a question against the known document filenames. It
// tries an exact base-name mention first, then fuzzy word matches, then the
// closest overall filename.
func PickSource(question string, filenames []string) string {
	if len(filenames) == 0 {
		return ""
	}

	q := strings.ToLower(question)
	bases := make([]string, len(filenames))
	for i, f := range filenames {
		bases[i] = strings.ToLower(strings.TrimSuffix(f, filepath.Ext(f)))
	}

	for i, base := range bases {
		if base != "" && strings.Contains(q, base) {
			return filenames[i]
		}
	}

	words := strings.Fields(q)
	for i, base := range bases {
		for _, word := range words {
			if len(word) <= 3 {
				continue
			}
			if !strings.Contains(base, word) && !strings.Contains(word, base) {
				continue
			}
			if similarity(word, base) > 0.7 {
				return filenames[i]
			}
		}
	}

	best := ""
	bestScore := 0.5
	for i, base := range bases {
		if score := similarity(q, base); score >= bestScore && (best == "" || score > bestScore) {
			best = filenames[i]
			bestScore = score
		}
	}
	return best
}

// similarity is an edit-distance ratio in [0, 1].
func similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	longest := utf8.RuneCountInString(a)
	if n := utf8.RuneCountInString(b); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

var pageContentRe = regexp.MustCompile(`(what|show|tell|give|display).*(on|in|at|from)\s+page`)

var pageContentPhrases = []string{
	"page content",
	"content of page",
	"text on page",
	"text from page",
	"what is on page",
	"what's on page",
}

var analysisRe = regexp.MustCompile(`(explain|describe|summarize|analyze)`)

// IsPageContentRequest reports whether the question asks for the text of a
// page rather than an answer about it. A page reference without any
// analysis wording counts as a content request.
func IsPageContentRequest(question string, page int, exactPage bool) bool {
	if page < 1 {
		return false
	}
	if exactPage {
		return true
	}
	q := strings.ToLower(question)
	if pageContentRe.MatchString(q) {
		return true
	}
	for _, phrase := range pageContentPhrases {
		if strings.Contains(q, phrase) {
			return true
		}
	}
	return !analysisRe.MatchString(q)
}
