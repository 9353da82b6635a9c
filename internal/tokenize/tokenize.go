// Package tokenize splits a full_text_search query into the ASCII
// identifier tokens and CJK n-grams the Store's lexical path needs,
// following the general tokenizer-code shape (regex split plus a
// stopword map) common across this codebase.
package tokenize

import (
	"regexp"
	"strings"
	"unicode"
)

var asciiTokenRegex = regexp.MustCompile(`[A-Za-z0-9_]+`)

// DefaultEnglishStopWords is a small fixed English stopword set applied
// to ASCII tokens. English and CJK stopwords are treated as
// configurable data, not code-baked logic — both sets live here as
// plain slices a caller may override.
var DefaultEnglishStopWords = []string{
	"a", "an", "the", "and", "or", "but", "is", "are", "was", "were",
	"be", "been", "to", "of", "in", "on", "at", "for", "with", "by",
	"it", "this", "that", "as", "from",
}

// DefaultCJKStopWords is a small fixed CJK stopword set (common
// particles/copulas across Chinese/Japanese) applied to CJK n-grams.
var DefaultCJKStopWords = []string{
	"的", "了", "是", "在", "和", "也", "就", "都", "这", "那",
	"です", "ます", "これ", "それ",
}

// Query is a tokenized full_text_search query.
type Query struct {
	// ASCIITokens are lowercase identifier-form tokens, stopword-filtered,
	// to be issued as a disjunctive FTS5 phrase query.
	ASCIITokens []string
	// CJKNgrams are bigrams and trigrams from contiguous CJK runs,
	// stopword-filtered, to be matched by substring.
	CJKNgrams []string
	// Raw is the original, trimmed query string, used for the final
	// whole-query substring fallback.
	Raw string
}

// Empty reports whether the query produced no tokens of either kind and
// its raw text is blank.
func (q Query) Empty() bool {
	return len(q.ASCIITokens) == 0 && len(q.CJKNgrams) == 0 && strings.TrimSpace(q.Raw) == ""
}

// Options overrides the default stopword sets.
type Options struct {
	EnglishStopWords []string
	CJKStopWords     []string
}

// Tokenize splits query into its ASCII-identifier and CJK-ngram paths.
func Tokenize(query string, opts Options) Query {
	english := opts.EnglishStopWords
	if english == nil {
		english = DefaultEnglishStopWords
	}
	cjk := opts.CJKStopWords
	if cjk == nil {
		cjk = DefaultCJKStopWords
	}
	englishSet := toSet(english)
	cjkSet := toSet(cjk)

	ascii := asciiTokens(query, englishSet)
	ngrams := cjkNgrams(query, cjkSet)

	return Query{
		ASCIITokens: ascii,
		CJKNgrams:   ngrams,
		Raw:         strings.TrimSpace(query),
	}
}

func asciiTokens(query string, stop map[string]struct{}) []string {
	var tokens []string
	seen := make(map[string]struct{})
	for _, word := range asciiTokenRegex.FindAllString(query, -1) {
		lower := strings.ToLower(word)
		if len(lower) <= 1 {
			continue
		}
		if _, isStop := stop[lower]; isStop {
			continue
		}
		if _, dup := seen[lower]; dup {
			continue
		}
		seen[lower] = struct{}{}
		tokens = append(tokens, lower)
	}
	return tokens
}

// cjkNgrams finds contiguous CJK runs in query and expands each into
// bigrams and trigrams, dropping ones that are entirely stopwords.
func cjkNgrams(query string, stop map[string]struct{}) []string {
	runs := contiguousCJKRuns(query)

	var ngrams []string
	seen := make(map[string]struct{})
	for _, run := range runs {
		rs := []rune(run)
		for n := 2; n <= 3; n++ {
			if len(rs) < n {
				continue
			}
			for i := 0; i+n <= len(rs); i++ {
				gram := string(rs[i : i+n])
				if _, isStop := stop[gram]; isStop {
					continue
				}
				if _, dup := seen[gram]; dup {
					continue
				}
				seen[gram] = struct{}{}
				ngrams = append(ngrams, gram)
			}
		}
	}
	return ngrams
}

func contiguousCJKRuns(s string) []string {
	var runs []string
	var current []rune
	for _, r := range s {
		if isCJK(r) {
			current = append(current, r)
			continue
		}
		if len(current) > 0 {
			runs = append(runs, string(current))
			current = nil
		}
	}
	if len(current) > 0 {
		runs = append(runs, string(current))
	}
	return runs
}

// isCJK reports whether r falls in a CJK unified ideograph, hiragana,
// katakana, or hangul syllable range.
func isCJK(r rune) bool {
	switch {
	case unicode.Is(unicode.Han, r):
		return true
	case unicode.Is(unicode.Hiragana, r):
		return true
	case unicode.Is(unicode.Katakana, r):
		return true
	case unicode.Is(unicode.Hangul, r):
		return true
	default:
		return false
	}
}

func toSet(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}
