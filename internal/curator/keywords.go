package curator

import (
	"sort"
	"strings"

	"github.com/mycelicmemory/memengine/internal/tokenize"
)

// maxKeywords matches the Record.Keywords field's documented shape:
// "comma-joined top-10 tokens" (internal/database/types.go).
const maxKeywords = 10

// maxSummaryRunes bounds the save-path summary to a leading prefix of
// content.
const maxSummaryRunes = 100

// keywords extracts the maxKeywords most frequent stopword-filtered
// tokens from text, reusing the Store's own ASCII/CJK tokenizer rather
// than building a second implementation of the same token-extraction
// rules, and ranking by frequency the same way inferTheme does.
func keywords(text string) string {
	q := tokenize.Tokenize(text, tokenize.Options{})

	tokens := make([]string, 0, len(q.ASCIITokens)+len(q.CJKNgrams))
	tokens = append(tokens, q.ASCIITokens...)
	tokens = append(tokens, q.CJKNgrams...)

	counts := make(map[string]int)
	var order []string
	for _, token := range tokens {
		if counts[token] == 0 {
			order = append(order, token)
		}
		counts[token]++
	}

	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})

	if len(order) > maxKeywords {
		order = order[:maxKeywords]
	}
	return strings.Join(order, ",")
}

// summarize produces a short preview of text: a leading prefix of up
// to maxSummaryRunes, suffixed with "..." if truncated.
func summarize(text string) string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	runes := []rune(trimmed)
	if len(runes) <= maxSummaryRunes {
		return trimmed
	}
	return string(runes[:maxSummaryRunes]) + "..."
}
