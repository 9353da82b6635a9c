package tokenize

import "testing"

func TestAsciiOnlyQueryHasNoCJKNgrams(t *testing.T) {
	q := Tokenize("retry exponential backoff", Options{})
	if len(q.CJKNgrams) != 0 {
		t.Fatalf("expected no CJK ngrams, got %v", q.CJKNgrams)
	}
	if len(q.ASCIITokens) != 3 {
		t.Fatalf("expected 3 ascii tokens, got %v", q.ASCIITokens)
	}
}

func TestCJKOnlyQueryHasNoAsciiTokens(t *testing.T) {
	q := Tokenize("数据库连接池", Options{})
	if len(q.ASCIITokens) != 0 {
		t.Fatalf("expected no ascii tokens, got %v", q.ASCIITokens)
	}
	if len(q.CJKNgrams) == 0 {
		t.Fatalf("expected CJK ngrams to be produced")
	}
}

func TestMixedQueryProducesBoth(t *testing.T) {
	q := Tokenize("retry 数据库 backoff", Options{})
	if len(q.ASCIITokens) == 0 {
		t.Fatalf("expected ascii tokens from mixed query")
	}
	if len(q.CJKNgrams) == 0 {
		t.Fatalf("expected CJK ngrams from mixed query")
	}
}

func TestEmptyQuery(t *testing.T) {
	q := Tokenize("   ", Options{})
	if !q.Empty() {
		t.Fatalf("expected empty query to report Empty()")
	}
}

func TestStopWordsFilteredFromAsciiTokens(t *testing.T) {
	q := Tokenize("use the connection for the pool", Options{})
	for _, tok := range q.ASCIITokens {
		if tok == "the" || tok == "for" {
			t.Fatalf("expected stopword %q to be filtered, got tokens %v", tok, q.ASCIITokens)
		}
	}
}
