package vectorstore

import (
	"strings"
	"unicode"

	porterstemmer "github.com/reiver/go-porterstemmer"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "how": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"or": true, "that": true, "the": true, "this": true, "to": true, "was": true,
	"what": true, "when": true, "where": true, "which": true, "who": true,
	"will": true, "with": true, "do": true, "does": true, "i": true, "you": true,
}

// terms splits text into lower-cased, stemmed terms with stop words removed.
func terms(text string) []string {
	text = norm.NFKC.String(strings.ToLower(text))
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	out := make([]string, 0, len(words))
	for _, w := range words {
		if stopWords[w] {
			continue
		}
		out = append(out, porterstemmer.StemString(w))
	}
	return out
}

// keywordScore rates how well a document covers the query terms. It is zero
// when no term matches and approaches one as coverage and frequency grow.
func keywordScore(queryTerms []string, docTerms []string) float64 {
	if len(queryTerms) == 0 || len(docTerms) == 0 {
		return 0
	}

	want := make(map[string]bool, len(queryTerms))
	for _, t := range queryTerms {
		want[t] = true
	}
	hitsPerTerm := make(map[string]int, len(want))
	for _, t := range docTerms {
		if want[t] {
			hitsPerTerm[t]++
		}
	}
	if len(hitsPerTerm) == 0 {
		return 0
	}

	hits := 0
	for _, n := range hitsPerTerm {
		hits += n
	}
	coverage := float64(len(hitsPerTerm)) / float64(len(want))
	saturation := float64(hits) / float64(hits+1)
	return coverage * saturation
}
