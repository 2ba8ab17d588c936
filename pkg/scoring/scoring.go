// Package scoring compares a reference text against a candidate text and
// reports how many of the reference's words the candidate contains.
//
// The comparison is word-level and order-insensitive. Both texts are split on
// whitespace and lowercased, then reduced to sets. The match percentage is the
// share of unique reference words that also appear in the candidate. Extra
// words in the candidate never lower the score.
//
// Score is a pure function: it has no side effects, never fails, and returns
// the same Result for the same inputs.
//
//	r := scoring.Score("the quick brown fox", "the slow brown cat")
//	fmt.Println(r.Format()) // 50.00%
package scoring

import (
	"fmt"
	"strings"
)

// Annotation pairs one reference word, case preserved, with whether its
// lowercased form occurs in the candidate.
type Annotation struct {
	Word    string `json:"word"`
	IsMatch bool   `json:"is_match"`
}

// Result is the outcome of comparing a reference text with a candidate text.
type Result struct {
	// Percentage is 100 * |matched unique words| / |unique reference words|,
	// in the range [0, 100]. It is not rounded.
	Percentage float64 `json:"percentage"`

	// Annotations holds one entry per whitespace token of the reference, in
	// original order, including repeats. Empty when either text has no words.
	Annotations []Annotation `json:"annotations"`

	matched int
	total   int
}

// Score computes the word-overlap match between reference and candidate.
//
// When either text contains no words the result is a zero percentage with no
// annotations.
func Score(reference, candidate string) Result {
	refTokens := strings.Fields(reference)
	refSet := wordSet(refTokens)
	candSet := wordSet(strings.Fields(candidate))

	if len(refSet) == 0 || len(candSet) == 0 {
		return Result{Annotations: []Annotation{}}
	}

	matched := 0
	for w := range refSet {
		if _, ok := candSet[w]; ok {
			matched++
		}
	}

	annotations := make([]Annotation, len(refTokens))
	for i, tok := range refTokens {
		_, ok := candSet[strings.ToLower(tok)]
		annotations[i] = Annotation{Word: tok, IsMatch: ok}
	}

	return Result{
		Percentage:  float64(matched) / float64(len(refSet)) * 100,
		Annotations: annotations,
		matched:     matched,
		total:       len(refSet),
	}
}

// Matched returns the number of unique reference words found in the candidate.
func (r Result) Matched() int { return r.matched }

// Total returns the number of unique reference words.
func (r Result) Total() int { return r.total }

// NoMatch reports whether no reference word was found in the candidate,
// including the degenerate case where either text is empty.
func (r Result) NoMatch() bool { return r.Percentage == 0 }

// Format renders the percentage with two decimals and a trailing percent sign.
func (r Result) Format() string {
	return fmt.Sprintf("%.2f%%", r.Percentage)
}

// Mismatches returns the reference words, case preserved and in order, that
// were not found in the candidate.
func (r Result) Mismatches() []string {
	var out []string
	for _, a := range r.Annotations {
		if !a.IsMatch {
			out = append(out, a.Word)
		}
	}
	return out
}

// Tokenize splits text on whitespace and lowercases every token. Repeats are
// kept.
func Tokenize(text string) []string {
	fields := strings.Fields(text)
	for i, f := range fields {
		fields[i] = strings.ToLower(f)
	}
	return fields
}

func wordSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[strings.ToLower(t)] = struct{}{}
	}
	return set
}
