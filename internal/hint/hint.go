// Package hint suggests, for each reference word the learner missed, the
// word they most likely said instead.
//
// Candidates are matched in two stages:
//
//  1. Phonetic filtering: Double Metaphone codes are computed for the missed
//     word and for every unmatched candidate word. Words sharing a code are
//     phonetic candidates and are accepted above the phonetic threshold
//     (default 0.70 Jaro-Winkler).
//
//  2. Fuzzy fallback: when no phonetic candidate qualifies, the candidate with
//     the highest pure Jaro-Winkler similarity is accepted above the fuzzy
//     threshold (default 0.85).
//
// Hints are advisory. They never change a scoring.Result.
package hint

import (
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/speakez/pkg/scoring"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Hint pairs a missed reference word with the closest word the learner said.
type Hint struct {
	// Word is the reference word as it appears in the reference text.
	Word string `json:"word"`

	// Heard is the closest unmatched candidate word, or "" if the word seems
	// to have been dropped entirely.
	Heard string `json:"heard,omitempty"`

	// Similarity is the Jaro-Winkler score between Word and Heard in [0,1].
	Similarity float64 `json:"similarity,omitempty"`

	// Phonetic reports whether Word and Heard share a Double Metaphone code,
	// i.e. they sound alike even if spelled differently.
	Phonetic bool `json:"phonetic,omitempty"`
}

// Option is a functional option for configuring a [Suggester].
type Option func(*Suggester)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a phonetic
// candidate. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(s *Suggester) {
		s.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score when no phonetic
// candidate is found. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(s *Suggester) {
		s.fuzzyThreshold = threshold
	}
}

// Suggester produces hints. It is read-only after construction and safe for
// concurrent use.
type Suggester struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Suggester configured with the supplied options.
func New(opts ...Option) *Suggester {
	s := &Suggester{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Suggest returns one hint per distinct unmatched word in res, in reference
// order. candidate is the text that was scored. Only candidate words absent
// from the reference are considered, since a word the learner got right
// elsewhere is not a mispronunciation.
func (s *Suggester) Suggest(res scoring.Result, candidate string) []Hint {
	missed := res.Mismatches()
	if len(missed) == 0 {
		return nil
	}

	inRef := make(map[string]struct{}, len(res.Annotations))
	for _, a := range res.Annotations {
		inRef[strings.ToLower(a.Word)] = struct{}{}
	}
	var extras []string
	seen := make(map[string]struct{})
	for _, w := range scoring.Tokenize(candidate) {
		if _, ok := inRef[w]; ok {
			continue
		}
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		extras = append(extras, w)
	}

	hints := make([]Hint, 0, len(missed))
	done := make(map[string]struct{}, len(missed))
	for _, word := range missed {
		key := strings.ToLower(word)
		if _, ok := done[key]; ok {
			continue
		}
		done[key] = struct{}{}
		h := Hint{Word: word}
		if heard, score, phonetic, ok := s.Match(word, extras); ok {
			h.Heard, h.Similarity, h.Phonetic = heard, score, phonetic
		}
		hints = append(hints, h)
	}
	return hints
}

// Match finds the word in words most similar to target. ok is false when no
// word passes either threshold.
func (s *Suggester) Match(target string, words []string) (best string, score float64, phonetic, ok bool) {
	target = normalise(target)
	if target == "" || len(words) == 0 {
		return "", 0, false, false
	}
	targetCodes := codes(target)

	for _, w := range words {
		wl := normalise(w)
		if wl == "" {
			continue
		}
		jw := matchr.JaroWinkler(target, wl, false)
		if overlap(targetCodes, codes(wl)) {
			if jw >= s.phoneticThreshold && (!phonetic || jw > score) {
				best, score, phonetic, ok = w, jw, true, true
			}
		} else if !phonetic && jw >= s.fuzzyThreshold && jw > score {
			best, score, ok = w, jw, true
		}
	}
	return best, score, phonetic, ok
}

// normalise lowercases w and trims surrounding punctuation so "world," and
// "world" compare equal for similarity purposes.
func normalise(w string) string {
	return strings.Trim(strings.ToLower(strings.TrimSpace(w)), ".,;:!?\"'()[]")
}

// codes returns the non-empty Double Metaphone codes for w.
func codes(w string) []string {
	p, s := matchr.DoubleMetaphone(w)
	out := make([]string, 0, 2)
	if p != "" {
		out = append(out, p)
	}
	if s != "" && s != p {
		out = append(out, s)
	}
	return out
}

func overlap(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}
