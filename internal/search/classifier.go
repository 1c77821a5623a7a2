package search

import (
	"regexp"
	"strings"
	"unicode"
)

// personIntentPattern matches meeting-vocabulary phrases that imply the
// query is about a specific person even when no candidate token is found
// (e.g. "prep for" without a name yet typed).
var personIntentPattern = regexp.MustCompile(`(?i)\b(1:1|one-on-one|meeting with|prep(?:are)? for|catch up with|sync with)\b`)

var tokenTrimSet = ".,!?;:\"'()[]{}"

// PersonClassification is the result of classifying one query for person
// intent (spec §4.8).
type PersonClassification struct {
	Candidates []string // capitalized tokens that look like a person's name
	HasIntent  bool
	BM25Query  string // space-joined Candidates, set only when HasIntent and len(Candidates) > 0
}

// Classifier is a pattern-only classifier: no ML model, no LLM call. It
// identifies person-name candidate tokens and person intent from shape and
// a configurable stopword table, in the style of the teacher's
// PatternClassifier (compiled regexes, a Classify method that never
// errors) but with different semantics — this classifier detects people,
// not lexical-vs-semantic query type.
type Classifier struct {
	stopwords map[string]bool
}

// NewClassifier builds a Classifier from a stopword list (spec §9: the
// stopword table is configuration data, not code).
func NewClassifier(stopwords []string) *Classifier {
	m := make(map[string]bool, len(stopwords))
	for _, w := range stopwords {
		m[w] = true
	}
	return &Classifier{stopwords: m}
}

// Classify scans query for person-name candidate tokens and person intent.
func (c *Classifier) Classify(query string) PersonClassification {
	tokens := strings.Fields(query)
	var candidates []string

	for i, tok := range tokens {
		clean := strings.Trim(tok, tokenTrimSet)
		if clean == "" {
			continue
		}
		if !isCapitalized(clean) || isAllCaps(clean) {
			continue
		}
		if c.stopwords[clean] {
			continue
		}
		if i == 0 && !sentenceInitialShapeOK(clean) {
			continue
		}
		candidates = append(candidates, clean)
	}

	hasIntent := len(candidates) > 0 || personIntentPattern.MatchString(query)

	result := PersonClassification{Candidates: candidates, HasIntent: hasIntent}
	if hasIntent && len(candidates) > 0 {
		result.BM25Query = strings.Join(candidates, " ")
	}
	return result
}

func isCapitalized(tok string) bool {
	r := []rune(tok)
	return len(r) > 0 && unicode.IsUpper(r[0])
}

// isAllCaps excludes acronyms like API, PDF, RRF — a token must contain at
// least one letter and no lowercase letters to count as all-caps.
func isAllCaps(tok string) bool {
	sawLetter := false
	for _, r := range tok {
		if unicode.IsLetter(r) {
			sawLetter = true
			if unicode.IsLower(r) {
				return false
			}
		}
	}
	return sawLetter
}

// sentenceInitialShapeOK applies the extra shape check spec §4.8 requires
// for position-1 tokens, which are capitalized regardless of whether they
// are a name (every sentence starts with a capital letter): short (<=15
// chars) and digit-free.
func sentenceInitialShapeOK(tok string) bool {
	if len(tok) > 15 {
		return false
	}
	for _, r := range tok {
		if unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
