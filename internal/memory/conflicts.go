package memory

import (
	"context"
	"strings"
	"unicode"

	"github.com/atelier-ai/threadmem/internal/models"
)

// conflictReason is the fixed explanation attached to every flagged pair.
const conflictReason = "one observation negates terms the other asserts"

// negationCues are the words treated as negation markers by the heuristic.
var negationCues = map[string]bool{
	"not": true, "no": true, "never": true, "neither": true, "none": true,
	"doesn't": true, "don't": true, "isn't": true, "aren't": true,
}

// DetectConflicts flags pairs of observations on one entity where exactly
// one side carries a negation cue and the two sides share enough vocabulary
// to plausibly describe the same fact. This is a cheap lexical heuristic,
// not semantic analysis: "is employed" vs "is not employed" is flagged,
// unrelated statements are not.
func (m *Manager) DetectConflicts(ctx context.Context) ([]models.ConflictReport, error) {
	graph, err := m.store.Load(ctx)
	if err != nil {
		return nil, err
	}

	reports := []models.ConflictReport{}
	for _, e := range graph.Entities {
		var pairs []models.ConflictPair
		for i := 0; i < len(e.Observations); i++ {
			for j := i + 1; j < len(e.Observations); j++ {
				if observationsConflict(e.Observations[i], e.Observations[j]) {
					pairs = append(pairs, models.ConflictPair{
						First:  e.Observations[i],
						Second: e.Observations[j],
					})
				}
			}
		}
		if len(pairs) > 0 {
			reports = append(reports, models.ConflictReport{
				EntityName: e.Name,
				Conflicts:  pairs,
				Reason:     conflictReason,
			})
		}
	}
	return reports, nil
}

// observationsConflict applies the heuristic to one unordered pair: exactly
// one side must contain a negation cue, the sides must share at least two
// non-cue words overall, and at least one shared word must be a content word
// (longer than 3 characters).
func observationsConflict(a, b string) bool {
	wordsA := tokenize(a)
	wordsB := tokenize(b)

	if hasNegation(wordsA) == hasNegation(wordsB) {
		return false
	}

	shared := 0
	sharedContent := 0
	for word := range wordsA {
		if negationCues[word] || !wordsB[word] {
			continue
		}
		shared++
		if len(word) > 3 {
			sharedContent++
		}
	}
	return shared >= 2 && sharedContent >= 1
}

// tokenize lowercases and splits on anything that is not a letter, digit or
// apostrophe, so contractions like "doesn't" survive as one token.
func tokenize(text string) map[string]bool {
	words := make(map[string]bool)
	for _, field := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	}) {
		words[field] = true
	}
	return words
}

func hasNegation(words map[string]bool) bool {
	for word := range words {
		if negationCues[word] {
			return true
		}
	}
	return false
}
