package memory

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	maxObservationLength    = 150
	maxObservationSentences = 2
)

// ValidateObservation enforces atomicity rules for observation text: at most
// 150 characters and at most 2 sentences. The sentence splitter is naive:
// it over-counts abbreviations and numbered lists, trading permissiveness
// for atomicity.
func ValidateObservation(text string) error {
	if len(text) > maxObservationLength {
		return fmt.Errorf("observation exceeds %d characters (%d)", maxObservationLength, len(text))
	}
	segments := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})
	count := 0
	for _, seg := range segments {
		if strings.TrimSpace(seg) != "" {
			count++
		}
	}
	if count > maxObservationSentences {
		return fmt.Errorf("observation has %d sentences, maximum is %d", count, maxObservationSentences)
	}
	return nil
}

// ValidateEntityType returns soft warnings for naming-convention violations.
// Nothing here is fatal.
func ValidateEntityType(entityType string) []string {
	var warnings []string
	runes := []rune(entityType)
	if len(runes) > 0 && unicode.IsLower(runes[0]) {
		warnings = append(warnings, fmt.Sprintf("entity type %q should start with an uppercase letter", entityType))
	}
	if strings.Contains(entityType, " ") {
		warnings = append(warnings, fmt.Sprintf("entity type %q should not contain spaces", entityType))
	}
	return warnings
}
