package memory

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateObservationLength(t *testing.T) {
	assert.NoError(t, ValidateObservation(strings.Repeat("a", 150)))
	assert.Error(t, ValidateObservation(strings.Repeat("a", 151)))
}

func TestValidateObservationSentences(t *testing.T) {
	assert.NoError(t, ValidateObservation("One sentence"))
	assert.NoError(t, ValidateObservation("One. Two."))
	assert.Error(t, ValidateObservation("One. Two. Three."))
	assert.Error(t, ValidateObservation("Really? Yes! Indeed."))
	// Trailing punctuation without content does not count as a sentence.
	assert.NoError(t, ValidateObservation("Wait... what?"))
}

func TestValidateEntityType(t *testing.T) {
	assert.Empty(t, ValidateEntityType("Person"))

	warnings := ValidateEntityType("person")
	assert.Len(t, warnings, 1)

	warnings = ValidateEntityType("legal entity")
	assert.Len(t, warnings, 2)

	assert.Empty(t, ValidateEntityType(""))
}
