package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestPurpose: Validates email normalization used for directory lookups.
// Scope: Unit Test
// Expected: Surrounding whitespace is trimmed and letters are lowercased.
// Test Case ID: IDN-01
func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "learner@example.com", NormalizeEmail("  Learner@Example.COM "))
	assert.Equal(t, "", NormalizeEmail("   "))
}
