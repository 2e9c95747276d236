package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSeverity(t *testing.T) {
	for _, s := range Severities {
		assert.True(t, IsSeverity(s))
	}
	assert.False(t, IsSeverity("P9"))
	assert.False(t, IsSeverity("p1"), "comparison is exact, callers normalize first")
	assert.False(t, IsSeverity(""))
}

func TestNormalizeSeverity(t *testing.T) {
	assert.Equal(t, "P1", NormalizeSeverity(" p1 "))
	assert.Equal(t, "ALL", NormalizeSeverity("all"))
	assert.Equal(t, "", NormalizeSeverity("  "))
}

func TestMatchesSeverity(t *testing.T) {
	tests := []struct {
		priority string
		severity string
		want     bool
	}{
		// Default Jira scheme names.
		{"Highest", "P1", true},
		{"High", "P2", true},
		{"Medium", "P3", true},
		{"Low", "P4", true},
		{"Lowest", "P4", true},

		// Incident workflow names.
		{"Critical", "P1", true},
		{"Sev 1", "P1", true},
		{"Sev1", "P1", true},
		{"Priority 2", "P2", true},
		{"Major", "P2", true},

		// Literal severity names still match.
		{"P1", "P1", true},
		{"p3", "P3", true},

		// "High" and "Highest" stay distinct.
		{"High", "P1", false},
		{"Highest", "P2", false},

		{"Medium", "P1", false},
		{"Low", "P2", false},
		{"", "P1", false},

		// ALL and the unset filter match everything.
		{"Highest", "ALL", true},
		{"anything", "", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, MatchesSeverity(tt.priority, tt.severity),
			"priority %q against %q", tt.priority, tt.severity)
	}
}
