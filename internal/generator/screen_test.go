package generator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

func validCandidate(id string) schemas.ImprovementCandidate {
	return schemas.ImprovementCandidate{
		ID:         id,
		Category:   schemas.CategoryBugFix,
		Confidence: 0.8,
		Impact:     schemas.TierHigh,
		Risk:       schemas.TierLow,
		Changes: []schemas.ChangeDescriptor{
			{Path: "pkg/fix.go", Op: schemas.OpModify, Payload: "fixed"},
		},
	}
}

func TestValidateShape(t *testing.T) {
	require.NoError(t, ValidateShape(validCandidate("ok")))

	cases := []struct {
		name   string
		mutate func(*schemas.ImprovementCandidate)
	}{
		{"missing id", func(c *schemas.ImprovementCandidate) { c.ID = "" }},
		{"confidence above one", func(c *schemas.ImprovementCandidate) { c.Confidence = 1.5 }},
		{"negative confidence", func(c *schemas.ImprovementCandidate) { c.Confidence = -0.1 }},
		{"no changes", func(c *schemas.ImprovementCandidate) { c.Changes = nil }},
		{"change without path", func(c *schemas.ImprovementCandidate) { c.Changes[0].Path = "" }},
		{"modify without payload", func(c *schemas.ImprovementCandidate) { c.Changes[0].Payload = "" }},
		{"unknown op", func(c *schemas.ImprovementCandidate) { c.Changes[0].Op = "rename" }},
		{"delete with payload", func(c *schemas.ImprovementCandidate) {
			c.Changes[0].Op = schemas.OpDelete
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validCandidate("bad")
			tc.mutate(&c)
			assert.ErrorIs(t, ValidateShape(c), schemas.ErrInvalidChangeSet)
		})
	}
}

func TestScreenSeparatesMalformedAndPolicyRejections(t *testing.T) {
	s := NewScreener(zaptest.NewLogger(t), config.ScreeningConfig{
		MinConfidence: 0.5,
		MinImpact:     "medium",
	})

	good := validCandidate("good")
	malformed := validCandidate("malformed")
	malformed.Changes = nil
	lowConfidence := validCandidate("low-confidence")
	lowConfidence.Confidence = 0.3
	lowImpact := validCandidate("low-impact")
	lowImpact.Impact = schemas.TierLow

	accepted, rejected := s.Screen([]schemas.ImprovementCandidate{good, malformed, lowConfidence, lowImpact})

	require.Len(t, accepted, 1)
	assert.Equal(t, "good", accepted[0].ID)
	require.Len(t, rejected, 3)
}

func TestScreenRejectsDuplicateIDs(t *testing.T) {
	s := NewScreener(zaptest.NewLogger(t), config.ScreeningConfig{})

	accepted, rejected := s.Screen([]schemas.ImprovementCandidate{
		validCandidate("dup"), validCandidate("dup"),
	})
	assert.Len(t, accepted, 1)
	require.Len(t, rejected, 1)
	assert.Contains(t, rejected[0].Reason, "duplicate")
}

func TestScreenBlocksHighRiskOnProtectedPaths(t *testing.T) {
	s := NewScreener(zaptest.NewLogger(t), config.ScreeningConfig{
		ProtectedPaths: []string{"internal/auth/", "migrations/"},
	})

	risky := validCandidate("risky")
	risky.Risk = schemas.TierHigh
	risky.Changes[0].Path = "internal/auth/token.go"

	riskyElsewhere := validCandidate("risky-elsewhere")
	riskyElsewhere.Risk = schemas.TierHigh

	safeOnProtected := validCandidate("safe-on-protected")
	safeOnProtected.Risk = schemas.TierLow
	safeOnProtected.Changes[0].Path = "internal/auth/token.go"

	accepted, rejected := s.Screen([]schemas.ImprovementCandidate{risky, riskyElsewhere, safeOnProtected})

	ids := make([]string, 0, len(accepted))
	for _, c := range accepted {
		ids = append(ids, c.ID)
	}
	assert.ElementsMatch(t, []string{"risky-elsewhere", "safe-on-protected"}, ids)
	require.Len(t, rejected, 1)
	assert.Equal(t, "risky", rejected[0].Candidate.ID)
}
