package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/sedum/pkg/models"
)

func TestThresholds_Classify(t *testing.T) {
	thresholds := DefaultThresholds()

	tests := []struct {
		name       string
		confidence float64
		expected   Decision
	}{
		{
			name:       "below floor promotes",
			confidence: 0.39,
			expected:   DecisionPromote,
		},
		{
			name:       "at floor is possible",
			confidence: 0.4,
			expected:   DecisionPossible,
		},
		{
			name:       "just under medium is possible",
			confidence: 0.69,
			expected:   DecisionPossible,
		},
		{
			name:       "at medium is system",
			confidence: 0.7,
			expected:   DecisionSystem,
		},
		{
			name:       "perfect score is system",
			confidence: 1.0,
			expected:   DecisionSystem,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.expected, thresholds.Classify(test.confidence))
		})
	}
}

func TestDecision_MatchType(t *testing.T) {
	assert.Equal(t, models.PossibleMatch, DecisionPossible.MatchType())
	assert.Equal(t, models.SystemMatch, DecisionSystem.MatchType())
}
