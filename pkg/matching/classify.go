package matching

import "github.com/Ramsey-B/sedum/pkg/models"

// Decision is the outcome of classifying a similarity score.
type Decision int

const (
	// DecisionPromote means no canonical is close enough; the snapshot
	// becomes a new canonical building.
	DecisionPromote Decision = iota
	// DecisionPossible merges the snapshot but flags the link for
	// human review.
	DecisionPossible
	// DecisionSystem merges the snapshot as a confident automatic match.
	DecisionSystem
)

// Thresholds holds the classification cutoffs. Min is the floor below
// which a candidate is rejected outright; Med separates review-worthy
// matches from confident ones.
type Thresholds struct {
	Min float64
	Med float64
}

// DefaultThresholds returns the standard cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Min: 0.4,
		Med: 0.7,
	}
}

// Classify maps a similarity score to a decision.
func (t Thresholds) Classify(confidence float64) Decision {
	if confidence < t.Min {
		return DecisionPromote
	}
	if confidence < t.Med {
		return DecisionPossible
	}
	return DecisionSystem
}

// MatchType returns the persisted match type for a decision. Promote
// has no match type; callers must not ask for one.
func (d Decision) MatchType() models.MatchType {
	if d == DecisionPossible {
		return models.PossibleMatch
	}
	return models.SystemMatch
}
