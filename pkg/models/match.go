package models

// MatchType classifies how confident the system is in a match.
type MatchType string

const (
	// SystemMatch is reliable enough to merge automatically
	SystemMatch MatchType = "system_match"
	// PossibleMatch is merged but flagged for manual confirmation
	PossibleMatch MatchType = "possible_match"
)

// ExactMatchConfidence is the fixed confidence assigned to
// identifier-equality matches.
const ExactMatchConfidence = 0.9

// MatchResult records the outcome of matching one unmatched snapshot.
type MatchResult struct {
	SnapshotID  string    `json:"snapshot_id"`
	CanonicalID string    `json:"canonical_id,omitempty"`
	Confidence  float64   `json:"confidence"`
	MatchType   MatchType `json:"match_type,omitempty"`
	Promoted    bool      `json:"promoted"`
}

// JobStatus is what every job-kickoff operation returns. No errors cross
// the queue boundary into the polling interface.
type JobStatus struct {
	Status      string `json:"status"` // success, warning or error
	Message     string `json:"message,omitempty"`
	ProgressKey string `json:"progress_key,omitempty"`
}

// JobStatus status values.
const (
	JobStatusSuccess = "success"
	JobStatusWarning = "warning"
	JobStatusError   = "error"
)
