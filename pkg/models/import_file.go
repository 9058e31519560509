package models

import "time"

// ImportRecord groups the files of one import batch for an organization.
type ImportRecord struct {
	ID          string  `json:"id" db:"id"`
	OrgID       string  `json:"org_id" db:"org_id"`
	OwnerUserID string  `json:"owner_user_id" db:"owner_user_id"`
	Name        string  `json:"name" db:"name"`
	Status      string  `json:"status" db:"status"`

	PremergeAnalysisDone   bool `json:"premerge_analysis_done" db:"premerge_analysis_done"`
	PremergeAnalysisActive bool `json:"premerge_analysis_active" db:"premerge_analysis_active"`
	PremergeAnalysisQueued bool `json:"premerge_analysis_queued" db:"premerge_analysis_queued"`
	MergeAnalysisDone      bool `json:"merge_analysis_done" db:"merge_analysis_done"`
	MergeAnalysisActive    bool `json:"merge_analysis_active" db:"merge_analysis_active"`
	MergeAnalysisQueued    bool `json:"merge_analysis_queued" db:"merge_analysis_queued"`

	FinishTime *time.Time `json:"finish_time,omitempty" db:"finish_time"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// ImportRecord statuses.
const (
	ImportStatusUploading    = "uploading"
	ImportStatusReadyToMerge = "ready_to_merge"
)

// ImportFile tracks one uploaded file through the save/map/match stages.
// Every stage checks its own done flag on entry and short-circuits when
// the work is already complete, which makes re-invocation a no-op.
type ImportFile struct {
	ID             string     `json:"id" db:"id"`
	ImportRecordID string     `json:"import_record_id" db:"import_record_id"`
	OrgID          string     `json:"org_id" db:"org_id"`
	FileName       string     `json:"file_name" db:"file_name"`
	SourceType     SourceType `json:"source_type" db:"source_type"`

	RawSaveDone  bool `json:"raw_save_done" db:"raw_save_done"`
	MappingDone  bool `json:"mapping_done" db:"mapping_done"`
	MatchingDone bool `json:"matching_done" db:"matching_done"`
	// MappingCompletion is a 0-100 percentage; nil before mapping starts.
	MappingCompletion *int `json:"mapping_completion,omitempty" db:"mapping_completion"`

	NumRows    int `json:"num_rows" db:"num_rows"`
	NumColumns int `json:"num_columns" db:"num_columns"`

	// Header and rows 2-5 cached for front-end validation previews.
	CachedFirstRow         string `json:"cached_first_row" db:"cached_first_row"`
	CachedSecondToFifthRow string `json:"cached_second_to_fifth_row" db:"cached_second_to_fifth_row"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RowDelimiter separates cells in the cached preview rows.
const RowDelimiter = "|#*#|"
