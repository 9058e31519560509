// Package matching links newly mapped building snapshots to the
// organization's canonical building population. Every snapshot goes
// through two tiers: exact identifier matching against canonical
// identifier fields, then n-gram similarity over flattened field
// fingerprints for whatever the exact tier left behind.
package matching

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// Stage is the progress namespace for matching jobs.
const Stage = "match_buildings"

// DefaultChunkSize is how many unmatched snapshots a single worker
// handles per chunk.
const DefaultChunkSize = 100

// SnapshotStore loads the snapshots matching operates on.
type SnapshotStore interface {
	FindUnmatchedByImportFile(ctx context.Context, importFileID string) ([]*models.BuildingSnapshot, error)
	FindCanonicalIDMatches(ctx context.Context, orgID string, probe *models.BuildingSnapshot) ([]*models.BuildingSnapshot, error)
	FindCanonicalSnapshots(ctx context.Context, orgID string) ([]*models.BuildingSnapshot, error)
}

// ImportStore loads the import file being matched and records stage
// completion on it.
type ImportStore interface {
	GetByID(ctx context.Context, importFileID string) (*models.ImportFile, error)
	FinishMatching(ctx context.Context, importFileID string) error
}

// Merger applies match outcomes: merging a snapshot into a canonical
// building or promoting it to a new one.
type Merger interface {
	Merge(ctx context.Context, snapshot, canonical *models.BuildingSnapshot, confidence float64, matchType models.MatchType, userID string) (*models.BuildingSnapshot, error)
	Promote(ctx context.Context, snapshot *models.BuildingSnapshot, userID string) error
}

// Locker serializes canonical promotion within an organization so two
// concurrent chunks cannot promote duplicates of the same building.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Service runs the matching stage for an import file.
type Service struct {
	log        ectologger.Logger
	snapshots  SnapshotStore
	imports    ImportStore
	merger     Merger
	locker     Locker
	tracker    *progress.Tracker
	executor   *batch.Executor
	auditor    audit.Sink
	thresholds Thresholds
	chunkSize  int
}

// NewService creates the matching service.
func NewService(
	log ectologger.Logger,
	snapshots SnapshotStore,
	imports ImportStore,
	merger Merger,
	locker Locker,
	tracker *progress.Tracker,
	executor *batch.Executor,
	auditor audit.Sink,
	thresholds Thresholds,
	chunkSize int,
) *Service {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Service{
		log:        log,
		snapshots:  snapshots,
		imports:    imports,
		merger:     merger,
		locker:     locker,
		tracker:    tracker,
		executor:   executor,
		auditor:    auditor,
		thresholds: thresholds,
		chunkSize:  chunkSize,
	}
}

// MatchBuildings matches every unmatched mapped snapshot of the import
// file against the organization's canonical buildings. Running it on a
// file whose matching already finished is a no-op warning.
func (s *Service) MatchBuildings(ctx context.Context, importFileID, userID string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Service.MatchBuildings")
	defer span.End()

	progressKey := progress.Key(Stage, importFileID)
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"import_file_id": importFileID,
		"progress_key":   progressKey,
	})

	file, err := s.imports.GetByID(ctx, importFileID)
	if err != nil {
		log.WithError(err).Error("Failed to load import file")
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}
	if file == nil {
		err := fmt.Errorf("import file %s not found", importFileID)
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}
	if file.MatchingDone {
		log.Warn("Matching already done for import file")
		s.tracker.Set(ctx, progressKey, 100)
		return models.JobStatus{Status: models.JobStatusWarning, Message: "matching already complete", ProgressKey: progressKey}, nil
	}

	unmatched, err := s.snapshots.FindUnmatchedByImportFile(ctx, importFileID)
	if err != nil {
		log.WithError(err).Error("Failed to load unmatched snapshots")
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	canonicals, err := s.snapshots.FindCanonicalSnapshots(ctx, file.OrgID)
	if err != nil {
		log.WithError(err).Error("Failed to load canonical snapshots")
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	// First import for the organization: there is nothing to match
	// against, so every snapshot seeds the canonical population.
	if len(canonicals) == 0 {
		log.WithField("count", len(unmatched)).Info("No canonical buildings; promoting all snapshots")
		if err := s.promoteAll(ctx, file.OrgID, unmatched, userID, progressKey); err != nil {
			return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
		}
		if err := s.finishMatching(ctx, file, progressKey, userID); err != nil {
			return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
		}
		return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
	}

	index := BuildFuzzyIndex(canonicals)
	log.WithFields(map[string]any{
		"unmatched":  len(unmatched),
		"canonicals": index.Len(),
	}).Info("Starting building match")

	chunks := batch.Chunk(unmatched, s.chunkSize)
	delta := batch.IncrementPerChunk(len(chunks))

	result, err := batch.Run(ctx, s.executor, chunks,
		func(ctx context.Context, chunk []*models.BuildingSnapshot) error {
			defer s.tracker.Increment(ctx, progressKey, delta)
			return s.matchChunk(ctx, file.OrgID, chunk, index, userID)
		},
		func(ctx context.Context, result *batch.Result) error {
			if result.FailureCount > 0 {
				log.WithField("failed_chunks", result.FailureCount).Warn("Some match chunks failed")
			}
			return s.finishMatching(ctx, file, progressKey, userID)
		},
	)
	if err != nil {
		log.WithError(err).Error("Failed to finish matching")
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}
	if result.FailureCount > 0 {
		message := fmt.Sprintf("%d of %d chunks failed", result.FailureCount, result.TotalChunks)
		return models.JobStatus{Status: models.JobStatusWarning, Message: message, ProgressKey: progressKey}, nil
	}
	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}

// matchChunk runs both tiers for each snapshot in the chunk.
func (s *Service) matchChunk(ctx context.Context, orgID string, chunk []*models.BuildingSnapshot, index *FuzzyIndex, userID string) error {
	for _, snapshot := range chunk {
		matched, err := s.matchExact(ctx, orgID, snapshot, userID)
		if err != nil {
			return err
		}
		if matched {
			continue
		}
		if err := s.matchFuzzy(ctx, orgID, snapshot, index, userID); err != nil {
			return err
		}
	}
	return nil
}

// matchExact merges the snapshot into every canonical building that
// shares one of its identifier values. Merges chain: the merge result
// from one hit becomes the probe merged into the next, so a snapshot
// bridging several canonicals collapses them into one lineage.
func (s *Service) matchExact(ctx context.Context, orgID string, snapshot *models.BuildingSnapshot, userID string) (bool, error) {
	hits, err := s.snapshots.FindCanonicalIDMatches(ctx, orgID, snapshot)
	if err != nil {
		return false, err
	}
	if len(hits) == 0 {
		return false, nil
	}

	current := snapshot
	for _, hit := range hits {
		merged, err := s.merger.Merge(ctx, current, hit, models.ExactMatchConfidence, models.SystemMatch, userID)
		if err != nil {
			return false, err
		}
		current = merged
	}
	return true, nil
}

// matchFuzzy matches the snapshot by fingerprint similarity. A score
// under the floor promotes the snapshot to a new canonical building.
func (s *Service) matchFuzzy(ctx context.Context, orgID string, snapshot *models.BuildingSnapshot, index *FuzzyIndex, userID string) error {
	canonical, confidence := index.Find(snapshot, s.thresholds.Min)
	if canonical == nil {
		return s.promote(ctx, orgID, snapshot, userID)
	}

	decision := s.thresholds.Classify(confidence)
	if decision == DecisionPromote {
		return s.promote(ctx, orgID, snapshot, userID)
	}

	_, err := s.merger.Merge(ctx, snapshot, canonical, confidence, decision.MatchType(), userID)
	return err
}

func (s *Service) promote(ctx context.Context, orgID string, snapshot *models.BuildingSnapshot, userID string) error {
	lockKey := fmt.Sprintf("canonical-promote:%s", orgID)
	return s.locker.WithLock(ctx, lockKey, func(ctx context.Context) error {
		return s.merger.Promote(ctx, snapshot, userID)
	})
}

// promoteAll reports progress per chunk so pollers watching a large
// first import see movement before the final pin to 100.
func (s *Service) promoteAll(ctx context.Context, orgID string, snapshots []*models.BuildingSnapshot, userID, progressKey string) error {
	chunks := batch.Chunk(snapshots, s.chunkSize)
	delta := batch.IncrementPerChunk(len(chunks))
	for _, chunk := range chunks {
		for _, snapshot := range chunk {
			if err := s.promote(ctx, orgID, snapshot, userID); err != nil {
				return err
			}
		}
		s.tracker.Increment(ctx, progressKey, delta)
	}
	return nil
}

// finishMatching marks the stage complete. Mapping completion is
// pinned to 100 here as well because pollers read it after the final
// mapping write may have raced with a requeue.
func (s *Service) finishMatching(ctx context.Context, file *models.ImportFile, progressKey, userID string) error {
	if err := s.imports.FinishMatching(ctx, file.ID); err != nil {
		return err
	}
	s.tracker.Set(ctx, progressKey, 100)

	s.auditor.Record(ctx, audit.Entry{
		OrgID:   file.OrgID,
		ActorID: userID,
		Subject: file.ID,
		Action:  audit.ActionMatchCompleted,
		Note:    "building matching finished",
	})
	return nil
}
