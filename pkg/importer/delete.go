package importer

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// DeleteOrganizationBuildings removes every snapshot and canonical
// building the organization owns. Snapshot deletion drives the
// progress percentage; an organization with nothing to delete jumps
// straight to 100.
func (s *Service) DeleteOrganizationBuildings(ctx context.Context, orgID, userID string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.DeleteOrganizationBuildings")
	defer span.End()

	progressKey := progress.Key(StageDelete, orgID)
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"org_id":       orgID,
		"progress_key": progressKey,
	})

	canonicalIDs, err := s.canonicals.ListIDsByOrg(ctx, orgID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	for _, chunk := range batch.Chunk(canonicalIDs, s.cfg.CanonicalDeleteChunkSize) {
		if err := s.canonicals.DeleteByIDs(ctx, chunk); err != nil {
			return s.errorStatus(ctx, progressKey, err)
		}
	}

	snapshotIDs, err := s.snapshots.ListIDsByOrg(ctx, orgID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if len(snapshotIDs) == 0 {
		s.tracker.Set(ctx, progressKey, 100)
		log.Info("No buildings to delete")
		return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
	}

	// Each chunk advances progress by its share of the total rows, so
	// the final partial chunk contributes proportionally less.
	step := float64(s.cfg.DeleteChunkSize) / float64(len(snapshotIDs)) * 100

	chunks := batch.Chunk(snapshotIDs, s.cfg.DeleteChunkSize)
	result, err := batch.Run(ctx, s.executor, chunks,
		func(ctx context.Context, chunk []string) error {
			increment := step
			if len(chunk) < s.cfg.DeleteChunkSize {
				increment = float64(len(chunk)) / float64(len(snapshotIDs)) * 100
			}
			defer s.tracker.Increment(ctx, progressKey, increment)
			return s.snapshots.DeleteByIDs(ctx, chunk)
		},
		func(ctx context.Context, _ *batch.Result) error {
			s.tracker.Set(ctx, progressKey, 100)
			s.auditor.Record(ctx, audit.Entry{
				OrgID:   orgID,
				ActorID: userID,
				Subject: orgID,
				Action:  audit.ActionBuildingsDeleted,
				Note:    fmt.Sprintf("%d snapshots, %d canonical buildings", len(snapshotIDs), len(canonicalIDs)),
			})
			return nil
		},
	)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if result.FailureCount > 0 {
		return models.JobStatus{Status: models.JobStatusWarning, Message: "some delete chunks failed", ProgressKey: progressKey}, nil
	}

	log.WithFields(map[string]any{
		"snapshots":  len(snapshotIDs),
		"canonicals": len(canonicalIDs),
	}).Info("Organization buildings deleted")
	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}
