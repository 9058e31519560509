package importer

import (
	"context"

	"github.com/Ramsey-B/sedum/pkg/matching"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// MatchBuildings runs the matching stage for a file whose mapping has
// finished, requeueing itself briefly when mapping is still running.
// On success the import record moves to ready_to_merge.
func (s *Service) MatchBuildings(ctx context.Context, importFileID, userID string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.MatchBuildings")
	defer span.End()

	progressKey := progress.Key(matching.Stage, importFileID)
	log := s.log.WithContext(ctx).WithField("import_file_id", importFileID)

	file, err := s.files.GetByID(ctx, importFileID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if file == nil {
		return s.errorStatus(ctx, progressKey, ErrFileNotFound)
	}
	if !file.MappingDone {
		log.Info("Mapping still running; requeueing match job")
		if err := s.jobs.EnqueueIn(ctx, &redis.JobMessage{
			OrgID:   file.OrgID,
			UserID:  userID,
			Type:    queue.JobTypeMatchBuildings,
			Payload: map[string]any{"import_file_id": importFileID},
		}, s.cfg.MatchRequeueCountdown, s.cfg.MatchRequeueExpiry); err != nil {
			return s.errorStatus(ctx, progressKey, err)
		}
		return models.JobStatus{Status: models.JobStatusWarning, Message: "waiting on mapping", ProgressKey: progressKey}, nil
	}

	status, err := s.matcher.MatchBuildings(ctx, importFileID, userID)
	if err != nil {
		return status, err
	}
	if status.Status == models.JobStatusSuccess {
		if err := s.records.Finish(ctx, file.ImportRecordID, models.ImportStatusReadyToMerge); err != nil {
			log.WithError(err).Error("Failed to finish import record")
			return s.errorStatus(ctx, progressKey, err)
		}
	}
	return status, nil
}
