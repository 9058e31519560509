package importer

import (
	"context"
	"errors"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/mapper"
	"github.com/Ramsey-B/sedum/pkg/matching"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// ErrMatchingAlreadyRun is returned when a remap is requested after
// matching has already consumed the mapped snapshots.
var ErrMatchingAlreadyRun = errors.New("cannot remap after matching has run")

// MapData converts the file's raw snapshots to mapped ones using the
// organization's column mappings. If raw saving hasn't finished the
// job requeues itself and reports the wait; the requeue expires rather
// than spinning forever on a stuck upload.
func (s *Service) MapData(ctx context.Context, importFileID, userID string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.MapData")
	defer span.End()

	progressKey := progress.Key(StageMap, importFileID)
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"import_file_id": importFileID,
		"progress_key":   progressKey,
	})

	file, err := s.files.GetByID(ctx, importFileID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if file == nil {
		return s.errorStatus(ctx, progressKey, ErrFileNotFound)
	}
	if file.MappingDone {
		log.Warn("Mapping already done for import file")
		s.tracker.Set(ctx, progressKey, 100)
		return models.JobStatus{Status: models.JobStatusWarning, Message: "mapping already complete", ProgressKey: progressKey}, nil
	}
	if !file.RawSaveDone {
		log.Info("Raw save still running; requeueing map job")
		if err := s.jobs.EnqueueIn(ctx, &redis.JobMessage{
			OrgID:   file.OrgID,
			UserID:  userID,
			Type:    queue.JobTypeMapData,
			Payload: map[string]any{"import_file_id": importFileID},
		}, s.cfg.MapRequeueCountdown, s.cfg.MapRequeueExpiry); err != nil {
			return s.errorStatus(ctx, progressKey, err)
		}
		return models.JobStatus{Status: models.JobStatusWarning, Message: "waiting on raw save", ProgressKey: progressKey}, nil
	}

	mappings, err := s.columns.ListByOrg(ctx, file.OrgID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	rowMapper := mapper.New(mapper.NewCleaner(mapper.BuildingSchema), mappings)

	// Chunks page through raw rows by offset so the whole file never
	// sits in memory at once.
	offsets := make([]int, 0, (file.NumRows+s.cfg.ChunkSize-1)/s.cfg.ChunkSize)
	for offset := 0; offset < file.NumRows; offset += s.cfg.ChunkSize {
		offsets = append(offsets, offset)
	}
	chunks := batch.Chunk(offsets, 1)
	delta := batch.IncrementPerChunk(len(chunks))

	result, err := batch.Run(ctx, s.executor, chunks,
		func(ctx context.Context, chunk []int) error {
			defer s.tracker.Increment(ctx, progressKey, delta)
			return s.mapChunk(ctx, importFileID, chunk[0], rowMapper)
		},
		func(ctx context.Context, result *batch.Result) error {
			if result.FailureCount > 0 {
				log.WithField("failed_chunks", result.FailureCount).Warn("Some mapping chunks failed")
			}
			if err := s.files.FinishMapping(ctx, file.ID); err != nil {
				return err
			}
			s.tracker.Set(ctx, progressKey, 100)
			s.auditor.Record(ctx, audit.Entry{
				OrgID:   file.OrgID,
				ActorID: userID,
				Subject: file.ID,
				Action:  audit.ActionMappingCompleted,
			})
			return nil
		},
	)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if result.FailureCount > 0 {
		return models.JobStatus{Status: models.JobStatusWarning, Message: "some mapping chunks failed", ProgressKey: progressKey}, nil
	}

	log.WithField("rows", file.NumRows).Info("Mapping complete")
	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}

func (s *Service) mapChunk(ctx context.Context, importFileID string, offset int, rowMapper *mapper.Mapper) error {
	raws, err := s.snapshots.ListRawByImportFile(ctx, importFileID, s.cfg.ChunkSize, offset)
	if err != nil {
		return err
	}

	mapped := make([]*models.BuildingSnapshot, 0, len(raws))
	for _, raw := range raws {
		snapshot, err := rowMapper.MapRow(raw)
		if err != nil {
			return err
		}
		mapped = append(mapped, snapshot)
	}
	return s.snapshots.CreateBatch(ctx, mapped)
}

// RemapData throws away the file's mapped snapshots and runs mapping
// again, for when the organization fixed its column mappings after an
// import. Refused once matching has run, or while a matching job is
// still working through the file; merged lineage would be orphaned.
// Mapped snapshots that already have children survive the delete for
// the same reason.
func (s *Service) RemapData(ctx context.Context, importFileID, userID string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.RemapData")
	defer span.End()

	progressKey := progress.Key(StageMap, importFileID)
	log := s.log.WithContext(ctx).WithField("import_file_id", importFileID)

	file, err := s.files.GetByID(ctx, importFileID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if file == nil {
		return s.errorStatus(ctx, progressKey, ErrFileNotFound)
	}
	// A failed matching run reports a negative sentinel and does not
	// block the remap.
	matchPct := s.tracker.Get(ctx, progress.Key(matching.Stage, importFileID))
	if file.MatchingDone || matchPct > 0 {
		log.Warn("Remap refused; matching already ran or is in flight")
		return models.JobStatus{Status: models.JobStatusError, Message: ErrMatchingAlreadyRun.Error(), ProgressKey: progressKey}, ErrMatchingAlreadyRun
	}

	deleted, err := s.snapshots.DeleteMappedForRemap(ctx, importFileID)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if err := s.files.ResetMapping(ctx, importFileID); err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	s.tracker.Set(ctx, progressKey, 0)

	log.WithField("deleted", deleted).Info("Mapped snapshots cleared for remap")
	s.auditor.Record(ctx, audit.Entry{
		OrgID:   file.OrgID,
		ActorID: userID,
		Subject: file.ID,
		Action:  audit.ActionMappingReset,
	})

	if err := s.jobs.Enqueue(ctx, &redis.JobMessage{
		OrgID:   file.OrgID,
		UserID:  userID,
		Type:    queue.JobTypeMapData,
		Payload: map[string]any{"import_file_id": importFileID},
	}); err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}

	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}
