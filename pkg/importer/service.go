// Package importer drives the import pipeline: raw rows are saved off
// the uploaded file, mapped to the canonical schema, then handed to
// matching. Each stage checks its done flag so re-running is a no-op,
// and a stage whose prerequisite is still running requeues itself with
// a deadline instead of failing.
package importer

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/parser"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/redis"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// Progress stages.
const (
	StageSaveRaw = "save_raw_data"
	StageMap     = "map_data"
	StageDelete  = "delete_organization_buildings"
)

// ErrFileNotFound is returned for operations on unknown import files.
var ErrFileNotFound = errors.New("import file not found")

// Config holds the pipeline's tuning knobs.
type Config struct {
	// ChunkSize is rows per fan-out chunk in save and map.
	ChunkSize int
	// DeleteChunkSize is snapshots per delete chunk.
	DeleteChunkSize int
	// CanonicalDeleteChunkSize is canonical buildings per delete chunk.
	CanonicalDeleteChunkSize int
	// MapRequeueCountdown is how long mapping waits before re-checking raw save.
	MapRequeueCountdown time.Duration
	// MapRequeueExpiry bounds the total wait on raw save.
	MapRequeueExpiry time.Duration
	// MatchRequeueCountdown is how long matching waits before re-checking mapping.
	MatchRequeueCountdown time.Duration
	// MatchRequeueExpiry bounds the total wait on mapping.
	MatchRequeueExpiry time.Duration
}

// DefaultConfig returns the standard pipeline tuning.
func DefaultConfig() Config {
	return Config{
		ChunkSize:                100,
		DeleteChunkSize:          100,
		CanonicalDeleteChunkSize: 300,
		MapRequeueCountdown:      60 * time.Second,
		MapRequeueExpiry:         120 * time.Second,
		MatchRequeueCountdown:    10 * time.Second,
		MatchRequeueExpiry:       20 * time.Second,
	}
}

// FileStore persists import files.
type FileStore interface {
	GetByID(ctx context.Context, id string) (*models.ImportFile, error)
	FinishRawSave(ctx context.Context, id string, numRows, numColumns int, firstRow, secondToFifth string) error
	FinishMapping(ctx context.Context, id string) error
	ResetMapping(ctx context.Context, id string) error
}

// RecordStore persists import records.
type RecordStore interface {
	GetByID(ctx context.Context, id string) (*models.ImportRecord, error)
	Finish(ctx context.Context, id, status string) error
}

// SnapshotStore persists building snapshots.
type SnapshotStore interface {
	CreateBatch(ctx context.Context, snapshots []*models.BuildingSnapshot) error
	ListRawByImportFile(ctx context.Context, importFileID string, limit, offset int) ([]*models.BuildingSnapshot, error)
	DeleteMappedForRemap(ctx context.Context, importFileID string) (int64, error)
	ListIDsByOrg(ctx context.Context, orgID string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// CanonicalStore persists canonical buildings.
type CanonicalStore interface {
	ListIDsByOrg(ctx context.Context, orgID string) ([]string, error)
	DeleteByIDs(ctx context.Context, ids []string) error
}

// ColumnStore loads the organization's column mappings.
type ColumnStore interface {
	ListByOrg(ctx context.Context, orgID string) ([]*models.Column, error)
}

// Matcher runs the matching stage.
type Matcher interface {
	MatchBuildings(ctx context.Context, importFileID, userID string) (models.JobStatus, error)
}

// JobQueue enqueues pipeline jobs, optionally delayed.
type JobQueue interface {
	Enqueue(ctx context.Context, job *redis.JobMessage) error
	EnqueueIn(ctx context.Context, job *redis.JobMessage, countdown, expiry time.Duration) error
}

// Service orchestrates the import pipeline stages.
type Service struct {
	log        ectologger.Logger
	files      FileStore
	records    RecordStore
	snapshots  SnapshotStore
	canonicals CanonicalStore
	columns    ColumnStore
	matcher    Matcher
	jobs       JobQueue
	tracker    *progress.Tracker
	executor   *batch.Executor
	auditor    audit.Sink
	cfg        Config
}

// NewService creates the import pipeline service.
func NewService(
	log ectologger.Logger,
	files FileStore,
	records RecordStore,
	snapshots SnapshotStore,
	canonicals CanonicalStore,
	columns ColumnStore,
	matcher Matcher,
	jobs JobQueue,
	tracker *progress.Tracker,
	executor *batch.Executor,
	auditor audit.Sink,
	cfg Config,
) *Service {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.DeleteChunkSize <= 0 {
		cfg.DeleteChunkSize = DefaultConfig().DeleteChunkSize
	}
	if cfg.CanonicalDeleteChunkSize <= 0 {
		cfg.CanonicalDeleteChunkSize = DefaultConfig().CanonicalDeleteChunkSize
	}
	return &Service{
		log:        log,
		files:      files,
		records:    records,
		snapshots:  snapshots,
		canonicals: canonicals,
		columns:    columns,
		matcher:    matcher,
		jobs:       jobs,
		tracker:    tracker,
		executor:   executor,
		auditor:    auditor,
		cfg:        cfg,
	}
}

// SaveRawData parses an uploaded file and persists each row as a raw
// snapshot. The header and rows two to five are cached on the import
// file for front-end previews.
func (s *Service) SaveRawData(ctx context.Context, importFileID, userID string, upload io.Reader) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "importer.Service.SaveRawData")
	defer span.End()

	progressKey := progress.Key(StageSaveRaw, importFileID)
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
	if file.RawSaveDone {
		log.Warn("Raw save already done for import file")
		s.tracker.Set(ctx, progressKey, 100)
		return models.JobStatus{Status: models.JobStatusWarning, Message: "raw save already complete", ProgressKey: progressKey}, nil
	}

	reader, err := s.rowReader(file, upload)
	if err != nil {
		log.WithError(err).Error("Failed to open upload for parsing")
		return s.errorStatus(ctx, progressKey, err)
	}

	snapshots, previews, err := s.collectRows(file, reader)
	if err != nil {
		log.WithError(err).Error("Failed to parse upload")
		return s.errorStatus(ctx, progressKey, err)
	}

	chunks := batch.Chunk(snapshots, s.cfg.ChunkSize)
	delta := batch.IncrementPerChunk(len(chunks))

	result, err := batch.Run(ctx, s.executor, chunks,
		func(ctx context.Context, chunk []*models.BuildingSnapshot) error {
			defer s.tracker.Increment(ctx, progressKey, delta)
			return s.snapshots.CreateBatch(ctx, chunk)
		},
		func(ctx context.Context, _ *batch.Result) error {
			headers := reader.Headers()
			if err := s.files.FinishRawSave(ctx, file.ID, len(snapshots), len(headers), strings.Join(headers, models.RowDelimiter), previews); err != nil {
				return err
			}
			s.tracker.Set(ctx, progressKey, 100)
			s.auditor.Record(ctx, audit.Entry{
				OrgID:   file.OrgID,
				ActorID: userID,
				Subject: file.ID,
				Action:  audit.ActionRawSaveCompleted,
				Note:    file.FileName,
			})
			return nil
		},
	)
	if err != nil {
		return s.errorStatus(ctx, progressKey, err)
	}
	if result.FailureCount > 0 {
		return models.JobStatus{Status: models.JobStatusWarning, Message: "some row chunks failed", ProgressKey: progressKey}, nil
	}

	log.WithField("rows", len(snapshots)).Info("Raw save complete")
	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}

// rowReader picks the parser for the file's source type.
func (s *Service) rowReader(file *models.ImportFile, upload io.Reader) (parser.RowReader, error) {
	if file.SourceType == models.SourceGreenButtonRaw {
		return parser.NewGreenButtonReader(upload)
	}
	delimiter := ','
	if strings.HasSuffix(strings.ToLower(file.FileName), ".tsv") {
		delimiter = '\t'
	}
	return parser.NewCSVReader(upload, delimiter)
}

// collectRows drains the reader into raw snapshots and builds the
// preview cache of rows two to five.
func (s *Service) collectRows(file *models.ImportFile, reader parser.RowReader) ([]*models.BuildingSnapshot, string, error) {
	var snapshots []*models.BuildingSnapshot
	var previewRows []string
	headers := reader.Headers()

	for {
		row, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, "", err
		}

		extra := make(map[string]any, len(row))
		for key, value := range row {
			extra[key] = value
		}
		snapshot := &models.BuildingSnapshot{
			OrgID:        file.OrgID,
			ImportFileID: file.ID,
			SourceType:   file.SourceType,
		}
		snapshot.ExtraData.Val = extra
		snapshots = append(snapshots, snapshot)

		if len(previewRows) < 4 {
			cells := make([]string, len(headers))
			for i, header := range headers {
				cells[i] = row[header]
			}
			previewRows = append(previewRows, strings.Join(cells, models.RowDelimiter))
		}
	}

	return snapshots, strings.Join(previewRows, "\n"), nil
}

func (s *Service) errorStatus(ctx context.Context, progressKey string, err error) (models.JobStatus, error) {
	s.tracker.Set(ctx, progressKey, progress.Failed)
	return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
}
