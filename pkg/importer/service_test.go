package importer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/matching"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
)

type fakeFileStore struct {
	mutex sync.Mutex
	file  *models.ImportFile

	rawSaveFinished bool
	numRows         int
	numColumns      int
	firstRow        string
	secondToFifth   string
	mappingFinished bool
	mappingReset    bool
}

func (f *fakeFileStore) GetByID(_ context.Context, id string) (*models.ImportFile, error) {
	if f.file == nil || f.file.ID != id {
		return nil, nil
	}
	return f.file, nil
}

func (f *fakeFileStore) FinishRawSave(_ context.Context, _ string, numRows, numColumns int, firstRow, secondToFifth string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.rawSaveFinished = true
	f.numRows = numRows
	f.numColumns = numColumns
	f.firstRow = firstRow
	f.secondToFifth = secondToFifth
	return nil
}

func (f *fakeFileStore) FinishMapping(_ context.Context, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.mappingFinished = true
	return nil
}

func (f *fakeFileStore) ResetMapping(_ context.Context, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.mappingReset = true
	return nil
}

type fakeRecordStore struct {
	finishedID     string
	finishedStatus string
}

func (f *fakeRecordStore) GetByID(_ context.Context, id string) (*models.ImportRecord, error) {
	return &models.ImportRecord{ID: id, OrgID: "org-1"}, nil
}

func (f *fakeRecordStore) Finish(_ context.Context, id, status string) error {
	f.finishedID = id
	f.finishedStatus = status
	return nil
}

type fakeSnapshotStore struct {
	mutex   sync.Mutex
	created []*models.BuildingSnapshot
	raws    []*models.BuildingSnapshot

	orgSnapshotIDs []string
	deletedIDs     []string
	remapDeleted   int64
}

func (f *fakeSnapshotStore) CreateBatch(_ context.Context, snapshots []*models.BuildingSnapshot) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.created = append(f.created, snapshots...)
	return nil
}

func (f *fakeSnapshotStore) ListRawByImportFile(_ context.Context, _ string, limit, offset int) ([]*models.BuildingSnapshot, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if offset >= len(f.raws) {
		return nil, nil
	}
	end := offset + limit
	if end > len(f.raws) {
		end = len(f.raws)
	}
	return f.raws[offset:end], nil
}

func (f *fakeSnapshotStore) DeleteMappedForRemap(_ context.Context, _ string) (int64, error) {
	return f.remapDeleted, nil
}

func (f *fakeSnapshotStore) ListIDsByOrg(_ context.Context, _ string) ([]string, error) {
	return f.orgSnapshotIDs, nil
}

func (f *fakeSnapshotStore) DeleteByIDs(_ context.Context, ids []string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

type fakeCanonicalStore struct {
	ids        []string
	deletedIDs []string
}

func (f *fakeCanonicalStore) ListIDsByOrg(_ context.Context, _ string) ([]string, error) {
	return f.ids, nil
}

func (f *fakeCanonicalStore) DeleteByIDs(_ context.Context, ids []string) error {
	f.deletedIDs = append(f.deletedIDs, ids...)
	return nil
}

type fakeColumnStore struct {
	columns []*models.Column
}

func (f *fakeColumnStore) ListByOrg(_ context.Context, _ string) ([]*models.Column, error) {
	return f.columns, nil
}

type fakeMatcher struct {
	status models.JobStatus
	calls  int
}

func (f *fakeMatcher) MatchBuildings(_ context.Context, _ string, _ string) (models.JobStatus, error) {
	f.calls++
	return f.status, nil
}

type enqueuedJob struct {
	job       *redis.JobMessage
	delayed   bool
	countdown time.Duration
	expiry    time.Duration
}

type fakeJobQueue struct {
	jobs []enqueuedJob
}

func (f *fakeJobQueue) Enqueue(_ context.Context, job *redis.JobMessage) error {
	f.jobs = append(f.jobs, enqueuedJob{job: job})
	return nil
}

func (f *fakeJobQueue) EnqueueIn(_ context.Context, job *redis.JobMessage, countdown, expiry time.Duration) error {
	f.jobs = append(f.jobs, enqueuedJob{job: job, delayed: true, countdown: countdown, expiry: expiry})
	return nil
}

type importerHarness struct {
	service    *Service
	files      *fakeFileStore
	records    *fakeRecordStore
	snapshots  *fakeSnapshotStore
	canonicals *fakeCanonicalStore
	matcher    *fakeMatcher
	jobs       *fakeJobQueue
	tracker    *progress.Tracker
}

func newImporterHarness(file *models.ImportFile) *importerHarness {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	files := &fakeFileStore{file: file}
	records := &fakeRecordStore{}
	snapshots := &fakeSnapshotStore{}
	canonicals := &fakeCanonicalStore{}
	matcher := &fakeMatcher{status: models.JobStatus{Status: models.JobStatusSuccess}}
	jobs := &fakeJobQueue{}
	tracker := progress.NewTracker(progress.NewMemoryStore(), logger)
	cfg := DefaultConfig()
	cfg.ChunkSize = 2
	cfg.DeleteChunkSize = 2
	service := NewService(
		logger,
		files,
		records,
		snapshots,
		canonicals,
		&fakeColumnStore{},
		matcher,
		jobs,
		tracker,
		batch.NewExecutor(2, logger),
		audit.NoopSink{},
		cfg,
	)
	return &importerHarness{
		service:    service,
		files:      files,
		records:    records,
		snapshots:  snapshots,
		canonicals: canonicals,
		matcher:    matcher,
		jobs:       jobs,
		tracker:    tracker,
	}
}

func TestSaveRawDataParsesCSVUpload(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:         "file-1",
		OrgID:      "org-1",
		FileName:   "buildings.csv",
		SourceType: models.SourceAssessedRaw,
	})

	upload := strings.NewReader(strings.Join([]string{
		"Property Id,Address,City",
		"101,1 Main St,Boise",
		"102,2 Oak Ave,Boise",
		"103,3 Elm Rd,Meridian",
	}, "\n"))

	status, err := h.service.SaveRawData(context.Background(), "file-1", "user-1", upload)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)

	require.Len(t, h.snapshots.created, 3)
	for _, snapshot := range h.snapshots.created {
		assert.Equal(t, "org-1", snapshot.OrgID)
		assert.Equal(t, "file-1", snapshot.ImportFileID)
		assert.Equal(t, models.SourceAssessedRaw, snapshot.SourceType)
	}

	assert.True(t, h.files.rawSaveFinished)
	assert.Equal(t, 3, h.files.numRows)
	assert.Equal(t, 3, h.files.numColumns)
	assert.Equal(t, strings.Join([]string{"Property Id", "Address", "City"}, models.RowDelimiter), h.files.firstRow)
	assert.Contains(t, h.files.secondToFifth, "1 Main St")

	pct := h.tracker.Get(context.Background(), progress.Key(StageSaveRaw, "file-1"))
	assert.Equal(t, 100, pct)
}

func TestSaveRawDataAlreadyDoneWarns(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		FileName:    "buildings.csv",
		SourceType:  models.SourceAssessedRaw,
		RawSaveDone: true,
	})

	status, err := h.service.SaveRawData(context.Background(), "file-1", "user-1", strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWarning, status.Status)
	assert.Empty(t, h.snapshots.created)

	pct := h.tracker.Get(context.Background(), progress.Key(StageSaveRaw, "file-1"))
	assert.Equal(t, 100, pct)
}

func TestSaveRawDataUnknownFileFails(t *testing.T) {
	h := newImporterHarness(nil)

	status, err := h.service.SaveRawData(context.Background(), "missing", "user-1", strings.NewReader(""))
	require.Error(t, err)
	assert.Equal(t, models.JobStatusError, status.Status)

	pct := h.tracker.Get(context.Background(), progress.Key(StageSaveRaw, "missing"))
	assert.Equal(t, progress.Failed, pct)
}

func TestMapDataRequeuesWhileRawSaveRunning(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:    "file-1",
		OrgID: "org-1",
	})

	status, err := h.service.MapData(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWarning, status.Status)
	assert.Contains(t, status.Message, "waiting on raw save")

	require.Len(t, h.jobs.jobs, 1)
	job := h.jobs.jobs[0]
	assert.True(t, job.delayed)
	assert.Equal(t, queue.JobTypeMapData, job.job.Type)
	assert.Equal(t, 60*time.Second, job.countdown)
	assert.Equal(t, 120*time.Second, job.expiry)
	assert.False(t, h.files.mappingFinished)
}

func TestMapDataMapsRawSnapshots(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		SourceType:  models.SourceAssessedRaw,
		RawSaveDone: true,
		NumRows:     3,
	})
	for _, id := range []string{"raw-1", "raw-2", "raw-3"} {
		raw := &models.BuildingSnapshot{
			ID:           id,
			OrgID:        "org-1",
			ImportFileID: "file-1",
			SourceType:   models.SourceAssessedRaw,
		}
		raw.ExtraData.Val = map[string]any{"Address": "1 Main St"}
		h.snapshots.raws = append(h.snapshots.raws, raw)
	}

	status, err := h.service.MapData(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)

	require.Len(t, h.snapshots.created, 3)
	for _, snapshot := range h.snapshots.created {
		assert.Equal(t, models.SourceAssessedBS, snapshot.SourceType)
	}
	assert.True(t, h.files.mappingFinished)

	pct := h.tracker.Get(context.Background(), progress.Key(StageMap, "file-1"))
	assert.Equal(t, 100, pct)
}

func TestMapDataAlreadyDoneWarns(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		RawSaveDone: true,
		MappingDone: true,
	})

	status, err := h.service.MapData(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWarning, status.Status)
	assert.Empty(t, h.jobs.jobs)
	assert.Empty(t, h.snapshots.created)
}

func TestMatchBuildingsRequeuesWhileMappingRunning(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		RawSaveDone: true,
	})

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWarning, status.Status)
	assert.Contains(t, status.Message, "waiting on mapping")

	require.Len(t, h.jobs.jobs, 1)
	job := h.jobs.jobs[0]
	assert.True(t, job.delayed)
	assert.Equal(t, queue.JobTypeMatchBuildings, job.job.Type)
	assert.Equal(t, 10*time.Second, job.countdown)
	assert.Equal(t, 20*time.Second, job.expiry)
	assert.Equal(t, 0, h.matcher.calls)
}

func TestMatchBuildingsFinishesImportRecord(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:             "file-1",
		OrgID:          "org-1",
		ImportRecordID: "record-1",
		RawSaveDone:    true,
		MappingDone:    true,
	})

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.Equal(t, 1, h.matcher.calls)
	assert.Equal(t, "record-1", h.records.finishedID)
	assert.Equal(t, models.ImportStatusReadyToMerge, h.records.finishedStatus)
}

func TestRemapDataRefusedAfterMatching(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:           "file-1",
		OrgID:        "org-1",
		RawSaveDone:  true,
		MappingDone:  true,
		MatchingDone: true,
	})

	status, err := h.service.RemapData(context.Background(), "file-1", "user-1")
	require.ErrorIs(t, err, ErrMatchingAlreadyRun)
	assert.Equal(t, models.JobStatusError, status.Status)
	assert.False(t, h.files.mappingReset)
	assert.Empty(t, h.jobs.jobs)
}

func TestRemapDataRefusedWhileMatchingRunning(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		RawSaveDone: true,
		MappingDone: true,
	})
	h.tracker.Set(context.Background(), progress.Key(matching.Stage, "file-1"), 40)

	status, err := h.service.RemapData(context.Background(), "file-1", "user-1")
	require.ErrorIs(t, err, ErrMatchingAlreadyRun)
	assert.Equal(t, models.JobStatusError, status.Status)
	assert.False(t, h.files.mappingReset)
	assert.Empty(t, h.jobs.jobs)
}

func TestRemapDataAllowedAfterMatchingFailure(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		RawSaveDone: true,
		MappingDone: true,
	})
	h.tracker.Set(context.Background(), progress.Key(matching.Stage, "file-1"), progress.Failed)

	status, err := h.service.RemapData(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.True(t, h.files.mappingReset)
}

func TestRemapDataResetsAndEnqueuesMapJob(t *testing.T) {
	h := newImporterHarness(&models.ImportFile{
		ID:          "file-1",
		OrgID:       "org-1",
		RawSaveDone: true,
		MappingDone: true,
	})
	h.snapshots.remapDeleted = 5

	status, err := h.service.RemapData(context.Background(), "file-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.True(t, h.files.mappingReset)

	require.Len(t, h.jobs.jobs, 1)
	job := h.jobs.jobs[0]
	assert.False(t, job.delayed)
	assert.Equal(t, queue.JobTypeMapData, job.job.Type)

	pct := h.tracker.Get(context.Background(), progress.Key(StageMap, "file-1"))
	assert.Equal(t, 0, pct)
}

func TestDeleteOrganizationBuildingsChunksDeletes(t *testing.T) {
	h := newImporterHarness(nil)
	h.snapshots.orgSnapshotIDs = []string{"s1", "s2", "s3", "s4", "s5"}
	h.canonicals.ids = []string{"c1", "c2"}

	status, err := h.service.DeleteOrganizationBuildings(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)

	assert.ElementsMatch(t, []string{"s1", "s2", "s3", "s4", "s5"}, h.snapshots.deletedIDs)
	assert.ElementsMatch(t, []string{"c1", "c2"}, h.canonicals.deletedIDs)

	pct := h.tracker.Get(context.Background(), progress.Key(StageDelete, "org-1"))
	assert.Equal(t, 100, pct)
}

func TestDeleteOrganizationBuildingsEmptyOrg(t *testing.T) {
	h := newImporterHarness(nil)

	status, err := h.service.DeleteOrganizationBuildings(context.Background(), "org-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.Empty(t, h.snapshots.deletedIDs)

	pct := h.tracker.Get(context.Background(), progress.Key(StageDelete, "org-1"))
	assert.Equal(t, 100, pct)
}
