package matching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/batch"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
)

type fakeSnapshotStore struct {
	unmatched  []*models.BuildingSnapshot
	canonicals []*models.BuildingSnapshot
}

func (f *fakeSnapshotStore) FindUnmatchedByImportFile(_ context.Context, _ string) ([]*models.BuildingSnapshot, error) {
	return f.unmatched, nil
}

func (f *fakeSnapshotStore) FindCanonicalIDMatches(_ context.Context, _ string, probe *models.BuildingSnapshot) ([]*models.BuildingSnapshot, error) {
	var hits []*models.BuildingSnapshot
	for _, canonical := range f.canonicals {
		if idFieldsOverlap(probe, canonical) {
			hits = append(hits, canonical)
		}
	}
	return hits, nil
}

func idFieldsOverlap(probe, canonical *models.BuildingSnapshot) bool {
	probes := []string{probe.PMPropertyID, probe.TaxLotID, probe.CustomID1}
	targets := []string{canonical.PMPropertyID, canonical.TaxLotID, canonical.CustomID1}
	for _, p := range probes {
		if p == "" {
			continue
		}
		for _, t := range targets {
			if p == t {
				return true
			}
		}
	}
	return false
}

func (f *fakeSnapshotStore) FindCanonicalSnapshots(_ context.Context, _ string) ([]*models.BuildingSnapshot, error) {
	return f.canonicals, nil
}

type fakeImportStore struct {
	file     *models.ImportFile
	finished bool
}

func (f *fakeImportStore) GetByID(_ context.Context, _ string) (*models.ImportFile, error) {
	return f.file, nil
}

func (f *fakeImportStore) FinishMatching(_ context.Context, _ string) error {
	f.finished = true
	return nil
}

type mergeCall struct {
	snapshotID  string
	canonicalID string
	confidence  float64
	matchType   models.MatchType
}

type fakeMerger struct {
	mutex         sync.Mutex
	merges        []mergeCall
	promoted      []string
	failPromoteID string
}

func (f *fakeMerger) Merge(_ context.Context, snapshot, canonical *models.BuildingSnapshot, confidence float64, matchType models.MatchType, _ string) (*models.BuildingSnapshot, error) {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	f.merges = append(f.merges, mergeCall{
		snapshotID:  snapshot.ID,
		canonicalID: canonical.ID,
		confidence:  confidence,
		matchType:   matchType,
	})
	merged := *snapshot
	merged.ID = fmt.Sprintf("merged-%d", len(f.merges))
	return &merged, nil
}

func (f *fakeMerger) Promote(_ context.Context, snapshot *models.BuildingSnapshot, _ string) error {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	if snapshot.ID == f.failPromoteID {
		return fmt.Errorf("promote %s failed", snapshot.ID)
	}
	f.promoted = append(f.promoted, snapshot.ID)
	return nil
}

type passthroughLocker struct {
	mutex sync.Mutex
}

func (l *passthroughLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return fn(ctx)
}

type testHarness struct {
	service *Service
	store   *fakeSnapshotStore
	imports *fakeImportStore
	merger  *fakeMerger
	tracker *progress.Tracker
}

func newHarness(unmatched, canonicals []*models.BuildingSnapshot) *testHarness {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := &fakeSnapshotStore{unmatched: unmatched, canonicals: canonicals}
	imports := &fakeImportStore{
		file: &models.ImportFile{ID: "file-1", OrgID: "org-1", MappingDone: true},
	}
	merger := &fakeMerger{}
	tracker := progress.NewTracker(progress.NewMemoryStore(), logger)
	service := NewService(
		logger,
		store,
		imports,
		merger,
		&passthroughLocker{},
		tracker,
		batch.NewExecutor(2, logger),
		audit.NoopSink{},
		DefaultThresholds(),
		2,
	)
	return &testHarness{service: service, store: store, imports: imports, merger: merger, tracker: tracker}
}

func makeSnapshot(id string, fields map[string]string) *models.BuildingSnapshot {
	b := &models.BuildingSnapshot{
		ID:         id,
		OrgID:      "org-1",
		SourceType: models.SourceAssessedBS,
	}
	b.PMPropertyID = fields["pm_property_id"]
	b.TaxLotID = fields["tax_lot_id"]
	b.CustomID1 = fields["custom_id_1"]
	b.AddressLine1 = fields["address_line_1"]
	b.City = fields["city"]
	b.PropertyName = fields["property_name"]
	return b
}

func TestMatchBuildings_FirstImportPromotesEverything(t *testing.T) {
	unmatched := []*models.BuildingSnapshot{
		makeSnapshot("s1", map[string]string{"address_line_1": "100 Main St", "city": "Springfield"}),
		makeSnapshot("s2", map[string]string{"address_line_1": "200 Oak Ave", "city": "Springfield"}),
		makeSnapshot("s3", map[string]string{"address_line_1": "300 Pine Rd", "city": "Shelbyville"}),
	}
	h := newHarness(unmatched, nil)

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, h.merger.promoted)
	assert.Empty(t, h.merger.merges)
	assert.True(t, h.imports.finished)
	assert.Equal(t, 100, h.tracker.Get(context.Background(), status.ProgressKey))
}

func TestMatchBuildings_FirstImportReportsProgressPerChunk(t *testing.T) {
	unmatched := []*models.BuildingSnapshot{
		makeSnapshot("s1", map[string]string{"address_line_1": "100 Main St"}),
		makeSnapshot("s2", map[string]string{"address_line_1": "200 Oak Ave"}),
		makeSnapshot("s3", map[string]string{"address_line_1": "300 Pine Rd"}),
		makeSnapshot("s4", map[string]string{"address_line_1": "400 Elm Ct"}),
	}
	h := newHarness(unmatched, nil)
	h.merger.failPromoteID = "s3"

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.Error(t, err)
	assert.Equal(t, models.JobStatusError, status.Status)
	// The first chunk of two finished before the failure, so pollers
	// see its increment rather than a stuck zero.
	assert.Equal(t, 50, h.tracker.Get(context.Background(), status.ProgressKey))
	assert.ElementsMatch(t, []string{"s1", "s2"}, h.merger.promoted)
	assert.False(t, h.imports.finished)
}

func TestMatchBuildings_ExactIdentifierMatch(t *testing.T) {
	canonical := makeSnapshot("c1", map[string]string{
		"pm_property_id": "PM-42",
		"address_line_1": "1 Canonical Way",
	})
	duplicate := makeSnapshot("s1", map[string]string{
		"custom_id_1":    "PM-42",
		"address_line_1": "totally different address text here",
	})
	h := newHarness([]*models.BuildingSnapshot{duplicate}, []*models.BuildingSnapshot{canonical})

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	require.Len(t, h.merger.merges, 1)
	assert.Equal(t, "s1", h.merger.merges[0].snapshotID)
	assert.Equal(t, "c1", h.merger.merges[0].canonicalID)
	assert.Equal(t, models.ExactMatchConfidence, h.merger.merges[0].confidence)
	assert.Equal(t, models.SystemMatch, h.merger.merges[0].matchType)
	assert.Empty(t, h.merger.promoted)
}

func TestMatchBuildings_ExactMatchesChain(t *testing.T) {
	c1 := makeSnapshot("c1", map[string]string{"pm_property_id": "PM-1"})
	c2 := makeSnapshot("c2", map[string]string{"tax_lot_id": "LOT-9"})
	bridge := makeSnapshot("s1", map[string]string{"pm_property_id": "PM-1", "tax_lot_id": "LOT-9"})
	h := newHarness([]*models.BuildingSnapshot{bridge}, []*models.BuildingSnapshot{c1, c2})

	_, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.NoError(t, err)
	require.Len(t, h.merger.merges, 2)
	assert.Equal(t, "s1", h.merger.merges[0].snapshotID)
	assert.True(t, strings.HasPrefix(h.merger.merges[1].snapshotID, "merged-"))
}

func TestMatchBuildings_FuzzyMatch(t *testing.T) {
	canonical := makeSnapshot("c1", map[string]string{
		"address_line_1": "100 Main Street",
		"city":           "Springfield",
		"property_name":  "City Hall",
	})
	near := makeSnapshot("s1", map[string]string{
		"address_line_1": "100 Main St",
		"city":           "Springfield",
		"property_name":  "City Hall",
	})
	far := makeSnapshot("s2", map[string]string{
		"address_line_1": "9 Industrial Causeway",
		"city":           "North Haverbrook",
		"property_name":  "Monorail Depot",
	})
	h := newHarness([]*models.BuildingSnapshot{near, far}, []*models.BuildingSnapshot{canonical})

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	require.Len(t, h.merger.merges, 1)
	assert.Equal(t, "s1", h.merger.merges[0].snapshotID)
	assert.Equal(t, "c1", h.merger.merges[0].canonicalID)
	assert.Greater(t, h.merger.merges[0].confidence, 0.4)
	assert.Equal(t, []string{"s2"}, h.merger.promoted)
}

func TestMatchBuildings_AlreadyDoneIsWarning(t *testing.T) {
	h := newHarness(nil, nil)
	h.imports.file.MatchingDone = true

	status, err := h.service.MatchBuildings(context.Background(), "file-1", "user-1")

	require.NoError(t, err)
	assert.Equal(t, models.JobStatusWarning, status.Status)
	assert.False(t, h.imports.finished)
	assert.Equal(t, 100, h.tracker.Get(context.Background(), status.ProgressKey))
}
