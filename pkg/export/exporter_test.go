package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/sedum/internal/repositories/snapshot"
	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
)

var _ BuildingStore = (*snapshot.Repository)(nil)

type fakeBuildingStore struct {
	snapshots []*models.BuildingSnapshot
}

func (f *fakeBuildingStore) ListByIDs(_ context.Context, _ []string) ([]*models.BuildingSnapshot, error) {
	return f.snapshots, nil
}

type fakeObjectStore struct {
	key         string
	contentType string
	body        []byte
}

func (f *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, contentType string) error {
	f.key = key
	f.contentType = contentType
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.body = data
	return nil
}

func newExportHarness(snapshots []*models.BuildingSnapshot) (*Service, *fakeObjectStore, *progress.Tracker) {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	objects := &fakeObjectStore{}
	tracker := progress.NewTracker(progress.NewMemoryStore(), logger)
	service := NewService(logger, &fakeBuildingStore{snapshots: snapshots}, objects, tracker, audit.NoopSink{})
	return service, objects, tracker
}

func TestMakeExportKey(t *testing.T) {
	tests := []struct {
		name       string
		exportName string
		want       string
	}{
		{name: "simple", exportName: "buildings", want: "exports/exp-1/buildings.csv"},
		{name: "spaces collapse to dashes", exportName: "  My  Buildings ", want: "exports/exp-1/my-buildings.csv"},
		{name: "empty name falls back", exportName: "", want: "exports/exp-1/export.csv"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MakeExportKey("exp-1", tt.exportName, "csv"))
		})
	}
}

func TestExportBuildingsWritesCSV(t *testing.T) {
	year := 1987
	gfa := 52000.5
	b := &models.BuildingSnapshot{
		ID:           "snap-1",
		OrgID:        "org-1",
		PMPropertyID: "101",
		AddressLine1: "1 Main St",
		City:         "Boise",
	}
	b.YearBuilt = &year
	b.GrossFloorArea = &gfa
	b.ExtraData.Val = map[string]any{"Energy Star Score": 75}

	service, objects, tracker := newExportHarness([]*models.BuildingSnapshot{b})

	fields := []string{"id", "pm_property_id", "address_line_1", "year_built", "gross_floor_area", "Energy Star Score"}
	status, err := service.ExportBuildings(context.Background(), "org-1", "user-1", "exp-1", "My Buildings", TypeCSV, []string{"snap-1"}, fields)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)
	assert.Equal(t, "exports/exp-1/my-buildings.csv", objects.key)
	assert.Equal(t, "text/csv", objects.contentType)

	records, err := csv.NewReader(bytes.NewReader(objects.body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, fields, records[0])
	assert.Equal(t, []string{"snap-1", "101", "1 Main St", "1987", "52000.5", "75"}, records[1])

	pct := tracker.Get(context.Background(), progress.Key(Stage, "exp-1"))
	assert.Equal(t, 100, pct)
}

func TestExportBuildingsUnsupportedType(t *testing.T) {
	service, objects, tracker := newExportHarness(nil)

	status, err := service.ExportBuildings(context.Background(), "org-1", "user-1", "exp-1", "buildings", "xlsx", nil, nil)
	require.ErrorIs(t, err, ErrUnsupportedType)
	assert.Equal(t, models.JobStatusError, status.Status)
	assert.Empty(t, objects.key)

	pct := tracker.Get(context.Background(), progress.Key(Stage, "exp-1"))
	assert.Equal(t, progress.Failed, pct)
}

func TestExportBuildingsEmptySetStillUploadsHeader(t *testing.T) {
	service, objects, tracker := newExportHarness(nil)

	status, err := service.ExportBuildings(context.Background(), "org-1", "user-1", "exp-1", "buildings", TypeCSV, nil, []string{"id", "city"})
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusSuccess, status.Status)

	records, err := csv.NewReader(bytes.NewReader(objects.body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, []string{"id", "city"}, records[0])

	pct := tracker.Get(context.Background(), progress.Key(Stage, "exp-1"))
	assert.Equal(t, 100, pct)
}
