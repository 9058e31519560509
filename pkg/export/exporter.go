// Package export writes an organization's building snapshots out to an
// object store as CSV so the front end can hand the user a download
// link. Progress is tracked per row under the export_buildings stage.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/sedum/pkg/audit"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

// Stage is the progress stage for exports.
const Stage = "export_buildings"

// TypeCSV is the only supported export format.
const TypeCSV = "csv"

// ErrUnsupportedType is returned for export formats we don't produce.
var ErrUnsupportedType = fmt.Errorf("unsupported export type")

// BuildingStore loads the snapshots being exported.
type BuildingStore interface {
	ListByIDs(ctx context.Context, ids []string) ([]*models.BuildingSnapshot, error)
}

// ObjectStore receives the finished export file.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, contentType string) error
}

// Service produces building exports.
type Service struct {
	log       ectologger.Logger
	buildings BuildingStore
	objects   ObjectStore
	tracker   *progress.Tracker
	auditor   audit.Sink
}

// NewService creates the export service.
func NewService(log ectologger.Logger, buildings BuildingStore, objects ObjectStore, tracker *progress.Tracker, auditor audit.Sink) *Service {
	return &Service{log: log, buildings: buildings, objects: objects, tracker: tracker, auditor: auditor}
}

// MakeExportKey builds the object-store key for an export. The name is
// lowercased with spaces collapsed to dashes so the key is URL safe.
func MakeExportKey(exportID, name, exportType string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Join(strings.Fields(slug), "-")
	if slug == "" {
		slug = "export"
	}
	return fmt.Sprintf("exports/%s/%s.%s", exportID, slug, exportType)
}

// ExportBuildings writes the named snapshots as CSV and uploads the
// result. An unsupported export type fails the progress key before any
// rows are read.
func (s *Service) ExportBuildings(ctx context.Context, orgID, userID, exportID, name, exportType string, buildingIDs, fields []string) (models.JobStatus, error) {
	ctx, span := tracing.StartSpan(ctx, "export.Service.ExportBuildings")
	defer span.End()

	progressKey := progress.Key(Stage, exportID)
	log := s.log.WithContext(ctx).WithFields(map[string]any{
		"export_id":    exportID,
		"export_type":  exportType,
		"progress_key": progressKey,
	})

	if exportType != TypeCSV {
		log.WithField("export_type", exportType).Error("Unsupported export type")
		s.tracker.Set(ctx, progressKey, progress.Failed)
		return models.JobStatus{Status: models.JobStatusError, Message: ErrUnsupportedType.Error(), ProgressKey: progressKey}, ErrUnsupportedType
	}
	if len(fields) == 0 {
		fields = DefaultFields()
	}

	snapshots, err := s.buildings.ListByIDs(ctx, buildingIDs)
	if err != nil {
		s.tracker.Set(ctx, progressKey, progress.Failed)
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(fields); err != nil {
		s.tracker.Set(ctx, progressKey, progress.Failed)
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	var step float64
	if len(snapshots) > 0 {
		step = 1 / float64(len(snapshots)) * 100
	}
	for _, snapshot := range snapshots {
		row := make([]string, len(fields))
		for i, field := range fields {
			row[i] = fieldValue(snapshot, field)
		}
		if err := writer.Write(row); err != nil {
			s.tracker.Set(ctx, progressKey, progress.Failed)
			return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
		}
		s.tracker.Increment(ctx, progressKey, step)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.tracker.Set(ctx, progressKey, progress.Failed)
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	key := MakeExportKey(exportID, name, exportType)
	if err := s.objects.Put(ctx, key, bytes.NewReader(buf.Bytes()), "text/csv"); err != nil {
		log.WithError(err).Error("Failed to upload export")
		s.tracker.Set(ctx, progressKey, progress.Failed)
		return models.JobStatus{Status: models.JobStatusError, Message: err.Error(), ProgressKey: progressKey}, err
	}

	s.tracker.Set(ctx, progressKey, 100)
	s.auditor.Record(ctx, audit.Entry{
		OrgID:   orgID,
		ActorID: userID,
		Subject: exportID,
		Action:  audit.ActionBuildingsExported,
		Note:    key,
	})

	log.WithField("rows", len(snapshots)).Info("Export complete")
	return models.JobStatus{Status: models.JobStatusSuccess, ProgressKey: progressKey}, nil
}

// DefaultFields returns the columns exported when the caller doesn't
// pick any.
func DefaultFields() []string {
	return []string{
		"id",
		"pm_property_id",
		"tax_lot_id",
		"custom_id_1",
		"address_line_1",
		"address_line_2",
		"city",
		"state_province",
		"postal_code",
		"property_name",
		"year_built",
		"gross_floor_area",
	}
}

// fieldValue resolves an export column against a snapshot. Unknown
// columns fall through to extra data.
func fieldValue(b *models.BuildingSnapshot, field string) string {
	switch field {
	case "id":
		return b.ID
	case "pm_property_id":
		return b.PMPropertyID
	case "tax_lot_id":
		return b.TaxLotID
	case "custom_id_1":
		return b.CustomID1
	case "address_line_1":
		return b.AddressLine1
	case "address_line_2":
		return b.AddressLine2
	case "city":
		return b.City
	case "state_province":
		return b.StateProvince
	case "postal_code":
		return b.PostalCode
	case "property_name":
		return b.PropertyName
	case "year_built":
		if b.YearBuilt == nil {
			return ""
		}
		return strconv.Itoa(*b.YearBuilt)
	case "gross_floor_area":
		if b.GrossFloorArea == nil {
			return ""
		}
		return strconv.FormatFloat(*b.GrossFloorArea, 'f', -1, 64)
	}
	if b.ExtraData.Val == nil {
		return ""
	}
	if value, ok := b.ExtraData.Val[field]; ok {
		return fmt.Sprintf("%v", value)
	}
	return ""
}
