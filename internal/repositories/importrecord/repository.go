// Package importrecord persists import records, the per-upload batch
// grouping of import files.
package importrecord

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
	"github.com/Ramsey-B/sedum/pkg/tracing"
)

var columns = []string{
	"id", "org_id", "owner_user_id", "name", "status",
	"premerge_analysis_done", "premerge_analysis_active", "premerge_analysis_queued",
	"merge_analysis_done", "merge_analysis_active", "merge_analysis_queued",
	"finish_time", "created_at", "updated_at",
}

// Repository handles import record persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import record repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an import record.
func (r *Repository) Create(ctx context.Context, record *models.ImportRecord) (*models.ImportRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "importrecord.Repository.Create")
	defer span.End()

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Status == "" {
		record.Status = models.ImportStatusUploading
	}
	record.CreatedAt = time.Now().UTC()
	record.UpdatedAt = record.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("import_records")
	sb.Cols(columns...)
	sb.Values(
		record.ID, record.OrgID, record.OwnerUserID, record.Name, record.Status,
		record.PremergeAnalysisDone, record.PremergeAnalysisActive, record.PremergeAnalysisQueued,
		record.MergeAnalysisDone, record.MergeAnalysisActive, record.MergeAnalysisQueued,
		record.FinishTime, record.CreatedAt, record.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_record_id": record.ID}).Error("Failed to create import record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import record")
	}
	return record, nil
}

// GetByID retrieves one import record, nil when it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ImportRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "importrecord.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("import_records")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var record models.ImportRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_record_id": id}).Error("Failed to get import record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import record")
	}
	return &record, nil
}

// Finish sets the record's terminal status and finish time.
func (r *Repository) Finish(ctx context.Context, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "importrecord.Repository.Finish")
	defer span.End()

	now := time.Now().UTC()
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_records")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("finish_time", now),
		ub.Assign("updated_at", now),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_record_id": id, "status": status}).Error("Failed to finish import record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish import record")
	}
	return nil
}

// SetStatus updates the record's status without touching finish time.
func (r *Repository) SetStatus(ctx context.Context, id, status string) error {
	ctx, span := tracing.StartSpan(ctx, "importrecord.Repository.SetStatus")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_records")
	ub.Set(
		ub.Assign("status", status),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_record_id": id, "status": status}).Error("Failed to set import record status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set import record status")
	}
	return nil
}
