// Package column persists an organization's column mappings from raw
// file headers to canonical snapshot fields.
package column

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

var columns = []string{"id", "org_id", "raw_column_name", "mapped_name", "unit_type", "created_at", "updated_at"}

// Repository handles column mapping persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new column mapping repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert creates or updates a mapping for (org, raw column).
func (r *Repository) Upsert(ctx context.Context, mapping *models.Column) (*models.Column, error) {
	ctx, span := tracing.StartSpan(ctx, "column.Repository.Upsert")
	defer span.End()

	if mapping.ID == "" {
		mapping.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	mapping.CreatedAt = now
	mapping.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("columns")
	sb.Cols(columns...)
	sb.Values(mapping.ID, mapping.OrgID, mapping.RawColumnName, mapping.MappedName, mapping.UnitType, mapping.CreatedAt, mapping.UpdatedAt)

	query, args := sb.Build()
	query += " ON CONFLICT (org_id, raw_column_name) DO UPDATE SET mapped_name = EXCLUDED.mapped_name, unit_type = EXCLUDED.unit_type, updated_at = EXCLUDED.updated_at"

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": mapping.OrgID, "raw_column_name": mapping.RawColumnName}).Error("Failed to upsert column mapping")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to upsert column mapping")
	}
	return mapping, nil
}

// ListByOrg returns every column mapping for an organization.
func (r *Repository) ListByOrg(ctx context.Context, orgID string) ([]*models.Column, error) {
	ctx, span := tracing.StartSpan(ctx, "column.Repository.ListByOrg")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("columns")
	sb.Where(sb.Equal("org_id", orgID))
	sb.OrderBy("raw_column_name")

	query, args := sb.Build()
	var mappings []*models.Column
	if err := r.db.SelectContext(ctx, &mappings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID}).Error("Failed to list column mappings")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list column mappings")
	}
	return mappings, nil
}
