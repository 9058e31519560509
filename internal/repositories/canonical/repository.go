// Package canonical persists canonical buildings, the stable per-org
// identities that snapshots merge into.
package canonical

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

var columns = []string{"id", "org_id", "canonical_snapshot_id", "active", "created_at", "updated_at"}

// Repository handles canonical building persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new canonical building repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database for transaction scoping.
func (r *Repository) DB() database.DB {
	return r.db
}

// Create inserts a canonical building.
func (r *Repository) Create(ctx context.Context, canonical *models.CanonicalBuilding) (*models.CanonicalBuilding, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Create")
	defer span.End()

	if canonical.ID == "" {
		canonical.ID = uuid.New().String()
	}
	canonical.CreatedAt = time.Now().UTC()
	canonical.UpdatedAt = canonical.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("canonical_buildings")
	sb.Cols(columns...)
	sb.Values(canonical.ID, canonical.OrgID, canonical.CanonicalSnapshotID, canonical.Active, canonical.CreatedAt, canonical.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonical.ID}).Error("Failed to create canonical building")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create canonical building")
	}
	return canonical, nil
}

// GetByID retrieves one canonical building, nil when it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.CanonicalBuilding, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("canonical_buildings")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var canonical models.CanonicalBuilding
	if err := r.db.GetContext(ctx, &canonical, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": id}).Error("Failed to get canonical building")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get canonical building")
	}
	return &canonical, nil
}

// CountActiveByOrg counts the organization's active canonical buildings.
func (r *Repository) CountActiveByOrg(ctx context.Context, orgID string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.CountActiveByOrg")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("canonical_buildings")
	sb.Where(
		sb.Equal("org_id", orgID),
		sb.Equal("active", true),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID}).Error("Failed to count canonical buildings")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count canonical buildings")
	}
	return count, nil
}

// Repoint moves a canonical building's active snapshot pointer.
func (r *Repository) Repoint(ctx context.Context, canonicalID, snapshotID string) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Repoint")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("canonical_buildings")
	ub.Set(
		ub.Assign("canonical_snapshot_id", snapshotID),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", canonicalID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID, "snapshot_id": snapshotID}).Error("Failed to repoint canonical building")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to repoint canonical building")
	}
	return nil
}

// Deactivate marks a canonical building inactive. Used when a merge
// collapses two canonical lineages into one.
func (r *Repository) Deactivate(ctx context.Context, canonicalID string) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.Deactivate")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("canonical_buildings")
	ub.Set(
		ub.Assign("active", false),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", canonicalID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to deactivate canonical building")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to deactivate canonical building")
	}
	return nil
}

// ListIDsByOrg returns every canonical building id in the organization.
func (r *Repository) ListIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.ListIDsByOrg")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("canonical_buildings")
	sb.Where(sb.Equal("org_id", orgID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID}).Error("Failed to list canonical ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list canonical ids")
	}
	return ids, nil
}

// DeleteByIDs removes canonical buildings by id.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "canonical.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("canonical_buildings")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	db.Where(db.In("id", args...))

	query, queryArgs := db.Build()
	if _, err := r.db.ExecContext(ctx, query, queryArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to delete canonical buildings")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete canonical buildings")
	}
	return nil
}
