// Package snapshot persists building snapshots through their raw,
// mapped and merged lifecycle.
package snapshot

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
	"id", "org_id", "import_file_id", "source_type",
	"pm_property_id", "tax_lot_id", "custom_id_1",
	"address_line_1", "address_line_2", "city", "state_province", "postal_code", "property_name",
	"year_built", "gross_floor_area", "extra_data",
	"parent1_id", "parent2_id", "children_count",
	"canonical_building_id", "confidence", "match_type",
	"created_at", "updated_at",
}

// idProbeFields are the identifier columns compared pairwise during
// exact matching. Every probe value is checked against every canonical
// column, 9 combinations in total.
var idProbeFields = []string{"pm_property_id", "tax_lot_id", "custom_id_1"}

// Repository handles building snapshot persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new snapshot repository.
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

// Create inserts a snapshot, assigning an id when the caller didn't.
func (r *Repository) Create(ctx context.Context, snapshot *models.BuildingSnapshot) (*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.Create")
	defer span.End()

	if snapshot.ID == "" {
		snapshot.ID = uuid.New().String()
	}
	snapshot.CreatedAt = time.Now().UTC()
	snapshot.UpdatedAt = snapshot.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("building_snapshots")
	sb.Cols(columns...)
	sb.Values(
		snapshot.ID, snapshot.OrgID, snapshot.ImportFileID, snapshot.SourceType,
		snapshot.PMPropertyID, snapshot.TaxLotID, snapshot.CustomID1,
		snapshot.AddressLine1, snapshot.AddressLine2, snapshot.City, snapshot.StateProvince, snapshot.PostalCode, snapshot.PropertyName,
		snapshot.YearBuilt, snapshot.GrossFloorArea, snapshot.ExtraData,
		snapshot.Parent1ID, snapshot.Parent2ID, snapshot.ChildrenCount,
		snapshot.CanonicalBuildingID, snapshot.Confidence, snapshot.MatchType,
		snapshot.CreatedAt, snapshot.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"snapshot_id": snapshot.ID}).Error("Failed to create snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create snapshot")
	}
	return snapshot, nil
}

// CreateBatch inserts a chunk of snapshots in one statement.
func (r *Repository) CreateBatch(ctx context.Context, snapshots []*models.BuildingSnapshot) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.CreateBatch")
	defer span.End()

	if len(snapshots) == 0 {
		return nil
	}

	now := time.Now().UTC()
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("building_snapshots")
	sb.Cols(columns...)
	for _, snapshot := range snapshots {
		if snapshot.ID == "" {
			snapshot.ID = uuid.New().String()
		}
		snapshot.CreatedAt = now
		snapshot.UpdatedAt = now
		sb.Values(
			snapshot.ID, snapshot.OrgID, snapshot.ImportFileID, snapshot.SourceType,
			snapshot.PMPropertyID, snapshot.TaxLotID, snapshot.CustomID1,
			snapshot.AddressLine1, snapshot.AddressLine2, snapshot.City, snapshot.StateProvince, snapshot.PostalCode, snapshot.PropertyName,
			snapshot.YearBuilt, snapshot.GrossFloorArea, snapshot.ExtraData,
			snapshot.Parent1ID, snapshot.Parent2ID, snapshot.ChildrenCount,
			snapshot.CanonicalBuildingID, snapshot.Confidence, snapshot.MatchType,
			snapshot.CreatedAt, snapshot.UpdatedAt,
		)
	}

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(snapshots)}).Error("Failed to create snapshot batch")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create snapshots")
	}
	return nil
}

// GetByID retrieves one snapshot, nil when it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("building_snapshots")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var snapshot models.BuildingSnapshot
	if err := r.db.GetContext(ctx, &snapshot, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"snapshot_id": id}).Error("Failed to get snapshot")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get snapshot")
	}
	return &snapshot, nil
}

// ListRawByImportFile pages through the unmapped rows of a file in
// insertion order.
func (r *Repository) ListRawByImportFile(ctx context.Context, importFileID string, limit, offset int) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.ListRawByImportFile")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("building_snapshots")
	sb.Where(
		sb.Equal("import_file_id", importFileID),
		sb.In("source_type", models.SourceAssessedRaw, models.SourcePortfolioRaw, models.SourceGreenButtonRaw),
	)
	sb.OrderBy("created_at", "id")
	sb.Limit(limit)
	sb.Offset(offset)

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": importFileID}).Error("Failed to list raw snapshots")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list raw snapshots")
	}
	return snapshots, nil
}

// FindUnmatchedByImportFile returns the file's mapped snapshots that
// have not been linked to a canonical building yet.
func (r *Repository) FindUnmatchedByImportFile(ctx context.Context, importFileID string) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.FindUnmatchedByImportFile")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("building_snapshots")
	sb.Where(
		sb.Equal("import_file_id", importFileID),
		sb.In("source_type", models.SourceAssessedBS, models.SourcePortfolioBS, models.SourceGreenButtonBS),
		sb.IsNull("canonical_building_id"),
	)
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": importFileID}).Error("Failed to find unmatched snapshots")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find unmatched snapshots")
	}
	return snapshots, nil
}

// FindCanonicalSnapshots returns the active snapshot of every active
// canonical building in the organization.
func (r *Repository) FindCanonicalSnapshots(ctx context.Context, orgID string) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.FindCanonicalSnapshots")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(prefixed("bs", columns)...)
	sb.From("building_snapshots bs")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "canonical_buildings cb", "cb.canonical_snapshot_id = bs.id")
	sb.Where(
		sb.Equal("cb.org_id", orgID),
		sb.Equal("cb.active", true),
	)
	sb.OrderBy("bs.created_at", "bs.id")

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID}).Error("Failed to find canonical snapshots")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find canonical snapshots")
	}
	return snapshots, nil
}

// FindCanonicalIDMatches returns canonical snapshots sharing any
// identifier value with the probe. Empty probe values never match;
// an empty probe across all three identifiers matches nothing.
func (r *Repository) FindCanonicalIDMatches(ctx context.Context, orgID string, probe *models.BuildingSnapshot) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.FindCanonicalIDMatches")
	defer span.End()

	values := []string{probe.PMPropertyID, probe.TaxLotID, probe.CustomID1}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(prefixed("bs", columns)...)
	sb.From("building_snapshots bs")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "canonical_buildings cb", "cb.canonical_snapshot_id = bs.id")

	var pairs []string
	for _, value := range values {
		if value == "" {
			continue
		}
		for _, field := range idProbeFields {
			pairs = append(pairs, sb.Equal("bs."+field, value))
		}
	}
	if len(pairs) == 0 {
		return nil, nil
	}

	sb.Where(
		sb.Equal("cb.org_id", orgID),
		sb.Equal("cb.active", true),
		sb.Or(pairs...),
	)
	sb.OrderBy("bs.created_at", "bs.id")

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID, "probe_id": probe.ID}).Error("Failed to find identifier matches")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find identifier matches")
	}
	return snapshots, nil
}

// SetCanonical links a snapshot to its canonical building along with
// the match metadata that justified the link.
func (r *Repository) SetCanonical(ctx context.Context, snapshotID, canonicalID string, confidence *float64, matchType *models.MatchType) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.SetCanonical")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("building_snapshots")
	ub.Set(
		ub.Assign("canonical_building_id", canonicalID),
		ub.Assign("confidence", confidence),
		ub.Assign("match_type", matchType),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", snapshotID))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"snapshot_id": snapshotID, "canonical_id": canonicalID}).Error("Failed to set canonical link")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to set canonical link")
	}
	return nil
}

// IncrementChildren bumps children_count on the given snapshots.
func (r *Repository) IncrementChildren(ctx context.Context, snapshotIDs []string) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.IncrementChildren")
	defer span.End()

	if len(snapshotIDs) == 0 {
		return nil
	}

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("building_snapshots")
	ub.Set(
		"children_count = children_count + 1",
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ids := make([]any, len(snapshotIDs))
	for i, id := range snapshotIDs {
		ids[i] = id
	}
	ub.Where(ub.In("id", ids...))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(snapshotIDs)}).Error("Failed to increment children counts")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to increment children counts")
	}
	return nil
}

// DeleteMappedForRemap removes the file's mapped snapshots so mapping
// can run again. Snapshots with children are kept; they are part of a
// merge lineage that must survive the remap.
func (r *Repository) DeleteMappedForRemap(ctx context.Context, importFileID string) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.DeleteMappedForRemap")
	defer span.End()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("building_snapshots")
	db.Where(
		db.Equal("import_file_id", importFileID),
		db.In("source_type", models.SourceAssessedBS, models.SourcePortfolioBS, models.SourceGreenButtonBS),
		db.Equal("children_count", 0),
	)

	query, args := db.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": importFileID}).Error("Failed to delete mapped snapshots")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete mapped snapshots")
	}
	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// ListIDsByOrg returns every snapshot id in the organization.
func (r *Repository) ListIDsByOrg(ctx context.Context, orgID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.ListIDsByOrg")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id")
	sb.From("building_snapshots")
	sb.Where(sb.Equal("org_id", orgID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"org_id": orgID}).Error("Failed to list snapshot ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list snapshot ids")
	}
	return ids, nil
}

// DeleteByIDs removes snapshots by id.
func (r *Repository) DeleteByIDs(ctx context.Context, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.DeleteByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom("building_snapshots")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	db.Where(db.In("id", args...))

	query, queryArgs := db.Build()
	if _, err := r.db.ExecContext(ctx, query, queryArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"count": len(ids)}).Error("Failed to delete snapshots")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete snapshots")
	}
	return nil
}

// ListByCanonical returns every snapshot linked to a canonical building.
func (r *Repository) ListByCanonical(ctx context.Context, canonicalID string) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.ListByCanonical")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("building_snapshots")
	sb.Where(sb.Equal("canonical_building_id", canonicalID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"canonical_id": canonicalID}).Error("Failed to list snapshots by canonical")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list snapshots by canonical")
	}
	return snapshots, nil
}

func (r *Repository) ListByIDs(ctx context.Context, ids []string) ([]*models.BuildingSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "snapshot.Repository.ListByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("building_snapshots")
	inArgs := make([]any, len(ids))
	for i, id := range ids {
		inArgs[i] = id
	}
	sb.Where(sb.In("id", inArgs...))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var snapshots []*models.BuildingSnapshot
	if err := r.db.SelectContext(ctx, &snapshots, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list snapshots by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list snapshots by ids")
	}
	return snapshots, nil
}

func prefixed(alias string, cols []string) []string {
	out := make([]string, len(cols))
	for i, col := range cols {
		out[i] = alias + "." + col
	}
	return out
}
