// Package importfile persists import files and their stage flags.
package importfile

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
	"id", "import_record_id", "org_id", "file_name", "source_type",
	"raw_save_done", "mapping_done", "matching_done", "mapping_completion",
	"num_rows", "num_columns", "cached_first_row", "cached_second_to_fifth_row",
	"created_at", "updated_at",
}

// Repository handles import file persistence.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new import file repository.
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts an import file.
func (r *Repository) Create(ctx context.Context, file *models.ImportFile) (*models.ImportFile, error) {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.Create")
	defer span.End()

	if file.ID == "" {
		file.ID = uuid.New().String()
	}
	file.CreatedAt = time.Now().UTC()
	file.UpdatedAt = file.CreatedAt

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("import_files")
	sb.Cols(columns...)
	sb.Values(
		file.ID, file.ImportRecordID, file.OrgID, file.FileName, file.SourceType,
		file.RawSaveDone, file.MappingDone, file.MatchingDone, file.MappingCompletion,
		file.NumRows, file.NumColumns, file.CachedFirstRow, file.CachedSecondToFifthRow,
		file.CreatedAt, file.UpdatedAt,
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": file.ID}).Error("Failed to create import file")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create import file")
	}
	return file, nil
}

// GetByID retrieves one import file, nil when it doesn't exist.
func (r *Repository) GetByID(ctx context.Context, id string) (*models.ImportFile, error) {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("import_files")
	sb.Where(sb.Equal("id", id))
	sb.Limit(1)

	query, args := sb.Build()
	var file models.ImportFile
	if err := r.db.GetContext(ctx, &file, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": id}).Error("Failed to get import file")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get import file")
	}
	return &file, nil
}

// FinishRawSave records successful raw parsing along with the preview
// cache for the front end.
func (r *Repository) FinishRawSave(ctx context.Context, id string, numRows, numColumns int, firstRow, secondToFifth string) error {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.FinishRawSave")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_files")
	ub.Set(
		ub.Assign("raw_save_done", true),
		ub.Assign("num_rows", numRows),
		ub.Assign("num_columns", numColumns),
		ub.Assign("cached_first_row", firstRow),
		ub.Assign("cached_second_to_fifth_row", secondToFifth),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": id}).Error("Failed to finish raw save")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish raw save")
	}
	return nil
}

// FinishMapping marks the mapping stage complete.
func (r *Repository) FinishMapping(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.FinishMapping")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_files")
	ub.Set(
		ub.Assign("mapping_done", true),
		ub.Assign("mapping_completion", 100),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": id}).Error("Failed to finish mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish mapping")
	}
	return nil
}

// FinishMatching marks the matching stage complete. Mapping completion
// is pinned to 100 in the same statement.
func (r *Repository) FinishMatching(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.FinishMatching")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_files")
	ub.Set(
		ub.Assign("matching_done", true),
		ub.Assign("mapping_completion", 100),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": id}).Error("Failed to finish matching")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to finish matching")
	}
	return nil
}

// ResetMapping clears the mapping flags so the file can be remapped.
func (r *Repository) ResetMapping(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.ResetMapping")
	defer span.End()

	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update("import_files")
	ub.Set(
		ub.Assign("mapping_done", false),
		ub.Assign("mapping_completion", nil),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_file_id": id}).Error("Failed to reset mapping")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to reset mapping")
	}
	return nil
}

// ListByRecord returns the files of one import record.
func (r *Repository) ListByRecord(ctx context.Context, importRecordID string) ([]*models.ImportFile, error) {
	ctx, span := tracing.StartSpan(ctx, "importfile.Repository.ListByRecord")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From("import_files")
	sb.Where(sb.Equal("import_record_id", importRecordID))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var files []*models.ImportFile
	if err := r.db.SelectContext(ctx, &files, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"import_record_id": importRecordID}).Error("Failed to list import files")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list import files")
	}
	return files, nil
}
