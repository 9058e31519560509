package snapshot_test

import (
	"context"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/sedum/internal/repositories/snapshot"
	"github.com/Ramsey-B/sedum/pkg/database"
	"github.com/Ramsey-B/sedum/pkg/models"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		t.Skip("DB_HOST not set; skipping integration test")
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "sedum"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

func TestSnapshotRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := snapshot.NewRepository(db, getTestLogger())

	orgID := uuid.New().String()
	ctx := context.Background()

	created, err := repo.Create(ctx, &models.BuildingSnapshot{
		OrgID:        orgID,
		SourceType:   models.SourceAssessedBS,
		PMPropertyID: "101",
		AddressLine1: "1 Main St",
		City:         "Boise",
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())

	fetched, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "101", fetched.PMPropertyID)

	matches, err := repo.FindCanonicalIDMatches(ctx, orgID, &models.BuildingSnapshot{CustomID1: "101"})
	require.NoError(t, err)
	// No canonical link yet, so the probe finds nothing.
	assert.Empty(t, matches)

	missing, err := repo.GetByID(ctx, uuid.New().String())
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, repo.DeleteByIDs(ctx, []string{created.ID}))
	gone, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}
