package importfile

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	appcontext "github.com/Ramsey-B/sedum/pkg/context"
	"github.com/Ramsey-B/sedum/pkg/importer"
	"github.com/Ramsey-B/sedum/pkg/matching"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
)

// Register registers import file routes
func Register(g *echo.Group) {
	g.POST("/:id/save-raw", SaveRawData)
	g.POST("/:id/map", MapData)
	g.POST("/:id/match", MatchBuildings)
	g.POST("/:id/remap", RemapData)
	g.GET("/:id/progress", GetProgress)
}

// SaveRawData parses the uploaded file and stores its rows as raw
// snapshots. The upload is consumed here so this stage runs inline
// rather than through the job queue.
func SaveRawData(c echo.Context) error {
	ctx := c.Request().Context()
	importFileID := c.Param("id")
	userID := appcontext.GetUserID(ctx)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	upload, err := fileHeader.Open()
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "failed to open upload")
	}
	defer upload.Close()

	ctx, service, err := ectoinject.GetContext[*importer.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	status, err := service.SaveRawData(ctx, importFileID, userID, upload)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

// MapData queues the mapping stage for the file.
func MapData(c echo.Context) error {
	return enqueueStage(c, queue.JobTypeMapData, importer.StageMap)
}

// MatchBuildings queues the matching stage for the file.
func MatchBuildings(c echo.Context) error {
	return enqueueStage(c, queue.JobTypeMatchBuildings, matching.Stage)
}

// RemapData queues a remap of the file.
func RemapData(c echo.Context) error {
	return enqueueStage(c, queue.JobTypeRemapData, importer.StageMap)
}

// GetProgress returns the percent complete for one stage of the file.
func GetProgress(c echo.Context) error {
	ctx := c.Request().Context()
	importFileID := c.Param("id")

	stage := c.QueryParam("stage")
	switch stage {
	case importer.StageSaveRaw, importer.StageMap, matching.Stage:
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown stage")
	}

	ctx, tracker, err := ectoinject.GetContext[*progress.Tracker](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	key := progress.Key(stage, importFileID)
	return c.JSON(http.StatusOK, map[string]any{
		"progress_key": key,
		"percent":      tracker.Get(ctx, key),
	})
}

func enqueueStage(c echo.Context, jobType, stage string) error {
	ctx := c.Request().Context()
	importFileID := c.Param("id")
	orgID := appcontext.GetOrgID(ctx)
	userID := appcontext.GetUserID(ctx)

	ctx, jobs, err := ectoinject.GetContext[*queue.Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := jobs.Enqueue(ctx, &redis.JobMessage{
		OrgID:  orgID,
		UserID: userID,
		Type:   jobType,
		Payload: map[string]any{
			"import_file_id": importFileID,
		},
	}); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to queue job")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":       "queued",
		"progress_key": progress.Key(stage, importFileID),
	})
}
