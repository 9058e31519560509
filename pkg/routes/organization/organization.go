package organization

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	appcontext "github.com/Ramsey-B/sedum/pkg/context"
	"github.com/Ramsey-B/sedum/pkg/importer"
	"github.com/Ramsey-B/sedum/pkg/notify"
	"github.com/Ramsey-B/sedum/pkg/progress"
	"github.com/Ramsey-B/sedum/pkg/queue"
	"github.com/Ramsey-B/sedum/pkg/redis"
)

var validate = validator.New()

// Register registers organization routes
func Register(g *echo.Group) {
	g.DELETE("/:id/buildings", DeleteBuildings)
	g.POST("/:id/invites", InviteUser)
}

// DeleteBuildings queues deletion of every building the organization
// owns, snapshots and canonical records both.
func DeleteBuildings(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := c.Param("id")
	userID := appcontext.GetUserID(ctx)

	ctx, jobs, err := ectoinject.GetContext[*queue.Queue](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	if err := jobs.Enqueue(ctx, &redis.JobMessage{
		OrgID:  orgID,
		UserID: userID,
		Type:   queue.JobTypeDeleteBuildings,
		Payload: map[string]any{
			"org_id": orgID,
		},
	}); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to queue job")
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"status":       "queued",
		"progress_key": progress.Key(importer.StageDelete, orgID),
	})
}

// InviteUserRequest is the payload for inviting a user to an organization
type InviteUserRequest struct {
	Email     string `json:"email" validate:"required,email"`
	FirstName string `json:"first_name"`
	OrgName   string `json:"org_name" validate:"required"`
}

// InviteUser sends a signup invitation for the organization.
func InviteUser(c echo.Context) error {
	ctx := c.Request().Context()
	orgID := c.Param("id")
	inviterID := appcontext.GetUserID(ctx)

	var req InviteUserRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	ctx, notifier, err := ectoinject.GetContext[notify.Notifier](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	invite := notify.Invite{
		Email:     req.Email,
		FirstName: req.FirstName,
		OrgID:     orgID,
		OrgName:   req.OrgName,
		InviterID: inviterID,
		UserID:    uuid.New().String(),
		Token:     uuid.New().String(),
	}
	if err := notifier.SendInvite(ctx, invite); err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to send invite")
	}

	return c.JSON(http.StatusAccepted, map[string]string{"status": "invited"})
}
