package controller

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"leadpilot/models"
	"leadpilot/utils"
	"leadpilot/worker"
)

// FollowupRunner runs one follow-up pass.
type FollowupRunner interface {
	RunOnce(ctx context.Context) (models.RunReport, error)
}

type FollowupController struct {
	Runner FollowupRunner
	Logger *logrus.Entry
}

func NewFollowupController(runner FollowupRunner) *FollowupController {
	return &FollowupController{
		Runner: runner,
		Logger: utils.Logger("followup_controller"),
	}
}

// RunFollowups sends every follow-up that is due right now
func (fc *FollowupController) RunFollowups(c *fiber.Ctx) error {
	report, err := fc.Runner.RunOnce(c.UserContext())
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		return utils.ErrorResponse(c, fiber.StatusConflict, "Follow-ups are already running", nil)
	case errors.Is(err, worker.ErrChannelUnavailable):
		return utils.ErrorResponse(c, fiber.StatusServiceUnavailable, "Follow-up channel is not configured", err)
	case err != nil:
		fc.Logger.WithError(err).Error("Follow-up run failed")
		return utils.ErrorResponse(c, fiber.StatusInternalServerError, "Follow-up run failed", err)
	}
	return c.JSON(utils.SuccessResponse(report))
}
