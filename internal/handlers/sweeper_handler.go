package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type sweeperApplicationService interface {
	Run(ctx context.Context, now time.Time) (*services.SweepResult, error)
}

type SweeperHandler struct {
	service sweeperApplicationService
	now     func() time.Time
}

func NewSweeperHandler(service sweeperApplicationService) *SweeperHandler {
	return &SweeperHandler{service: service, now: time.Now}
}

// AutoExpire is called by the scheduler behind the cron secret guard.
func (h *SweeperHandler) AutoExpire(c *fiber.Ctx) error {
	result, err := h.service.Run(c.Context(), h.now())
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{
		"checked":   result.Checked,
		"completed": result.Completed,
		"skipped":   result.Skipped,
	})
}
