package handler

import (
	"github.com/bellvik/transport-planner/internal/service"
)

// Handler holds the domain dependencies for the public routing endpoints and
// the maintenance endpoints. Methods are registered as gin handler functions.
type Handler struct {
	planner *service.PlannerService
	status  *service.StatusService
}

// New creates a Handler with the given services.
func New(planner *service.PlannerService, status *service.StatusService) *Handler {
	return &Handler{
		planner: planner,
		status:  status,
	}
}
