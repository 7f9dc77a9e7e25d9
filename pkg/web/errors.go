package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/leadflow/leadflow/pkg/behavior"
	"github.com/leadflow/leadflow/pkg/compliance"
	"github.com/leadflow/leadflow/pkg/leads"
	"github.com/leadflow/leadflow/pkg/models"
	"github.com/leadflow/leadflow/pkg/persistence"
	"github.com/leadflow/leadflow/pkg/workflow"
	"github.com/moogar0880/problems"
)

const problemContentType = "application/problem+json"

func problem(c fiber.Ctx, status int, problemType, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(detail)

	return c.Status(status).JSON(p, problemContentType)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func unauthorized(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusUnauthorized, "unauthorized", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p, problemContentType)
}

var engineErrorStatus = map[models.ErrorCode]int{
	models.CodeWorkflowNotFound: fiber.StatusNotFound,
	models.CodeWorkflowInactive: fiber.StatusConflict,
	models.CodeMaxExecutions:    fiber.StatusConflict,
	models.CodeInvalidWorkflow:  fiber.StatusUnprocessableEntity,
	models.CodeRateLimited:      fiber.StatusTooManyRequests,
}

// handleError maps engine codes and sentinel errors to problem responses.
func handleError(c fiber.Ctx, err error) error {
	var engineErr *models.EngineError
	if errors.As(err, &engineErr) {
		status, ok := engineErrorStatus[engineErr.Code]
		if !ok {
			status = fiber.StatusBadGateway
		}

		p := problems.NewStatusProblem(status).
			WithInstance(c.Path()).
			WithType(string(engineErr.Code)).
			WithDetail(engineErr.Message)

		return c.Status(status).JSON(p, problemContentType)
	}

	switch {
	case errors.Is(err, leads.ErrLeadNotFound):
		return problem(c, fiber.StatusNotFound, "lead_not_found", "lead not found")
	case errors.Is(err, compliance.ErrConsentNotFound):
		return problem(c, fiber.StatusNotFound, "consent_not_found", "no consent recorded")
	case persistence.IsExecutionNotFound(err), errors.Is(err, workflow.ErrExecutionNotFound):
		return problem(c, fiber.StatusNotFound, "execution_not_found", "execution not found")
	case errors.Is(err, behavior.ErrInvalidBehavior):
		return problem(c, fiber.StatusUnprocessableEntity, "invalid_behavior", err.Error())
	case errors.Is(err, workflow.ErrMissingLead):
		return badRequest(c, err.Error())
	case errors.Is(err, workflow.ErrEngineClosed):
		return problem(c, fiber.StatusServiceUnavailable, "unavailable", err.Error())
	default:
		return internalError(c, err)
	}
}
