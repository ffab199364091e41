package web

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/dukex/stepflow/pkg/persistence"
	"github.com/dukex/stepflow/pkg/rows"
	"github.com/dukex/stepflow/pkg/workflow"
)

func problem(c fiber.Ctx, status int, kind, detail string) error {
	p := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(kind).
		WithDetail(detail)

	return c.Status(status).JSON(p)
}

func badRequest(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusBadRequest, "validation_error", detail)
}

func notFound(c fiber.Ctx, detail string) error {
	return problem(c, fiber.StatusNotFound, "not_found", detail)
}

func internalError(c fiber.Ctx, err error) error {
	p := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(p)
}

// handleServiceError maps store and engine errors onto problems.
func handleServiceError(c fiber.Ctx, err error) error {
	var defErr *workflow.DefinitionError

	switch {
	case errors.As(err, &defErr):
		return problem(c, fiber.StatusUnprocessableEntity, "invalid_definition", strings.Join(defErr.Problems, "; "))

	case persistence.IsAutomationNotFound(err):
		return problem(c, fiber.StatusNotFound, "automation_not_found", "automation not found")

	case errors.Is(err, rows.ErrRowNotFound):
		return problem(c, fiber.StatusNotFound, "row_not_found", "row not found")

	case errors.Is(err, workflow.ErrNestingTooDeep):
		return problem(c, fiber.StatusConflict, "nesting_too_deep", err.Error())

	default:
		return internalError(c, err)
	}
}
