package api

import (
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/rendis/flowpilot/pkg/schema"
)

// validationProblem is a problem document that also lists validation issues.
type validationProblem struct {
	*problems.Problem
	Errors   []schema.ValidationIssue `json:"errors,omitempty"`
	Warnings []schema.ValidationIssue `json:"warnings,omitempty"`
}

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func invalidDocument(c fiber.Ctx, res *schema.ValidationResult) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail("automation failed validation")

	return c.Status(fiber.StatusBadRequest).JSON(validationProblem{
		Problem:  problem,
		Errors:   res.Errors,
		Warnings: res.Warnings,
	})
}

// statusFor maps a FlowError code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case schema.ErrCodeNotFound, schema.ErrCodeNodeNotFound:
		return fiber.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition, schema.ErrCodeEntryNodeProtected:
		return fiber.StatusConflict
	case schema.ErrCodeValidation, schema.ErrCodeInvalidStep, schema.ErrCodeMissingSelector,
		schema.ErrCodeInvalidDuration, schema.ErrCodeMissingFile, schema.ErrCodeCredential,
		schema.ErrCodeDuplicateStepEdge, schema.ErrCodeDuplicateBranch, schema.ErrCodeBranchesExhausted,
		schema.ErrCodeDanglingEdge, schema.ErrCodeMissingEntry, schema.ErrCodeDuplicateNode:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

// handleServiceError writes err as a problem document typed by its error code.
func handleServiceError(c fiber.Ctx, err error) error {
	code := schema.CodeOf(err)
	status := statusFor(code)

	problem := problems.NewStatusProblem(status).WithInstance(c.Path())
	if status == fiber.StatusInternalServerError {
		problem = problem.WithType("internal_error").WithError(err)
		return c.Status(status).JSON(problem)
	}

	problem = problem.WithType(strings.ToLower(code)).WithDetail(message(err))
	return c.Status(status).JSON(problem)
}

func message(err error) string {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe.Message
	}
	return err.Error()
}
