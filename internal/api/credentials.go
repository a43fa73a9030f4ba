package api

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rendis/flowpilot/pkg/schema"
)

const redacted = "********"

// CredentialRequest is the body of PUT /credentials/:id.
type CredentialRequest struct {
	Name   string                `json:"name" validate:"required"`
	Type   schema.CredentialType `json:"type" validate:"required"`
	Values map[string]string     `json:"values" validate:"required,min=1"`
}

func (h *Handlers) ListCredentials(c fiber.Ctx) error {
	creds, err := h.svc.Credentials(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}
	out := make([]*schema.Credential, 0, len(creds))
	for _, cred := range creds {
		out = append(out, redact(cred))
	}
	return c.JSON(fiber.Map{"credentials": out, "total_count": len(out)})
}

func (h *Handlers) PutCredential(c fiber.Ctx) error {
	var req CredentialRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}
	if err := h.validate.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	cred := &schema.Credential{ID: c.Params("id"), Name: req.Name, Type: req.Type, Values: req.Values}
	if err := h.svc.SaveCredential(c.Context(), cred); err != nil {
		return handleServiceError(c, err)
	}
	return c.JSON(redact(cred))
}

func (h *Handlers) DeleteCredential(c fiber.Ctx) error {
	if err := h.svc.DeleteCredential(c.Context(), c.Params("id")); err != nil {
		return handleServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// redact keeps the field names of a credential and hides the values.
func redact(c *schema.Credential) *schema.Credential {
	out := *c
	out.Values = make(map[string]string, len(c.Values))
	for k := range c.Values {
		out.Values[k] = redacted
	}
	return &out
}
