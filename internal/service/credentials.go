package service

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/flowpilot/internal/logging"
	"github.com/rendis/flowpilot/pkg/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// SaveCredential creates or replaces c.
func (s *Automations) SaveCredential(ctx context.Context, c *schema.Credential) error {
	if s.creds == nil {
		return schema.NewError(schema.ErrCodeStore, "no credential store configured")
	}
	if c == nil {
		return schema.NewError(schema.ErrCodeValidation, "credential is nil")
	}
	if c.ID == "" {
		return schema.NewError(schema.ErrCodeValidation, "credential needs an id")
	}
	if err := validate.Struct(c); err != nil {
		return schema.NewErrorf(schema.ErrCodeCredential, "credential %q: %s", c.ID, err.Error()).WithCause(err)
	}
	if c.LastUpdated.IsZero() {
		c.LastUpdated = time.Now().UTC()
	}
	if err := s.creds.SaveCredential(ctx, c); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "credential saved", logging.CategoryKey, logCategory, "credential_id", c.ID, "type", c.Type)
	return nil
}

// Credentials lists stored credentials.
func (s *Automations) Credentials(ctx context.Context) ([]*schema.Credential, error) {
	if s.creds == nil {
		return nil, nil
	}
	return s.creds.ListCredentials(ctx)
}

func (s *Automations) DeleteCredential(ctx context.Context, id string) error {
	if s.creds == nil {
		return schema.NewError(schema.ErrCodeStore, "no credential store configured")
	}
	return s.creds.DeleteCredential(ctx, id)
}
