// Package validation checks automation documents before they are saved or run.
package validation

import "github.com/rendis/flowpilot/pkg/schema"

// Validator checks automation documents. Errors block saving and running;
// warnings flag steps that will fail or be skipped at run time.
type Validator interface {
	Validate(a *schema.Automation) *schema.ValidationResult
	ValidateDocument(raw []byte) (*schema.Automation, *schema.ValidationResult)
}
