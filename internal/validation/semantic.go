package validation

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/flowpilot/internal/steps"
	"github.com/rendis/flowpilot/pkg/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// StepLookup reports whether a step type has a handler.
type StepLookup interface {
	Has(t schema.StepType) bool
}

// CredentialLookup reports whether a credential id is known.
type CredentialLookup interface {
	HasCredential(id string) bool
}

// validateSemantic checks node payloads. Incomplete steps and conditions
// are warnings: the editor saves them while they are being filled in and
// they fail only when a run reaches them.
func validateSemantic(a *schema.Automation, lookup StepLookup, creds CredentialLookup) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	for i, n := range a.Nodes {
		path := fmt.Sprintf("nodes[%d].data", i)

		if step, ok := n.Step(); ok {
			if step.Action == nil {
				continue
			}
			if lookup != nil && !lookup.Has(step.Type()) {
				result.AddError(path+".step.type", schema.ErrCodeInvalidStep,
					fmt.Sprintf("step type %q has no handler", step.Type()))
				continue
			}
			if err := steps.Check(step); err != nil {
				result.AddWarning(path+".step", schema.CodeOf(err), issueMessage(err))
			}
			if ref := step.CredentialRef(); ref != "" && creds != nil && !creds.HasCredential(ref) {
				result.AddWarning(path+".step.credentialId", schema.ErrCodeCredential,
					fmt.Sprintf("credential %q is not stored", ref))
			}
			continue
		}

		if cond, ok := n.Condition(); ok {
			if err := validate.Struct(cond); err != nil {
				result.AddError(path, schema.ErrCodeValidation, fmt.Sprintf("condition %q: %s", n.ID, err.Error()))
				continue
			}
			if strings.TrimSpace(cond.Selector) == "" {
				result.AddWarning(path+".selector", schema.ErrCodeEvaluation,
					fmt.Sprintf("condition %q has no selector", n.ID))
			}
			if cond.ConditionType != schema.CondLoopUntilFalse &&
				(cond.StartIndex != nil || cond.Increment != nil || cond.MaxIterations != 0) {
				result.AddWarning(path, schema.ErrCodeValidation,
					fmt.Sprintf("loop settings on %s condition %q are ignored", cond.ConditionType, n.ID))
			}
		}
	}
	return result
}

func issueMessage(err error) string {
	if fe, ok := err.(*schema.FlowError); ok {
		return fe.Message
	}
	return err.Error()
}
