package validation

import (
	"encoding/json"

	"github.com/rendis/flowpilot/internal/graph"
	"github.com/rendis/flowpilot/pkg/schema"
)

// AutomationValidator runs the validation pipeline:
//  1. Structural (JSON Schema, raw documents only)
//  2. Graph invariants (entry node, edges, branches)
//  3. Semantic (step fields, conditions, credentials)
//  4. Flow (reachability, cycles without a loop)
type AutomationValidator struct {
	jsonSchema *JSONSchemaValidator
	steps      StepLookup
	creds      CredentialLookup
}

var _ Validator = (*AutomationValidator)(nil)

// NewAutomationValidator creates an AutomationValidator. Either lookup may
// be nil to skip that check.
func NewAutomationValidator(lookup StepLookup, creds CredentialLookup) (*AutomationValidator, error) {
	jsv, err := NewJSONSchemaValidator()
	if err != nil {
		return nil, err
	}
	return &AutomationValidator{jsonSchema: jsv, steps: lookup, creds: creds}, nil
}

// Validate checks a decoded automation. Graph errors skip the later stages.
func (v *AutomationValidator) Validate(a *schema.Automation) *schema.ValidationResult {
	if a == nil {
		r := &schema.ValidationResult{}
		r.AddError("/", schema.ErrCodeValidation, "automation is nil")
		return r
	}

	result := graph.Validate(a.Nodes, a.Edges)
	if !result.Valid() {
		return result
	}
	result.Merge(validateSemantic(a, v.steps, v.creds))
	result.Merge(validateFlow(a))
	return result
}

// ValidateDocument checks raw JSON against the document schema, decodes it
// and runs Validate. The automation is nil when the document cannot be decoded.
func (v *AutomationValidator) ValidateDocument(raw []byte) (*schema.Automation, *schema.ValidationResult) {
	result := &schema.ValidationResult{}
	if err := v.jsonSchema.ValidateRaw(raw); err != nil {
		addSchemaIssues(result, err)
		return nil, result
	}

	a := &schema.Automation{}
	if err := json.Unmarshal(raw, a); err != nil {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return nil, result
	}
	a.Normalize()
	result.Merge(v.Validate(a))
	return a, result
}

func addSchemaIssues(result *schema.ValidationResult, err error) {
	fe, ok := err.(*schema.FlowError)
	if !ok {
		result.AddError("/", schema.ErrCodeValidation, err.Error())
		return
	}
	if violations, ok := fe.Details["violations"].([]string); ok {
		for _, v := range violations {
			result.AddError("/", schema.ErrCodeValidation, v)
		}
		return
	}
	result.AddError("/", schema.ErrCodeValidation, fe.Message)
}
