package validation

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/rendis/flowpilot/pkg/schema"
)

const automationSchemaURL = "https://flowpilot.dev/schemas/automation.json"

// automationSchemaJSON is the JSON Schema of a persisted automation document.
const automationSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowpilot.dev/schemas/automation.json",
  "type": "object",
  "required": ["nodes"],
  "properties": {
    "id": { "type": "string" },
    "name": { "type": "string" },
    "description": { "type": "string" },
    "status": { "enum": ["idle", "running", "paused", ""] },
    "nodes": {
      "type": "array",
      "minItems": 1,
      "items": { "$ref": "#/$defs/node" }
    },
    "edges": {
      "type": ["array", "null"],
      "items": { "$ref": "#/$defs/edge" }
    },
    "steps": { "type": ["array", "null"] },
    "schedule": { "$ref": "#/$defs/schedule" },
    "linkedCredentials": {
      "type": ["array", "null"],
      "items": { "type": "string" }
    },
    "lastRun": {
      "type": "object",
      "properties": {
        "timestamp": { "type": "string" },
        "success": { "type": "boolean" },
        "duration": { "type": "integer", "minimum": 0 }
      }
    }
  },
  "$defs": {
    "position": {
      "type": "object",
      "properties": {
        "x": { "type": "number" },
        "y": { "type": "number" }
      }
    },
    "node": {
      "type": "object",
      "required": ["id", "type", "data"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "type": { "enum": ["automationStep", "conditional"] },
        "data": { "type": "object" },
        "position": { "$ref": "#/$defs/position" }
      },
      "allOf": [
        {
          "if": { "properties": { "type": { "const": "automationStep" } } },
          "then": {
            "properties": {
              "data": {
                "required": ["step"],
                "properties": { "step": { "$ref": "#/$defs/step" } }
              }
            }
          }
        },
        {
          "if": { "properties": { "type": { "const": "conditional" } } },
          "then": { "properties": { "data": { "$ref": "#/$defs/condition" } } }
        }
      ]
    },
    "step": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "id": { "type": "string" },
        "description": { "type": "string" },
        "type": {
          "enum": ["navigate", "click", "type", "wait", "screenshot", "extract",
                   "extractWithLogic", "apiCall", "scroll", "selectOption",
                   "fileUpload", "hover", "setVariable", "modifyVariable"]
        },
        "headers": {
          "type": "object",
          "additionalProperties": { "type": "string" }
        },
        "scrollAmount": { "type": "integer" },
        "optionIndex": { "type": "integer", "minimum": 0 }
      }
    },
    "condition": {
      "type": "object",
      "required": ["conditionType"],
      "properties": {
        "conditionType": { "enum": ["elementExists", "valueMatches", "loopUntilFalse"] },
        "selector": { "type": "string" },
        "comparisonOp": { "enum": ["equals", "contains", "greaterThan", "lessThan", ""] },
        "expectedValue": { "type": "string" },
        "startIndex": { "type": "integer" },
        "increment": { "type": "integer" },
        "maxIterations": { "type": "integer", "minimum": 0 }
      }
    },
    "edge": {
      "type": "object",
      "required": ["id", "source", "target"],
      "properties": {
        "id": { "type": "string", "minLength": 1 },
        "source": { "type": "string", "minLength": 1 },
        "target": { "type": "string", "minLength": 1 },
        "sourceHandle": { "enum": ["if", "else", "", null] }
      }
    },
    "schedule": {
      "type": "object",
      "properties": {
        "type": { "enum": ["manual", "fixed", "interval", ""] },
        "value": { "type": "string" },
        "interval": { "type": "integer", "minimum": 0 },
        "unit": { "enum": ["minutes", "hours", "days", ""] }
      }
    }
  }
}`

// JSONSchemaValidator checks the shape of raw automation documents against
// JSON Schema Draft 2020-12. It is safe for concurrent use.
type JSONSchemaValidator struct {
	docSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the document schema.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(automationSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("unmarshal automation schema: %w", err)
	}
	if err := c.AddResource(automationSchemaURL, doc); err != nil {
		return nil, fmt.Errorf("add automation schema resource: %w", err)
	}
	compiled, err := c.Compile(automationSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile automation schema: %w", err)
	}
	return &JSONSchemaValidator{docSchema: compiled}, nil
}

// ValidateRaw validates a JSON document.
func (v *JSONSchemaValidator) ValidateRaw(raw []byte) error {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "document is not valid JSON: %s", err.Error()).WithCause(err)
	}
	if err := v.docSchema.Validate(doc); err != nil {
		return toFlowError(err)
	}
	return nil
}

// ValidateAutomation validates the serialized form of a.
func (v *JSONSchemaValidator) ValidateAutomation(a *schema.Automation) error {
	if a == nil {
		return schema.NewError(schema.ErrCodeValidation, "automation is nil")
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize automation").WithCause(err)
	}
	return v.ValidateRaw(raw)
}

// toFlowError converts a jsonschema.ValidationError into a FlowError whose
// details list every leaf violation with its instance location.
func toFlowError(err error) *schema.FlowError {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}
	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}
	return schema.NewErrorf(schema.ErrCodeValidation, "document failed with %d schema violations", len(violations)).
		WithDetails(map[string]any{"violations": violations})
}

func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}
	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}
