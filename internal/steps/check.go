package steps

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/rendis/flowpilot/pkg/schema"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Check validates the static fields of a step without touching the browser.
// Empty selectors are MISSING_SELECTOR, a missing upload path is
// MISSING_FILE, a bad wait value is INVALID_DURATION and anything else is
// INVALID_STEP.
func Check(step schema.Step) error {
	if step.Action == nil {
		return schema.NewErrorf(schema.ErrCodeInvalidStep, "step %q has no action", step.ID)
	}

	if err := validate.Struct(step.Action); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return schema.NewErrorf(schema.ErrCodeInvalidStep, "step %q: %s", step.ID, err.Error()).WithCause(err)
		}
		fe := verrs[0]
		code := schema.ErrCodeInvalidStep
		switch fe.Field() {
		case "Selector":
			code = schema.ErrCodeMissingSelector
		case "FilePath":
			code = schema.ErrCodeMissingFile
		}
		return schema.NewErrorf(code, "%s step %q: %s", step.Type(), step.ID, fieldMessage(fe)).
			WithDetails(map[string]any{"field": fe.Field(), "rule": fe.Tag()})
	}

	// Templated durations are only known at dispatch time.
	if w, isWait := step.Action.(*schema.Wait); isWait && !strings.Contains(w.Seconds, "{{") {
		if _, err := parseSeconds(w.Seconds); err != nil {
			return err
		}
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	name := strings.ToLower(fe.Field()[:1]) + fe.Field()[1:]
	switch fe.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", name)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", name, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", name, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q", name, fe.Tag())
	}
}

// parseSeconds reads a wait duration: a whole number of seconds, zero or more.
func parseSeconds(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, schema.NewErrorf(schema.ErrCodeInvalidDuration,
			"wait duration %q is not a whole number of seconds", raw).
			WithDetails(map[string]any{"value": raw})
	}
	return n, nil
}
