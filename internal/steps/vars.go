package steps

import (
	"context"
	"strconv"
	"strings"

	"github.com/rendis/flowpilot/pkg/schema"
)

func setVariableStep(_ context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.SetVariable](step)
	if err != nil {
		return nil, err
	}
	v := rt.Vars.Interpolate(a.Value)
	rt.Vars.Set(a.VariableName, v)
	return ok(v), nil
}

func modifyVariableStep(_ context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.ModifyVariable](step)
	if err != nil {
		return nil, err
	}
	current, _ := rt.Vars.Get(a.VariableName)
	operand := rt.Vars.Interpolate(a.Value)

	var next string
	switch a.Operation {
	case schema.VarSet:
		next = operand
	case schema.VarAppend:
		next = current + operand
	case schema.VarPrepend:
		next = operand + current
	case schema.VarIncrement, schema.VarDecrement:
		base, err := number(current, "0")
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidStep,
				"variable %q holds %q, which is not a number", a.VariableName, current)
		}
		delta, err := number(operand, "1")
		if err != nil {
			return nil, schema.NewErrorf(schema.ErrCodeInvalidStep,
				"%s amount %q is not a number", a.Operation, operand)
		}
		if a.Operation == schema.VarDecrement {
			delta = -delta
		}
		next = strconv.FormatFloat(base+delta, 'f', -1, 64)
	default:
		return nil, schema.NewErrorf(schema.ErrCodeInvalidStep, "unknown variable operation %q", a.Operation)
	}

	rt.Vars.Set(a.VariableName, next)
	return ok(next), nil
}

func number(s, fallback string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		s = fallback
	}
	return strconv.ParseFloat(s, 64)
}
