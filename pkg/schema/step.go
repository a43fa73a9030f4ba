package schema

import (
	"encoding/json"
	"fmt"
)

// StepType identifies the action a step performs.
type StepType string

const (
	StepNavigate         StepType = "navigate"
	StepClick            StepType = "click"
	StepTypeText         StepType = "type"
	StepWait             StepType = "wait"
	StepScreenshot       StepType = "screenshot"
	StepExtract          StepType = "extract"
	StepExtractWithLogic StepType = "extractWithLogic"
	StepAPICall          StepType = "apiCall"
	StepScroll           StepType = "scroll"
	StepSelectOption     StepType = "selectOption"
	StepFileUpload       StepType = "fileUpload"
	StepHover            StepType = "hover"
	StepSetVariable      StepType = "setVariable"
	StepModifyVariable   StepType = "modifyVariable"
)

// StepTypes lists every known step type in declaration order.
var StepTypes = []StepType{
	StepNavigate, StepClick, StepTypeText, StepWait, StepScreenshot, StepExtract,
	StepExtractWithLogic, StepAPICall, StepScroll, StepSelectOption,
	StepFileUpload, StepHover, StepSetVariable, StepModifyVariable,
}

// ComparisonOp is the operator used by valueMatches conditions and extractWithLogic steps.
type ComparisonOp string

const (
	OpEquals      ComparisonOp = "equals"
	OpContains    ComparisonOp = "contains"
	OpGreaterThan ComparisonOp = "greaterThan"
	OpLessThan    ComparisonOp = "lessThan"
)

// ScrollType selects how a scroll step moves the page.
type ScrollType string

const (
	ScrollToElement ScrollType = "toElement"
	ScrollByAmount  ScrollType = "byAmount"
)

// VariableOp is the update applied by a modifyVariable step.
type VariableOp string

const (
	VarSet       VariableOp = "set"
	VarAppend    VariableOp = "append"
	VarPrepend   VariableOp = "prepend"
	VarIncrement VariableOp = "increment"
	VarDecrement VariableOp = "decrement"
)

// Step is one browser or data action. Action holds the type-specific payload.
type Step struct {
	ID          string
	Description string
	Action      Action
}

// Type returns the step type, or "" when no action is set.
func (s Step) Type() StepType {
	if s.Action == nil {
		return ""
	}
	return s.Action.StepType()
}

// Action is implemented by every step payload.
type Action interface {
	StepType() StepType
	action()
}

type Navigate struct {
	URL string `json:"value" validate:"required"`
}

type Click struct {
	Selector string `json:"selector" validate:"required"`
}

// TypeText fills an input. CredentialID, when set, replaces Value with a stored secret.
type TypeText struct {
	Selector        string `json:"selector" validate:"required"`
	Value           string `json:"value"`
	CredentialID    string `json:"credentialId,omitempty"`
	CredentialField string `json:"credentialField,omitempty"`
}

// Wait pauses for Seconds, kept as the raw string the editor stores.
type Wait struct {
	Seconds string `json:"value"`
}

type Screenshot struct {
	SavePath string `json:"savePath,omitempty"`
}

type Extract struct {
	Selector string `json:"selector" validate:"required"`
	StoreKey string `json:"storeKey,omitempty"`
}

type ExtractWithLogic struct {
	Selector      string       `json:"selector" validate:"required"`
	Condition     ComparisonOp `json:"condition" validate:"required,oneof=equals contains greaterThan lessThan"`
	ExpectedValue string       `json:"expectedValue"`
	StoreKey      string       `json:"storeKey,omitempty"`
}

// APICall issues an outbound HTTP request. ResponsePath is an optional jq
// query applied to a JSON response before it is stored.
type APICall struct {
	Method       string            `json:"method,omitempty" validate:"omitempty,oneof=GET POST PUT PATCH DELETE"`
	URL          string            `json:"url" validate:"required"`
	Body         string            `json:"body,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
	StoreKey     string            `json:"storeKey,omitempty"`
	ResponsePath string            `json:"responsePath,omitempty"`
}

type Scroll struct {
	ScrollType   ScrollType `json:"scrollType" validate:"required,oneof=toElement byAmount"`
	Selector     string     `json:"selector,omitempty" validate:"required_if=ScrollType toElement"`
	ScrollAmount *int       `json:"scrollAmount,omitempty" validate:"required_if=ScrollType byAmount"`
}

type SelectOption struct {
	Selector    string `json:"selector" validate:"required"`
	OptionValue string `json:"optionValue,omitempty"`
	OptionIndex *int   `json:"optionIndex,omitempty" validate:"omitempty,min=0"`
}

type FileUpload struct {
	Selector string `json:"selector" validate:"required"`
	FilePath string `json:"filePath" validate:"required"`
}

type Hover struct {
	Selector string `json:"selector" validate:"required"`
}

type SetVariable struct {
	VariableName string `json:"variableName" validate:"required"`
	Value        string `json:"value"`
}

type ModifyVariable struct {
	VariableName string     `json:"variableName" validate:"required"`
	Operation    VariableOp `json:"operation" validate:"required,oneof=set append prepend increment decrement"`
	Value        string     `json:"value,omitempty"`
}

func (*Navigate) StepType() StepType         { return StepNavigate }
func (*Click) StepType() StepType            { return StepClick }
func (*TypeText) StepType() StepType         { return StepTypeText }
func (*Wait) StepType() StepType             { return StepWait }
func (*Screenshot) StepType() StepType       { return StepScreenshot }
func (*Extract) StepType() StepType          { return StepExtract }
func (*ExtractWithLogic) StepType() StepType { return StepExtractWithLogic }
func (*APICall) StepType() StepType          { return StepAPICall }
func (*Scroll) StepType() StepType           { return StepScroll }
func (*SelectOption) StepType() StepType     { return StepSelectOption }
func (*FileUpload) StepType() StepType       { return StepFileUpload }
func (*Hover) StepType() StepType            { return StepHover }
func (*SetVariable) StepType() StepType      { return StepSetVariable }
func (*ModifyVariable) StepType() StepType   { return StepModifyVariable }

func (*Navigate) action()         {}
func (*Click) action()            {}
func (*TypeText) action()         {}
func (*Wait) action()             {}
func (*Screenshot) action()       {}
func (*Extract) action()          {}
func (*ExtractWithLogic) action() {}
func (*APICall) action()          {}
func (*Scroll) action()           {}
func (*SelectOption) action()     {}
func (*FileUpload) action()       {}
func (*Hover) action()            {}
func (*SetVariable) action()      {}
func (*ModifyVariable) action()   {}

// NewAction returns an empty payload for the given step type.
func NewAction(t StepType) (Action, error) {
	switch t {
	case StepNavigate:
		return &Navigate{}, nil
	case StepClick:
		return &Click{}, nil
	case StepTypeText:
		return &TypeText{}, nil
	case StepWait:
		return &Wait{}, nil
	case StepScreenshot:
		return &Screenshot{}, nil
	case StepExtract:
		return &Extract{}, nil
	case StepExtractWithLogic:
		return &ExtractWithLogic{}, nil
	case StepAPICall:
		return &APICall{}, nil
	case StepScroll:
		return &Scroll{}, nil
	case StepSelectOption:
		return &SelectOption{}, nil
	case StepFileUpload:
		return &FileUpload{}, nil
	case StepHover:
		return &Hover{}, nil
	case StepSetVariable:
		return &SetVariable{}, nil
	case StepModifyVariable:
		return &ModifyVariable{}, nil
	default:
		return nil, NewErrorf(ErrCodeInvalidStep, "unknown step type %q", t)
	}
}

type stepHeader struct {
	ID          string   `json:"id"`
	Description string   `json:"description"`
	Type        StepType `json:"type"`
}

// MarshalJSON flattens the action fields next to id, description and type.
func (s Step) MarshalJSON() ([]byte, error) {
	if s.Action == nil {
		return nil, NewErrorf(ErrCodeInvalidStep, "step %q has no action", s.ID)
	}
	raw, err := json.Marshal(s.Action)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	hdr, err := json.Marshal(stepHeader{ID: s.ID, Description: s.Description, Type: s.Action.StepType()})
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(hdr, &fields); err != nil {
		return nil, err
	}
	return json.Marshal(fields)
}

// UnmarshalJSON reads the type discriminator and decodes the matching payload.
func (s *Step) UnmarshalJSON(data []byte) error {
	var hdr stepHeader
	if err := json.Unmarshal(data, &hdr); err != nil {
		return err
	}
	act, err := NewAction(hdr.Type)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, act); err != nil {
		return fmt.Errorf("decode %s step %q: %w", hdr.Type, hdr.ID, err)
	}
	s.ID = hdr.ID
	s.Description = hdr.Description
	s.Action = act
	return nil
}

// CredentialRef returns the credential a step references, or "".
func (s Step) CredentialRef() string {
	if t, ok := s.Action.(*TypeText); ok {
		return t.CredentialID
	}
	return ""
}
