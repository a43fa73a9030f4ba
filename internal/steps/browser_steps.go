package steps

import (
	"context"
	"os"
	"time"

	"github.com/rendis/flowpilot/internal/browser"
	"github.com/rendis/flowpilot/pkg/schema"
)

func navigateStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Navigate](step)
	if err != nil {
		return nil, err
	}
	url := rt.Vars.Interpolate(a.URL)
	if err := rt.Browser.Navigate(ctx, url); err != nil {
		return nil, driverErr("navigate", err)
	}
	return ok(url), nil
}

func clickStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Click](step)
	if err != nil {
		return nil, err
	}
	if err := rt.Browser.Click(ctx, rt.Vars.Interpolate(a.Selector)); err != nil {
		return nil, driverErr("click", err)
	}
	return ok(""), nil
}

func hoverStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Hover](step)
	if err != nil {
		return nil, err
	}
	if err := rt.Browser.Hover(ctx, rt.Vars.Interpolate(a.Selector)); err != nil {
		return nil, driverErr("hover", err)
	}
	return ok(""), nil
}

func typeStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.TypeText](step)
	if err != nil {
		return nil, err
	}

	text := rt.Vars.Interpolate(a.Value)
	if a.CredentialID != "" {
		text, err = resolveSecret(ctx, rt, a.CredentialID, a.CredentialField)
		if err != nil {
			return nil, err
		}
	}

	if err := rt.Browser.Type(ctx, rt.Vars.Interpolate(a.Selector), text); err != nil {
		// The driver error may echo the typed text; keep it out of logs.
		if a.CredentialID != "" {
			return nil, schema.NewErrorf(schema.ErrCodeDriverFailure, "type into %s failed", a.Selector)
		}
		return nil, driverErr("type", err)
	}
	return ok(""), nil
}

// resolveSecret picks the credential value to type: the named field, then
// "password", then "value", then the only value if there is exactly one.
func resolveSecret(ctx context.Context, rt *Runtime, id, field string) (string, error) {
	if rt.Credentials == nil {
		return "", schema.NewErrorf(schema.ErrCodeCredential, "credential %q referenced but no credential store is configured", id)
	}
	cred, err := rt.Credentials.GetCredential(ctx, id)
	if err != nil {
		return "", schema.NewErrorf(schema.ErrCodeCredential, "load credential %q: %s", id, err.Error()).WithCause(err)
	}
	if cred == nil {
		return "", schema.NewErrorf(schema.ErrCodeCredential, "credential %q not found", id)
	}

	candidates := []string{"password", "value"}
	if field != "" {
		candidates = []string{field}
	}
	for _, k := range candidates {
		if v, found := cred.Values[k]; found {
			return v, nil
		}
	}
	if field == "" && len(cred.Values) == 1 {
		for _, v := range cred.Values {
			return v, nil
		}
	}
	return "", schema.NewErrorf(schema.ErrCodeCredential, "credential %q has no usable value", id).
		WithDetails(map[string]any{"field": field})
}

func waitStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Wait](step)
	if err != nil {
		return nil, err
	}
	secs, err := parseSeconds(rt.Vars.Interpolate(a.Seconds))
	if err != nil {
		return nil, err
	}
	if secs == 0 {
		return ok("0"), nil
	}

	timer := time.NewTimer(time.Duration(secs) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil, schema.NewError(schema.ErrCodeCancelled, "wait interrupted").WithCause(ctx.Err())
	case <-timer.C:
		return ok(a.Seconds), nil
	}
}

func screenshotStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Screenshot](step)
	if err != nil {
		return nil, err
	}
	path, err := rt.Browser.Screenshot(ctx, rt.Vars.Interpolate(a.SavePath))
	if err != nil {
		return nil, driverErr("screenshot", err)
	}
	return &Outcome{Success: true, Data: path, Screenshot: path}, nil
}

func extractStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Extract](step)
	if err != nil {
		return nil, err
	}
	text, err := rt.Browser.Text(ctx, rt.Vars.Interpolate(a.Selector))
	if err != nil {
		return nil, driverErr("extract", err)
	}
	if a.StoreKey != "" {
		rt.Vars.Set(a.StoreKey, text)
	}
	return ok(text), nil
}

func extractWithLogicStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.ExtractWithLogic](step)
	if err != nil {
		return nil, err
	}
	text, err := rt.Browser.Text(ctx, rt.Vars.Interpolate(a.Selector))
	if err != nil {
		return nil, driverErr("extract", err)
	}
	if a.StoreKey != "" {
		rt.Vars.Set(a.StoreKey, text)
	}
	matched, err := rt.Compare.Compare(ctx, a.Condition, text, rt.Vars.Interpolate(a.ExpectedValue))
	if err != nil {
		return nil, err
	}
	return &Outcome{Success: matched, Data: text}, nil
}

func scrollStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.Scroll](step)
	if err != nil {
		return nil, err
	}
	switch a.ScrollType {
	case schema.ScrollToElement:
		if err := rt.Browser.ScrollIntoView(ctx, rt.Vars.Interpolate(a.Selector)); err != nil {
			return nil, driverErr("scroll", err)
		}
	default:
		if err := rt.Browser.ScrollBy(ctx, *a.ScrollAmount); err != nil {
			return nil, driverErr("scroll", err)
		}
	}
	return ok(""), nil
}

func selectOptionStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.SelectOption](step)
	if err != nil {
		return nil, err
	}
	if a.OptionIndex == nil && a.OptionValue == "" {
		return nil, schema.NewErrorf(schema.ErrCodeInvalidStep,
			"selectOption step %q needs an optionValue or optionIndex", step.ID)
	}
	opt := browser.Option{Value: rt.Vars.Interpolate(a.OptionValue), Index: a.OptionIndex}
	if err := rt.Browser.SelectOption(ctx, rt.Vars.Interpolate(a.Selector), opt); err != nil {
		return nil, driverErr("selectOption", err)
	}
	return ok(opt.Value), nil
}

func fileUploadStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.FileUpload](step)
	if err != nil {
		return nil, err
	}
	path := rt.Vars.Interpolate(a.FilePath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil, schema.NewErrorf(schema.ErrCodeMissingFile, "upload file %q is not a readable file", path).
			WithDetails(map[string]any{"path": path})
	}
	if err := rt.Browser.UploadFile(ctx, rt.Vars.Interpolate(a.Selector), path); err != nil {
		return nil, driverErr("fileUpload", err)
	}
	return ok(path), nil
}
