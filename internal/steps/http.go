package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rendis/flowpilot/pkg/schema"
)

const (
	maxResponseBody    = 10 * 1024 * 1024 // 10MB
	defaultHTTPTimeout = 30 * time.Second
)

// NewHTTPClient returns the client apiCall steps use when the runtime has none.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{Timeout: timeout}
}

func apiCallStep(ctx context.Context, step schema.Step, rt *Runtime) (*Outcome, error) {
	a, err := actionOf[*schema.APICall](step)
	if err != nil {
		return nil, err
	}

	method := strings.ToUpper(a.Method)
	if method == "" {
		method = http.MethodGet
	}
	rawURL := rt.Vars.Interpolate(a.URL)
	u, err := url.ParseRequestURI(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, schema.NewErrorf(schema.ErrCodeHTTPFailure, "invalid url %q", rawURL).
			WithDetails(map[string]any{"url": rawURL})
	}

	var body io.Reader
	payload := rt.Vars.Interpolate(a.Body)
	if payload != "" && method != http.MethodGet {
		body = strings.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHTTPFailure, "build request: %s", err.Error()).WithCause(err)
	}
	for k, v := range rt.Vars.InterpolateMap(a.Headers) {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" && json.Valid([]byte(payload)) {
		req.Header.Set("Content-Type", "application/json")
	}

	client := rt.HTTP
	if client == nil {
		client = NewHTTPClient(0)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, schema.NewError(schema.ErrCodeCancelled, "api call interrupted").WithCause(ctx.Err())
		}
		return nil, schema.NewErrorf(schema.ErrCodeHTTPFailure, "%s %s: %s", method, rawURL, err.Error()).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, schema.NewErrorf(schema.ErrCodeHTTPFailure, "read response: %s", err.Error()).WithCause(err)
	}

	rt.logger().DebugContext(ctx, "api call finished",
		"method", method,
		"url", rawURL,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode >= 400 {
		return nil, schema.NewErrorf(schema.ErrCodeHTTPFailure, "%s %s returned %d", method, rawURL, resp.StatusCode).
			WithDetails(map[string]any{"status_code": resp.StatusCode, "body": truncate(string(data), 512)})
	}

	result := string(data)
	if a.ResponsePath != "" {
		result, err = narrow(ctx, rt, a.ResponsePath, data)
		if err != nil {
			return nil, err
		}
	}

	if a.StoreKey != "" {
		rt.Vars.Set(a.StoreKey, result)
	}
	return ok(result), nil
}

// narrow applies a jq query to a JSON body. String results are stored raw,
// anything else is re-encoded as JSON.
func narrow(ctx context.Context, rt *Runtime, query string, data []byte) (string, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", schema.NewErrorf(schema.ErrCodeHTTPFailure, "responsePath set but response is not JSON").WithCause(err)
	}
	out, err := rt.JQ.Query(ctx, query, doc)
	if err != nil {
		return "", err
	}
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("encode jq result: %w", err)
		}
		return string(b), nil
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
