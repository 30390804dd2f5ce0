package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mcp-tool-shop/nexus-router/fault"
	"github.com/mcp-tool-shop/nexus-router/internal/redact"
)

const (
	defaultHTTPTimeout  = 30 * time.Second
	maxHTTPBodyExcerpt  = 2000
	maxHTTPResponseSize = 16 << 20 // 16 MB
)

// HTTPAdapter dispatches tool calls as JSON POSTs to a remote endpoint:
//
//	POST <base_url>/call
//	{"tool": ..., "method": ..., "args": {...}}
//
// A 2xx response body is parsed as the JSON result.
type HTTPAdapter struct {
	id       string
	baseURL  string
	client   *http.Client
	redactor *redact.Redactor
}

// HTTPOption configures an HTTPAdapter.
type HTTPOption func(*HTTPAdapter)

// WithHTTPClient overrides the default client (30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(a *HTTPAdapter) {
		if c != nil {
			a.client = c
		}
	}
}

// WithHTTPRedactor overrides the default redactor.
func WithHTTPRedactor(r *redact.Redactor) HTTPOption {
	return func(a *HTTPAdapter) { a.redactor = r }
}

// NewHTTPAdapter creates an HTTP adapter for the given base URL.
func NewHTTPAdapter(id, baseURL string, opts ...HTTPOption) (*HTTPAdapter, error) {
	if baseURL == "" {
		return nil, errors.New("dispatch: http adapter requires a base URL")
	}
	if id == "" {
		id = "http"
	}
	a := &HTTPAdapter{
		id:       id,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: defaultHTTPTimeout},
		redactor: redact.NewDefault(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

func (a *HTTPAdapter) AdapterID() string   { return a.id }
func (a *HTTPAdapter) AdapterKind() string { return "http" }

func (a *HTTPAdapter) Capabilities() CapabilitySet {
	return NewCapabilitySet(CapabilityApply, CapabilityTimeout, CapabilityExternal)
}

// Call POSTs the tool call to the remote endpoint.
func (a *HTTPAdapter) Call(ctx context.Context, tool, method string, args map[string]any) (map[string]any, error) {
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(map[string]any{
		"tool":   tool,
		"method": method,
		"args":   args,
	})
	if err != nil {
		return nil, fault.NewBug(fault.CodeBug, "marshal http call body").WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/call", bytes.NewReader(body))
	if err != nil {
		return nil, fault.NewBug(fault.CodeBug, "build http request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fault.NewOperational(fault.CodeTimeout,
				"http call %s.%s timed out", tool, method).WithCause(err)
		}
		return nil, fault.NewOperational(fault.CodeConnectionFailed,
			"http call %s.%s: %v", tool, method, err).WithCause(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseSize))
	if err != nil {
		return nil, fault.NewOperational(fault.CodeConnectionFailed,
			"read response for %s.%s", tool, method).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fault.NewOperational(fault.CodeHTTPError,
			"http call %s.%s returned status %d", tool, method, resp.StatusCode).
			WithDetails(map[string]any{
				"status_code":  resp.StatusCode,
				"body_excerpt": a.excerpt(string(raw)),
			})
	}

	var output map[string]any
	if err := json.Unmarshal(raw, &output); err != nil {
		return nil, fault.NewOperational(fault.CodeInvalidJSONOutput,
			"http call %s.%s returned non-JSON body", tool, method).
			WithDetails(map[string]any{
				"body_excerpt": a.excerpt(string(raw)),
			}).WithCause(err)
	}
	return output, nil
}

func (a *HTTPAdapter) excerpt(s string) string {
	s = a.redactor.Text(s)
	if len(s) > maxHTTPBodyExcerpt {
		s = s[:maxHTTPBodyExcerpt]
	}
	return s
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
