package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/observability"
)

// Upstream endpoints.
const (
	pathUsersCurrent = "/api/v0/users/current"
	pathClearContext = "/api/v0/chat/clear_context"
	pathCompletions  = "/api/v0/chat/completions"
)

// Result codes in the upstream JSON envelope.
const (
	codeOK           = 0
	codeTokenInvalid = 40003
)

// maxEnvelopeSize bounds how much of a non-streaming response is read.
const maxEnvelopeSize = 1 << 20

// ClientOptions configures a Client.
type ClientOptions struct {
	// BaseURL is the upstream origin, e.g. https://chat.deepseek.com.
	BaseURL string

	// RequestTimeout bounds identity and clear-context calls. Default: 15s.
	RequestTimeout time.Duration

	// CompletionTimeout bounds a completion call including reading its
	// body. Default: 120s.
	CompletionTimeout time.Duration

	// Headers override the built-in browser headers. An empty value
	// removes the header.
	Headers map[string]string

	// HTTPClient is used for all requests. Default: a client without a
	// global timeout; deadlines come from the per-call contexts.
	HTTPClient *http.Client
}

// Client performs requests against the upstream chat backend.
type Client struct {
	httpClient        *http.Client
	baseURL           string
	headers           http.Header
	requestTimeout    time.Duration
	completionTimeout time.Duration
}

// NewClient creates a new upstream client.
func NewClient(opts ClientOptions) *Client {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 15 * time.Second
	}
	if opts.CompletionTimeout <= 0 {
		opts.CompletionTimeout = 120 * time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	return &Client{
		httpClient:        opts.HTTPClient,
		baseURL:           strings.TrimRight(opts.BaseURL, "/"),
		headers:           buildHeaders(opts.Headers),
		requestTimeout:    opts.RequestTimeout,
		completionTimeout: opts.CompletionTimeout,
	}
}

// clearContextRequest is the body of POST /api/v0/chat/clear_context.
type clearContextRequest struct {
	ModelClass           string `json:"model_class"`
	AppendWelcomeMessage bool   `json:"append_welcome_message"`
}

// completionRequest is the body of POST /api/v0/chat/completions.
type completionRequest struct {
	Message         string  `json:"message"`
	Stream          bool    `json:"stream"`
	ModelPreference *string `json:"model_preference"`
	ModelClass      string  `json:"model_class"`
	Temperature     float64 `json:"temperature"`
}

// Refresh exchanges a refresh token for an access token via the identity
// endpoint. A rejected refresh token yields an upstream_auth_error.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (string, error) {
	data, err := c.call(ctx, "refresh", http.MethodGet, pathUsersCurrent, refreshToken, nil)
	if err != nil {
		return "", err
	}
	token := data.Get("token").String()
	if token == "" {
		return "", api.NewUpstreamProtocolError("identity response carries no token")
	}
	return token, nil
}

// Probe checks that accessToken is accepted by the identity endpoint.
func (c *Client) Probe(ctx context.Context, accessToken string) error {
	data, err := c.call(ctx, "probe", http.MethodGet, pathUsersCurrent, accessToken, nil)
	if err != nil {
		return err
	}
	if data.Get("token").String() == "" {
		return api.NewUpstreamProtocolError("identity response carries no token")
	}
	return nil
}

// ClearContext resets the upstream conversation held for accessToken.
func (c *Client) ClearContext(ctx context.Context, accessToken, model string) error {
	_, err := c.call(ctx, "clear_context", http.MethodPost, pathClearContext, accessToken, &clearContextRequest{
		ModelClass:           model,
		AppendWelcomeMessage: false,
	})
	return err
}

// Completion starts a streaming completion for prompt and returns the raw
// response once its headers have arrived. The response is returned
// whatever its status and content type; the caller inspects both and must
// close the body. The completion timeout keeps running until the body is
// closed.
func (c *Client) Completion(ctx context.Context, accessToken, model, prompt string) (*http.Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.completionTimeout)
	resp, err := c.do(ctx, "completion", http.MethodPost, pathCompletions, accessToken, &completionRequest{
		Message:     prompt,
		Stream:      true,
		ModelClass:  model,
		Temperature: 0,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// call performs a short request and unwraps the JSON result envelope.
func (c *Client) call(ctx context.Context, endpoint, method, path, token string, body any) (gjson.Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	resp, err := c.do(ctx, endpoint, method, path, token, body)
	if err != nil {
		return gjson.Result{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxEnvelopeSize))
	if err != nil {
		return gjson.Result{}, MapNetworkError(err)
	}
	debug.Trace("upstream", "response body", "endpoint", endpoint, "status", resp.StatusCode, "body", debug.Truncate(string(data), 2000))

	return checkResult(resp.StatusCode, data)
}

// do sends one request with the browser headers and bearer token.
func (c *Client) do(ctx context.Context, endpoint, method, path, token string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, api.NewServerError(fmt.Sprintf("failed to marshal upstream request: %s", err.Error()))
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, api.NewServerError(fmt.Sprintf("failed to create HTTP request: %s", err.Error()))
	}
	httpReq.Header = c.headers.Clone()
	httpReq.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	debug.Log("upstream", "request", "endpoint", endpoint, "method", method, "path", path, "token", debug.Mask(token))

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	observability.UpstreamLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		observability.UpstreamRequestsTotal.WithLabelValues(endpoint, "error").Inc()
		return nil, MapNetworkError(err)
	}
	observability.UpstreamRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	debug.Log("upstream", "response", "endpoint", endpoint, "status", resp.StatusCode,
		"content_type", resp.Header.Get("Content-Type"),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return resp, nil
}

// checkResult unwraps the upstream {code, data, msg} envelope.
//
// Code 0 yields data. Code 40003 means the bearer token is no longer
// valid and yields an upstream_auth_error. Bodies without a numeric code
// are returned whole when the HTTP status is successful.
func checkResult(status int, body []byte) (gjson.Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		if status >= 200 && status < 300 {
			return gjson.Result{}, nil
		}
		return gjson.Result{}, httpStatusError(status, "")
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, httpStatusError(status, debug.Truncate(string(body), 200))
	}

	result := gjson.ParseBytes(body)
	code := result.Get("code")
	if code.Type != gjson.Number {
		if status >= 200 && status < 300 {
			return result, nil
		}
		return gjson.Result{}, httpStatusError(status, result.Get("msg").String())
	}

	msg := result.Get("msg").String()
	switch code.Int() {
	case codeOK:
		return result.Get("data"), nil
	case codeTokenInvalid:
		return gjson.Result{}, api.NewUpstreamAuthError(fmt.Sprintf("[Request upstream failed]: %s", msg))
	default:
		return gjson.Result{}, api.NewUpstreamProtocolError(fmt.Sprintf("[Request upstream failed]: %s (code %d)", msg, code.Int()))
	}
}

// httpStatusError maps an unsuccessful status without a result code.
func httpStatusError(status int, detail string) *api.APIError {
	message := fmt.Sprintf("[Request upstream failed]: HTTP %d", status)
	if detail != "" {
		message += ": " + detail
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return api.NewUpstreamAuthError(message)
	}
	return api.NewUpstreamProtocolError(message)
}

// cancelOnClose releases a request context when the body is closed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
