package upstream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/conversation"
	"github.com/rhuss/tiefsee/pkg/credential"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/observability"
	"github.com/rhuss/tiefsee/pkg/stream"
)

// maxDrainSize bounds how much of an unexpected completion body is read
// for diagnostics.
const maxDrainSize = 64 << 10

// GatewayOptions configures the retry policy of a Gateway.
type GatewayOptions struct {
	// MaxAttempts is the total number of attempts per completion. Default: 3.
	MaxAttempts int

	// RetryDelay is the fixed pause between attempts. Default: 5s.
	RetryDelay time.Duration

	// OnRetry, when set, is called before each retry delay.
	OnRetry func(attempt int, err error, delay time.Duration)
}

// Gateway runs completions against the upstream.
type Gateway struct {
	client      *Client
	credentials *credential.Cache
	locks       *KeyedMutex
	maxAttempts int
	retryDelay  time.Duration
	onRetry     func(attempt int, err error, delay time.Duration)
}

// NewGateway creates a Gateway using client for upstream calls and
// credentials for access tokens.
func NewGateway(client *Client, credentials *credential.Cache, opts GatewayOptions) *Gateway {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 3
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	}
	return &Gateway{
		client:      client,
		credentials: credentials,
		locks:       NewKeyedMutex(),
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		onRetry:     opts.OnRetry,
	}
}

// Complete runs a synchronous completion and returns the full answer.
//
// Each attempt clears the upstream context, dispatches the completion and
// consumes the whole event stream. Failed attempts are repeated up to the
// configured limit; the last error is returned unmodified.
func (g *Gateway) Complete(ctx context.Context, model string, messages []api.ChatMessage, refreshToken string) (*api.ChatCompletion, error) {
	prompt := conversation.Compose(messages)

	return retry(ctx, g, func() (*api.ChatCompletion, error) {
		resp, err := g.dispatch(ctx, model, prompt, refreshToken)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if !isEventStream(resp) {
			return nil, g.unexpectedResponse(resp, refreshToken)
		}

		start := time.Now()
		completion, err := stream.Accumulate(ctx, model, resp.Body)
		if err != nil {
			return nil, err
		}
		slog.Debug("upstream stream consumed", "model", model, "duration_ms", time.Since(start).Milliseconds())
		return completion, nil
	})
}

// CompleteStream runs a streaming completion and returns the outward
// chunk stream. Retries cover the dispatch only: once the upstream has
// answered with an event stream, faults end the outward stream cleanly
// instead. When the upstream answers without an event stream, the
// fallback notice is returned as the stream.
//
// The caller must close the returned reader.
func (g *Gateway) CompleteStream(ctx context.Context, model string, messages []api.ChatMessage, refreshToken string) (io.ReadCloser, error) {
	prompt := conversation.Compose(messages)

	resp, err := retry(ctx, g, func() (*http.Response, error) {
		return g.dispatch(ctx, model, prompt, refreshToken)
	})
	if err != nil {
		return nil, err
	}

	if !isEventStream(resp) {
		err := g.unexpectedResponse(resp, refreshToken)
		resp.Body.Close()
		slog.Warn("upstream returned no event stream, sending fallback", "model", model, "error", err)
		observability.FallbacksTotal.WithLabelValues(model).Inc()
		return stream.Fallback(model), nil
	}

	return stream.Relay(model, resp.Body), nil
}

// TokenLiveStatus reports whether refreshToken can still be used. Every
// failure, including a failed refresh, counts as not live.
func (g *Gateway) TokenLiveStatus(ctx context.Context, refreshToken string) bool {
	accessToken, err := g.credentials.Acquire(ctx, refreshToken)
	if err != nil {
		debug.Log("upstream", "token check refresh failed", "token", debug.Mask(refreshToken), "error", err)
		return false
	}
	if err := g.client.Probe(ctx, accessToken); err != nil {
		g.evictOnAuthError(refreshToken, err)
		debug.Log("upstream", "token check probe failed", "token", debug.Mask(refreshToken), "error", err)
		return false
	}
	return true
}

// dispatch clears the upstream context and issues the completion call
// while holding the lock for refreshToken. The lock is released as soon
// as the completion response headers have arrived.
func (g *Gateway) dispatch(ctx context.Context, model, prompt, refreshToken string) (*http.Response, error) {
	unlock, err := g.locks.Lock(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	defer unlock()

	accessToken, err := g.credentials.Acquire(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	if err := g.client.ClearContext(ctx, accessToken, model); err != nil {
		g.evictOnAuthError(refreshToken, err)
		return nil, err
	}

	// The clear-context call may have evicted the token.
	accessToken, err = g.credentials.Acquire(ctx, refreshToken)
	if err != nil {
		return nil, err
	}
	resp, err := g.client.Completion(ctx, accessToken, model, prompt)
	if err != nil {
		g.evictOnAuthError(refreshToken, err)
		return nil, err
	}
	return resp, nil
}

// unexpectedResponse drains and logs a completion response that is not an
// event stream and converts it into an error.
func (g *Gateway) unexpectedResponse(resp *http.Response, refreshToken string) error {
	contentType := resp.Header.Get("Content-Type")
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxDrainSize))
	slog.Error("invalid upstream response content type",
		"content_type", contentType,
		"status", resp.StatusCode,
		"body", debug.Truncate(string(body), 1000),
	)

	// The body is usually the JSON envelope, which may report a dead token.
	if _, err := checkResult(resp.StatusCode, body); err != nil {
		g.evictOnAuthError(refreshToken, err)
		if apiErr := api.AsAPIError(err); apiErr.Type == api.ErrorTypeUpstreamAuth {
			return err
		}
	}
	return api.NewUpstreamProtocolError("stream response Content-Type invalid: " + contentType)
}

// evictOnAuthError drops the cached access token when the upstream
// rejected it.
func (g *Gateway) evictOnAuthError(refreshToken string, err error) {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Type == api.ErrorTypeUpstreamAuth {
		g.credentials.Invalidate(refreshToken)
	}
}

// retry runs op up to the configured number of attempts with a constant
// delay in between. Errors that cannot succeed on repetition end the loop
// at once.
func retry[T any](ctx context.Context, g *Gateway, op func() (T, error)) (T, error) {
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(g.retryDelay), uint64(g.maxAttempts-1)),
		ctx,
	)

	attempt := 0
	operation := func() (T, error) {
		attempt++
		v, err := op()
		if err != nil {
			return v, permanentIfFinal(ctx, err)
		}
		return v, nil
	}
	notify := func(err error, delay time.Duration) {
		apiErr := api.AsAPIError(err)
		observability.UpstreamRetriesTotal.WithLabelValues(string(apiErr.Type)).Inc()
		slog.Warn("upstream attempt failed, retrying",
			"attempt", attempt,
			"max_attempts", g.maxAttempts,
			"delay", delay,
			"error", err,
		)
		if g.onRetry != nil {
			g.onRetry(attempt, err, delay)
		}
	}

	return backoff.RetryNotifyWithData(operation, policy, notify)
}

// permanentIfFinal marks errors that a repeated attempt cannot fix.
func permanentIfFinal(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return backoff.Permanent(err)
	}
	if errors.Is(err, credential.ErrTokenRejected) {
		return backoff.Permanent(err)
	}
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && !apiErr.Retryable() {
		return backoff.Permanent(err)
	}
	return err
}

// isEventStream reports whether resp declares a text/event-stream body.
func isEventStream(resp *http.Response) bool {
	mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")
	}
	return mediaType == "text/event-stream"
}
