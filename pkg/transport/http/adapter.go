package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/credential"
	"github.com/rhuss/tiefsee/pkg/observability"
	"github.com/rhuss/tiefsee/pkg/transport"
)

// Adapter serves the OpenAI-compatible chat API over HTTP.
// It routes requests to the appropriate handler and serializes responses.
type Adapter struct {
	creator  transport.CompletionCreator
	models   transport.ModelLister
	tokens   transport.TokenChecker
	inflight *transport.InFlightRegistry
	mux      *http.ServeMux
	config   Config
}

// Config holds configuration for the HTTP adapter.
type Config struct {
	MaxBodySize int64
}

// DefaultConfig returns the default adapter configuration.
func DefaultConfig() Config {
	return Config{
		MaxBodySize: 100 << 20, // 100 MB
	}
}

// NewAdapter creates an HTTP adapter. The models and tokens handlers are
// optional; their routes answer 404 when nil. Middleware is applied to the
// CompletionCreator in the given order.
func NewAdapter(creator transport.CompletionCreator, models transport.ModelLister, tokens transport.TokenChecker, cfg Config, middlewares ...transport.Middleware) *Adapter {
	if len(middlewares) > 0 {
		creator = transport.Chain(middlewares...)(creator)
	}

	a := &Adapter{
		creator:  creator,
		models:   models,
		tokens:   tokens,
		inflight: transport.NewInFlightRegistry(),
		mux:      http.NewServeMux(),
		config:   cfg,
	}

	a.mux.HandleFunc("POST /v1/chat/completions", a.handleChatCompletions)
	a.mux.HandleFunc("GET /v1/models", a.handleListModels)
	a.mux.HandleFunc("POST /token/check", a.handleTokenCheck)
	a.mux.HandleFunc("GET /healthz", a.handleHealth)
	a.mux.HandleFunc("/", a.handleNotFound)

	return a
}

// Handle registers an additional handler on the adapter's mux, e.g. the
// metrics endpoint.
func (a *Adapter) Handle(pattern string, h http.Handler) {
	a.mux.Handle(pattern, h)
}

// Handler returns the http.Handler for this adapter. The returned handler
// includes request ID propagation and request metrics.
func (a *Adapter) Handler() http.Handler {
	return httpRequestIDMiddleware(observability.MetricsMiddleware(a.mux))
}

// CancelStreams ends all running stream relays and returns how many
// there were.
func (a *Adapter) CancelStreams() int {
	return a.inflight.CancelAll()
}

// httpRequestIDMiddleware assigns the request ID at the HTTP level. A
// client-supplied X-Request-ID is kept; otherwise a new ID is generated.
// The ID is echoed in the X-Request-ID response header.
func httpRequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = api.NewRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(transport.ContextWithRequestID(r.Context(), id)))
	})
}

// handleChatCompletions handles POST /v1/chat/completions.
func (a *Adapter) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	req, apiErr, status := decodeJSONBody(w, r, a.config.MaxBodySize, &api.ChatCompletionRequest{})
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, status)
		return
	}

	ctx := r.Context()
	if tokens := credential.SplitTokens(r.Header.Get("Authorization")); len(tokens) > 0 {
		ctx = transport.ContextWithCredentials(ctx, tokens)
	}

	if req.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithCancel(ctx)
		defer cancel()

		id := transport.RequestIDFromContext(ctx)
		a.inflight.Register(id, cancel)
		defer a.inflight.Remove(id)
	}

	rw := newSSEResponseWriter(w)
	if err := a.creator.CreateChatCompletion(ctx, req, rw); err != nil {
		a.writeHandlerError(w, rw, err)
	}
}

// handleListModels handles GET /v1/models.
func (a *Adapter) handleListModels(w http.ResponseWriter, r *http.Request) {
	if a.models == nil {
		a.handleNotFound(w, r)
		return
	}
	list, err := a.models.ListModels(r.Context())
	if err != nil {
		transport.WriteAPIError(w, api.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// tokenCheckRequest is the body of POST /token/check.
type tokenCheckRequest struct {
	Token string `json:"token"`
}

// tokenCheckResponse is the answer of POST /token/check.
type tokenCheckResponse struct {
	Live bool `json:"live"`
}

// handleTokenCheck handles POST /token/check.
func (a *Adapter) handleTokenCheck(w http.ResponseWriter, r *http.Request) {
	if a.tokens == nil {
		a.handleNotFound(w, r)
		return
	}
	req, apiErr, status := decodeJSONBody(w, r, a.config.MaxBodySize, &tokenCheckRequest{})
	if apiErr != nil {
		transport.WriteErrorResponse(w, apiErr, status)
		return
	}

	live, err := a.tokens.CheckToken(r.Context(), req.Token)
	if err != nil {
		transport.WriteAPIError(w, api.AsAPIError(err))
		return
	}
	writeJSON(w, http.StatusOK, tokenCheckResponse{Live: live})
}

// handleHealth handles GET /healthz.
func (a *Adapter) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleNotFound answers requests that match no route.
func (a *Adapter) handleNotFound(w http.ResponseWriter, r *http.Request) {
	transport.WriteAPIError(w, api.NewNotFoundError(fmt.Sprintf("no route matching %s %s", r.Method, r.URL.Path)))
}

// decodeJSONBody validates the content type, limits the body size and decodes
// the request body into dst. On failure it returns the error to report and
// its HTTP status.
func decodeJSONBody[T any](w http.ResponseWriter, r *http.Request, maxBody int64, dst *T) (*T, *api.APIError, int) {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil || mediaType != "application/json" {
			return nil, api.NewInvalidRequestError("content_type", "Content-Type must be application/json"), http.StatusUnsupportedMediaType
		}
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			return nil, api.NewInvalidRequestError("body", fmt.Sprintf("request body too large (max %d bytes)", maxBody)), http.StatusRequestEntityTooLarge
		}
		return nil, api.NewInvalidRequestError("body", "invalid JSON: "+err.Error()), http.StatusBadRequest
	}
	return dst, nil, 0
}

// writeHandlerError writes an error returned by the handler. Once a
// stream has started the error can no longer be sent to the client and is
// only logged.
func (a *Adapter) writeHandlerError(w http.ResponseWriter, rw *sseResponseWriter, err error) {
	apiErr := api.AsAPIError(err)

	if rw.hasWritten() {
		slog.Warn("error after response was committed",
			"streaming", rw.hasStartedStreaming(),
			"error", err,
		)
		return
	}

	transport.WriteAPIError(w, apiErr)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
