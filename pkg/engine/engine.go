package engine

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"

	"github.com/rhuss/tiefsee/pkg/api"
	"github.com/rhuss/tiefsee/pkg/debug"
	"github.com/rhuss/tiefsee/pkg/observability"
	"github.com/rhuss/tiefsee/pkg/transport"
)

// Gateway runs completions against the upstream. It is implemented by
// *upstream.Gateway.
type Gateway interface {
	Complete(ctx context.Context, model string, messages []api.ChatMessage, refreshToken string) (*api.ChatCompletion, error)
	CompleteStream(ctx context.Context, model string, messages []api.ChatMessage, refreshToken string) (io.ReadCloser, error)
	TokenLiveStatus(ctx context.Context, refreshToken string) bool
}

// Engine orchestrates request processing between the transport layer
// and the upstream gateway.
type Engine struct {
	gateway Gateway
	cfg     Config

	// pick returns an index in [0, n). Replaced in tests.
	pick func(n int) int
}

var (
	_ transport.CompletionCreator = (*Engine)(nil)
	_ transport.ModelLister       = (*Engine)(nil)
	_ transport.TokenChecker      = (*Engine)(nil)
)

// New creates a new Engine. The gateway must not be nil.
func New(gw Gateway, cfg Config) (*Engine, error) {
	if gw == nil {
		return nil, fmt.Errorf("engine: gateway must not be nil")
	}
	return &Engine{
		gateway: gw,
		cfg:     cfg,
		pick:    rand.IntN,
	}, nil
}

// CreateChatCompletion handles a synchronous or streaming completion.
func (e *Engine) CreateChatCompletion(ctx context.Context, req *api.ChatCompletionRequest, w transport.ResponseWriter) error {
	if req.Model == "" {
		if e.cfg.DefaultModel == "" {
			return api.NewInvalidRequestError("model", "model is required")
		}
		req.Model = e.cfg.DefaultModel
	}
	observability.SetModel(ctx, req.Model)

	if apiErr := api.ValidateRequest(req, e.cfg.Validation); apiErr != nil {
		return apiErr
	}

	refreshToken, err := e.selectToken(ctx)
	if err != nil {
		return err
	}

	debug.Log("engine", "dispatching completion",
		"request_id", transport.RequestIDFromContext(ctx),
		"model", req.Model,
		"stream", req.Stream,
		"messages", len(req.Messages),
		"token", debug.Mask(refreshToken),
	)

	if req.Stream {
		body, err := e.gateway.CompleteStream(ctx, req.Model, req.Messages, refreshToken)
		if err != nil {
			return err
		}
		return w.WriteStream(ctx, body)
	}

	completion, err := e.gateway.Complete(ctx, req.Model, req.Messages, refreshToken)
	if err != nil {
		return err
	}
	return w.WriteCompletion(ctx, completion)
}

// ListModels returns the configured model list.
func (e *Engine) ListModels(_ context.Context) (*api.ModelList, error) {
	list := &api.ModelList{Object: api.ObjectList, Data: make([]api.Model, 0, len(e.cfg.Models))}
	for _, m := range e.cfg.Models {
		list.Data = append(list.Data, api.Model{ID: m, Object: api.ObjectModel, OwnedBy: ownedBy})
	}
	return list, nil
}

// CheckToken reports whether token is still accepted by the upstream.
func (e *Engine) CheckToken(ctx context.Context, token string) (bool, error) {
	if token == "" {
		return false, api.NewInvalidRequestError("token", "token is required")
	}
	return e.gateway.TokenLiveStatus(ctx, token), nil
}

// selectToken picks one refresh token at random from those the caller
// supplied, falling back to the configured tokens.
func (e *Engine) selectToken(ctx context.Context) (string, error) {
	tokens := transport.CredentialsFromContext(ctx)
	if len(tokens) == 0 {
		tokens = e.cfg.Tokens
	}
	if len(tokens) == 0 {
		return "", api.NewInvalidRequestError("authorization", "no refresh token supplied: send Authorization: Bearer <token>")
	}
	return tokens[e.pick(len(tokens))], nil
}
