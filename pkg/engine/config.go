package engine

import "github.com/rhuss/tiefsee/pkg/api"

// Config holds configuration for the engine.
type Config struct {
	// DefaultModel is used when the request omits the model field.
	DefaultModel string

	// Models is the list advertised by ListModels.
	Models []string

	// Tokens are the refresh tokens used when a request carries none.
	Tokens []string

	// Validation bounds the size of accepted requests.
	Validation api.ValidationConfig
}

// ownedBy is reported for every advertised model.
const ownedBy = "tiefsee"
