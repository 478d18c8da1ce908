// Package engine implements the outward chat completion operation for
// tiefsee. The Engine implements the transport handler interfaces: it
// applies the default model, validates the request, selects one refresh
// token for the request and hands the conversation to the upstream
// gateway. The result is written either as a complete answer or as a
// relayed event stream.
package engine
