// Package upstream talks to the third-party chat backend.
//
// Client wraps the three upstream endpoints (identity, clear context,
// completion). Gateway builds the completion pipeline on top of it: per
// refresh token it serializes the clear-context and completion dispatch,
// borrows access tokens from the credential cache, and retries the whole
// attempt with a fixed delay.
package upstream
