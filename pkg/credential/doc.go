// Package credential caches upstream access tokens derived from
// caller-supplied refresh tokens.
//
// A refresh token is exchanged for an access token at most once at a time:
// concurrent callers asking for the same refresh token share one upstream
// refresh and observe the same result. Cached tokens expire after a fixed
// TTL (or earlier, when the access token is a JWT with an exp claim), are
// evicted when the upstream rejects them, and are bounded by an LRU limit.
package credential
