package credential

import "strings"

// SplitTokens extracts the refresh tokens from an Authorization header
// value: the "Bearer " prefix is removed and the rest is split on commas.
// Blank entries are dropped.
func SplitTokens(authorization string) []string {
	authorization = strings.TrimSpace(authorization)
	if scheme, rest, ok := strings.Cut(authorization, " "); ok && strings.EqualFold(scheme, "Bearer") {
		authorization = rest
	} else if strings.EqualFold(authorization, "Bearer") {
		return nil
	}

	var tokens []string
	for _, t := range strings.Split(authorization, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
