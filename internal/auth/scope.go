package auth

import (
	"slices"
	"strings"
)

// ScopeValidator checks requested scopes against what a client may request.
type ScopeValidator struct{}

// Validate returns the scopes to grant. A nil request means no restriction
// and is propagated as nil. A client with nil Scopes accepts anything.
func (ScopeValidator) Validate(client *Client, requested []string) ([]string, error) {
	if requested == nil {
		return nil, nil
	}
	if client.Scopes == nil {
		return requested, nil
	}

	var offending []string
	for _, scope := range requested {
		if !slices.Contains(client.Scopes, scope) && !slices.Contains(offending, scope) {
			offending = append(offending, scope)
		}
	}
	if len(offending) > 0 {
		return nil, InvalidScope("scope not allowed for this client: %s", strings.Join(offending, ", "))
	}
	return requested, nil
}

// ParseScope splits a space-delimited scope parameter. Blank input yields nil.
func ParseScope(raw string) []string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return nil
	}
	return fields
}

// FormatScope joins scopes for the wire.
func FormatScope(scopes []string) string {
	return strings.Join(scopes, " ")
}
