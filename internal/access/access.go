package access

import (
	"errors"
	"fmt"
)

// Scope is a named permission an access key may hold.
type Scope string

const (
	// ScopeStartStop allows starting and stopping a service. It implies
	// every other scope. "manage" is accepted as an alias in configuration.
	ScopeStartStop Scope = "start-stop"
	ScopeLogs      Scope = "logs"
	ScopeStatus    Scope = "status"
	ScopeCommands  Scope = "commands"
)

// ErrNotAuthorized is returned when a caller token matches no key with the
// required scope.
var ErrNotAuthorized = errors.New("key not authorized")

// AllScopes returns every defined scope.
func AllScopes() []Scope {
	return []Scope{ScopeStartStop, ScopeLogs, ScopeStatus, ScopeCommands}
}

// ParseScope converts a configuration string into a Scope.
func ParseScope(s string) (Scope, error) {
	switch s {
	case "start-stop", "start_stop", "manage":
		return ScopeStartStop, nil
	case "logs":
		return ScopeLogs, nil
	case "status":
		return ScopeStatus, nil
	case "commands":
		return ScopeCommands, nil
	default:
		return "", fmt.Errorf("unknown scope %q", s)
	}
}

// Key is an access key attached to a service. Keys are created at config
// load time and immutable afterwards.
type Key struct {
	Value  string
	Scopes []Scope
}

// Allows reports whether the key grants the given scope. ScopeStartStop
// implies all scopes.
func (k Key) Allows(scope Scope) bool {
	for _, s := range k.Scopes {
		if s == scope || s == ScopeStartStop {
			return true
		}
	}
	return false
}

// Authorize checks the caller token against a service's key list. An empty
// key list means the service is public: every caller is authorized for every
// scope. Otherwise the token must match a key whose scopes contain the
// required scope (or the implies-all start-stop scope).
func Authorize(token string, keys []Key, scope Scope) error {
	if len(keys) == 0 {
		return nil
	}
	for _, k := range keys {
		if k.Value != token {
			continue
		}
		if k.Allows(scope) {
			return nil
		}
	}
	return ErrNotAuthorized
}

// AllowedScopes returns the full scope set the token holds on a service:
// all scopes for a public service, the matched key's scopes otherwise, empty
// when the token matches nothing. For informational listing only; never use
// this for enforcement.
func AllowedScopes(token string, keys []Key) []Scope {
	if len(keys) == 0 {
		return AllScopes()
	}
	for _, k := range keys {
		if k.Value == token {
			if k.Allows(ScopeStartStop) {
				return AllScopes()
			}
			scopes := make([]Scope, len(k.Scopes))
			copy(scopes, k.Scopes)
			return scopes
		}
	}
	return nil
}
