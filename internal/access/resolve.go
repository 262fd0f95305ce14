package access

import (
	"fmt"
	"strings"
)

// ResolveKeyRef resolves a configured key literal against the table of named
// keys. A "$name" literal is replaced by the named key's value, "$$literal"
// escapes a leading dollar sign without resolution, and anything else is
// returned verbatim. An unknown referenced name is a configuration error.
func ResolveKeyRef(literal string, named map[string]string) (string, error) {
	if !strings.HasPrefix(literal, "$") {
		return literal, nil
	}
	if strings.HasPrefix(literal, "$$") {
		return literal[1:], nil
	}

	name := literal[1:]
	value, ok := named[name]
	if !ok {
		return "", fmt.Errorf("access key %q not found", name)
	}
	return value, nil
}
