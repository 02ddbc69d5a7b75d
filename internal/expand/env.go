// Package expand substitutes ${env.NAME} references in configuration text.
package expand

import (
	"os"
	"strings"
)

const prefix = "${env."

// Env replaces every ${env.NAME} in value with the NAME environment
// variable, or "" when unset. A reference with an invalid name keeps its
// prefix literally; an unterminated one keeps the rest of value.
func Env(value string) string {
	return With(value, os.Getenv)
}

// With is Env with a custom variable source.
func With(value string, lookup func(name string) string) string {
	var b strings.Builder
	for {
		idx := strings.Index(value, prefix)
		if idx < 0 {
			b.WriteString(value)
			return b.String()
		}
		b.WriteString(value[:idx])
		rest := value[idx+len(prefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(value[idx:])
			return b.String()
		}
		name := rest[:end]
		if !isName(name) {
			b.WriteString(prefix)
			value = rest
			continue
		}
		b.WriteString(lookup(name))
		value = rest[end+1:]
	}
}

func isName(name string) bool {
	for _, r := range name {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}
