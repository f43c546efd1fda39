// Package template substitutes {{UPPER_SNAKE}} placeholders into agent templates.
//
// The mapping is checked for completeness before any substitution, replacement is a
// single literal pass over every occurrence, and the output is checked once more so that
// no placeholder-shaped token ever reaches a rendered artifact.
package template

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/sabamen88/zeroclaw-nemu/internal/pkg/agent"
)

// Name identifies a template in a Set.
type Name string

const (
	Persona       Name = "persona"
	Heartbeat     Name = "heartbeat"
	RuntimeConfig Name = "runtime-config"
	Storage       Name = "storage"
)

// Values maps placeholder names (without braces) to replacement text. Intentionally blank
// optional fields must be present with an empty string.
type Values map[string]string

var placeholderPattern = regexp.MustCompile(`\{\{([A-Z][A-Z0-9_]*)\}\}`)

// Token formats a placeholder name as it appears in a template.
func Token(name string) string {
	return "{{" + name + "}}"
}

// Placeholders returns the distinct placeholder names used in text, sorted.
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)

	names := make([]string, 0, len(matches))
	for _, match := range matches {
		names = append(names, match[1])
	}

	slices.Sort(names)

	return slices.Compact(names)
}

// UnresolvedPlaceholderError reports a placeholder with no value in the mapping or left
// over in rendered output.
type UnresolvedPlaceholderError struct {
	// Template is the template that was being rendered.
	Template Name

	// Token is the leftover placeholder, including braces.
	Token string
}

// Error returns the error message for the unresolved placeholder.
func (err *UnresolvedPlaceholderError) Error() string {
	if err == nil {
		return ""
	}

	return fmt.Sprintf("template %s: unresolved placeholder %s", err.Template, err.Token)
}

// Unwrap returns agent.ErrUnresolvedPlaceholder.
func (err *UnresolvedPlaceholderError) Unwrap() error {
	return agent.ErrUnresolvedPlaceholder
}

// Render substitutes values into text.
// Returns *UnresolvedPlaceholderError naming the first missing placeholder when the
// mapping is incomplete, or when a substituted value itself introduces a placeholder.
func Render(name Name, text string, values Values) (string, error) {
	for _, placeholder := range Placeholders(text) {
		if _, ok := values[placeholder]; !ok {
			return "", &UnresolvedPlaceholderError{Template: name, Token: Token(placeholder)}
		}
	}

	pairs := make([]string, 0, len(values)*2)
	for _, key := range sortedKeys(values) {
		pairs = append(pairs, Token(key), values[key])
	}

	rendered := strings.NewReplacer(pairs...).Replace(text)

	if leftover := placeholderPattern.FindString(rendered); leftover != "" {
		return "", &UnresolvedPlaceholderError{Template: name, Token: leftover}
	}

	return rendered, nil
}

func sortedKeys(values Values) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}

	slices.Sort(keys)

	return keys
}
