package prompts

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([a-z_]+)\s*\}\}`)

// Manager renders templates with placeholder substitution.
type Manager struct {
	log zerolog.Logger
}

// NewManager creates a prompt manager.
func NewManager(log zerolog.Logger) *Manager {
	return &Manager{log: log.With().Str("component", "prompt_manager").Logger()}
}

// Render substitutes {{placeholder}} markers from the context map.
// Missing placeholders render as empty strings; in strict mode a missing
// placeholder is an error.
func (m *Manager) Render(content string, context map[string]string, strict bool) (string, error) {
	var missing []string

	rendered := placeholderPattern.ReplaceAllStringFunc(content, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		if value, ok := context[name]; ok {
			return value
		}
		missing = append(missing, name)
		return ""
	})

	if strict && len(missing) > 0 {
		return "", fmt.Errorf("missing placeholders: %s", strings.Join(missing, ", "))
	}
	if len(missing) > 0 {
		m.log.Debug().Strs("missing", missing).Msg("placeholders rendered empty")
	}
	return rendered, nil
}

// ValidateTemplate checks placeholder syntax and vocabulary: unbalanced
// braces and unknown names are rejected.
func (m *Manager) ValidateTemplate(content string) error {
	// Strip well-formed markers, then look for brace leftovers.
	stripped := placeholderPattern.ReplaceAllString(content, "")
	if strings.Contains(stripped, "{{") || strings.Contains(stripped, "}}") {
		return fmt.Errorf("template has unbalanced placeholder braces")
	}

	var unknown []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		if !IsKnownPlaceholder(match[1]) {
			unknown = append(unknown, match[1])
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown placeholders: %s", strings.Join(unknown, ", "))
	}
	return nil
}

// ExtractPlaceholders lists the distinct placeholder names used by a
// template, in order of first appearance.
func ExtractPlaceholders(content string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, match := range placeholderPattern.FindAllStringSubmatch(content, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			names = append(names, match[1])
		}
	}
	return names
}
