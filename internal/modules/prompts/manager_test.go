package prompts

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderSubstitutesPlaceholders(t *testing.T) {
	m := NewManager(zerolog.Nop())

	out, err := m.Render("现金: {{cash}}, 日期: {{ current_date }}", map[string]string{
		"cash":         "100000.00",
		"current_date": "2026-08-18",
	}, false)
	require.NoError(t, err)
	assert.Equal(t, "现金: 100000.00, 日期: 2026-08-18", out)
}

func TestRenderMissingPlaceholder(t *testing.T) {
	m := NewManager(zerolog.Nop())

	out, err := m.Render("a={{cash}} b={{market_value}}", map[string]string{"cash": "1"}, false)
	require.NoError(t, err)
	assert.Equal(t, "a=1 b=", out)

	_, err = m.Render("a={{cash}} b={{market_value}}", map[string]string{"cash": "1"}, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "market_value")
}

func TestValidateTemplate(t *testing.T) {
	m := NewManager(zerolog.Nop())

	tests := []struct {
		name    string
		content string
		wantErr bool
	}{
		{"valid", "{{cash}} {{hot_stocks_quotes}}", false},
		{"no placeholders", "plain text", false},
		{"unknown name", "{{not_a_thing}}", true},
		{"unbalanced open", "{{cash", true},
		{"unbalanced close", "cash}}", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := m.ValidateTemplate(tt.content)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExtractPlaceholders(t *testing.T) {
	names := ExtractPlaceholders("{{cash}} {{positions}} {{cash}}")
	assert.Equal(t, []string{"cash", "positions"}, names)
}
