package template

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waffletower/InvokeAI/internal/domain"
)

func TestRenderString(t *testing.T) {
	out, err := RenderString("Hello {{ name }}, you have {{n}} items: {{list}} {{ratio}}", map[string]any{
		"name":  "ana",
		"n":     float64(3),
		"list":  []any{"a", 1},
		"ratio": 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, `Hello ana, you have 3 items: ["a",1] 0.5`, out)
}

func TestRenderStringStoredNumbers(t *testing.T) {
	out, err := RenderString("{{id}}", map[string]any{"id": json.Number("9007199254740993")})
	require.NoError(t, err)
	assert.Equal(t, "9007199254740993", out)
}

func TestRenderStringErrors(t *testing.T) {
	_, err := RenderString("{{missing}}", nil)
	assert.True(t, domain.IsKind(err, domain.KindMissingVar))
	assert.ErrorIs(t, err, domain.ErrMissingVar)

	_, err = RenderString("{{open", nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidConfig))

	_, err = RenderString("{{ }}", nil)
	assert.True(t, domain.IsKind(err, domain.KindInvalidConfig))

	out, err := RenderString("", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}
