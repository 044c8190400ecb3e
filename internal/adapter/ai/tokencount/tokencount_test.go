package tokencount

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	t.Parallel()

	counter := NewCounter()

	tests := []struct {
		name     string
		text     string
		model    string
		minCount int
		maxCount int
	}{
		{name: "simple text with gpt-4", text: "Hello, world!", model: "gpt-4", minCount: 3, maxCount: 5},
		{name: "longer text", text: "The quick brown fox jumps over the lazy dog.", model: "gpt-3.5-turbo", minCount: 8, maxCount: 12},
		{name: "gpt-5 family", text: "Hello, world!", model: "gpt-5-nano", minCount: 3, maxCount: 5},
		{name: "prefixed model id", text: "Testing token counting", model: "openai/gpt-4o-mini", minCount: 3, maxCount: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			count, err := counter.CountTokens(tt.text, tt.model)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, tt.minCount)
			assert.LessOrEqual(t, count, tt.maxCount)
		})
	}
}

func TestNormalizeModelName(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input    string
		expected string
	}{
		{"gpt-4", "gpt-4"},
		{"gpt-4-turbo", "gpt-4"},
		{"gpt-3.5-turbo", "gpt-3.5-turbo"},
		{"gpt-4o-mini", "gpt-4o"},
		{"gpt-5-nano", "gpt-4o"},
		{"openai/o3-mini", "gpt-4o"},
		{" GPT-3.5-TURBO ", "gpt-3.5-turbo"},
		{"unknown-model", "gpt-4"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeModelName(tt.input))
		})
	}
}

func TestEncodingCache(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	count1, err := counter.CountTokens("Hello", "gpt-4")
	require.NoError(t, err)
	count2, err := counter.CountTokens("Hello", "gpt-4-0613")
	require.NoError(t, err)

	assert.Equal(t, count1, count2)
	counter.mu.RLock()
	defer counter.mu.RUnlock()
	assert.Len(t, counter.encodingCache, 1)
}

func TestEmptyAndLongInputs(t *testing.T) {
	t.Parallel()

	count, err := CountTokensDefault("", "gpt-4")
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	long := strings.Repeat("This is a test sentence to check token counting for longer texts. ", 100)
	count, err = CountTokensDefault(long, "gpt-3.5-turbo")
	require.NoError(t, err)
	assert.Greater(t, count, 1000)
}

func TestSpecialCharacters(t *testing.T) {
	t.Parallel()

	counter := NewCounter()
	for _, text := range []string{"Hello 世界 🌍", `{"key": "value", "number": 123}`, "Line 1\nLine 2\nLine 3"} {
		count, err := counter.CountTokens(text, "gpt-4")
		require.NoError(t, err)
		assert.Greater(t, count, 0, text)
	}
}
