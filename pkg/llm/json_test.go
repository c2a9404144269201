package llm_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmheart-ai/companion-go/pkg/llm"
)

// sequenceProvider replies with a fixed sequence and records conversations.
type sequenceProvider struct {
	mu       sync.Mutex
	replies  []string
	err      error
	received [][]llm.Message
}

func (p *sequenceProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *sequenceProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	snapshot := make([]llm.Message, len(messages))
	copy(snapshot, messages)
	p.received = append(p.received, snapshot)

	idx := len(p.received) - 1
	if idx >= len(p.replies) {
		idx = len(p.replies) - 1
	}
	return p.replies[idx], nil
}

func (p *sequenceProvider) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, opts ...llm.GenerateOption) (*llm.Response, error) {
	content, err := p.GenerateWithMessages(ctx, messages, opts...)
	return &llm.Response{Content: content}, err
}

func (p *sequenceProvider) GenerateStream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (<-chan llm.StreamChunk, error) {
	content, err := p.GenerateWithMessages(ctx, messages, opts...)
	if err != nil {
		return nil, err
	}
	out := make(chan llm.StreamChunk, 2)
	out <- llm.StreamChunk{Content: content}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (p *sequenceProvider) Close() error { return nil }

func TestParseJSONObject(t *testing.T) {
	cases := []struct {
		name  string
		input string
	}{
		{"plain", `{"key": "value"}`},
		{"fenced", "```json\n{\"key\": \"value\"}\n```"},
		{"fenced no language", "```\n{\"key\": \"value\"}\n```"},
		{"surrounding prose", `好的，这是结果：{"key": "value"} 希望有帮助`},
		{"leading whitespace", "  \n {\"key\": \"value\"}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, err := llm.ParseJSONObject(tc.input)
			require.NoError(t, err)
			assert.Equal(t, "value", parsed["key"])
		})
	}
}

func TestParseJSONObject_Nested(t *testing.T) {
	parsed, err := llm.ParseJSONObject(`{"outer": {"inner": [1, 2]}}`)
	require.NoError(t, err)

	outer, ok := parsed["outer"].(map[string]interface{})
	require.True(t, ok)
	assert.Len(t, outer["inner"], 2)
}

func TestParseJSONObject_Invalid(t *testing.T) {
	for _, input := range []string{"", "完全不是 JSON", "[1, 2, 3]", "{broken"} {
		_, err := llm.ParseJSONObject(input)
		assert.Error(t, err, "input %q", input)
	}
}

func TestGenerateJSON_CorrectiveRetry(t *testing.T) {
	provider := &sequenceProvider{replies: []string{
		"抱歉我说多了，没有格式",
		`{"ok": true}`,
	}}

	messages := []llm.Message{{Role: "user", Content: "返回 JSON"}}
	parsed, err := llm.GenerateJSON(context.Background(), provider, messages, 2)
	require.NoError(t, err)
	assert.Equal(t, true, parsed["ok"])

	// The retry carried the bad reply and a corrective instruction.
	require.Len(t, provider.received, 2)
	retry := provider.received[1]
	require.Len(t, retry, 3)
	assert.Equal(t, "assistant", retry[1].Role)
	assert.Equal(t, "抱歉我说多了，没有格式", retry[1].Content)
	assert.Equal(t, "user", retry[2].Role)

	// The caller's slice was not mutated.
	assert.Len(t, messages, 1)
}

func TestGenerateJSON_ExhaustsRetries(t *testing.T) {
	provider := &sequenceProvider{replies: []string{"不是 JSON"}}

	_, err := llm.GenerateJSON(context.Background(), provider,
		[]llm.Message{{Role: "user", Content: "返回 JSON"}}, 1)

	require.Error(t, err)
	// One initial attempt plus one corrective retry.
	assert.Len(t, provider.received, 2)
}

func TestGenerateJSON_ProviderError(t *testing.T) {
	provider := &sequenceProvider{err: errors.New("model unavailable")}

	_, err := llm.GenerateJSON(context.Background(), provider,
		[]llm.Message{{Role: "user", Content: "返回 JSON"}}, 2)
	assert.Error(t, err)
}

func TestApplyGenerateOptions(t *testing.T) {
	opts := llm.ApplyGenerateOptions(nil)
	assert.Equal(t, 0.7, opts.Temperature)
	assert.Equal(t, 1000, opts.MaxTokens)
	assert.Equal(t, 1.0, opts.TopP)

	opts = llm.ApplyGenerateOptions([]llm.GenerateOption{
		llm.WithTemperature(0.2),
		llm.WithMaxTokens(300),
		llm.WithTopP(0.9),
	})
	assert.Equal(t, 0.2, opts.Temperature)
	assert.Equal(t, 300, opts.MaxTokens)
	assert.Equal(t, 0.9, opts.TopP)
}
