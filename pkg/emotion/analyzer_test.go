package emotion_test

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmheart-ai/companion-go/pkg/emotion"
	"github.com/warmheart-ai/companion-go/pkg/llm"
)

// countingProvider counts generation calls and returns a fixed reply.
type countingProvider struct {
	calls int64
	reply string
}

func (p *countingProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	atomic.AddInt64(&p.calls, 1)
	return p.reply, nil
}

func (p *countingProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	atomic.AddInt64(&p.calls, 1)
	return p.reply, nil
}

func (p *countingProvider) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, opts ...llm.GenerateOption) (*llm.Response, error) {
	atomic.AddInt64(&p.calls, 1)
	return &llm.Response{Content: p.reply}, nil
}

func (p *countingProvider) GenerateStream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (<-chan llm.StreamChunk, error) {
	atomic.AddInt64(&p.calls, 1)
	out := make(chan llm.StreamChunk, 2)
	out <- llm.StreamChunk{Content: p.reply}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (p *countingProvider) Close() error { return nil }

func TestAnalyzer_RuleBased_StrongJoy(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	result := analyzer.AnalyzeRuleBased("我今天超级开心！太棒了！")
	require.NotNil(t, result)

	assert.Equal(t, "喜悦", result.EmotionType)
	assert.Greater(t, result.Intensity, 0.8)
	assert.GreaterOrEqual(t, result.Confidence, 0.7)
	assert.Contains(t, result.Matches, "超级开心")
}

func TestAnalyzer_HighConfidenceSkipsLLM(t *testing.T) {
	provider := &countingProvider{reply: `{"emotion_type": "悲伤", "intensity": 0.9}`}
	analyzer := emotion.NewAnalyzer(provider)

	result := analyzer.Analyze(context.Background(), "我今天超级开心！太棒了！")
	require.NotNil(t, result)

	assert.Equal(t, "喜悦", result.EmotionType)
	assert.Equal(t, int64(0), atomic.LoadInt64(&provider.calls))
}

func TestAnalyzer_RuleBased_NoSignal(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	assert.Nil(t, analyzer.AnalyzeRuleBased("今天星期三"))
	assert.Nil(t, analyzer.AnalyzeRuleBased(""))
	assert.Nil(t, analyzer.AnalyzeRuleBased("   "))
}

func TestAnalyzer_RuleBased_Dampened(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	result := analyzer.AnalyzeRuleBased("我有点难过")
	require.NotNil(t, result)

	assert.Equal(t, "悲伤", result.EmotionType)
	// 有点 dampens the base intensity.
	assert.Less(t, result.Intensity, 0.5)
}

func TestAnalyzer_RuleBased_IntensityBounds(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	texts := []string{
		"开心",
		"超级无敌开心！！！！！！！！",
		"稍微有点难受",
		"非常特别超级极其生气！！！",
	}
	for _, text := range texts {
		result := analyzer.AnalyzeRuleBased(text)
		require.NotNil(t, result, "expected a result for %q", text)
		assert.GreaterOrEqual(t, result.Intensity, 0.1, "text %q", text)
		assert.LessOrEqual(t, result.Intensity, 1.0, "text %q", text)
		assert.LessOrEqual(t, result.Confidence, 0.95, "text %q", text)
	}
}

func TestAnalyzer_RuleBased_Deterministic(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	// 烦 appears in both 焦虑 and 厌恶; repeated runs must agree.
	first := analyzer.AnalyzeRuleBased("好烦")
	require.NotNil(t, first)
	for i := 0; i < 20; i++ {
		result := analyzer.AnalyzeRuleBased("好烦")
		require.NotNil(t, result)
		assert.Equal(t, first.EmotionType, result.EmotionType)
	}
}

func TestAnalyzer_LLMFallback(t *testing.T) {
	provider := &countingProvider{reply: `{"emotion_type": "思念", "intensity": 0.6, "trigger": "想家了"}`}
	analyzer := emotion.NewAnalyzer(provider)

	// No dictionary keyword fires, so the model is consulted.
	result := analyzer.Analyze(context.Background(), "最近总是想起老家的院子")
	require.NotNil(t, result)

	assert.Equal(t, "思念", result.EmotionType)
	assert.Equal(t, 0.6, result.Intensity)
	assert.Equal(t, "想家了", result.Trigger)
	assert.Equal(t, int64(1), atomic.LoadInt64(&provider.calls))
}

func TestAnalyzer_LLMFallback_BadReply(t *testing.T) {
	provider := &countingProvider{reply: "不是 JSON"}
	analyzer := emotion.NewAnalyzer(provider)

	// Model reply is unusable and there is no rule result to fall back to.
	result := analyzer.Analyze(context.Background(), "最近总是想起老家的院子")
	assert.Nil(t, result)
}

func TestAnalyzer_SupportedEmotions(t *testing.T) {
	analyzer := emotion.NewAnalyzer(nil)

	supported := analyzer.SupportedEmotions()
	assert.Len(t, supported, 13)
	assert.Contains(t, supported, "喜悦")
	assert.Contains(t, supported, "失望")
}
