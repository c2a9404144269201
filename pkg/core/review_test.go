package core

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warmheart-ai/companion-go/pkg/llm"
)

func TestQuickCheck(t *testing.T) {
	assert.True(t, quickCheck("今天晚上想吃什么呀"))

	// Structure markers reject.
	assert.False(t, quickCheck("建议如下：1. 早睡 2. 多喝水"))
	assert.False(t, quickCheck("首先你要冷静下来"))
	assert.False(t, quickCheck("• 第一点"))

	// Overlong responses reject.
	assert.False(t, quickCheck(strings.Repeat("啊", maxResponseRunes+1)))
	assert.True(t, quickCheck(strings.Repeat("啊", maxResponseRunes)))
}

func TestValidateReview_ScoreFloor(t *testing.T) {
	result := validateReview(map[string]interface{}{
		"approved": true,
		"score":    float64(5),
	}, "好呀")

	assert.False(t, result.Approved)
	assert.Equal(t, 5, result.Score)
}

func TestValidateReview_MissingApproved(t *testing.T) {
	// With no verdict from the model the local rubric decides.
	result := validateReview(map[string]interface{}{}, "好呀")
	assert.True(t, result.Approved)
	assert.Equal(t, 7, result.Score)

	result = validateReview(map[string]interface{}{}, "首先我们来分析一下")
	assert.False(t, result.Approved)
	assert.Equal(t, 5, result.Score)
}

func TestValidateReview_FieldExtraction(t *testing.T) {
	result := validateReview(map[string]interface{}{
		"approved":   false,
		"score":      float64(3),
		"issues":     []interface{}{"太长了", "太书面了"},
		"suggestion": "短一点",
		"reasoning":  "不像日常聊天",
	}, "好呀")

	assert.False(t, result.Approved)
	assert.Equal(t, 3, result.Score)
	assert.Equal(t, []string{"太长了", "太书面了"}, result.Issues)
	assert.Equal(t, "短一点", result.Suggestion)
	assert.Equal(t, "不像日常聊天", result.Reasoning)
}

func TestReviewResult_Feedback(t *testing.T) {
	result := &ReviewResult{
		Issues:     []string{"太长了", "太书面了"},
		Suggestion: "短一点",
	}
	assert.Equal(t, "太长了；太书面了。短一点", result.Feedback())

	// A rejection with no details still produces an instruction.
	empty := &ReviewResult{}
	assert.NotEmpty(t, empty.Feedback())
}

func TestReviewer_DeadCallUsesLocalRubric(t *testing.T) {
	provider := &stubProvider{}
	provider.onMessages = func(messages []llm.Message) (string, error) {
		return "", errors.New("model unavailable")
	}
	r := newReviewer(provider)

	result := r.Review(context.Background(), "在吗", "好呀，想我了吗")
	require.NotNil(t, result)

	assert.True(t, result.Approved)
	assert.Equal(t, 7, result.Score)
}

func TestReviewer_UnparseableReplyRetriesThenLocal(t *testing.T) {
	provider := &stubProvider{reply: "这不是 JSON"}
	r := newReviewer(provider)

	result := r.Review(context.Background(), "在吗", "好呀")

	// Two corrective retries after the first attempt, then the rubric.
	assert.Equal(t, 3, provider.callCount())
	assert.True(t, result.Approved)
}
