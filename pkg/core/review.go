package core

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/warmheart-ai/companion-go/pkg/llm"
)

// ReviewResult is the quality gate's verdict on a draft.
type ReviewResult struct {
	Approved   bool
	Score      int
	Issues     []string
	Suggestion string
	Reasoning  string
}

// forbiddenPatterns are structural bans: any occurrence rejects the draft
// in the local rubric check.
var forbiddenPatterns = []string{
	"1.", "2.", "3.",
	"• ", "- ",
	"首先", "其次", "最后",
	"比如：", "例如：",
}

// maxResponseRunes is the local rubric's length bound.
const maxResponseRunes = 200

// reviewer runs the quality gate: a model review validated and corrected by
// a local rubric.
type reviewer struct {
	provider llm.Provider
}

func newReviewer(provider llm.Provider) *reviewer {
	return &reviewer{provider: provider}
}

// Review evaluates a draft against the persona rubric.
//
// Missing fields in the model's structured output are filled from the local
// rubric; a score below 6 forces rejection regardless of the model's claim.
// A dead review call falls back entirely to the local rubric so the turn
// never blocks on review.
func (r *reviewer) Review(ctx context.Context, userMessage, draft string) *ReviewResult {
	content := fmt.Sprintf("## 用户消息\n%s\n\n## AI 回复\n%s\n\n请评审这个回复是否符合\"小虹\"的人设和质量要求。", userMessage, draft)

	parsed, err := llm.GenerateJSON(ctx, r.provider, []llm.Message{
		{Role: "system", Content: reviewPrompt},
		{Role: "user", Content: content},
	}, 2, llm.WithTemperature(0.3))
	if err != nil {
		log.Printf("review call failed, using local rubric: %v", err)
		parsed = map[string]interface{}{}
	}

	return validateReview(parsed, draft)
}

// validateReview fills missing fields from the local rubric and applies the
// score floor.
func validateReview(parsed map[string]interface{}, draft string) *ReviewResult {
	result := &ReviewResult{}

	approved, hasApproved := parsed["approved"].(bool)
	if hasApproved {
		result.Approved = approved
	} else {
		result.Approved = quickCheck(draft)
	}

	if score, ok := parsed["score"].(float64); ok {
		result.Score = int(score)
	} else if result.Approved {
		result.Score = 7
	} else {
		result.Score = 5
	}

	if raw, ok := parsed["issues"].([]interface{}); ok {
		for _, issue := range raw {
			if s, ok := issue.(string); ok {
				result.Issues = append(result.Issues, s)
			}
		}
	}
	result.Suggestion, _ = parsed["suggestion"].(string)
	result.Reasoning, _ = parsed["reasoning"].(string)

	if result.Score < 6 {
		result.Approved = false
	}

	return result
}

// quickCheck applies the structural rubric locally: forbidden list and
// structure markers reject, as does excessive length.
func quickCheck(response string) bool {
	for _, pattern := range forbiddenPatterns {
		if strings.Contains(response, pattern) {
			return false
		}
	}
	return len([]rune(response)) <= maxResponseRunes
}

// Feedback flattens a rejection into the single instruction string handed
// to the rewrite step.
func (r *ReviewResult) Feedback() string {
	var parts []string
	if len(r.Issues) > 0 {
		parts = append(parts, strings.Join(r.Issues, "；"))
	}
	if r.Suggestion != "" {
		parts = append(parts, r.Suggestion)
	}
	if len(parts) == 0 {
		return "回复不符合人设要求，请更口语化、更简短。"
	}
	return strings.Join(parts, "。")
}
