package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// correctivePrompt is appended when the model returns something that does not
// parse as a JSON object, asking it to answer again with JSON only.
const correctivePrompt = "请只返回有效的 JSON 格式，不要包含其他文字。"

var codeBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// GenerateJSON asks the provider for a JSON object and parses the reply.
//
// The model reply is cleaned before parsing: a fenced code block is unwrapped
// if present, otherwise the substring between the first '{' and the last '}'
// is extracted. If parsing fails, the bad reply and a corrective instruction
// are appended to the conversation and the call is retried, at most maxRetries
// additional times.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - provider: The LLM provider to call
//   - messages: Conversation to send (not mutated; retries extend a copy)
//   - maxRetries: Number of corrective retries after the first attempt
//   - opts: Optional generation parameters
//
// Returns the parsed object, or an error when every attempt failed.
func GenerateJSON(ctx context.Context, provider Provider, messages []Message, maxRetries int, opts ...GenerateOption) (map[string]interface{}, error) {
	conv := make([]Message, len(messages))
	copy(conv, messages)

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		content, err := provider.GenerateWithMessages(ctx, conv, opts...)
		if err != nil {
			return nil, err
		}

		result, err := ParseJSONObject(content)
		if err == nil {
			return result, nil
		}
		lastErr = err

		conv = append(conv,
			Message{Role: "assistant", Content: content},
			Message{Role: "user", Content: correctivePrompt},
		)
	}
	return nil, fmt.Errorf("failed to parse JSON response after %d attempts: %w", maxRetries+1, lastErr)
}

// ParseJSONObject extracts and parses a JSON object from model output.
//
// Handles replies wrapped in markdown code fences and replies with leading or
// trailing prose around the object.
func ParseJSONObject(content string) (map[string]interface{}, error) {
	text := strings.TrimSpace(content)

	if m := codeBlockRe.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(text), &result); err == nil {
		return result, nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(text[start:end+1]), &result); err == nil {
			return result, nil
		}
	}
	return nil, fmt.Errorf("no valid JSON object in response")
}
