package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/tools"
)

// Draft generation parameters.
const (
	draftTemperature = 0.7
	draftMaxTokens   = 500

	// maxHistoryTurns bounds how much of the short-term window reaches the
	// draft prompt.
	maxHistoryTurns = 10
)

// fallbackResponse is returned when draft generation itself fails. Every
// other step degrades silently, but a dead generation call has nothing to
// degrade to.
const fallbackResponse = "呜，我这边好像卡了一下...你刚说的我都听到啦，再跟我说说嘛？"

// drafter generates and rewrites responses, invoking realtime tools when
// the model requests them.
type drafter struct {
	provider llm.Provider
	weather  *tools.WeatherService
}

func newDrafter(provider llm.Provider) *drafter {
	return &drafter{
		provider: provider,
		weather:  tools.NewWeatherService(),
	}
}

// toolSchemas describes the realtime tools exposed to the model.
func toolSchemas() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        "get_current_datetime",
			Description: "获取当前的日期、时间、星期和时间段",
			Parameters: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "get_weather",
			Description: "获取指定城市的实时天气",
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"city": map[string]interface{}{
						"type":        "string",
						"description": "城市名称，例如 深圳、北京",
					},
				},
			},
		},
	}
}

// buildMessages assembles the provider messages for a draft: persona system
// prompt, bounded chat history, then the user input.
func (d *drafter) buildMessages(state *TurnState, profileFields map[string]string) []llm.Message {
	systemPrompt := buildDraftPrompt(state.EmotionType, state.EmotionIntensity, state.MemoryContext, profileFields)

	messages := []llm.Message{{Role: "system", Content: systemPrompt}}

	history := state.ChatHistory
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	messages = append(messages, history...)

	return append(messages, llm.Message{Role: "user", Content: state.UserInput})
}

// Generate produces a fresh draft, running at most one round of tool calls.
//
// Returns the draft content, the tool calls made (nil when none), and an
// error only when the generation call itself failed.
func (d *drafter) Generate(ctx context.Context, state *TurnState, profileFields map[string]string) (string, []llm.ToolCall, error) {
	messages := d.buildMessages(state, profileFields)

	resp, err := d.provider.GenerateWithTools(ctx, messages, toolSchemas(),
		llm.WithTemperature(draftTemperature), llm.WithMaxTokens(draftMaxTokens))
	if err != nil {
		return "", nil, fmt.Errorf("draft generation failed: %w", err)
	}

	if len(resp.ToolCalls) == 0 {
		return resp.Content, nil, nil
	}

	messages = d.appendToolResults(messages, resp.ToolCalls)

	final, err := d.provider.GenerateWithTools(ctx, messages, toolSchemas(),
		llm.WithTemperature(draftTemperature), llm.WithMaxTokens(draftMaxTokens))
	if err != nil {
		return "", resp.ToolCalls, fmt.Errorf("draft generation failed after tools: %w", err)
	}
	return final.Content, resp.ToolCalls, nil
}

// Rewrite redoes a rejected draft using the reviewer's feedback.
func (d *drafter) Rewrite(ctx context.Context, state *TurnState, profileFields map[string]string) (string, error) {
	messages := d.buildMessages(state, profileFields)
	messages = append(messages,
		llm.Message{Role: "assistant", Content: state.Draft},
		llm.Message{Role: "user", Content: fmt.Sprintf(rewriteInstruction, state.ReviewFeedback)},
	)

	content, err := d.provider.GenerateWithMessages(ctx, messages,
		llm.WithTemperature(draftTemperature), llm.WithMaxTokens(draftMaxTokens))
	if err != nil {
		return "", fmt.Errorf("rewrite failed: %w", err)
	}
	return content, nil
}

// appendToolResults executes each requested tool and appends the assistant
// tool-call message plus one tool-role result message per call.
//
// Tool failures become textual failure notes in the conversation rather
// than errors.
func (d *drafter) appendToolResults(messages []llm.Message, calls []llm.ToolCall) []llm.Message {
	messages = append(messages, llm.Message{Role: "assistant", ToolCalls: calls})

	for _, call := range calls {
		result := d.executeTool(call)
		messages = append(messages, llm.Message{
			Role:       "tool",
			ToolCallID: call.ID,
			Content:    result,
		})
	}
	return messages
}

// executeTool dispatches one tool call by name.
func (d *drafter) executeTool(call llm.ToolCall) string {
	switch call.Name {
	case "get_current_datetime":
		return tools.Now().Formatted

	case "get_weather":
		var args struct {
			City string `json:"city"`
		}
		if call.Arguments != "" {
			if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
				log.Printf("bad get_weather arguments %q: %v", call.Arguments, err)
			}
		}
		return d.weather.Weather(args.City).Formatted

	default:
		log.Printf("model requested unknown tool %q", call.Name)
		return fmt.Sprintf("未找到工具: %s", call.Name)
	}
}
