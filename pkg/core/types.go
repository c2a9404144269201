package core

import "github.com/warmheart-ai/companion-go/pkg/llm"

// TurnState is the ephemeral state threaded through one conversation turn's
// state machine. It is created at turn start, owned by the orchestrator, and
// discarded at turn end; it is never shared across turns or users.
type TurnState struct {
	// UserInput is the user's message for this turn.
	UserInput string

	// ChatHistory is the short-term window formatted as provider messages.
	ChatHistory []llm.Message

	// EmotionType and EmotionIntensity hold the classification result, when
	// one was produced.
	EmotionType      string
	EmotionIntensity float64

	// MemoryContext is the merged context block: working summary text,
	// retrieved history, and tool results, each section separated.
	MemoryContext string

	// Draft is the current draft response.
	Draft string

	// ReviewApproved and ReviewFeedback carry the latest quality verdict.
	ReviewApproved bool
	ReviewFeedback string

	// RewriteCount is how many review-driven rewrites have run.
	RewriteCount int

	// Final is the response handed back to the caller.
	Final string

	// ToolCalls lists the tools invoked while drafting.
	ToolCalls []llm.ToolCall
}

// TurnResult is what a completed turn returns to the caller.
type TurnResult struct {
	// Content is the final response text.
	Content string `json:"content"`

	// EmotionType is the detected emotion, empty when no signal.
	EmotionType string `json:"emotion_type,omitempty"`

	// EmotionIntensity is the detected emotion strength.
	EmotionIntensity float64 `json:"emotion_intensity,omitempty"`

	// RewriteCount is how many times the draft was rewritten.
	RewriteCount int `json:"rewrite_count"`

	// ToolCalls lists the tools invoked while drafting.
	ToolCalls []llm.ToolCall `json:"tool_calls,omitempty"`
}
