// Package llm provides interfaces and utilities for Large Language Model (LLM) providers.
//
// It defines the Provider interface that all LLM implementations must satisfy,
// along with message types, tool schemas, streaming chunks, and generation options.
package llm

import "context"

// Provider defines the interface for LLM providers.
//
// All LLM implementations (OpenAI-compatible endpoints, DashScope, DeepSeek, etc.)
// must implement this interface.
type Provider interface {
	// Generate generates text from a single prompt.
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateWithMessages generates text from a conversation history.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - messages: Conversation history (system, user, assistant, tool messages)
	//   - opts: Optional generation parameters
	//
	// Returns the generated text and any error.
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)

	// GenerateWithTools generates a response that may contain tool calls.
	//
	// When tool schemas are provided, the model may answer with tool calls
	// instead of (or in addition to) text content.
	GenerateWithTools(ctx context.Context, messages []Message, tools []ToolSchema, opts ...GenerateOption) (*Response, error)

	// GenerateStream generates text incrementally.
	//
	// The returned channel yields content chunks as they are produced. The final
	// chunk has Done set to true; a failed stream yields a chunk with Err set.
	// The channel is always closed after a terminal chunk.
	GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (<-chan StreamChunk, error)

	// Close closes the provider and releases resources.
	Close() error
}

// Message represents a single message in a conversation.
type Message struct {
	// Role is the message role: "system", "user", "assistant", or "tool".
	Role string `json:"role"`

	// Content is the message content text.
	Content string `json:"content"`

	// ToolCallID links a tool-role message to the tool call it answers.
	ToolCallID string `json:"tool_call_id,omitempty"`

	// ToolCalls carries the tool calls issued by an assistant message.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolSchema describes a callable tool exposed to the model.
type ToolSchema struct {
	// Name is the tool's function name.
	Name string `json:"name"`

	// Description tells the model when to invoke the tool.
	Description string `json:"description"`

	// Parameters is a JSON-schema object describing the tool's arguments.
	Parameters map[string]interface{} `json:"parameters,omitempty"`
}

// ToolCall is a single tool invocation requested by the model.
type ToolCall struct {
	// ID is the provider-assigned call identifier.
	ID string `json:"id"`

	// Name is the tool's function name.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object as produced by the model.
	Arguments string `json:"arguments"`
}

// Response is the result of a generation that may include tool calls.
type Response struct {
	// Content is the generated text (may be empty when ToolCalls is set).
	Content string

	// ToolCalls contains the tool calls requested by the model, if any.
	ToolCalls []ToolCall
}

// StreamChunk is a single increment of a streamed generation.
//
// Completion and error are distinct terminal events: a successful stream ends
// with one chunk where Done is true, a failed stream ends with one chunk where
// Err is non-nil. No chunks follow a terminal chunk.
type StreamChunk struct {
	// Content is the incremental text content (may be empty on terminal chunks).
	Content string

	// Done marks the successful end of the stream.
	Done bool

	// Err carries a stream failure.
	Err error
}

// GenerateOptions contains options for text generation.
type GenerateOptions struct {
	// Temperature controls randomness (0.0-2.0). Higher = more random.
	Temperature float64

	// MaxTokens limits the maximum number of tokens in the response.
	MaxTokens int

	// TopP controls nucleus sampling (0.0-1.0). Higher = more diverse.
	TopP float64

	// Stop contains stop sequences that will end generation.
	Stop []string
}

// GenerateOption is a function type for configuring generation options.
type GenerateOption func(*GenerateOptions)

// WithTemperature sets the temperature for text generation.
func WithTemperature(temp float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.Temperature = temp
	}
}

// WithMaxTokens sets the maximum number of tokens in the response.
func WithMaxTokens(max int) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.MaxTokens = max
	}
}

// WithTopP sets the top-p (nucleus sampling) parameter.
func WithTopP(topP float64) GenerateOption {
	return func(opts *GenerateOptions) {
		opts.TopP = topP
	}
}

// ApplyGenerateOptions applies a slice of GenerateOption functions to create GenerateOptions.
//
// This is a helper function used internally by LLM implementations.
// Default values: Temperature=0.7, MaxTokens=1000, TopP=1.0.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.7,
		MaxTokens:   1000,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
