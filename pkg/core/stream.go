package core

import (
	"context"
	"fmt"
	"log"

	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// ChatStream runs one conversation turn, streaming the response as it is
// generated.
//
// The pre-draft fan-out runs exactly as in Chat. The draft is checked for
// tool calls with a buffered (non-streaming) call first, so no tokens reach
// the caller that a tool round-trip would retract; only the final response
// streams.
//
// The short-term window and working summary are settled before the terminal
// chunk is emitted, so the caller may start the next turn as soon as the
// stream is drained. Only the durable writes run in a background task; use
// Wait to block on outstanding writes.
//
// The returned channel yields content chunks and is closed after a terminal
// chunk (Done on success, Err on failure). Cancelling ctx releases the
// stream even when the caller stops reading; whatever was consumed is still
// persisted.
func (s *Session) ChatStream(ctx context.Context, text string) (<-chan llm.StreamChunk, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, NewAgentError("ChatStream", ErrSessionClosed)
	}
	s.mu.Unlock()

	if text == "" {
		return nil, NewAgentError("ChatStream", ErrInvalidInput)
	}

	state := s.newTurnState(text)
	s.runFanOut(ctx, state)

	messages, toolCalls, err := s.prepareStreamMessages(ctx, state)
	if err != nil {
		log.Printf("stream draft failed for user %s: %v", s.userID, err)
		return s.fallbackStream(ctx, state), nil
	}
	state.ToolCalls = toolCalls

	stream, err := s.drafter.provider.GenerateStream(ctx, messages,
		llm.WithTemperature(draftTemperature), llm.WithMaxTokens(draftMaxTokens))
	if err != nil {
		log.Printf("stream open failed for user %s: %v", s.userID, err)
		return s.fallbackStream(ctx, state), nil
	}

	out := make(chan llm.StreamChunk)
	go func() {
		defer close(out)

		var full []byte
		for chunk := range stream {
			if chunk.Err != nil {
				// The user message is still worth keeping even though the
				// response never finished. Persistence is dispatched before
				// the terminal chunk so Wait after draining covers it.
				state.Final = ""
				s.persistStreamTurn(ctx, state)
				select {
				case out <- chunk:
				case <-ctx.Done():
				}
				return
			}
			if chunk.Done {
				break
			}
			select {
			case out <- chunk:
				full = append(full, chunk.Content...)
			case <-ctx.Done():
				// The caller stopped reading. Keep what it consumed.
				state.Final = string(full)
				s.persistStreamTurn(ctx, state)
				return
			}
		}

		state.Final = string(full)
		s.persistStreamTurn(ctx, state)
		select {
		case out <- llm.StreamChunk{Done: true}:
		case <-ctx.Done():
		}
	}()

	return out, nil
}

// fallbackStream delivers the apologetic fallback as a single-chunk stream
// so the caller contract holds even when drafting failed.
func (s *Session) fallbackStream(ctx context.Context, state *TurnState) <-chan llm.StreamChunk {
	out := make(chan llm.StreamChunk, 2)
	out <- llm.StreamChunk{Content: fallbackResponse}
	out <- llm.StreamChunk{Done: true}
	close(out)

	state.Final = fallbackResponse
	s.persistStreamTurn(ctx, state)
	return out
}

// prepareStreamMessages builds the draft messages and resolves any tool
// calls with a buffered check, returning messages ready to stream.
func (s *Session) prepareStreamMessages(ctx context.Context, state *TurnState) ([]llm.Message, []llm.ToolCall, error) {
	messages := s.drafter.buildMessages(state, s.manager.Summary.ProfileFields)

	resp, err := s.drafter.provider.GenerateWithTools(ctx, messages, toolSchemas(),
		llm.WithTemperature(draftTemperature), llm.WithMaxTokens(draftMaxTokens))
	if err != nil {
		return nil, nil, fmt.Errorf("tool check failed: %w", err)
	}

	if len(resp.ToolCalls) > 0 {
		messages = s.drafter.appendToolResults(messages, resp.ToolCalls)
	}
	return messages, resp.ToolCalls, nil
}

// persistStreamTurn finishes a streamed turn. The window pushes, the
// extraction pass, and the summary snapshot all run on the calling
// goroutine, so the session's in-memory state is settled before the caller
// sees the terminal chunk; the detached task receives only durable writes
// against the concurrency-safe store. Write failures are logged, never
// surfaced, and never retried; the caller has already received the response.
func (s *Session) persistStreamTurn(ctx context.Context, state *TurnState) {
	userMsg := s.manager.StageMessage("user", state.UserInput, state.EmotionType, state.EmotionIntensity)

	var assistantMsg *storage.Message
	if state.Final != "" {
		assistantMsg = s.manager.StageMessage("assistant", state.Final, "", 0)

		actions := s.saver.Extract(ctx, state.UserInput, state.Final)
		s.saver.Apply(ctx, s.manager, actions)
	}

	summaryData, err := s.manager.Summary.Marshal()
	if err != nil {
		log.Printf("summary snapshot failed for user %s: %v", s.userID, err)
	}

	store := s.manager.Store()
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()

		bctx := context.Background()
		if err := store.AppendMessage(bctx, userMsg); err != nil {
			log.Printf("background user message persist failed for user %s: %v", s.userID, err)
		}
		if assistantMsg != nil {
			if err := store.AppendMessage(bctx, assistantMsg); err != nil {
				log.Printf("background assistant message persist failed for user %s: %v", s.userID, err)
			}
		}
		if summaryData != nil {
			if err := store.PutWorkingSummary(bctx, s.userID, summaryData); err != nil {
				log.Printf("background summary flush failed for user %s: %v", s.userID, err)
			}
		}
	}()
}
