package core

import (
	"context"
	"sync"

	"github.com/warmheart-ai/companion-go/pkg/emotion"
	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/memory"
)

// Session is one user's isolated conversation runtime: their working
// summary, short-term window, retrieval assembler, and the turn state
// machine that drives each exchange.
//
// A Session serializes nothing internally; callers must not run concurrent
// turns for the same user. Sessions for different users are independent.
type Session struct {
	userID string

	manager   *memory.Manager
	assembler *memory.Assembler
	analyzer  *emotion.Analyzer
	drafter   *drafter
	reviewer  *reviewer
	saver     *saver

	maxRewrites int

	// bg tracks background persistence tasks spawned by streaming turns.
	bg sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// Chat runs one synchronous conversation turn.
//
// The turn always completes with some response: classification, retrieval,
// review, and persistence failures degrade rather than propagate, and only
// a dead draft generation surfaces as the apologetic fallback text.
func (s *Session) Chat(ctx context.Context, text string) (*TurnResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, NewAgentError("Chat", ErrSessionClosed)
	}
	s.mu.Unlock()

	if text == "" {
		return nil, NewAgentError("Chat", ErrInvalidInput)
	}

	state := s.newTurnState(text)
	s.runFanOut(ctx, state)
	s.draftLoop(ctx, state)
	s.persist(ctx, state)

	return &TurnResult{
		Content:          state.Final,
		EmotionType:      state.EmotionType,
		EmotionIntensity: state.EmotionIntensity,
		RewriteCount:     state.RewriteCount,
		ToolCalls:        state.ToolCalls,
	}, nil
}

// newTurnState snapshots the short-term window into a fresh turn state and
// bumps the interaction counter.
func (s *Session) newTurnState(text string) *TurnState {
	s.manager.Summary.IncrementInteraction()

	turns := s.manager.Window.Turns()
	history := make([]llm.Message, len(turns))
	for i, turn := range turns {
		history[i] = llm.Message{Role: turn.Role, Content: turn.Content}
	}

	return &TurnState{
		UserInput:   text,
		ChatHistory: history,
	}
}

// UserID returns the owning user id.
func (s *Session) UserID() string {
	return s.userID
}

// Summary exposes the session's working summary.
func (s *Session) Summary() *memory.WorkingSummary {
	return s.manager.Summary
}

// Wait blocks until all background persistence tasks spawned by streaming
// turns have finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Close waits for background work, flushes the working summary, and ends
// the session. Subsequent turns fail with ErrSessionClosed.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.bg.Wait()
	return NewAgentError("Close", s.manager.Close(ctx))
}
