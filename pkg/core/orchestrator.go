package core

import (
	"context"
	"log"
	"strings"
	"sync"

	"github.com/warmheart-ai/companion-go/pkg/tools"
)

// fanOutWorkers bounds the concurrency of the pre-draft fan-out.
const fanOutWorkers = 3

// runFanOut runs the read-only preprocessing branches concurrently: emotion
// classification, memory retrieval, and the local tool pre-pass. All
// branches complete (or fail) before drafting starts; a failed branch
// contributes an empty result instead of aborting the turn.
func (s *Session) runFanOut(ctx context.Context, state *TurnState) {
	var (
		wg        sync.WaitGroup
		sem       = make(chan struct{}, fanOutWorkers)
		retrieved string
		toolInfo  string
	)

	run := func(task func()) {
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			task()
		}()
	}

	run(func() {
		if result := s.analyzer.Analyze(ctx, state.UserInput); result != nil {
			state.EmotionType = result.EmotionType
			state.EmotionIntensity = result.Intensity
		}
	})

	run(func() {
		retrieved = s.assembler.Assemble(ctx, state.UserInput, "")
	})

	run(func() {
		toolInfo = localToolPrePass(state.UserInput)
	})

	wg.Wait()

	if state.EmotionType != "" {
		s.manager.Summary.UpdateEmotion(state.EmotionType, state.EmotionIntensity)
	}

	state.MemoryContext = mergeContextSections(
		s.manager.Summary.FormatForPrompt(),
		retrieved,
		toolInfo,
	)
}

// localToolPrePass answers time and date questions before drafting, so the
// draft prompt already carries the facts and the model rarely needs a tool
// round-trip. Weather needs a city argument and is reached through the
// model's get_weather tool call instead.
func localToolPrePass(text string) string {
	var parts []string

	if containsAny(text, "几点", "时间", "几号", "星期", "今天是") {
		parts = append(parts, "当前时间："+tools.Now().Formatted)
	}

	return strings.Join(parts, "\n")
}

func containsAny(text string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(text, sub) {
			return true
		}
	}
	return false
}

// mergeContextSections joins non-empty context sections, dropping empties
// silently.
func mergeContextSections(sections ...string) string {
	var kept []string
	for _, section := range sections {
		if section != "" {
			kept = append(kept, section)
		}
	}
	return strings.Join(kept, "\n\n")
}

// draftLoop runs the draft and review states with the bounded rewrite
// budget. It terminates in at most maxRewrites+1 draft attempts: the budget
// exhausting finalizes the latest draft even when still rejected.
func (s *Session) draftLoop(ctx context.Context, state *TurnState) {
	content, toolCalls, err := s.drafter.Generate(ctx, state, s.manager.Summary.ProfileFields)
	if err != nil {
		log.Printf("draft failed for user %s: %v", s.userID, err)
		state.Final = fallbackResponse
		return
	}
	state.Draft = content
	state.ToolCalls = toolCalls

	for {
		review := s.reviewer.Review(ctx, state.UserInput, state.Draft)
		state.ReviewApproved = review.Approved
		if state.ReviewApproved {
			break
		}
		if state.RewriteCount >= s.maxRewrites {
			break
		}

		state.ReviewFeedback = review.Feedback()
		state.RewriteCount++

		rewritten, err := s.drafter.Rewrite(ctx, state, s.manager.Summary.ProfileFields)
		if err != nil {
			log.Printf("rewrite %d failed for user %s: %v", state.RewriteCount, s.userID, err)
			break
		}
		state.Draft = rewritten
	}

	state.Final = state.Draft
}

// persist appends the turn's messages, runs the extraction pass, and
// flushes the working summary. Failures are logged only; the response has
// already been finalized.
func (s *Session) persist(ctx context.Context, state *TurnState) {
	if err := s.manager.SaveMessage(ctx, "user", state.UserInput, state.EmotionType, state.EmotionIntensity); err != nil {
		log.Printf("user message persist failed for user %s: %v", s.userID, err)
	}
	if err := s.manager.SaveMessage(ctx, "assistant", state.Final, "", 0); err != nil {
		log.Printf("assistant message persist failed for user %s: %v", s.userID, err)
	}

	actions := s.saver.Extract(ctx, state.UserInput, state.Final)
	s.saver.Apply(ctx, s.manager, actions)

	if err := s.manager.Flush(ctx); err != nil {
		log.Printf("summary flush failed for user %s: %v", s.userID, err)
	}
}
