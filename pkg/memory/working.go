// Package memory implements the layered memory model of a companion session:
// an always-resident working summary, a short-term FIFO window of recent
// turns, and a retrieval assembler over the durable store.
package memory

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Caps for the bounded lists held by the working summary. Eviction is
// oldest-first; insertion order is preserved among survivors.
const (
	MaxRecentEvents   = 10
	MaxEmotionHistory = 20
	MaxFollowUps      = 5

	// MaxTrustLevel is the ceiling trust can reach.
	MaxTrustLevel = 0.95
)

// EmotionState is one emotion observation held in the working summary.
type EmotionState struct {
	Type      string    `json:"type"`
	Intensity float64   `json:"intensity"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// WorkingSummary is the always-resident per-user state merged into every
// prompt. One instance exists per user session; it is mutated only by that
// session's orchestrator and periodically flushed to the durable store.
type WorkingSummary struct {
	UserName         string            `json:"user_name,omitempty"`
	ProfileFields    map[string]string `json:"profile_fields,omitempty"`
	Preferences      map[string]string `json:"preferences,omitempty"`
	CurrentEmotion   *EmotionState     `json:"current_emotion,omitempty"`
	EmotionHistory   []EmotionState    `json:"emotion_history,omitempty"`
	RecentEvents     []string          `json:"recent_events,omitempty"`
	FollowUps        []string          `json:"follow_ups,omitempty"`
	TrustLevel       float64           `json:"trust_level"`
	InteractionCount int               `json:"interaction_count"`
}

// NewWorkingSummary returns a summary with the baseline trust level.
func NewWorkingSummary() *WorkingSummary {
	return &WorkingSummary{
		ProfileFields: make(map[string]string),
		Preferences:   make(map[string]string),
		TrustLevel:    0.5,
	}
}

// SetProfileField records a profile fact about the user. The "name" field
// also updates UserName.
func (w *WorkingSummary) SetProfileField(key, value string) {
	if w.ProfileFields == nil {
		w.ProfileFields = make(map[string]string)
	}
	w.ProfileFields[key] = value
	if key == "name" {
		w.UserName = value
	}
}

// SetPreference records a like or dislike, keyed by topic. A later value for
// the same topic overwrites the earlier one.
func (w *WorkingSummary) SetPreference(topic, value string) {
	if w.Preferences == nil {
		w.Preferences = make(map[string]string)
	}
	w.Preferences[topic] = value
}

// UpdateEmotion replaces the current emotion, pushing the previous one onto
// the bounded history first.
func (w *WorkingSummary) UpdateEmotion(emotionType string, intensity float64) {
	if w.CurrentEmotion != nil {
		prev := *w.CurrentEmotion
		prev.Timestamp = time.Now()
		w.EmotionHistory = append(w.EmotionHistory, prev)
		if len(w.EmotionHistory) > MaxEmotionHistory {
			w.EmotionHistory = w.EmotionHistory[len(w.EmotionHistory)-MaxEmotionHistory:]
		}
	}
	w.CurrentEmotion = &EmotionState{Type: emotionType, Intensity: intensity}
}

// AddRecentEvent appends an event description, deduplicated by exact text.
func (w *WorkingSummary) AddRecentEvent(event string) {
	for _, e := range w.RecentEvents {
		if e == event {
			return
		}
	}
	w.RecentEvents = append(w.RecentEvents, event)
	if len(w.RecentEvents) > MaxRecentEvents {
		w.RecentEvents = w.RecentEvents[len(w.RecentEvents)-MaxRecentEvents:]
	}
}

// AddFollowUp appends a follow-up item, deduplicated by exact text.
func (w *WorkingSummary) AddFollowUp(item string) {
	for _, f := range w.FollowUps {
		if f == item {
			return
		}
	}
	w.FollowUps = append(w.FollowUps, item)
	if len(w.FollowUps) > MaxFollowUps {
		w.FollowUps = w.FollowUps[len(w.FollowUps)-MaxFollowUps:]
	}
}

// RemoveFollowUp drops a follow-up item by exact text.
func (w *WorkingSummary) RemoveFollowUp(item string) {
	for i, f := range w.FollowUps {
		if f == item {
			w.FollowUps = append(w.FollowUps[:i], w.FollowUps[i+1:]...)
			return
		}
	}
}

// IncrementInteraction bumps the interaction counter and grows trust by 0.01
// up to the ceiling. Trust never decreases.
func (w *WorkingSummary) IncrementInteraction() {
	w.InteractionCount++
	if w.TrustLevel < MaxTrustLevel {
		w.TrustLevel += 0.01
		if w.TrustLevel > MaxTrustLevel {
			w.TrustLevel = MaxTrustLevel
		}
	}
}

// FormatForPrompt renders the summary's core facts for prompt injection.
//
// Only the user name, preferences, current emotion, and open follow-ups are
// emitted. History, events, and counters stay out of the prompt and are
// reached through retrieval instead. Returns "" when nothing is known.
func (w *WorkingSummary) FormatForPrompt() string {
	var parts []string

	if w.UserName != "" {
		parts = append(parts, fmt.Sprintf("**用户名称**：%s", w.UserName))
	}

	if len(w.Preferences) > 0 {
		topics := make([]string, 0, len(w.Preferences))
		for topic := range w.Preferences {
			topics = append(topics, topic)
		}
		sort.Strings(topics)
		pairs := make([]string, 0, len(topics))
		for _, topic := range topics {
			pairs = append(pairs, fmt.Sprintf("%s: %s", topic, w.Preferences[topic]))
		}
		parts = append(parts, fmt.Sprintf("**用户偏好**：%s", strings.Join(pairs, "，")))
	}

	if w.CurrentEmotion != nil {
		desc := "强烈"
		switch {
		case w.CurrentEmotion.Intensity < 0.4:
			desc = "轻微"
		case w.CurrentEmotion.Intensity < 0.7:
			desc = "中等"
		}
		parts = append(parts, fmt.Sprintf("**当前情感**：%s（%s）", w.CurrentEmotion.Type, desc))
	}

	if len(w.FollowUps) > 0 {
		parts = append(parts, fmt.Sprintf("**待跟进**：%s", strings.Join(w.FollowUps, ", ")))
	}

	return strings.Join(parts, "\n")
}

// Marshal serializes the summary for durable storage.
func (w *WorkingSummary) Marshal() ([]byte, error) {
	return json.Marshal(w)
}

// UnmarshalWorkingSummary restores a summary from its stored form.
func UnmarshalWorkingSummary(data []byte) (*WorkingSummary, error) {
	var w WorkingSummary
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("failed to parse working summary: %w", err)
	}
	if w.ProfileFields == nil {
		w.ProfileFields = make(map[string]string)
	}
	if w.Preferences == nil {
		w.Preferences = make(map[string]string)
	}
	if w.TrustLevel == 0 {
		w.TrustLevel = 0.5
	}
	return &w, nil
}
