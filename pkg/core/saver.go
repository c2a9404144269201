package core

import (
	"context"
	"fmt"
	"log"

	"github.com/warmheart-ai/companion-go/pkg/embedder"
	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/memory"
	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// maxSaveActions bounds how many extracted facts one turn may persist.
const maxSaveActions = 3

// SaveAction is one fact extraction proposed by the post-turn save pass.
//
// The variants form a closed set dispatched by type switch; unknown action
// types from the model are dropped at parse time.
type SaveAction interface {
	saveAction()
}

// ProfileUpdate records a user profile field.
type ProfileUpdate struct {
	Field string
	Value string
}

// PreferenceUpdate records a like or dislike, keyed by topic.
type PreferenceUpdate struct {
	Topic string
	Value string
}

// LifeEventAction records a life event.
type LifeEventAction struct {
	EventType   string
	Title       string
	Description string
	Importance  int
}

// EmotionAction records an observed emotion.
type EmotionAction struct {
	EmotionType string
	Intensity   float64
	Trigger     string
}

// FollowUpAction records an item to follow up on in later turns.
type FollowUpAction struct {
	Item string
}

func (ProfileUpdate) saveAction()    {}
func (PreferenceUpdate) saveAction() {}
func (LifeEventAction) saveAction()  {}
func (EmotionAction) saveAction()    {}
func (FollowUpAction) saveAction()   {}

// saver runs the best-effort post-turn extraction pass: it asks the model
// what the completed exchange revealed, then applies each proposed action
// independently, continuing past individual failures.
type saver struct {
	provider llm.Provider
	embed    embedder.Provider
}

func newSaver(provider llm.Provider, embed embedder.Provider) *saver {
	return &saver{provider: provider, embed: embed}
}

// Extract proposes save actions from a completed exchange. A dead or
// unparseable model call yields no actions; extraction never fails a turn.
func (s *saver) Extract(ctx context.Context, userMessage, aiResponse string) []SaveAction {
	conversation := fmt.Sprintf("用户: %s\n\n小虹: %s", userMessage, aiResponse)

	parsed, err := llm.GenerateJSON(ctx, s.provider, []llm.Message{
		{Role: "system", Content: savePrompt},
		{Role: "user", Content: conversation},
	}, 2, llm.WithTemperature(0.3))
	if err != nil {
		log.Printf("save extraction failed: %v", err)
		return nil
	}

	raw, ok := parsed["save_actions"].([]interface{})
	if !ok {
		return nil
	}

	var actions []SaveAction
	for _, entry := range raw {
		if len(actions) >= maxSaveActions {
			break
		}
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		if action := parseSaveAction(fields); action != nil {
			actions = append(actions, action)
		}
	}
	return actions
}

func parseSaveAction(fields map[string]interface{}) SaveAction {
	getString := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}

	switch getString("type") {
	case "user_profile":
		field, value := getString("field"), getString("value")
		if field == "" || value == "" {
			return nil
		}
		return ProfileUpdate{Field: field, Value: value}

	case "preference":
		topic, value := getString("topic"), getString("value")
		if topic == "" || value == "" {
			return nil
		}
		return PreferenceUpdate{Topic: topic, Value: value}

	case "life_event":
		title := getString("title")
		if title == "" {
			return nil
		}
		eventType := getString("event_type")
		if eventType == "" {
			eventType = "life"
		}
		importance := 3
		if v, ok := fields["importance"].(float64); ok {
			importance = int(v)
		}
		return LifeEventAction{
			EventType:   eventType,
			Title:       title,
			Description: getString("description"),
			Importance:  importance,
		}

	case "emotion":
		emotionType := getString("emotion_type")
		if emotionType == "" {
			return nil
		}
		intensity := 0.5
		if v, ok := fields["intensity"].(float64); ok {
			intensity = v
		}
		return EmotionAction{
			EmotionType: emotionType,
			Intensity:   intensity,
			Trigger:     getString("trigger"),
		}

	case "follow_up":
		item := getString("item")
		if item == "" {
			return nil
		}
		return FollowUpAction{Item: item}
	}
	return nil
}

// Apply executes save actions against the user's memory. Each action is
// applied independently; a failure is logged and the rest still run.
// Returns how many actions succeeded.
func (s *saver) Apply(ctx context.Context, mgr *memory.Manager, actions []SaveAction) int {
	applied := 0
	for _, action := range actions {
		if err := s.applyOne(ctx, mgr, action); err != nil {
			log.Printf("save action failed: %v", err)
			continue
		}
		applied++
	}
	return applied
}

func (s *saver) applyOne(ctx context.Context, mgr *memory.Manager, action SaveAction) error {
	switch a := action.(type) {
	case ProfileUpdate:
		mgr.Summary.SetProfileField(a.Field, a.Value)
		return nil

	case PreferenceUpdate:
		mgr.Summary.SetPreference(a.Topic, a.Value)
		return nil

	case LifeEventAction:
		event := &storage.LifeEvent{
			UserID:      mgr.UserID(),
			EventType:   a.EventType,
			Title:       a.Title,
			Description: a.Description,
			Importance:  a.Importance,
		}
		// A title embedding stored now saves recomputation on every
		// semantic retrieval later. Embedding failure is not fatal.
		if s.embed != nil {
			if vec, err := s.embed.Embed(ctx, a.Title); err == nil {
				event.Embedding = vec
			} else {
				log.Printf("event embedding failed for %q: %v", a.Title, err)
			}
		}
		if err := mgr.Store().AppendLifeEvent(ctx, event); err != nil {
			return err
		}
		mgr.Summary.AddRecentEvent(a.Title)
		return nil

	case EmotionAction:
		mgr.Summary.UpdateEmotion(a.EmotionType, a.Intensity)
		return mgr.Store().AppendEmotionRecord(ctx, &storage.EmotionRecord{
			UserID:      mgr.UserID(),
			EmotionType: a.EmotionType,
			Intensity:   a.Intensity,
			Trigger:     a.Trigger,
		})

	case FollowUpAction:
		mgr.Summary.AddFollowUp(a.Item)
		return nil
	}
	return fmt.Errorf("unknown save action %T", action)
}
