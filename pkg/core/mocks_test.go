package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// stubProvider is a scripted llm.Provider for tests. Each Generate* method
// can be overridden; unset methods return a fixed reply.
type stubProvider struct {
	mu    sync.Mutex
	calls int

	reply string

	onMessages func(messages []llm.Message) (string, error)
	onTools    func(messages []llm.Message) (*llm.Response, error)
	onStream   func(messages []llm.Message) (<-chan llm.StreamChunk, error)
}

func (p *stubProvider) bump() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.calls
}

func (p *stubProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *stubProvider) Generate(ctx context.Context, prompt string, opts ...llm.GenerateOption) (string, error) {
	return p.GenerateWithMessages(ctx, []llm.Message{{Role: "user", Content: prompt}}, opts...)
}

func (p *stubProvider) GenerateWithMessages(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (string, error) {
	p.bump()
	if p.onMessages != nil {
		return p.onMessages(messages)
	}
	return p.reply, nil
}

func (p *stubProvider) GenerateWithTools(ctx context.Context, messages []llm.Message, tools []llm.ToolSchema, opts ...llm.GenerateOption) (*llm.Response, error) {
	p.bump()
	if p.onTools != nil {
		return p.onTools(messages)
	}
	return &llm.Response{Content: p.reply}, nil
}

func (p *stubProvider) GenerateStream(ctx context.Context, messages []llm.Message, opts ...llm.GenerateOption) (<-chan llm.StreamChunk, error) {
	p.bump()
	if p.onStream != nil {
		return p.onStream(messages)
	}
	out := make(chan llm.StreamChunk, 2)
	out <- llm.StreamChunk{Content: p.reply}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out, nil
}

func (p *stubProvider) Close() error { return nil }

// streamOf builds a closed chunk channel from parts followed by Done.
func streamOf(parts ...string) <-chan llm.StreamChunk {
	out := make(chan llm.StreamChunk, len(parts)+1)
	for _, part := range parts {
		out <- llm.StreamChunk{Content: part}
	}
	out <- llm.StreamChunk{Done: true}
	close(out)
	return out
}

// stubStore is an in-memory storage.Store with error and latency injection.
type stubStore struct {
	mu sync.Mutex

	messages []*storage.Message
	events   []*storage.LifeEvent
	emotions []*storage.EmotionRecord
	summary  []byte

	appendEventErr error
	writeDelay     time.Duration
}

func (f *stubStore) delay() {
	if f.writeDelay > 0 {
		time.Sleep(f.writeDelay)
	}
}

func (f *stubStore) AppendMessage(ctx context.Context, msg *storage.Message) error {
	f.delay()
	f.mu.Lock()
	defer f.mu.Unlock()
	msg.ID = fmt.Sprintf("%d", len(f.messages)+1)
	f.messages = append(f.messages, msg)
	return nil
}

func (f *stubStore) AppendEmotionRecord(ctx context.Context, rec *storage.EmotionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emotions = append(f.emotions, rec)
	return nil
}

func (f *stubStore) AppendLifeEvent(ctx context.Context, event *storage.LifeEvent) error {
	if f.appendEventErr != nil {
		return f.appendEventErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
	return nil
}

func (f *stubStore) GetRecentMessages(ctx context.Context, userID string, limit int) ([]*storage.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*storage.Message
	for i := len(f.messages) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.messages[i])
	}
	return out, nil
}

func (f *stubStore) SearchMessagesByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.Message, error) {
	return nil, nil
}

func (f *stubStore) SearchLifeEventsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.LifeEvent, error) {
	return nil, nil
}

func (f *stubStore) SearchEmotionsByKeyword(ctx context.Context, userID, query string, limit int) ([]*storage.EmotionRecord, error) {
	return nil, nil
}

func (f *stubStore) GetLifeEvents(ctx context.Context, userID string, limit int) ([]*storage.LifeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*storage.LifeEvent, len(f.events))
	copy(out, f.events)
	return out, nil
}

func (f *stubStore) GetEmotionHistory(ctx context.Context, userID string, limit int) ([]*storage.EmotionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*storage.EmotionRecord, len(f.emotions))
	copy(out, f.emotions)
	return out, nil
}

func (f *stubStore) GetWorkingSummary(ctx context.Context, userID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.summary, nil
}

func (f *stubStore) PutWorkingSummary(ctx context.Context, userID string, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summary = content
	return nil
}

func (f *stubStore) CreateSession(ctx context.Context, userID string) (string, error) {
	return "session-1", nil
}

func (f *stubStore) EndSession(ctx context.Context, sessionID, summary string) error {
	return nil
}

func (f *stubStore) Close() error { return nil }

func (f *stubStore) messageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.messages)
}
