package memory

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"

	"github.com/warmheart-ai/companion-go/pkg/embedder"
	"github.com/warmheart-ai/companion-go/pkg/llm"
	"github.com/warmheart-ai/companion-go/pkg/storage"
)

// Retrieval limits.
const (
	maxSearchQueries  = 3
	maxContextLines   = 10
	maxSemanticHits   = 3
	perQueryMsgLimit  = 3
	perQueryFactLimit = 5

	// Minimum cosine similarity for the semantic fallback, per entity.
	eventSimilarityThreshold   = 0.40
	messageSimilarityThreshold = 0.45
)

// contextHeader prefixes a non-empty retrieved block.
const contextHeader = "📚 **相关历史记忆**:"

const retrievalDecisionPrompt = `你是一个记忆检索专家。你的任务是决定是否需要检索历史记忆，以及应该检索什么内容。

## 什么情况需要检索？

- 用户提到之前聊过的话题
- 用户使用代词指代之前的事（"那件事"、"上次说的"）
- 话题涉及用户的个人信息、习惯、经历
- 需要了解用户的情感历史来更好地回应
- 用户问"你还记得吗"之类的问题

## 什么情况不需要检索？

- 简单的问候（"你好"、"在吗"）
- 独立的新话题
- 用户提供了完整的上下文

## 输出格式

请只返回 JSON 格式：

{
  "should_search": true/false,
  "search_queries": ["关键词1", "关键词2"],
  "search_types": ["messages", "events", "emotions"],
  "reasoning": "检索理由"
}

search_queries 最多3个关键词。`

// stopWords are dropped during heuristic keyword extraction.
var stopWords = map[string]struct{}{
	"的": {}, "了": {}, "是": {}, "我": {}, "你": {}, "他": {}, "她": {},
	"它": {}, "们": {}, "这": {}, "那": {}, "吗": {}, "呢": {}, "吧": {},
	"啊": {}, "哦": {}, "呀": {}, "嗯": {}, "好": {}, "在": {}, "有": {},
	"和": {}, "也": {}, "都": {}, "就": {}, "不": {}, "很": {}, "到": {},
	"说": {}, "要": {}, "会": {}, "去": {}, "能": {}, "还": {}, "可以": {},
	"一个": {}, "什么": {}, "怎么": {}, "为什么": {}, "哪": {}, "谁": {}, "最近": {},
}

var tokenSplitRe = regexp.MustCompile(`[，。！？、\s]+`)

// SearchDecision is the model's verdict on whether retrieval is needed.
type SearchDecision struct {
	ShouldSearch  bool
	SearchQueries []string
	SearchTypes   []string
	Reasoning     string
}

// Assembler decides whether a turn needs historical context and builds a
// capped, de-duplicated context block from the durable store.
//
// The provider and embedder are both optional: without a provider the
// decision falls back to keyword heuristics, and without an embedder the
// semantic fallback is skipped.
type Assembler struct {
	store    storage.Store
	provider llm.Provider
	embed    embedder.Provider
	userID   string
}

// NewAssembler creates an Assembler for one user.
func NewAssembler(store storage.Store, provider llm.Provider, embed embedder.Provider, userID string) *Assembler {
	return &Assembler{
		store:    store,
		provider: provider,
		embed:    embed,
		userID:   userID,
	}
}

// Assemble returns the retrieved context block for a turn, or "" when
// nothing relevant is found.
//
// Any single source failure (decision call, search, embedding) contributes
// nothing; Assemble never fails the turn.
func (a *Assembler) Assemble(ctx context.Context, userText string, emotionType string) string {
	decision := a.decide(ctx, userText, emotionType)
	if !decision.ShouldSearch || len(decision.SearchQueries) == 0 {
		return ""
	}

	queries := decision.SearchQueries
	if len(queries) > maxSearchQueries {
		queries = queries[:maxSearchQueries]
	}

	var lines []string
	for _, query := range queries {
		for _, t := range decision.SearchTypes {
			switch storage.Entity(t) {
			case storage.EntityMessages:
				lines = append(lines, a.searchMessages(ctx, query)...)
			case storage.EntityEvents:
				lines = append(lines, a.searchEvents(ctx, query)...)
			case storage.EntityEmotions:
				lines = append(lines, a.searchEmotions(ctx, query)...)
			}
		}
	}

	merged := dedupeLines(lines, maxContextLines)
	if len(merged) == 0 {
		return ""
	}
	return contextHeader + "\n" + strings.Join(merged, "\n")
}

// decide determines whether to search and with which queries. The model is
// consulted when available; otherwise a keyword heuristic runs.
func (a *Assembler) decide(ctx context.Context, userText, emotionType string) SearchDecision {
	if a.provider != nil {
		if d, ok := a.modelDecision(ctx, userText, emotionType); ok {
			return d
		}
	}
	return a.heuristicDecision(userText)
}

func (a *Assembler) modelDecision(ctx context.Context, userText, emotionType string) (SearchDecision, bool) {
	userContent := userText
	if emotionType != "" {
		userContent = fmt.Sprintf("用户当前情绪: %s\n\n%s", emotionType, userText)
	}

	parsed, err := llm.GenerateJSON(ctx, a.provider, []llm.Message{
		{Role: "system", Content: retrievalDecisionPrompt},
		{Role: "user", Content: userContent},
	}, 2, llm.WithTemperature(0.3))
	if err != nil {
		log.Printf("retrieval decision failed, falling back to heuristic: %v", err)
		return SearchDecision{}, false
	}

	decision := SearchDecision{}
	decision.ShouldSearch, _ = parsed["should_search"].(bool)
	decision.Reasoning, _ = parsed["reasoning"].(string)
	if raw, ok := parsed["search_queries"].([]interface{}); ok {
		for _, q := range raw {
			if s, ok := q.(string); ok && s != "" {
				decision.SearchQueries = append(decision.SearchQueries, s)
			}
		}
	}
	if raw, ok := parsed["search_types"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				decision.SearchTypes = append(decision.SearchTypes, s)
			}
		}
	}
	if len(decision.SearchTypes) == 0 {
		decision.SearchTypes = []string{string(storage.EntityMessages)}
	}
	return decision, true
}

func (a *Assembler) heuristicDecision(userText string) SearchDecision {
	keywords := ExtractKeywords(userText)
	if len(keywords) == 0 {
		return SearchDecision{}
	}
	if len(keywords) > maxSearchQueries {
		keywords = keywords[:maxSearchQueries]
	}
	return SearchDecision{
		ShouldSearch:  true,
		SearchQueries: keywords,
		SearchTypes:   []string{string(storage.EntityMessages), string(storage.EntityEvents)},
	}
}

// searchMessages runs keyword search over messages, falling back to
// semantic similarity when the keyword path returns nothing.
func (a *Assembler) searchMessages(ctx context.Context, query string) []string {
	msgs, err := a.store.SearchMessagesByKeyword(ctx, a.userID, query, perQueryMsgLimit)
	if err != nil {
		log.Printf("message search failed for %q: %v", query, err)
		return nil
	}

	if len(msgs) == 0 && a.embed != nil {
		return a.semanticMessages(ctx, query)
	}

	var lines []string
	for _, msg := range msgs {
		lines = append(lines, fmt.Sprintf("[历史对话] %s: %s", msg.Role, truncateRunes(msg.Content, 100)))
	}
	return lines
}

func (a *Assembler) searchEvents(ctx context.Context, query string) []string {
	events, err := a.store.SearchLifeEventsByKeyword(ctx, a.userID, query, perQueryFactLimit)
	if err != nil {
		log.Printf("event search failed for %q: %v", query, err)
		return nil
	}

	if len(events) == 0 && a.embed != nil {
		return a.semanticEvents(ctx, query)
	}

	var lines []string
	for _, event := range events {
		lines = append(lines, formatEventLine(event))
	}
	return lines
}

func (a *Assembler) searchEmotions(ctx context.Context, query string) []string {
	records, err := a.store.SearchEmotionsByKeyword(ctx, a.userID, query, perQueryFactLimit)
	if err != nil {
		log.Printf("emotion search failed for %q: %v", query, err)
		return nil
	}

	var lines []string
	for _, rec := range records {
		lines = append(lines, fmt.Sprintf("[情感记录] %s (强度: %.1f)", rec.EmotionType, rec.Intensity))
	}
	return lines
}

// semanticEvents ranks recent events by cosine similarity against the query
// embedding, using each event's stored vector when present.
func (a *Assembler) semanticEvents(ctx context.Context, query string) []string {
	queryVec, err := a.embed.Embed(ctx, query)
	if err != nil {
		log.Printf("query embedding failed: %v", err)
		return nil
	}

	events, err := a.store.GetLifeEvents(ctx, a.userID, 20)
	if err != nil {
		log.Printf("event load failed: %v", err)
		return nil
	}

	var hits []scoredLine
	for _, event := range events {
		vec := event.Embedding
		if len(vec) == 0 {
			vec, err = a.embed.Embed(ctx, event.Title)
			if err != nil {
				continue
			}
		}
		if sim := embedder.CosineSimilarity(queryVec, vec); sim >= eventSimilarityThreshold {
			hits = append(hits, scoredLine{line: formatEventLine(event), score: sim})
		}
	}
	return topLines(hits, maxSemanticHits)
}

func (a *Assembler) semanticMessages(ctx context.Context, query string) []string {
	queryVec, err := a.embed.Embed(ctx, query)
	if err != nil {
		log.Printf("query embedding failed: %v", err)
		return nil
	}

	msgs, err := a.store.GetRecentMessages(ctx, a.userID, 20)
	if err != nil {
		log.Printf("message load failed: %v", err)
		return nil
	}

	var hits []scoredLine
	for _, msg := range msgs {
		vec, err := a.embed.Embed(ctx, msg.Content)
		if err != nil {
			continue
		}
		if sim := embedder.CosineSimilarity(queryVec, vec); sim >= messageSimilarityThreshold {
			hits = append(hits, scoredLine{
				line:  fmt.Sprintf("[历史对话] %s: %s", msg.Role, truncateRunes(msg.Content, 100)),
				score: sim,
			})
		}
	}
	return topLines(hits, maxSemanticHits)
}

type scoredLine struct {
	line  string
	score float64
}

// topLines returns the highest-scoring lines, capped at limit.
func topLines(hits []scoredLine, limit int) []string {
	sort.Slice(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	var lines []string
	for i, h := range hits {
		if i >= limit {
			break
		}
		lines = append(lines, h.line)
	}
	return lines
}

// ExtractKeywords tokenizes Chinese text for keyword search.
//
// Tokens are split on punctuation and whitespace; tokens shorter than two
// code points and stop words are dropped.
func ExtractKeywords(text string) []string {
	var keywords []string
	for _, token := range tokenSplitRe.Split(text, -1) {
		token = strings.TrimSpace(token)
		if len([]rune(token)) < 2 {
			continue
		}
		if _, stopped := stopWords[token]; stopped {
			continue
		}
		keywords = append(keywords, token)
	}
	return keywords
}

// dedupeLines drops exact duplicate lines, first occurrence wins, and caps
// the result.
func dedupeLines(lines []string, limit int) []string {
	seen := make(map[string]struct{}, len(lines))
	var out []string
	for _, line := range lines {
		if _, dup := seen[line]; dup {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func formatEventLine(event *storage.LifeEvent) string {
	return fmt.Sprintf("[生活事件] %s - %s", event.Title, truncateRunes(event.Description, 50))
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
