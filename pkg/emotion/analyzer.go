// Package emotion provides hybrid emotion classification for Chinese chat text.
//
// Classification runs in two layers: a keyword-dictionary rule layer that is
// fast and free, and an optional LLM layer that handles text the rules are not
// confident about.
package emotion

import (
	"context"
	"fmt"
	"strings"

	"github.com/warmheart-ai/companion-go/pkg/llm"
)

// Result is the outcome of analyzing one piece of text.
type Result struct {
	// EmotionType is the detected emotion category, e.g. "喜悦" or "悲伤".
	EmotionType string `json:"emotion_type"`

	// Intensity is the emotion strength in [0.0, 1.0].
	Intensity float64 `json:"intensity"`

	// Confidence is how sure the analyzer is about this result, in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// Trigger is the identified cause of the emotion, when known.
	Trigger string `json:"trigger,omitempty"`

	// Needs is the user's inferred emotional need, when known.
	Needs string `json:"needs,omitempty"`

	// Matches lists the dictionary keywords that fired on the rule path.
	Matches []string `json:"matches,omitempty"`
}

// emotionCategories fixes the evaluation order of the dictionary so that
// score ties resolve deterministically.
var emotionCategories = []string{
	"喜悦", "悲伤", "愤怒", "焦虑", "恐惧", "惊讶", "厌恶",
	"平静", "孤独", "感激", "希望", "困惑", "失望",
}

var emotionKeywords = map[string][]string{
	"喜悦": {
		"开心", "高兴", "快乐", "幸福", "棒", "太好了", "兴奋", "激动",
		"满足", "愉快", "欣喜", "喜悦", "欢喜", "乐", "爽", "赞", "好开心",
		"超级开心", "非常开心", "特别开心", "真开心", "太开心",
	},
	"悲伤": {
		"难过", "伤心", "悲伤", "哭", "泪", "心痛", "痛苦", "绝望",
		"沮丧", "低落", "失落", "郁闷", "忧伤", "心碎", "难受", "不开心",
	},
	"愤怒": {
		"生气", "愤怒", "气死", "气人", "火大", "烦躁", "恼火", "暴躁",
		"讨厌", "恨", "可恶", "过分", "太过分", "气愤", "愤恨",
	},
	"焦虑": {
		"焦虑", "紧张", "担心", "害怕", "不安", "忐忑", "着急", "急",
		"慌", "恐慌", "压力", "压力大", "焦急", "心烦", "烦",
	},
	"恐惧": {
		"害怕", "恐惧", "可怕", "吓", "恐怖", "惊恐", "惧怕", "畏惧",
	},
	"惊讶": {
		"惊讶", "震惊", "意外", "没想到", "居然", "竟然", "天啊", "哇",
	},
	"厌恶": {
		"恶心", "讨厌", "厌恶", "反感", "烦", "无语", "受不了",
	},
	"平静": {
		"平静", "安静", "放松", "轻松", "淡定", "冷静", "安心",
	},
	"孤独": {
		"孤独", "寂寞", "一个人", "没人理", "孤单", "冷清",
	},
	"感激": {
		"感谢", "感激", "谢谢", "多谢", "感恩", "谢", "太感谢",
	},
	"希望": {
		"希望", "期待", "盼望", "憧憬", "相信", "会好的", "加油",
	},
	"困惑": {
		"困惑", "迷茫", "迷惑", "不懂", "不理解", "不明白", "纠结",
	},
	"失望": {
		"失望", "遗憾", "可惜", "落空", "不如意", "白费",
	},
}

// intensityModifiers adjust the base intensity when present in the text.
// Positive values amplify, negative values dampen.
var intensityModifiers = map[string]float64{
	"非常": 0.2,
	"特别": 0.2,
	"超级": 0.25,
	"极其": 0.25,
	"太":  0.15,
	"真的": 0.1,
	"好":  0.1,
	"很":  0.15,
	"十分": 0.2,
	"有点": -0.15,
	"有些": -0.1,
	"稍微": -0.2,
	"略微": -0.15,
}

const emotionAnalysisPromptTemplate = `请分析以下文本的情感状态，返回JSON格式：

文本："%s"

请返回以下格式的JSON：
{
    "emotion_type": "情感类型（如：喜悦、悲伤、焦虑、愤怒、平静等）",
    "intensity": 0.0-1.0之间的数值表示情感强度,
    "trigger": "可能的触发因素（如果能识别）",
    "needs": "用户可能的情感需求"
}

只返回JSON，不要其他解释。`

// Analyzer is a hybrid emotion classifier.
//
// The rule layer matches a keyword dictionary and scores intensity and
// confidence from match count, modifier words, and punctuation. When an LLM
// provider is configured, low-confidence text falls through to the model.
type Analyzer struct {
	provider llm.Provider
}

// NewAnalyzer creates an Analyzer.
//
// provider may be nil, in which case only the rule layer runs.
func NewAnalyzer(provider llm.Provider) *Analyzer {
	return &Analyzer{provider: provider}
}

// SupportedEmotions returns the emotion categories the rule layer knows.
func (a *Analyzer) SupportedEmotions() []string {
	out := make([]string, len(emotionCategories))
	copy(out, emotionCategories)
	return out
}

// Analyze classifies the emotion of text.
//
// The rule layer runs first. A rule result with confidence >= 0.7 is returned
// directly. When the rule result is missing or has confidence < 0.5 and an
// LLM provider is available, the model is consulted; a model failure falls
// back to whatever the rule layer produced. Returns nil when no emotion is
// detected at all.
func (a *Analyzer) Analyze(ctx context.Context, text string) *Result {
	ruleResult := a.AnalyzeRuleBased(text)

	if ruleResult != nil && ruleResult.Confidence >= 0.7 {
		return ruleResult
	}

	if a.provider != nil && (ruleResult == nil || ruleResult.Confidence < 0.5) {
		if llmResult := a.llmAnalyze(ctx, text); llmResult != nil {
			return llmResult
		}
	}

	return ruleResult
}

// AnalyzeRuleBased classifies text using only the keyword dictionary.
//
// Returns nil for empty text or text with no dictionary matches.
func (a *Analyzer) AnalyzeRuleBased(text string) *Result {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	textLower := strings.ToLower(text)

	var bestEmotion string
	var bestScore float64
	var bestMatches []string

	for _, emotion := range emotionCategories {
		var matches []string
		var score float64

		for _, keyword := range emotionKeywords[emotion] {
			if strings.Contains(textLower, keyword) {
				matches = append(matches, keyword)
				// Longer keywords are more specific, so they score higher.
				score += 1.0 + float64(len([]rune(keyword)))*0.05
			}
		}

		if len(matches) > 0 && score > bestScore {
			bestEmotion = emotion
			bestScore = score
			bestMatches = matches
		}
	}

	if bestEmotion == "" {
		return nil
	}

	baseIntensity := 0.4 + bestScore*0.1
	if baseIntensity > 0.9 {
		baseIntensity = 0.9
	}

	var modifier float64
	for word, value := range intensityModifiers {
		if strings.Contains(textLower, word) {
			modifier += value
		}
	}

	exclamations := strings.Count(text, "！") + strings.Count(text, "!")
	bonus := float64(exclamations) * 0.05
	if bonus > 0.15 {
		bonus = 0.15
	}
	modifier += bonus

	finalIntensity := clamp(baseIntensity+modifier, 0.1, 1.0)

	confidence := 0.4 + float64(len(bestMatches))*0.15 + modifier*0.5
	if confidence > 0.95 {
		confidence = 0.95
	}

	return &Result{
		EmotionType: bestEmotion,
		Intensity:   round2(finalIntensity),
		Confidence:  round2(confidence),
		Matches:     bestMatches,
	}
}

// llmAnalyze asks the model to classify the text. Any failure (call error,
// unparseable reply, missing fields) returns nil so the caller can fall back
// to the rule result.
func (a *Analyzer) llmAnalyze(ctx context.Context, text string) *Result {
	prompt := fmt.Sprintf(emotionAnalysisPromptTemplate, text)

	parsed, err := llm.GenerateJSON(ctx, a.provider,
		[]llm.Message{{Role: "user", Content: prompt}},
		0, llm.WithTemperature(0.3))
	if err != nil {
		return nil
	}

	emotionType, _ := parsed["emotion_type"].(string)
	if emotionType == "" {
		return nil
	}

	intensity, ok := parsed["intensity"].(float64)
	if !ok {
		intensity = 0.5
	}

	confidence := 0.8
	if c, ok := parsed["confidence"].(float64); ok {
		confidence = c
	}

	trigger, _ := parsed["trigger"].(string)
	needs, _ := parsed["needs"].(string)

	return &Result{
		EmotionType: emotionType,
		Intensity:   clamp(intensity, 0.0, 1.0),
		Confidence:  confidence,
		Trigger:     trigger,
		Needs:       needs,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}
