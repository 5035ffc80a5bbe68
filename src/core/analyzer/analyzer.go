package analyzer

import (
	"regexp"
	"strings"
	"time"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

const (
	// condenseThreshold is the display-text length above which a shorter
	// speech variant is derived.
	condenseThreshold = 500
	// paragraphThreshold is the first-paragraph length above which the
	// speech variant is cut down to its leading sentences.
	paragraphThreshold = 300
	leadingSentences   = 3
)

var (
	multiNewline = regexp.MustCompile(`\n{3,}`)
	preamble     = regexp.MustCompile(`^(I can see that|Looking at your drawing|Based on the image|From what I can observe)`)

	techniquePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)using (\w+\s\w+) technique`),
		regexp.MustCompile(`(?i)(\w+\s\w+) technique`),
		regexp.MustCompile(`(?i)technique of (\w+\s\w+)`),
	}

	suggestionPattern = regexp.MustCompile(`(?i)(?:suggest|try|consider)[^.!?]*[.!?]`)

	elementPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)I (?:see|notice) (\w+)`),
		regexp.MustCompile(`(?i)there is (\w+\s\w+)`),
		regexp.MustCompile(`(?i)you've drawn (\w+\s\w+)`),
	}
)

// Insights are lightweight structured observations pulled from critique text
// with plain pattern scans. Best effort only.
type Insights struct {
	Techniques       []string `json:"techniques"`
	Suggestions      []string `json:"suggestions"`
	DetectedElements []string `json:"detected_elements"`
}

// Feedback is the processed form of one critique, ready for display, speech
// and the history log.
type Feedback struct {
	DisplayText string   `json:"text"`
	SpeechText  string   `json:"speech_text,omitempty"`
	ShouldSpeak bool     `json:"speak"`
	Insights    Insights `json:"insights"`
	CreatedAt   int64    `json:"timestamp"`
}

// SpokenText returns the text the Speaker should read: the condensed variant
// when one was derived, the full display text otherwise.
func (f Feedback) SpokenText() string {
	if f.SpeechText != "" {
		return f.SpeechText
	}
	return f.DisplayText
}

// Analyzer normalizes raw critique text and derives insights from it.
type Analyzer struct {
	history *HistoryStore
	logger  *utils.TaggedLogger
}

func NewAnalyzer(cfg configs.AnalyzerConfig, logger *utils.Logger) *Analyzer {
	a := &Analyzer{logger: logger.WithTag("analyzer")}
	if cfg.SaveHistory {
		a.history = NewHistoryStore(cfg.HistoryDir, cfg.MaxEntries, logger)
	}
	return a
}

// Analyze cleans raw critique text, scans it for insights, and derives a
// condensed speech variant for long responses. The record is appended to the
// history log when history saving is enabled; history I/O failures are logged
// and never fail the analysis.
func (a *Analyzer) Analyze(rawText string) Feedback {
	text := cleanText(rawText)

	feedback := Feedback{
		DisplayText: text,
		ShouldSpeak: true,
		Insights:    extractInsights(text),
		CreatedAt:   time.Now().Unix(),
	}

	if len(text) > condenseThreshold {
		feedback.SpeechText = condenseForSpeech(text)
	}

	if a.history != nil {
		a.history.Append(feedback)
	}
	return feedback
}

// History returns up to limit recent feedback records, newest first. Empty
// when history saving is disabled.
func (a *Analyzer) History(limit int) []Feedback {
	if a.history == nil {
		return nil
	}
	return a.history.Recent(limit)
}

func cleanText(text string) string {
	text = multiNewline.ReplaceAllString(text, "\n\n")
	text = preamble.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func extractInsights(text string) Insights {
	insights := Insights{
		Techniques:       []string{},
		Suggestions:      []string{},
		DetectedElements: []string{},
	}

	for _, pattern := range techniquePatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			insights.Techniques = append(insights.Techniques, m[1])
		}
	}

	lower := strings.ToLower(text)
	if strings.Contains(lower, "suggest") || strings.Contains(lower, "try") || strings.Contains(lower, "consider") {
		insights.Suggestions = suggestionPattern.FindAllString(text, -1)
	}

	for _, pattern := range elementPatterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			insights.DetectedElements = append(insights.DetectedElements, m[1])
		}
	}

	insights.Techniques = dedupe(insights.Techniques)
	insights.Suggestions = dedupe(insights.Suggestions)
	insights.DetectedElements = dedupe(insights.DetectedElements)
	return insights
}

// dedupe removes duplicates keeping first-seen order.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}

func condenseForSpeech(text string) string {
	firstPara := text
	if idx := strings.Index(text, "\n\n"); idx >= 0 {
		firstPara = text[:idx]
	}

	if len(firstPara) > paragraphThreshold {
		sentences := strings.Split(firstPara, ".")
		if len(sentences) > leadingSentences {
			sentences = sentences[:leadingSentences]
		}
		condensed := strings.Join(sentences, ". ") + "."
		// A paragraph with no sentence breaks cannot be condensed by
		// splitting; cut it instead.
		if len(condensed) >= len(firstPara) && len(condensed) > paragraphThreshold {
			return firstPara[:paragraphThreshold]
		}
		return condensed
	}
	return firstPara
}
