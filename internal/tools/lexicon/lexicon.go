// Package lexicon provides a built-in tool that scores caller text against a
// small emotion keyword lexicon.
//
// One tool is exported via [Tools]:
//   - "EmotionLexiconScorer" sums keyword weights per emotion over the
//     whitespace-split words of the input text.
//
// The handler is safe for concurrent use; the lexicon itself is immutable.
package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/tools"
	"github.com/evakess/callsense/pkg/provider/llm"
)

// entry binds a trigger word to the emotion it signals and its weight.
type entry struct {
	emotion emotion.Type
	weight  float64
}

// lexicon is the keyword table. Matching is exact per lowercased word; every
// occurrence accumulates its weight.
var lexicon = map[string]entry{
	"scared":   {emotion.Fear, 0.9},
	"help":     {emotion.Distress, 0.8},
	"angry":    {emotion.Anger, 0.7},
	"hurt":     {emotion.Sadness, 0.6},
	"confused": {emotion.Confused, 0.5},
	"panic":    {emotion.Panic, 0.95},
}

// scoreArgs is the JSON-decoded input for the "EmotionLexiconScorer" tool.
type scoreArgs struct {
	// Text is the caller utterance to score.
	Text string `json:"text"`
}

// scoreResult is the JSON-encoded output of the "EmotionLexiconScorer" tool.
type scoreResult struct {
	// Scores maps every known emotion to its accumulated lexicon weight.
	// Emotions with no matching keywords are present with a score of 0.
	Scores map[string]float64 `json:"scores"`
}

// Score computes lexicon scores for text. Every emotion appears in the result,
// zero-valued when no keyword matched.
func Score(text string) map[string]float64 {
	scores := make(map[string]float64, len(emotion.Types))
	for _, e := range emotion.Types {
		scores[string(e)] = 0
	}
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if e, ok := lexicon[word]; ok {
			scores[string(e.emotion)] += e.weight
		}
	}
	return scores
}

func scoreHandler(_ context.Context, args string) (string, error) {
	var in scoreArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("lexicon: decode args: %w", err)
	}

	out, err := json.Marshal(scoreResult{Scores: Score(in.Text)})
	if err != nil {
		return "", fmt.Errorf("lexicon: encode result: %w", err)
	}
	return string(out), nil
}

// Tools returns the lexicon tool set ready for host registration.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "EmotionLexiconScorer",
				Description: "Scores emotions in text using a predefined lexicon. Use this for quick validation of text-based emotion analysis or when model confidence is low.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text": map[string]any{
							"type":        "string",
							"description": "Caller text to score against the emotion lexicon.",
						},
					},
					"required": []string{"text"},
				},
			},
			Handler: scoreHandler,
		},
	}
}
