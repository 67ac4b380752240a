// Package temporal tracks emotion judgments over the course of a call and
// derives the distress trend.
//
// Two tools are exported via [Tools], both bound to one shared [Tracker]:
//   - "TemporalEmotionAnalyzerAdd" appends a judgment to the history.
//   - "TemporalEmotionAnalyzerTrend" reports the history and its trend.
package temporal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/tools"
	"github.com/evakess/callsense/pkg/provider/llm"
)

// Tracker accumulates the emotion time series of one call. Safe for
// concurrent use.
type Tracker struct {
	mu      sync.Mutex
	history []emotion.TemporalEntry
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Add validates j and appends it to the history at offset callTime seconds.
func (t *Tracker) Add(j emotion.Judgment, callTime float64) error {
	if err := j.Validate(); err != nil {
		return fmt.Errorf("temporal: reject entry: %w", err)
	}
	if callTime < 0 {
		return fmt.Errorf("temporal: negative call time %.3f", callTime)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, emotion.TemporalEntry{
		CallTime:       callTime,
		PrimaryEmotion: j.PrimaryEmotion,
		Intensity:      j.Intensity,
		Confidence:     j.Confidence,
	})
	return nil
}

// Series returns a copy of the history together with its computed trend.
//
// Fewer than two entries yield [emotion.Unknown]. Otherwise only
// distress-class entries are considered: the trend compares the intensity of
// the latest such entry against the earliest. Zero or one distress-class
// entries, or equal intensities, read as [emotion.Stable].
func (t *Tracker) Series() emotion.TemporalSeries {
	t.mu.Lock()
	history := make([]emotion.TemporalEntry, len(t.history))
	copy(history, t.history)
	t.mu.Unlock()

	return emotion.TemporalSeries{
		History: history,
		Trend:   computeTrend(history),
	}
}

// Reset clears the history for a new call.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.history = nil
	t.mu.Unlock()
}

func computeTrend(history []emotion.TemporalEntry) emotion.Trend {
	if len(history) < 2 {
		return emotion.Unknown
	}

	var ranks []int
	for _, e := range history {
		if e.PrimaryEmotion.IsDistressClass() {
			ranks = append(ranks, e.Intensity.Rank())
		}
	}
	switch {
	case len(ranks) >= 2 && ranks[len(ranks)-1] > ranks[0]:
		return emotion.Escalating
	case len(ranks) >= 2 && ranks[len(ranks)-1] < ranks[0]:
		return emotion.Deescalating
	default:
		return emotion.Stable
	}
}

// addArgs is the JSON-decoded input for the "TemporalEmotionAnalyzerAdd" tool.
type addArgs struct {
	// CallTime is the offset in seconds since call start.
	CallTime float64 `json:"call_time"`

	PrimaryEmotion emotion.Type      `json:"primary_emotion"`
	Intensity      emotion.Intensity `json:"intensity"`
	Confidence     float64           `json:"confidence"`
}

// addResult is the JSON-encoded output of the "TemporalEmotionAnalyzerAdd" tool.
type addResult struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Tools returns the temporal tool set bound to tracker.
func Tools(tracker *Tracker) []tools.Tool {
	addHandler := func(_ context.Context, args string) (string, error) {
		var in addArgs
		if err := json.Unmarshal([]byte(args), &in); err != nil {
			return "", fmt.Errorf("temporal: decode args: %w", err)
		}

		j := emotion.Judgment{
			PrimaryEmotion: in.PrimaryEmotion,
			Intensity:      in.Intensity,
			Confidence:     in.Confidence,
		}
		if err := tracker.Add(j, in.CallTime); err != nil {
			out, merr := json.Marshal(addResult{Status: "error", Message: err.Error()})
			if merr != nil {
				return "", merr
			}
			return string(out), nil
		}

		out, err := json.Marshal(addResult{Status: "success", Message: "Emotion entry added."})
		if err != nil {
			return "", err
		}
		return string(out), nil
	}

	trendHandler := func(_ context.Context, _ string) (string, error) {
		out, err := json.Marshal(tracker.Series())
		if err != nil {
			return "", fmt.Errorf("temporal: encode series: %w", err)
		}
		return string(out), nil
	}

	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "TemporalEmotionAnalyzerAdd",
				Description: "Adds an emotion analysis to the temporal history. Use this to track emotions over time during a call, especially if a timestamp is provided.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"call_time": map[string]any{
							"type":        "number",
							"description": "Offset in seconds since call start.",
						},
						"primary_emotion": map[string]any{
							"type":        "string",
							"description": "Primary emotion of the judgment being recorded.",
							"enum":        emotionEnum(),
						},
						"intensity": map[string]any{
							"type": "string",
							"enum": []string{"low", "medium", "high", "extreme"},
						},
						"confidence": map[string]any{
							"type":        "number",
							"description": "Assessment confidence in [0, 1].",
						},
					},
					"required": []string{"call_time", "primary_emotion", "intensity", "confidence"},
				},
			},
			Handler: addHandler,
		},
		{
			Definition: llm.ToolDefinition{
				Name:        "TemporalEmotionAnalyzerTrend",
				Description: "Analyzes the trend of emotions over time. Use this to detect patterns like escalating distress after multiple emotion analyses have been added.",
				Parameters: map[string]any{
					"type":       "object",
					"properties": map[string]any{},
				},
			},
			Handler: trendHandler,
		},
	}
}

func emotionEnum() []string {
	names := make([]string, len(emotion.Types))
	for i, e := range emotion.Types {
		names[i] = string(e)
	}
	return names
}
