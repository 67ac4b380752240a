// Package crossmodal checks a text-derived emotion judgment against an
// audio-derived one and recommends how to proceed when they disagree.
//
// One tool is exported via [Tools]:
//   - "CrossModalValidator" compares the two judgments and returns a
//     [emotion.CrossModalResult].
package crossmodal

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/tools"
	"github.com/evakess/callsense/pkg/provider/llm"
)

// Validate compares a text judgment against an audio judgment.
//
// Matching primary emotions are consistent and the caller may proceed. On a
// mismatch the advice depends on who sounds more credible: a distress-class
// audio judgment that is more confident than the text escalates, a more
// confident text judgment flags the audio as possibly noisy, and anything
// else asks for reanalysis.
func Validate(text, audio emotion.Judgment) emotion.CrossModalResult {
	now := time.Now()

	if text.PrimaryEmotion == audio.PrimaryEmotion {
		return emotion.CrossModalResult{
			Consistent:        true,
			RecommendedAction: emotion.ActionProceed,
			AnalysisTime:      now,
		}
	}

	var (
		reason string
		action emotion.RecommendedAction
	)
	switch {
	case audio.PrimaryEmotion.IsDistressClass() && audio.Confidence > text.Confidence:
		reason = "Audio indicates distress not detected in text, possibly due to transcription error."
		action = emotion.ActionEscalate
	case text.Confidence > audio.Confidence:
		reason = "Text analysis more confident; audio may be noisy."
		action = emotion.ActionFlag
	default:
		reason = "Unclear discrepancy between text and audio analyses."
		action = emotion.ActionReanalyze
	}

	return emotion.CrossModalResult{
		Consistent:        false,
		DiscrepancyReason: reason,
		RecommendedAction: action,
		AnalysisTime:      now,
	}
}

// validateArgs is the JSON-decoded input for the "CrossModalValidator" tool.
type validateArgs struct {
	Text  emotion.Judgment `json:"text_analysis"`
	Audio emotion.Judgment `json:"audio_analysis"`
}

func validateHandler(_ context.Context, args string) (string, error) {
	var in validateArgs
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "", fmt.Errorf("crossmodal: decode args: %w", err)
	}

	// Malformed judgments always escalate; an unverifiable discrepancy is
	// treated as the dangerous case.
	for _, j := range []emotion.Judgment{in.Text, in.Audio} {
		if err := j.Validate(); err != nil {
			out, merr := json.Marshal(emotion.CrossModalResult{
				Consistent:        false,
				DiscrepancyReason: fmt.Sprintf("Error in validation: %v", err),
				RecommendedAction: emotion.ActionEscalate,
				AnalysisTime:      time.Now(),
			})
			if merr != nil {
				return "", merr
			}
			return string(out), nil
		}
	}

	out, err := json.Marshal(Validate(in.Text, in.Audio))
	if err != nil {
		return "", fmt.Errorf("crossmodal: encode result: %w", err)
	}
	return string(out), nil
}

// judgmentSchema is the JSON Schema shared by both tool parameters.
func judgmentSchema(desc string) map[string]any {
	return map[string]any{
		"type":        "object",
		"description": desc,
		"properties": map[string]any{
			"primary_emotion": map[string]any{"type": "string"},
			"intensity":       map[string]any{"type": "string"},
			"confidence":      map[string]any{"type": "number"},
		},
		"required": []string{"primary_emotion", "intensity", "confidence"},
	}
}

// Tools returns the cross-modal tool set ready for host registration.
func Tools() []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "CrossModalValidator",
				Description: "Validates consistency between text and audio emotion analyses. Use this when both text and audio analyses are available to ensure reliability.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"text_analysis":  judgmentSchema("Judgment derived from the transcript text."),
						"audio_analysis": judgmentSchema("Judgment derived from the audio signal."),
					},
					"required": []string{"text_analysis", "audio_analysis"},
				},
			},
			Handler: validateHandler,
		},
	}
}
