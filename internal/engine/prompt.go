package engine

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/evakess/callsense/internal/emotion"
)

// emotionSystemPrompt instructs the oracle on its role and output contract.
// The JSON field names must match the emotion.Judgment tags exactly.
const emotionSystemPrompt = `You are an expert emotion analysis agent for an emergency response system.
Your task is to analyze the text from a caller and identify their emotional state.
Focus on detecting emotions like fear, anger, sadness, distress, panic, confusion, and urgency.
Assess the intensity of these emotions.

You may call the provided analysis tools to gather supporting evidence before
answering: score the message against the emotion lexicon, record the judgment
in the temporal tracker and query its trend, or cross-validate against the
audio classification when one is given.

When you are done, respond with ONLY a JSON object in this exact format:
{
  "primary_emotion": "<fear|anger|sadness|distress|panic|confused|neutral>",
  "secondary_emotion": "<optional, same values, omit if none>",
  "intensity": "<low|medium|high|extreme>",
  "confidence": <0.0-1.0>,
  "reasoning": "<why these emotions were detected>",
  "urgency": <true|false>
}

Be particularly attentive to signs of extreme distress or panic that might
require priority handling.`

// buildEmotionPrompt assembles the user message for one caller turn. The
// audio block is present only when the audio phase ran, the call-time line
// only when the turn carried a timestamp.
func buildEmotionPrompt(text string, audioJudgment *emotion.Judgment, features *emotion.AudioFeatures, callTime *float64) string {
	var b strings.Builder

	b.WriteString("Analyze the emotional content of this message from someone contacting emergency services:\n\n")
	fmt.Fprintf(&b, "MESSAGE: %q\n", text)

	if audioJudgment != nil {
		b.WriteString("\nAudio analysis of the caller's voice:\n")
		fmt.Fprintf(&b, "- Classified emotion: %s (intensity %s, confidence %.2f)\n",
			audioJudgment.PrimaryEmotion, audioJudgment.Intensity, audioJudgment.Confidence)
		fmt.Fprintf(&b, "- Classifier reasoning: %s\n", audioJudgment.Reasoning)
		if features != nil {
			fmt.Fprintf(&b, "- Measured features: pitch %.1f Hz, volume %.3f, speech rate %.2f words/s, prosody variance %.1f\n",
				features.PitchHz, features.Volume, features.SpeechRate, features.ProsodyVariance)
		}
	}

	if callTime != nil {
		fmt.Fprintf(&b, "\nCALL TIME: %.1f seconds since call start. A timestamp is available for the temporal tracker.\n", *callTime)
	}

	b.WriteString("\nProvide your analysis as a single JSON object.")
	return b.String()
}

// extractJSON pulls the first JSON object out of an oracle reply, tolerating
// markdown code fences and surrounding prose.
func extractJSON(content string) (string, error) {
	s := content
	if i := strings.Index(s, "```"); i >= 0 {
		s = s[i+3:]
		s = strings.TrimPrefix(s, "json")
		if j := strings.Index(s, "```"); j >= 0 {
			s = s[:j]
		}
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", fmt.Errorf("no JSON object in response")
	}
	return s[start : end+1], nil
}

// parseJudgment decodes and validates an oracle reply into a Judgment.
// AnalysisTime is left zero; the engine stamps it.
func parseJudgment(content string) (emotion.Judgment, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return emotion.Judgment{}, err
	}
	var j emotion.Judgment
	if err := json.Unmarshal([]byte(raw), &j); err != nil {
		return emotion.Judgment{}, fmt.Errorf("decode judgment: %w", err)
	}
	if err := j.Validate(); err != nil {
		return emotion.Judgment{}, err
	}
	return j, nil
}
