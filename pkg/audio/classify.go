package audio

import (
	"fmt"
	"math"
	"time"

	"github.com/evakess/callsense/internal/emotion"
)

// Classification thresholds for the fixed decision tree. It is a
// deterministic baseline, not a tuned model.
const (
	pitchHighHz    = 200.0
	pitchLowHz     = 100.0
	volumeHigh     = 0.1
	speechRateFast = 5.0
)

// Classifier maps [emotion.AudioFeatures] to a discrete emotion judgment via
// a fixed-priority decision tree. Stateless and safe for concurrent use.
type Classifier struct{}

// Classify evaluates the decision tree in strict priority order and returns a
// primary-only judgment (no secondary emotion, no call time).
//
// Malformed input (NaN, infinite, or negative descriptors) degrades to the
// neutral branch with an error-annotated reasoning string; Classify never
// fails its caller.
func (Classifier) Classify(f emotion.AudioFeatures) emotion.Judgment {
	if err := validateFeatures(f); err != nil {
		return emotion.Judgment{
			PrimaryEmotion: emotion.Neutral,
			Intensity:      emotion.Medium,
			Confidence:     0.5,
			Reasoning:      fmt.Sprintf("Error in classification: %v", err),
			AnalysisTime:   time.Now(),
		}
	}

	var (
		primary    emotion.Type
		intensity  emotion.Intensity
		confidence float64
		reasoning  string
	)

	// Branch priority is strict: a panic-qualifying input must classify as
	// panic even when it would also satisfy the distress or sadness branches.
	switch {
	case f.PitchHz > pitchHighHz && f.SpeechRate > speechRateFast:
		primary = emotion.Panic
		intensity = emotion.High
		confidence = 0.90
		reasoning = "High pitch and fast speech rate indicate panic."
	case f.Volume > volumeHigh:
		primary = emotion.Distress
		intensity = emotion.High
		confidence = 0.85
		reasoning = "High volume suggests distress."
	case f.PitchHz < pitchLowHz:
		primary = emotion.Sadness
		intensity = emotion.Medium
		confidence = 0.70
		reasoning = "Low pitch indicates sadness."
	default:
		primary = emotion.Neutral
		intensity = emotion.Medium
		confidence = 0.50
		reasoning = "No strong emotional cues detected in audio."
	}

	return emotion.Judgment{
		PrimaryEmotion: primary,
		Intensity:      intensity,
		Confidence:     confidence,
		Reasoning:      reasoning,
		Urgency:        primary.IsDistressClass(),
		AnalysisTime:   time.Now(),
	}
}

// validateFeatures reports the first structural defect in f.
func validateFeatures(f emotion.AudioFeatures) error {
	fields := []struct {
		name string
		val  float64
	}{
		{"pitch_hz", f.PitchHz},
		{"volume", f.Volume},
		{"speech_rate", f.SpeechRate},
		{"prosody_variance", f.ProsodyVariance},
	}
	for _, fv := range fields {
		if math.IsNaN(fv.val) || math.IsInf(fv.val, 0) {
			return fmt.Errorf("%s is not finite", fv.name)
		}
		if fv.val < 0 {
			return fmt.Errorf("%s is negative (%f)", fv.name, fv.val)
		}
	}
	if f.PitchHz > pitchMaxHz {
		return fmt.Errorf("pitch_hz %f exceeds plausible range", f.PitchHz)
	}
	return nil
}
