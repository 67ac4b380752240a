// Package emotion defines the shared data model for CallSense: emotion
// judgments, audio feature descriptors, temporal series, cross-modal
// validation results, and situation assessments.
//
// These types form the lingua franca between the analyzers, the orchestration
// engine, and the context store. They are intentionally minimal: each package
// defines its own internals, but cross-cutting data structures live here to
// avoid circular imports.
package emotion

import (
	"fmt"
	"time"
)

// Type is the fixed enumeration of caller emotions the system recognises.
type Type string

const (
	Fear     Type = "fear"
	Anger    Type = "anger"
	Sadness  Type = "sadness"
	Distress Type = "distress"
	Panic    Type = "panic"
	Confused Type = "confused"
	Neutral  Type = "neutral"
)

// Types lists every recognised emotion, in declaration order. Used to
// initialise per-emotion accumulators.
var Types = []Type{Fear, Anger, Sadness, Distress, Panic, Confused, Neutral}

// IsValid reports whether t is a recognised emotion.
func (t Type) IsValid() bool {
	switch t {
	case Fear, Anger, Sadness, Distress, Panic, Confused, Neutral:
		return true
	}
	return false
}

// IsDistressClass reports whether t belongs to the distress class of emotions
// that drive trend analysis and cross-modal escalation.
func (t Type) IsDistressClass() bool {
	return t == Distress || t == Panic || t == Fear
}

// Intensity is the severity level of a detected emotion.
type Intensity string

const (
	Low     Intensity = "low"
	Medium  Intensity = "medium"
	High    Intensity = "high"
	Extreme Intensity = "extreme"
)

// IsValid reports whether i is a recognised intensity level.
func (i Intensity) IsValid() bool {
	switch i {
	case Low, Medium, High, Extreme:
		return true
	}
	return false
}

// Rank returns the ordinal position of i on the severity scale
// low < medium < high < extreme. Unrecognised values rank below low so that
// malformed input never reads as an escalation.
func (i Intensity) Rank() int {
	switch i {
	case Low:
		return 0
	case Medium:
		return 1
	case High:
		return 2
	case Extreme:
		return 3
	}
	return -1
}

// Trend describes the direction of distress-class emotions over a call.
type Trend string

const (
	Escalating   Trend = "escalating"
	Deescalating Trend = "deescalating"
	Stable       Trend = "stable"
	Unknown      Trend = "unknown"
)

// RecommendedAction is the cross-modal validator's advice to downstream
// consumers when text and audio analyses disagree.
type RecommendedAction string

const (
	ActionProceed   RecommendedAction = "proceed"
	ActionReanalyze RecommendedAction = "reanalyze"
	ActionEscalate  RecommendedAction = "escalate"
	ActionFlag      RecommendedAction = "flag"
)

// Judgment is a structured emotion assessment of one caller turn.
// Immutable once created; produced either by the oracle (text path) or by the
// audio classifier (audio path).
type Judgment struct {
	// PrimaryEmotion is the dominant emotion detected.
	PrimaryEmotion Type `json:"primary_emotion"`

	// SecondaryEmotion is an optional secondary emotion, empty when absent.
	SecondaryEmotion Type `json:"secondary_emotion,omitempty"`

	// Intensity is the severity level of the primary emotion.
	Intensity Intensity `json:"intensity"`

	// Confidence is the assessment confidence in [0, 1].
	Confidence float64 `json:"confidence"`

	// Reasoning explains why these emotions were detected. The engine appends
	// a summary of side artifacts produced during analysis.
	Reasoning string `json:"reasoning"`

	// Urgency flags judgments that require priority handling.
	Urgency bool `json:"urgency"`

	// AnalysisTime is when this judgment was produced.
	AnalysisTime time.Time `json:"analysis_time"`

	// CallTime is the offset in seconds since call start, when supplied by
	// the caller. Nil when no timestamp was given.
	CallTime *float64 `json:"call_time,omitempty"`
}

// Validate reports the first structural defect in j, or nil when j is
// well-formed. Used by the temporal tracker before accepting an entry.
func (j Judgment) Validate() error {
	if !j.PrimaryEmotion.IsValid() {
		return fmt.Errorf("emotion: invalid primary emotion %q", j.PrimaryEmotion)
	}
	if j.SecondaryEmotion != "" && !j.SecondaryEmotion.IsValid() {
		return fmt.Errorf("emotion: invalid secondary emotion %q", j.SecondaryEmotion)
	}
	if !j.Intensity.IsValid() {
		return fmt.Errorf("emotion: invalid intensity %q", j.Intensity)
	}
	if j.Confidence < 0 || j.Confidence > 1 {
		return fmt.Errorf("emotion: confidence %.3f out of range [0, 1]", j.Confidence)
	}
	return nil
}

// AudioFeatures holds the four numeric descriptors derived from one audio
// recording. All fields are non-negative; Pitch is bounded to the plausible
// human range (≤ 1000 Hz). The zero value is the degenerate-but-valid output
// for undecodable or silent audio.
type AudioFeatures struct {
	// PitchHz is the mean fundamental frequency over voiced frames, 0 when
	// no voiced frames were found.
	PitchHz float64 `json:"pitch_hz"`

	// Volume is the mean RMS energy over the whole signal, normalised to
	// [0, 1] for 16-bit PCM.
	Volume float64 `json:"volume"`

	// SpeechRate is the zero-crossing count divided by duration in seconds.
	// A proxy for articulation rate, not a true syllable count.
	SpeechRate float64 `json:"speech_rate"`

	// ProsodyVariance is the variance of the voiced pitch estimates, 0 when
	// fewer than two voiced frames were found.
	ProsodyVariance float64 `json:"prosody_variance"`
}

// TemporalEntry is one point in a call's emotion time series.
type TemporalEntry struct {
	// CallTime is the offset in seconds since call start.
	CallTime float64 `json:"call_time"`

	PrimaryEmotion Type      `json:"primary_emotion"`
	Intensity      Intensity `json:"intensity"`
	Confidence     float64   `json:"confidence"`
}

// TemporalSeries is the accumulated emotion history of a call together with
// its computed trend.
type TemporalSeries struct {
	// History is the insertion-ordered sequence of entries. Chronological
	// ordering is the caller's responsibility; the tracker does not re-sort.
	History []TemporalEntry `json:"history"`

	Trend Trend `json:"trend"`
}

// CrossModalResult reports whether a text-derived and an audio-derived
// judgment agree, and what to do when they do not.
type CrossModalResult struct {
	Consistent bool `json:"consistent"`

	// DiscrepancyReason explains the disagreement; empty when consistent.
	DiscrepancyReason string `json:"discrepancy_reason,omitempty"`

	RecommendedAction RecommendedAction `json:"recommended_action"`

	AnalysisTime time.Time `json:"analysis_time"`
}

// Category classifies the kind of emergency described by a caller.
type Category string

const (
	CategoryMedical        Category = "medical"
	CategoryFire           Category = "fire"
	CategoryCrime          Category = "crime"
	CategoryTraffic        Category = "traffic_accident"
	CategoryDisaster       Category = "natural_disaster"
	CategoryInfrastructure Category = "infrastructure"
	CategoryDomestic       Category = "domestic_disturbance"
	CategoryOther          Category = "other"
	CategoryUndetermined   Category = "undetermined"
)

// IsValid reports whether c is a recognised emergency category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryMedical, CategoryFire, CategoryCrime, CategoryTraffic,
		CategoryDisaster, CategoryInfrastructure, CategoryDomestic,
		CategoryOther, CategoryUndetermined:
		return true
	}
	return false
}

// Severity is the assessed gravity of an emergency situation.
type Severity string

const (
	SeverityLow             Severity = "low"
	SeverityMedium          Severity = "medium"
	SeverityHigh            Severity = "high"
	SeverityCritical        Severity = "critical"
	SeverityLifeThreatening Severity = "life_threatening"
)

// IsValid reports whether s is a recognised severity level.
func (s Severity) IsValid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical,
		SeverityLifeThreatening:
		return true
	}
	return false
}

// SituationAssessment is the structured output of the situation analyzer.
type SituationAssessment struct {
	Category Category `json:"emergency_category"`
	Severity Severity `json:"severity_level"`

	// KeyDetails lists the critical facts extracted from the message.
	KeyDetails []string `json:"key_details"`

	// RequiredActions lists the recommended response actions.
	RequiredActions []string `json:"required_actions"`

	// RequiredResources lists resources the response may need.
	RequiredResources []string `json:"required_resources"`

	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`

	AnalysisTime time.Time `json:"analysis_time"`
}
