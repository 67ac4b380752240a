package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/evakess/callsense/internal/contextstore"
	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/pkg/provider/llm"
)

// SituationProducer is the context-store producer name for situation
// assessments.
const SituationProducer = "SituationAnalysisTool"

const situationSystemPrompt = `You are an expert situation assessment agent for an emergency response system.
Your task is to analyze emergency messages and determine:
1. The type of emergency situation
2. The severity level
3. Key details about the situation
4. Necessary response actions
5. Any resources that might be required

Focus on identifying critical information while maintaining a high degree of accuracy.

Respond with ONLY a JSON object in this exact format:
{
  "emergency_category": "<medical|fire|crime|traffic_accident|natural_disaster|infrastructure|domestic_disturbance|other|undetermined>",
  "severity_level": "<low|medium|high|critical|life_threatening>",
  "key_details": ["<critical fact>", ...],
  "required_actions": ["<recommended action>", ...],
  "required_resources": ["<resource>", ...],
  "confidence": <0.0-1.0>,
  "reasoning": "<why you categorized the situation this way>"
}`

// buildSituationPrompt assembles the user message for the situation analyzer.
// When a prior emotion judgment exists in the session it is summarised so the
// assessment can weigh the caller's emotional state.
func buildSituationPrompt(message string, emotionPayload map[string]any) string {
	var b strings.Builder

	b.WriteString("Analyze this emergency message:\n\n")
	fmt.Fprintf(&b, "MESSAGE: %q\n", message)

	if emotionPayload != nil {
		b.WriteString("\nPrevious emotion analysis detected:\n")
		for _, f := range []struct{ label, key string }{
			{"Primary emotion", "primary_emotion"},
			{"Secondary emotion", "secondary_emotion"},
			{"Intensity", "intensity"},
			{"Confidence", "confidence_score"},
		} {
			if v, ok := emotionPayload[f.key]; ok && v != "" {
				fmt.Fprintf(&b, "- %s: %v\n", f.label, v)
			}
		}
	}

	b.WriteString("\nCategorize the emergency, assess severity, identify key details, and recommend appropriate actions.")
	return b.String()
}

// parseSituation decodes and validates an oracle reply into an assessment.
func parseSituation(content string) (emotion.SituationAssessment, error) {
	raw, err := extractJSON(content)
	if err != nil {
		return emotion.SituationAssessment{}, err
	}
	var a emotion.SituationAssessment
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return emotion.SituationAssessment{}, fmt.Errorf("decode assessment: %w", err)
	}
	if !a.Category.IsValid() {
		return emotion.SituationAssessment{}, fmt.Errorf("invalid emergency category %q", a.Category)
	}
	if !a.Severity.IsValid() {
		return emotion.SituationAssessment{}, fmt.Errorf("invalid severity level %q", a.Severity)
	}
	if a.Confidence < 0 || a.Confidence > 1 {
		return emotion.SituationAssessment{}, fmt.Errorf("confidence %.3f out of range [0, 1]", a.Confidence)
	}
	return a, nil
}

// AnalyzeSituation runs the single-shot situation assessment of one message,
// conditioned on the session's latest emotion judgment. Like Analyze it
// degrades to a fallback assessment on any oracle failure and always writes
// exactly one context-store entry.
func (e *Engine) AnalyzeSituation(ctx context.Context, message string) (*emotion.SituationAssessment, error) {
	if strings.TrimSpace(message) == "" {
		return nil, fmt.Errorf("engine: situation analysis requires a message")
	}

	var emotionPayload map[string]any
	if entry, ok := e.store.Latest(EmotionProducer); ok {
		emotionPayload = entry.Payload
	}

	cctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.oracle.Complete(cctx, llm.CompletionRequest{
		Messages: []llm.Message{{
			Role:    "user",
			Content: buildSituationPrompt(message, emotionPayload),
		}},
		Temperature:  e.temperature,
		SystemPrompt: situationSystemPrompt,
	})
	if e.metrics != nil {
		e.metrics.OracleDuration.Record(ctx, time.Since(start).Seconds())
	}

	var assessment emotion.SituationAssessment
	var failure error
	switch {
	case err != nil:
		e.metrics.RecordOracleRequest(ctx, e.oracleName, "error")
		e.metrics.RecordOracleError(ctx, e.oracleName)
		e.log.Error("situation oracle request failed", "error", err)
		failure = fmt.Errorf("oracle request failed: %w", err)
	default:
		e.metrics.RecordOracleRequest(ctx, e.oracleName, "ok")
		assessment, failure = parseSituation(resp.Content)
		if failure != nil {
			e.log.Warn("unparseable situation response", "error", failure)
			failure = fmt.Errorf("failed to parse model response: %w", failure)
		}
	}
	if failure != nil {
		assessment = fallbackSituation(failure)
		e.metrics.RecordFallback(ctx, "situation")
	}
	assessment.AnalysisTime = time.Now().UTC()

	payload := map[string]any{
		"emergency_category": string(assessment.Category),
		"severity_level":     string(assessment.Severity),
		"key_details":        assessment.KeyDetails,
		"required_actions":   assessment.RequiredActions,
		"required_resources": assessment.RequiredResources,
		"confidence_score":   assessment.Confidence,
		"reasoning":          assessment.Reasoning,
	}
	if failure != nil {
		payload["error"] = failure.Error()
	}
	e.store.Add(contextstore.Entry{
		Producer:   SituationProducer,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	})

	e.log.Info("situation analysis complete",
		"category", assessment.Category,
		"severity", assessment.Severity,
		"confidence", assessment.Confidence,
		"fallback", failure != nil)
	return &assessment, nil
}

// fallbackSituation is the degraded default used when the oracle cannot
// produce a parseable assessment.
func fallbackSituation(cause error) emotion.SituationAssessment {
	return emotion.SituationAssessment{
		Category:          emotion.CategoryUndetermined,
		Severity:          emotion.SeverityMedium,
		KeyDetails:        []string{"Unable to parse emergency details"},
		RequiredActions:   []string{"Escalate to human operator for review"},
		RequiredResources: []string{"Human intervention required"},
		Confidence:        0.3,
		Reasoning:         fmt.Sprintf("Failed to produce a model assessment: %v", cause),
	}
}
