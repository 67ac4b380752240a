// Package engine orchestrates the multi-modal emotion assessment of one
// caller turn.
//
// An analysis runs as a fixed pipeline: the audio phase first derives a
// classifier judgment from the recording (when one is supplied), then a
// bounded decision cycle lets the oracle call the registered analysis tools
// before committing to a final structured judgment. Every failure mode inside
// the cycle degrades to a neutral fallback judgment rather than surfacing an
// error: a caller turn always yields exactly one judgment and exactly one
// context-store entry.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/evakess/callsense/internal/contextstore"
	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/observe"
	"github.com/evakess/callsense/internal/toolhost"
	"github.com/evakess/callsense/pkg/audio"
	"github.com/evakess/callsense/pkg/provider/llm"
	"github.com/evakess/callsense/pkg/provider/stt"
)

const (
	// DefaultMaxIterations bounds the oracle decision cycle per analysis.
	DefaultMaxIterations = 6

	// DefaultOracleTimeout bounds a single oracle round-trip.
	DefaultOracleTimeout = 30 * time.Second

	// EmotionProducer is the context-store producer name for emotion
	// judgments.
	EmotionProducer = "EmotionAnalysisTool"
)

// Tool names routed into side artifacts. Must match the definitions the
// tool packages register with the host.
const (
	toolLexicon       = "EmotionLexiconScorer"
	toolTemporalAdd   = "TemporalEmotionAnalyzerAdd"
	toolTemporalTrend = "TemporalEmotionAnalyzerTrend"
	toolCrossModal    = "CrossModalValidator"
)

// Config carries the engine's dependencies. Oracle, Host and Store are
// required; everything else is optional with sensible defaults.
type Config struct {
	// Oracle is the LLM backend driving the decision cycle.
	Oracle llm.Provider

	// OracleName labels oracle metrics, e.g. "openai". Defaults to "oracle".
	OracleName string

	// Host dispatches the analysis tools offered to the oracle.
	Host *toolhost.Host

	// Store receives exactly one entry per analysis.
	Store contextstore.Store

	// Transcriber, when set, transcribes recordings for turns that supply
	// audio without a transcript.
	Transcriber stt.Transcriber

	// Metrics may be nil; the engine then runs without instrumentation.
	Metrics *observe.Metrics

	// Logger defaults to slog.Default.
	Logger *slog.Logger

	// MaxIterations bounds the decision cycle. Defaults to
	// DefaultMaxIterations.
	MaxIterations int

	// OracleTimeout bounds each oracle round-trip. Defaults to
	// DefaultOracleTimeout.
	OracleTimeout time.Duration

	// Temperature is passed through to the oracle.
	Temperature float64

	// SampleRate is the target rate for audio feature extraction. Defaults
	// to audio.DefaultSampleRate.
	SampleRate int
}

// Engine analyses caller turns. Safe for concurrent use; per-analysis state
// lives entirely on the stack of Analyze.
type Engine struct {
	oracle      llm.Provider
	oracleName  string
	host        *toolhost.Host
	store       contextstore.Store
	transcriber stt.Transcriber
	metrics     *observe.Metrics
	log         *slog.Logger

	extractor  *audio.FeatureExtractor
	classifier audio.Classifier

	maxIterations int
	oracleTimeout time.Duration
	temperature   float64
}

// New validates cfg and returns a ready Engine.
func New(cfg Config) (*Engine, error) {
	if cfg.Oracle == nil {
		return nil, errors.New("engine: config requires an oracle provider")
	}
	if cfg.Host == nil {
		return nil, errors.New("engine: config requires a tool host")
	}
	if cfg.Store == nil {
		return nil, errors.New("engine: config requires a context store")
	}
	if cfg.OracleName == "" {
		cfg.OracleName = "oracle"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.OracleTimeout <= 0 {
		cfg.OracleTimeout = DefaultOracleTimeout
	}
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = audio.DefaultSampleRate
	}
	return &Engine{
		oracle:        cfg.Oracle,
		oracleName:    cfg.OracleName,
		host:          cfg.Host,
		store:         cfg.Store,
		transcriber:   cfg.Transcriber,
		metrics:       cfg.Metrics,
		log:           cfg.Logger,
		extractor:     audio.NewFeatureExtractor(cfg.SampleRate),
		classifier:    audio.Classifier{},
		maxIterations: cfg.MaxIterations,
		oracleTimeout: cfg.OracleTimeout,
		temperature:   cfg.Temperature,
	}, nil
}

// Input is one caller turn. At least one of Text and AudioPath must be set.
type Input struct {
	// Text is the caller's transcript, possibly empty when audio is given.
	Text string

	// AudioPath points at a WAV recording of the turn, or is empty.
	AudioPath string

	// CallTime is the offset in seconds since call start, when known.
	CallTime *float64
}

// Result is the outcome of one analysis.
type Result struct {
	// Judgment is the final emotion assessment. Always populated; on any
	// oracle failure it is the neutral fallback.
	Judgment emotion.Judgment

	// AudioJudgment is the audio classifier's independent assessment, nil
	// when the turn had no audio.
	AudioJudgment *emotion.Judgment

	// Features holds the extracted audio descriptors, nil without audio.
	Features *emotion.AudioFeatures

	// Transcript is the text that was analysed, including any transcription
	// performed by the engine.
	Transcript string

	// Fallback reports whether the judgment is the degraded neutral default.
	Fallback bool
}

// artifacts accumulates the side outputs of one analysis: the audio
// classification from the audio phase plus the raw result text of each
// tracked tool. A field stays empty when its producing step never ran.
type artifacts struct {
	audioClassification string
	lexiconScores       string
	temporalAdd         string
	temporalTrend       string
	crossModal          string
}

// record routes a successful tool result into its artifact slot. Results from
// tools the engine does not track, such as external MCP tools, stay in the
// conversation only.
func (a *artifacts) record(tool, content string) {
	switch tool {
	case toolLexicon:
		a.lexiconScores = content
	case toolTemporalAdd:
		a.temporalAdd = content
	case toolTemporalTrend:
		a.temporalTrend = content
	case toolCrossModal:
		a.crossModal = content
	}
}

// summary renders the produced artifacts as a pipe-separated string in a
// fixed order, or "" when no artifact was produced.
func (a *artifacts) summary() string {
	var parts []string
	for _, p := range []struct{ label, content string }{
		{"audio_classification", a.audioClassification},
		{"lexicon_scores", a.lexiconScores},
		{"temporal_add", a.temporalAdd},
		{"temporal_trend", a.temporalTrend},
		{"cross_modal_validation", a.crossModal},
	} {
		if p.content != "" {
			parts = append(parts, p.label+": "+p.content)
		}
	}
	return strings.Join(parts, " | ")
}

// Analyze assesses one caller turn. It returns an error only for invalid
// input; oracle, tool and audio failures all degrade to a fallback judgment.
// Exactly one context-store entry is written per call.
func (e *Engine) Analyze(ctx context.Context, in Input) (*Result, error) {
	if strings.TrimSpace(in.Text) == "" && in.AudioPath == "" {
		return nil, errors.New("engine: input requires text or an audio path")
	}

	start := time.Now()
	if e.metrics != nil {
		e.metrics.ActiveAnalyses.Add(ctx, 1)
		defer e.metrics.ActiveAnalyses.Add(ctx, -1)
		defer func() {
			e.metrics.AnalysisDuration.Record(ctx, time.Since(start).Seconds())
		}()
	}

	res := &Result{Transcript: in.Text}
	e.audioPhase(ctx, in, res)

	arts := &artifacts{audioClassification: marshalOrEmpty(res.AudioJudgment)}
	judgment, failure := e.decisionCycle(ctx, in, res, arts)
	res.Fallback = failure != nil

	if s := arts.summary(); s != "" {
		if judgment.Reasoning != "" {
			judgment.Reasoning += " | "
		}
		judgment.Reasoning += s
	}
	judgment.AnalysisTime = time.Now().UTC()
	judgment.CallTime = in.CallTime
	res.Judgment = judgment

	e.persist(res, arts, failure)

	e.metrics.RecordJudgment(ctx, string(judgment.PrimaryEmotion), string(judgment.Intensity))
	if res.Fallback {
		e.metrics.RecordFallback(ctx, "oracle")
	}
	e.log.Info("analysis complete",
		"emotion", judgment.PrimaryEmotion,
		"intensity", judgment.Intensity,
		"confidence", judgment.Confidence,
		"fallback", res.Fallback,
		"duration", time.Since(start))
	return res, nil
}

// audioPhase extracts features, classifies them and, when the turn has no
// transcript, attempts transcription. It never fails the analysis.
func (e *Engine) audioPhase(ctx context.Context, in Input, res *Result) {
	if in.AudioPath == "" {
		return
	}

	f := e.extractor.Extract(in.AudioPath)
	j := e.classifier.Classify(f)
	j.CallTime = in.CallTime
	res.Features = &f
	res.AudioJudgment = &j

	if strings.TrimSpace(res.Transcript) != "" || e.transcriber == nil {
		return
	}
	sttStart := time.Now()
	tr, err := e.transcriber.Transcribe(ctx, in.AudioPath)
	if e.metrics != nil {
		e.metrics.STTDuration.Record(ctx, time.Since(sttStart).Seconds())
	}
	if err != nil {
		e.log.Warn("transcription failed, continuing without transcript",
			"path", in.AudioPath, "error", err)
		return
	}
	res.Transcript = tr.Text
}

// decisionCycle runs the bounded tool-calling loop, filling arts with the
// tracked tool results as they arrive. The returned error is non-nil exactly
// when the judgment is the fallback, and records the cause.
func (e *Engine) decisionCycle(ctx context.Context, in Input, res *Result, arts *artifacts) (emotion.Judgment, error) {
	defs := e.host.AvailableTools()
	msgs := []llm.Message{{
		Role:    "user",
		Content: buildEmotionPrompt(res.Transcript, res.AudioJudgment, res.Features, in.CallTime),
	}}

	for i := 0; i < e.maxIterations; i++ {
		resp, err := e.complete(ctx, msgs, defs)
		if err != nil {
			e.log.Error("oracle request failed", "iteration", i, "error", err)
			failure := fmt.Errorf("oracle request failed: %w", err)
			return fallbackJudgment(failure), failure
		}

		if len(resp.ToolCalls) == 0 {
			j, perr := parseJudgment(resp.Content)
			if perr != nil {
				e.log.Warn("unparseable oracle response", "error", perr)
				failure := fmt.Errorf("failed to parse model response: %w", perr)
				return fallbackJudgment(failure), failure
			}
			return j, nil
		}

		msgs = append(msgs, llm.Message{
			Role:      "assistant",
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		})
		for _, call := range resp.ToolCalls {
			msgs = append(msgs, e.executeCall(ctx, call, arts))
		}
	}

	failure := fmt.Errorf("decision cycle limit (%d) reached without a final judgment", e.maxIterations)
	e.log.Warn("decision cycle exhausted", "limit", e.maxIterations)
	return fallbackJudgment(failure), failure
}

// complete performs one oracle round-trip under the configured timeout.
func (e *Engine) complete(ctx context.Context, msgs []llm.Message, defs []llm.ToolDefinition) (*llm.CompletionResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, e.oracleTimeout)
	defer cancel()

	start := time.Now()
	resp, err := e.oracle.Complete(cctx, llm.CompletionRequest{
		Messages:     msgs,
		Tools:        defs,
		Temperature:  e.temperature,
		SystemPrompt: emotionSystemPrompt,
	})
	if e.metrics != nil {
		e.metrics.OracleDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		e.metrics.RecordOracleRequest(ctx, e.oracleName, "error")
		e.metrics.RecordOracleError(ctx, e.oracleName)
		return nil, err
	}
	e.metrics.RecordOracleRequest(ctx, e.oracleName, "ok")
	return resp, nil
}

// executeCall dispatches one requested tool call and turns its outcome into
// the observation message appended to the conversation. Unknown tools and
// tool failures become error observations so the oracle can recover; they
// never abort the cycle.
func (e *Engine) executeCall(ctx context.Context, call llm.ToolCall, arts *artifacts) llm.Message {
	start := time.Now()
	result, err := e.host.ExecuteTool(ctx, call.Name, call.Arguments)
	if e.metrics != nil {
		e.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds())
	}

	obs := llm.Message{Role: "tool", ToolCallID: call.ID}
	switch {
	case err != nil:
		e.log.Warn("tool call skipped", "tool", call.Name, "error", err)
		e.metrics.RecordToolCall(ctx, call.Name, "error")
		obs.Content = fmt.Sprintf("Error: %v", err)
	case result.IsError:
		e.log.Warn("tool reported failure", "tool", call.Name, "result", result.Content)
		e.metrics.RecordToolCall(ctx, call.Name, "error")
		obs.Content = fmt.Sprintf("Error: %s", result.Content)
	default:
		e.metrics.RecordToolCall(ctx, call.Name, "ok")
		arts.record(call.Name, result.Content)
		obs.Content = result.Content
	}
	return obs
}

// persist writes the single context-store entry for this analysis. The
// payload carries the judgment's fields plus every side artifact; artifacts
// that were never produced are recorded as empty strings.
func (e *Engine) persist(res *Result, arts *artifacts, failure error) {
	j := res.Judgment
	payload := map[string]any{
		"primary_emotion":        string(j.PrimaryEmotion),
		"secondary_emotion":      string(j.SecondaryEmotion),
		"intensity":              string(j.Intensity),
		"confidence_score":       j.Confidence,
		"reasoning":              j.Reasoning,
		"urgency":                j.Urgency,
		"transcript":             res.Transcript,
		"audio_classification":   arts.audioClassification,
		"lexicon_scores":         arts.lexiconScores,
		"temporal_add":           arts.temporalAdd,
		"temporal_trend":         arts.temporalTrend,
		"cross_modal_validation": arts.crossModal,
	}
	if j.CallTime != nil {
		payload["call_time"] = *j.CallTime
	}
	if failure != nil {
		payload["error"] = failure.Error()
	}
	e.store.Add(contextstore.Entry{
		Producer:   EmotionProducer,
		Payload:    payload,
		RecordedAt: time.Now().UTC(),
	})
}

// fallbackJudgment is the degraded default returned when the oracle cannot
// produce a parseable judgment. The cause is preserved in the reasoning.
func fallbackJudgment(cause error) emotion.Judgment {
	return emotion.Judgment{
		PrimaryEmotion: emotion.Neutral,
		Intensity:      emotion.Medium,
		Confidence:     0.5,
		Reasoning:      fmt.Sprintf("Failed to produce a model judgment: %v", cause),
	}
}

func marshalOrEmpty(j *emotion.Judgment) string {
	if j == nil {
		return ""
	}
	b, err := json.Marshal(j)
	if err != nil {
		return ""
	}
	return string(b)
}
