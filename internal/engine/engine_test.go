package engine

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/evakess/callsense/internal/contextstore"
	"github.com/evakess/callsense/internal/emotion"
	"github.com/evakess/callsense/internal/toolhost"
	"github.com/evakess/callsense/internal/tools/crossmodal"
	"github.com/evakess/callsense/internal/tools/lexicon"
	"github.com/evakess/callsense/internal/tools/temporal"
	"github.com/evakess/callsense/pkg/provider/llm"
	llmmock "github.com/evakess/callsense/pkg/provider/llm/mock"
	"github.com/evakess/callsense/pkg/provider/stt"
	sttmock "github.com/evakess/callsense/pkg/provider/stt/mock"
)

const finalJudgmentJSON = `{
	"primary_emotion": "fear",
	"secondary_emotion": "distress",
	"intensity": "high",
	"confidence": 0.9,
	"reasoning": "Caller expresses fear and asks for help.",
	"urgency": true
}`

func newTestHost(t *testing.T) *toolhost.Host {
	t.Helper()
	h := toolhost.New()
	if err := h.RegisterBuiltins(lexicon.Tools()); err != nil {
		t.Fatalf("register lexicon tools: %v", err)
	}
	if err := h.RegisterBuiltins(temporal.Tools(temporal.NewTracker())); err != nil {
		t.Fatalf("register temporal tools: %v", err)
	}
	if err := h.RegisterBuiltins(crossmodal.Tools()); err != nil {
		t.Fatalf("register crossmodal tools: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, contextstore.Store) {
	t.Helper()
	store, err := contextstore.NewFileStore(t.TempDir(), "test-session")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cfg.Store = store
	if cfg.Host == nil {
		cfg.Host = newTestHost(t)
	}
	cfg.Logger = slog.New(slog.DiscardHandler)
	eng, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return eng, store
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{}
	host := toolhost.New()
	defer host.Close()
	store, err := contextstore.NewFileStore(t.TempDir(), "s")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing oracle", Config{Host: host, Store: store}},
		{"missing host", Config{Oracle: oracle, Store: store}},
		{"missing store", Config{Oracle: oracle, Host: host}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := New(tt.cfg); err == nil {
				t.Fatal("expected a config error, got nil")
			}
		})
	}
}

func TestAnalyzeParsesJudgment(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{{Content: finalJudgmentJSON}},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	res, err := eng.Analyze(context.Background(), Input{Text: "There is a fire in my kitchen, please help!"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Fallback {
		t.Error("Fallback = true, want false")
	}
	j := res.Judgment
	if j.PrimaryEmotion != emotion.Fear {
		t.Errorf("PrimaryEmotion = %q, want %q", j.PrimaryEmotion, emotion.Fear)
	}
	if j.SecondaryEmotion != emotion.Distress {
		t.Errorf("SecondaryEmotion = %q, want %q", j.SecondaryEmotion, emotion.Distress)
	}
	if j.Intensity != emotion.High {
		t.Errorf("Intensity = %q, want %q", j.Intensity, emotion.High)
	}
	if j.Confidence != 0.9 {
		t.Errorf("Confidence = %v, want 0.9", j.Confidence)
	}
	if !j.Urgency {
		t.Error("Urgency = false, want true")
	}
	if j.AnalysisTime.IsZero() {
		t.Error("AnalysisTime not stamped")
	}

	entries := store.Entries(EmotionProducer)
	if len(entries) != 1 {
		t.Fatalf("store has %d emotion entries, want 1", len(entries))
	}
	payload := entries[0].Payload
	if payload["primary_emotion"] != "fear" {
		t.Errorf("payload primary_emotion = %v, want fear", payload["primary_emotion"])
	}
	for _, key := range []string{"lexicon_scores", "temporal_add", "temporal_trend", "cross_modal_validation", "audio_classification"} {
		if payload[key] != "" {
			t.Errorf("payload %s = %v, want empty (no artifact produced)", key, payload[key])
		}
	}
	if _, ok := payload["error"]; ok {
		t.Error("payload carries an error key on a successful analysis")
	}
}

// A dead oracle must never abort an analysis: the engine degrades to the
// neutral default and still records exactly one context entry.
func TestAnalyzeOracleFailureFallsBack(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{CompleteErr: errors.New("connection refused")}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	res, err := eng.Analyze(context.Background(), Input{Text: "I'm really scared, please help me!"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if !res.Fallback {
		t.Error("Fallback = false, want true")
	}
	j := res.Judgment
	if j.PrimaryEmotion != emotion.Neutral {
		t.Errorf("PrimaryEmotion = %q, want %q", j.PrimaryEmotion, emotion.Neutral)
	}
	if j.Intensity != emotion.Medium {
		t.Errorf("Intensity = %q, want %q", j.Intensity, emotion.Medium)
	}
	if j.Confidence != 0.5 {
		t.Errorf("Confidence = %v, want 0.5", j.Confidence)
	}
	if !strings.Contains(j.Reasoning, "connection refused") {
		t.Errorf("Reasoning = %q, want the failure cause recorded", j.Reasoning)
	}

	entries := store.Entries("")
	if len(entries) != 1 {
		t.Fatalf("store has %d entries, want exactly 1", len(entries))
	}
	if entries[0].Producer != EmotionProducer {
		t.Errorf("producer = %q, want %q", entries[0].Producer, EmotionProducer)
	}
	if errVal, ok := entries[0].Payload["error"]; !ok || errVal == "" {
		t.Error("payload missing the error field on fallback")
	}
}

func TestAnalyzeToolCallingLoop(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{
				ID:        "call_1",
				Name:      "EmotionLexiconScorer",
				Arguments: `{"text": "I am scared and need help"}`,
			}}},
			{Content: finalJudgmentJSON},
		},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	res, err := eng.Analyze(context.Background(), Input{Text: "I am scared and need help"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got := len(oracle.CompleteCalls); got != 2 {
		t.Fatalf("oracle saw %d calls, want 2", got)
	}

	// The second request must carry the assistant tool call and the tool
	// observation in order.
	msgs := oracle.CompleteCalls[1].Req.Messages
	if len(msgs) != 3 {
		t.Fatalf("second request has %d messages, want 3", len(msgs))
	}
	if msgs[1].Role != "assistant" || len(msgs[1].ToolCalls) != 1 {
		t.Errorf("message 1 = %+v, want assistant with one tool call", msgs[1])
	}
	if msgs[2].Role != "tool" || msgs[2].ToolCallID != "call_1" {
		t.Errorf("message 2 = %+v, want tool observation for call_1", msgs[2])
	}
	if !strings.Contains(msgs[2].Content, "fear") {
		t.Errorf("tool observation %q does not carry lexicon scores", msgs[2].Content)
	}

	if !strings.Contains(res.Judgment.Reasoning, "lexicon_scores:") {
		t.Errorf("Reasoning = %q, want the lexicon artifact summarised", res.Judgment.Reasoning)
	}

	entries := store.Entries(EmotionProducer)
	if len(entries) != 1 {
		t.Fatalf("store has %d emotion entries, want 1", len(entries))
	}
	if entries[0].Payload["lexicon_scores"] == "" {
		t.Error("payload lexicon_scores empty, want the tool output")
	}
}

func TestAnalyzeUnknownToolSkipped(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{ID: "call_1", Name: "NoSuchTool", Arguments: `{}`}}},
			{Content: finalJudgmentJSON},
		},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	res, err := eng.Analyze(context.Background(), Input{Text: "help"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Fallback {
		t.Error("an unknown tool must not degrade the analysis")
	}
	msgs := oracle.CompleteCalls[1].Req.Messages
	obs := msgs[len(msgs)-1]
	if obs.Role != "tool" || !strings.Contains(obs.Content, "Error") {
		t.Errorf("observation = %+v, want a tool error message", obs)
	}
	if store.Entries(EmotionProducer)[0].Payload["lexicon_scores"] != "" {
		t.Error("no artifact should have been recorded")
	}
}

func TestAnalyzeCycleLimit(t *testing.T) {
	t.Parallel()

	// A single scripted response repeats forever, so the oracle keeps
	// requesting tools and never commits to a judgment.
	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{
			{ToolCalls: []llm.ToolCall{{
				ID:        "call_1",
				Name:      "EmotionLexiconScorer",
				Arguments: `{"text": "help"}`,
			}}},
		},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle, MaxIterations: 3})

	res, err := eng.Analyze(context.Background(), Input{Text: "help"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got := len(oracle.CompleteCalls); got != 3 {
		t.Errorf("oracle saw %d calls, want the configured limit 3", got)
	}
	if !res.Fallback {
		t.Error("Fallback = false, want true after cycle exhaustion")
	}
	if res.Judgment.PrimaryEmotion != emotion.Neutral || res.Judgment.Confidence != 0.5 {
		t.Errorf("judgment = %+v, want the neutral fallback", res.Judgment)
	}
	if !strings.Contains(res.Judgment.Reasoning, "decision cycle limit") {
		t.Errorf("Reasoning = %q, want the exhaustion recorded", res.Judgment.Reasoning)
	}
	// Artifacts produced before exhaustion still reach the store.
	if store.Entries(EmotionProducer)[0].Payload["lexicon_scores"] == "" {
		t.Error("payload lexicon_scores empty, want the pre-exhaustion artifact")
	}
}

func TestAnalyzeUnparseableResponse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
	}{
		{"prose only", "I am sorry, I cannot help with that."},
		{"invalid emotion", `{"primary_emotion": "joy", "intensity": "high", "confidence": 0.9, "reasoning": "x"}`},
		{"confidence out of range", `{"primary_emotion": "fear", "intensity": "high", "confidence": 1.5, "reasoning": "x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			oracle := &llmmock.Provider{
				Responses: []*llm.CompletionResponse{{Content: tt.content}},
			}
			eng, _ := newTestEngine(t, Config{Oracle: oracle})

			res, err := eng.Analyze(context.Background(), Input{Text: "help"})
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if !res.Fallback {
				t.Error("Fallback = false, want true")
			}
			if res.Judgment.PrimaryEmotion != emotion.Neutral || res.Judgment.Intensity != emotion.Medium {
				t.Errorf("judgment = %+v, want neutral/medium", res.Judgment)
			}
		})
	}
}

// Undecodable audio must never abort the analysis: the classifier sees zero
// features, which land on the low-pitch branch.
func TestAnalyzeAudioPhaseNeverAborts(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{{Content: finalJudgmentJSON}},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	res, err := eng.Analyze(context.Background(), Input{
		Text:      "something is wrong",
		AudioPath: "/nonexistent/clip.wav",
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.AudioJudgment == nil {
		t.Fatal("AudioJudgment = nil, want the classifier fallback")
	}
	if res.AudioJudgment.PrimaryEmotion != emotion.Sadness {
		t.Errorf("audio PrimaryEmotion = %q, want sadness for zero features", res.AudioJudgment.PrimaryEmotion)
	}
	if res.AudioJudgment.Intensity != emotion.Medium || res.AudioJudgment.Confidence != 0.70 {
		t.Errorf("audio judgment = %s/%.2f, want medium/0.70",
			res.AudioJudgment.Intensity, res.AudioJudgment.Confidence)
	}
	if res.Features == nil {
		t.Fatal("Features = nil, want zero features")
	}

	prompt := oracle.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "Audio analysis") {
		t.Errorf("prompt %q does not include the audio block", prompt)
	}
	if !strings.Contains(res.Judgment.Reasoning, "audio_classification:") {
		t.Errorf("reasoning %q does not summarise the audio classification", res.Judgment.Reasoning)
	}
	if store.Entries(EmotionProducer)[0].Payload["audio_classification"] == "" {
		t.Error("payload audio_classification empty, want the classifier judgment")
	}
}

func TestAnalyzeForwardsCallTime(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{{Content: finalJudgmentJSON}},
	}
	eng, store := newTestEngine(t, Config{Oracle: oracle})

	ct := 12.0
	res, err := eng.Analyze(context.Background(), Input{Text: "please hurry", CallTime: &ct})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	prompt := oracle.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, "CALL TIME: 12.0 seconds") {
		t.Errorf("prompt %q does not carry the call time", prompt)
	}
	if res.Judgment.CallTime == nil || *res.Judgment.CallTime != ct {
		t.Errorf("judgment CallTime = %v, want %v", res.Judgment.CallTime, ct)
	}
	if got := store.Entries(EmotionProducer)[0].Payload["call_time"]; got != ct {
		t.Errorf("payload call_time = %v, want %v", got, ct)
	}
}

func TestAnalyzeTranscribesAudioOnlyTurns(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{{Content: finalJudgmentJSON}},
	}
	transcriber := &sttmock.Transcriber{Result: stt.Result{Text: "help me please"}}
	eng, _ := newTestEngine(t, Config{Oracle: oracle, Transcriber: transcriber})

	res, err := eng.Analyze(context.Background(), Input{AudioPath: "/nonexistent/clip.wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if res.Transcript != "help me please" {
		t.Errorf("Transcript = %q, want the transcription result", res.Transcript)
	}
	if got := len(transcriber.Calls); got != 1 {
		t.Errorf("transcriber saw %d calls, want 1", got)
	}
	prompt := oracle.CompleteCalls[0].Req.Messages[0].Content
	if !strings.Contains(prompt, `MESSAGE: "help me please"`) {
		t.Errorf("prompt %q does not carry the transcript", prompt)
	}
}

func TestAnalyzeTranscriptionFailureIsNonFatal(t *testing.T) {
	t.Parallel()

	oracle := &llmmock.Provider{
		Responses: []*llm.CompletionResponse{{Content: finalJudgmentJSON}},
	}
	transcriber := &sttmock.Transcriber{Err: errors.New("model not loaded")}
	eng, _ := newTestEngine(t, Config{Oracle: oracle, Transcriber: transcriber})

	res, err := eng.Analyze(context.Background(), Input{AudioPath: "/nonexistent/clip.wav"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.Transcript != "" {
		t.Errorf("Transcript = %q, want empty after transcription failure", res.Transcript)
	}
	if res.Fallback {
		t.Error("a transcription failure must not degrade the analysis")
	}
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	eng, store := newTestEngine(t, Config{Oracle: &llmmock.Provider{}})

	if _, err := eng.Analyze(context.Background(), Input{Text: "   "}); err == nil {
		t.Fatal("expected an input error, got nil")
	}
	if got := len(store.Entries("")); got != 0 {
		t.Errorf("store has %d entries after rejected input, want 0", got)
	}
}
