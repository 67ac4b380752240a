// Package whisper provides a one-shot stt.Transcriber backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/evakess/callsense/pkg/audio"
	"github.com/evakess/callsense/pkg/provider/stt"
)

const defaultLanguage = "en"

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcriber implements stt.Transcriber using whisper.cpp Go bindings (CGO),
// eliminating HTTP overhead entirely. The model is loaded once at startup and
// shared across all transcriptions.
type Transcriber struct {
	model    whisperlib.Model
	language string

	// Inference contexts are not thread-safe; one runs at a time.
	mu sync.Mutex
}

// Option is a functional option for configuring a Transcriber.
type Option func(*Transcriber)

// WithLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(t *Transcriber) { t.language = lang }
}

// New creates a Transcriber that loads the whisper.cpp model from the given
// file path. The caller must call Close when the transcriber is no longer
// needed.
func New(modelPath string, opts ...Option) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	t := &Transcriber{
		model:    model,
		language: defaultLanguage,
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// Close releases the whisper model. Must be called when the transcriber is no
// longer needed.
func (t *Transcriber) Close() error {
	if t.model != nil {
		return t.model.Close()
	}
	return nil
}

// Transcribe decodes the WAV recording at path, normalises it to 16 kHz mono,
// and runs whisper.cpp inference over the whole clip.
func (t *Transcriber) Transcribe(ctx context.Context, path string) (stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return stt.Result{}, fmt.Errorf("whisper: context already cancelled: %w", err)
	}

	pcm, rate, channels, err := audio.DecodeWAVFile(path)
	if err != nil {
		return stt.Result{}, fmt.Errorf("whisper: decode %q: %w", path, err)
	}
	if channels == 2 {
		pcm = audio.StereoToMono(pcm)
	}
	pcm = audio.ResampleMono16(pcm, rate, audio.DefaultSampleRate)

	text, err := t.infer(pcmToFloat32(pcm))
	if err != nil {
		return stt.Result{}, err
	}
	return stt.Result{Text: text, Language: t.language}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (t *Transcriber) infer(samples []float32) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// Each context is NOT thread-safe, but the model can be shared.
	wctx, err := t.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}

	if err := wctx.SetLanguage(t.language); err != nil {
		slog.Warn("whisper: failed to set language, using default", "language", t.language, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
