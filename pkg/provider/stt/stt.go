// Package stt defines the Transcriber interface for Speech-to-Text backends.
//
// Unlike streaming dispatch pipelines, emotion assessment works on recorded
// call clips, so the abstraction is a one-shot transcription: hand the backend
// a recording, get the full text back. Implementations must be safe for
// concurrent use.
package stt

import "context"

// Result is the outcome of transcribing one recording.
type Result struct {
	// Text is the transcribed speech content, empty when the clip contained
	// no recognisable speech.
	Text string

	// Language is the BCP-47 language code the backend used or detected.
	Language string
}

// Transcriber is the abstraction over any one-shot STT backend.
type Transcriber interface {
	// Transcribe reads the audio file at path and returns its transcription.
	// Returns an error if the file cannot be decoded or the backend fails;
	// a silent clip is not an error.
	Transcribe(ctx context.Context, path string) (Result, error)
}
