// Package mock provides a test double for the stt.Transcriber interface.
package mock

import (
	"context"
	"sync"

	"github.com/evakess/callsense/pkg/provider/stt"
)

// Transcriber is a mock implementation of stt.Transcriber.
// Zero value returns an empty Result and nil error.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by every Transcribe call.
	Result stt.Result

	// Err, if non-nil, is returned as the error from Transcribe.
	Err error

	// Calls records the path of every Transcribe invocation in order.
	Calls []string
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns the configured Result and Err.
func (t *Transcriber) Transcribe(_ context.Context, path string) (stt.Result, error) {
	t.mu.Lock()
	t.Calls = append(t.Calls, path)
	t.mu.Unlock()
	if t.Err != nil {
		return stt.Result{}, t.Err
	}
	return t.Result, nil
}
