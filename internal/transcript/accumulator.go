package transcript

import (
	"strings"
	"sync"
)

// Accumulator assembles transcription fragments into the session transcript.
// Fragments are appended in arrival order, each followed by a single space,
// and are never revised afterwards.
type Accumulator struct {
	mu        sync.RWMutex
	builder   strings.Builder
	fragments []string
}

func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Append adds one fragment to the transcript. Empty fragments, including
// those recovered from malformed payloads, still append their trailing space.
func (a *Accumulator) Append(text string) {
	a.mu.Lock()
	a.builder.WriteString(text)
	a.builder.WriteString(" ")
	a.fragments = append(a.fragments, text)
	a.mu.Unlock()
}

// String returns the transcript accumulated so far.
func (a *Accumulator) String() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.builder.String()
}

// Fragments returns a copy of the ordered fragment list.
func (a *Accumulator) Fragments() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]string(nil), a.fragments...)
}

// Len reports the number of fragments appended.
func (a *Accumulator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.fragments)
}

// Reset discards the transcript for a fresh session.
func (a *Accumulator) Reset() {
	a.mu.Lock()
	a.builder.Reset()
	a.fragments = nil
	a.mu.Unlock()
}
