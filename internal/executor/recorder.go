package executor

import (
	"context"
	"strings"
	"sync"
)

// Call is one command seen by a Recorder.
type Call struct {
	Program string
	Args    []string
}

// String renders the call as a command line.
func (c Call) String() string {
	return strings.Join(append([]string{c.Program}, c.Args...), " ")
}

// Handler answers a recorded call.
type Handler func(call Call) (*Result, error)

// Recorder is a Runner that records calls and answers them through a Handler.
// It backs tests of the CLI-driven collaborators.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	handler Handler
}

// NewRecorder returns a Recorder answering with handler, or with empty
// successful results when handler is nil.
func NewRecorder(handler Handler) *Recorder {
	return &Recorder{handler: handler}
}

// Run records the call and delegates to the handler.
func (r *Recorder) Run(_ context.Context, program string, args ...string) (*Result, error) {
	call := Call{Program: program, Args: append([]string(nil), args...)}

	r.mu.Lock()
	r.calls = append(r.calls, call)
	r.mu.Unlock()

	if r.handler == nil {
		return &Result{}, nil
	}

	return r.handler(call)
}

// Calls returns the recorded calls.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]Call(nil), r.calls...)
}
