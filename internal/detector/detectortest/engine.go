// Package detectortest provides a scripted detector.Engine for tests.
package detectortest

import (
	"fmt"
	"sync"
)

// Anchor is one raw network prediction in input-pixel coordinates.
type Anchor struct {
	CX, CY, W, H float32
	ClassID      int
	Score        float32
}

// Engine returns the same scripted output for every input.
type Engine struct {
	NumClasses int
	Anchors    []Anchor
	Size       int
	Meta       map[string]string
	Err        error

	mu     sync.Mutex
	calls  int
	closed bool
}

func (e *Engine) Run(input []float32, size int) ([]float32, []int64, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()

	if e.Err != nil {
		return nil, nil, e.Err
	}
	if len(input) != 3*size*size {
		return nil, nil, fmt.Errorf("input holds %d values, want %d", len(input), 3*size*size)
	}

	attrs := 4 + e.NumClasses
	n := len(e.Anchors)
	out := make([]float32, attrs*n)
	for i, a := range e.Anchors {
		out[0*n+i] = a.CX
		out[1*n+i] = a.CY
		out[2*n+i] = a.W
		out[3*n+i] = a.H
		out[(4+a.ClassID)*n+i] = a.Score
	}
	return out, []int64{1, int64(attrs), int64(n)}, nil
}

func (e *Engine) InputSize() int {
	return e.Size
}

func (e *Engine) Metadata() map[string]string {
	return e.Meta
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// Calls reports how many times Run was invoked.
func (e *Engine) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}
