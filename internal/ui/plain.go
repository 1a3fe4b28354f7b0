package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer prints one line per tenth of progress, for pipes and CI.
type PlainRenderer struct {
	mu       sync.Mutex
	out      io.Writer
	lastTick int
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output, lastTick: -1}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// Update implements Renderer.
func (r *PlainRenderer) Update(done, total int) {
	if total <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tick := min(done*10/total, 10)
	if tick == r.lastTick {
		return
	}
	r.lastTick = tick
	_, _ = fmt.Fprintf(r.out, "[INDEX] %d/%d (%d%%)\n", done, total, tick*10)
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, _ = fmt.Fprintf(r.out, "Complete: %d tasks indexed in %s (%d batches)\n",
		s.Tasks, s.Duration.Round(100*time.Millisecond), s.Batches)
	if s.Cleared > 0 {
		_, _ = fmt.Fprintf(r.out, "Cleared:  %d stale records\n", s.Cleared)
	}
	if s.Model != "" {
		_, _ = fmt.Fprintf(r.out, "Backend:  %s (%s, %d dims)\n", s.Backend, s.Model, s.Dimensions)
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}

var _ Renderer = (*PlainRenderer)(nil)
