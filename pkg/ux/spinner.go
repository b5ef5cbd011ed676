// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// spinnerInterval is the frame period of a rich spinner.
const spinnerInterval = 80 * time.Millisecond

// Spinner shows progress for a long step such as a full sync.
//
// # Description
//
// In rich mode the spinner animates on a single line and erases it on
// Stop. In plain mode it prints one PENDING line on Start and nothing
// else, so CI logs stay readable.
type Spinner struct {
	w        io.Writer
	mode     Mode
	message  string
	interval time.Duration

	mu         sync.Mutex
	running    bool
	frameIndex int
	stop       chan struct{}
	done       chan struct{}
}

// newSpinner returns a spinner writing to w in mode.
func newSpinner(w io.Writer, mode Mode, message string) *Spinner {
	return &Spinner{
		w:        w,
		mode:     mode,
		message:  message,
		interval: spinnerInterval,
	}
}

// Spinner returns a spinner on the printer's status stream. It uses the
// error stream so that stdout carries only results.
func (p *Printer) Spinner(message string) *Spinner {
	return newSpinner(p.err, p.mode, message)
}

// Start begins the animation. Starting a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	if s.mode != ModeRich {
		fmt.Fprintf(s.w, "%s: %s\n", IconPending.plainTag(), s.message)
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.animate(s.stop, s.done)
}

func (s *Spinner) animate(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.render()
	for {
		select {
		case <-stop:
			s.mu.Lock()
			fmt.Fprint(s.w, "\r\033[K")
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.render()
		}
	}
}

func (s *Spinner) render() {
	s.mu.Lock()
	defer s.mu.Unlock()
	frame := spinnerFrames[s.frameIndex%len(spinnerFrames)]
	s.frameIndex++
	fmt.Fprintf(s.w, "\r%s %s", Styles.Code.Render(frame), s.message)
}

// Stop ends the animation and clears its line. Stopping a spinner that is
// not running is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// WithSpinner runs fn while a spinner shows message.
func WithSpinner(p *Printer, message string, fn func() error) error {
	s := p.Spinner(message)
	s.Start()
	defer s.Stop()
	return fn()
}
