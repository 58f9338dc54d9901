package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
)

// Spinner is a blocking-free line spinner for short CLI waits.
type Spinner struct {
	message string
	frames  spinner.Spinner
	done    chan struct{}
	once    sync.Once
}

func newSpinner(message string, frames spinner.Spinner) *Spinner {
	return &Spinner{
		message: message,
		frames:  frames,
		done:    make(chan struct{}),
	}
}

func (s *Spinner) Start() {
	go func() {
		ticker := time.NewTicker(s.frames.FPS)
		defer ticker.Stop()
		for i := 0; ; i++ {
			frame := SpinnerStyle.Render(s.frames.Frames[i%len(s.frames.Frames)])
			fmt.Printf("\r%s %s", frame, s.message)

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop halts the spinner and clears its line. It is safe to call twice.
func (s *Spinner) Stop() {
	s.once.Do(func() {
		close(s.done)
		fmt.Print("\r\033[K")
	})
}

// RunSpinner starts a general loading spinner and returns its stop function.
func RunSpinner(message string) func() {
	return run(message, spinner.Dot)
}

// RunConnectionSpinner is RunSpinner for network waits.
func RunConnectionSpinner(message string) func() {
	return run(message, spinner.Globe)
}

// RunWaitingSpinner is RunSpinner for waits on the other peer.
func RunWaitingSpinner(message string) func() {
	return run(message, spinner.Points)
}

func run(message string, frames spinner.Spinner) func() {
	sp := newSpinner(message, frames)
	sp.Start()
	return sp.Stop
}
