package output

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
)

// writerIsTTY reports whether w is an *os.File-like writer attached to a
// terminal. Buffers and pipes are never terminals.
func writerIsTTY(w io.Writer) bool {
	type fder interface {
		Fd() uintptr
	}
	if f, ok := w.(fder); ok {
		return isatty.IsTerminal(f.Fd())
	}
	return false
}

// Spinner shows an animated line while a git or network operation runs.
//
//	|  Syncing documentation (4s remaining)
//
// On a non-terminal writer the message is printed once and no goroutine is
// started, so piped output and hook logs stay clean.
type Spinner struct {
	mu      sync.Mutex
	message string
	frames  []string
	writer  io.Writer
	running bool
	done    chan struct{}
	timeout time.Duration
	timed   bool
	started time.Time
	width   int // widest line drawn, for clearing
}

// NewSpinner returns a stopped spinner writing to stdout.
func NewSpinner(message string) *Spinner {
	return &Spinner{
		message: message,
		frames:  []string{"|", "/", "-", "\\"},
		writer:  os.Stdout,
	}
}

// WithTimeout makes the spinner show the time left before timeout, or the
// elapsed time when timeout is 0. Call it before Start.
func (s *Spinner) WithTimeout(timeout time.Duration) *Spinner {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeout = timeout
	s.timed = true
	return s
}

// SetWriter redirects output.
func (s *Spinner) SetWriter(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writer = w
}

// Start begins the animation. Starting a running spinner does nothing.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.started = time.Now()
	s.done = make(chan struct{})

	if !writerIsTTY(s.writer) {
		fmt.Fprintf(s.writer, "%s...\n", s.message)
		return
	}
	go s.animate(s.done)
}

func (s *Spinner) animate(done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for i := 0; ; i++ {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			line := fmt.Sprintf("%s  %s", s.frames[i%len(s.frames)], s.text())
			if len(line) > s.width {
				s.width = len(line)
			}
			fmt.Fprintf(s.writer, "\r%s", line)
			s.mu.Unlock()
		}
	}
}

// text returns the message with timing. Must be called with s.mu held.
func (s *Spinner) text() string {
	if !s.timed {
		return s.message
	}
	elapsed := time.Since(s.started)
	if s.timeout > 0 {
		left := s.timeout - elapsed
		if left < 0 {
			left = 0
		}
		return fmt.Sprintf("%s (%ds remaining)", s.message, int(left.Seconds()))
	}
	return fmt.Sprintf("%s (%ds elapsed)", s.message, int(elapsed.Seconds()))
}

// Stop ends the animation and clears the line on a terminal.
func (s *Spinner) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.done)

	if writerIsTTY(s.writer) && s.width > 0 {
		fmt.Fprintf(s.writer, "\r%s\r", strings.Repeat(" ", s.width))
	}
}

// UpdateMessage replaces the message of a running spinner.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.message = message
}

// StopWithMessage stops the spinner and prints message on its own line.
func (s *Spinner) StopWithMessage(message string) {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	fmt.Fprintln(s.writer, message)
}

// Spin runs fn while a spinner with message is shown on w.
func Spin(w io.Writer, message string, timeout time.Duration, fn func() error) error {
	sp := NewSpinner(message)
	sp.SetWriter(w)
	if timeout > 0 {
		sp.WithTimeout(timeout)
	}
	sp.Start()
	defer sp.Stop()
	return fn()
}
