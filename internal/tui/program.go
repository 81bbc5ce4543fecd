package tui

import (
	"io"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
)

// Options configures a Renderer
type Options struct {
	// Interactive enables the terminal renderer and keyboard input.
	// Otherwise the program runs headless.
	Interactive bool
	OnInterrupt func()
	Output      io.Writer
}

// Renderer runs the progress view in the background
type Renderer struct {
	program *tea.Program
	exited  chan struct{}
	err     error
	aborted atomic.Bool
}

// Start launches the view. Signals are left to the caller.
func Start(source BoardSource, opts Options) *Renderer {
	progOpts := []tea.ProgramOption{tea.WithoutSignalHandler()}
	if opts.Output != nil {
		progOpts = append(progOpts, tea.WithOutput(opts.Output))
	}
	if !opts.Interactive {
		// No tty: avoid /dev/tty errors
		progOpts = append(progOpts, tea.WithInput(nil), tea.WithoutRenderer())
	}

	r := &Renderer{
		program: tea.NewProgram(NewModel(source, opts.OnInterrupt), progOpts...),
		exited:  make(chan struct{}),
	}

	go func() {
		defer close(r.exited)
		final, err := r.program.Run()
		r.err = err
		if m, ok := final.(Model); ok && m.Aborted() {
			r.aborted.Store(true)
		}
	}()
	return r
}

// Stop flushes pending messages, renders the final frame and waits for the
// program to exit.
func (r *Renderer) Stop() error {
	r.program.Send(DoneMsg{})
	<-r.exited
	return r.err
}

// Exited is closed once the program has returned
func (r *Renderer) Exited() <-chan struct{} {
	return r.exited
}

// Aborted reports whether the user quit the view before the run finished
func (r *Renderer) Aborted() bool {
	return r.aborted.Load()
}
