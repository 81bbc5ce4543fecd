package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/mmcdole/hoard/internal/domain"
)

// Plain writes one line per message and per finished item. Used when stdout
// is not a terminal.
type Plain struct {
	mu sync.Mutex
	w  io.Writer
}

// NewPlain creates a line reporter writing to w
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

func (p *Plain) Batch(label string, total int) domain.Batch {
	return &plainBatch{plain: p, label: label, total: total}
}

func (p *Plain) Printf(format string, args ...any) {
	p.println(fmt.Sprintf(format, args...))
}

func (p *Plain) println(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, line)
}

type plainBatch struct {
	plain *Plain
	label string
	total int

	mu   sync.Mutex
	done int
}

func (b *plainBatch) Increment() {
	b.mu.Lock()
	b.done++
	done := b.done
	b.mu.Unlock()
	b.plain.println(fmt.Sprintf("[%d/%d] %s", done, b.total, b.label))
}

func (b *plainBatch) Track(string, int64, int64) domain.FileTracker {
	return nopTracker{}
}

// Nop discards all progress
type Nop struct{}

func (Nop) Batch(string, int) domain.Batch { return nopBatch{} }
func (Nop) Printf(string, ...any)          {}

type nopBatch struct{}

func (nopBatch) Increment()                                    {}
func (nopBatch) Track(string, int64, int64) domain.FileTracker { return nopTracker{} }

type nopTracker struct{}

func (nopTracker) Add(int) {}
func (nopTracker) Done()   {}
