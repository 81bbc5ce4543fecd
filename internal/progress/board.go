// Package progress implements domain.Reporter for the renderers.
package progress

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mmcdole/hoard/internal/domain"
)

const maxPendingMessages = 100

// BatchView is a point-in-time copy of one aggregate counter
type BatchView struct {
	Label string
	Done  int
	Total int
}

// FileView is a point-in-time copy of one active transfer
type FileView struct {
	Name    string
	Current int64
	Total   int64 // <= 0 when unknown
}

// Snapshot is everything a renderer needs for one frame
type Snapshot struct {
	Batches []BatchView
	Files   []FileView
}

// Board collects progress from concurrent tasks. Renderers poll Snapshot and
// DrainMessages instead of receiving one event per chunk.
type Board struct {
	mu       sync.Mutex
	batches  []*batchState
	files    map[int]*FileView
	nextID   int
	messages []string
}

type batchState struct {
	label string
	done  int
	total int
}

// NewBoard creates an empty board
func NewBoard() *Board {
	return &Board{files: make(map[int]*FileView)}
}

// Batch registers an aggregate counter
func (b *Board) Batch(label string, total int) domain.Batch {
	b.mu.Lock()
	defer b.mu.Unlock()
	st := &batchState{label: label, total: total}
	b.batches = append(b.batches, st)
	return &boardBatch{board: b, state: st}
}

// Printf queues a message for the renderer
func (b *Board) Printf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.messages = append(b.messages, msg)
	if len(b.messages) > maxPendingMessages {
		b.messages = b.messages[len(b.messages)-maxPendingMessages:]
	}
}

// DrainMessages returns and clears queued messages
func (b *Board) DrainMessages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	msgs := b.messages
	b.messages = nil
	return msgs
}

// Snapshot copies the current state. Files are ordered by start time.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Batches: make([]BatchView, 0, len(b.batches)),
		Files:   make([]FileView, 0, len(b.files)),
	}
	for _, st := range b.batches {
		snap.Batches = append(snap.Batches, BatchView{Label: st.label, Done: st.done, Total: st.total})
	}

	ids := make([]int, 0, len(b.files))
	for id := range b.files {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		snap.Files = append(snap.Files, *b.files[id])
	}
	return snap
}

type boardBatch struct {
	board *Board
	state *batchState
}

func (bb *boardBatch) Increment() {
	bb.board.mu.Lock()
	bb.state.done++
	bb.board.mu.Unlock()
}

func (bb *boardBatch) Track(name string, current, total int64) domain.FileTracker {
	b := bb.board
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.files[id] = &FileView{Name: name, Current: current, Total: total}
	return &boardTracker{board: b, id: id}
}

type boardTracker struct {
	board *Board
	id    int
	once  sync.Once
}

func (t *boardTracker) Add(n int) {
	t.board.mu.Lock()
	if f, ok := t.board.files[t.id]; ok {
		f.Current += int64(n)
	}
	t.board.mu.Unlock()
}

func (t *boardTracker) Done() {
	t.once.Do(func() {
		t.board.mu.Lock()
		delete(t.board.files, t.id)
		t.board.mu.Unlock()
	})
}
