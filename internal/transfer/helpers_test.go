package transfer

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmcdole/hoard/internal/budget"
	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/source"
)

// dataServer serves /data/{path} with real Range semantics
type dataServer struct {
	*httptest.Server

	mu      sync.Mutex
	files   map[string][]byte
	ranges  []string
	served  int64
	delay   time.Duration
	handler func(w http.ResponseWriter, r *http.Request) bool

	active atomic.Int64
	worst  atomic.Int64
}

func newDataServer(t *testing.T) *dataServer {
	t.Helper()
	ds := &dataServer{files: make(map[string][]byte)}
	ds.Server = httptest.NewServer(http.HandlerFunc(ds.serve))
	t.Cleanup(ds.Close)
	return ds
}

func (ds *dataServer) add(path string, content []byte) {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.files[path] = content
}

func (ds *dataServer) serve(w http.ResponseWriter, r *http.Request) {
	cur := ds.active.Add(1)
	defer ds.active.Add(-1)
	for {
		m := ds.worst.Load()
		if cur <= m || ds.worst.CompareAndSwap(m, cur) {
			break
		}
	}

	ds.mu.Lock()
	ds.ranges = append(ds.ranges, r.Header.Get("Range"))
	handler := ds.handler
	ds.mu.Unlock()

	if handler != nil && handler(w, r) {
		return
	}
	if ds.delay > 0 {
		time.Sleep(ds.delay)
	}

	path, ok := strings.CutPrefix(r.URL.Path, "/data")
	ds.mu.Lock()
	content, found := ds.files[path]
	ds.mu.Unlock()
	if !ok || !found {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(&countingWriter{ResponseWriter: w, ds: ds}, r, path, time.Time{}, bytes.NewReader(content))
}

func (ds *dataServer) servedBytes() int64 {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.served
}

func (ds *dataServer) rangeHeaders() []string {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	return append([]string(nil), ds.ranges...)
}

func (ds *dataServer) reset() {
	ds.mu.Lock()
	defer ds.mu.Unlock()
	ds.ranges = nil
	ds.served = 0
}

type countingWriter struct {
	http.ResponseWriter
	ds *dataServer
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.ResponseWriter.Write(p)
	c.ds.mu.Lock()
	c.ds.served += int64(n)
	c.ds.mu.Unlock()
	return n, err
}

func payload(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i*7) + seed
	}
	return b
}

type harness struct {
	srv     *dataServer
	out     string
	creator domain.Creator
	board   *progress.Board
	budget  *budget.Budget
	mgr     *Manager
}

func newHarness(t *testing.T, permits int) *harness {
	t.Helper()
	srv := newDataServer(t)
	out := t.TempDir()

	creator, err := source.ResolveCreator(srv.URL + "/patreon/user/artist")
	require.NoError(t, err)

	client, err := source.NewClient(source.Options{Retries: 0, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	failures, err := OpenFailureLog(filepath.Join(out, FailureLogName))
	require.NoError(t, err)

	board := progress.NewBoard()
	b := budget.New(permits)
	return &harness{
		srv:     srv,
		out:     out,
		creator: creator,
		board:   board,
		budget:  b,
		mgr:     NewManager(client, b, board, failures, out, nil),
	}
}

func (h *harness) dest(t *testing.T, f domain.FileDescriptor) string {
	t.Helper()
	p, err := h.mgr.Destination(h.creator, f)
	require.NoError(t, err)
	return p
}

func (h *harness) writeLocal(t *testing.T, f domain.FileDescriptor, content []byte) {
	t.Helper()
	p := h.dest(t, f)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
	require.NoError(t, os.WriteFile(p, content, 0644))
}

func (h *harness) readLocal(t *testing.T, f domain.FileDescriptor) []byte {
	t.Helper()
	b, err := os.ReadFile(h.dest(t, f))
	require.NoError(t, err)
	return b
}

func byName(results []domain.TransferResult) map[string]domain.TransferResult {
	out := make(map[string]domain.TransferResult, len(results))
	for _, r := range results {
		out[fmt.Sprintf("%s/%s", r.File.PostID, r.File.Name)] = r
	}
	return out
}
