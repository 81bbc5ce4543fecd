package source

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mmcdole/hoard/internal/domain"
)

const creatorPath = "/patreon/user/42"

func newTestClient(t *testing.T, retries int) *Client {
	t.Helper()
	c, err := NewClient(Options{Retries: retries, RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)
	return c
}

// fakeAPI serves a posts-legacy listing of generated posts
type fakeAPI struct {
	posts     int
	withCount bool

	mu      sync.Mutex
	offsets []int
}

func (f *fakeAPI) handler(w http.ResponseWriter, r *http.Request) {
	offset, _ := strconv.Atoi(r.URL.Query().Get("o"))
	f.mu.Lock()
	f.offsets = append(f.offsets, offset)
	f.mu.Unlock()

	results := []map[string]any{}
	for i := offset; i < f.posts && i < offset+PageSize; i++ {
		results = append(results, map[string]any{
			"id":          fmt.Sprintf("p%d", i),
			"file":        map[string]any{"name": fmt.Sprintf("%d.jpg", i), "path": fmt.Sprintf("/aa/%d.jpg", i)},
			"attachments": []any{},
		})
	}
	body := map[string]any{"results": results}
	if f.withCount {
		body["props"] = map[string]any{"count": f.posts}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(body)
}

func (f *fakeAPI) requested() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.offsets...)
}

func startAPI(t *testing.T, mux *http.ServeMux) (*httptest.Server, domain.Creator) {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	creator, err := ResolveCreator(srv.URL + creatorPath)
	require.NoError(t, err)
	return srv, creator
}
