package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmcdole/hoard/internal/budget"
	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/filter"
	"github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/source"
	"github.com/mmcdole/hoard/internal/transfer"
)

const creatorPath = "/patreon/user/42"

// site fakes the listing, detail and data endpoints of one creator
type site struct {
	*httptest.Server

	posts      int
	listStatus int
	missing    map[int]bool

	mu        sync.Mutex
	pageHits  int
	dataHits  int
	withRange int
}

func newSite(t *testing.T, posts int) *site {
	t.Helper()
	s := &site{posts: posts, missing: map[int]bool{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1"+creatorPath+"/posts-legacy", s.listing)
	mux.HandleFunc("GET /api/v1"+creatorPath+"/post/{id}", s.detail)
	mux.HandleFunc("GET /data/f/{name}", s.data)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func content(i int) []byte {
	return bytes.Repeat([]byte{byte('a' + i%26)}, 1000+i)
}

func (s *site) listing(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.pageHits++
	status := s.listStatus
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("o"))
	results := []map[string]any{}
	for i := offset; i < s.posts && i < offset+source.PageSize; i++ {
		results = append(results, map[string]any{
			"id":          fmt.Sprintf("p%d", i),
			"file":        map[string]any{"name": fmt.Sprintf("%d.bin", i), "path": fmt.Sprintf("/f/%d.bin", i)},
			"attachments": []any{},
		})
	}
	writeJSON(w, map[string]any{"props": map[string]any{"count": s.posts}, "results": results})
}

func (s *site) detail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	i, err := strconv.Atoi(strings.TrimPrefix(id, "p"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, map[string]any{
		"post": map[string]any{"id": id},
		"attachments": []any{
			map[string]any{"name": fmt.Sprintf("%d.bin", i), "path": fmt.Sprintf("/f/%d.bin", i)},
		},
	})
}

func (s *site) data(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.dataHits++
	if r.Header.Get("Range") != "" {
		s.withRange++
	}
	s.mu.Unlock()

	i, err := strconv.Atoi(strings.TrimSuffix(r.PathValue("name"), ".bin"))
	s.mu.Lock()
	missing := s.missing[i]
	s.mu.Unlock()
	if err != nil || i >= s.posts || missing {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, "", time.Time{}, bytes.NewReader(content(i)))
}

func (s *site) counts() (pages, data, ranged int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageHits, s.dataHits, s.withRange
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type fixture struct {
	mirror *Mirror
	out    string
	url    string
}

func newFixture(t *testing.T, s *site, variant source.Variant, f FileFilter) *fixture {
	t.Helper()
	out := t.TempDir()

	client, err := source.NewClient(source.Options{RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	b := budget.New(3)
	reporter := progress.Nop{}
	failures, err := transfer.OpenFailureLog(filepath.Join(out, transfer.FailureLogName))
	require.NoError(t, err)

	m := NewMirror(Options{
		Lister:    source.NewLister(client, variant, reporter, nil),
		Details:   source.NewDetailFetcher(client, b, reporter, nil),
		Transfers: transfer.NewManager(client, b, reporter, failures, out, nil),
		Filter:    f,
		Reporter:  reporter,
	})
	return &fixture{mirror: m, out: out, url: s.URL + creatorPath}
}

func (f *fixture) assertFile(t *testing.T, i int) {
	t.Helper()
	got, err := os.ReadFile(filepath.Join(f.out, "42", fmt.Sprintf("p%d", i), fmt.Sprintf("%d.bin", i)))
	require.NoError(t, err)
	assert.Equal(t, content(i), got)
}

func TestMirrorThreePosts(t *testing.T) {
	s := newSite(t, 3)
	f := newFixture(t, s, source.VariantLegacy, nil)

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Posts)
	assert.Equal(t, 3, summary.Files)
	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 0, summary.Failed)
	assert.True(t, summary.OK())
	assert.Equal(t, "42", summary.Creator.ID)
	pages, _, _ := s.counts()
	assert.Equal(t, 1, pages)
	for i := range 3 {
		f.assertFile(t, i)
	}
}

func TestMirrorManyPages(t *testing.T) {
	s := newSite(t, 120)
	f := newFixture(t, s, source.VariantLegacy, nil)

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	pages, _, _ := s.counts()
	assert.Equal(t, 3, pages)
	assert.Equal(t, 120, summary.Files)
	assert.Equal(t, 120, summary.Downloaded)
	f.assertFile(t, 0)
	f.assertFile(t, 119)
}

func TestMirrorSecondRunIsComplete(t *testing.T) {
	s := newSite(t, 5)
	f := newFixture(t, s, source.VariantLegacy, nil)

	first, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)
	require.Equal(t, 5, first.Downloaded)

	s.mu.Lock()
	s.dataHits, s.withRange = 0, 0
	s.mu.Unlock()

	second, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	assert.Equal(t, 0, second.Downloaded)
	assert.Equal(t, 5, second.Complete)
	assert.Equal(t, int64(0), second.Bytes)
	_, data, ranged := s.counts()
	assert.Equal(t, 5, data)
	assert.Equal(t, 5, ranged)
	for i := range 5 {
		f.assertFile(t, i)
	}
}

func TestMirrorDetailVariant(t *testing.T) {
	s := newSite(t, 4)
	f := newFixture(t, s, source.VariantDetail, nil)

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Posts)
	assert.Equal(t, 4, summary.Downloaded)
	for i := range 4 {
		f.assertFile(t, i)
	}
}

func TestMirrorIsolatesFailures(t *testing.T) {
	s := newSite(t, 4)
	s.mu.Lock()
	s.missing[2] = true
	s.mu.Unlock()
	f := newFixture(t, s, source.VariantLegacy, nil)

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Downloaded)
	assert.Equal(t, 1, summary.Failed)
	assert.False(t, summary.OK())
	require.Len(t, summary.Failures, 1)
	assert.Equal(t, "2.bin", summary.Failures[0].File.Name)
	assert.Equal(t, http.StatusNotFound, summary.Failures[0].HTTPStatus)

	logged, err := os.ReadFile(filepath.Join(f.out, transfer.FailureLogName))
	require.NoError(t, err)
	assert.Equal(t, s.URL+"/data/f/2.bin - 404\n", string(logged))
}

func TestMirrorFilter(t *testing.T) {
	s := newSite(t, 12)
	f := newFixture(t, s, source.VariantLegacy, filter.New("", "11.bin"))

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 11, summary.Files)
	assert.NoFileExists(t, filepath.Join(f.out, "42", "p11", "11.bin"))
}

func TestMirrorEnumerationFailure(t *testing.T) {
	s := newSite(t, 3)
	s.mu.Lock()
	s.listStatus = http.StatusForbidden
	s.mu.Unlock()
	f := newFixture(t, s, source.VariantLegacy, nil)

	summary, err := f.mirror.Run(context.Background(), f.url)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEnumerationFailed)
	assert.Equal(t, 0, summary.Files)
	_, data, _ := s.counts()
	assert.Equal(t, 0, data)
	assert.NoDirExists(t, filepath.Join(f.out, "42"))
}

func TestMirrorRejectsInput(t *testing.T) {
	s := newSite(t, 1)
	f := newFixture(t, s, source.VariantLegacy, nil)

	_, err := f.mirror.Run(context.Background(), "   ")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	f.mirror.allowedHosts = []string{"kemono", "coomer"}
	_, err = f.mirror.Run(context.Background(), f.url)
	assert.ErrorIs(t, err, domain.ErrHostNotAllowed)
	pages, _, _ := s.counts()
	assert.Equal(t, 0, pages)
}

func TestCountPosts(t *testing.T) {
	l := source.Listing{
		Files: []domain.FileDescriptor{
			{Name: "a", PostID: "1"},
			{Name: "b", PostID: "1"},
			{Name: "c"},
		},
		PostIDs: []string{"2", "1"},
	}
	assert.Equal(t, 2, countPosts(l))
}

func TestMirrorWithoutReporter(t *testing.T) {
	s := newSite(t, 0)
	client, err := source.NewClient(source.Options{RetryDelay: time.Millisecond}, nil)
	require.NoError(t, err)

	m := NewMirror(Options{
		Lister:    source.NewLister(client, source.VariantLegacy, nil, nil),
		Transfers: transfer.NewManager(client, budget.New(1), nil, nil, t.TempDir(), nil),
	})

	summary, err := m.Run(context.Background(), s.URL+creatorPath)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Files)
	assert.True(t, summary.OK())
}
