// Package transfer downloads file descriptors to disk, resuming partial files.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/mmcdole/hoard/internal/budget"
	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/source"
)

const (
	chunkSize = 32 << 10

	// DefaultIdleTimeout bounds how long a started body may go without data
	DefaultIdleTimeout = 60 * time.Second
)

// Manager runs one transfer task per file descriptor, bounded by a Budget
type Manager struct {
	client    *source.Client
	budget    *budget.Budget
	reporter  domain.Reporter
	failures  *FailureLog
	outputDir string
	idle      time.Duration
	logger    *slog.Logger
}

// NewManager creates a transfer manager writing under outputDir.
// failures may be nil to disable the failure log, reporter may be nil.
func NewManager(client *source.Client, b *budget.Budget, reporter domain.Reporter, failures *FailureLog, outputDir string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Manager{
		client:    client,
		budget:    b,
		reporter:  reporter,
		failures:  failures,
		outputDir: outputDir,
		idle:      DefaultIdleTimeout,
		logger:    logger,
	}
}

// WithIdleTimeout sets how long a body may stall before the transfer is
// aborted and its partial file kept. d <= 0 keeps the default.
func (m *Manager) WithIdleTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.idle = d
	}
	return m
}

// Destination returns {output}/{creator}/[{post}/]{name}. Without a post id
// equal names from different posts share one path; the last writer wins.
func (m *Manager) Destination(c domain.Creator, f domain.FileDescriptor) (string, error) {
	name, ok := cleanSegment(f.Name)
	if !ok {
		return "", fmt.Errorf("unusable file name %q", f.Name)
	}
	creatorDir, ok := cleanSegment(c.ID)
	if !ok {
		return "", fmt.Errorf("unusable creator id %q", c.ID)
	}

	dir := filepath.Join(m.outputDir, creatorDir)
	if f.PostID != "" {
		post, ok := cleanSegment(f.PostID)
		if !ok {
			return "", fmt.Errorf("unusable post id %q", f.PostID)
		}
		dir = filepath.Join(dir, post)
	}
	return filepath.Join(dir, name), nil
}

// Run downloads every file and returns one result per file, in no particular
// order. Failures are isolated to their own file. The "files" batch is
// incremented exactly once per file.
func (m *Manager) Run(ctx context.Context, creator domain.Creator, files []domain.FileDescriptor) []domain.TransferResult {
	batch := m.reporter.Batch("files", len(files))
	p := pool.NewWithResults[domain.TransferResult]()

	for _, f := range files {
		p.Go(func() domain.TransferResult {
			defer batch.Increment()

			res := m.transfer(ctx, creator, f, batch)
			switch res.Status {
			case domain.TransferFailed:
				m.logger.Warn("transfer failed", "file", f.Name, "post", f.PostID, "status", res.HTTPStatus, "error", res.Err)
				m.reporter.Printf("Download failed: %s - %v", f.Name, res.Err)
			case domain.TransferAlreadyComplete:
				m.logger.Debug("already complete", "file", f.Name, "dest", res.Dest)
			default:
				m.logger.Info("downloaded", "file", f.Name, "dest", res.Dest, "bytes", res.Bytes)
			}
			return res
		})
	}
	return p.Wait()
}

func (m *Manager) transfer(ctx context.Context, creator domain.Creator, f domain.FileDescriptor, batch domain.Batch) domain.TransferResult {
	res := domain.TransferResult{File: f, Status: domain.TransferFailed}
	fail := func(err error) domain.TransferResult {
		if !errors.Is(err, domain.ErrPartialWriteInterrupted) {
			err = fmt.Errorf("%w: %w", domain.ErrTransferFailed, err)
		}
		res.Err = err
		return res
	}

	dest, err := m.Destination(creator, f)
	if err != nil {
		return fail(err)
	}
	res.Dest = dest

	if err := m.budget.Acquire(ctx); err != nil {
		return fail(err)
	}
	defer m.budget.Release()

	// Started transfers run to completion or failure. The only way out of a
	// stalled body is the idle timer below.
	ctx, abort := context.WithCancel(context.WithoutCancel(ctx))
	defer abort()

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fail(fmt.Errorf("failed to create directory: %w", err))
	}

	downloaded, err := existingLength(dest)
	if err != nil {
		return fail(err)
	}

	dataURL := creator.DataURL(f)
	header := http.Header{}
	if downloaded > 0 {
		header.Set("Range", fmt.Sprintf("bytes=%d-", downloaded))
	}

	resp, err := m.client.Get(ctx, dataURL, header)
	if err != nil {
		return fail(err)
	}
	defer resp.Body.Close()
	res.HTTPStatus = resp.StatusCode

	flags := os.O_WRONLY | os.O_CREATE
	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		res.Status = domain.TransferAlreadyComplete
		return res

	case http.StatusPartialContent:
		start, ok := contentRangeStart(resp.Header.Get("Content-Range"))
		if !ok || start != downloaded {
			return fail(fmt.Errorf("content range %q does not continue at byte %d",
				resp.Header.Get("Content-Range"), downloaded))
		}
		flags |= os.O_APPEND

	case http.StatusOK:
		if downloaded > 0 {
			m.logger.Info("range ignored by server, restarting", "file", f.Name, "had", downloaded)
			downloaded = 0
		}
		flags |= os.O_TRUNC

	default:
		if err := m.failures.Record(dataURL, resp.StatusCode); err != nil {
			m.logger.Warn("failed to record failure", "error", err)
		}
		return fail(&source.StatusError{Code: resp.StatusCode, URL: dataURL})
	}

	total := int64(-1)
	if resp.ContentLength >= 0 {
		total = downloaded + resp.ContentLength
	}

	file, err := os.OpenFile(dest, flags, 0644)
	if err != nil {
		return fail(fmt.Errorf("failed to open destination: %w", err))
	}

	tracker := batch.Track(f.Name, downloaded, total)
	defer tracker.Done()

	idle := time.AfterFunc(m.idle, abort)
	defer idle.Stop()

	written, err := copyChunks(file, &idleReader{r: resp.Body, timer: idle, d: m.idle}, tracker)
	res.Bytes = written
	if err != nil {
		file.Close()
		if ctx.Err() != nil {
			err = fmt.Errorf("no data for %s: %w", m.idle, err)
		}
		return fail(fmt.Errorf("%w: %s after %d bytes: %w", domain.ErrPartialWriteInterrupted, f.Name, downloaded+written, err))
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return fail(fmt.Errorf("failed to flush: %w", err))
	}
	if err := file.Close(); err != nil {
		return fail(fmt.Errorf("failed to close: %w", err))
	}

	res.Status = domain.TransferDownloaded
	return res
}

// copyChunks streams src to dst in server order, reporting every chunk
func copyChunks(dst io.Writer, src io.Reader, tracker domain.FileTracker) (int64, error) {
	buf := make([]byte, chunkSize)
	var written int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
			tracker.Add(n)
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, rerr
		}
	}
}

// idleReader pushes the idle deadline back on every read that returns data
type idleReader struct {
	r     io.Reader
	timer *time.Timer
	d     time.Duration
}

func (ir *idleReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if n > 0 {
		ir.timer.Reset(ir.d)
	}
	return n, err
}

// existingLength returns the size of a partial download, 0 when absent
func existingLength(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%s is not a regular file", path)
	}
	return info.Size(), nil
}

// contentRangeStart parses the first byte of "bytes 100-199/200"
func contentRangeStart(v string) (int64, bool) {
	v, ok := strings.CutPrefix(strings.TrimSpace(v), "bytes ")
	if !ok {
		return 0, false
	}
	first, _, ok := strings.Cut(v, "-")
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(first), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// cleanSegment reduces s to a single path element
func cleanSegment(s string) (string, bool) {
	s = filepath.Base(filepath.FromSlash(strings.TrimSpace(s)))
	if s == "." || s == ".." || s == string(filepath.Separator) {
		return "", false
	}
	return s, true
}
