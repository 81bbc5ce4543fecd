package source

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/sourcegraph/conc/pool"

	"github.com/mmcdole/hoard/internal/budget"
	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/progress"
)

// DetailFetcher resolves bare post ids into file descriptors
type DetailFetcher struct {
	client   *Client
	budget   *budget.Budget
	reporter domain.Reporter
	logger   *slog.Logger
}

// NewDetailFetcher creates a fetcher drawing permits from b. reporter may be nil.
func NewDetailFetcher(client *Client, b *budget.Budget, reporter domain.Reporter, logger *slog.Logger) *DetailFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &DetailFetcher{
		client:   client,
		budget:   b,
		reporter: reporter,
		logger:   logger,
	}
}

// PostURL builds the detail URL of a post
func PostURL(c domain.Creator, id string) string {
	return fmt.Sprintf("%s/api/v1/%s/post/%s", c.BaseURL(), c.Path, url.PathEscape(id))
}

// Fetch resolves every id concurrently, at most budget-size requests at a
// time. A failing post is logged and contributes nothing; it never stops the
// others. The result order is unspecified.
func (f *DetailFetcher) Fetch(ctx context.Context, creator domain.Creator, ids []string) []domain.FileDescriptor {
	if len(ids) == 0 {
		return nil
	}

	batch := f.reporter.Batch("posts", len(ids))
	p := pool.NewWithResults[[]domain.FileDescriptor]()

	for _, id := range ids {
		p.Go(func() []domain.FileDescriptor {
			defer batch.Increment()

			files, err := f.fetchOne(ctx, creator, id)
			if err != nil {
				f.logger.Warn("post skipped", "post", id, "error", err)
				f.reporter.Printf("Failed to fetch post %s: %v", id, err)
				return nil
			}
			return files
		})
	}

	var out []domain.FileDescriptor
	for _, files := range p.Wait() {
		out = append(out, files...)
	}

	f.logger.Info("post details resolved", "posts", len(ids), "files", len(out))
	return out
}

func (f *DetailFetcher) fetchOne(ctx context.Context, creator domain.Creator, id string) ([]domain.FileDescriptor, error) {
	if err := f.budget.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetailFetchFailed, err)
	}
	defer f.budget.Release()

	var resp detailResponse
	if err := f.client.GetJSON(ctx, PostURL(creator, id), &resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrDetailFetchFailed, err)
	}
	return resp.files(id), nil
}
