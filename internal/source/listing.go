package source

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/progress"
)

// PageSize is the number of posts the listing endpoint serves per offset step
const PageSize = 50

// Listing is a drained enumeration
type Listing struct {
	Files   []domain.FileDescriptor // Descriptors embedded in the listing
	PostIDs []string                // Posts that still need a detail fetch
}

// Lister walks the paginated posts listing of a creator
type Lister struct {
	client   *Client
	variant  Variant
	reporter domain.Reporter
	logger   *slog.Logger
}

// NewLister creates a lister. reporter may be nil.
func NewLister(client *Client, variant Variant, reporter domain.Reporter, logger *slog.Logger) *Lister {
	if logger == nil {
		logger = slog.Default()
	}
	if variant == "" {
		variant = VariantLegacy
	}
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Lister{
		client:   client,
		variant:  variant,
		reporter: reporter,
		logger:   logger,
	}
}

// PageURL builds the listing URL for an offset
func PageURL(c domain.Creator, offset int) string {
	return fmt.Sprintf("%s/api/v1/%s/posts-legacy?o=%d", c.BaseURL(), c.Path, offset)
}

// Entries returns the listing of a creator as a lazy sequence. Each page is
// requested only when the previous one has been consumed. Enumeration stops
// once the offset reaches the reported total, or at the first page without
// posts. A failing page yields a single error wrapping
// domain.ErrEnumerationFailed and ends the sequence.
func (l *Lister) Entries(ctx context.Context, creator domain.Creator) iter.Seq2[domain.ListingEntry, error] {
	return func(yield func(domain.ListingEntry, error) bool) {
		offset := 0
		total, known := 0, false

		for {
			page, err := l.fetchPage(ctx, creator, offset)
			if err != nil {
				yield(domain.ListingEntry{}, err)
				return
			}

			if !known {
				total, known = page.total()
			}

			for _, e := range page.entries(l.variant) {
				if !yield(e, nil) {
					return
				}
			}

			offset += PageSize

			if len(page.Results) == 0 {
				l.logger.Debug("empty page, stopping", "offset", offset-PageSize)
				return
			}
			if known && offset >= total {
				return
			}
		}
	}
}

// Collect drains Entries
func (l *Lister) Collect(ctx context.Context, creator domain.Creator) (Listing, error) {
	var out Listing
	for e, err := range l.Entries(ctx, creator) {
		if err != nil {
			return Listing{}, err
		}
		switch e.Kind {
		case domain.EntryFile:
			out.Files = append(out.Files, e.File)
		case domain.EntryPost:
			out.PostIDs = append(out.PostIDs, e.PostID)
		}
	}
	l.logger.Info("listing complete",
		"creator", creator.Path,
		"files", len(out.Files),
		"posts", len(out.PostIDs),
	)
	return out, nil
}

func (l *Lister) fetchPage(ctx context.Context, creator domain.Creator, offset int) (*listingPage, error) {
	pageNum := offset/PageSize + 1
	pageURL := PageURL(creator, offset)

	l.logger.Info("fetching page", "page", pageNum, "offset", offset, "url", pageURL)
	l.reporter.Printf("Fetching data for page %d...", pageNum)

	var page listingPage
	if err := l.client.GetJSON(ctx, pageURL, &page); err != nil {
		l.logger.Error("listing page failed", "page", pageNum, "error", err)
		return nil, fmt.Errorf("%w: page %d: %w", domain.ErrEnumerationFailed, pageNum, err)
	}
	return &page, nil
}
