// Package service wires enumeration, detail lookup, filtering and transfer
// into a single mirror run.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/mmcdole/hoard/internal/domain"
	"github.com/mmcdole/hoard/internal/progress"
	"github.com/mmcdole/hoard/internal/source"
)

// Lister enumerates a creator's listing
type Lister interface {
	Collect(ctx context.Context, creator domain.Creator) (source.Listing, error)
}

// DetailFetcher resolves post ids into file descriptors
type DetailFetcher interface {
	Fetch(ctx context.Context, creator domain.Creator, ids []string) []domain.FileDescriptor
}

// Transferer downloads file descriptors
type Transferer interface {
	Run(ctx context.Context, creator domain.Creator, files []domain.FileDescriptor) []domain.TransferResult
}

// FileFilter narrows the files to download
type FileFilter interface {
	Apply(files []domain.FileDescriptor) []domain.FileDescriptor
}

// Summary aggregates the outcome of one run
type Summary struct {
	Creator    domain.Creator
	Posts      int   // Distinct posts seen in the listing
	Files      int   // Files selected for transfer
	Downloaded int   // Files that received bytes
	Complete   int   // Files already complete on disk
	Failed     int   // Files that failed
	Skipped    int   // Files removed by the filter
	Bytes      int64 // Bytes written this run
	Failures   []domain.TransferResult
}

// OK reports whether every selected file is complete on disk
func (s Summary) OK() bool {
	return s.Failed == 0
}

// Mirror runs the full pipeline for one creator URL
type Mirror struct {
	lister       Lister
	details      DetailFetcher
	transfers    Transferer
	filter       FileFilter
	allowedHosts []string
	reporter     domain.Reporter
	logger       *slog.Logger
}

// Options configures a Mirror. Filter and Reporter are optional.
type Options struct {
	Lister       Lister
	Details      DetailFetcher
	Transfers    Transferer
	Filter       FileFilter
	AllowedHosts []string
	Reporter     domain.Reporter
	Logger       *slog.Logger
}

// NewMirror creates a mirror service
func NewMirror(opts Options) *Mirror {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reporter := opts.Reporter
	if reporter == nil {
		reporter = progress.Nop{}
	}
	return &Mirror{
		lister:       opts.Lister,
		details:      opts.Details,
		transfers:    opts.Transfers,
		filter:       opts.Filter,
		allowedHosts: opts.AllowedHosts,
		reporter:     reporter,
		logger:       logger,
	}
}

// Run mirrors every file of the creator behind rawURL. Only invalid input
// and enumeration failures are returned as errors; per-file failures are
// counted in the summary.
func (m *Mirror) Run(ctx context.Context, rawURL string) (Summary, error) {
	logger := m.logger.With("run", uuid.NewString())

	creator, err := source.ResolveCreator(rawURL)
	if err != nil {
		logger.Error("invalid creator url", "url", rawURL, "error", err)
		return Summary{}, err
	}
	if !source.HostAllowed(creator.Host, m.allowedHosts) {
		logger.Error("host not allowed", "host", creator.Host, "allowed", m.allowedHosts)
		return Summary{}, fmt.Errorf("%w: %s", domain.ErrHostNotAllowed, creator.Host)
	}

	summary := Summary{Creator: creator}
	logger = logger.With("creator", creator.Path)
	logger.Info("mirror started", "host", creator.Host)

	listing, err := m.lister.Collect(ctx, creator)
	if err != nil {
		logger.Error("enumeration failed", "error", err)
		return summary, err
	}

	files := listing.Files
	if len(listing.PostIDs) > 0 && m.details != nil {
		files = append(files, m.details.Fetch(ctx, creator, listing.PostIDs)...)
	}
	summary.Posts = countPosts(listing)

	if m.filter != nil {
		kept := m.filter.Apply(files)
		summary.Skipped = len(files) - len(kept)
		files = kept
	}
	summary.Files = len(files)

	if len(files) == 0 {
		logger.Info("nothing to download", "posts", summary.Posts)
		m.reporter.Printf("No files found for %s", creator.Path)
		return summary, nil
	}

	for _, res := range m.transfers.Run(ctx, creator, files) {
		switch res.Status {
		case domain.TransferDownloaded:
			summary.Downloaded++
		case domain.TransferAlreadyComplete:
			summary.Complete++
		default:
			summary.Failed++
			summary.Failures = append(summary.Failures, res)
		}
		summary.Bytes += res.Bytes
	}

	logger.Info("mirror finished",
		"posts", summary.Posts,
		"files", summary.Files,
		"downloaded", summary.Downloaded,
		"complete", summary.Complete,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"bytes", summary.Bytes,
	)
	return summary, nil
}

func countPosts(l source.Listing) int {
	seen := make(map[string]struct{}, len(l.PostIDs))
	for _, id := range l.PostIDs {
		seen[id] = struct{}{}
	}
	for _, f := range l.Files {
		if f.PostID != "" {
			seen[f.PostID] = struct{}{}
		}
	}
	return len(seen)
}
