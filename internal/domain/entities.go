package domain

import "strings"

// FileDescriptor identifies one remote binary asset
type FileDescriptor struct {
	Name   string // Target filename, not unique across posts
	Path   string // Server-relative resource path, e.g. /ab/cd/abcd.mp4
	Server string // Optional file server overriding the creator host
	PostID string // Optional owning post, used to namespace output
}

// Creator is the resolved context of an artist page URL
type Creator struct {
	Scheme string // "https" unless the input URL says otherwise
	Host   string // e.g. kemono.su
	Path   string // Full creator path, e.g. patreon/user/12345
	ID     string // Last segment of Path, used as the output folder
}

// BaseURL returns scheme://host
func (c Creator) BaseURL() string {
	return c.Scheme + "://" + c.Host
}

// DataURL returns the download URL of a file, honoring its server override
func (c Creator) DataURL(f FileDescriptor) string {
	base := c.BaseURL()
	if f.Server != "" {
		base = strings.TrimRight(f.Server, "/")
	}
	return base + "/data" + f.Path
}

// EntryKind tags the shape of a listing entry
type EntryKind int

const (
	// EntryFile carries a file descriptor embedded in the listing
	EntryFile EntryKind = iota
	// EntryPost carries a bare post id that still needs resolving
	EntryPost
)

// ListingEntry is one raw item produced by paginated enumeration.
// Exactly one of File or PostID is meaningful, depending on Kind.
type ListingEntry struct {
	Kind   EntryKind
	File   FileDescriptor
	PostID string
}

// TransferStatus is the final outcome of one file transfer
type TransferStatus int

const (
	TransferFailed TransferStatus = iota
	TransferDownloaded
	TransferAlreadyComplete
)

func (s TransferStatus) String() string {
	switch s {
	case TransferDownloaded:
		return "downloaded"
	case TransferAlreadyComplete:
		return "complete"
	default:
		return "failed"
	}
}

// TransferResult is what a per-file task hands back to the aggregator
type TransferResult struct {
	File       FileDescriptor
	Dest       string
	Status     TransferStatus
	Bytes      int64 // Bytes written by this run
	HTTPStatus int   // 0 when no response was received
	Err        error
}
