package domain

// Reporter receives progress from the core. Implementations must be safe for
// concurrent use; all updates are additive.
type Reporter interface {
	// Batch registers an aggregate counter of total items
	Batch(label string, total int) Batch

	// Printf emits a one-off message above the progress display
	Printf(format string, args ...any)
}

// Batch counts completed items of one stage (post details, file transfers)
type Batch interface {
	// Increment marks one item as finished, whatever its outcome
	Increment()

	// Track starts a byte-level indicator for one file.
	// total <= 0 means the length is unknown.
	Track(name string, current, total int64) FileTracker
}

// FileTracker follows the bytes of a single transfer
type FileTracker interface {
	Add(n int)
	Done()
}
