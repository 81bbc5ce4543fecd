package domain

import "errors"

// Sentinel errors for mirror operations
var (
	// ErrInvalidInput indicates the creator URL is unusable. Fatal.
	ErrInvalidInput = errors.New("invalid creator url")

	// ErrHostNotAllowed indicates the creator host is outside the configured allowlist. Fatal.
	ErrHostNotAllowed = errors.New("host not allowed")

	// ErrEnumerationFailed indicates the post listing could not be paged. Fatal.
	ErrEnumerationFailed = errors.New("post enumeration failed")

	// ErrDetailFetchFailed indicates a single post could not be resolved to files
	ErrDetailFetchFailed = errors.New("post detail fetch failed")

	// ErrTransferFailed indicates a single file could not be downloaded
	ErrTransferFailed = errors.New("transfer failed")

	// ErrPartialWriteInterrupted indicates a stream broke mid-transfer.
	// The partial file is kept so the next run can resume it.
	ErrPartialWriteInterrupted = errors.New("transfer interrupted, partial file kept")
)
