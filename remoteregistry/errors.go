package remoteregistry

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed wraps every transport, read and clone failure.
	ErrFetchFailed = errors.New("remoteregistry: fetch failed")
	// ErrHTTPStatus is matched by StatusError.
	ErrHTTPStatus = errors.New("remoteregistry: unexpected HTTP status")
	// ErrNotFound means no candidate manifest exists. Registry reports it as
	// promptchain.ErrTemplateNotFound.
	ErrNotFound = errors.New("remoteregistry: no manifest found")
	// ErrInvalidIndex means an index line is not a manifest file name.
	ErrInvalidIndex = errors.New("remoteregistry: invalid index")
)

// StatusError is a non-2xx, non-404 answer from a prompt server. It matches both
// ErrFetchFailed and ErrHTTPStatus.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("remoteregistry: unexpected HTTP status %d from %s", e.StatusCode, e.URL)
}

// Is reports whether target is ErrFetchFailed or ErrHTTPStatus.
func (e *StatusError) Is(target error) bool {
	return target == ErrFetchFailed || target == ErrHTTPStatus
}
