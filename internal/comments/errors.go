package comments

import "errors"

// Error kinds reported by the controller. Match them with errors.Is; the
// wrapped error carries the detail (and, for ErrRemoteWrite, the cause).
var (
	// ErrValidation rejects input before any state change
	ErrValidation = errors.New("invalid comment input")
	// ErrRemoteWrite means a create, delete or reaction write failed and was rolled back
	ErrRemoteWrite = errors.New("remote write failed")
	// ErrAuthorization rejects a retraction by someone other than the author
	ErrAuthorization = errors.New("not the comment author")
	// ErrSubscription means the realtime feed failed; the view is stale
	ErrSubscription = errors.New("comment feed unavailable")
	// ErrNotFound means the comment is not in the current view
	ErrNotFound = errors.New("comment not found")
	// ErrClosed is returned once the controller has been closed
	ErrClosed = errors.New("comment controller closed")
)
