package writer

import "errors"

// ErrStopped is returned when enqueueing after the writer has been stopped
var ErrStopped = errors.New("bulk writer is stopped")
