package file

import "errors"

// ErrInvalidFile marks a spool file whose checksum or framing does not hold.
// The loader quarantines such files instead of parsing them twice.
var ErrInvalidFile = errors.New("invalid spool file")
