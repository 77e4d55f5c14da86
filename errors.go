package netstack

import "errors"

// Generic errors common to internet functioning.
var (
	ErrShortBuffer        = errors.New("netstack: short buffer")
	ErrBadCRC             = errors.New("netstack: incorrect checksum")
	ErrInvalidLengthField = errors.New("netstack: invalid length field")
	ErrZeroSource         = errors.New("netstack: zero source")
	ErrZeroDestination    = errors.New("netstack: zero destination")
)
