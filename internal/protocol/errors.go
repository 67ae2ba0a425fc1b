package protocol

import "errors"

var (
	ErrTruncated        = errors.New("protocol: truncated data")
	ErrBadMarker        = errors.New("protocol: invalid flap marker")
	ErrUnknownFrameType = errors.New("protocol: unknown flap frame type")
	ErrUnexpectedFrame  = errors.New("protocol: frame not valid in connection state")
	ErrPayloadTooLarge  = errors.New("protocol: payload too large")
	ErrProtocolVersion  = errors.New("protocol: unsupported flap version")
	ErrIdentityMismatch = errors.New("protocol: screenname does not match challenge")
	ErrMissingChallenge = errors.New("protocol: login without challenge")
	ErrUnsupportedHash  = errors.New("protocol: unsupported password hash strategy")
	ErrAuthentication   = errors.New("protocol: authentication failed")
	ErrUnknownOperation = errors.New("protocol: unknown operation")
	ErrConnClosed       = errors.New("protocol: connection closed")
)

// IsFatal reports whether err must tear down the connection that produced it.
// Unknown operations are logged and ignored; everything else is fatal because
// flap framing offers no resynchronization point.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, ErrUnknownOperation)
}
