package model

import "errors"

var (
	// ErrInvalidCommand is returned when a motion command carries an
	// out-of-range speed.
	ErrInvalidCommand = errors.New("speed out of range")

	// ErrInvalidName is returned when a rename request carries an empty
	// or over-long name.
	ErrInvalidName = errors.New("invalid hub name")

	// ErrUnknownHub is returned when a hub identifier is not in the registry.
	ErrUnknownHub = errors.New("unknown hub")

	// ErrNotConnected is returned when a frame send is attempted on a
	// link that is not live.
	ErrNotConnected = errors.New("hub not connected")

	// ErrConnectTimeout is returned when link establishment does not
	// complete within the allowed time.
	ErrConnectTimeout = errors.New("connect timed out")

	// ErrConnectFailed is returned when the transport rejects a
	// connection attempt.
	ErrConnectFailed = errors.New("connect failed")

	// ErrScanInProgress is returned when a scan is requested while
	// another scan is still running.
	ErrScanInProgress = errors.New("scan already in progress")
)
