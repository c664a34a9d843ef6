// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultMatchTolerance is the default maximum distance for a gallery match
	// Lower values = stricter matching
	DefaultMatchTolerance = 0.5

	// UnknownLabel is reported for faces with no gallery match
	UnknownLabel = "unknown"

	// MaxReferenceImageSize is the maximum dimension (width or height) of a gallery
	// image sent to the embedding server
	MaxReferenceImageSize = 1280
)

// Capture loop constants
const (
	// DefaultFetchTimeout bounds a single frame fetch
	DefaultFetchTimeout = 10 * time.Second

	// DefaultFrameInterval is the pause between frames
	DefaultFrameInterval = 500 * time.Millisecond

	// ActuatorSettleDelay is the wait after writing an actuator command
	ActuatorSettleDelay = 100 * time.Millisecond
)

// Attendance guard constants
const (
	// LockTTL is the expiry of a distributed attendance lock
	LockTTL = 5 * time.Second

	// LockWait is the maximum time spent acquiring a distributed attendance lock
	LockWait = 3 * time.Second

	// LockRetryInterval is the pause between lock acquisition attempts
	LockRetryInterval = 50 * time.Millisecond
)
