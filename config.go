// SPDX-License-Identifier: GPL-3.0-or-later

package vsocket

import "time"

const (
	// ListenBacklog is the listen queue length used by [*Handle.Listen].
	ListenBacklog = 128

	// ReadBufferSize is the size of the buffer used by the receive loop.
	ReadBufferSize = 8192

	// MaxConnectAttempts is the number of attempts made by [*Handle.Connect].
	MaxConnectAttempts = 5

	// DefaultMaxFrameSize is the default [Config.MaxFrameSize].
	DefaultMaxFrameSize = 64 << 20
)

// ConnectBackoff returns the delay after the given failed connect attempt.
//
// The delay is 2^attempt seconds (attempt 0 → 1s, attempt 4 → 16s).
func ConnectBackoff(attempt int) time.Duration {
	return time.Second << attempt
}

// Config holds common configuration for vsocket handles.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// MaxFrameSize is the largest payload accepted by the framed receive loop.
	//
	// Set by [NewConfig] to [DefaultMaxFrameSize].
	MaxFrameSize uint64

	// Sleep waits between connect attempts.
	//
	// Set by [NewConfig] to [time.Sleep].
	Sleep func(d time.Duration)

	// Syscalls is used by [*Handle] for all OS socket operations.
	//
	// Set by [NewConfig] to [DefaultSyscalls].
	Syscalls Syscalls

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		ErrClassifier: DefaultErrClassifier,
		MaxFrameSize:  DefaultMaxFrameSize,
		Sleep:         time.Sleep,
		Syscalls:      DefaultSyscalls(),
		TimeNow:       time.Now,
	}
}
