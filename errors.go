// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import "github.com/pkg/errors"

// Abstract error kinds from spec.md §7. Callers distinguish them with
// errors.Is; pkg/errors.Wrapf preserves the underlying cause chain so the
// CLI can print it with %+v on failure.
var (
	// ErrInputNotFound means the source path does not exist or is an
	// unsupported type at the top level.
	ErrInputNotFound = errors.New("rsynx: input not found")

	// ErrIoFailure wraps a read, write, seek, rename, or metadata
	// syscall failure. Most I/O errors are wrapped in place with
	// errors.Wrapf rather than re-wrapped in this sentinel; it exists
	// for callers that need to classify an error without inspecting
	// its text.
	ErrIoFailure = errors.New("rsynx: I/O failure")

	// ErrProtocolViolation means a network message was malformed,
	// truncated, or arrived in the wrong phase.
	ErrProtocolViolation = errors.New("rsynx: protocol violation")

	// ErrConfigInvalid means the block size is zero, or a required
	// source/destination path is missing in client mode.
	ErrConfigInvalid = errors.New("rsynx: invalid configuration")
)
