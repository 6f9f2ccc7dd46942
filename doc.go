// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package rsynx implements an rsync-style delta synchronization engine:
// block signatures, a rolling-hash sliding-window scanner, and an atomic
// reassembler, used by both the local driver and the network driver to
// make a destination byte-identical to a source while transferring only
// the content the destination doesn't already have.
package rsynx

const (
	// DefaultBlockSize is the default block size used for both the
	// signature granularity and the scanner's sliding window.
	DefaultBlockSize = 1024
)
