// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import "github.com/pkg/errors"

// Config holds the options recognised by the engine, as specified in
// spec.md §3. It is constructed once by the caller (the CLI or an
// embedder) and passed by value into the engine; there is no package
// level mutable state.
type Config struct {
	// BlockSize is the signature granularity and sliding-window width.
	// Must be positive.
	BlockSize int

	// PreserveMetadata, if set, makes the reassembler carry the
	// source's access/modification timestamps and permission bits onto
	// the committed target.
	PreserveMetadata bool

	// DeleteExtraneous, if set, makes directory sync remove destination
	// entries absent from the source.
	DeleteExtraneous bool

	// Compress, if set, compresses LITERAL/DATA payloads for network
	// transport only; it has no effect on the local driver.
	Compress bool
}

// DefaultConfig returns a Config with DefaultBlockSize and every boolean
// option left at its zero value.
func DefaultConfig() Config {
	return Config{BlockSize: DefaultBlockSize}
}

// Validate returns ErrConfigInvalid if the configuration cannot be used
// to run a sync.
func (c Config) Validate() error {
	if c.BlockSize <= 0 {
		return errors.Wrapf(ErrConfigInvalid, "block size must be positive, got %d", c.BlockSize)
	}
	return nil
}
