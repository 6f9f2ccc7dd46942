// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import (
	"context"
	"io"

	"github.com/pkg/errors"
)

// BlockSignature describes one aligned region of a reference file, as
// specified in spec.md §3: offset and length locate the block, weak and
// strong are the checksums of the exact byte range [offset, offset+length).
// Err is set, with every other field zero, on the final value sent when
// the reference could not be fully read; the producer closes the channel
// right after.
type BlockSignature struct {
	Offset uint64
	Length uint32
	Weak   uint32
	Strong []byte
	Err    error
}

// SignatureIndex maps a weak checksum to every signature sharing it.
// Collisions on Weak are expected; Strong disambiguates them.
type SignatureIndex map[uint32][]BlockSignature

// BuildSignatureIndex reads signatures into a SignatureIndex, returning
// once the channel closes or ctx is cancelled. A BlockSignature carrying
// a non-nil Err aborts the build and surfaces that error.
func BuildSignatureIndex(ctx context.Context, sigs <-chan BlockSignature) (SignatureIndex, error) {
	idx := make(SignatureIndex)
	for sig := range sigs {
		select {
		case <-ctx.Done():
			return idx, errors.Wrapf(ctx.Err(), "rsynx: building signature index")
		default:
		}
		if sig.Err != nil {
			return idx, errors.Wrapf(sig.Err, "rsynx: reading reference block")
		}
		idx[sig.Weak] = append(idx[sig.Weak], sig)
	}
	return idx, nil
}

// BuildSignatures partitions r into contiguous, non-overlapping blocks of
// blockSize bytes, emitting one BlockSignature per block on the returned
// channel. The final block carries the short tail if the reference's
// size is not a multiple of blockSize. An empty reader yields a closed
// channel with no values. The caller must drain the channel or cancel
// ctx, or the producing goroutine will block forever on a full send.
func BuildSignatures(ctx context.Context, r io.Reader, blockSize int) (<-chan BlockSignature, error) {
	if blockSize <= 0 {
		return nil, errors.Wrapf(ErrConfigInvalid, "block size must be positive, got %d", blockSize)
	}

	out := make(chan BlockSignature)

	go func() {
		defer close(out)

		buffer := make([]byte, blockSize)
		var offset uint64

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			n, err := io.ReadFull(r, buffer)
			if n == 0 && (err == io.EOF || err == io.ErrUnexpectedEOF) {
				return
			}
			if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
				// A short read beyond EOF is end-of-stream, not an
				// error (spec.md §4.2); any other failure surfaces to
				// the caller and ends the stream.
				select {
				case out <- BlockSignature{Err: errors.Wrapf(err, "rsynx: reading reference block at offset %d", offset)}:
				case <-ctx.Done():
				}
				return
			}

			block := buffer[:n]
			_, _, weak := weakChecksum(block)
			sig := BlockSignature{
				Offset: offset,
				Length: uint32(n),
				Weak:   weak,
				Strong: strongDigest(block),
			}

			select {
			case out <- sig:
			case <-ctx.Done():
				return
			}

			offset += uint64(n)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return
			}
		}
	}()

	return out, nil
}
