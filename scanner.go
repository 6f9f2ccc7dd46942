// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import (
	"bytes"
	"context"
	"io"

	"github.com/pkg/errors"
)

// Scan reads source (size sourceSize) and emits an ordered Instruction
// stream reconstructing it against index, following spec.md §4.3
// exactly: a fast path for sources smaller than blockSize, then a
// byte-at-a-time sliding window over full-width blocks, weak-hash probe
// followed by a strong-hash confirmation, with unmatched regions emitted
// as LITERAL runs. A trailing run shorter than blockSize left after the
// window stops is emitted as a COPY when it equals a reference block of
// the same length, and as a LITERAL otherwise; the fast path for short
// sources never copies. source must support ReadAt; the scanner never
// re-reads a byte once it has been committed to the output.
//
// The caller must drain the returned channel or cancel ctx, or the
// producing goroutine will block forever on a full send.
func Scan(ctx context.Context, source io.ReaderAt, sourceSize int64, index SignatureIndex, blockSize int) (<-chan Instruction, error) {
	if blockSize <= 0 {
		return nil, errors.Wrapf(ErrConfigInvalid, "block size must be positive, got %d", blockSize)
	}

	out := make(chan Instruction)

	go func() {
		defer close(out)

		fail := func(err error) bool {
			select {
			case out <- Instruction{Err: err}:
			case <-ctx.Done():
			}
			return false
		}

		send := func(ins Instruction) bool {
			select {
			case out <- ins:
				return true
			case <-ctx.Done():
				return false
			}
		}

		readAt := func(off int64, n int) ([]byte, error) {
			buf := make([]byte, n)
			_, err := io.ReadFull(io.NewSectionReader(source, off, int64(n)), buf)
			if err != nil {
				return nil, err
			}
			return buf, nil
		}

		bs := int64(blockSize)

		// Fast path: sources smaller than one block are always a
		// single LITERAL.
		if sourceSize < bs {
			if sourceSize == 0 {
				return
			}
			data, err := readAt(0, int(sourceSize))
			if err != nil {
				fail(errors.Wrapf(err, "rsynx: reading short source"))
				return
			}
			send(Instruction{Kind: InstructionLiteral, Data: data})
			return
		}

		window, err := readAt(0, blockSize)
		if err != nil {
			fail(errors.Wrapf(err, "rsynx: reading initial window"))
			return
		}
		a, b, weak := weakChecksum(window)

		var pos int64
		var lastEmit int64

		emitLiteralUpTo := func(upto int64) bool {
			if upto <= lastEmit {
				return true
			}
			data, err := readAt(lastEmit, int(upto-lastEmit))
			if err != nil {
				fail(errors.Wrapf(err, "rsynx: reading literal run"))
				return false
			}
			if !send(Instruction{Kind: InstructionLiteral, Data: data}) {
				return false
			}
			lastEmit = upto
			return true
		}

		for pos+bs <= sourceSize {
			select {
			case <-ctx.Done():
				return
			default:
			}

			if candidates, ok := index[weak]; ok {
				strong := strongDigest(window)
				var match *BlockSignature
				for i := range candidates {
					if bytes.Equal(candidates[i].Strong, strong) {
						match = &candidates[i]
						break
					}
				}
				if match != nil {
					if !emitLiteralUpTo(pos) {
						return
					}
					if !send(Instruction{
						Kind:         InstructionCopy,
						SourceOffset: match.Offset,
						Length:       uint64(match.Length),
					}) {
						return
					}
					pos += bs
					lastEmit = pos
					if pos+bs <= sourceSize {
						window, err = readAt(pos, blockSize)
						if err != nil {
							fail(errors.Wrapf(err, "rsynx: reading window at offset %d", pos))
							return
						}
						a, b, weak = weakChecksum(window)
					} else {
						break
					}
					continue
				}
			}

			// Slide by one byte.
			pos++
			if pos+bs <= sourceSize {
				nextByte, err := readAt(pos+bs-1, 1)
				if err != nil {
					fail(errors.Wrapf(err, "rsynx: reading byte at offset %d", pos+bs-1))
					return
				}
				old := window[0]
				window = append(window[1:], nextByte[0])
				a, b, weak = rollChecksum(a, b, uint32(bs), old, nextByte[0])
			} else {
				break
			}
		}

		if lastEmit < sourceSize {
			// A trailing run shorter than a block is copied when it equals a
			// reference block of the same length (the reference's short tail).
			if tailLen := sourceSize - lastEmit; tailLen < bs {
				if tail, err := readAt(lastEmit, int(tailLen)); err == nil {
					_, _, tailWeak := weakChecksum(tail)
					for _, sig := range index[tailWeak] {
						if int64(sig.Length) == tailLen && bytes.Equal(sig.Strong, strongDigest(tail)) {
							send(Instruction{Kind: InstructionCopy, SourceOffset: sig.Offset, Length: uint64(sig.Length)})
							return
						}
					}
				}
			}
			emitLiteralUpTo(sourceSize)
		}
	}()

	return out, nil
}
