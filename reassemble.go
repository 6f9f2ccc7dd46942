// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// tempPath derives the reassembler's temporary sibling path from target,
// per spec.md §6: the target path with its extension replaced by (or
// appended with) "tmp". Only the last extension is replaced; a target
// whose extension already is ".tmp" gets ".tmp" appended, so the
// temporary never coincides with target. The temporary lives in the same
// directory as target so the final rename is atomic even on filesystems
// that don't support atomic rename across parents.
func tempPath(target string) string {
	ext := filepath.Ext(target)
	if ext == "" || ext == ".tmp" {
		return target + ".tmp"
	}
	return strings.TrimSuffix(target, ext) + ".tmp"
}

// ProgressFunc, if non-nil, is invoked as bytes are committed to the
// temporary file during reassembly; written is the cumulative byte
// count, total is the source size. It recovers the per-file progress
// bar the original implementation drove from indicatif; a nil
// ProgressFunc is a no-op so headless and network-server use incurs no
// cost.
type ProgressFunc func(written, total int64)

// Reassemble consumes an instruction stream plus read access to an
// existing reference file (required iff any InstructionCopy is present)
// and materialises target, committing atomically: it creates a
// temporary sibling file, pre-sizes it to sourceSize, writes into it in
// instruction order, optionally preserves metadata from metadataSource,
// then renames it over target. On any failure the target is left
// untouched; the temporary may be left behind and is safe to delete.
//
// referenceSize bounds every InstructionCopy's [SourceOffset,
// SourceOffset+Length) range; it is ignored when reference is nil. Once
// Reassemble decides to fail, it keeps ranging over ins without acting
// on further instructions, so the producer's send never blocks forever
// on a full, unbuffered channel — ins is always drained to its close.
func Reassemble(target string, sourceSize int64, ins <-chan Instruction, reference io.ReaderAt, referenceSize int64, cfg Config, metadataSource string, progress ProgressFunc) (result TransferResult, err error) {
	tmp := tempPath(target)

	f, ferr := os.OpenFile(tmp, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if ferr != nil {
		drain(ins)
		return result, errors.Wrapf(ferr, "rsynx: creating temporary file %s", tmp)
	}
	defer f.Close()

	if ferr := f.Truncate(sourceSize); ferr != nil {
		err = errors.Wrapf(ferr, "rsynx: presizing temporary file %s", tmp)
	}

	var cursor int64
	for in := range ins {
		if err != nil {
			continue // keep draining so the producer's send never blocks
		}

		if in.Err != nil {
			err = errors.Wrapf(in.Err, "rsynx: scanning source")
			continue
		}

		switch in.Kind {
		case InstructionLiteral:
			if len(in.Data) == 0 {
				continue
			}
			if _, werr := f.WriteAt(in.Data, cursor); werr != nil {
				err = errors.Wrapf(werr, "rsynx: writing literal at offset %d", cursor)
				continue
			}
			cursor += int64(len(in.Data))
			result.NewBytes += uint64(len(in.Data))

		case InstructionCopy:
			if reference == nil {
				err = errors.Wrapf(ErrIoFailure, "rsynx: COPY instruction with no reference file")
				continue
			}
			end := int64(in.SourceOffset) + int64(in.Length)
			if in.Length > 0 && (int64(in.SourceOffset) < 0 || end > referenceSize) {
				err = errors.Wrapf(ErrProtocolViolation, "rsynx: COPY range [%d,%d) out of bounds for reference of size %d", in.SourceOffset, end, referenceSize)
				continue
			}
			buf := make([]byte, in.Length)
			if _, rerr := reference.ReadAt(buf, int64(in.SourceOffset)); rerr != nil && rerr != io.EOF {
				err = errors.Wrapf(rerr, "rsynx: reading reference at offset %d", in.SourceOffset)
				continue
			}
			if _, werr := f.WriteAt(buf, cursor); werr != nil {
				err = errors.Wrapf(werr, "rsynx: writing copy at offset %d", cursor)
				continue
			}
			cursor += int64(len(buf))
			result.ReusedBytes += uint64(len(buf))
		}

		if progress != nil {
			progress(cursor, sourceSize)
		}
	}

	if err != nil {
		return result, err
	}

	if err := f.Sync(); err != nil {
		return result, errors.Wrapf(err, "rsynx: flushing temporary file %s", tmp)
	}

	if cfg.PreserveMetadata && metadataSource != "" {
		if err := preserveMetadata(metadataSource, tmp); err != nil {
			return result, err
		}
	}

	if err := f.Close(); err != nil {
		return result, errors.Wrapf(err, "rsynx: closing temporary file %s", tmp)
	}

	if err := os.Rename(tmp, target); err != nil {
		return result, errors.Wrapf(err, "rsynx: renaming %s to %s", tmp, target)
	}

	return result, nil
}

// drain discards every remaining value on ins so a producer blocked on
// an unbuffered send can always make progress, even when Reassemble
// fails before the channel is ever ranged over.
func drain(ins <-chan Instruction) {
	for range ins {
	}
}
