// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package netsync

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/AsheeHuang/rsynx"
)

// Client holds the source side of the network driver.
type Client struct {
	Config rsynx.Config
}

// NewClient returns a Client with the given configuration. Both client
// and server must agree on Config.BlockSize for the signature exchange
// to be useful.
func NewClient(cfg rsynx.Config) *Client {
	return &Client{Config: cfg}
}

// Sync connects to address, sends source, and synchronizes it onto
// destination as seen by the server, per spec.md §4.6's handshake,
// signature, and instruction phases. Only regular files are supported;
// a directory source is rejected before any connection is made.
func (c *Client) Sync(address string, source, destination string) (rsynx.TransferResult, error) {
	info, err := os.Stat(source)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(rsynx.ErrInputNotFound, "source %s: %v", source, err)
	}
	if !info.Mode().IsRegular() {
		return rsynx.TransferResult{}, errors.Wrapf(rsynx.ErrConfigInvalid, "only regular file sources are supported over the network, got %s", source)
	}

	conn, err := net.Dial("tcp", address)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: connecting to %s", address)
	}
	defer conn.Close()
	glog.Infof("connected to %s", address)

	srcFile, err := os.Open(source)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: opening source %s", source)
	}
	defer srcFile.Close()

	sourceSize := info.Size()
	if _, err := fmt.Fprintf(conn, "%s %s %s %d\n", cmdFile, filepath.Base(source), destination, sourceSize); err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: writing FILE command")
	}

	reader := bufio.NewReader(conn)
	index, err := readSignatures(reader)
	if err != nil {
		return rsynx.TransferResult{}, err
	}

	ctx := context.Background()
	ins, err := rsynx.Scan(ctx, srcFile, sourceSize, index, c.Config.BlockSize)
	if err != nil {
		return rsynx.TransferResult{}, err
	}

	var enc *zstd.Encoder
	if c.Config.Compress {
		enc, err = zstd.NewWriter(nil)
		if err != nil {
			return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: initializing compressor")
		}
		defer enc.Close()
	}

	var result rsynx.TransferResult
	for in := range ins {
		if in.Err != nil {
			return result, errors.Wrapf(in.Err, "rsynx: scanning source %s", source)
		}

		switch in.Kind {
		case rsynx.InstructionLiteral:
			if err := writeLiteral(conn, enc, in.Data); err != nil {
				return result, err
			}
			result.NewBytes += uint64(len(in.Data))

		case rsynx.InstructionCopy:
			if _, err := fmt.Fprintf(conn, "%s %d %d\n", cmdCopy, in.SourceOffset, in.Length); err != nil {
				return result, errors.Wrapf(err, "rsynx: writing COPY frame")
			}
			result.ReusedBytes += in.Length
		}
	}

	if _, err := fmt.Fprintf(conn, "%s\n", cmdDone); err != nil {
		return result, errors.Wrapf(err, "rsynx: writing DONE")
	}

	glog.Infof("sync to %s completed: new=%d reused=%d", address, result.NewBytes, result.ReusedBytes)
	return result, nil
}

// writeLiteral writes a DATA frame, or a CDATA frame when enc is
// non-nil, per the Config.Compress extension documented in
// SPEC_FULL.md's DOMAIN STACK section.
func writeLiteral(w io.Writer, enc *zstd.Encoder, data []byte) error {
	if enc == nil {
		if _, err := fmt.Fprintf(w, "%s %d\n", cmdData, len(data)); err != nil {
			return errors.Wrapf(err, "rsynx: writing DATA frame")
		}
		if _, err := w.Write(data); err != nil {
			return errors.Wrapf(err, "rsynx: writing DATA payload")
		}
		return nil
	}

	compressed := enc.EncodeAll(data, nil)
	if _, err := fmt.Fprintf(w, "%s %d %d\n", cmdCData, len(compressed), len(data)); err != nil {
		return errors.Wrapf(err, "rsynx: writing CDATA frame")
	}
	if _, err := w.Write(compressed); err != nil {
		return errors.Wrapf(err, "rsynx: writing CDATA payload")
	}
	return nil
}

// readSignatures reads the server's signature phase response: either a
// single NOBLK line, or a run of BLK lines terminated by BLKEND. The
// returned index is empty (never nil) when the server sent NOBLK, so the
// scanner's weak-hash probe always misses and only DATA/CDATA frames are
// ever produced — the resolution of spec.md §9's first open question.
func readSignatures(r *bufio.Reader) (rsynx.SignatureIndex, error) {
	index := make(rsynx.SignatureIndex)

	line, err := readLine(r)
	if err != nil {
		return nil, errors.Wrapf(err, "rsynx: reading signature phase header")
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "empty signature phase response")
	}

	if fields[0] == cmdNoBlk {
		return index, nil
	}
	if fields[0] == cmdBlkEnd {
		return index, nil
	}
	if fields[0] != cmdBlk {
		return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "unexpected signature phase response: %s", line)
	}

	for {
		fields := strings.Fields(line)
		if len(fields) == 1 && fields[0] == cmdBlkEnd {
			return index, nil
		}
		if len(fields) != 5 || fields[0] != cmdBlk {
			return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "malformed BLK line: %s", line)
		}

		offset, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "malformed BLK offset: %s", line)
		}
		length, err := strconv.ParseUint(fields[2], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "malformed BLK length: %s", line)
		}
		weak, err := strconv.ParseUint(fields[3], 10, 32)
		if err != nil {
			return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "malformed BLK weak checksum: %s", line)
		}
		strong, err := hex.DecodeString(fields[4])
		if err != nil {
			return nil, errors.Wrapf(rsynx.ErrProtocolViolation, "malformed BLK strong digest: %s", line)
		}

		sig := rsynx.BlockSignature{
			Offset: offset,
			Length: uint32(length),
			Weak:   uint32(weak),
			Strong: strong,
		}
		index[sig.Weak] = append(index[sig.Weak], sig)

		line, err = readLine(r)
		if err != nil {
			return nil, errors.Wrapf(err, "rsynx: reading BLK line")
		}
	}
}
