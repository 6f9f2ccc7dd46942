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
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"

	"github.com/AsheeHuang/rsynx"
)

// Server holds the destination side of the network driver.
type Server struct {
	Config rsynx.Config
}

// NewServer returns a Server with the given configuration.
func NewServer(cfg rsynx.Config) *Server {
	return &Server{Config: cfg}
}

// Serve listens on port and serves connections one at a time, each to
// completion, with no per-connection goroutine pool: it loops over
// acceptAndServe on a single listener. A failed connection is logged and
// the loop goes on; Serve returns only if binding the port fails.
func (s *Server) Serve(port int) error {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return errors.Wrapf(err, "rsynx: binding to %s", listenAddr)
	}
	defer listener.Close()
	glog.Infof("server listening on %s", listenAddr)

	for {
		if _, err := s.acceptAndServe(listener); err != nil {
			glog.Warningf("serving connection: %+v", err)
		}
	}
}

// ServeOnce accepts exactly one connection, serves it to completion, and
// returns. It recovers the `serve_once` test helper from
// original_source/tests/network_sync_tests.rs, used by this repo's own
// network integration test to avoid an unbounded server goroutine.
func (s *Server) ServeOnce(port int) (rsynx.TransferResult, error) {
	listenAddr := fmt.Sprintf("0.0.0.0:%d", port)
	listener, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: binding to %s", listenAddr)
	}
	defer listener.Close()
	glog.Infof("server listening on %s (single connection)", listenAddr)

	return s.acceptAndServe(listener)
}

func (s *Server) acceptAndServe(listener net.Listener) (rsynx.TransferResult, error) {
	conn, err := listener.Accept()
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: accepting connection")
	}
	defer conn.Close()

	connID := uuid.New().String()
	glog.Infof("[%s] accepted connection from %s", connID, conn.RemoteAddr())

	result, err := s.handle(connID, conn)
	if err != nil {
		glog.Warningf("[%s] sync failed: %+v", connID, err)
		return result, err
	}
	glog.Infof("[%s] sync completed: new=%d reused=%d", connID, result.NewBytes, result.ReusedBytes)
	return result, nil
}

func (s *Server) handle(connID string, conn net.Conn) (rsynx.TransferResult, error) {
	reader := bufio.NewReader(conn)

	line, err := readLine(reader)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: reading FILE command")
	}

	fields := strings.Fields(line)
	if len(fields) != 4 || fields[0] != cmdFile {
		return rsynx.TransferResult{}, errors.Wrapf(rsynx.ErrProtocolViolation, "expected FILE command, got: %s", line)
	}
	destination := fields[2]
	sourceSize, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return rsynx.TransferResult{}, errors.Wrapf(rsynx.ErrProtocolViolation, "invalid source size in FILE command: %s", line)
	}

	glog.Infof("[%s] syncing to destination %s (%d bytes)", connID, destination, sourceSize)

	var reference *os.File
	var referenceSize int64
	destExists := false
	if info, statErr := os.Stat(destination); statErr == nil {
		if !info.Mode().IsRegular() {
			return rsynx.TransferResult{}, errors.Wrapf(rsynx.ErrProtocolViolation, "destination %s is not a regular file", destination)
		}
		destExists = true
		referenceSize = info.Size()
		reference, err = os.Open(destination)
		if err != nil {
			return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: opening destination %s", destination)
		}
		defer reference.Close()
	}

	if destExists {
		if err := s.sendSignatures(conn, reference); err != nil {
			return rsynx.TransferResult{}, err
		}
	} else {
		if _, err := fmt.Fprintf(conn, "%s\n", cmdNoBlk); err != nil {
			return rsynx.TransferResult{}, errors.Wrapf(err, "rsynx: writing NOBLK")
		}
	}

	ins := make(chan rsynx.Instruction)
	errCh := make(chan error, 1)
	go func() {
		errCh <- readInstructions(reader, destExists, ins)
	}()

	result, err := rsynx.Reassemble(destination, sourceSize, ins, reference, referenceSize, s.Config, "", nil)
	if readErr := <-errCh; readErr != nil && err == nil {
		err = readErr
	}
	return result, err
}

// sendSignatures emits one BLK line per block of reference followed by
// BLKEND, per spec.md §4.6.
func (s *Server) sendSignatures(w io.Writer, reference *os.File) error {
	ctx := context.Background()
	sigs, err := rsynx.BuildSignatures(ctx, reference, s.Config.BlockSize)
	if err != nil {
		return err
	}
	for sig := range sigs {
		if sig.Err != nil {
			return errors.Wrapf(sig.Err, "rsynx: building destination signatures")
		}
		strongHex := hex.EncodeToString(sig.Strong)
		if _, err := fmt.Fprintf(w, "%s %d %d %d %s\n", cmdBlk, sig.Offset, sig.Length, sig.Weak, strongHex); err != nil {
			return errors.Wrapf(err, "rsynx: writing BLK line")
		}
	}
	if _, err := fmt.Fprintf(w, "%s\n", cmdBlkEnd); err != nil {
		return errors.Wrapf(err, "rsynx: writing BLKEND")
	}
	if _, err := reference.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(err, "rsynx: rewinding reference file")
	}
	return nil
}

// readInstructions parses the client's instruction stream (DATA, CDATA,
// COPY, DONE) and converts each frame into an rsynx.Instruction on ins,
// closing it when DONE arrives or an error occurs.
func readInstructions(r *bufio.Reader, destExists bool, ins chan<- rsynx.Instruction) error {
	defer close(ins)

	fail := func(err error) error {
		ins <- rsynx.Instruction{Err: err}
		return err
	}

	for {
		line, err := readLine(r)
		if err != nil {
			return fail(errors.Wrapf(err, "rsynx: reading instruction frame"))
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "empty instruction frame"))
		}

		switch fields[0] {
		case cmdDone:
			return nil

		case cmdData:
			if len(fields) != 2 {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed DATA frame: %s", line))
			}
			length, err := strconv.Atoi(fields[1])
			if err != nil || length < 0 {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed DATA length: %s", line))
			}
			data := make([]byte, length)
			if _, err := io.ReadFull(r, data); err != nil {
				return fail(errors.Wrapf(err, "rsynx: reading DATA payload"))
			}
			ins <- rsynx.Instruction{Kind: rsynx.InstructionLiteral, Data: data}

		case cmdCData:
			if len(fields) != 3 {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed CDATA frame: %s", line))
			}
			compLen, err1 := strconv.Atoi(fields[1])
			rawLen, err2 := strconv.Atoi(fields[2])
			if err1 != nil || err2 != nil || compLen < 0 || rawLen < 0 {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed CDATA lengths: %s", line))
			}
			compressed := make([]byte, compLen)
			if _, err := io.ReadFull(r, compressed); err != nil {
				return fail(errors.Wrapf(err, "rsynx: reading CDATA payload"))
			}
			data, err := decompress(compressed, rawLen)
			if err != nil {
				return fail(errors.Wrapf(err, "rsynx: decompressing CDATA payload"))
			}
			ins <- rsynx.Instruction{Kind: rsynx.InstructionLiteral, Data: data}

		case cmdCopy:
			if !destExists {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "COPY received but destination did not exist at signature phase"))
			}
			if len(fields) != 3 {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed COPY frame: %s", line))
			}
			offset, err1 := strconv.ParseUint(fields[1], 10, 64)
			length, err2 := strconv.ParseUint(fields[2], 10, 64)
			if err1 != nil || err2 != nil {
				return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "malformed COPY arguments: %s", line))
			}
			ins <- rsynx.Instruction{Kind: rsynx.InstructionCopy, SourceOffset: offset, Length: length}

		default:
			return fail(errors.Wrapf(rsynx.ErrProtocolViolation, "unknown instruction command: %s", fields[0]))
		}
	}
}

func decompress(data []byte, rawLen int) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, make([]byte, 0, rawLen))
	if err != nil {
		return nil, err
	}
	return out, nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\n"), nil
}
