package rsynx

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hooklift/assert"
)

func TestTempPath(t *testing.T) {
	assert.Equals(t, "/a/b/file.tmp", tempPath("/a/b/file.txt"))
	assert.Equals(t, "/a/b/file.tmp", tempPath("/a/b/file"))
	assert.Equals(t, "/a/b/archive.tar.tmp", tempPath("/a/b/archive.tar.gz"))
}

func TestReassembleFullSync(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target.txt")
	assert.Ok(t, os.WriteFile(dst, []byte("012345a789"), 0644))

	ctx := context.Background()
	reference, err := os.Open(dst)
	assert.Ok(t, err)
	defer reference.Close()

	sigs, err := BuildSignatures(ctx, reference, 4)
	assert.Ok(t, err)
	index, err := BuildSignatureIndex(ctx, sigs)
	assert.Ok(t, err)

	source := []byte("0123456789")
	ins, err := Scan(ctx, bytes.NewReader(source), int64(len(source)), index, 4)
	assert.Ok(t, err)

	result, err := Reassemble(dst, int64(len(source)), ins, reference, 10, Config{BlockSize: 4}, "", nil)
	assert.Ok(t, err)
	assert.Equals(t, uint64(len(source)), result.NewBytes+result.ReusedBytes)

	got, err := os.ReadFile(dst)
	assert.Ok(t, err)
	assert.Equals(t, source, got)

	_, err = os.Stat(tempPath(dst))
	assert.Cond(t, os.IsNotExist(err), "temporary file should have been renamed away")
}

func TestReassembleLeavesTargetUntouchedOnFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target.txt")
	assert.Ok(t, os.WriteFile(dst, []byte("original"), 0644))

	ins := make(chan Instruction, 1)
	ins <- Instruction{Err: errBoom}
	close(ins)

	_, err := Reassemble(dst, 8, ins, nil, 0, Config{BlockSize: 4}, "", nil)
	assert.Cond(t, err != nil, "expected an error")

	got, err := os.ReadFile(dst)
	assert.Ok(t, err)
	assert.Equals(t, []byte("original"), got)
}

func TestReassembleRejectsOutOfBoundsCopy(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target.txt")
	assert.Ok(t, os.WriteFile(dst, []byte("original"), 0644))

	reference, err := os.Open(dst)
	assert.Ok(t, err)
	defer reference.Close()

	ins := make(chan Instruction, 1)
	ins <- Instruction{Kind: InstructionCopy, SourceOffset: 100, Length: 4}
	close(ins)

	_, err = Reassemble(dst, 4, ins, reference, int64(len("original")), Config{BlockSize: 4}, "", nil)
	assert.Cond(t, err != nil, "expected an out-of-bounds COPY to be rejected")

	got, err := os.ReadFile(dst)
	assert.Ok(t, err)
	assert.Equals(t, []byte("original"), got)
}

// TestReassembleDrainsProducerOnEarlyFailure guards against the deadlock
// fixed in Reassemble: a producer still sending on an unbuffered channel
// after the first bad instruction must never block forever just because
// Reassemble has already decided to fail.
func TestReassembleDrainsProducerOnEarlyFailure(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "target.txt")
	assert.Ok(t, os.WriteFile(dst, []byte("original"), 0644))

	ins := make(chan Instruction) // unbuffered, like the network driver's
	producerDone := make(chan struct{})
	go func() {
		defer close(producerDone)
		ins <- Instruction{Err: errBoom}
		for i := 0; i < 10; i++ {
			ins <- Instruction{Kind: InstructionLiteral, Data: []byte("x")}
		}
		close(ins)
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := Reassemble(dst, 8, ins, nil, 0, Config{BlockSize: 4}, "", nil)
		assert.Cond(t, err != nil, "expected an error")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Reassemble did not return; producer is likely blocked on a full channel")
	}

	select {
	case <-producerDone:
	case <-time.After(2 * time.Second):
		t.Fatal("producer goroutine did not finish; Reassemble failed to drain ins")
	}
}

var errBoom = os.ErrInvalid
