package rsynx

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/hooklift/assert"
)

// drive builds a signature index from reference, scans source against
// it, and returns the reconstructed bytes plus the transfer result, by
// applying the instructions itself in memory (LITERAL data appended,
// COPY ranges read from an in-memory reference reader).
func drive(t *testing.T, source, reference []byte, blockSize int) ([]byte, TransferResult) {
	t.Helper()
	ctx := context.Background()

	sigs, err := BuildSignatures(ctx, bytes.NewReader(reference), blockSize)
	assert.Ok(t, err)
	index, err := BuildSignatureIndex(ctx, sigs)
	assert.Ok(t, err)

	ins, err := Scan(ctx, bytes.NewReader(source), int64(len(source)), index, blockSize)
	assert.Ok(t, err)

	var out bytes.Buffer
	var result TransferResult
	ref := bytes.NewReader(reference)
	for in := range ins {
		assert.Ok(t, in.Err)
		switch in.Kind {
		case InstructionLiteral:
			out.Write(in.Data)
			result.NewBytes += uint64(len(in.Data))
		case InstructionCopy:
			buf := make([]byte, in.Length)
			_, err := ref.ReadAt(buf, int64(in.SourceOffset))
			assert.Ok(t, err)
			out.Write(buf)
			result.ReusedBytes += uint64(len(buf))
		}
	}
	return out.Bytes(), result
}

func TestScanSingleByteEdit(t *testing.T) {
	source := []byte("0123456789")
	reference := []byte("012345a789")
	got, result := drive(t, source, reference, 4)
	assert.Equals(t, source, got)
	assert.Cond(t, result.ReusedBytes > 0, "expected at least one COPY instruction")
}

func TestScanEmptyReference(t *testing.T) {
	source := []byte("0123456789")
	got, result := drive(t, source, nil, 4)
	assert.Equals(t, source, got)
	assert.Equals(t, uint64(0), result.ReusedBytes)
	assert.Equals(t, uint64(len(source)), result.NewBytes)
}

func TestScanIdenticalFiles(t *testing.T) {
	content := []byte("0123456789")
	got, result := drive(t, content, content, 4)
	assert.Equals(t, content, got)
	assert.Equals(t, uint64(len(content)), result.ReusedBytes)
	assert.Equals(t, uint64(0), result.NewBytes)
}

func TestScanBinaryDataWithZeroByte(t *testing.T) {
	source := []byte{0, 1, 2, 3, 255, 254, 253, 252}
	reference := []byte{0, 1, 2, 3, 0, 254, 253, 252}
	got, _ := drive(t, source, reference, 4)
	assert.Equals(t, source, got)
}

func TestScanEmptySource(t *testing.T) {
	got, result := drive(t, nil, []byte("0123456789"), 4)
	assert.Equals(t, 0, len(got))
	assert.Equals(t, uint64(0), result.NewBytes)
	assert.Equals(t, uint64(0), result.ReusedBytes)
}

func TestScanShortSourceFastPath(t *testing.T) {
	source := []byte("ab")
	got, result := drive(t, source, []byte("xyz"), 8)
	assert.Equals(t, source, got)
	assert.Equals(t, uint64(len(source)), result.NewBytes)
	assert.Equals(t, uint64(0), result.ReusedBytes)
}

// TestNewPlusReusedEqualsSourceSize is the §8 universal invariant:
// new_bytes + reused_bytes == |S| for all sources.
func TestNewPlusReusedEqualsSourceSize(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for trial := 0; trial < 30; trial++ {
		srcSize := rng.Intn(4000)
		refSize := rng.Intn(4000)
		source := randBytes(rng, srcSize)
		reference := randBytes(rng, refSize)
		blockSize := 1 + rng.Intn(200)

		_, result := drive(t, source, reference, blockSize)
		assert.Equals(t, uint64(srcSize), result.NewBytes+result.ReusedBytes)
	}
}

// TestRoundTripReconstructsSource is the §8 universal invariant: syncing
// S onto a copy of R yields a target whose bytes equal S, for arbitrary
// inputs sharing a block size.
func TestRoundTripReconstructsSource(t *testing.T) {
	rng := rand.New(rand.NewSource(99))

	for trial := 0; trial < 30; trial++ {
		srcSize := rng.Intn(4000)
		refSize := rng.Intn(4000)
		source := randBytes(rng, srcSize)
		reference := randBytes(rng, refSize)
		blockSize := 1 + rng.Intn(200)

		got, _ := drive(t, source, reference, blockSize)
		assert.Equals(t, source, got)
	}
}

func randBytes(rng *rand.Rand, n int) []byte {
	if n == 0 {
		return nil
	}
	b := make([]byte, n)
	rng.Read(b)
	return b
}
