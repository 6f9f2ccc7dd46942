package rsynx

import (
	"bytes"
	"context"
	"math/rand"
	"testing"

	"github.com/pkg/profile"
)

var alpha = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789"

func srand(seed int64, size int) []byte {
	r := rand.New(rand.NewSource(seed))
	buf := make([]byte, size)
	for i := range buf {
		buf[i] = alpha[r.Intn(len(alpha))]
	}
	return buf
}

func runFullSync(b *testing.B, blockSize int, size int) {
	b.Helper()
	ctx := context.Background()
	source := srand(10, size)

	for i := 0; i < b.N; i++ {
		sigs, err := BuildSignatures(ctx, bytes.NewReader(nil), blockSize)
		if err != nil {
			b.Fatal(err)
		}
		index, err := BuildSignatureIndex(ctx, sigs)
		if err != nil {
			b.Fatal(err)
		}
		ins, err := Scan(ctx, bytes.NewReader(source), int64(len(source)), index, blockSize)
		if err != nil {
			b.Fatal(err)
		}
		for in := range ins {
			if in.Err != nil {
				b.Fatal(in.Err)
			}
		}
	}
}

// BenchmarkBlockSizes profiles a full (no-reference) scan across the
// block sizes this engine is commonly configured with, recovering the
// block-size comparison from the teacher's gsync_test.go benchmark stubs.
func BenchmarkBlockSizes(b *testing.B) {
	defer profile.Start(profile.CPUProfile, profile.NoShutdownHook).Stop()

	sizes := []struct {
		name      string
		blockSize int
	}{
		{"6kb", 6 * 1024},
		{"128kb", 128 * 1024},
		{"512kb", 512 * 1024},
		{"1024kb", 1024 * 1024},
	}

	const fileSize = 4 * 1024 * 1024
	for _, s := range sizes {
		b.Run(s.name, func(b *testing.B) {
			runFullSync(b, s.blockSize, fileSize)
		})
	}
}

func BenchmarkStrongDigestSHA256(b *testing.B) {
	block := srand(1, DefaultBlockSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		strongDigest(block)
	}
}

func BenchmarkWeakChecksum(b *testing.B) {
	block := srand(2, DefaultBlockSize)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, _ = weakChecksum(block)
	}
}
