// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

import (
	"github.com/minio/sha256-simd"
)

// Rolling checksum accumulators are 16 bits each, packed into a 32 bit
// value, following the scheme described in Tridgell's rsync thesis.
const mod = 1 << 16

// weakChecksum computes the rolling checksum of block from scratch. The
// two 16-bit accumulators a and b are returned alongside the packed
// 32-bit value so a caller doing incremental updates can keep rolling
// without recomputing them.
func weakChecksum(block []byte) (a, b, packed uint32) {
	n := uint32(len(block))
	for i, k := range block {
		a += uint32(k)
		b += (n - uint32(i)) * uint32(k)
	}
	a &= 0xFFFF
	b &= 0xFFFF
	packed = (a & 0xFFFF) | (b << 16)
	return a, b, packed
}

// rollChecksum advances a weak checksum by one byte: old leaves the
// window, new enters it. n is the full window width. All arithmetic
// wraps modulo 2^16 per accumulator, matching spec.md's rolling update
// contract.
func rollChecksum(a, b, n uint32, old, new byte) (na, nb, packed uint32) {
	na = (a - uint32(old) + uint32(new)) & 0xFFFF
	nb = (b - n*uint32(old) + na) & 0xFFFF
	packed = (na & 0xFFFF) | (nb << 16)
	return na, nb, packed
}

// strongDigestSize is the length, in bytes, of the strong content digest
// (256 bits).
const strongDigestSize = sha256.Size

// strongDigest returns the 256-bit confirming digest of block. It uses
// an AVX2/SHA-NI accelerated SHA-256 implementation rather than the
// standard library's, since this function sits on the hot path of every
// weak-hash hit during a scan.
func strongDigest(block []byte) []byte {
	sum := sha256.Sum256(block)
	return sum[:]
}
