// This Source Code Form is subject to the terms of the Mozilla Public
// License, version 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package rsynx

// InstructionKind distinguishes the two reconstruction instructions from
// spec.md §3.
type InstructionKind byte

const (
	// InstructionCopy means copy Length bytes from the reference file
	// starting at SourceOffset.
	InstructionCopy InstructionKind = iota
	// InstructionLiteral means append Data verbatim.
	InstructionLiteral
)

// Instruction is one step of a reconstruction plan. The concatenation of
// the bytes produced by an instruction stream, in order, equals the
// source file's contents.
type Instruction struct {
	Kind InstructionKind

	// SourceOffset and Length are set for InstructionCopy: they locate
	// the byte range in the *reference* (destination-side) file.
	SourceOffset uint64
	Length       uint64

	// Data is set for InstructionLiteral.
	Data []byte

	// Err, when non-nil, means scanning failed; every other field is
	// zero and this is the last instruction on the channel.
	Err error
}

// TransferResult holds the two byte counters from spec.md §3. For a
// directory, results are summed over its files. NewBytes + ReusedBytes
// equals the source size for a fully matched file.
type TransferResult struct {
	NewBytes    uint64
	ReusedBytes uint64
}

// Add accumulates other into r, as directory sync sums file results.
func (r *TransferResult) Add(other TransferResult) {
	r.NewBytes += other.NewBytes
	r.ReusedBytes += other.ReusedBytes
}
