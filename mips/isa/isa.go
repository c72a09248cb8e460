// Package isa models the MIPS32 integer instruction set: the canonical
// mapping between mnemonics, operand fields and 32-bit machine words.
// Pseudo-instructions are an assembler concern and never appear here.
package isa

// Op identifies a single machine instruction. The set is closed: every
// 32-bit word decodes to exactly one Op, with OpIllegal covering every
// pattern the architecture does not define.
type Op uint8

const (
	OpIllegal Op = iota

	// SPECIAL (opcode 0, selected by funct)
	OpSll
	OpSrl
	OpSra
	OpSllv
	OpSrlv
	OpSrav
	OpJr
	OpJalr
	OpSyscall
	OpMfhi
	OpMthi
	OpMflo
	OpMtlo
	OpMult
	OpMultu
	OpDiv
	OpDivu
	OpAdd
	OpAddu
	OpSub
	OpSubu
	OpAnd
	OpOr
	OpXor
	OpNor
	OpSlt
	OpSltu

	// REGIMM (opcode 1, selected by rt)
	OpBltz
	OpBgez
	OpBltzal
	OpBgezal

	// Jumps
	OpJ
	OpJal

	// Immediate
	OpBeq
	OpBne
	OpBlez
	OpBgtz
	OpAddi
	OpAddiu
	OpSlti
	OpSltiu
	OpAndi
	OpOri
	OpXori
	OpLui
	OpLlo
	OpLhi
	OpTrap

	// ALGEBRA (opcode 28, selected by funct)
	OpMadd
	OpMaddu
	OpMul
	OpMsub
	OpMsubu

	// Loads and stores
	OpLb
	OpLh
	OpLw
	OpLbu
	OpLhu
	OpSb
	OpSh
	OpSw

	opCount
)

// Format describes how an Op's fields are packed into a machine word.
type Format uint8

const (
	// FormatFunc is opcode 0 with the op selected by the funct field.
	FormatFunc Format = iota
	// FormatRegimm is opcode 1 with the op selected by the rt field.
	FormatRegimm
	// FormatImmediate packs rs, rt and a 16-bit immediate.
	FormatImmediate
	// FormatJump packs a 26-bit word target.
	FormatJump
	// FormatAlgebra is opcode 28 with the op selected by the funct field.
	FormatAlgebra
)

// Shape describes the operand list the assembler expects for an Op.
type Shape uint8

const (
	ShapeNone      Shape = iota // no operands (syscall, trap)
	ShapeRegister               // rd, rs, rt
	ShapeShift                  // rd, rt, shamt
	ShapeShiftVar               // rd, rt, rs
	ShapeSource                 // rs
	ShapeDest                   // rd
	ShapeInputs                 // rs, rt
	ShapeImmediate              // rt, rs, imm
	ShapeLoadImm                // rt, imm
	ShapeBranch                 // rs, rt, label
	ShapeBranchZero             // rs, label
	ShapeJump                   // label
	ShapeOffset                 // rt, imm(rs)
)

// Flags carry per-instruction behavior the execution engine and debugger
// need without consulting mnemonics.
type Flags uint8

const (
	// FlagTraps marks arithmetic that faults on signed overflow instead
	// of wrapping.
	FlagTraps Flags = 1 << iota
	// FlagBranch marks PC-relative conditional branches.
	FlagBranch
	// FlagJump marks absolute jumps, including register jumps.
	FlagJump
	// FlagLink marks instructions that save a return address.
	FlagLink
	// FlagLoad and FlagStore mark memory accesses.
	FlagLoad
	FlagStore
)

// Instruction is a decoded machine word. Fields an Op does not use are
// zero; with that convention Encode and Decode are exact inverses.
type Instruction struct {
	Op     Op
	Rs     uint8
	Rt     uint8
	Rd     uint8
	Shamt  uint8
	Imm    uint16
	Target uint32 // 26-bit word index for FormatJump

	// Raw holds the undecodable word when Op is OpIllegal.
	Raw uint32
}

// Mnemonic returns the assembly name for the op, or "illegal".
func (o Op) Mnemonic() string {
	return opTable[o].name
}

// Shape returns the operand shape the assembler parses for the op.
func (o Op) Shape() Shape {
	return opTable[o].shape
}

// Flags returns the behavior flags for the op.
func (o Op) Flags() Flags {
	return opTable[o].flags
}

// Branches reports whether the op can redirect control flow.
func (o Op) Branches() bool {
	return opTable[o].flags&(FlagBranch|FlagJump) != 0
}

// Links reports whether the op saves a return address in $ra.
func (o Op) Links() bool {
	return opTable[o].flags&FlagLink != 0
}

// Traps reports whether the op faults on signed overflow.
func (o Op) Traps() bool {
	return opTable[o].flags&FlagTraps != 0
}
