package isa

import "fmt"

// Field layout of a MIPS machine word:
//
//	opcode[31:26] rs[25:21] rt[20:16] rd[15:11] shamt[10:6] funct[5:0]
//	opcode[31:26] rs[25:21] rt[20:16] imm[15:0]
//	opcode[31:26] target[25:0]

// Decode maps a machine word to its Instruction. It is total: words that
// match no table entry come back as OpIllegal carrying the raw word, so a
// bad fetch is always visible to the engine rather than misexecuted.
func Decode(word uint32) Instruction {
	opcode := uint8(word >> 26)
	rs := uint8(word >> 21 & 0x1F)
	rt := uint8(word >> 16 & 0x1F)
	rd := uint8(word >> 11 & 0x1F)
	shamt := uint8(word >> 6 & 0x1F)
	funct := uint8(word & 0x3F)
	imm := uint16(word & 0xFFFF)

	var op Op

	switch opcode {
	case opcodeSpecial:
		op = functMap[funct]
		if op != OpIllegal {
			return Instruction{Op: op, Rs: rs, Rt: rt, Rd: rd, Shamt: shamt}
		}
	case opcodeRegimm:
		op = regimmMap[rt]
		if op != OpIllegal {
			return Instruction{Op: op, Rs: rs, Imm: imm}
		}
	case opcodeAlgebra:
		op = algebraMap[funct]
		if op != OpIllegal {
			return Instruction{Op: op, Rs: rs, Rt: rt, Rd: rd}
		}
	default:
		op = primaryMap[opcode]
		switch {
		case op == OpIllegal:
		case opTable[op].format == FormatJump:
			return Instruction{Op: op, Target: word & 0x03FFFFFF}
		default:
			return Instruction{Op: op, Rs: rs, Rt: rt, Imm: imm}
		}
	}

	return Instruction{Op: OpIllegal, Raw: word}
}

// Encode maps an Instruction back to its machine word. It fails only for
// OpIllegal; for every legal instruction Decode(Encode(i)) == i provided
// unused fields are zero.
func Encode(inst Instruction) (uint32, error) {
	if inst.Op == OpIllegal || inst.Op >= opCount {
		return 0, fmt.Errorf("cannot encode illegal instruction (raw %#08x)", inst.Raw)
	}

	info := &opTable[inst.Op]

	switch info.format {
	case FormatFunc:
		return uint32(inst.Rs&0x1F)<<21 |
			uint32(inst.Rt&0x1F)<<16 |
			uint32(inst.Rd&0x1F)<<11 |
			uint32(inst.Shamt&0x1F)<<6 |
			uint32(info.code), nil
	case FormatRegimm:
		return uint32(opcodeRegimm)<<26 |
			uint32(inst.Rs&0x1F)<<21 |
			uint32(info.code)<<16 |
			uint32(inst.Imm), nil
	case FormatAlgebra:
		return uint32(opcodeAlgebra)<<26 |
			uint32(inst.Rs&0x1F)<<21 |
			uint32(inst.Rt&0x1F)<<16 |
			uint32(inst.Rd&0x1F)<<11 |
			uint32(info.code), nil
	case FormatJump:
		return uint32(info.code)<<26 | inst.Target&0x03FFFFFF, nil
	default: // FormatImmediate
		return uint32(info.code)<<26 |
			uint32(inst.Rs&0x1F)<<21 |
			uint32(inst.Rt&0x1F)<<16 |
			uint32(inst.Imm), nil
	}
}

// MustEncode is Encode for instructions known to be legal, such as
// assembler-generated expansions. It panics on OpIllegal because that is a
// programming error, not an input error.
func MustEncode(inst Instruction) uint32 {
	word, err := Encode(inst)
	if err != nil {
		panic(err)
	}
	return word
}
