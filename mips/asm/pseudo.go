package asm

import (
	"github.com/kmeister/go-mips/mips/isa"
)

// Pseudo-instruction expansion. Each pseudo becomes one or more machine
// words, using $at as the conventional assembler scratch register.
// Expansion happens before shape parsing so the resulting words flow
// through the same encoder and relocation machinery as real
// instructions.

// expandPseudo handles mnemonics outside the machine instruction set,
// plus the symbolic-address form of loads and stores. The second result
// is false when the mnemonic is not a pseudo and must be parsed by
// shape.
func (a *assembler) expandPseudo(mnemonic token) ([]emitted, bool, error) {
	switch mnemonic.text {
	case "nop":
		return []emitted{{inst: isa.Instruction{Op: isa.OpSll}}}, true, nil

	case "move":
		rd, err := a.register()
		if err != nil {
			return nil, true, err
		}
		a.cur.comma()
		rs, err := a.register()
		if err != nil {
			return nil, true, err
		}
		return []emitted{{inst: isa.Instruction{Op: isa.OpAddu, Rd: rd, Rs: rs}}}, true, nil

	case "li":
		return a.expandLoadImmediate()

	case "la":
		return a.expandLoadAddress()

	case "b":
		rel, err := a.branchTarget()
		if err != nil {
			return nil, true, err
		}
		return []emitted{{inst: isa.Instruction{Op: isa.OpBeq}, rel: rel}}, true, nil

	case "beqz":
		return a.expandBranchZeroCompare(isa.OpBeq)
	case "bnez":
		return a.expandBranchZeroCompare(isa.OpBne)

	case "blt":
		return a.expandBranchCompare(isa.OpSlt, isa.OpBne, false)
	case "bge":
		return a.expandBranchCompare(isa.OpSlt, isa.OpBeq, false)
	case "bgt":
		return a.expandBranchCompare(isa.OpSlt, isa.OpBne, true)
	case "ble":
		return a.expandBranchCompare(isa.OpSlt, isa.OpBeq, true)
	case "bltu":
		return a.expandBranchCompare(isa.OpSltu, isa.OpBne, false)
	case "bgeu":
		return a.expandBranchCompare(isa.OpSltu, isa.OpBeq, false)
	case "bgtu":
		return a.expandBranchCompare(isa.OpSltu, isa.OpBne, true)
	case "bleu":
		return a.expandBranchCompare(isa.OpSltu, isa.OpBeq, true)

	case "seq", "sne", "sge", "sgeu", "sgt", "sgtu", "sle", "sleu":
		return a.expandSetCompare(mnemonic.text)

	case "neg":
		return a.expandUnary(func(rd, rs uint8) []emitted {
			return []emitted{{inst: isa.Instruction{Op: isa.OpSub, Rd: rd, Rt: rs}}}
		})
	case "negu":
		return a.expandUnary(func(rd, rs uint8) []emitted {
			return []emitted{{inst: isa.Instruction{Op: isa.OpSubu, Rd: rd, Rt: rs}}}
		})
	case "not":
		return a.expandUnary(func(rd, rs uint8) []emitted {
			return []emitted{{inst: isa.Instruction{Op: isa.OpNor, Rd: rd, Rs: rs}}}
		})
	case "abs":
		return a.expandUnary(func(rd, rs uint8) []emitted {
			return []emitted{
				{inst: isa.Instruction{Op: isa.OpSra, Rd: isa.RegAt, Rt: rs, Shamt: 31}},
				{inst: isa.Instruction{Op: isa.OpXor, Rd: rd, Rs: rs, Rt: isa.RegAt}},
				{inst: isa.Instruction{Op: isa.OpSubu, Rd: rd, Rs: rd, Rt: isa.RegAt}},
			}
		})

	case "subi":
		return a.expandSubImmediate(isa.OpAddi)
	case "subiu":
		return a.expandSubImmediate(isa.OpAddiu)
	}

	if op, ok := isa.LookupMnemonic(mnemonic.text); ok {
		if op.Shape() == isa.ShapeOffset && a.symbolicAddressAhead() {
			return a.expandSymbolicAccess(op)
		}
	}
	return nil, false, nil
}

// expandLoadImmediate picks the shortest encoding for the constant.
func (a *assembler) expandLoadImmediate() ([]emitted, bool, error) {
	rt, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	tok, err := a.cur.expect(tokInt)
	if err != nil {
		return nil, true, err
	}

	value := tok.num
	switch {
	case value >= -0x8000 && value <= 0x7FFF:
		return []emitted{{inst: isa.Instruction{Op: isa.OpAddiu, Rt: rt, Imm: uint16(value)}}}, true, nil
	case value >= 0 && value <= 0xFFFF:
		return []emitted{{inst: isa.Instruction{Op: isa.OpOri, Rt: rt, Imm: uint16(value)}}}, true, nil
	default:
		word := uint32(value)
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpLui, Rt: rt, Imm: uint16(word >> 16)}},
			{inst: isa.Instruction{Op: isa.OpOri, Rt: rt, Rs: rt, Imm: uint16(word)}},
		}, true, nil
	}
}

// expandLoadAddress emits lui+ori with hi/lo relocations against the
// named symbol.
func (a *assembler) expandLoadAddress() ([]emitted, bool, error) {
	rt, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()

	tok := a.cur.next()
	switch tok.kind {
	case tokIdent:
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpLui, Rt: rt}, rel: &reloc{kind: relocHi, symbol: tok.text}},
			{inst: isa.Instruction{Op: isa.OpOri, Rt: rt, Rs: rt}, rel: &reloc{kind: relocLo, symbol: tok.text}},
		}, true, nil
	case tokInt:
		word := uint32(tok.num)
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpLui, Rt: rt, Imm: uint16(word >> 16)}},
			{inst: isa.Instruction{Op: isa.OpOri, Rt: rt, Rs: rt, Imm: uint16(word)}},
		}, true, nil
	default:
		return nil, true, &lexError{errorf(tok.pos, KindSyntax, "expected address, found %s", tok.kind)}
	}
}

func (a *assembler) expandBranchZeroCompare(branch isa.Op) ([]emitted, bool, error) {
	rs, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	rel, err := a.branchTarget()
	if err != nil {
		return nil, true, err
	}
	return []emitted{{inst: isa.Instruction{Op: branch, Rs: rs}, rel: rel}}, true, nil
}

// expandBranchCompare lowers the two-register relational branches to a
// set-on-less plus a conditional branch on $at. Swapping the comparison
// operands converts less-than machinery into the greater-than forms.
func (a *assembler) expandBranchCompare(set, branch isa.Op, swap bool) ([]emitted, bool, error) {
	rs, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	rt, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	rel, err := a.branchTarget()
	if err != nil {
		return nil, true, err
	}

	if swap {
		rs, rt = rt, rs
	}
	return []emitted{
		{inst: isa.Instruction{Op: set, Rd: isa.RegAt, Rs: rs, Rt: rt}},
		{inst: isa.Instruction{Op: branch, Rs: isa.RegAt}, rel: rel},
	}, true, nil
}

func (a *assembler) expandSetCompare(name string) ([]emitted, bool, error) {
	rd, rs, rt, err := a.threeRegisters()
	if err != nil {
		return nil, true, err
	}

	switch name {
	case "seq":
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSubu, Rd: rd, Rs: rs, Rt: rt}},
			{inst: isa.Instruction{Op: isa.OpSltiu, Rt: rd, Rs: rd, Imm: 1}},
		}, true, nil
	case "sne":
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSubu, Rd: rd, Rs: rs, Rt: rt}},
			{inst: isa.Instruction{Op: isa.OpSltu, Rd: rd, Rt: rd}},
		}, true, nil
	case "sgt":
		return []emitted{{inst: isa.Instruction{Op: isa.OpSlt, Rd: rd, Rs: rt, Rt: rs}}}, true, nil
	case "sgtu":
		return []emitted{{inst: isa.Instruction{Op: isa.OpSltu, Rd: rd, Rs: rt, Rt: rs}}}, true, nil
	case "sge":
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSlt, Rd: rd, Rs: rs, Rt: rt}},
			{inst: isa.Instruction{Op: isa.OpXori, Rt: rd, Rs: rd, Imm: 1}},
		}, true, nil
	case "sgeu":
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSltu, Rd: rd, Rs: rs, Rt: rt}},
			{inst: isa.Instruction{Op: isa.OpXori, Rt: rd, Rs: rd, Imm: 1}},
		}, true, nil
	case "sle":
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSlt, Rd: rd, Rs: rt, Rt: rs}},
			{inst: isa.Instruction{Op: isa.OpXori, Rt: rd, Rs: rd, Imm: 1}},
		}, true, nil
	default: // sleu
		return []emitted{
			{inst: isa.Instruction{Op: isa.OpSltu, Rd: rd, Rs: rt, Rt: rs}},
			{inst: isa.Instruction{Op: isa.OpXori, Rt: rd, Rs: rd, Imm: 1}},
		}, true, nil
	}
}

func (a *assembler) expandUnary(build func(rd, rs uint8) []emitted) ([]emitted, bool, error) {
	rd, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	rs, err := a.register()
	if err != nil {
		return nil, true, err
	}
	return build(rd, rs), true, nil
}

func (a *assembler) expandSubImmediate(add isa.Op) ([]emitted, bool, error) {
	rt, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	rs, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	imm, err := a.immediate(-0x7FFF, 0x8000)
	if err != nil {
		return nil, true, err
	}
	return []emitted{{inst: isa.Instruction{Op: add, Rt: rt, Rs: rs, Imm: uint16(-imm)}}}, true, nil
}

// symbolicAddressAhead reports whether a load or store names a label
// instead of the offset($base) form. The lookahead skips the target
// register and its comma.
func (a *assembler) symbolicAddressAhead() bool {
	i := a.cur.i
	toks := a.cur.toks
	if toks[i].kind != tokRegister {
		return false
	}
	i++
	if toks[i].kind == tokComma {
		i++
	}
	return toks[i].kind == tokIdent
}

// expandSymbolicAccess lowers `lw $t, label` to lui into $at plus the
// access with a low-half relocation.
func (a *assembler) expandSymbolicAccess(op isa.Op) ([]emitted, bool, error) {
	rt, err := a.register()
	if err != nil {
		return nil, true, err
	}
	a.cur.comma()
	tok, err := a.cur.expect(tokIdent)
	if err != nil {
		return nil, true, err
	}

	return []emitted{
		{inst: isa.Instruction{Op: isa.OpLui, Rt: isa.RegAt}, rel: &reloc{kind: relocHiAdj, symbol: tok.text}},
		{inst: isa.Instruction{Op: op, Rt: rt, Rs: isa.RegAt}, rel: &reloc{kind: relocLo, symbol: tok.text}},
	}, true, nil
}
