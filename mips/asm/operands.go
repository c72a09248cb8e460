package asm

import (
	"github.com/kmeister/go-mips/mips/isa"
)

// emit is one machine word produced for a statement, together with the
// relocation that completes it in the second pass.
type emitted struct {
	inst isa.Instruction
	rel  *reloc
}

// instruction assembles one instruction statement, expanding
// pseudo-instructions first. The leading identifier token is still
// unconsumed.
func (a *assembler) instruction(mnemonic token) error {
	a.cur.next()

	words, handled, err := a.expandPseudo(mnemonic)
	if err != nil {
		return err
	}
	if !handled {
		op, ok := isa.LookupMnemonic(mnemonic.text)
		if !ok {
			return &lexError{errorf(mnemonic.pos, KindUnknownInstruction,
				"unknown instruction %q", mnemonic.text)}
		}
		words, err = a.parseShaped(op, mnemonic.pos)
		if err != nil {
			return err
		}
	}
	if err := a.cur.finishStatement(); err != nil {
		return err
	}

	a.recordLine(mnemonic.pos)
	for _, w := range words {
		word, err := isa.Encode(w.inst)
		if err != nil {
			return &lexError{errorf(mnemonic.pos, KindBadOperand, "%v", err)}
		}
		if w.rel != nil {
			w.rel.pos = mnemonic.pos
		}
		a.emitWord(word, w.rel)
	}
	return nil
}

// parseShaped reads the operand list dictated by the op's shape and
// produces the single machine word for it.
func (a *assembler) parseShaped(op isa.Op, pos Pos) ([]emitted, error) {
	inst := isa.Instruction{Op: op}
	var rel *reloc

	switch op.Shape() {
	case isa.ShapeNone:
		// no operands

	case isa.ShapeRegister:
		rd, rs, rt, err := a.threeRegisters()
		if err != nil {
			return nil, err
		}
		inst.Rd, inst.Rs, inst.Rt = rd, rs, rt

	case isa.ShapeShift:
		rd, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		amount, err := a.immediate(0, 31)
		if err != nil {
			return nil, err
		}
		inst.Rd, inst.Rt, inst.Shamt = rd, rt, uint8(amount)

	case isa.ShapeShiftVar:
		rd, rt, rs, err := a.threeRegisters()
		if err != nil {
			return nil, err
		}
		inst.Rd, inst.Rt, inst.Rs = rd, rt, rs

	case isa.ShapeSource:
		rs, err := a.register()
		if err != nil {
			return nil, err
		}
		inst.Rs = rs
		// jalr optionally names the link register, defaulting to $ra.
		if op == isa.OpJalr {
			inst.Rd = isa.RegRa
			if !a.cur.endOfStatement() {
				a.cur.comma()
				rd, err := a.register()
				if err != nil {
					return nil, err
				}
				inst.Rd = inst.Rs
				inst.Rs = rd
			}
		}

	case isa.ShapeDest:
		rd, err := a.register()
		if err != nil {
			return nil, err
		}
		inst.Rd = rd

	case isa.ShapeInputs:
		rs, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		inst.Rs, inst.Rt = rs, rt

	case isa.ShapeImmediate:
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rs, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		imm, err := a.immediate(-0x8000, 0xFFFF)
		if err != nil {
			return nil, err
		}
		inst.Rt, inst.Rs, inst.Imm = rt, rs, uint16(imm)

	case isa.ShapeLoadImm:
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		imm, err := a.immediate(-0x8000, 0xFFFF)
		if err != nil {
			return nil, err
		}
		inst.Rt, inst.Imm = rt, uint16(imm)

	case isa.ShapeBranch:
		rs, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rel, err = a.branchTarget()
		if err != nil {
			return nil, err
		}
		inst.Rs, inst.Rt = rs, rt

	case isa.ShapeBranchZero:
		rs, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		rel, err = a.branchTarget()
		if err != nil {
			return nil, err
		}
		inst.Rs = rs

	case isa.ShapeJump:
		var err error
		rel, err = a.jumpTarget()
		if err != nil {
			return nil, err
		}

	case isa.ShapeOffset:
		rt, err := a.register()
		if err != nil {
			return nil, err
		}
		a.cur.comma()
		base, offset, err := a.addressOperand()
		if err != nil {
			return nil, err
		}
		inst.Rt, inst.Rs, inst.Imm = rt, base, uint16(offset)
	}

	return []emitted{{inst: inst, rel: rel}}, nil
}

func (a *assembler) register() (uint8, error) {
	tok, err := a.cur.expect(tokRegister)
	if err != nil {
		return 0, err
	}
	return uint8(tok.num), nil
}

func (a *assembler) threeRegisters() (uint8, uint8, uint8, error) {
	first, err := a.register()
	if err != nil {
		return 0, 0, 0, err
	}
	a.cur.comma()
	second, err := a.register()
	if err != nil {
		return 0, 0, 0, err
	}
	a.cur.comma()
	third, err := a.register()
	if err != nil {
		return 0, 0, 0, err
	}
	return first, second, third, nil
}

// immediate reads an integer operand and range checks it. The accepted
// window spans both signed and unsigned 16-bit forms, matching the
// permissive behavior of common MIPS assemblers.
func (a *assembler) immediate(low, high int64) (int64, error) {
	tok, err := a.cur.expect(tokInt)
	if err != nil {
		return 0, err
	}
	if tok.num < low || tok.num > high {
		return 0, &lexError{errorf(tok.pos, KindRange,
			"immediate %d is outside [%d, %d]", tok.num, low, high)}
	}
	return tok.num, nil
}

// branchTarget reads a label or constant address branch destination.
func (a *assembler) branchTarget() (*reloc, error) {
	tok := a.cur.next()
	switch tok.kind {
	case tokIdent:
		return &reloc{kind: relocBranch, symbol: tok.text, pos: tok.pos}, nil
	case tokInt:
		return &reloc{kind: relocBranch, value: uint32(tok.num), pos: tok.pos}, nil
	default:
		return nil, &lexError{errorf(tok.pos, KindSyntax, "expected branch target, found %s", tok.kind)}
	}
}

func (a *assembler) jumpTarget() (*reloc, error) {
	tok := a.cur.next()
	switch tok.kind {
	case tokIdent:
		return &reloc{kind: relocJump, symbol: tok.text, pos: tok.pos}, nil
	case tokInt:
		return &reloc{kind: relocJump, value: uint32(tok.num), pos: tok.pos}, nil
	default:
		return nil, &lexError{errorf(tok.pos, KindSyntax, "expected jump target, found %s", tok.kind)}
	}
}

// addressOperand reads the offset($base) form of loads and stores. Both
// parts are optional: `($t0)`, `8($t0)` and a bare offset all parse.
func (a *assembler) addressOperand() (base uint8, offset int64, err error) {
	if a.cur.peek().kind == tokInt {
		tok := a.cur.next()
		if tok.num < -0x8000 || tok.num > 0x7FFF {
			return 0, 0, &lexError{errorf(tok.pos, KindRange,
				"offset %d does not fit in a signed 16-bit field", tok.num)}
		}
		offset = tok.num
	}
	if a.cur.peek().kind == tokLParen {
		a.cur.next()
		base, err = a.register()
		if err != nil {
			return 0, 0, err
		}
		if _, err = a.cur.expect(tokRParen); err != nil {
			return 0, 0, err
		}
	}
	return base, offset, nil
}
