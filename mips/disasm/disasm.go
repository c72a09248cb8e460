// Package disasm renders machine words back into assembly text for the
// debugger's instruction views.
package disasm

import (
	"fmt"

	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/program"
)

// Disassemble renders one machine word located at the given address.
// Branch and jump targets are shown as absolute addresses, resolved to
// symbol names when an image is supplied.
func Disassemble(img *program.Image, address, word uint32) string {
	inst := isa.Decode(word)
	if inst.Op == isa.OpIllegal {
		return fmt.Sprintf(".word 0x%08x", word)
	}

	name := inst.Op.Mnemonic()
	switch inst.Op.Shape() {
	case isa.ShapeNone:
		return name
	case isa.ShapeRegister:
		return fmt.Sprintf("%s %s, %s, %s", name, reg(inst.Rd), reg(inst.Rs), reg(inst.Rt))
	case isa.ShapeShift:
		return fmt.Sprintf("%s %s, %s, %d", name, reg(inst.Rd), reg(inst.Rt), inst.Shamt)
	case isa.ShapeShiftVar:
		return fmt.Sprintf("%s %s, %s, %s", name, reg(inst.Rd), reg(inst.Rt), reg(inst.Rs))
	case isa.ShapeSource:
		if inst.Op == isa.OpJalr && inst.Rd != isa.RegRa {
			return fmt.Sprintf("%s %s, %s", name, reg(inst.Rd), reg(inst.Rs))
		}
		return fmt.Sprintf("%s %s", name, reg(inst.Rs))
	case isa.ShapeDest:
		return fmt.Sprintf("%s %s", name, reg(inst.Rd))
	case isa.ShapeInputs:
		return fmt.Sprintf("%s %s, %s", name, reg(inst.Rs), reg(inst.Rt))
	case isa.ShapeImmediate:
		return fmt.Sprintf("%s %s, %s, %d", name, reg(inst.Rt), reg(inst.Rs), int16(inst.Imm))
	case isa.ShapeLoadImm:
		return fmt.Sprintf("%s %s, 0x%x", name, reg(inst.Rt), inst.Imm)
	case isa.ShapeBranch:
		return fmt.Sprintf("%s %s, %s, %s", name, reg(inst.Rs), reg(inst.Rt), branchTarget(img, address, inst))
	case isa.ShapeBranchZero:
		return fmt.Sprintf("%s %s, %s", name, reg(inst.Rs), branchTarget(img, address, inst))
	case isa.ShapeJump:
		target := (address+4)&0xF0000000 | inst.Target<<2
		return fmt.Sprintf("%s %s", name, symbolic(img, target))
	case isa.ShapeOffset:
		return fmt.Sprintf("%s %s, %d(%s)", name, reg(inst.Rt), int16(inst.Imm), reg(inst.Rs))
	}
	return name
}

// Line pairs an address with its rendered instruction.
type Line struct {
	Address uint32
	Word    uint32
	Text    string
}

// Range disassembles count words starting at the given address, reading
// through the supplied word reader. Unreadable words stop the listing.
func Range(img *program.Image, read func(uint32) (uint32, error), start uint32, count int) []Line {
	lines := make([]Line, 0, count)
	for i := 0; i < count; i++ {
		address := start + uint32(i*program.WordSize)
		word, err := read(address)
		if err != nil {
			break
		}
		lines = append(lines, Line{
			Address: address,
			Word:    word,
			Text:    Disassemble(img, address, word),
		})
	}
	return lines
}

func reg(index uint8) string {
	return "$" + isa.RegisterName(index)
}

func branchTarget(img *program.Image, address uint32, inst isa.Instruction) string {
	target := address + 4 + uint32(int32(int16(inst.Imm))<<2)
	return symbolic(img, target)
}

// symbolic prefers a symbol name over a raw address when the image
// defines one at exactly the target.
func symbolic(img *program.Image, target uint32) string {
	if img != nil {
		for i := range img.Symbols {
			if img.Symbols[i].Address == target {
				return img.Symbols[i].Name
			}
		}
	}
	return fmt.Sprintf("0x%08x", target)
}
