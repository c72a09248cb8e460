package asm

import (
	"github.com/kmeister/go-mips/mips/program"
)

// directive dispatches one directive statement. The directive token is
// already consumed. Unknown directives are a hard error rather than a
// warning, so a typo never silently drops data.
func (a *assembler) directive(tok token) error {
	handler, ok := directiveTable[tok.text]
	if !ok {
		return &lexError{errorf(tok.pos, KindUnknownDirective, "unknown directive .%s", tok.text)}
	}
	if err := handler(a, tok.pos); err != nil {
		return err
	}
	return a.cur.finishStatement()
}

var directiveTable = map[string]func(*assembler, Pos) error{
	"text":   sectionDirective(program.SectionText),
	"data":   sectionDirective(program.SectionData),
	"ktext":  sectionDirective(program.SectionKText),
	"kdata":  sectionDirective(program.SectionKData),
	"word":   (*assembler).wordDirective,
	"half":   (*assembler).halfDirective,
	"byte":   (*assembler).byteDirective,
	"ascii":  asciiDirective(false),
	"asciiz": asciiDirective(true),
	"space":  (*assembler).spaceDirective,
	"align":  (*assembler).alignDirective,
	"globl":  (*assembler).globlDirective,
	"extern": (*assembler).externDirective,
}

// sectionDirective switches sections, with an optional base address
// operand honored only while the section is still empty.
func sectionDirective(id program.Section) func(*assembler, Pos) error {
	return func(a *assembler, pos Pos) error {
		base := int64(-1)
		if a.cur.peek().kind == tokInt {
			tok := a.cur.next()
			if tok.num < 0 || tok.num > 0xFFFFFFFF {
				return &lexError{errorf(tok.pos, KindRange, "section base %d is not a 32-bit address", tok.num)}
			}
			base = tok.num
		}
		a.setSection(id, base)
		return nil
	}
}

// wordDirective emits 32-bit values. A label operand emits the symbol's
// address through a full-word relocation, which is how jump tables are
// written.
func (a *assembler) wordDirective(pos Pos) error {
	for {
		tok := a.cur.next()
		switch tok.kind {
		case tokInt:
			if tok.num < -0x80000000 || tok.num > 0xFFFFFFFF {
				return &lexError{errorf(tok.pos, KindRange,
					".word value %d is outside [%d, %d]", tok.num, int64(-0x80000000), int64(0xFFFFFFFF))}
			}
			a.align(2)
			value := uint32(tok.num)
			a.emitBytes(byte(value), byte(value>>8), byte(value>>16), byte(value>>24))
		case tokIdent:
			a.align(2)
			a.current.relocs = append(a.current.relocs, reloc{
				offset: uint32(len(a.current.buf)),
				kind:   relocWord,
				symbol: tok.text,
				pos:    tok.pos,
			})
			a.emitBytes(0, 0, 0, 0)
		default:
			return &lexError{errorf(tok.pos, KindSyntax, ".word expects integers or labels, found %s", tok.kind)}
		}
		if a.cur.endOfStatement() {
			return nil
		}
		a.cur.comma()
	}
}

func (a *assembler) halfDirective(pos Pos) error {
	return a.integerList(pos, "half", -0x8000, 0xFFFF, func(value int64) {
		a.align(1)
		a.emitBytes(byte(value), byte(value>>8))
	})
}

func (a *assembler) byteDirective(pos Pos) error {
	return a.integerList(pos, "byte", -0x80, 0xFF, func(value int64) {
		a.emitBytes(byte(value))
	})
}

func (a *assembler) integerList(pos Pos, name string, low, high int64, emit func(int64)) error {
	for {
		tok, err := a.cur.expect(tokInt)
		if err != nil {
			return err
		}
		if tok.num < low || tok.num > high {
			return &lexError{errorf(tok.pos, KindRange,
				".%s value %d is outside [%d, %d]", name, tok.num, low, high)}
		}
		emit(tok.num)
		if a.cur.endOfStatement() {
			return nil
		}
		a.cur.comma()
	}
}

func asciiDirective(terminated bool) func(*assembler, Pos) error {
	return func(a *assembler, pos Pos) error {
		for {
			tok, err := a.cur.expect(tokString)
			if err != nil {
				return err
			}
			a.emitBytes([]byte(tok.text)...)
			if terminated {
				a.emitBytes(0)
			}
			if a.cur.endOfStatement() {
				return nil
			}
			a.cur.comma()
		}
	}
}

func (a *assembler) spaceDirective(pos Pos) error {
	tok, err := a.cur.expect(tokInt)
	if err != nil {
		return err
	}
	if tok.num < 0 || tok.num > 1<<24 {
		return &lexError{errorf(tok.pos, KindRange, ".space size %d is unreasonable", tok.num)}
	}
	a.flushLabels()
	a.current.buf = append(a.current.buf, make([]byte, tok.num)...)
	return nil
}

func (a *assembler) alignDirective(pos Pos) error {
	tok, err := a.cur.expect(tokInt)
	if err != nil {
		return err
	}
	if tok.num < 0 || tok.num > 16 {
		return &lexError{errorf(tok.pos, KindRange, ".align power %d is outside [0, 16]", tok.num)}
	}
	a.align(uint(tok.num))
	a.flushLabels()
	return nil
}

func (a *assembler) globlDirective(pos Pos) error {
	for {
		tok, err := a.cur.expect(tokIdent)
		if err != nil {
			return err
		}
		sym := a.lookup(tok.text)
		sym.global = true
		if !sym.defined {
			sym.pos = tok.pos
		}
		if a.cur.endOfStatement() {
			return nil
		}
		a.cur.comma()
	}
}

// externDirective reserves zeroed storage for a symbol in the shared
// extern region below the data segment.
func (a *assembler) externDirective(pos Pos) error {
	name, err := a.cur.expect(tokIdent)
	if err != nil {
		return err
	}
	a.cur.comma()
	size, err := a.cur.expect(tokInt)
	if err != nil {
		return err
	}
	if size.num <= 0 || size.num > 1<<20 {
		return &lexError{errorf(size.pos, KindRange, ".extern size %d is unreasonable", size.num)}
	}

	sym := a.lookup(name.text)
	if sym.defined {
		a.diags = append(a.diags, errorf(name.pos, KindDuplicateSymbol,
			"symbol %q already defined at %s", name.text, sym.pos))
		return nil
	}
	sym.address = a.extern.pc()
	sym.section = program.SectionData
	sym.global = true
	sym.defined = true
	sym.pos = name.pos
	a.extern.buf = append(a.extern.buf, make([]byte, size.num)...)
	return nil
}
