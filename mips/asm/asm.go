// Package asm turns MIPS assembly source into a loadable program image.
// Assembly is two passes: the first pass scans statements, expands
// pseudo-instructions, emits section bytes and records a relocation for
// every symbolic operand; the second pass patches relocations from the
// symbol table with range checks. Lexical and syntax errors abort the
// unit immediately, while resolution and range errors are collected so
// one run reports every broken reference.
package asm

import (
	"errors"
	"sort"

	"github.com/kmeister/go-mips/mips/program"
)

// externBase is where .extern symbols are laid out, below the regular
// data segment.
const externBase = 0x10000000

type relocKind uint8

const (
	relocBranch relocKind = iota // signed 16-bit word offset from the delay slot
	relocJump                    // 26-bit word index within the current 256MB region
	relocLo                      // low 16 bits of the target address
	relocHi                      // high 16 bits of the target address
	relocHiAdj                   // high half adjusted for a sign-extended low half
	relocWord                    // full 32-bit address in a data word
)

// reloc defers one symbolic operand to the second pass. A reloc with an
// empty symbol targets the constant address in value.
type reloc struct {
	offset uint32 // byte offset within the owning section
	kind   relocKind
	symbol string
	value  uint32
	pos    Pos
}

type section struct {
	id     program.Section
	base   uint32
	buf    []byte
	relocs []reloc
	lines  []program.LineEntry
}

func (s *section) pc() uint32 {
	return s.base + uint32(len(s.buf))
}

type symbol struct {
	name    string
	address uint32
	section program.Section
	global  bool
	defined bool
	pos     Pos
}

type pendingLabel struct {
	name string
	pos  Pos
}

type assembler struct {
	file     string
	cur      *cursor
	sections [4]*section
	extern   *section
	current  *section
	symbols  map[string]*symbol
	pending  []pendingLabel
	diags    []Diagnostic
}

// Assemble builds a program image from one translation unit. The image
// is nil exactly when the diagnostics contain an error-severity entry;
// warnings, such as a .globl naming a symbol that is never defined, can
// accompany a successful assembly.
func Assemble(name string, src []byte) (*program.Image, []Diagnostic) {
	tokens, err := newLexer(name, src).lex()
	if err == nil {
		tokens, err = preprocess(tokens)
	}
	if err != nil {
		var lexErr *lexError
		if errors.As(err, &lexErr) {
			return nil, []Diagnostic{lexErr.diag}
		}
		return nil, []Diagnostic{errorf(Pos{File: name}, KindSyntax, "%v", err)}
	}

	a := &assembler{
		file:    name,
		cur:     &cursor{toks: tokens},
		symbols: make(map[string]*symbol),
	}
	for id := program.SectionText; id <= program.SectionKData; id++ {
		a.sections[id] = &section{id: id, base: id.DefaultBase()}
	}
	a.extern = &section{id: program.SectionData, base: externBase}
	a.current = a.sections[program.SectionText]

	if err := a.scan(); err != nil {
		var lexErr *lexError
		if errors.As(err, &lexErr) {
			return nil, append(a.diags, lexErr.diag)
		}
		return nil, append(a.diags, errorf(Pos{File: name}, KindSyntax, "%v", err))
	}
	a.flushLabels()
	a.resolve()

	if HasErrors(a.diags) {
		return nil, a.diags
	}
	return a.finish(), a.diags
}

// scan is the first pass: one iteration per statement.
func (a *assembler) scan() error {
	for {
		tok := a.cur.peek()
		switch tok.kind {
		case tokEOF:
			return nil
		case tokNewline:
			a.cur.next()
		case tokIdent:
			if a.cur.toks[a.cur.i+1].kind == tokColon {
				a.cur.next()
				a.cur.next()
				a.defineLabel(tok.text, tok.pos)
				continue
			}
			if err := a.instruction(tok); err != nil {
				return err
			}
		case tokDirective:
			a.cur.next()
			if err := a.directive(tok); err != nil {
				return err
			}
		default:
			return &lexError{errorf(tok.pos, KindSyntax, "unexpected %s at start of statement", tok.kind)}
		}
	}
}

// defineLabel queues a label; its address is fixed by the next emission
// so alignment padding never lands between a label and its data.
func (a *assembler) defineLabel(name string, pos Pos) {
	a.pending = append(a.pending, pendingLabel{name: name, pos: pos})
}

// flushLabels assigns every queued label the current location.
func (a *assembler) flushLabels() {
	for _, label := range a.pending {
		sym := a.lookup(label.name)
		if sym.defined {
			a.diags = append(a.diags, errorf(label.pos, KindDuplicateSymbol,
				"symbol %q already defined at %s", label.name, sym.pos))
			continue
		}
		sym.address = a.current.pc()
		sym.section = a.current.id
		sym.defined = true
		sym.pos = label.pos
	}
	a.pending = a.pending[:0]
}

func (a *assembler) lookup(name string) *symbol {
	sym, ok := a.symbols[name]
	if !ok {
		sym = &symbol{name: name}
		a.symbols[name] = sym
	}
	return sym
}

// setSection switches the active section, fixing any labels still
// pending at the end of the previous one.
func (a *assembler) setSection(id program.Section, base int64) {
	a.flushLabels()
	a.current = a.sections[id]
	if base >= 0 {
		// A section may be re-based only while still empty.
		if len(a.current.buf) == 0 {
			a.current.base = uint32(base)
		}
	}
}

// align pads the current section to a 2^power boundary.
func (a *assembler) align(power uint) {
	size := uint32(1) << power
	for a.current.pc()%size != 0 {
		a.current.buf = append(a.current.buf, 0)
	}
}

// emitBytes appends raw data bytes, fixing pending labels first.
func (a *assembler) emitBytes(data ...byte) {
	a.flushLabels()
	a.current.buf = append(a.current.buf, data...)
}

// emitWord appends one 32-bit little-endian word with the relocation
// that patches it, if any.
func (a *assembler) emitWord(word uint32, rel *reloc) {
	a.align(2)
	if rel != nil {
		rel.offset = uint32(len(a.current.buf))
		a.current.relocs = append(a.current.relocs, *rel)
	}
	a.emitBytes(byte(word), byte(word>>8), byte(word>>16), byte(word>>24))
}

// recordLine maps the first word of a text statement back to its source
// position. Pseudo-instructions expanding to several words keep a single
// entry, so a line breakpoint lands on the first word.
func (a *assembler) recordLine(pos Pos) {
	if a.current.id != program.SectionText && a.current.id != program.SectionKText {
		return
	}
	a.align(2)
	a.current.lines = append(a.current.lines, program.LineEntry{
		Address: a.current.pc(),
		File:    pos.File,
		Line:    pos.Line,
	})
}

// resolve is the second pass: patch every relocation against the symbol
// table, collecting range and resolution failures.
func (a *assembler) resolve() {
	for _, sec := range a.allSections() {
		for _, rel := range sec.relocs {
			target := rel.value
			if rel.symbol != "" {
				sym, ok := a.symbols[rel.symbol]
				if !ok || !sym.defined {
					a.diags = append(a.diags, errorf(rel.pos, KindUnresolvedSymbol,
						"undefined symbol %q", rel.symbol))
					continue
				}
				target = sym.address
			}
			a.patch(sec, rel, target)
		}
	}

	for _, sym := range a.symbols {
		if sym.global && !sym.defined {
			a.diags = append(a.diags, Diagnostic{
				Severity: SeverityWarning,
				Pos:      sym.pos,
				Kind:     KindUnresolvedSymbol,
				Message:  "global symbol " + sym.name + " is never defined",
			})
		}
	}
}

func (a *assembler) patch(sec *section, rel reloc, target uint32) {
	addr := sec.base + rel.offset
	word := uint32(sec.buf[rel.offset]) |
		uint32(sec.buf[rel.offset+1])<<8 |
		uint32(sec.buf[rel.offset+2])<<16 |
		uint32(sec.buf[rel.offset+3])<<24

	switch rel.kind {
	case relocBranch:
		// Branch offsets count words from the instruction after the
		// branch.
		delta := (int64(target) - int64(addr) - 4) / 4
		if delta < -0x8000 || delta > 0x7FFF {
			a.diags = append(a.diags, errorf(rel.pos, KindRange,
				"branch target %#08x is out of range from %#08x", target, addr))
			return
		}
		word |= uint32(delta) & 0xFFFF
	case relocJump:
		if target&0xF0000000 != (addr+4)&0xF0000000 {
			a.diags = append(a.diags, errorf(rel.pos, KindRange,
				"jump target %#08x is outside the current 256MB region", target))
			return
		}
		word |= (target >> 2) & 0x03FFFFFF
	case relocLo:
		word |= target & 0xFFFF
	case relocHi:
		word |= target >> 16
	case relocHiAdj:
		// The paired low half lands in a sign-extended field, so bias
		// the high half to compensate.
		word |= ((target + 0x8000) >> 16) & 0xFFFF
	case relocWord:
		word = target
	}

	sec.buf[rel.offset] = byte(word)
	sec.buf[rel.offset+1] = byte(word >> 8)
	sec.buf[rel.offset+2] = byte(word >> 16)
	sec.buf[rel.offset+3] = byte(word >> 24)
}

func (a *assembler) allSections() []*section {
	return []*section{
		a.sections[program.SectionText],
		a.sections[program.SectionData],
		a.sections[program.SectionKText],
		a.sections[program.SectionKData],
		a.extern,
	}
}

// finish packages the assembled sections into an image. Segment order,
// symbol order and line order are all fixed so identical input yields a
// byte-identical image.
func (a *assembler) finish() *program.Image {
	img := &program.Image{}

	for _, sec := range a.allSections() {
		if len(sec.buf) == 0 {
			continue
		}
		img.Segments = append(img.Segments, program.Segment{
			Section: sec.id,
			Base:    sec.base,
			Data:    sec.buf,
		})
		img.Lines = append(img.Lines, sec.lines...)
	}
	sort.Slice(img.Lines, func(i, j int) bool {
		return img.Lines[i].Address < img.Lines[j].Address
	})

	names := make([]string, 0, len(a.symbols))
	for name, sym := range a.symbols {
		if sym.defined {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		sym := a.symbols[name]
		img.Symbols = append(img.Symbols, program.Symbol{
			Name:    sym.name,
			Address: sym.address,
			Section: sym.section,
			Global:  sym.global,
		})
	}

	img.Entry = a.sections[program.SectionText].base
	if main, ok := a.symbols["main"]; ok && main.defined {
		img.Entry = main.address
	}
	return img
}
