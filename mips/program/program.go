// Package program defines the assembled program image: the segments,
// entry point, symbols and source line map shared between the assembler,
// the execution engine and the debugger. The image is the one artifact a
// caller may persist between assembling and loading, so its serialized
// form is versioned and stable.
package program

import "sort"

// Default segment base addresses and runtime layout constants.
const (
	TextBase  = 0x00400000
	DataBase  = 0x10010000
	KTextBase = 0x80000000
	KDataBase = 0x90000000

	HeapBase = 0x10040000
	StackTop = 0x7FFFFFFC

	// WordSize is the instruction and word width in bytes.
	WordSize = 4
)

// Section classifies where a segment or symbol lives.
type Section uint8

const (
	SectionText Section = iota
	SectionData
	SectionKText
	SectionKData
)

// DefaultBase returns the load address a section starts at unless the
// source explicitly seeks elsewhere.
func (s Section) DefaultBase() uint32 {
	switch s {
	case SectionText:
		return TextBase
	case SectionData:
		return DataBase
	case SectionKText:
		return KTextBase
	default:
		return KDataBase
	}
}

func (s Section) String() string {
	switch s {
	case SectionText:
		return "text"
	case SectionData:
		return "data"
	case SectionKText:
		return "ktext"
	default:
		return "kdata"
	}
}

// Segment is a contiguous run of bytes loaded at a fixed base address.
type Segment struct {
	Section Section
	Base    uint32
	Data    []byte
}

// End returns the first address past the segment.
func (s *Segment) End() uint32 {
	return s.Base + uint32(len(s.Data))
}

// Symbol is a resolved label. Global marks symbols exported with .globl.
type Symbol struct {
	Name    string
	Address uint32
	Section Section
	Global  bool
}

// LineEntry associates the first word of a source statement with its
// position, so the debugger can map breakpoints both ways. One statement
// may span several addresses when pseudo-instructions expand.
type LineEntry struct {
	Address uint32
	File    string
	Line    int
}

// Image is a fully assembled program ready to load into a session.
type Image struct {
	Entry    uint32
	Segments []Segment
	Symbols  []Symbol
	Lines    []LineEntry
}

// SymbolAddress resolves a symbol by name.
func (img *Image) SymbolAddress(name string) (uint32, bool) {
	for i := range img.Symbols {
		if img.Symbols[i].Name == name {
			return img.Symbols[i].Address, true
		}
	}
	return 0, false
}

// LineForAddress returns the source position owning the given address.
func (img *Image) LineForAddress(address uint32) (LineEntry, bool) {
	// Lines are sorted by address at emission; find the last entry at or
	// before the address within the same statement span.
	i := sort.Search(len(img.Lines), func(i int) bool {
		return img.Lines[i].Address > address
	})
	if i == 0 {
		return LineEntry{}, false
	}
	return img.Lines[i-1], true
}

// AddressForLine returns the address of the first instruction emitted for
// the given source line, used to plant line breakpoints.
func (img *Image) AddressForLine(file string, line int) (uint32, bool) {
	for i := range img.Lines {
		if img.Lines[i].Line == line && (file == "" || img.Lines[i].File == file) {
			return img.Lines[i].Address, true
		}
	}
	return 0, false
}

// TextRange reports the span of the text segments, used by the engine to
// detect the PC running off the end of the program.
func (img *Image) TextRange() (low, high uint32) {
	first := true
	for i := range img.Segments {
		seg := &img.Segments[i]
		if seg.Section != SectionText && seg.Section != SectionKText {
			continue
		}
		if first || seg.Base < low {
			low = seg.Base
		}
		if first || seg.End() > high {
			high = seg.End()
		}
		first = false
	}
	return low, high
}
