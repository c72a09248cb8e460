// Package mem implements the byte-addressable memory space a session
// executes against: image segments mounted at fixed bases, a growable
// heap, and a stack region. Every access is bounds-checked and alignment
// is enforced per access width.
package mem

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/kmeister/go-mips/mips/program"
)

// DefaultStackSize is the size of the stack region mounted below
// program.StackTop when building memory from an image.
const DefaultStackSize = 1 << 20

// UnalignedError reports an access whose address is not a multiple of its
// width.
type UnalignedError struct {
	Address uint32
	Width   int
}

func (e *UnalignedError) Error() string {
	return fmt.Sprintf("unaligned %d-byte access at %#08x", e.Width, e.Address)
}

// OutOfBoundsError reports an access outside every mounted region.
type OutOfBoundsError struct {
	Address uint32
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("access to unmapped address %#08x", e.Address)
}

// ReadOnlyError reports a write to a write-protected region.
type ReadOnlyError struct {
	Address uint32
}

func (e *ReadOnlyError) Error() string {
	return fmt.Sprintf("write to protected address %#08x", e.Address)
}

type region struct {
	base     uint32
	data     []byte
	readonly bool
}

func (r *region) contains(address uint32) bool {
	return r.base <= address && address-r.base < uint32(len(r.data))
}

// Journal receives the prior contents of every mutated location, letting
// the debugger undo a step. Entries are recorded before the write lands.
type Journal interface {
	Record(address uint32, prev []byte)
}

// Memory is the full address space for one session. It is not safe for
// concurrent use; a session owns its memory exclusively.
type Memory struct {
	regions []*region
	heap    *region
	brk     uint32
	journal Journal
}

// New returns an empty memory with no mounted regions.
func New() *Memory {
	return &Memory{}
}

// FromImage mounts every segment of an image, a heap region at
// program.HeapBase and a stack below program.StackTop. protectText
// rejects writes into text segments, otherwise self-modifying stores are
// permitted like any data write.
func FromImage(img *program.Image, protectText bool) *Memory {
	m := New()

	for i := range img.Segments {
		seg := &img.Segments[i]
		readonly := protectText &&
			(seg.Section == program.SectionText || seg.Section == program.SectionKText)

		// Segments own a copy so reassembly or image reuse never aliases
		// a running session.
		data := make([]byte, len(seg.Data))
		copy(data, seg.Data)

		m.Mount(seg.Base, data, readonly)
	}

	m.heap = &region{base: program.HeapBase}
	m.brk = program.HeapBase
	m.regions = append(m.regions, m.heap)

	m.Mount(program.StackTop-DefaultStackSize+4, make([]byte, DefaultStackSize), false)
	m.sortRegions()

	return m
}

// Mount adds a region at the given base. Overlapping mounts are a caller
// bug; the first matching region wins on access.
func (m *Memory) Mount(base uint32, data []byte, readonly bool) {
	m.regions = append(m.regions, &region{base: base, data: data, readonly: readonly})
	m.sortRegions()
}

func (m *Memory) sortRegions() {
	sort.Slice(m.regions, func(i, j int) bool {
		return m.regions[i].base < m.regions[j].base
	})
}

// SetJournal directs write journaling to j. A nil journal disables it.
func (m *Memory) SetJournal(j Journal) {
	m.journal = j
}

// Break returns the current heap break address.
func (m *Memory) Break() uint32 {
	return m.brk
}

// Grow extends the heap by n bytes and returns the address of the new
// block, the previous break. Growth past the stack region is rejected.
func (m *Memory) Grow(n uint32) (uint32, error) {
	if m.heap == nil {
		return 0, &OutOfBoundsError{Address: m.brk}
	}
	if n > program.StackTop-DefaultStackSize-m.brk {
		return 0, fmt.Errorf("heap growth of %d bytes exceeds available space", n)
	}

	block := m.brk
	m.heap.data = append(m.heap.data, make([]byte, n)...)
	m.brk += n

	return block, nil
}

func (m *Memory) find(address uint32) *region {
	// Region count is tiny (segments + heap + stack); linear scan over the
	// sorted slice beats the bookkeeping of anything fancier.
	for _, r := range m.regions {
		if r.contains(address) {
			return r
		}
	}
	return nil
}

// span returns a writable view of [address, address+width) or the typed
// fault describing why it is inaccessible.
func (m *Memory) span(address uint32, width int, write bool) ([]byte, error) {
	r := m.find(address)
	if r == nil {
		return nil, &OutOfBoundsError{Address: address}
	}

	offset := address - r.base
	if int(offset)+width > len(r.data) {
		// Access straddles the end of a region.
		return nil, &OutOfBoundsError{Address: address}
	}
	if write && r.readonly {
		return nil, &ReadOnlyError{Address: address}
	}

	return r.data[offset : offset+uint32(width)], nil
}

// ReadByte loads one byte.
func (m *Memory) ReadByte(address uint32) (uint8, error) {
	span, err := m.span(address, 1, false)
	if err != nil {
		return 0, err
	}
	return span[0], nil
}

// ReadHalf loads a 16-bit little-endian value; the address must be
// 2-aligned.
func (m *Memory) ReadHalf(address uint32) (uint16, error) {
	if address%2 != 0 {
		return 0, &UnalignedError{Address: address, Width: 2}
	}
	span, err := m.span(address, 2, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(span), nil
}

// ReadWord loads a 32-bit little-endian value; the address must be
// 4-aligned.
func (m *Memory) ReadWord(address uint32) (uint32, error) {
	if address%4 != 0 {
		return 0, &UnalignedError{Address: address, Width: 4}
	}
	span, err := m.span(address, 4, false)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(span), nil
}

// WriteByte stores one byte.
func (m *Memory) WriteByte(address uint32, value uint8) error {
	span, err := m.span(address, 1, true)
	if err != nil {
		return err
	}
	m.record(address, span)
	span[0] = value
	return nil
}

// WriteHalf stores a 16-bit little-endian value; the address must be
// 2-aligned.
func (m *Memory) WriteHalf(address uint32, value uint16) error {
	if address%2 != 0 {
		return &UnalignedError{Address: address, Width: 2}
	}
	span, err := m.span(address, 2, true)
	if err != nil {
		return err
	}
	m.record(address, span)
	binary.LittleEndian.PutUint16(span, value)
	return nil
}

// WriteWord stores a 32-bit little-endian value; the address must be
// 4-aligned.
func (m *Memory) WriteWord(address uint32, value uint32) error {
	if address%4 != 0 {
		return &UnalignedError{Address: address, Width: 4}
	}
	span, err := m.span(address, 4, true)
	if err != nil {
		return err
	}
	m.record(address, span)
	binary.LittleEndian.PutUint32(span, value)
	return nil
}

func (m *Memory) record(address uint32, span []byte) {
	if m.journal == nil {
		return
	}
	prev := make([]byte, len(span))
	copy(prev, span)
	m.journal.Record(address, prev)
}

// ReadRange copies length bytes starting at address, for debugger
// inspection. Unlike the sized accessors it has no alignment rule.
func (m *Memory) ReadRange(address uint32, length int) ([]byte, error) {
	out := make([]byte, length)
	for i := 0; i < length; i++ {
		value, err := m.ReadByte(address + uint32(i))
		if err != nil {
			return nil, err
		}
		out[i] = value
	}
	return out, nil
}

// WriteRange stores the given bytes starting at address, for debugger
// fixtures and state injection.
func (m *Memory) WriteRange(address uint32, data []byte) error {
	for i, value := range data {
		if err := m.WriteByte(address+uint32(i), value); err != nil {
			return err
		}
	}
	return nil
}
