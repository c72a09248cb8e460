package debug

import (
	"fmt"
	"sort"
)

// SetBreakpoint plants a breakpoint at an instruction address. Run
// pauses with PC at the address, before the instruction executes.
func (s *Session) SetBreakpoint(address uint32) {
	s.breakpoints[address] = true
}

// ClearBreakpoint removes a breakpoint; clearing an absent address is a
// no-op.
func (s *Session) ClearBreakpoint(address uint32) {
	delete(s.breakpoints, address)
}

// SetLineBreakpoint plants a breakpoint at the first instruction emitted
// for a source line, using the image's line map. An empty file matches
// any file.
func (s *Session) SetLineBreakpoint(file string, line int) (uint32, error) {
	address, ok := s.image.AddressForLine(file, line)
	if !ok {
		return 0, fmt.Errorf("debug: no instruction maps to %s:%d", file, line)
	}
	s.SetBreakpoint(address)
	return address, nil
}

// Breakpoints lists the planted addresses in ascending order.
func (s *Session) Breakpoints() []uint32 {
	addrs := make([]uint32, 0, len(s.breakpoints))
	for addr := range s.breakpoints {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	return addrs
}

// WatchKind selects how a watchpoint condition is evaluated against the
// watched memory value at each step boundary.
type WatchKind uint8

const (
	// WatchChange triggers whenever the watched value differs from the
	// previous boundary's value.
	WatchChange WatchKind = iota
	// WatchEqual triggers when the value becomes equal to the operand.
	WatchEqual
	// WatchNotEqual triggers when the value becomes different from the
	// operand.
	WatchNotEqual
)

// Watchpoint pauses execution when a memory location's value satisfies
// its condition. Conditions are edge-triggered: a watchpoint that is
// already satisfied when planted fires only after the value changes into
// a satisfying state again.
type Watchpoint struct {
	ID      int
	Address uint32
	Width   int // 1, 2 or 4 bytes
	Kind    WatchKind
	Operand uint32

	last      uint32
	satisfied bool
}

// SetWatchpoint plants a watchpoint and returns its handle. Width must
// be 1, 2 or 4.
func (s *Session) SetWatchpoint(address uint32, width int, kind WatchKind, operand uint32) (*Watchpoint, error) {
	if width != 1 && width != 2 && width != 4 {
		return nil, fmt.Errorf("debug: watchpoint width must be 1, 2 or 4, got %d", width)
	}

	s.watchSerial++
	w := &Watchpoint{
		ID:      s.watchSerial,
		Address: address,
		Width:   width,
		Kind:    kind,
		Operand: operand,
	}
	if value, err := s.readWatched(w); err == nil {
		w.last = value
		w.satisfied = w.evaluate(value)
	}
	s.watchpoints = append(s.watchpoints, w)
	return w, nil
}

// ClearWatchpoint removes a watchpoint by handle ID.
func (s *Session) ClearWatchpoint(id int) {
	for i, w := range s.watchpoints {
		if w.ID == id {
			s.watchpoints = append(s.watchpoints[:i], s.watchpoints[i+1:]...)
			return
		}
	}
}

// Watchpoints lists the planted watchpoints in creation order.
func (s *Session) Watchpoints() []*Watchpoint {
	return append([]*Watchpoint(nil), s.watchpoints...)
}

// checkWatchpoints runs once per step boundary and returns the first
// watchpoint whose condition newly became satisfied.
func (s *Session) checkWatchpoints() *Watchpoint {
	var hit *Watchpoint
	for _, w := range s.watchpoints {
		value, err := s.readWatched(w)
		if err != nil {
			continue
		}
		changed := value != w.last
		nowSatisfied := w.evaluate(value)
		triggered := changed && nowSatisfied && (w.Kind == WatchChange || !w.satisfied)

		w.last = value
		w.satisfied = nowSatisfied
		if triggered && hit == nil {
			hit = w
		}
	}
	return hit
}

func (w *Watchpoint) evaluate(value uint32) bool {
	switch w.Kind {
	case WatchEqual:
		return value == w.Operand
	case WatchNotEqual:
		return value != w.Operand
	default:
		return true
	}
}

func (s *Session) readWatched(w *Watchpoint) (uint32, error) {
	switch w.Width {
	case 1:
		value, err := s.cpu.Mem.ReadByte(w.Address)
		return uint32(value), err
	case 2:
		value, err := s.cpu.Mem.ReadHalf(w.Address)
		return uint32(value), err
	default:
		return s.cpu.Mem.ReadWord(w.Address)
	}
}
