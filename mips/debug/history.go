package debug

import (
	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/mem"
)

// DefaultHistoryCapacity bounds reverse-stepping depth. Each entry holds
// a register snapshot plus the bytes overwritten by that step, so the
// cost per entry is small and the bound is what keeps long runs from
// accumulating unbounded state.
const DefaultHistoryCapacity = 10000

// memWrite remembers the bytes a store clobbered so the write can be
// reversed.
type memWrite struct {
	address uint32
	prev    []byte
}

// historyEntry is everything needed to rewind one engine step.
type historyEntry struct {
	state         cpu.State
	branchPending bool
	branchTarget  uint32
	writes        []memWrite
	delaySlot     bool // step executed the delay slot of a taken branch
}

// history is a ring buffer of rewind entries. It doubles as the memory
// journal while a step is in flight: stores funnel their overwritten
// bytes into the entry being built.
type history struct {
	entries []historyEntry
	start   int
	count   int

	recording bool
	current   historyEntry
}

var _ mem.Journal = (*history)(nil)

func newHistory(capacity int) *history {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &history{entries: make([]historyEntry, capacity)}
}

// Record implements mem.Journal, capturing overwritten bytes during the
// in-flight step.
func (h *history) Record(address uint32, prev []byte) {
	if !h.recording {
		return
	}
	saved := make([]byte, len(prev))
	copy(saved, prev)
	h.current.writes = append(h.current.writes, memWrite{address: address, prev: saved})
}

// begin snapshots the engine state ahead of one step.
func (h *history) begin(c *cpu.CPU) {
	pending, target := c.BranchState()
	h.current = historyEntry{
		state:         c.State,
		branchPending: pending,
		branchTarget:  target,
		delaySlot:     pending,
	}
	h.recording = true
}

// commit pushes the in-flight entry, evicting the oldest once full.
func (h *history) commit() {
	h.recording = false
	if h.count == len(h.entries) {
		h.entries[h.start] = h.current
		h.start = (h.start + 1) % len(h.entries)
		return
	}
	h.entries[(h.start+h.count)%len(h.entries)] = h.current
	h.count++
}

// abort discards the in-flight entry after a fault; the engine already
// restored its own state, and a faulting instruction writes nothing.
func (h *history) abort() {
	h.recording = false
	h.current = historyEntry{}
}

// pop removes and returns the most recent entry.
func (h *history) pop() (historyEntry, bool) {
	if h.count == 0 {
		return historyEntry{}, false
	}
	h.count--
	entry := h.entries[(h.start+h.count)%len(h.entries)]
	h.entries[(h.start+h.count)%len(h.entries)] = historyEntry{}
	return entry, true
}

// peek returns the most recent entry without removing it.
func (h *history) peek() (historyEntry, bool) {
	if h.count == 0 {
		return historyEntry{}, false
	}
	return h.entries[(h.start+h.count-1)%len(h.entries)], true
}

func (h *history) depth() int {
	return h.count
}
