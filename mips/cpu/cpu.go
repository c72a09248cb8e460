// Package cpu implements the MIPS32 execution engine: a fetch-decode-
// execute state machine over the register file and memory, advanced one
// instruction at a time. Faults never corrupt state; the PC stays at the
// faulting instruction and the partial effect is discarded.
package cpu

import (
	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/mem"
	"github.com/kmeister/go-mips/mips/program"
)

// Handler services syscall instructions. The handler may block waiting
// for console input; that is the one legitimate suspension point inside a
// step. Returning *Halted terminates the session, any other error is
// surfaced as a fault by the engine.
type Handler interface {
	Syscall(c *CPU, code uint32) error
}

// CPU couples register state with memory and drives execution.
type CPU struct {
	State
	Mem *mem.Memory

	handler Handler

	// Delayed branching latches. When delayed is set, a taken branch
	// publishes its target here and control transfers only after the
	// following instruction (the delay slot) has executed.
	delayed       bool
	branchPending bool
	branchTarget  uint32

	textLow  uint32
	textHigh uint32
}

// New builds a CPU from a loaded image. The entry address becomes the
// initial PC and $sp starts at the stack top.
func New(img *program.Image, memory *mem.Memory) *CPU {
	c := &CPU{Mem: memory}
	c.PC = img.Entry
	c.SetReg(isa.RegSp, program.StackTop)
	c.textLow, c.textHigh = img.TextRange()
	return c
}

// SetHandler installs the syscall handler. Without one every syscall
// faults with FaultUnresolvedSyscall.
func (c *CPU) SetHandler(h Handler) {
	c.handler = h
}

// SetDelayedBranching switches the engine between immediate branching
// (the default) and architectural delay-slot scheduling.
func (c *CPU) SetDelayedBranching(enabled bool) {
	c.delayed = enabled
}

// DelayedBranching reports the active branching mode.
func (c *CPU) DelayedBranching() bool {
	return c.delayed
}

// InDelaySlot reports whether the next instruction to execute sits in the
// delay slot of a taken branch.
func (c *CPU) InDelaySlot() bool {
	return c.branchPending
}

// BranchState exposes the delayed-branch latch so a debugger can include
// it in execution history snapshots.
func (c *CPU) BranchState() (pending bool, target uint32) {
	return c.branchPending, c.branchTarget
}

// RestoreBranchState reinstates a latch captured by BranchState.
func (c *CPU) RestoreBranchState(pending bool, target uint32) {
	c.branchPending = pending
	c.branchTarget = target
}

// Step executes exactly one instruction. A nil return means the engine
// advanced; otherwise the error is *Halted for a terminal state, *Fault
// for an execution fault, or a syscall I/O error. On fault the PC is
// restored to the faulting instruction.
func (c *CPU) Step() error {
	start := c.PC
	pendingBefore := c.branchPending
	targetBefore := c.branchTarget

	if c.PC == c.textHigh && c.textHigh != 0 && !c.branchPending {
		return &Halted{DroppedOff: true}
	}

	word, err := c.Mem.ReadWord(c.PC)
	if err != nil {
		return memoryFault(start, 0, err)
	}

	inst := isa.Decode(word)
	c.PC += program.WordSize

	if err := c.execute(inst, word); err != nil {
		c.PC = start
		c.branchPending = pendingBefore
		c.branchTarget = targetBefore
		return err
	}

	if pendingBefore {
		c.PC = c.branchTarget
		c.branchPending = false
	}

	return nil
}

// setPC redirects control flow, honoring the branching mode. In delayed
// mode the transfer lands after the next instruction.
func (c *CPU) setPC(target uint32) {
	if c.delayed {
		c.branchPending = true
		c.branchTarget = target
	} else {
		c.PC = target
	}
}

// linkAddress is the return address a linking instruction saves: the
// instruction after the branch, or after its delay slot in delayed mode.
func (c *CPU) linkAddress() uint32 {
	if c.delayed {
		return c.PC + program.WordSize
	}
	return c.PC
}
