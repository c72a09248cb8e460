package cpu

import (
	"errors"
	"fmt"

	"github.com/kmeister/go-mips/mips/mem"
)

// FaultKind classifies execution-time faults.
type FaultKind uint8

const (
	FaultIllegalInstruction FaultKind = iota
	FaultArithmeticOverflow
	FaultUnalignedAccess
	FaultOutOfBoundsAccess
	FaultUnresolvedSyscall
	FaultTrap
)

func (k FaultKind) String() string {
	switch k {
	case FaultIllegalInstruction:
		return "illegal instruction"
	case FaultArithmeticOverflow:
		return "arithmetic overflow"
	case FaultUnalignedAccess:
		return "unaligned access"
	case FaultOutOfBoundsAccess:
		return "out-of-bounds access"
	case FaultUnresolvedSyscall:
		return "unresolved syscall"
	default:
		return "trap"
	}
}

// Fault is raised when an instruction cannot complete. The engine leaves
// PC at the faulting instruction and discards the instruction's partial
// effect, so state remains inspectable.
type Fault struct {
	Kind FaultKind
	PC   uint32
	Word uint32 // raw instruction word, when one was fetched
	Err  error  // underlying cause, when one exists
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s at %#08x: %v", f.Kind, f.PC, f.Err)
	}
	return fmt.Sprintf("%s at %#08x", f.Kind, f.PC)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Halted is the terminal state of a session: an exit syscall or the PC
// running off the end of the text segment.
type Halted struct {
	Status     uint32
	DroppedOff bool
}

func (h *Halted) Error() string {
	if h.DroppedOff {
		return "halted: execution ran past the end of the program"
	}
	return fmt.Sprintf("halted with status %d", h.Status)
}

// memoryFault wraps a mem error into the matching fault kind.
func memoryFault(pc, word uint32, err error) *Fault {
	var unaligned *mem.UnalignedError
	if errors.As(err, &unaligned) {
		return &Fault{Kind: FaultUnalignedAccess, PC: pc, Word: word, Err: err}
	}
	return &Fault{Kind: FaultOutOfBoundsAccess, PC: pc, Word: word, Err: err}
}
