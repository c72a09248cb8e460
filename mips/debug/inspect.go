package debug

import (
	"fmt"

	"github.com/kmeister/go-mips/mips/cpu"
)

// ReadRegisters returns a copy of the full register state: general
// registers, PC, HI and LO.
func (s *Session) ReadRegisters() cpu.State {
	return s.cpu.State
}

// WriteRegister sets one general register. Writes to $zero are dropped,
// matching the hardware.
func (s *Session) WriteRegister(index uint8, value uint32) error {
	if index > 31 {
		return fmt.Errorf("debug: no register %d", index)
	}
	s.cpu.SetReg(index, value)
	return nil
}

// SetPC moves the program counter, clearing any pending delayed branch
// since the transfer it latched no longer applies.
func (s *Session) SetPC(address uint32) {
	s.cpu.PC = address
	s.cpu.RestoreBranchState(false, 0)
}

// ReadMemory copies length bytes starting at the address.
func (s *Session) ReadMemory(address uint32, length int) ([]byte, error) {
	return s.cpu.Mem.ReadRange(address, length)
}

// WriteMemory stores bytes starting at the address. Debugger writes are
// not journaled: StepBack undoes program stores, not caller edits.
func (s *Session) WriteMemory(address uint32, data []byte) error {
	return s.cpu.Mem.WriteRange(address, data)
}

// ReadWord reads one aligned word, the common case for instruction and
// watch views.
func (s *Session) ReadWord(address uint32) (uint32, error) {
	return s.cpu.Mem.ReadWord(address)
}
