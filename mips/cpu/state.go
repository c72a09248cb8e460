package cpu

// State is the architectural register state of one session: the general
// purpose register file, the program counter and the HI/LO multiply unit
// registers. It is a plain value so the debugger can snapshot and restore
// it wholesale.
type State struct {
	Regs [32]uint32
	PC   uint32
	Hi   uint32
	Lo   uint32
}

// Reg reads a general purpose register. The value receiver lets callers
// read straight off a snapshot copy.
func (s State) Reg(index uint8) uint32 {
	return s.Regs[index&0x1F]
}

// SetReg writes a general purpose register. Writes to $zero are dropped,
// keeping the register hardwired.
func (s *State) SetReg(index uint8, value uint32) {
	if index&0x1F == 0 {
		return
	}
	s.Regs[index&0x1F] = value
}
