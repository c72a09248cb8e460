package isa

// Conventional register numbers used by the assembler and syscall ABI.
const (
	RegZero = 0  // hardwired zero
	RegAt   = 1  // assembler temporary, used by pseudo expansions
	RegV0   = 2  // syscall code and result
	RegA0   = 4  // first syscall argument
	RegA1   = 5  // second syscall argument
	RegGp   = 28 // global pointer
	RegSp   = 29 // stack pointer
	RegFp   = 30 // frame pointer
	RegRa   = 31 // return address
)

var registerNames = [32]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

var registerLookup = func() map[string]uint8 {
	m := make(map[string]uint8, 32)
	for i, name := range registerNames {
		m[name] = uint8(i)
	}
	return m
}()

// RegisterName returns the conventional name for a register number,
// without the $ sigil.
func RegisterName(index uint8) string {
	return registerNames[index&0x1F]
}

// LookupRegister resolves a register name (without the $ sigil) to its
// number. Both conventional names and plain numbers "0".."31" are
// accepted by the assembler's lexer before this is consulted.
func LookupRegister(name string) (uint8, bool) {
	index, ok := registerLookup[name]
	return index, ok
}
