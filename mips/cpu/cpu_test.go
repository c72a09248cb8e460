package cpu

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/mem"
	"github.com/kmeister/go-mips/mips/program"
)

// makeCPU loads the given instructions at the text base with an 8-word
// scratch data segment.
func makeCPU(t *testing.T, instructions ...isa.Instruction) *CPU {
	t.Helper()

	text := make([]byte, 0, len(instructions)*4)
	for _, inst := range instructions {
		word, err := isa.Encode(inst)
		require.NoError(t, err)
		text = binary.LittleEndian.AppendUint32(text, word)
	}

	img := &program.Image{
		Entry: program.TextBase,
		Segments: []program.Segment{
			{Section: program.SectionText, Base: program.TextBase, Data: text},
			{Section: program.SectionData, Base: program.DataBase, Data: make([]byte, 32)},
		},
	}
	return New(img, mem.FromImage(img, false))
}

func step(t *testing.T, c *CPU, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, c.Step())
	}
}

func TestStep_arithmetic(t *testing.T) {
	testCases := []struct {
		desc  string
		inst  isa.Instruction
		rs    uint32
		rt    uint32
		want  uint32
		regRd bool
	}{
		{desc: "addu wraps", inst: isa.Instruction{Op: isa.OpAddu, Rs: 8, Rt: 9, Rd: 10}, rs: 0xFFFFFFFF, rt: 2, want: 1, regRd: true},
		{desc: "subu wraps", inst: isa.Instruction{Op: isa.OpSubu, Rs: 8, Rt: 9, Rd: 10}, rs: 0, rt: 1, want: 0xFFFFFFFF, regRd: true},
		{desc: "and", inst: isa.Instruction{Op: isa.OpAnd, Rs: 8, Rt: 9, Rd: 10}, rs: 0xF0F0, rt: 0xFF00, want: 0xF000, regRd: true},
		{desc: "nor", inst: isa.Instruction{Op: isa.OpNor, Rs: 8, Rt: 9, Rd: 10}, rs: 0, rt: 0, want: 0xFFFFFFFF, regRd: true},
		{desc: "slt signed", inst: isa.Instruction{Op: isa.OpSlt, Rs: 8, Rt: 9, Rd: 10}, rs: 0xFFFFFFFF, rt: 1, want: 1, regRd: true},
		{desc: "sltu unsigned", inst: isa.Instruction{Op: isa.OpSltu, Rs: 8, Rt: 9, Rd: 10}, rs: 0xFFFFFFFF, rt: 1, want: 0, regRd: true},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c := makeCPU(t, tC.inst)
			c.SetReg(8, tC.rs)
			c.SetReg(9, tC.rt)
			step(t, c, 1)
			assert.Equal(t, tC.want, c.Reg(10))
		})
	}
}

func TestStep_overflowTrap(t *testing.T) {
	testCases := []struct {
		desc string
		inst isa.Instruction
		rs   uint32
		rt   uint32
	}{
		{desc: "add positive overflow", inst: isa.Instruction{Op: isa.OpAdd, Rs: 8, Rt: 9, Rd: 10}, rs: 0x7FFFFFFF, rt: 1},
		{desc: "add negative overflow", inst: isa.Instruction{Op: isa.OpAdd, Rs: 8, Rt: 9, Rd: 10}, rs: 0x80000000, rt: 0x80000000},
		{desc: "sub overflow", inst: isa.Instruction{Op: isa.OpSub, Rs: 8, Rt: 9, Rd: 10}, rs: 0x7FFFFFFF, rt: 0xFFFFFFFF},
		{desc: "addi overflow", inst: isa.Instruction{Op: isa.OpAddi, Rs: 8, Rt: 10, Imm: 1}, rs: 0x7FFFFFFF},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c := makeCPU(t, tC.inst)
			c.SetReg(8, tC.rs)
			c.SetReg(9, tC.rt)
			c.SetReg(10, 0xDDDDDDDD)

			err := c.Step()
			var fault *Fault
			require.ErrorAs(t, err, &fault)
			assert.Equal(t, FaultArithmeticOverflow, fault.Kind)

			// Fault containment: PC stays at the faulting instruction and
			// the destination register keeps its prior value.
			assert.Equal(t, uint32(program.TextBase), c.PC)
			assert.Equal(t, uint32(0xDDDDDDDD), c.Reg(10))
		})
	}
}

func TestStep_nonTrappingCounterparts(t *testing.T) {
	c := makeCPU(t, isa.Instruction{Op: isa.OpAddu, Rs: 8, Rt: 9, Rd: 10})
	c.SetReg(8, 0x7FFFFFFF)
	c.SetReg(9, 1)
	step(t, c, 1)
	assert.Equal(t, uint32(0x80000000), c.Reg(10))
}

func TestStep_shiftMasking(t *testing.T) {
	// Variable shifts use only the low five bits of rs.
	c := makeCPU(t, isa.Instruction{Op: isa.OpSllv, Rs: 8, Rt: 9, Rd: 10})
	c.SetReg(8, 33)
	c.SetReg(9, 1)
	step(t, c, 1)
	assert.Equal(t, uint32(2), c.Reg(10))
}

func TestStep_multiplyDivide(t *testing.T) {
	t.Run("mult negative", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpMult, Rs: 8, Rt: 9},
			isa.Instruction{Op: isa.OpMflo, Rd: 10},
			isa.Instruction{Op: isa.OpMfhi, Rd: 11},
		)
		c.SetReg(8, 0xFFFFFFFF) // -1
		c.SetReg(9, 2)
		step(t, c, 3)
		assert.Equal(t, uint32(0xFFFFFFFE), c.Reg(10))
		assert.Equal(t, uint32(0xFFFFFFFF), c.Reg(11))
	})

	t.Run("div by zero clears hi/lo", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpDiv, Rs: 8, Rt: 9})
		c.SetReg(8, 100)
		c.Hi, c.Lo = 5, 5
		step(t, c, 1)
		assert.Equal(t, uint32(0), c.Hi)
		assert.Equal(t, uint32(0), c.Lo)
	})

	t.Run("madd accumulates", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpMadd, Rs: 8, Rt: 9},
			isa.Instruction{Op: isa.OpMadd, Rs: 8, Rt: 9},
		)
		c.SetReg(8, 3)
		c.SetReg(9, 4)
		step(t, c, 2)
		assert.Equal(t, uint32(24), c.Lo)
	})
}

func TestStep_branches(t *testing.T) {
	t.Run("taken beq redirects immediately by default", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpBeq, Rs: 0, Rt: 0, Imm: 2},
			isa.Instruction{Op: isa.OpAddiu, Rt: 8, Imm: 1}, // skipped
			isa.Instruction{Op: isa.OpAddiu, Rt: 8, Imm: 2}, // skipped
			isa.Instruction{Op: isa.OpAddiu, Rt: 9, Imm: 3},
		)
		step(t, c, 2)
		assert.Equal(t, uint32(0), c.Reg(8))
		assert.Equal(t, uint32(3), c.Reg(9))
	})

	t.Run("not-taken branch falls through", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpBne, Rs: 0, Rt: 0, Imm: 2},
			isa.Instruction{Op: isa.OpAddiu, Rt: 8, Imm: 1},
		)
		step(t, c, 2)
		assert.Equal(t, uint32(1), c.Reg(8))
	})

	t.Run("backward branch", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpAddiu, Rs: 8, Rt: 8, Imm: 1},
			isa.Instruction{Op: isa.OpBne, Rs: 8, Rt: 9, Imm: 0xFFFE}, // -2 words
		)
		c.SetReg(9, 3)
		for i := 0; i < 6; i++ {
			require.NoError(t, c.Step())
		}
		assert.Equal(t, uint32(3), c.Reg(8))
	})

	t.Run("jal links return address", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpJal, Target: (program.TextBase + 8) >> 2},
			isa.Instruction{Op: isa.OpSll}, // nop, skipped
			isa.Instruction{Op: isa.OpSll}, // nop
		)
		step(t, c, 1)
		assert.Equal(t, uint32(program.TextBase+8), c.PC)
		assert.Equal(t, uint32(program.TextBase+4), c.Reg(isa.RegRa))
	})

	t.Run("jalr links into rd", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpJalr, Rs: 8, Rd: 10},
			isa.Instruction{Op: isa.OpSll}, // nop, skipped
			isa.Instruction{Op: isa.OpSll}, // nop
		)
		c.SetReg(8, program.TextBase+8)
		step(t, c, 1)
		assert.Equal(t, uint32(program.TextBase+8), c.PC)
		assert.Equal(t, uint32(program.TextBase+4), c.Reg(10))
		// $ra stays untouched when the program picks another link register.
		assert.Equal(t, uint32(0), c.Reg(isa.RegRa))
	})

	t.Run("jalr default form links into $ra", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpJalr, Rs: 8, Rd: isa.RegRa},
			isa.Instruction{Op: isa.OpSll},
			isa.Instruction{Op: isa.OpSll},
		)
		c.SetReg(8, program.TextBase+8)
		step(t, c, 1)
		assert.Equal(t, uint32(program.TextBase+4), c.Reg(isa.RegRa))
	})

	t.Run("jr returns", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpJr, Rs: isa.RegRa})
		c.SetReg(isa.RegRa, program.TextBase+4)
		step(t, c, 1)
		assert.Equal(t, uint32(program.TextBase+4), c.PC)
	})
}

func TestStep_delaySlots(t *testing.T) {
	t.Run("delay slot executes before control transfers", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpBeq, Rs: 0, Rt: 0, Imm: 2},
			isa.Instruction{Op: isa.OpAddiu, Rt: 8, Imm: 1}, // delay slot, executes
			isa.Instruction{Op: isa.OpAddiu, Rt: 8, Imm: 9}, // skipped
			isa.Instruction{Op: isa.OpAddiu, Rt: 9, Imm: 3},
		)
		c.SetDelayedBranching(true)

		step(t, c, 1)
		assert.True(t, c.InDelaySlot())

		step(t, c, 1) // the delay slot
		assert.False(t, c.InDelaySlot())
		assert.Equal(t, uint32(1), c.Reg(8))
		assert.Equal(t, uint32(program.TextBase+12), c.PC)

		step(t, c, 1)
		assert.Equal(t, uint32(3), c.Reg(9))
	})

	t.Run("jal link skips the delay slot", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpJal, Target: (program.TextBase + 12) >> 2},
			isa.Instruction{Op: isa.OpSll}, // delay slot
			isa.Instruction{Op: isa.OpSll},
			isa.Instruction{Op: isa.OpSll},
		)
		c.SetDelayedBranching(true)
		step(t, c, 2)
		assert.Equal(t, uint32(program.TextBase+12), c.PC)
		assert.Equal(t, uint32(program.TextBase+8), c.Reg(isa.RegRa))
	})

	t.Run("fault in delay slot restores the pending branch", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpBeq, Rs: 0, Rt: 0, Imm: 2},
			isa.Instruction{Op: isa.OpLw, Rs: 0, Rt: 8}, // delay slot, faults at address 0
		)
		c.SetDelayedBranching(true)
		step(t, c, 1)

		err := c.Step()
		var fault *Fault
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, FaultOutOfBoundsAccess, fault.Kind)
		assert.Equal(t, uint32(program.TextBase+4), c.PC)
		assert.True(t, c.InDelaySlot())
	})
}

func TestStep_memoryAccess(t *testing.T) {
	t.Run("lb sign extends", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpLb, Rs: 8, Rt: 9})
		c.SetReg(8, program.DataBase)
		require.NoError(t, c.Mem.WriteByte(program.DataBase, 0x80))
		step(t, c, 1)
		assert.Equal(t, uint32(0xFFFFFF80), c.Reg(9))
	})

	t.Run("lhu zero extends", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpLhu, Rs: 8, Rt: 9})
		c.SetReg(8, program.DataBase)
		require.NoError(t, c.Mem.WriteHalf(program.DataBase, 0x8001))
		step(t, c, 1)
		assert.Equal(t, uint32(0x8001), c.Reg(9))
	})

	t.Run("sw then lw round trips via negative offset", func(t *testing.T) {
		c := makeCPU(t,
			isa.Instruction{Op: isa.OpSw, Rs: 8, Rt: 9, Imm: 0xFFFC}, // -4
			isa.Instruction{Op: isa.OpLw, Rs: 8, Rt: 10, Imm: 0xFFFC},
		)
		c.SetReg(8, program.DataBase+8)
		c.SetReg(9, 0xCAFEBABE)
		step(t, c, 2)
		assert.Equal(t, uint32(0xCAFEBABE), c.Reg(10))
	})

	t.Run("unaligned lw faults with PC unchanged", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpLw, Rs: 8, Rt: 9, Imm: 2})
		c.SetReg(8, program.DataBase)

		err := c.Step()
		var fault *Fault
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, FaultUnalignedAccess, fault.Kind)
		assert.Equal(t, uint32(program.TextBase), c.PC)
	})

	t.Run("out-of-bounds sb leaves memory untouched", func(t *testing.T) {
		c := makeCPU(t, isa.Instruction{Op: isa.OpSb, Rs: 8, Rt: 9})
		c.SetReg(8, 0x00000010)
		c.SetReg(9, 0xFF)

		err := c.Step()
		var fault *Fault
		require.ErrorAs(t, err, &fault)
		assert.Equal(t, FaultOutOfBoundsAccess, fault.Kind)
		assert.Equal(t, uint32(program.TextBase), c.PC)
	})
}

func TestStep_illegalInstruction(t *testing.T) {
	c := makeCPU(t, isa.Instruction{Op: isa.OpSll})
	require.NoError(t, c.Mem.WriteWord(program.TextBase, 0xFC000000))

	err := c.Step()
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, FaultIllegalInstruction, fault.Kind)
	assert.Equal(t, uint32(0xFC000000), fault.Word)
	assert.Equal(t, uint32(program.TextBase), c.PC)
}

func TestStep_dropOffEndHalts(t *testing.T) {
	c := makeCPU(t, isa.Instruction{Op: isa.OpSll})
	step(t, c, 1)

	err := c.Step()
	var halted *Halted
	require.ErrorAs(t, err, &halted)
	assert.True(t, halted.DroppedOff)
}

func TestStep_syscallWithoutHandler(t *testing.T) {
	c := makeCPU(t, isa.Instruction{Op: isa.OpSyscall})

	err := c.Step()
	var fault *Fault
	require.ErrorAs(t, err, &fault)
	assert.Equal(t, FaultUnresolvedSyscall, fault.Kind)
}

func TestStep_zeroRegisterHardwired(t *testing.T) {
	c := makeCPU(t, isa.Instruction{Op: isa.OpAddiu, Rs: 0, Rt: 0, Imm: 5})
	step(t, c, 1)
	assert.Equal(t, uint32(0), c.Reg(0))
}
