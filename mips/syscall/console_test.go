package syscall

import (
	"bytes"
	"encoding/binary"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/mem"
	"github.com/kmeister/go-mips/mips/program"
)

func consoleCPU(t *testing.T, input string) (*cpu.CPU, *Console, *bytes.Buffer) {
	t.Helper()

	text := binary.LittleEndian.AppendUint32(nil, isa.MustEncode(isa.Instruction{Op: isa.OpSyscall}))
	img := &program.Image{
		Entry: program.TextBase,
		Segments: []program.Segment{
			{Section: program.SectionText, Base: program.TextBase, Data: text},
			{Section: program.SectionData, Base: program.DataBase, Data: append([]byte("hi there\x00"), make([]byte, 32)...)},
		},
	}

	c := cpu.New(img, mem.FromImage(img, false))
	out := &bytes.Buffer{}
	console := NewConsole(strings.NewReader(input), out)
	console.sleep = func(time.Duration) {}
	c.SetHandler(console)

	return c, console, out
}

func TestConsole_printing(t *testing.T) {
	testCases := []struct {
		desc string
		code uint32
		a0   uint32
		want string
	}{
		{desc: "print integer", code: CodePrintInteger, a0: 42, want: "42"},
		{desc: "print negative integer", code: CodePrintInteger, a0: 0xFFFFFFFF, want: "-1"},
		{desc: "print unsigned", code: CodePrintUnsigned, a0: 0xFFFFFFFF, want: "4294967295"},
		{desc: "print hex", code: CodePrintHex, a0: 0xBEEF, want: "0x0000beef"},
		{desc: "print character", code: CodePrintChar, a0: 'x', want: "x"},
		{desc: "print string", code: CodePrintString, a0: program.DataBase, want: "hi there"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			c, _, out := consoleCPU(t, "")
			c.SetReg(isa.RegV0, tC.code)
			c.SetReg(isa.RegA0, tC.a0)
			require.NoError(t, c.Step())
			assert.Equal(t, tC.want, out.String())
		})
	}
}

func TestConsole_readInteger(t *testing.T) {
	c, _, _ := consoleCPU(t, "  -123\n")
	c.SetReg(isa.RegV0, CodeReadInteger)
	require.NoError(t, c.Step())
	assert.Equal(t, uint32(0xFFFFFF85), c.Reg(isa.RegV0))
}

func TestConsole_readString(t *testing.T) {
	c, _, _ := consoleCPU(t, "hello world\n")
	buffer := uint32(program.DataBase + 16)
	c.SetReg(isa.RegV0, CodeReadString)
	c.SetReg(isa.RegA0, buffer)
	c.SetReg(isa.RegA1, 6) // room for five bytes plus NUL
	require.NoError(t, c.Step())

	stored, err := c.Mem.ReadRange(buffer, 6)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00"), stored)
}

func TestConsole_readCharacter(t *testing.T) {
	c, _, _ := consoleCPU(t, "q")
	c.SetReg(isa.RegV0, CodeReadChar)
	require.NoError(t, c.Step())
	assert.Equal(t, uint32('q'), c.Reg(isa.RegV0))
}

func TestConsole_readCharacterRawFallback(t *testing.T) {
	// Registering an input descriptor that turns out not to be a
	// terminal must leave the buffered read path untouched.
	null, err := os.Open(os.DevNull)
	require.NoError(t, err)
	defer null.Close()

	c, _, _ := consoleCPU(t, "")
	console := NewConsole(strings.NewReader("k"), &bytes.Buffer{}, WithRawInput(int(null.Fd())))
	c.SetHandler(console)

	c.SetReg(isa.RegV0, CodeReadChar)
	require.NoError(t, c.Step())
	assert.Equal(t, uint32('k'), c.Reg(isa.RegV0))
}

func TestConsole_allocate(t *testing.T) {
	c, _, _ := consoleCPU(t, "")
	c.SetReg(isa.RegV0, CodeAllocate)
	c.SetReg(isa.RegA0, 64)
	require.NoError(t, c.Step())
	assert.Equal(t, uint32(program.HeapBase), c.Reg(isa.RegV0))
	assert.Equal(t, uint32(program.HeapBase+64), c.Mem.Break())
}

func TestConsole_exits(t *testing.T) {
	t.Run("exit", func(t *testing.T) {
		c, _, _ := consoleCPU(t, "")
		c.SetReg(isa.RegV0, CodeExit)

		var halted *cpu.Halted
		require.ErrorAs(t, c.Step(), &halted)
		assert.Equal(t, uint32(0), halted.Status)
	})

	t.Run("exit with status", func(t *testing.T) {
		c, _, _ := consoleCPU(t, "")
		c.SetReg(isa.RegV0, CodeExitValued)
		c.SetReg(isa.RegA0, 3)

		var halted *cpu.Halted
		require.ErrorAs(t, c.Step(), &halted)
		assert.Equal(t, uint32(3), halted.Status)
	})
}

func TestConsole_randomDeterministic(t *testing.T) {
	first, _, _ := consoleCPU(t, "")
	second, _, _ := consoleCPU(t, "")

	for _, c := range []*cpu.CPU{first, second} {
		c.SetReg(isa.RegV0, CodeRandomInt)
		require.NoError(t, c.Step())
	}
	assert.Equal(t, first.Reg(isa.RegA0), second.Reg(isa.RegA0))
}

func TestConsole_randomRanged(t *testing.T) {
	c, _, _ := consoleCPU(t, "")
	c.SetReg(isa.RegV0, CodeRandomRanged)
	c.SetReg(isa.RegA0, 10)
	require.NoError(t, c.Step())
	assert.Less(t, c.Reg(isa.RegA0), uint32(10))
}

func TestConsole_unknownCodeFaults(t *testing.T) {
	c, _, _ := consoleCPU(t, "")
	c.SetReg(isa.RegV0, 99)

	var fault *cpu.Fault
	require.ErrorAs(t, c.Step(), &fault)
	assert.Equal(t, cpu.FaultUnresolvedSyscall, fault.Kind)
	assert.Equal(t, uint32(program.TextBase), c.PC)
}
