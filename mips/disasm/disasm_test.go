package disasm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmeister/go-mips/mips/program"
)

func TestDisassemble(t *testing.T) {
	testCases := []struct {
		desc string
		word uint32
		want string
	}{
		{desc: "register form", word: 0x012A4020, want: "add $t0, $t1, $t2"},
		{desc: "shift", word: 0x00094100, want: "sll $t0, $t1, 4"},
		{desc: "immediate", word: 0x2128FFFF, want: "addi $t0, $t1, -1"},
		{desc: "load", word: 0x8FA80008, want: "lw $t0, 8($sp)"},
		{desc: "store negative offset", word: 0xAFA8FFFC, want: "sw $t0, -4($sp)"},
		{desc: "lui", word: 0x3C081001, want: "lui $t0, 0x1001"},
		{desc: "jr", word: 0x03E00008, want: "jr $ra"},
		{desc: "syscall", word: 0x0000000C, want: "syscall"},
		{desc: "mfhi", word: 0x00004010, want: "mfhi $t0"},
		{desc: "undecodable word", word: 0xFFFFFFFF, want: ".word 0xffffffff"},
	}
	for _, tC := range testCases {
		t.Run(tC.desc, func(t *testing.T) {
			assert.Equal(t, tC.want, Disassemble(nil, program.TextBase, tC.word))
		})
	}
}

func TestDisassemble_branchTargets(t *testing.T) {
	// beq $t0, $t1 with offset -2 words from 0x00400008.
	got := Disassemble(nil, 0x00400008, 0x1109FFFE)
	assert.Equal(t, "beq $t0, $t1, 0x00400004", got)

	img := &program.Image{Symbols: []program.Symbol{
		{Name: "loop", Address: 0x00400004, Section: program.SectionText},
	}}
	got = Disassemble(img, 0x00400008, 0x1109FFFE)
	assert.Equal(t, "beq $t0, $t1, loop", got)
}

func TestDisassemble_jumpTargets(t *testing.T) {
	img := &program.Image{Symbols: []program.Symbol{
		{Name: "main", Address: 0x00400000, Section: program.SectionText},
	}}
	assert.Equal(t, "j main", Disassemble(img, 0x00400010, 0x08100000))
	assert.Equal(t, "jal 0x00400020", Disassemble(nil, 0x00400010, 0x0C100008))
}

func TestRange(t *testing.T) {
	words := map[uint32]uint32{
		0x00400000: 0x24020004, // addiu $v0, $zero, 4
		0x00400004: 0x0000000C, // syscall
	}
	read := func(address uint32) (uint32, error) {
		word, ok := words[address]
		if !ok {
			return 0, assert.AnError
		}
		return word, nil
	}

	lines := Range(nil, read, 0x00400000, 4)
	require.Len(t, lines, 2, "listing stops at the first unreadable word")
	assert.Equal(t, "addiu $v0, $zero, 4", lines[0].Text)
	assert.Equal(t, "syscall", lines[1].Text)
	assert.Equal(t, uint32(0x00400004), lines[1].Address)
}
