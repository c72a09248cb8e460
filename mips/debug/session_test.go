package debug

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmeister/go-mips/mips/asm"
	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/program"
	"github.com/kmeister/go-mips/mips/syscall"
)

func loadSource(t *testing.T, src string, opts ...Option) *Session {
	t.Helper()
	img, diags := asm.Assemble("test.s", []byte(src))
	require.False(t, asm.HasErrors(diags), "assembly failed: %v", diags)
	return Load(img, opts...)
}

func loadWithConsole(t *testing.T, src, input string, opts ...Option) (*Session, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	opts = append(opts, WithHandler(syscall.NewConsole(strings.NewReader(input), out)))
	return loadSource(t, src, opts...), out
}

const printAndExit = `
main:	li $v0, 1
	li $a0, 42
	syscall
	li $v0, 10
	syscall
`

func TestSession_runToExit(t *testing.T) {
	s, out := loadWithConsole(t, printAndExit, "")

	outcome := s.Run(Budget{})
	assert.Equal(t, OutcomeHalted, outcome.Kind)
	assert.Equal(t, uint32(0), outcome.Status)
	assert.Equal(t, "42", out.String())
}

func TestSession_runExitStatus(t *testing.T) {
	s, _ := loadWithConsole(t, `
main:	li $v0, 17
	li $a0, 3
	syscall
`, "")

	outcome := s.Run(Budget{})
	assert.Equal(t, OutcomeHalted, outcome.Kind)
	assert.Equal(t, uint32(3), outcome.Status)
}

func TestSession_breakpointPrecision(t *testing.T) {
	s := loadSource(t, `
main:	addi $t0, $zero, 1
	addi $t0, $t0, 1
target:	addi $t0, $t0, 1
	addi $t0, $t0, 1
`)

	target, ok := s.Image().SymbolAddress("target")
	require.True(t, ok)
	s.SetBreakpoint(target)

	outcome := s.Run(Budget{})
	require.Equal(t, OutcomePaused, outcome.Kind)
	assert.Equal(t, PauseBreakpoint, outcome.Reason)
	assert.Equal(t, target, outcome.PC, "pause lands before the instruction executes")
	assert.Equal(t, uint32(2), s.ReadRegisters().Reg(8), "only the two preceding adds ran")
}

func TestSession_resumeFromBreakpoint(t *testing.T) {
	s := loadSource(t, `
main:	addi $t0, $zero, 1
stop:	addi $t0, $t0, 1
	addi $t0, $t0, 1
`)

	addr, ok := s.Image().SymbolAddress("stop")
	require.True(t, ok)
	s.SetBreakpoint(addr)

	outcome := s.Run(Budget{})
	require.Equal(t, PauseBreakpoint, outcome.Reason)

	// Resuming does not immediately re-trigger the same breakpoint.
	outcome = s.Run(Budget{})
	assert.Equal(t, OutcomeHalted, outcome.Kind)
	assert.Equal(t, uint32(3), s.ReadRegisters().Reg(8))
}

func TestSession_lineBreakpoint(t *testing.T) {
	s := loadSource(t, "main:\taddi $t0, $zero, 1\n\taddi $t0, $t0, 1\n")

	addr, err := s.SetLineBreakpoint("test.s", 2)
	require.NoError(t, err)
	assert.Equal(t, uint32(program.TextBase+4), addr)

	_, err = s.SetLineBreakpoint("test.s", 99)
	assert.Error(t, err)
}

func TestSession_budgetPausesNotFaults(t *testing.T) {
	s := loadSource(t, "main:\tb main\n")

	outcome := s.Run(Budget{MaxInstructions: 100})
	require.Equal(t, OutcomePaused, outcome.Kind)
	assert.Equal(t, PauseBudget, outcome.Reason)

	// A paused session resumes cleanly.
	outcome = s.Run(Budget{MaxInstructions: 10})
	assert.Equal(t, PauseBudget, outcome.Reason)
}

func TestSession_wallClockBudget(t *testing.T) {
	s := loadSource(t, "main:\tb main\n")

	outcome := s.Run(Budget{MaxDuration: 10 * time.Millisecond})
	require.Equal(t, OutcomePaused, outcome.Kind)
	assert.Equal(t, PauseBudget, outcome.Reason)
}

func TestSession_faultStopsAtInstruction(t *testing.T) {
	s := loadSource(t, `
main:	li $t0, 0x7FFFFFFF
	addi $t0, $t0, 1
`)

	outcome := s.Run(Budget{})
	require.Equal(t, OutcomeFaulted, outcome.Kind)
	require.NotNil(t, outcome.Fault)
	assert.Equal(t, cpu.FaultArithmeticOverflow, outcome.Fault.Kind)
	// li of a 32-bit constant expands to two words, so the addi sits at
	// the third word.
	assert.Equal(t, uint32(program.TextBase+8), outcome.PC)
	assert.Equal(t, uint32(0x7FFFFFFF), s.ReadRegisters().Reg(8), "operand register untouched")

	// The fault is sticky until the caller intervenes.
	again := s.Run(Budget{})
	assert.Equal(t, OutcomeFaulted, again.Kind)
}

func TestSession_stepInstruction(t *testing.T) {
	s := loadSource(t, `
main:	addi $t0, $zero, 5
	addi $t1, $zero, 7
`)

	outcome := s.StepInstruction()
	require.Equal(t, OutcomePaused, outcome.Kind)
	assert.Equal(t, PauseStep, outcome.Reason)
	assert.Equal(t, uint32(program.TextBase+4), outcome.PC)
	assert.Equal(t, uint32(5), s.ReadRegisters().Reg(8))
	assert.Equal(t, uint32(0), s.ReadRegisters().Reg(9))
}

func TestSession_stepCrossesDelaySlotAtomically(t *testing.T) {
	s := loadSource(t, `
main:	b target
	addi $t0, $zero, 1
	addi $t1, $zero, 2
target:	addi $t2, $zero, 3
`, WithDelayedBranching(true))

	outcome := s.StepInstruction()
	require.Equal(t, PauseStep, outcome.Reason)

	target, ok := s.Image().SymbolAddress("target")
	require.True(t, ok)
	assert.Equal(t, target, s.PC(), "branch and slot advance as one logical step")
	assert.Equal(t, uint32(1), s.ReadRegisters().Reg(8), "delay slot executed")
	assert.Equal(t, uint32(0), s.ReadRegisters().Reg(9), "skipped instruction did not")

	// One StepBack undoes the whole logical step.
	require.NoError(t, s.StepBack())
	assert.Equal(t, uint32(program.TextBase), s.PC())
	assert.Equal(t, uint32(0), s.ReadRegisters().Reg(8))
}

func TestSession_stepOver(t *testing.T) {
	s := loadSource(t, `
main:	jal helper
	addi $t1, $zero, 9
	j main
helper:	addi $t0, $t0, 1
	jr $ra
`)

	outcome := s.StepOver()
	require.Equal(t, PauseStep, outcome.Reason)
	assert.Equal(t, uint32(program.TextBase+4), s.PC(), "call ran to completion")
	assert.Equal(t, uint32(1), s.ReadRegisters().Reg(8))

	// Stepping over a plain instruction advances exactly one.
	outcome = s.StepOver()
	require.Equal(t, PauseStep, outcome.Reason)
	assert.Equal(t, uint32(program.TextBase+8), s.PC())
}

func TestSession_stepOut(t *testing.T) {
	s := loadSource(t, `
main:	jal helper
	addi $t1, $zero, 9
	j end
helper:	addi $t0, $t0, 1
	addi $t0, $t0, 1
	jr $ra
end:	nop
`)

	// Step into the call, then out of it.
	require.Equal(t, PauseStep, s.StepInstruction().Reason)
	helper, ok := s.Image().SymbolAddress("helper")
	require.True(t, ok)
	require.Equal(t, helper, s.PC())

	outcome := s.StepOut()
	require.Equal(t, PauseStep, outcome.Reason)
	assert.Equal(t, uint32(program.TextBase+4), s.PC(), "back at the call site's successor")
	assert.Equal(t, uint32(2), s.ReadRegisters().Reg(8))
}

func TestSession_stepBackSymmetry(t *testing.T) {
	src := `
main:	li $t0, 0
	la $t1, value
loop:	addi $t0, $t0, 1
	sw $t0, 0($t1)
	addi $t2, $t2, 3
	b loop
	.data
value:	.word 0
`
	s := loadSource(t, src)

	const steps = 12
	// Advance a few instructions to a non-trivial baseline.
	for i := 0; i < 4; i++ {
		require.Equal(t, PauseStep, s.StepInstruction().Reason)
	}
	baselineRegs := s.ReadRegisters()
	valueAddr, ok := s.Image().SymbolAddress("value")
	require.True(t, ok)
	baselineMem, err := s.ReadMemory(valueAddr, 4)
	require.NoError(t, err)

	for i := 0; i < steps; i++ {
		require.Equal(t, PauseStep, s.StepInstruction().Reason)
	}
	for i := 0; i < steps; i++ {
		require.NoError(t, s.StepBack())
	}

	assert.Equal(t, baselineRegs, s.ReadRegisters())
	mem, err := s.ReadMemory(valueAddr, 4)
	require.NoError(t, err)
	assert.Equal(t, baselineMem, mem)
}

func TestSession_stepBackNoHistory(t *testing.T) {
	s := loadSource(t, "main:\tnop\n")
	assert.ErrorIs(t, s.StepBack(), ErrNoHistory)
}

func TestSession_stepBackOutOfHalt(t *testing.T) {
	s, _ := loadWithConsole(t, "main:\tli $v0, 10\n\tsyscall\n", "")

	outcome := s.Run(Budget{})
	require.Equal(t, OutcomeHalted, outcome.Kind)

	require.NoError(t, s.StepBack())
	outcome = s.StepInstruction()
	assert.Equal(t, OutcomeHalted, outcome.Kind, "replaying the exit halts again")
}

func TestSession_historyCapacityEviction(t *testing.T) {
	s := loadSource(t, "main:\tb main\n", WithHistoryCapacity(4))

	outcome := s.Run(Budget{MaxInstructions: 20})
	require.Equal(t, PauseBudget, outcome.Reason)
	assert.Equal(t, 4, s.HistoryDepth())

	for i := 0; i < 4; i++ {
		require.NoError(t, s.StepBack())
	}
	assert.ErrorIs(t, s.StepBack(), ErrNoHistory)
}

func TestSession_watchpointEqual(t *testing.T) {
	s := loadSource(t, `
main:	la $t1, value
loop:	addi $t0, $t0, 1
	sw $t0, 0($t1)
	b loop
	.data
value:	.word 0
`)

	addr, ok := s.Image().SymbolAddress("value")
	require.True(t, ok)
	w, err := s.SetWatchpoint(addr, 4, WatchEqual, 3)
	require.NoError(t, err)

	outcome := s.Run(Budget{MaxInstructions: 100})
	require.Equal(t, OutcomePaused, outcome.Kind)
	assert.Equal(t, PauseWatchpoint, outcome.Reason)
	assert.Equal(t, w.ID, outcome.Watch.ID)

	word, err := s.ReadWord(addr)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), word)
}

func TestSession_watchpointChange(t *testing.T) {
	s := loadSource(t, `
main:	la $t1, value
	addi $t0, $zero, 7
	sw $t0, 0($t1)
	nop
	.data
value:	.word 0
`)

	addr, ok := s.Image().SymbolAddress("value")
	require.True(t, ok)
	_, err := s.SetWatchpoint(addr, 4, WatchChange, 0)
	require.NoError(t, err)

	outcome := s.Run(Budget{MaxInstructions: 100})
	require.Equal(t, PauseWatchpoint, outcome.Reason)
	assert.Equal(t, uint32(program.TextBase+16), outcome.PC, "paused at the boundary after the store")
}

func TestSession_clearWatchpoint(t *testing.T) {
	s := loadSource(t, "main:\tnop\n\tnop\n")
	w, err := s.SetWatchpoint(program.DataBase, 4, WatchChange, 0)
	require.NoError(t, err)
	require.Len(t, s.Watchpoints(), 1)

	s.ClearWatchpoint(w.ID)
	assert.Empty(t, s.Watchpoints())
}

func TestSession_writeStateRoundTrip(t *testing.T) {
	s := loadSource(t, "main:\tnop\n")

	require.NoError(t, s.WriteRegister(8, 0xCAFE))
	assert.Equal(t, uint32(0xCAFE), s.ReadRegisters().Reg(8))
	require.Error(t, s.WriteRegister(40, 1))

	require.NoError(t, s.WriteMemory(program.DataBase, []byte{1, 2, 3, 4}))
	data, err := s.ReadMemory(program.DataBase, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, data)
}

func TestSession_readConsoleInput(t *testing.T) {
	s, out := loadWithConsole(t, `
main:	li $v0, 5
	syscall
	move $a0, $v0
	li $v0, 1
	syscall
	li $v0, 10
	syscall
`, "21\n")

	outcome := s.Run(Budget{})
	require.Equal(t, OutcomeHalted, outcome.Kind)
	assert.Equal(t, "21", out.String())
}

func TestControl_pauseInterruptsRun(t *testing.T) {
	s := loadSource(t, "main:\tb main\n")
	control := NewControl(s)
	defer control.Close()

	result := control.Start(Budget{})
	time.Sleep(5 * time.Millisecond)
	control.Pause()

	select {
	case outcome := <-result:
		require.Equal(t, OutcomePaused, outcome.Kind)
		assert.Equal(t, PauseRequest, outcome.Reason)
	case <-time.After(time.Second):
		t.Fatal("pause request did not stop the run")
	}
}

func TestControl_serializesCommands(t *testing.T) {
	s := loadSource(t, `
main:	addi $t0, $t0, 1
	addi $t0, $t0, 1
	addi $t0, $t0, 1
`)
	control := NewControl(s)
	defer control.Close()

	require.Equal(t, PauseStep, control.StepInstruction().Reason)
	require.Equal(t, PauseStep, control.StepInstruction().Reason)
	require.NoError(t, control.StepBack())

	var value uint32
	control.With(func(s *Session) { value = s.ReadRegisters().Reg(8) })
	assert.Equal(t, uint32(1), value)
}
