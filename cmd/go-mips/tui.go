package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gdamore/tcell/v2"

	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/debug"
	"github.com/kmeister/go-mips/mips/disasm"
	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/program"
	"github.com/kmeister/go-mips/mips/syscall"
)

const (
	disasmRows  = 16
	consoleRows = 8
)

// consoleBuffer collects program output for the console pane. Writes
// arrive from the session worker goroutine, reads from the UI loop.
type consoleBuffer struct {
	mu    sync.Mutex
	lines []string
	cur   strings.Builder
}

func (b *consoleBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range p {
		if c == '\n' {
			b.lines = append(b.lines, b.cur.String())
			b.cur.Reset()
			continue
		}
		b.cur.WriteByte(c)
	}
	return len(p), nil
}

func (b *consoleBuffer) tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines
	if b.cur.Len() > 0 {
		lines = append(append([]string(nil), lines...), b.cur.String())
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}

// tui is the full-screen debugger view: registers on top, disassembly
// in the middle, program console output at the bottom.
type tui struct {
	screen  tcell.Screen
	control *debug.Control
	image   *program.Image
	console *consoleBuffer
	status  string
	running bool
	outcome <-chan debug.Outcome
}

// runTUI owns the session for the lifetime of the view. Console input
// is not wired in this mode; blocking read syscalls see end of input.
func runTUI(img *program.Image, options []debug.Option) error {
	console := &consoleBuffer{}
	handler := syscall.NewConsole(strings.NewReader(""), console)
	session := debug.Load(img, append(options, debug.WithHandler(handler))...)

	screen, err := tcell.NewScreen()
	if err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	if err := screen.Init(); err != nil {
		return fmt.Errorf("failed to initialize terminal: %v", err)
	}
	defer screen.Fini()

	t := &tui{
		screen:  screen,
		control: debug.NewControl(session),
		image:   img,
		console: console,
		status:  "ready - s step, n over, f out, b back, r run, p pause, q quit",
	}
	defer t.control.Close()

	return t.loop()
}

func (t *tui) loop() error {
	events := make(chan tcell.Event)
	go func() {
		for {
			ev := t.screen.PollEvent()
			if ev == nil {
				close(events)
				return
			}
			events <- ev
		}
	}()

	for {
		t.draw()

		select {
		case outcome := <-t.outcome:
			t.running = false
			t.outcome = nil
			t.status = describeOutcome(outcome)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			key, isKey := ev.(*tcell.EventKey)
			if !isKey {
				continue
			}
			if quit := t.handleKey(key); quit {
				return nil
			}
		}
	}
}

func (t *tui) handleKey(key *tcell.EventKey) bool {
	if key.Key() == tcell.KeyCtrlC || key.Rune() == 'q' {
		if t.running {
			t.control.Pause()
		}
		return true
	}

	if t.running {
		if key.Rune() == 'p' {
			t.control.Pause()
		}
		return false
	}

	switch key.Rune() {
	case 's':
		t.status = describeOutcome(t.control.StepInstruction())
	case 'n':
		t.status = describeOutcome(t.control.StepOver())
	case 'f':
		t.status = describeOutcome(t.control.StepOut())
	case 'b':
		if err := t.control.StepBack(); err != nil {
			t.status = err.Error()
		} else {
			t.status = "stepped back"
		}
	case 'r':
		t.running = true
		t.status = "running - p to pause"
		t.outcome = t.control.Start(debug.Budget{})
	}
	return false
}

func describeOutcome(outcome debug.Outcome) string {
	switch outcome.Kind {
	case debug.OutcomeHalted:
		return fmt.Sprintf("halted with status %d", outcome.Status)
	case debug.OutcomeFaulted:
		return fmt.Sprintf("fault: %s at %#08x", outcome.Fault.Kind, outcome.Fault.PC)
	default:
		return fmt.Sprintf("%s at %#08x", outcome.Reason, outcome.PC)
	}
}

func (t *tui) draw() {
	t.screen.Clear()

	row := 0
	row = t.drawRegisters(row)
	row = t.drawDisassembly(row + 1)
	row = t.drawConsole(row + 1)
	t.drawText(0, row+1, tcell.StyleDefault.Foreground(tcell.ColorYellow), t.status)

	t.screen.Show()
}

func (t *tui) drawRegisters(row int) int {
	var state debugState
	t.control.With(func(s *debug.Session) {
		state.regs = s.ReadRegisters()
		state.depth = s.HistoryDepth()
	})

	style := tcell.StyleDefault
	header := tcell.StyleDefault.Bold(true)
	t.drawText(0, row, header, fmt.Sprintf("registers  (history %d)", state.depth))
	row++

	for i := 0; i < 32; i += 4 {
		var sb strings.Builder
		for j := i; j < i+4; j++ {
			fmt.Fprintf(&sb, "$%-4s %08x   ", isa.RegisterName(uint8(j)), state.regs.Reg(uint8(j)))
		}
		t.drawText(0, row, style, sb.String())
		row++
	}
	t.drawText(0, row, style, fmt.Sprintf("pc   %08x   hi   %08x   lo   %08x",
		state.regs.PC, state.regs.Hi, state.regs.Lo))
	return row + 1
}

type debugState struct {
	regs  cpu.State
	depth int
}

func (t *tui) drawDisassembly(row int) int {
	header := tcell.StyleDefault.Bold(true)
	t.drawText(0, row, header, "disassembly")
	row++

	var pc uint32
	var lines []disasm.Line
	t.control.With(func(s *debug.Session) {
		pc = s.PC()
		start := pc - uint32(4*(disasmRows/2))
		if start > pc { // wrapped below zero
			start = 0
		}
		lines = disasm.Range(s.Image(), s.ReadWord, start, disasmRows)
	})

	for _, line := range lines {
		style := tcell.StyleDefault
		marker := "  "
		if line.Address == pc {
			style = style.Foreground(tcell.ColorGreen).Bold(true)
			marker = "=>"
		}
		text := fmt.Sprintf("%s %08x  %08x  %s", marker, line.Address, line.Word, line.Text)
		if entry, ok := t.image.LineForAddress(line.Address); ok {
			text = fmt.Sprintf("%-52s %s:%d", text, entry.File, entry.Line)
		}
		t.drawText(0, row, style, text)
		row++
	}
	return row
}

func (t *tui) drawConsole(row int) int {
	header := tcell.StyleDefault.Bold(true)
	t.drawText(0, row, header, "console")
	row++

	for _, line := range t.console.tail(consoleRows) {
		t.drawText(0, row, tcell.StyleDefault, line)
		row++
	}
	return row
}

func (t *tui) drawText(x, y int, style tcell.Style, text string) {
	width, _ := t.screen.Size()
	for i, r := range text {
		if x+i >= width {
			return
		}
		t.screen.SetContent(x+i, y, r, nil, style)
	}
}
