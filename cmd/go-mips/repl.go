package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/kmeister/go-mips/mips/debug"
	"github.com/kmeister/go-mips/mips/disasm"
	"github.com/kmeister/go-mips/mips/isa"
)

// runREPL drives the session from a line-oriented prompt. Execution runs
// on the control worker; while a `run` is in flight Ctrl-C pauses it at
// the next instruction boundary instead of killing the process.
func runREPL(session *debug.Session) error {
	control := debug.NewControl(session)
	defer control.Close()

	fmt.Println("go-mips debugger. Type 'help' for commands.")
	printLocation(control)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("(mips) ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "q", "quit", "exit":
			return nil
		case "help":
			printHelp()
		case "r", "run":
			report(runUntilStop(control))
			printLocation(control)
		case "s", "step":
			report(control.StepInstruction())
			printLocation(control)
		case "n", "over":
			report(control.StepOver())
			printLocation(control)
		case "fin", "out":
			report(control.StepOut())
			printLocation(control)
		case "rs", "back":
			if err := control.StepBack(); err != nil {
				fmt.Println(err)
				continue
			}
			printLocation(control)
		case "b", "break":
			cmdBreak(control, fields[1:])
		case "d", "delete":
			cmdDelete(control, fields[1:])
		case "w", "watch":
			cmdWatch(control, fields[1:])
		case "regs":
			printRegisters(control)
		case "x", "mem":
			cmdMemory(control, fields[1:])
		case "l", "list":
			cmdList(control, fields[1:])
		default:
			fmt.Printf("unknown command %q, try 'help'\n", fields[0])
		}
	}
}

// runUntilStop starts execution without blocking the worker's caller
// and turns Ctrl-C into a pause request while the program runs.
func runUntilStop(control *debug.Control) debug.Outcome {
	outcomes := control.Start(debug.Budget{})

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)

	for {
		select {
		case outcome := <-outcomes:
			return outcome
		case <-interrupt:
			control.Pause()
		}
	}
}

func printHelp() {
	fmt.Print(`commands:
  run                  run until breakpoint, watchpoint or exit
  step                 execute one instruction
  over                 step over a call
  out                  run until the current procedure returns
  back                 rewind one instruction
  break <addr|line>    set a breakpoint
  delete <addr>        clear a breakpoint
  watch <addr> [val]   watch a word for change, or for equality with val
  regs                 show registers
  mem <addr> [words]   dump memory words
  list [addr]          disassemble around an address
  quit                 leave the debugger
`)
}

func report(outcome debug.Outcome) {
	switch outcome.Kind {
	case debug.OutcomeHalted:
		fmt.Printf("program halted with status %d\n", outcome.Status)
	case debug.OutcomeFaulted:
		fmt.Printf("fault: %s at %#08x\n", outcome.Fault.Kind, outcome.Fault.PC)
	default:
		switch outcome.Reason {
		case debug.PauseBreakpoint:
			fmt.Printf("breakpoint at %#08x\n", outcome.PC)
		case debug.PauseWatchpoint:
			fmt.Printf("watchpoint %d at %#08x (address %#08x)\n",
				outcome.Watch.ID, outcome.PC, outcome.Watch.Address)
		case debug.PauseBudget:
			fmt.Println("budget exhausted")
		case debug.PauseRequest:
			fmt.Println("paused")
		}
	}
}

// printLocation shows the current instruction with its source line.
func printLocation(control *debug.Control) {
	control.With(func(s *debug.Session) {
		pc := s.PC()
		word, err := s.ReadWord(pc)
		if err != nil {
			fmt.Printf("pc %#08x (unmapped)\n", pc)
			return
		}
		text := disasm.Disassemble(s.Image(), pc, word)
		if entry, ok := s.Image().LineForAddress(pc); ok {
			fmt.Printf("%#08x  %-28s  %s:%d\n", pc, text, entry.File, entry.Line)
			return
		}
		fmt.Printf("%#08x  %s\n", pc, text)
	})
}

func printRegisters(control *debug.Control) {
	control.With(func(s *debug.Session) {
		state := s.ReadRegisters()
		for i := 0; i < 32; i++ {
			fmt.Printf("$%-4s %08x", isa.RegisterName(uint8(i)), state.Reg(uint8(i)))
			if i%4 == 3 {
				fmt.Println()
			} else {
				fmt.Print("   ")
			}
		}
		fmt.Printf("pc   %08x   hi   %08x   lo   %08x\n", state.PC, state.Hi, state.Lo)
	})
}

func cmdBreak(control *debug.Control, args []string) {
	if len(args) == 0 {
		control.With(func(s *debug.Session) {
			for _, addr := range s.Breakpoints() {
				fmt.Printf("breakpoint %#08x\n", addr)
			}
		})
		return
	}

	control.With(func(s *debug.Session) {
		// Bare small decimals are treated as source lines, everything
		// else as an address or symbol.
		if line, err := strconv.Atoi(args[0]); err == nil && line < 0x10000 {
			addr, err := s.SetLineBreakpoint("", line)
			if err != nil {
				fmt.Println(err)
				return
			}
			fmt.Printf("breakpoint at %#08x (line %d)\n", addr, line)
			return
		}
		addr, ok := parseAddress(s, args[0])
		if !ok {
			fmt.Printf("cannot resolve %q\n", args[0])
			return
		}
		s.SetBreakpoint(addr)
		fmt.Printf("breakpoint at %#08x\n", addr)
	})
}

func cmdDelete(control *debug.Control, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: delete <addr>")
		return
	}
	control.With(func(s *debug.Session) {
		addr, ok := parseAddress(s, args[0])
		if !ok {
			fmt.Printf("cannot resolve %q\n", args[0])
			return
		}
		s.ClearBreakpoint(addr)
	})
}

func cmdWatch(control *debug.Control, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: watch <addr> [value]")
		return
	}
	control.With(func(s *debug.Session) {
		addr, ok := parseAddress(s, args[0])
		if !ok {
			fmt.Printf("cannot resolve %q\n", args[0])
			return
		}

		kind := debug.WatchChange
		var operand uint64
		if len(args) > 1 {
			value, err := strconv.ParseUint(args[1], 0, 32)
			if err != nil {
				fmt.Printf("bad value %q\n", args[1])
				return
			}
			kind = debug.WatchEqual
			operand = value
		}
		w, err := s.SetWatchpoint(addr, 4, kind, uint32(operand))
		if err != nil {
			fmt.Println(err)
			return
		}
		fmt.Printf("watchpoint %d at %#08x\n", w.ID, addr)
	})
}

func cmdMemory(control *debug.Control, args []string) {
	if len(args) == 0 {
		fmt.Println("usage: mem <addr> [words]")
		return
	}
	control.With(func(s *debug.Session) {
		addr, ok := parseAddress(s, args[0])
		if !ok {
			fmt.Printf("cannot resolve %q\n", args[0])
			return
		}
		count := 8
		if len(args) > 1 {
			if n, err := strconv.Atoi(args[1]); err == nil && n > 0 {
				count = n
			}
		}

		for i := 0; i < count; i++ {
			word, err := s.ReadWord(addr + uint32(i*4))
			if err != nil {
				fmt.Printf("%#08x  <%v>\n", addr+uint32(i*4), err)
				return
			}
			fmt.Printf("%#08x  %08x\n", addr+uint32(i*4), word)
		}
	})
}

func cmdList(control *debug.Control, args []string) {
	control.With(func(s *debug.Session) {
		addr := s.PC()
		if len(args) > 0 {
			parsed, ok := parseAddress(s, args[0])
			if !ok {
				fmt.Printf("cannot resolve %q\n", args[0])
				return
			}
			addr = parsed
		}

		lines := disasm.Range(s.Image(), s.ReadWord, addr, 10)
		for _, line := range lines {
			marker := "  "
			if line.Address == s.PC() {
				marker = "=>"
			}
			fmt.Printf("%s %#08x  %s\n", marker, line.Address, line.Text)
		}
	})
}

// parseAddress resolves a symbol name or numeric address.
func parseAddress(s *debug.Session, text string) (uint32, bool) {
	if addr, ok := s.Image().SymbolAddress(text); ok {
		return addr, true
	}
	value, err := strconv.ParseUint(text, 0, 32)
	if err != nil {
		return 0, false
	}
	return uint32(value), true
}
