// Package syscall implements the documented syscall surface of the
// toolchain over plain reader/writer streams. The code/argument table is
// part of the external contract and is shared verbatim by assembler test
// fixtures and the execution engine:
//
//	code ($v0)  behavior                     arguments / results
//	 1          print integer                $a0 signed value
//	 4          print string                 $a0 NUL-terminated address
//	 5          read integer                 result in $v0
//	 8          read string                  $a0 buffer, $a1 capacity
//	 9          allocate heap block          $a0 size, address in $v0
//	10          exit                         status 0
//	11          print character              $a0 character
//	12          read character               result in $v0
//	17          exit with status             $a0 status
//	30          system time (ms)             low in $a0, high in $a1
//	32          sleep                        $a0 milliseconds
//	34          print integer, hexadecimal   $a0 value
//	35          print integer, binary        $a0 value
//	36          print integer, unsigned      $a0 value
//	40          seed random generator        $a0 seed
//	41          random integer               result in $a0
//	42          random integer in range      $a0 upper bound, result in $a0
//
// Every other code faults with FaultUnresolvedSyscall. Read-character
// answers on a single keystroke when the input is a terminal registered
// with WithRawInput; on plain streams it reads through the buffered
// line reader.
package syscall

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/isa"
)

// Syscall codes implemented by the console handler.
const (
	CodePrintInteger  = 1
	CodePrintString   = 4
	CodeReadInteger   = 5
	CodeReadString    = 8
	CodeAllocate      = 9
	CodeExit          = 10
	CodePrintChar     = 11
	CodeReadChar      = 12
	CodeExitValued    = 17
	CodeSystemTime    = 30
	CodeSleep         = 32
	CodePrintHex      = 34
	CodePrintBinary   = 35
	CodePrintUnsigned = 36
	CodeSetSeed       = 40
	CodeRandomInt     = 41
	CodeRandomRanged  = 42
)

// Console services syscalls against an input and output stream. Reads
// block until input arrives, which is the only place execution suspends
// pending the outside world.
type Console struct {
	in    *bufio.Reader
	out   io.Writer
	rawFd int

	rng   *rand.Rand
	now   func() time.Time
	sleep func(time.Duration)
}

// ConsoleOption configures a Console at construction time.
type ConsoleOption func(*Console)

// WithRawInput names the terminal file descriptor behind the input
// stream. Read-character then flips the terminal into raw mode for the
// duration of the read, so a single keystroke answers the syscall
// instead of a full buffered line.
func WithRawInput(fd int) ConsoleOption {
	return func(c *Console) { c.rawFd = fd }
}

// NewConsole builds a handler over the given streams. The random stream
// is deterministically seeded until the program reseeds it, so runs are
// reproducible by default.
func NewConsole(in io.Reader, out io.Writer, opts ...ConsoleOption) *Console {
	c := &Console{
		in:    bufio.NewReader(in),
		out:   out,
		rawFd: -1,
		rng:   rand.New(rand.NewSource(0)),
		now:   time.Now,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ cpu.Handler = (*Console)(nil)

// Syscall dispatches one syscall. Unknown codes return
// *cpu.UnknownSyscallError, which the engine reports as an unresolved
// syscall fault at the syscall instruction.
func (h *Console) Syscall(c *cpu.CPU, code uint32) error {
	switch code {
	case CodePrintInteger:
		_, err := fmt.Fprintf(h.out, "%d", int32(c.Reg(isa.RegA0)))
		return err
	case CodePrintString:
		text, err := h.loadString(c, c.Reg(isa.RegA0))
		if err != nil {
			return err
		}
		_, err = io.WriteString(h.out, text)
		return err
	case CodeReadInteger:
		value, err := h.readInteger()
		if err != nil {
			return err
		}
		c.SetReg(isa.RegV0, value)
		return nil
	case CodeReadString:
		return h.readString(c)
	case CodeAllocate:
		block, err := c.Mem.Grow(c.Reg(isa.RegA0))
		if err != nil {
			return err
		}
		c.SetReg(isa.RegV0, block)
		return nil
	case CodeExit:
		return &cpu.Halted{Status: 0}
	case CodePrintChar:
		_, err := fmt.Fprintf(h.out, "%c", rune(c.Reg(isa.RegA0)))
		return err
	case CodeReadChar:
		ch, err := h.readChar()
		if err != nil {
			return err
		}
		c.SetReg(isa.RegV0, uint32(ch))
		return nil
	case CodeExitValued:
		return &cpu.Halted{Status: c.Reg(isa.RegA0)}
	case CodeSystemTime:
		millis := uint64(h.now().UnixMilli())
		c.SetReg(isa.RegA0, uint32(millis))
		c.SetReg(isa.RegA1, uint32(millis>>32))
		return nil
	case CodeSleep:
		h.sleep(time.Duration(c.Reg(isa.RegA0)) * time.Millisecond)
		return nil
	case CodePrintHex:
		_, err := fmt.Fprintf(h.out, "0x%08x", c.Reg(isa.RegA0))
		return err
	case CodePrintBinary:
		_, err := fmt.Fprintf(h.out, "0b%032b", c.Reg(isa.RegA0))
		return err
	case CodePrintUnsigned:
		_, err := fmt.Fprintf(h.out, "%d", c.Reg(isa.RegA0))
		return err
	case CodeSetSeed:
		h.rng = rand.New(rand.NewSource(int64(c.Reg(isa.RegA0))))
		return nil
	case CodeRandomInt:
		c.SetReg(isa.RegA0, h.rng.Uint32())
		return nil
	case CodeRandomRanged:
		bound := c.Reg(isa.RegA0)
		if bound == 0 {
			bound = 1
		}
		c.SetReg(isa.RegA0, uint32(h.rng.Int63n(int64(bound))))
		return nil
	default:
		return &cpu.UnknownSyscallError{Code: code}
	}
}

// loadString reads the NUL-terminated string at address.
func (h *Console) loadString(c *cpu.CPU, address uint32) (string, error) {
	var sb strings.Builder
	for {
		value, err := c.Mem.ReadByte(address)
		if err != nil {
			return "", err
		}
		if value == 0 {
			return sb.String(), nil
		}
		sb.WriteByte(value)
		address++
	}
}

// readChar reads a single character. With a raw input descriptor and no
// buffered bytes left over from a line read, the terminal goes into raw
// mode first so the read completes on one keystroke.
func (h *Console) readChar() (rune, error) {
	if h.rawFd >= 0 && h.in.Buffered() == 0 && term.IsTerminal(h.rawFd) {
		if state, err := term.MakeRaw(h.rawFd); err == nil {
			defer term.Restore(h.rawFd, state)
		}
	}
	ch, _, err := h.in.ReadRune()
	if err != nil {
		return 0, fmt.Errorf("read-character: %w", err)
	}
	return ch, nil
}

func (h *Console) readInteger() (uint32, error) {
	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return 0, fmt.Errorf("read-integer: %w", err)
	}
	value, err := strconv.ParseInt(strings.TrimSpace(line), 0, 64)
	if err != nil {
		return 0, fmt.Errorf("read-integer: %w", err)
	}
	return uint32(value), nil
}

// readString stores up to $a1-1 bytes of the next input line at $a0,
// always NUL-terminated.
func (h *Console) readString(c *cpu.CPU) error {
	buffer := c.Reg(isa.RegA0)
	capacity := c.Reg(isa.RegA1)
	if capacity == 0 {
		return nil
	}

	line, err := h.in.ReadString('\n')
	if err != nil && line == "" {
		return fmt.Errorf("read-string: %w", err)
	}
	line = strings.TrimRight(line, "\n")

	if uint32(len(line)) > capacity-1 {
		line = line[:capacity-1]
	}
	for i := 0; i < len(line); i++ {
		if err := c.Mem.WriteByte(buffer+uint32(i), line[i]); err != nil {
			return err
		}
	}
	return c.Mem.WriteByte(buffer+uint32(len(line)), 0)
}
