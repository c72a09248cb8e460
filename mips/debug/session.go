// Package debug wraps the execution engine with the control surface an
// interactive debugger needs: breakpoints, watchpoints, stepping at
// several granularities including reverse, bounded run budgets and
// state inspection. The session owns the decision of when the engine
// may advance; the engine itself stays a plain synchronous step
// function.
package debug

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kmeister/go-mips/mips/cpu"
	"github.com/kmeister/go-mips/mips/isa"
	"github.com/kmeister/go-mips/mips/mem"
	"github.com/kmeister/go-mips/mips/program"
)

// ErrNoHistory is returned by StepBack once the history buffer is
// exhausted.
var ErrNoHistory = errors.New("debug: no execution history to step back into")

// OutcomeKind classifies why control returned to the caller.
type OutcomeKind uint8

const (
	// OutcomeHalted means the program exited or ran off the end of its
	// text segment. Terminal.
	OutcomeHalted OutcomeKind = iota
	// OutcomeFaulted means an execution fault stopped the engine at the
	// faulting instruction with state inspectable.
	OutcomeFaulted
	// OutcomePaused means execution can continue; Reason says why it
	// stopped here.
	OutcomePaused
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeHalted:
		return "halted"
	case OutcomeFaulted:
		return "faulted"
	default:
		return "paused"
	}
}

// PauseReason explains an OutcomePaused.
type PauseReason uint8

const (
	PauseStep PauseReason = iota
	PauseBreakpoint
	PauseWatchpoint
	PauseBudget
	PauseRequest
)

func (r PauseReason) String() string {
	switch r {
	case PauseStep:
		return "step"
	case PauseBreakpoint:
		return "breakpoint"
	case PauseWatchpoint:
		return "watchpoint"
	case PauseBudget:
		return "budget exhausted"
	default:
		return "pause requested"
	}
}

// Outcome reports the result of a run or step operation.
type Outcome struct {
	Kind   OutcomeKind
	PC     uint32
	Status uint32     // exit status when halted
	Fault  *cpu.Fault // set when faulted
	Reason PauseReason
	Watch  *Watchpoint // set when a watchpoint paused execution
}

// Budget bounds a Run call. Zero fields mean unbounded.
type Budget struct {
	MaxInstructions uint64
	MaxDuration     time.Duration
}

// Session is one loaded program under debugger control. Sessions are
// independent: nothing is shared between two sessions, so tests may run
// them in parallel.
//
// A Session is not safe for concurrent use except for RequestPause;
// wrap it in a Control to drive it from another goroutine.
type Session struct {
	cpu   *cpu.CPU
	image *program.Image
	log   *slog.Logger

	breakpoints map[uint32]bool
	watchpoints []*Watchpoint
	watchSerial int

	history *history

	halted *cpu.Halted
	fault  *cpu.Fault

	pauseRequested atomic.Bool
}

// Option configures a Session at load time.
type Option func(*sessionConfig)

type sessionConfig struct {
	handler         cpu.Handler
	historyCapacity int
	delayedBranch   bool
	protectText     bool
	logger          *slog.Logger
}

// WithHandler installs the syscall handler, typically a
// syscall.Console.
func WithHandler(h cpu.Handler) Option {
	return func(cfg *sessionConfig) { cfg.handler = h }
}

// WithHistoryCapacity bounds reverse-stepping depth.
func WithHistoryCapacity(n int) Option {
	return func(cfg *sessionConfig) { cfg.historyCapacity = n }
}

// WithDelayedBranching enables architectural delay-slot scheduling.
func WithDelayedBranching(enabled bool) Option {
	return func(cfg *sessionConfig) { cfg.delayedBranch = enabled }
}

// WithWritableText permits self-modifying code instead of faulting on
// stores into the text segment.
func WithWritableText() Option {
	return func(cfg *sessionConfig) { cfg.protectText = false }
}

// WithLogger attaches a structured logger for step-level tracing.
func WithLogger(log *slog.Logger) Option {
	return func(cfg *sessionConfig) { cfg.logger = log }
}

// Load initializes a session from an assembled image: memory from the
// segments, PC at the entry address, stack pointer at the stack top.
func Load(img *program.Image, opts ...Option) *Session {
	cfg := sessionConfig{protectText: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	memory := mem.FromImage(img, cfg.protectText)
	c := cpu.New(img, memory)
	c.SetDelayedBranching(cfg.delayedBranch)
	if cfg.handler != nil {
		c.SetHandler(cfg.handler)
	}

	s := &Session{
		cpu:         c,
		image:       img,
		log:         cfg.logger,
		breakpoints: make(map[uint32]bool),
		history:     newHistory(cfg.historyCapacity),
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	memory.SetJournal(s.history)
	return s
}

// Image returns the loaded program image. It is read-only shared data
// for the session's lifetime.
func (s *Session) Image() *program.Image {
	return s.image
}

// PC returns the current program counter.
func (s *Session) PC() uint32 {
	return s.cpu.PC
}

// RequestPause asks a running session to stop at the next instruction
// boundary. Safe to call from any goroutine.
func (s *Session) RequestPause() {
	s.pauseRequested.Store(true)
}

// Run advances until the program halts, faults, hits a breakpoint or
// watchpoint, exhausts the budget, or a pause is requested. A
// breakpoint at the starting PC does not fire immediately, so Run can
// resume from a breakpoint it just reported.
func (s *Session) Run(budget Budget) Outcome {
	s.pauseRequested.Store(false)

	var deadline time.Time
	if budget.MaxDuration > 0 {
		deadline = time.Now().Add(budget.MaxDuration)
	}

	var executed uint64
	first := true
	for {
		if terminal := s.terminalOutcome(); terminal != nil {
			return *terminal
		}
		if !first && s.breakpoints[s.cpu.PC] && !s.cpu.InDelaySlot() {
			s.log.Debug("breakpoint hit", "pc", fmt.Sprintf("%#08x", s.cpu.PC))
			return s.paused(PauseBreakpoint)
		}
		if s.pauseRequested.Load() {
			return s.paused(PauseRequest)
		}
		if budget.MaxInstructions > 0 && executed >= budget.MaxInstructions {
			return s.paused(PauseBudget)
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return s.paused(PauseBudget)
		}
		first = false

		if outcome := s.stepOnce(); outcome != nil {
			return *outcome
		}
		executed++

		if w := s.checkWatchpoints(); w != nil {
			return Outcome{Kind: OutcomePaused, PC: s.cpu.PC, Reason: PauseWatchpoint, Watch: w}
		}
	}
}

// StepInstruction advances exactly one logical instruction. In delayed
// branching mode a taken branch and its delay slot advance together, so
// the caller never observes a half-committed transfer.
func (s *Session) StepInstruction() Outcome {
	if terminal := s.terminalOutcome(); terminal != nil {
		return *terminal
	}
	if outcome := s.stepOnce(); outcome != nil {
		return *outcome
	}
	if s.cpu.InDelaySlot() {
		if outcome := s.stepOnce(); outcome != nil {
			return *outcome
		}
	}
	if w := s.checkWatchpoints(); w != nil {
		return Outcome{Kind: OutcomePaused, PC: s.cpu.PC, Reason: PauseWatchpoint, Watch: w}
	}
	return s.paused(PauseStep)
}

// StepOver advances one logical instruction, running any call it makes
// to completion. Call depth is tracked through link instructions and
// returns through $ra.
func (s *Session) StepOver() Outcome {
	return s.stepUntilDepth(0)
}

// StepOut resumes until the current procedure returns to its caller.
func (s *Session) StepOut() Outcome {
	return s.stepUntilDepth(-1)
}

func (s *Session) stepUntilDepth(target int) Outcome {
	s.pauseRequested.Store(false)
	depth := 0
	first := true
	for {
		if terminal := s.terminalOutcome(); terminal != nil {
			return *terminal
		}
		if !first && s.breakpoints[s.cpu.PC] && !s.cpu.InDelaySlot() {
			return s.paused(PauseBreakpoint)
		}
		if s.pauseRequested.Load() {
			return s.paused(PauseRequest)
		}
		first = false

		inst := s.decodeAt(s.cpu.PC)
		outcome := s.StepInstruction()
		if outcome.Kind != OutcomePaused || outcome.Reason != PauseStep {
			return outcome
		}
		switch {
		case inst.Op.Links():
			depth++
		case inst.Op == isa.OpJr && inst.Rs == isa.RegRa:
			depth--
		}
		if depth <= target {
			return s.paused(PauseStep)
		}
	}
}

// StepBack rewinds the most recent logical instruction, restoring
// registers and every memory byte it overwrote. Fails with ErrNoHistory
// once the bounded history is exhausted.
func (s *Session) StepBack() error {
	entry, ok := s.history.pop()
	if !ok {
		return ErrNoHistory
	}
	s.restore(entry)

	// A delay-slot entry completes the branch recorded just before it;
	// rewind both so a logical step reverses atomically.
	if entry.delaySlot {
		if branch, ok := s.history.pop(); ok {
			s.restore(branch)
		}
	}

	// Rewinding out of a terminal or faulted state makes the session
	// runnable again.
	s.halted = nil
	s.fault = nil
	return nil
}

func (s *Session) restore(entry historyEntry) {
	// Detach the journal so undo writes are not themselves recorded.
	s.cpu.Mem.SetJournal(nil)
	for i := len(entry.writes) - 1; i >= 0; i-- {
		w := entry.writes[i]
		if err := s.cpu.Mem.WriteRange(w.address, w.prev); err != nil {
			panic(fmt.Sprintf("debug: history replay failed at %#08x: %v", w.address, err))
		}
	}
	s.cpu.Mem.SetJournal(s.history)

	s.cpu.State = entry.state
	s.cpu.RestoreBranchState(entry.branchPending, entry.branchTarget)
}

// HistoryDepth reports how many engine steps can currently be rewound.
func (s *Session) HistoryDepth() int {
	return s.history.depth()
}

// stepOnce drives one engine step with history recording. A non-nil
// outcome ends the caller's loop.
func (s *Session) stepOnce() *Outcome {
	s.history.begin(s.cpu)
	err := s.cpu.Step()
	if err == nil {
		s.history.commit()
		return nil
	}

	var halted *cpu.Halted
	if errors.As(err, &halted) {
		// The exit transition is recorded so StepBack can rewind out of
		// the terminal state.
		s.history.commit()
		s.halted = halted
		outcome := s.haltedOutcome()
		return &outcome
	}

	// Faulting instructions have no effect to record.
	s.history.abort()

	var fault *cpu.Fault
	if errors.As(err, &fault) {
		s.fault = fault
		s.log.Debug("execution fault", "kind", fault.Kind.String(), "pc", fmt.Sprintf("%#08x", fault.PC))
		outcome := Outcome{Kind: OutcomeFaulted, PC: s.cpu.PC, Fault: fault}
		return &outcome
	}

	// Syscall I/O failure outside the fault taxonomy; surface it as an
	// unresolved syscall fault at the current instruction.
	s.fault = &cpu.Fault{Kind: cpu.FaultUnresolvedSyscall, PC: s.cpu.PC, Err: err}
	outcome := Outcome{Kind: OutcomeFaulted, PC: s.cpu.PC, Fault: s.fault}
	return &outcome
}

func (s *Session) terminalOutcome() *Outcome {
	if s.halted != nil {
		outcome := s.haltedOutcome()
		return &outcome
	}
	if s.fault != nil {
		outcome := Outcome{Kind: OutcomeFaulted, PC: s.cpu.PC, Fault: s.fault}
		return &outcome
	}
	return nil
}

func (s *Session) haltedOutcome() Outcome {
	return Outcome{Kind: OutcomeHalted, PC: s.cpu.PC, Status: s.halted.Status}
}

func (s *Session) paused(reason PauseReason) Outcome {
	return Outcome{Kind: OutcomePaused, PC: s.cpu.PC, Reason: reason}
}

func (s *Session) decodeAt(address uint32) isa.Instruction {
	word, err := s.cpu.Mem.ReadWord(address)
	if err != nil {
		return isa.Instruction{}
	}
	return isa.Decode(word)
}
