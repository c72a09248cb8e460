package debug

// Control runs a session on a dedicated goroutine so an interactive
// caller stays responsive while the program executes. All session
// access funnels through a command channel; the one exception is Pause,
// which flips the session's atomic pause flag directly and therefore
// interrupts a Run in flight within one instruction boundary.
type Control struct {
	session *Session
	cmds    chan func(*Session)
	done    chan struct{}
}

// NewControl wraps a session and starts its worker goroutine. The
// session must not be used directly afterwards except through the
// returned Control.
func NewControl(s *Session) *Control {
	c := &Control{
		session: s,
		cmds:    make(chan func(*Session)),
		done:    make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Control) loop() {
	defer close(c.done)
	for cmd := range c.cmds {
		cmd(c.session)
	}
}

// do runs fn on the worker goroutine and waits for it to finish.
func (c *Control) do(fn func(*Session)) {
	wait := make(chan struct{})
	c.cmds <- func(s *Session) {
		fn(s)
		close(wait)
	}
	<-wait
}

// Run executes on the worker until the session stops; the caller blocks
// but can interrupt with Pause from another goroutine.
func (c *Control) Run(budget Budget) Outcome {
	var outcome Outcome
	c.do(func(s *Session) { outcome = s.Run(budget) })
	return outcome
}

// Start launches an unbounded Run without blocking; the outcome arrives
// on the returned channel.
func (c *Control) Start(budget Budget) <-chan Outcome {
	result := make(chan Outcome, 1)
	c.cmds <- func(s *Session) {
		result <- s.Run(budget)
	}
	return result
}

// Pause requests the running program stop at the next instruction
// boundary. Safe from any goroutine, even while Run is in flight.
func (c *Control) Pause() {
	c.session.RequestPause()
}

func (c *Control) StepInstruction() Outcome {
	var outcome Outcome
	c.do(func(s *Session) { outcome = s.StepInstruction() })
	return outcome
}

func (c *Control) StepOver() Outcome {
	var outcome Outcome
	c.do(func(s *Session) { outcome = s.StepOver() })
	return outcome
}

func (c *Control) StepOut() Outcome {
	var outcome Outcome
	c.do(func(s *Session) { outcome = s.StepOut() })
	return outcome
}

func (c *Control) StepBack() error {
	var err error
	c.do(func(s *Session) { err = s.StepBack() })
	return err
}

// With runs an arbitrary inspection function against the session on the
// worker goroutine, serializing it with execution commands.
func (c *Control) With(fn func(*Session)) {
	c.do(fn)
}

// Close shuts the worker down after any in-flight command completes.
func (c *Control) Close() {
	close(c.cmds)
	<-c.done
}
