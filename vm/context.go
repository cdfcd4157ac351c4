package vm

// ---------------------------------------------------------------------------
// ExecutionContext: one independent execution flow
// ---------------------------------------------------------------------------

// CallFrame records one active call: where to resume, which scope to restore,
// the receiver for method dispatch, and the stack depth at entry. BaseSP lets
// RETURN rebalance the operand stack no matter what the body left behind.
type CallFrame struct {
	FunctionName string
	Impl         *FunctionImpl
	ReturnAddr   int
	SavedEnv     *Environment
	Receiver     *Value // non-nil inside method bodies
	BaseSP       int

	// Construct marks a constructor frame: RETURN pushes the receiver
	// instead of the body's result.
	Construct bool
}

// ExecutionContext is one independent flow of control: its own operand stack,
// call-frame stack, instruction pointer, and current scope. The main program
// runs in context 0; parallel blocks spin up additional contexts that share
// the program, registry, and region but nothing else.
type ExecutionContext struct {
	id     int
	ip     int
	stack  []*Value
	frames []*CallFrame
	env    *Environment
	halted bool

	// lastErr records the failure that aborted this context, if any.
	// Reported by the owning VM when a parallel block drains.
	lastErr error
}

func newContext(id int, startAddr int, env *Environment) *ExecutionContext {
	return &ExecutionContext{
		id:    id,
		ip:    startAddr,
		stack: make([]*Value, 0, 64),
		env:   env,
	}
}

// ID returns the context's identifier. The main program is context 0.
func (c *ExecutionContext) ID() int { return c.id }

// Err returns the error that aborted this context, or nil.
func (c *ExecutionContext) Err() error { return c.lastErr }

// SP returns the current operand stack depth.
func (c *ExecutionContext) SP() int { return len(c.stack) }

// push adds a value to the operand stack without retaining it; constructors
// hand the first reference straight to the stack.
func (c *ExecutionContext) push(v *Value) {
	c.stack = append(c.stack, v)
}

// pop removes and returns the top of the stack. The popped reference passes
// to the caller, who releases it when done.
func (c *ExecutionContext) pop(op string) (*Value, error) {
	if len(c.stack) == 0 {
		return nil, &StackUnderflowError{Op: op}
	}
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v, nil
}

// pop2 removes the top two entries, returning them in push order (a below b).
func (c *ExecutionContext) pop2(op string) (a, b *Value, err error) {
	if b, err = c.pop(op); err != nil {
		return nil, nil, err
	}
	if a, err = c.pop(op); err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

// peek returns the entry n slots below the top without removing it.
func (c *ExecutionContext) peek(n int, op string) (*Value, error) {
	if len(c.stack) <= n {
		return nil, &StackUnderflowError{Op: op}
	}
	return c.stack[len(c.stack)-1-n], nil
}

// truncate releases every stack entry above depth and shrinks the stack.
func (c *ExecutionContext) truncate(depth int) {
	for i := depth; i < len(c.stack); i++ {
		c.stack[i].Release()
	}
	c.stack = c.stack[:depth]
}

// pushFrame records a call entry.
func (c *ExecutionContext) pushFrame(f *CallFrame) {
	c.frames = append(c.frames, f)
}

// popFrame removes and returns the innermost frame.
func (c *ExecutionContext) popFrame() (*CallFrame, bool) {
	if len(c.frames) == 0 {
		return nil, false
	}
	f := c.frames[len(c.frames)-1]
	c.frames = c.frames[:len(c.frames)-1]
	return f, true
}

// currentFrame returns the innermost frame without removing it.
func (c *ExecutionContext) currentFrame() (*CallFrame, bool) {
	if len(c.frames) == 0 {
		return nil, false
	}
	return c.frames[len(c.frames)-1], true
}
