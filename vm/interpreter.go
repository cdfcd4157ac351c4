package vm

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tliron/commonlog"
)

// ---------------------------------------------------------------------------
// VM: the execution engine
// ---------------------------------------------------------------------------

const (
	// DefaultStackLimit bounds the operand stack of one context.
	DefaultStackLimit = 16384

	// DefaultPoolWorkers is the worker cap for BEGIN_CONCURRENT blocks.
	DefaultPoolWorkers = 4
)

// VM executes an immutable instruction stream. The program, registry, and
// region are shared by every execution context the program spawns; each
// context carries its own stack, frames, and scope chain.
type VM struct {
	program []Instruction
	reg     *Registry
	region  *Region
	global  *Environment

	log         commonlog.Logger
	debug       bool
	stackLimit  int
	poolWorkers int
	stdout      io.Writer

	nextCtxID atomic.Int32

	mu       sync.Mutex
	contexts map[int]*ExecutionContext
}

// Option configures a VM.
type Option func(*VM)

// WithDebug enables per-instruction trace logging.
func WithDebug(on bool) Option {
	return func(vm *VM) { vm.debug = on }
}

// WithStackLimit bounds the operand stack depth of each context.
func WithStackLimit(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.stackLimit = n
		}
	}
}

// WithPoolWorkers sets the worker cap for BEGIN_CONCURRENT blocks.
func WithPoolWorkers(n int) Option {
	return func(vm *VM) {
		if n > 0 {
			vm.poolWorkers = n
		}
	}
}

// WithLogger overrides the default logger.
func WithLogger(log commonlog.Logger) Option {
	return func(vm *VM) { vm.log = log }
}

// WithStdout redirects the output of the printing natives.
func WithStdout(w io.Writer) Option {
	return func(vm *VM) { vm.stdout = w }
}

// NewVM creates an engine for the given program. The built-in natives are
// registered; hosts add more through RegisterNative before running.
func NewVM(program []Instruction, options ...Option) *VM {
	vm := &VM{
		program:     program,
		reg:         NewRegistry(),
		region:      NewRegion(),
		global:      NewEnvironment(nil),
		log:         commonlog.GetLogger("veld.vm"),
		stackLimit:  DefaultStackLimit,
		poolWorkers: DefaultPoolWorkers,
		stdout:      os.Stdout,
		contexts:    make(map[int]*ExecutionContext),
	}
	for _, opt := range options {
		opt(vm)
	}
	vm.registerBuiltins()
	return vm
}

// Registry returns the VM's name registry.
func (vm *VM) Registry() *Registry { return vm.reg }

// Region returns the VM's value region.
func (vm *VM) Region() *Region { return vm.region }

// Globals returns the global scope.
func (vm *VM) Globals() *Environment { return vm.global }

// RegisterNative binds a host function callable from bytecode.
func (vm *VM) RegisterNative(name string, fn NativeFunc) {
	vm.reg.RegisterNative(name, fn)
}

// ---------------------------------------------------------------------------
// Top-level execution
// ---------------------------------------------------------------------------

// Run executes the program from the first instruction in context 0 and
// returns the top of the operand stack at halt, or nil when the stack is
// empty. A runtime error aborts execution with no result.
func (vm *VM) Run() (*Value, error) {
	c := newContext(0, 0, vm.global)
	vm.track(c)
	defer vm.untrack(c)

	if err := vm.runContext(c); err != nil {
		return nil, err
	}
	if len(c.stack) == 0 {
		return nil, nil
	}
	return c.stack[len(c.stack)-1], nil
}

// Execute is the fire-and-forget entry point: it runs the program, logs any
// failure through the VM logger, and reports success.
func (vm *VM) Execute() bool {
	_, err := vm.Run()
	if err != nil {
		vm.log.Errorf("execution aborted: %s", err.Error())
		return false
	}
	return true
}

// Drop releases the VM's region. The VM cannot be run afterwards.
func (vm *VM) Drop() {
	vm.region.Drop()
}

func (vm *VM) track(c *ExecutionContext) {
	vm.mu.Lock()
	vm.contexts[c.id] = c
	vm.mu.Unlock()
}

func (vm *VM) untrack(c *ExecutionContext) {
	vm.mu.Lock()
	delete(vm.contexts, c.id)
	vm.mu.Unlock()
}

// ---------------------------------------------------------------------------
// Dispatch loop
// ---------------------------------------------------------------------------

// runContext drives one context until it halts, runs off the end of the
// program, or fails. Errors are annotated with the source line of the
// faulting instruction.
func (vm *VM) runContext(c *ExecutionContext) error {
	for !c.halted && c.ip >= 0 && c.ip < len(vm.program) {
		in := vm.program[c.ip]
		if vm.debug {
			vm.log.Debugf("ctx %d: %s (sp=%d)", c.id, DisassembleInstruction(c.ip, in), len(c.stack))
		}
		c.ip++
		if err := vm.step(c, in); err != nil {
			c.lastErr = annotate(err, in)
			return c.lastErr
		}
		if len(c.stack) > vm.stackLimit {
			c.lastErr = annotate(fmt.Errorf("operand stack limit %d exceeded", vm.stackLimit), in)
			return c.lastErr
		}
	}
	return nil
}

// annotate wraps an error with the faulting instruction's source line.
func annotate(err error, in Instruction) error {
	if in.Line == 0 {
		return err
	}
	return fmt.Errorf("line %d: %w", in.Line, err)
}

// step executes a single instruction.
func (vm *VM) step(c *ExecutionContext, in Instruction) error {
	switch in.Op {

	// Stack operations.
	case OpNop:
		return nil
	case OpPop:
		v, err := c.pop("POP")
		if err != nil {
			return err
		}
		v.Release()
		return nil
	case OpDup:
		v, err := c.peek(0, "DUP")
		if err != nil {
			return err
		}
		c.push(v.Retain())
		return nil
	case OpSwap:
		a, b, err := c.pop2("SWAP")
		if err != nil {
			return err
		}
		c.push(b)
		c.push(a)
		return nil

	// Constants.
	case OpPushNil:
		c.push(vm.region.Nil())
		return nil
	case OpPushBool:
		c.push(vm.region.Bool(in.BoolVal))
		return nil
	case OpPushInt:
		c.push(vm.region.Int64(int64(in.IntVal)))
		return nil
	case OpPushFloat:
		c.push(vm.region.Float64(float64(in.FloatVal)))
		return nil
	case OpPushString:
		c.push(vm.region.String(in.StrVal))
		return nil

	// Variables and scopes.
	case OpDefineVar:
		v, err := c.pop("DEFINE_VAR")
		if err != nil {
			return err
		}
		c.env.Define(in.StrVal, v)
		v.Release()
		return nil
	case OpLoadVar:
		v, err := c.env.Lookup(in.StrVal)
		if err != nil {
			return err
		}
		c.push(v.Retain())
		return nil
	case OpStoreVar:
		v, err := c.pop("STORE_VAR")
		if err != nil {
			return err
		}
		err = c.env.Assign(in.StrVal, v)
		v.Release()
		return err
	case OpPushScope:
		c.env = NewEnvironment(c.env)
		return nil
	case OpPopScope:
		if c.env.Parent() == nil {
			return typeErrorf("POP_SCOPE at global scope")
		}
		old := c.env
		c.env = old.Parent()
		old.Release()
		return nil

	// Arithmetic, comparison, logic.
	case OpAdd, OpSubtract, OpMultiply, OpDivide, OpModulo:
		return vm.execBinaryArith(c, in.Op)
	case OpNegate:
		return vm.execNegate(c)
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual:
		return vm.execComparison(c, in.Op)
	case OpAnd, OpOr, OpNot:
		return vm.execLogic(c, in.Op)

	// Control flow.
	case OpJump:
		c.ip += int(in.IntVal)
		return nil
	case OpJumpIfTrue:
		v, err := c.pop("JUMP_IF_TRUE")
		if err != nil {
			return err
		}
		if v.IsTruthy() {
			c.ip += int(in.IntVal)
		}
		v.Release()
		return nil
	case OpJumpIfFalse:
		v, err := c.pop("JUMP_IF_FALSE")
		if err != nil {
			return err
		}
		if !v.IsTruthy() {
			c.ip += int(in.IntVal)
		}
		v.Release()
		return nil
	case OpHalt:
		c.halted = true
		return nil

	// Functions.
	case OpBeginFunction:
		return vm.execBeginFunction(c, in)
	case OpParam:
		// Parameters are consumed during registration; reaching one in
		// straight-line execution means a malformed stream.
		return typeErrorf("PARAM outside a function header")
	case OpEndFunction, OpReturn:
		return vm.execReturn(c)
	case OpCall:
		return vm.execCall(c, in)

	// Composites.
	case OpCreateList, OpListAppend, OpCreateDict, OpDictSet,
		OpGetIndex, OpSetIndex, OpCreateRange:
		return vm.execComposite(c, in)

	// Iteration.
	case OpGetIterator, OpIterHasNext, OpIterNext, OpIterNextKeyValue:
		return vm.execIteration(c, in)

	// Classes and objects.
	case OpBeginClass:
		return vm.execBeginClass(c, in)
	case OpSetSuperclass, OpDeclareField, OpDeclareMethod, OpEndClass:
		// Scanned by BEGIN_CLASS; reaching one directly is malformed.
		return typeErrorf("%s outside a class body", in.Op)
	case OpLoadThis:
		return vm.execLoadThis(c)
	case OpGetProperty, OpSetProperty:
		return vm.execProperty(c, in)

	// Concurrency.
	case OpBeginParallel:
		return vm.execParallel(c, in, int(in.IntVal))
	case OpBeginConcurrent:
		return vm.execParallel(c, in, vm.poolWorkers)
	case OpTask:
		// Tasks are collected by BEGIN_PARALLEL; straight-line TASK is
		// malformed.
		return typeErrorf("TASK outside a parallel block")
	case OpEndTask:
		c.halted = true
		return nil

	// Reserved opcodes for unported features.
	case OpBeginTry, OpEndTry, OpBeginHandler, OpEndHandler, OpThrow:
		return &NotImplementedError{Feature: "exception handling (" + in.Op.String() + ")"}
	case OpMatchPattern:
		return &NotImplementedError{Feature: "pattern matching"}
	case OpCreateEnum:
		return &NotImplementedError{Feature: "enum declaration"}
	case OpImport:
		return &NotImplementedError{Feature: "module import"}
	}

	return typeErrorf("unknown opcode 0x%02X", uint8(in.Op))
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

// DumpStack renders a context's operand stack top-first, for diagnostics.
func DumpStack(c *ExecutionContext) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "stack (ctx %d, depth %d):", c.id, len(c.stack))
	for i := len(c.stack) - 1; i >= 0; i-- {
		v := c.stack[i]
		fmt.Fprintf(&sb, "\n  [%d] %s = %s", i, v.Type(), v.Format())
	}
	return sb.String()
}
