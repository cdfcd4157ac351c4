package vm

import "sync"

// ---------------------------------------------------------------------------
// Function and class registries
// ---------------------------------------------------------------------------

// Param is one declared parameter of a registered function. Optional
// parameters carry a default that is filled in when the caller omits them;
// only a trailing run of parameters may be optional.
type Param struct {
	Name     string
	Optional bool
	Default  *Value
}

// FunctionImpl is a registered bytecode function: its parameter list and the
// address range of its body. Owner is set for methods and names the class
// that declared them.
type FunctionImpl struct {
	Name          string
	Params        []Param
	StartAddr     int
	EndAddr       int
	Owner         string
	IsConstructor bool
}

// RequiredParams returns the number of non-optional parameters.
func (f *FunctionImpl) RequiredParams() int {
	n := 0
	for _, p := range f.Params {
		if !p.Optional {
			n++
		}
	}
	return n
}

// NativeFunc is a host function callable from bytecode. Arguments arrive in
// call order; a nil result reads as the nil value to the caller.
type NativeFunc func(r *Region, args []*Value) (*Value, error)

// Registry holds everything name resolution can reach from a CALL: native
// functions, registered bytecode functions, and class definitions. All maps
// are guarded by one mutex so concurrent contexts can register and resolve
// safely.
type Registry struct {
	mu        sync.RWMutex
	natives   map[string]NativeFunc
	functions map[string]*FunctionImpl
	classes   map[string]*ClassDefinition
	userFuncs map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		natives:   make(map[string]NativeFunc),
		functions: make(map[string]*FunctionImpl),
		classes:   make(map[string]*ClassDefinition),
		userFuncs: make(map[string]int),
	}
}

// RegisterNative binds a host function under a name, replacing any previous
// binding.
func (g *Registry) RegisterNative(name string, fn NativeFunc) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.natives[name] = fn
}

// Native resolves a native function by name.
func (g *Registry) Native(name string) (NativeFunc, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	fn, ok := g.natives[name]
	return fn, ok
}

// RegisterFunction records a bytecode function. Re-registering a name
// replaces the earlier definition.
func (g *Registry) RegisterFunction(f *FunctionImpl) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.functions[f.Name] = f
}

// Function resolves a bytecode function by name.
func (g *Registry) Function(name string) (*FunctionImpl, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	f, ok := g.functions[name]
	return f, ok
}

// RegisterClass records a class definition.
func (g *Registry) RegisterClass(c *ClassDefinition) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.classes[c.Name] = c
}

// Class resolves a class by name.
func (g *Registry) Class(name string) (*ClassDefinition, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.classes[name]
	return c, ok
}

// RegisterUserFunction records a bare jump-target function: the caller's
// arguments stay on the stack and the body binds them itself. Kept for
// streams produced by older code generators; new streams use
// BEGIN_FUNCTION/PARAM headers instead.
func (g *Registry) RegisterUserFunction(name string, addr int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.userFuncs[name] = addr
}

// UserFunction resolves a bare jump-target function by name.
func (g *Registry) UserFunction(name string) (int, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	addr, ok := g.userFuncs[name]
	return addr, ok
}

// FunctionNames returns the registered bytecode function names, unsorted.
func (g *Registry) FunctionNames() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	names := make([]string, 0, len(g.functions))
	for n := range g.functions {
		names = append(names, n)
	}
	return names
}
