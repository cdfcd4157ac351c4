package vm

import "sync"

// ---------------------------------------------------------------------------
// Environment: chained lexical scope
// ---------------------------------------------------------------------------

// Environment maps variable names to value references, with an optional
// link to an enclosing scope. Created on block/function entry and released
// on exit; lookups and assignments walk outward through enclosing links.
//
// Every node guards its bindings with a lock: the global scope is shared by
// every execution context a parallel block spawns, so concurrent STORE_VAR
// and LOAD_VAR on it must not race. Parent links are immutable while a scope
// is reachable and need no guard.
type Environment struct {
	mu     sync.RWMutex
	vars   map[string]*Value
	parent *Environment
}

// NewEnvironment creates a scope enclosed by parent (which may be nil for
// the global scope).
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{vars: make(map[string]*Value), parent: parent}
}

// Parent returns the enclosing scope, or nil.
func (e *Environment) Parent() *Environment { return e.parent }

// Define binds name in this scope, retaining the value. An existing binding
// of the same name in this scope is released and replaced.
func (e *Environment) Define(name string, v *Value) {
	e.mu.Lock()
	if old, ok := e.vars[name]; ok {
		old.Release()
	}
	e.vars[name] = v.Retain()
	e.mu.Unlock()
}

// Lookup resolves name, walking outward through enclosing scopes. An
// unresolved name is a fatal LookupError.
func (e *Environment) Lookup(name string) (*Value, error) {
	for s := e; s != nil; s = s.parent {
		s.mu.RLock()
		v, ok := s.vars[name]
		s.mu.RUnlock()
		if ok {
			return v, nil
		}
	}
	return nil, &LookupError{What: "variable", Name: name}
}

// Assign rebinds an existing name, walking outward to find the declaring
// scope. Assignment to an undeclared name is a fatal LookupError.
func (e *Environment) Assign(name string, v *Value) error {
	for s := e; s != nil; s = s.parent {
		s.mu.Lock()
		if old, ok := s.vars[name]; ok {
			old.Release()
			s.vars[name] = v.Retain()
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
	return &LookupError{What: "variable", Name: name}
}

// Has reports whether name resolves anywhere in the chain.
func (e *Environment) Has(name string) bool {
	_, err := e.Lookup(name)
	return err == nil
}

// Release drops every binding in this scope and severs the chain link.
// Enclosing scopes are not affected.
func (e *Environment) Release() {
	e.mu.Lock()
	for name, v := range e.vars {
		v.Release()
		delete(e.vars, name)
	}
	e.parent = nil
	e.mu.Unlock()
}
