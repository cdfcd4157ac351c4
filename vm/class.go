package vm

// ---------------------------------------------------------------------------
// ClassDefinition: static class metadata
// ---------------------------------------------------------------------------

// Visibility of a field or method.
type Visibility uint8

const (
	Public Visibility = iota
	Protected
	Private
)

// FieldDefinition is one declared field: name, declared type, optional
// default, and visibility.
type FieldDefinition struct {
	Name       string
	Type       *Type
	Default    *Value
	Visibility Visibility
}

// MethodDefinition binds a method name to its implementation.
type MethodDefinition struct {
	Name       string
	Impl       *FunctionImpl
	Visibility Visibility
	Virtual    bool
	Abstract   bool
}

// ClassDefinition holds a class's name, ordered field and method lists,
// optional single superclass, and claimed interface names. The name→index
// maps stay in sync with the backing lists; both are append-only after
// construction.
type ClassDefinition struct {
	Name       string
	Super      *ClassDefinition
	Interfaces []string

	fields      []*FieldDefinition
	fieldIndex  map[string]int
	methods     []*MethodDefinition
	methodIndex map[string]int

	valueType *Type
}

// NewClassDefinition creates a class with an optional superclass.
func NewClassDefinition(name string, super *ClassDefinition) *ClassDefinition {
	c := &ClassDefinition{
		Name:        name,
		Super:       super,
		fieldIndex:  make(map[string]int),
		methodIndex: make(map[string]int),
	}
	c.valueType = ObjectTypeOf(name)
	return c
}

// ValueType returns the object type descriptor for instances of this class.
func (c *ClassDefinition) ValueType() *Type { return c.valueType }

// AddField appends a field declaration. Redeclaring a name replaces the
// entry but keeps its position, preserving the list/index invariant.
func (c *ClassDefinition) AddField(f *FieldDefinition) {
	if i, ok := c.fieldIndex[f.Name]; ok {
		c.fields[i] = f
		return
	}
	c.fieldIndex[f.Name] = len(c.fields)
	c.fields = append(c.fields, f)
}

// AddMethod appends a method declaration, replacing an existing entry of
// the same name in place.
func (c *ClassDefinition) AddMethod(m *MethodDefinition) {
	if i, ok := c.methodIndex[m.Name]; ok {
		c.methods[i] = m
		return
	}
	c.methodIndex[m.Name] = len(c.methods)
	c.methods = append(c.methods, m)
}

// Fields returns the ordered field list declared on this class only.
func (c *ClassDefinition) Fields() []*FieldDefinition { return c.fields }

// Methods returns the ordered method list declared on this class only.
func (c *ClassDefinition) Methods() []*MethodDefinition { return c.methods }

// ResolveMethod looks up a method by name, checking this class first and
// then walking superclass links. Returns false rather than erroring when
// the chain is exhausted; callers decide whether that is fatal.
func (c *ClassDefinition) ResolveMethod(name string) (*MethodDefinition, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		if i, ok := cur.methodIndex[name]; ok {
			return cur.methods[i], true
		}
	}
	return nil, false
}

// ResolveField looks up a field declaration through the inheritance chain.
func (c *ClassDefinition) ResolveField(name string) (*FieldDefinition, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		if i, ok := cur.fieldIndex[name]; ok {
			return cur.fields[i], true
		}
	}
	return nil, false
}

// AllFieldNames returns every declared field name, inherited fields first.
func (c *ClassDefinition) AllFieldNames() []string {
	var names []string
	if c.Super != nil {
		names = c.Super.AllFieldNames()
	}
	for _, f := range c.fields {
		names = append(names, f.Name)
	}
	return names
}

// IsSubclassOf reports whether the named class is a strict ancestor. A
// class is never a subclass of itself.
func (c *ClassDefinition) IsSubclassOf(name string) bool {
	for cur := c.Super; cur != nil; cur = cur.Super {
		if cur.Name == name {
			return true
		}
	}
	return false
}

// ClaimsInterface reports whether this class or an ancestor claims the
// named interface.
func (c *ClassDefinition) ClaimsInterface(name string) bool {
	for cur := c; cur != nil; cur = cur.Super {
		for _, in := range cur.Interfaces {
			if in == name {
				return true
			}
		}
	}
	return false
}

// Constructor returns the constructor implementation for this class, if one
// was declared anywhere in the chain.
func (c *ClassDefinition) Constructor() (*FunctionImpl, bool) {
	for cur := c; cur != nil; cur = cur.Super {
		for _, m := range cur.methods {
			if m.Impl != nil && m.Impl.IsConstructor {
				return m.Impl, true
			}
		}
	}
	return nil, false
}

// CreateInstance allocates a new instance with every declared field,
// including inherited ones, initialized to nil.
func (c *ClassDefinition) CreateInstance(r *Region) *Value {
	obj := &ObjectInstance{Class: c, fields: make(map[string]*Value)}
	for _, name := range c.AllFieldNames() {
		obj.fields[name] = r.Nil()
	}
	return r.newObjectValue(c.valueType, obj)
}
