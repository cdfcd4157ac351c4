package vm

// ---------------------------------------------------------------------------
// ObjectInstance: live instance of a class
// ---------------------------------------------------------------------------

// ObjectInstance pairs a class reference with a field map covering both
// statically declared fields (initialized to nil at construction, inherited
// ones included) and dynamically added fields. Class is nil for detached
// records built directly from a record type descriptor.
type ObjectInstance struct {
	Class  *ClassDefinition
	fields map[string]*Value
}

// GetField returns a field value. A declared-but-unset field reads as nil;
// a name that is neither a dynamic field nor declared anywhere in the class
// chain is a LookupError.
func (o *ObjectInstance) GetField(name string) (*Value, error) {
	if v, ok := o.fields[name]; ok {
		return v, nil
	}
	if o.Class != nil {
		if _, ok := o.Class.ResolveField(name); ok {
			// Declared through the chain but never initialized on this
			// instance; treat as unset.
			return nil, nil
		}
	}
	return nil, &LookupError{What: "field", Name: name}
}

// SetField stores a field value. Unknown names become new dynamic fields
// (the permissive policy), so this never fails. The previous value, if any,
// is released.
func (o *ObjectInstance) SetField(name string, v *Value) {
	if old, ok := o.fields[name]; ok {
		old.Release()
	}
	o.fields[name] = v.Retain()
}

// HasField reports whether the name is a set field or declared through the
// class chain.
func (o *ObjectInstance) HasField(name string) bool {
	if _, ok := o.fields[name]; ok {
		return true
	}
	if o.Class != nil {
		_, ok := o.Class.ResolveField(name)
		return ok
	}
	return false
}

// FieldNames returns the names of all fields currently set on the instance.
func (o *ObjectInstance) FieldNames() []string {
	names := make([]string, 0, len(o.fields))
	for n := range o.fields {
		names = append(names, n)
	}
	return names
}

// IsInstanceOf reports whether the instance's class or any ancestor has the
// given name. Every instance is an instance of its own class.
func (o *ObjectInstance) IsInstanceOf(name string) bool {
	for cur := o.Class; cur != nil; cur = cur.Super {
		if cur.Name == name {
			return true
		}
	}
	return false
}
