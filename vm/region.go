package vm

import "sync"

// ---------------------------------------------------------------------------
// Region: batch memory owner for values
// ---------------------------------------------------------------------------

// Region owns the values created during one execution. Allocation is the
// sole construction entry point the engine uses and never returns a nil
// handle; individual values are reference-counted, but actual reclamation
// is a bulk operation when the region is dropped. Cyclic composite values
// (a list containing itself) are therefore permitted and simply live until
// the region goes away. Their lifetime is bounded by the region's.
//
// The region is internally synchronized so multiple execution contexts may
// allocate from it concurrently.
type Region struct {
	mu      sync.Mutex
	values  []*Value
	dropped bool
}

// NewRegion creates an empty region.
func NewRegion() *Region {
	return &Region{}
}

// adopt registers a freshly built value with the region and hands out the
// first reference.
func (r *Region) adopt(v *Value) *Value {
	v.refs.Store(1)
	r.mu.Lock()
	if r.dropped {
		r.mu.Unlock()
		panic("Region: allocation after Drop")
	}
	r.values = append(r.values, v)
	r.mu.Unlock()
	return v
}

// Count returns the number of values the region owns.
func (r *Region) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Drop releases every value the region owns. The region cannot be used
// afterwards.
func (r *Region) Drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, v := range r.values {
		v.refs.Store(0)
	}
	r.values = nil
	r.dropped = true
}

// ---------------------------------------------------------------------------
// Typed constructors
// ---------------------------------------------------------------------------

// Nil allocates the nil value.
func (r *Region) Nil() *Value {
	return r.adopt(&Value{typ: NilType})
}

// Bool allocates a boolean value.
func (r *Region) Bool(b bool) *Value {
	return r.adopt(&Value{typ: BoolType, b: b})
}

// Int64 allocates an Int64 value.
func (r *Region) Int64(n int64) *Value {
	return r.adopt(&Value{typ: Int64Type, i: n})
}

// Int allocates a signed integer of the given kind without range checking;
// callers go through castNumeric when the source may not fit.
func (r *Region) Int(k Kind, n int64) *Value {
	if !k.IsSigned() {
		panic("Region.Int: not a signed kind")
	}
	return r.adopt(&Value{typ: TypeForKind(k), i: n})
}

// Uint allocates an unsigned integer of the given kind.
func (r *Region) Uint(k Kind, n uint64) *Value {
	if !k.IsInteger() || k.IsSigned() {
		panic("Region.Uint: not an unsigned kind")
	}
	return r.adopt(&Value{typ: TypeForKind(k), u: n})
}

// Float64 allocates a Float64 value.
func (r *Region) Float64(f float64) *Value {
	return r.adopt(&Value{typ: Float64Type, f: f})
}

// Float32 allocates a Float32 value.
func (r *Region) Float32(f float32) *Value {
	return r.adopt(&Value{typ: Float32Type, f: float64(f)})
}

// String allocates a string value.
func (r *Region) String(s string) *Value {
	return r.adopt(&Value{typ: StringType, s: s})
}

// NewList allocates a list value with the given element type and elements.
// The elements are retained.
func (r *Region) NewList(elem *Type, elems ...*Value) *Value {
	if elem == nil {
		elem = AnyType
	}
	list := make([]*Value, len(elems))
	for i, e := range elems {
		list[i] = e.Retain()
	}
	return r.adopt(&Value{typ: ListOf(elem), list: list})
}

// NewDictValue allocates an empty dictionary value.
func (r *Region) NewDictValue(key, val *Type) *Value {
	if key == nil {
		key = AnyType
	}
	if val == nil {
		val = AnyType
	}
	return r.adopt(&Value{typ: DictOf(key, val), dict: NewDict()})
}

// NewIterator allocates an iterator over a list or dictionary value.
// The backing value is retained for the iterator's lifetime.
func (r *Region) NewIterator(backing *Value) (*Value, error) {
	switch backing.typ.Kind {
	case KindList:
		return r.adopt(&Value{typ: IteratorOf(backing.typ.Elem), iter: &Iterator{backing: backing.Retain()}}), nil
	case KindDict:
		return r.adopt(&Value{typ: IteratorOf(backing.typ.Val), iter: &Iterator{backing: backing.Retain()}}), nil
	}
	return nil, typeErrorf("%s is not iterable", backing.typ)
}

// NewSum allocates a sum-variant value wrapping inner as the given variant.
func (r *Region) NewSum(sumType *Type, variant *Type, inner *Value) *Value {
	return r.adopt(&Value{typ: sumType, sum: &SumValue{Variant: variant, Inner: inner.Retain()}})
}

// NewEnum allocates an enum-variant value.
func (r *Region) NewEnum(enumType *Type, variant string, ordinal int) *Value {
	return r.adopt(&Value{typ: enumType, enum: &EnumValue{Enum: enumType.Name, Variant: variant, Ordinal: ordinal}})
}

// newObjectValue allocates a value wrapping an instance. Used by
// ClassDefinition.CreateInstance.
func (r *Region) newObjectValue(t *Type, obj *ObjectInstance) *Value {
	return r.adopt(&Value{typ: t, obj: obj})
}

// fromNumeric allocates a value from a width-erased numeric payload.
func (r *Region) fromNumeric(n numeric) *Value {
	switch {
	case n.kind.IsSigned():
		return r.Int(n.kind, n.i)
	case n.kind.IsInteger():
		return r.Uint(n.kind, n.u)
	default:
		return r.adopt(&Value{typ: TypeForKind(n.kind), f: n.f})
	}
}

// ---------------------------------------------------------------------------
// NewValue: zero value for a concrete type tag
// ---------------------------------------------------------------------------

// NewValue returns a fresh zero/empty value for any concrete type tag. It
// fails for the Function tag (functions are not first-class payloads) and
// for malformed sum/union/enum descriptors with no variants.
func (r *Region) NewValue(t *Type) (*Value, error) {
	if t == nil {
		return nil, typeErrorf("NewValue: nil type")
	}
	switch k := t.Kind; {
	case k == KindNil, k == KindAny:
		return r.Nil(), nil
	case k == KindBool:
		return r.Bool(false), nil
	case k.IsSigned():
		return r.Int(k, 0), nil
	case k.IsInteger():
		return r.Uint(k, 0), nil
	case k.IsFloat():
		return r.fromNumeric(numeric{kind: k}), nil
	case k == KindString:
		return r.String(""), nil
	case k == KindList:
		return r.NewList(t.Elem), nil
	case k == KindDict:
		return r.NewDictValue(t.Key, t.Val), nil
	case k == KindSum, k == KindUnion:
		if len(t.Variants) == 0 {
			return nil, typeErrorf("cannot create value for %s with no variants", t)
		}
		inner, err := r.NewValue(t.Variants[0])
		if err != nil {
			return nil, err
		}
		return r.NewSum(t, t.Variants[0], inner), nil
	case k == KindEnum:
		if len(t.EnumVariants) == 0 {
			return nil, typeErrorf("cannot create value for enum %s with no variants", t.Name)
		}
		return r.NewEnum(t, t.EnumVariants[0], 0), nil
	case k == KindObject:
		obj := &ObjectInstance{fields: make(map[string]*Value)}
		for _, f := range t.Fields {
			obj.fields[f.Name] = r.Nil()
		}
		return r.newObjectValue(t, obj), nil
	case k == KindIterator:
		empty := r.NewList(t.Elem)
		return r.adopt(&Value{typ: t, iter: &Iterator{backing: empty}}), nil
	case k == KindFunction:
		return nil, typeErrorf("cannot create a value for the Function tag")
	}
	return nil, typeErrorf("cannot create value for %s", t)
}
