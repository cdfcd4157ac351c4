package vm

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// ---------------------------------------------------------------------------
// Value: tagged runtime datum
// ---------------------------------------------------------------------------

// Value is a runtime datum: a type descriptor plus a tagged payload. The
// payload variant stored always matches the descriptor's tag. Values are
// reference-counted handles allocated from a Region; the payload is
// immutable once constructed except for the composite backing stores
// (list/dict cells, object fields), which the mutation opcodes edit in
// place.
type Value struct {
	typ  *Type
	refs atomic.Int32

	// Payload. Exactly one group is active, selected by typ.Kind:
	// signed integers use i, unsigned use u, floats use f.
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	list []*Value
	dict *Dict
	sum  *SumValue
	enum *EnumValue
	obj  *ObjectInstance
	iter *Iterator
}

// SumValue is a sum-variant payload: the chosen variant type plus the
// wrapped value.
type SumValue struct {
	Variant *Type
	Inner   *Value
}

// EnumValue is an enum-variant payload.
type EnumValue struct {
	Enum    string
	Variant string
	Ordinal int
}

// Type returns the value's type descriptor.
func (v *Value) Type() *Type { return v.typ }

// Kind returns the value's type tag.
func (v *Value) Kind() Kind { return v.typ.Kind }

// Retain increments the reference count and returns v.
func (v *Value) Retain() *Value {
	v.refs.Add(1)
	return v
}

// Release decrements the reference count. The payload stays resident until
// the owning region is dropped; the count only tracks liveness.
func (v *Value) Release() {
	if v.refs.Add(-1) < 0 {
		panic("Value.Release: refcount underflow")
	}
}

// RefCount returns the current reference count.
func (v *Value) RefCount() int32 { return v.refs.Load() }

// ---------------------------------------------------------------------------
// Payload accessors
// ---------------------------------------------------------------------------

// IsNil returns true for the nil value.
func (v *Value) IsNil() bool { return v.typ.Kind == KindNil }

// Bool returns the boolean payload. Panics on a non-bool value.
func (v *Value) Bool() bool {
	if v.typ.Kind != KindBool {
		panic("Value.Bool: not a boolean")
	}
	return v.b
}

// Int returns a signed integer payload widened to int64.
// Panics on non-signed-integer values.
func (v *Value) Int() int64 {
	if !v.typ.Kind.IsSigned() {
		panic("Value.Int: not a signed integer")
	}
	return v.i
}

// Uint returns an unsigned integer payload widened to uint64.
func (v *Value) Uint() uint64 {
	k := v.typ.Kind
	if !k.IsInteger() || k.IsSigned() {
		panic("Value.Uint: not an unsigned integer")
	}
	return v.u
}

// Float returns a floating-point payload widened to float64.
func (v *Value) Float() float64 {
	if !v.typ.Kind.IsFloat() {
		panic("Value.Float: not a float")
	}
	return v.f
}

// Str returns the string payload.
func (v *Value) Str() string {
	if v.typ.Kind != KindString {
		panic("Value.Str: not a string")
	}
	return v.s
}

// List returns the list payload.
func (v *Value) List() []*Value {
	if v.typ.Kind != KindList {
		panic("Value.List: not a list")
	}
	return v.list
}

// DictValue returns the dictionary payload.
func (v *Value) DictValue() *Dict {
	if v.typ.Kind != KindDict {
		panic("Value.DictValue: not a dictionary")
	}
	return v.dict
}

// Object returns the object payload.
func (v *Value) Object() *ObjectInstance {
	if v.typ.Kind != KindObject {
		panic("Value.Object: not an object")
	}
	return v.obj
}

// IteratorValue returns the iterator payload.
func (v *Value) IteratorValue() *Iterator {
	if v.typ.Kind != KindIterator {
		panic("Value.IteratorValue: not an iterator")
	}
	return v.iter
}

// numeric returns the width-erased numeric view of the payload.
func (v *Value) numeric() numeric {
	k := v.typ.Kind
	n := numeric{kind: k}
	switch {
	case k.IsSigned():
		n.i = v.i
	case k.IsInteger():
		n.u = v.u
	case k.IsFloat():
		n.f = v.f
	default:
		panic("Value.numeric: not numeric")
	}
	return n
}

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

// IsTruthy applies the language truthiness rule: booleans use their value,
// numbers are falsy only at zero, strings are falsy only when empty, nil is
// always falsy, everything else is truthy.
func (v *Value) IsTruthy() bool {
	switch k := v.typ.Kind; {
	case k == KindNil:
		return false
	case k == KindBool:
		return v.b
	case k.IsSigned():
		return v.i != 0
	case k.IsInteger():
		return v.u != 0
	case k.IsFloat():
		return v.f != 0
	case k == KindString:
		return v.s != ""
	}
	return true
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

// Format renders the value for string coercion, printing, and diagnostics.
func (v *Value) Format() string {
	switch k := v.typ.Kind; {
	case k == KindNil:
		return "nil"
	case k == KindBool:
		return strconv.FormatBool(v.b)
	case k.IsSigned():
		return strconv.FormatInt(v.i, 10)
	case k.IsInteger():
		return strconv.FormatUint(v.u, 10)
	case k.IsFloat():
		return strconv.FormatFloat(v.f, 'g', -1, 64)
	case k == KindString:
		return v.s
	case k == KindList:
		var sb strings.Builder
		sb.WriteByte('[')
		for i, e := range v.list {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.Format())
		}
		sb.WriteByte(']')
		return sb.String()
	case k == KindDict:
		var sb strings.Builder
		sb.WriteByte('{')
		for i, key := range v.dict.keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(key.Format())
			sb.WriteString(": ")
			sb.WriteString(v.dict.vals[i].Format())
		}
		sb.WriteByte('}')
		return sb.String()
	case k == KindSum:
		return v.sum.Inner.Format()
	case k == KindEnum:
		return v.enum.Enum + "." + v.enum.Variant
	case k == KindObject:
		if v.obj != nil && v.obj.Class != nil {
			return v.obj.Class.Name + " instance"
		}
		return "record instance"
	case k == KindIterator:
		return "<iterator>"
	}
	return "<" + v.typ.String() + ">"
}

// ---------------------------------------------------------------------------
// Structural equality
// ---------------------------------------------------------------------------

// valueEquals implements the language's value-equality rules: numerics of
// different widths are widened before comparing, strings and booleans
// compare by content, lists and dictionaries compare element-wise, objects
// compare by identity.
func valueEquals(a, b *Value) bool {
	ak, bk := a.typ.Kind, b.typ.Kind
	if ak.IsNumeric() && bk.IsNumeric() {
		cmp, err := compareNumeric(a.numeric(), b.numeric())
		return err == nil && cmp == 0
	}
	if ak != bk {
		return false
	}
	switch ak {
	case KindNil:
		return true
	case KindBool:
		return a.b == b.b
	case KindString:
		return a.s == b.s
	case KindList:
		if len(a.list) != len(b.list) {
			return false
		}
		for i := range a.list {
			if !valueEquals(a.list[i], b.list[i]) {
				return false
			}
		}
		return true
	case KindDict:
		if a.dict.Len() != b.dict.Len() {
			return false
		}
		for i, key := range a.dict.keys {
			other, ok := b.dict.Get(key)
			if !ok || !valueEquals(a.dict.vals[i], other) {
				return false
			}
		}
		return true
	case KindEnum:
		return a.enum.Enum == b.enum.Enum && a.enum.Variant == b.enum.Variant
	case KindSum:
		return valueEquals(a.sum.Inner, b.sum.Inner)
	case KindObject:
		return a.obj == b.obj
	}
	return a == b
}

// compareNumeric orders two numeric payloads after widening, returning
// -1, 0, or 1. Mixed sign/unsigned and integer/float pairs are compared
// exactly where possible.
func compareNumeric(a, b numeric) (int, error) {
	if a.kind.IsFloat() || b.kind.IsFloat() {
		af, err := castNumeric(a, KindFloat64)
		if err != nil {
			return 0, err
		}
		bf, err := castNumeric(b, KindFloat64)
		if err != nil {
			return 0, err
		}
		switch {
		case af.f < bf.f:
			return -1, nil
		case af.f > bf.f:
			return 1, nil
		}
		return 0, nil
	}

	// Integer pair. Handle the sign corners without widening loss.
	aSigned, bSigned := a.kind.IsSigned(), b.kind.IsSigned()
	switch {
	case aSigned && bSigned:
		switch {
		case a.i < b.i:
			return -1, nil
		case a.i > b.i:
			return 1, nil
		}
		return 0, nil
	case !aSigned && !bSigned:
		switch {
		case a.u < b.u:
			return -1, nil
		case a.u > b.u:
			return 1, nil
		}
		return 0, nil
	case aSigned:
		if a.i < 0 {
			return -1, nil
		}
		return compareNumeric(numeric{kind: KindUInt64, u: uint64(a.i)}, b)
	default:
		if b.i < 0 {
			return 1, nil
		}
		return compareNumeric(a, numeric{kind: KindUInt64, u: uint64(b.i)})
	}
}

// ---------------------------------------------------------------------------
// Dict: ordered dictionary keyed by value equality
// ---------------------------------------------------------------------------

// Dict is the dictionary backing store. Keys compare by value equality, not
// identity; insertion order is preserved. Only scalar keys (nil, bool,
// numerics, strings) are hashable; composite keys are rejected at the
// opcode layer.
type Dict struct {
	keys  []*Value
	vals  []*Value
	index map[string]int
}

// NewDict creates an empty dictionary store.
func NewDict() *Dict {
	return &Dict{index: make(map[string]int)}
}

// dictKey derives the canonical hash string for a key value. Numeric keys
// of different widths that compare equal share a canonical form.
func dictKey(key *Value) (string, error) {
	switch k := key.typ.Kind; {
	case k == KindNil:
		return "n:", nil
	case k == KindBool:
		return "b:" + strconv.FormatBool(key.b), nil
	case k.IsFloat():
		f := key.f
		if f == float64(int64(f)) {
			return "i:" + strconv.FormatInt(int64(f), 10), nil
		}
		return "f:" + strconv.FormatFloat(f, 'g', -1, 64), nil
	case k.IsSigned():
		return "i:" + strconv.FormatInt(key.i, 10), nil
	case k.IsInteger():
		if key.u <= uint64(intMax[KindInt64]) {
			return "i:" + strconv.FormatInt(int64(key.u), 10), nil
		}
		return "u:" + strconv.FormatUint(key.u, 10), nil
	case k == KindString:
		return "s:" + key.s, nil
	case k == KindEnum:
		return "e:" + key.enum.Enum + "." + key.enum.Variant, nil
	}
	return "", typeErrorf("%s is not usable as a dictionary key", key.typ)
}

// Len returns the number of entries.
func (d *Dict) Len() int { return len(d.keys) }

// Get returns the value stored for key, comparing by value equality.
func (d *Dict) Get(key *Value) (*Value, bool) {
	ks, err := dictKey(key)
	if err != nil {
		return nil, false
	}
	i, ok := d.index[ks]
	if !ok {
		return nil, false
	}
	return d.vals[i], true
}

// Set stores val under key, replacing any existing entry. Returns an error
// for unhashable key types. The replaced value is released; the new key and
// value are retained.
func (d *Dict) Set(key, val *Value) error {
	ks, err := dictKey(key)
	if err != nil {
		return err
	}
	if i, ok := d.index[ks]; ok {
		d.vals[i].Release()
		d.vals[i] = val.Retain()
		return nil
	}
	d.index[ks] = len(d.keys)
	d.keys = append(d.keys, key.Retain())
	d.vals = append(d.vals, val.Retain())
	return nil
}

// Keys returns the keys in insertion order.
func (d *Dict) Keys() []*Value { return d.keys }

// ---------------------------------------------------------------------------
// Iterator: cursor over a composite payload
// ---------------------------------------------------------------------------

// Iterator is a cursor into a list or dictionary backing store. It tracks a
// numeric index; callers must gate Next on HasNext, since advancing past
// the end is a fatal error at the opcode layer.
type Iterator struct {
	backing *Value
	index   int
}

// HasNext reports whether another element remains.
func (it *Iterator) HasNext() bool {
	switch it.backing.typ.Kind {
	case KindList:
		return it.index < len(it.backing.list)
	case KindDict:
		return it.index < it.backing.dict.Len()
	}
	return false
}

// Next returns the next element and advances the cursor.
func (it *Iterator) Next() (*Value, error) {
	if !it.HasNext() {
		return nil, &LookupError{What: "iterator element", Name: strconv.Itoa(it.index)}
	}
	switch it.backing.typ.Kind {
	case KindList:
		v := it.backing.list[it.index]
		it.index++
		return v, nil
	default:
		v := it.backing.dict.vals[it.index]
		it.index++
		return v, nil
	}
}

// NextKeyValue returns the next key/value pair and advances the cursor.
// For lists the key is the element index. Both returned references are
// owned by the caller.
func (it *Iterator) NextKeyValue(r *Region) (*Value, *Value, error) {
	if !it.HasNext() {
		return nil, nil, &LookupError{What: "iterator element", Name: strconv.Itoa(it.index)}
	}
	switch it.backing.typ.Kind {
	case KindList:
		k := r.Int64(int64(it.index))
		v := it.backing.list[it.index]
		it.index++
		return k, v.Retain(), nil
	default:
		k := it.backing.dict.keys[it.index]
		v := it.backing.dict.vals[it.index]
		it.index++
		return k.Retain(), v.Retain(), nil
	}
}
