package vm

import (
	"math"
	"strconv"
)

// ---------------------------------------------------------------------------
// Numeric widening matrix
// ---------------------------------------------------------------------------

// wideningTargets lists, for each numeric kind, the kinds it may widen to
// without loss. Widening never narrows silently: Int64 reaches only Int64
// and Float64, while Int8 reaches every signed integer and both floats.
var wideningTargets = map[Kind][]Kind{
	KindInt8:    {KindInt8, KindInt16, KindInt32, KindInt64, KindFloat32, KindFloat64},
	KindInt16:   {KindInt16, KindInt32, KindInt64, KindFloat32, KindFloat64},
	KindInt32:   {KindInt32, KindInt64, KindFloat64},
	KindInt64:   {KindInt64, KindFloat64},
	KindUInt8:   {KindUInt8, KindUInt16, KindUInt32, KindUInt64, KindInt16, KindInt32, KindInt64, KindFloat32, KindFloat64},
	KindUInt16:  {KindUInt16, KindUInt32, KindUInt64, KindInt32, KindInt64, KindFloat32, KindFloat64},
	KindUInt32:  {KindUInt32, KindUInt64, KindInt64, KindFloat64},
	KindUInt64:  {KindUInt64, KindFloat64},
	KindFloat32: {KindFloat32, KindFloat64},
	KindFloat64: {KindFloat64},
}

func canWiden(from, to Kind) bool {
	for _, k := range wideningTargets[from] {
		if k == to {
			return true
		}
	}
	return false
}

// Integer bounds per kind.
var intMin = map[Kind]int64{
	KindInt8:  math.MinInt8,
	KindInt16: math.MinInt16,
	KindInt32: math.MinInt32,
	KindInt64: math.MinInt64,
}

var intMax = map[Kind]int64{
	KindInt8:  math.MaxInt8,
	KindInt16: math.MaxInt16,
	KindInt32: math.MaxInt32,
	KindInt64: math.MaxInt64,
}

var uintMax = map[Kind]uint64{
	KindUInt8:  math.MaxUint8,
	KindUInt16: math.MaxUint16,
	KindUInt32: math.MaxUint32,
	KindUInt64: math.MaxUint64,
}

// ---------------------------------------------------------------------------
// CanConvert
// ---------------------------------------------------------------------------

// CanConvert reports whether a value of type from may be converted to type
// to. The relation is reflexive, "to Any" always holds, numeric pairs follow
// the widening matrix, List and Dict recurse structurally, and a Union
// source converts if any member converts.
func CanConvert(from, to *Type) bool {
	if from == nil || to == nil {
		return false
	}
	if to.Kind == KindAny {
		return true
	}
	if from.Kind == KindUnion {
		for _, m := range from.Variants {
			if CanConvert(m, to) {
				return true
			}
		}
		return false
	}
	if from.Kind.IsNumeric() && to.Kind.IsNumeric() {
		return canWiden(from.Kind, to.Kind)
	}
	if from.Kind != to.Kind {
		return false
	}
	switch from.Kind {
	case KindList:
		if from.Elem == nil || to.Elem == nil {
			return true
		}
		return CanConvert(from.Elem, to.Elem)
	case KindDict:
		if from.Key != nil && to.Key != nil && !CanConvert(from.Key, to.Key) {
			return false
		}
		if from.Val != nil && to.Val != nil && !CanConvert(from.Val, to.Val) {
			return false
		}
		return true
	}
	return from.Equals(to)
}

// ---------------------------------------------------------------------------
// Checked numeric casts
// ---------------------------------------------------------------------------

// numeric is a width-erased view of a numeric payload. Exactly one of the
// representation fields is authoritative, selected by kind.
type numeric struct {
	kind Kind
	i    int64
	u    uint64
	f    float64
}

func (n numeric) text() string {
	switch {
	case n.kind.IsFloat():
		return strconv.FormatFloat(n.f, 'g', -1, 64)
	case n.kind.IsSigned():
		return strconv.FormatInt(n.i, 10)
	default:
		return strconv.FormatUint(n.u, 10)
	}
}

func overflow(n numeric, to Kind) error {
	return &OverflowError{From: n.kind.String(), To: to.String(), Text: n.text()}
}

// castNumeric converts n to the target kind, rejecting any cast whose result
// would not represent the source value exactly. Signedness-aware: a cast
// that changes sign or truncates magnitude fails rather than wrapping.
func castNumeric(n numeric, to Kind) (numeric, error) {
	out := numeric{kind: to}
	switch {
	case to.IsSigned():
		var v int64
		switch {
		case n.kind.IsSigned():
			v = n.i
		case n.kind.IsInteger():
			if n.u > math.MaxInt64 {
				return out, overflow(n, to)
			}
			v = int64(n.u)
		default:
			if math.Trunc(n.f) != n.f || n.f < float64(math.MinInt64) || n.f >= float64(math.MaxInt64) {
				return out, overflow(n, to)
			}
			v = int64(n.f)
		}
		if v < intMin[to] || v > intMax[to] {
			return out, overflow(n, to)
		}
		out.i = v
		return out, nil

	case to.IsInteger(): // unsigned targets
		var v uint64
		switch {
		case n.kind.IsSigned():
			if n.i < 0 {
				return out, overflow(n, to)
			}
			v = uint64(n.i)
		case n.kind.IsInteger():
			v = n.u
		default:
			if math.Trunc(n.f) != n.f || n.f < 0 || n.f >= float64(math.MaxUint64) {
				return out, overflow(n, to)
			}
			v = uint64(n.f)
		}
		if v > uintMax[to] {
			return out, overflow(n, to)
		}
		out.u = v
		return out, nil

	default: // float targets
		var f float64
		switch {
		case n.kind.IsSigned():
			f = float64(n.i)
			if int64(f) != n.i {
				return out, overflow(n, to)
			}
		case n.kind.IsInteger():
			f = float64(n.u)
			if uint64(f) != n.u {
				return out, overflow(n, to)
			}
		default:
			f = n.f
		}
		if to == KindFloat32 {
			if !math.IsInf(f, 0) && float64(float32(f)) != f {
				return out, overflow(n, to)
			}
		}
		out.f = f
		return out, nil
	}
}

// ---------------------------------------------------------------------------
// Convert
// ---------------------------------------------------------------------------

// Convert coerces v to the target type, allocating any fresh value in r.
// Numeric coercions are overflow-checked; string/numeric conversions use
// locale-free parsing and formatting.
func (r *Region) Convert(v *Value, target *Type) (*Value, error) {
	if v == nil || target == nil {
		return nil, typeErrorf("convert: nil value or type")
	}
	if target.Kind == KindAny || v.typ.Equals(target) {
		return v, nil
	}

	vk := v.typ.Kind
	switch {
	case vk.IsNumeric() && target.Kind.IsNumeric():
		out, err := castNumeric(v.numeric(), target.Kind)
		if err != nil {
			return nil, err
		}
		return r.fromNumeric(out), nil

	case vk == KindString && target.Kind.IsNumeric():
		return r.parseNumeric(v.s, target.Kind)

	case vk.IsNumeric() && target.Kind == KindString:
		return r.String(v.numeric().text()), nil

	case vk == KindBool && target.Kind == KindBool:
		return v, nil

	case vk == KindList && target.Kind == KindList:
		if CanConvert(v.typ, target) {
			return v, nil
		}
		return nil, typeErrorf("cannot convert %s to %s", v.typ, target)

	case vk == KindDict && target.Kind == KindDict:
		if CanConvert(v.typ, target) {
			return v, nil
		}
		return nil, typeErrorf("cannot convert %s to %s", v.typ, target)
	}

	return nil, typeErrorf("cannot convert %s to %s", v.typ, target)
}

// parseNumeric parses locale-free text into a numeric value of the given
// kind. Malformed text is a TypeError, out-of-range text an OverflowError.
func (r *Region) parseNumeric(s string, to Kind) (*Value, error) {
	switch {
	case to.IsSigned():
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return nil, &OverflowError{From: "String", To: to.String(), Text: s}
			}
			return nil, typeErrorf("cannot parse %q as %s", s, to)
		}
		out, err := castNumeric(numeric{kind: KindInt64, i: n}, to)
		if err != nil {
			return nil, err
		}
		return r.fromNumeric(out), nil
	case to.IsInteger():
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
				return nil, &OverflowError{From: "String", To: to.String(), Text: s}
			}
			return nil, typeErrorf("cannot parse %q as %s", s, to)
		}
		out, err := castNumeric(numeric{kind: KindUInt64, u: n}, to)
		if err != nil {
			return nil, err
		}
		return r.fromNumeric(out), nil
	default:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, typeErrorf("cannot parse %q as %s", s, to)
		}
		out, err := castNumeric(numeric{kind: KindFloat64, f: f}, to)
		if err != nil {
			return nil, err
		}
		return r.fromNumeric(out), nil
	}
}

// ---------------------------------------------------------------------------
// CommonType
// ---------------------------------------------------------------------------

// CommonType computes the unified type for a mixed-type binary operation.
// Any and Nil unify with anything, matching tags unify to themselves, two
// numerics unify to the higher rank, and otherwise one-directional
// convertibility decides. Neither direction converting is a TypeError.
func CommonType(a, b *Type) (*Type, error) {
	if a == nil || b == nil {
		return nil, typeErrorf("common type of nil descriptor")
	}
	if a.Kind == KindAny || a.Kind == KindNil {
		return b, nil
	}
	if b.Kind == KindAny || b.Kind == KindNil {
		return a, nil
	}
	if a.Equals(b) {
		return a, nil
	}
	if a.Kind.IsNumeric() && b.Kind.IsNumeric() {
		// Kinds are declared in rank order: Int8 < UInt8 < Int16 < UInt16
		// < Int32 < UInt32 < Int64 < UInt64 < Float32 < Float64.
		if a.Kind > b.Kind {
			return a, nil
		}
		return b, nil
	}
	if CanConvert(a, b) {
		return b, nil
	}
	if CanConvert(b, a) {
		return a, nil
	}
	return nil, typeErrorf("no common type for %s and %s", a, b)
}
