package vm

import "testing"

// ---------------------------------------------------------------------------
// Truthiness
// ---------------------------------------------------------------------------

func TestTruthiness(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	cases := []struct {
		v    *Value
		want bool
	}{
		{r.Nil(), false},
		{r.Bool(false), false},
		{r.Bool(true), true},
		{r.Int64(0), false},
		{r.Int64(-1), true},
		{r.Uint(KindUInt8, 0), false},
		{r.Float64(0), false},
		{r.Float64(0.001), true},
		{r.String(""), false},
		{r.String("x"), true},
		{r.NewList(AnyType), true},
		{r.NewDictValue(nil, nil), true},
	}
	for _, tc := range cases {
		if got := tc.v.IsTruthy(); got != tc.want {
			t.Errorf("IsTruthy(%s %s) = %t, want %t", tc.v.Type(), tc.v.Format(), got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Equality
// ---------------------------------------------------------------------------

func TestValueEqualsAcrossWidths(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	if !valueEquals(r.Int(KindInt8, 3), r.Uint(KindUInt64, 3)) {
		t.Error("Int8 3 != UInt64 3")
	}
	if !valueEquals(r.Int64(3), r.Float64(3)) {
		t.Error("Int64 3 != Float64 3.0")
	}
	if valueEquals(r.Int64(-1), r.Uint(KindUInt64, 1<<63)) {
		t.Error("-1 compared equal to a huge unsigned")
	}
}

func TestValueEqualsComposites(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	a := r.NewList(Int64Type, r.Int64(1), r.Int64(2))
	b := r.NewList(Int64Type, r.Int64(1), r.Int64(2))
	c := r.NewList(Int64Type, r.Int64(1))
	if !valueEquals(a, b) {
		t.Error("equal lists compared unequal")
	}
	if valueEquals(a, c) {
		t.Error("different lengths compared equal")
	}
}

func TestObjectEqualityIsIdentity(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	class := NewClassDefinition("C", nil)
	a := class.CreateInstance(r)
	b := class.CreateInstance(r)
	if valueEquals(a, b) {
		t.Error("distinct instances compared equal")
	}
	if !valueEquals(a, a) {
		t.Error("instance not equal to itself")
	}
}

// ---------------------------------------------------------------------------
// Formatting
// ---------------------------------------------------------------------------

func TestFormatComposites(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	list := r.NewList(AnyType, r.Int64(1), r.String("a"))
	if got := list.Format(); got != "[1, a]" {
		t.Errorf("list Format = %q, want %q", got, "[1, a]")
	}

	d := r.NewDictValue(nil, nil)
	d.DictValue().Set(r.String("k"), r.Int64(1))
	if got := d.Format(); got != "{k: 1}" {
		t.Errorf("dict Format = %q, want %q", got, "{k: 1}")
	}
}

// ---------------------------------------------------------------------------
// Dict ordering and canonical keys
// ---------------------------------------------------------------------------

func TestDictPreservesInsertionOrder(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	d := NewDict()
	d.Set(r.String("b"), r.Int64(1))
	d.Set(r.String("a"), r.Int64(2))
	d.Set(r.String("c"), r.Int64(3))

	keys := d.Keys()
	want := []string{"b", "a", "c"}
	for i, k := range keys {
		if k.Str() != want[i] {
			t.Errorf("key[%d] = %q, want %q", i, k.Str(), want[i])
		}
	}
}

func TestDictReplaceKeepsPosition(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	d := NewDict()
	d.Set(r.String("a"), r.Int64(1))
	d.Set(r.String("b"), r.Int64(2))
	d.Set(r.String("a"), r.Int64(9))

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	v, ok := d.Get(r.String("a"))
	if !ok || v.Int() != 9 {
		t.Errorf("a = %v, want 9", v)
	}
	if d.Keys()[0].Str() != "a" {
		t.Error("replaced key lost its position")
	}
}

func TestDictCrossWidthKeys(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	d := NewDict()
	d.Set(r.Int(KindInt8, 5), r.String("five"))

	v, ok := d.Get(r.Uint(KindUInt64, 5))
	if !ok || v.Str() != "five" {
		t.Error("UInt64 5 did not find Int8 5 entry")
	}
	v, ok = d.Get(r.Float64(5))
	if !ok || v.Str() != "five" {
		t.Error("Float64 5.0 did not find Int8 5 entry")
	}
}
