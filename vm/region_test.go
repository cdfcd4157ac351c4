package vm

import (
	"errors"
	"sync"
	"testing"
)

func TestRegionOwnsAllocations(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	r.Nil()
	r.Bool(true)
	r.Int64(1)
	r.String("s")
	if got := r.Count(); got != 4 {
		t.Errorf("Count = %d, want 4", got)
	}
}

func TestRetainRelease(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	v := r.Int64(1)
	if v.RefCount() != 1 {
		t.Fatalf("fresh refcount = %d, want 1", v.RefCount())
	}
	v.Retain()
	if v.RefCount() != 2 {
		t.Errorf("after Retain refcount = %d, want 2", v.RefCount())
	}
	v.Release()
	v.Release()
	if v.RefCount() != 0 {
		t.Errorf("after Releases refcount = %d, want 0", v.RefCount())
	}
}

func TestReleaseUnderflowPanics(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	v := r.Int64(1)
	v.Release()
	defer func() {
		if recover() == nil {
			t.Error("Release past zero did not panic")
		}
	}()
	v.Release()
}

func TestAllocateAfterDropPanics(t *testing.T) {
	r := NewRegion()
	r.Drop()
	defer func() {
		if recover() == nil {
			t.Error("allocation after Drop did not panic")
		}
	}()
	r.Nil()
}

func TestRegionToleratesCycles(t *testing.T) {
	r := NewRegion()

	list := r.NewList(AnyType)
	list.list = append(list.list, list.Retain()) // self-referential
	r.Drop()                                     // must not hang or panic
}

func TestConcurrentAllocation(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Int64(int64(j))
			}
		}()
	}
	wg.Wait()
	if got := r.Count(); got != 800 {
		t.Errorf("Count = %d, want 800", got)
	}
}

func TestNewValueZeroes(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	cases := []struct {
		typ  *Type
		want string
	}{
		{NilType, "nil"},
		{BoolType, "false"},
		{Int8Type, "0"},
		{UInt64Type, "0"},
		{Float64Type, "0"},
		{StringType, ""},
		{ListOf(Int64Type), "[]"},
		{DictOf(StringType, Int64Type), "{}"},
	}
	for _, tc := range cases {
		v, err := r.NewValue(tc.typ)
		if err != nil {
			t.Errorf("NewValue(%s): %v", tc.typ, err)
			continue
		}
		if v.Format() != tc.want {
			t.Errorf("NewValue(%s) = %q, want %q", tc.typ, v.Format(), tc.want)
		}
	}
}

func TestNewValueFunctionTagFails(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	_, err := r.NewValue(&Type{Kind: KindFunction})
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want TypeError", err)
	}
}

func TestNewValueEmptyEnumFails(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	_, err := r.NewValue(EnumOf("Color"))
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want TypeError", err)
	}
}

func TestNewValueEnumFirstVariant(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	v, err := r.NewValue(EnumOf("Color", "Red", "Green"))
	if err != nil {
		t.Fatalf("NewValue: %v", err)
	}
	if v.Format() != "Color.Red" {
		t.Errorf("Format = %q, want Color.Red", v.Format())
	}
}
