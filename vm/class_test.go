package vm

import "testing"

func TestResolveMethodWalksChain(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	base.AddMethod(&MethodDefinition{Name: "hello", Impl: &FunctionImpl{Name: "hello", Owner: "Base"}})
	derived := NewClassDefinition("Derived", base)

	m, ok := derived.ResolveMethod("hello")
	if !ok {
		t.Fatal("ResolveMethod(hello) = false")
	}
	if m.Impl.Owner != "Base" {
		t.Errorf("Owner = %q, want Base", m.Impl.Owner)
	}

	if _, ok := derived.ResolveMethod("nothing"); ok {
		t.Error("ResolveMethod found a method that does not exist")
	}
}

func TestOverrideShadowsSuperclass(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	base.AddMethod(&MethodDefinition{Name: "f", Impl: &FunctionImpl{Name: "f", Owner: "Base"}})
	derived := NewClassDefinition("Derived", base)
	derived.AddMethod(&MethodDefinition{Name: "f", Impl: &FunctionImpl{Name: "f", Owner: "Derived"}})

	m, _ := derived.ResolveMethod("f")
	if m.Impl.Owner != "Derived" {
		t.Errorf("Owner = %q, want Derived", m.Impl.Owner)
	}
}

func TestAllFieldNamesInheritedFirst(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	base.AddField(&FieldDefinition{Name: "a", Type: Int64Type})
	derived := NewClassDefinition("Derived", base)
	derived.AddField(&FieldDefinition{Name: "b", Type: Int64Type})

	names := derived.AllFieldNames()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("AllFieldNames = %v, want [a b]", names)
	}
}

func TestIsSubclassOfIsStrict(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	mid := NewClassDefinition("Mid", base)
	leaf := NewClassDefinition("Leaf", mid)

	if !leaf.IsSubclassOf("Base") || !leaf.IsSubclassOf("Mid") {
		t.Error("transitive subclass relation broken")
	}
	if leaf.IsSubclassOf("Leaf") {
		t.Error("a class must not be a subclass of itself")
	}
	if base.IsSubclassOf("Leaf") {
		t.Error("subclass relation inverted")
	}
}

func TestClaimsInterfaceThroughChain(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	base.Interfaces = []string{"Printable"}
	derived := NewClassDefinition("Derived", base)

	if !derived.ClaimsInterface("Printable") {
		t.Error("interface claim not inherited")
	}
	if derived.ClaimsInterface("Comparable") {
		t.Error("unclaimed interface reported")
	}
}

func TestCreateInstanceInitializesAllFields(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	base := NewClassDefinition("Base", nil)
	base.AddField(&FieldDefinition{Name: "a", Type: Int64Type})
	derived := NewClassDefinition("Derived", base)
	derived.AddField(&FieldDefinition{Name: "b", Type: StringType})

	v := derived.CreateInstance(r)
	obj := v.Object()
	for _, name := range []string{"a", "b"} {
		got, err := obj.GetField(name)
		if err != nil {
			t.Errorf("GetField(%s): %v", name, err)
			continue
		}
		if got == nil || !got.IsNil() {
			t.Errorf("field %s = %v, want nil value", name, got)
		}
	}
}

func TestConstructorFoundInChain(t *testing.T) {
	base := NewClassDefinition("Base", nil)
	base.AddMethod(&MethodDefinition{
		Name: "init",
		Impl: &FunctionImpl{Name: "init", Owner: "Base", IsConstructor: true},
	})
	derived := NewClassDefinition("Derived", base)

	ctor, ok := derived.Constructor()
	if !ok {
		t.Fatal("Constructor not found through the chain")
	}
	if ctor.Owner != "Base" {
		t.Errorf("Owner = %q, want Base", ctor.Owner)
	}
}

func TestObjectFieldLifecycle(t *testing.T) {
	r := NewRegion()
	defer r.Drop()

	class := NewClassDefinition("C", nil)
	v := class.CreateInstance(r)
	obj := v.Object()

	first := r.Int64(1)
	obj.SetField("dyn", first)
	obj.SetField("dyn", r.Int64(2))
	if first.RefCount() != 1 {
		t.Errorf("replaced field refcount = %d, want 1", first.RefCount())
	}

	got, err := obj.GetField("dyn")
	if err != nil {
		t.Fatalf("GetField: %v", err)
	}
	if got.Int() != 2 {
		t.Errorf("dyn = %d, want 2", got.Int())
	}
	if !obj.HasField("dyn") || obj.HasField("other") {
		t.Error("HasField wrong")
	}
}
