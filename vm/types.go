package vm

// ---------------------------------------------------------------------------
// Kind: closed set of value tags
// ---------------------------------------------------------------------------

// Kind identifies the payload variant of a value or the tag of a type
// descriptor. The numeric kinds are declared in widening-rank order.
type Kind uint8

const (
	KindNil Kind = iota
	KindBool
	KindInt8
	KindUInt8
	KindInt16
	KindUInt16
	KindInt32
	KindUInt32
	KindInt64
	KindUInt64
	KindFloat32
	KindFloat64
	KindString
	KindList
	KindDict
	KindSum
	KindUnion
	KindEnum
	KindObject
	KindIterator
	KindFunction
	KindAny
)

var kindNames = map[Kind]string{
	KindNil:      "Nil",
	KindBool:     "Bool",
	KindInt8:     "Int8",
	KindUInt8:    "UInt8",
	KindInt16:    "Int16",
	KindUInt16:   "UInt16",
	KindInt32:    "Int32",
	KindUInt32:   "UInt32",
	KindInt64:    "Int64",
	KindUInt64:   "UInt64",
	KindFloat32:  "Float32",
	KindFloat64:  "Float64",
	KindString:   "String",
	KindList:     "List",
	KindDict:     "Dict",
	KindSum:      "Sum",
	KindUnion:    "Union",
	KindEnum:     "Enum",
	KindObject:   "Object",
	KindIterator: "Iterator",
	KindFunction: "Function",
	KindAny:      "Any",
}

// String returns the kind's name.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "Unknown"
}

// IsNumeric returns true for the integer and floating-point kinds.
func (k Kind) IsNumeric() bool {
	return k >= KindInt8 && k <= KindFloat64
}

// IsInteger returns true for the eight fixed-width integer kinds.
func (k Kind) IsInteger() bool {
	return k >= KindInt8 && k <= KindUInt64
}

// IsSigned returns true for signed integer kinds.
func (k Kind) IsSigned() bool {
	switch k {
	case KindInt8, KindInt16, KindInt32, KindInt64:
		return true
	}
	return false
}

// IsFloat returns true for the floating-point kinds.
func (k Kind) IsFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

// ---------------------------------------------------------------------------
// Type: descriptor for a value
// ---------------------------------------------------------------------------

// Type describes a value's shape: a tag plus tag-specific metadata.
type Type struct {
	Kind Kind

	// Name is the class name for Object types and the enum name for Enum
	// types. Empty otherwise.
	Name string

	// Elem is the element type for List and Iterator types.
	Elem *Type

	// Key and Val are the key and value types for Dict types.
	Key *Type
	Val *Type

	// Variants lists member types for Sum and Union types, and variant
	// names (as Name-only descriptors) are not used; see EnumVariants.
	Variants []*Type

	// EnumVariants lists the declared variant names for Enum types.
	EnumVariants []string

	// Fields is the declared field layout for Object types created without
	// a class (detached records).
	Fields []TypeField
}

// TypeField is one declared field in a record layout.
type TypeField struct {
	Name string
	Type *Type
}

// Pre-built descriptors for the scalar kinds.
var (
	NilType     = &Type{Kind: KindNil}
	BoolType    = &Type{Kind: KindBool}
	Int8Type    = &Type{Kind: KindInt8}
	UInt8Type   = &Type{Kind: KindUInt8}
	Int16Type   = &Type{Kind: KindInt16}
	UInt16Type  = &Type{Kind: KindUInt16}
	Int32Type   = &Type{Kind: KindInt32}
	UInt32Type  = &Type{Kind: KindUInt32}
	Int64Type   = &Type{Kind: KindInt64}
	UInt64Type  = &Type{Kind: KindUInt64}
	Float32Type = &Type{Kind: KindFloat32}
	Float64Type = &Type{Kind: KindFloat64}
	StringType  = &Type{Kind: KindString}
	AnyType     = &Type{Kind: KindAny}
)

// numericType maps a numeric kind back to its shared descriptor.
var numericTypes = map[Kind]*Type{
	KindInt8:    Int8Type,
	KindUInt8:   UInt8Type,
	KindInt16:   Int16Type,
	KindUInt16:  UInt16Type,
	KindInt32:   Int32Type,
	KindUInt32:  UInt32Type,
	KindInt64:   Int64Type,
	KindUInt64:  UInt64Type,
	KindFloat32: Float32Type,
	KindFloat64: Float64Type,
}

// TypeForKind returns the shared descriptor for a scalar kind, or a fresh
// descriptor for composite kinds.
func TypeForKind(k Kind) *Type {
	switch k {
	case KindNil:
		return NilType
	case KindBool:
		return BoolType
	case KindString:
		return StringType
	case KindAny:
		return AnyType
	}
	if t, ok := numericTypes[k]; ok {
		return t
	}
	return &Type{Kind: k}
}

// ListOf returns a list type with the given element type.
func ListOf(elem *Type) *Type {
	return &Type{Kind: KindList, Elem: elem}
}

// DictOf returns a dictionary type with the given key and value types.
func DictOf(key, val *Type) *Type {
	return &Type{Kind: KindDict, Key: key, Val: val}
}

// SumOf returns a sum type over the given variant types.
func SumOf(variants ...*Type) *Type {
	return &Type{Kind: KindSum, Variants: variants}
}

// UnionOf returns a union type over the given member types.
func UnionOf(members ...*Type) *Type {
	return &Type{Kind: KindUnion, Variants: members}
}

// EnumOf returns an enum type with the given name and variant names.
func EnumOf(name string, variants ...string) *Type {
	return &Type{Kind: KindEnum, Name: name, EnumVariants: variants}
}

// ObjectTypeOf returns an object type for the named class.
func ObjectTypeOf(name string) *Type {
	return &Type{Kind: KindObject, Name: name}
}

// IteratorOf returns an iterator type yielding the given element type.
func IteratorOf(elem *Type) *Type {
	return &Type{Kind: KindIterator, Elem: elem}
}

// Equals reports structural equality between descriptors. Two descriptors
// are equal iff their tags match; nested element types are deliberately not
// compared (the List/Dict convertibility check recurses separately).
// Object and Enum types additionally compare names.
func (t *Type) Equals(other *Type) bool {
	if t == other {
		return true
	}
	if t == nil || other == nil {
		return false
	}
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case KindObject, KindEnum:
		return t.Name == other.Name
	}
	return true
}

// String renders the descriptor for diagnostics.
func (t *Type) String() string {
	if t == nil {
		return "<nil type>"
	}
	switch t.Kind {
	case KindList:
		if t.Elem != nil {
			return "List[" + t.Elem.String() + "]"
		}
		return "List"
	case KindDict:
		if t.Key != nil && t.Val != nil {
			return "Dict[" + t.Key.String() + ", " + t.Val.String() + "]"
		}
		return "Dict"
	case KindObject:
		if t.Name != "" {
			return t.Name
		}
		return "Object"
	case KindEnum:
		if t.Name != "" {
			return "Enum " + t.Name
		}
		return "Enum"
	case KindSum:
		return "Sum"
	case KindUnion:
		return "Union"
	}
	return t.Kind.String()
}
