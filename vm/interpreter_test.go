package vm

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// run executes a built program and returns the result value.
func run(t *testing.T, b *Builder) (*Value, *VM) {
	t.Helper()
	engine := NewVM(b.Instructions())
	result, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return result, engine
}

// runErr executes a built program expecting a failure.
func runErr(t *testing.T, b *Builder) error {
	t.Helper()
	engine := NewVM(b.Instructions())
	result, err := engine.Run()
	if err == nil {
		t.Fatalf("Run succeeded with result %v, want error", result)
	}
	if result != nil {
		t.Errorf("failed Run returned a result: %v", result)
	}
	return err
}

func wantInt(t *testing.T, v *Value, want int64) {
	t.Helper()
	if v == nil {
		t.Fatalf("result = nil, want %d", want)
	}
	if !v.Kind().IsSigned() {
		t.Fatalf("result kind = %s, want a signed integer", v.Kind())
	}
	if v.Int() != want {
		t.Errorf("result = %d, want %d", v.Int(), want)
	}
}

func wantString(t *testing.T, v *Value, want string) {
	t.Helper()
	if v == nil {
		t.Fatalf("result = nil, want %q", want)
	}
	if v.Kind() != KindString {
		t.Fatalf("result kind = %s, want String", v.Kind())
	}
	if v.Str() != want {
		t.Errorf("result = %q, want %q", v.Str(), want)
	}
}

func wantBool(t *testing.T, v *Value, want bool) {
	t.Helper()
	if v == nil || v.Kind() != KindBool {
		t.Fatalf("result = %v, want Bool %t", v, want)
	}
	if v.Bool() != want {
		t.Errorf("result = %t, want %t", v.Bool(), want)
	}
}

// ---------------------------------------------------------------------------
// Arithmetic
// ---------------------------------------------------------------------------

func TestArithmeticExpression(t *testing.T) {
	// (2 + 3) * 4
	b := NewBuilder()
	b.EmitInt(OpPushInt, 2)
	b.EmitInt(OpPushInt, 3)
	b.Emit(OpAdd)
	b.EmitInt(OpPushInt, 4)
	b.Emit(OpMultiply)

	result, _ := run(t, b)
	wantInt(t, result, 20)
}

func TestStringConcatCoercesNumber(t *testing.T) {
	// "n=" + 7
	b := NewBuilder()
	b.EmitString(OpPushString, "n=")
	b.EmitInt(OpPushInt, 7)
	b.Emit(OpAdd)

	result, _ := run(t, b)
	wantString(t, result, "n=7")
}

func TestStringRepetition(t *testing.T) {
	b := NewBuilder()
	b.EmitString(OpPushString, "ab")
	b.EmitInt(OpPushInt, 3)
	b.Emit(OpMultiply)

	result, _ := run(t, b)
	wantString(t, result, "ababab")
}

func TestDivisionByZeroAborts(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 1)
	b.EmitInt(OpPushInt, 0)
	b.Emit(OpDivide)

	err := runErr(t, b)
	var ae *ArithmeticError
	if !errors.As(err, &ae) {
		t.Errorf("error = %v, want ArithmeticError", err)
	}
}

func TestModuloByZeroAborts(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 5)
	b.EmitInt(OpPushInt, 0)
	b.Emit(OpModulo)

	err := runErr(t, b)
	var ae *ArithmeticError
	if !errors.As(err, &ae) {
		t.Errorf("error = %v, want ArithmeticError", err)
	}
}

func TestFloatArithmetic(t *testing.T) {
	b := NewBuilder()
	b.EmitFloat(OpPushFloat, 1.5)
	b.EmitInt(OpPushInt, 2)
	b.Emit(OpMultiply)

	result, _ := run(t, b)
	if result.Kind() != KindFloat64 {
		t.Fatalf("result kind = %s, want Float64", result.Kind())
	}
	if result.Float() != 3.0 {
		t.Errorf("result = %g, want 3", result.Float())
	}
}

func TestNegate(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 9)
	b.Emit(OpNegate)

	result, _ := run(t, b)
	wantInt(t, result, -9)
}

func TestAddNonNumericFails(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpPushNil)
	b.EmitInt(OpPushInt, 1)
	b.Emit(OpAdd)

	err := runErr(t, b)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TypeError", err)
	}
}

// ---------------------------------------------------------------------------
// Stack operations
// ---------------------------------------------------------------------------

func TestDupAndSwap(t *testing.T) {
	// 2 dup * -> 4; then 10 swap - -> 10 - 4 = 6
	b := NewBuilder()
	b.EmitInt(OpPushInt, 2)
	b.Emit(OpDup)
	b.Emit(OpMultiply)
	b.EmitInt(OpPushInt, 10)
	b.Emit(OpSwap)
	b.Emit(OpSubtract)

	result, _ := run(t, b)
	wantInt(t, result, 6)
}

func TestPopUnderflow(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpPop)

	err := runErr(t, b)
	var se *StackUnderflowError
	if !errors.As(err, &se) {
		t.Errorf("error = %v, want StackUnderflowError", err)
	}
}

func TestEmptyProgramYieldsNoResult(t *testing.T) {
	b := NewBuilder()
	b.Emit(OpNop)

	result, _ := run(t, b)
	if result != nil {
		t.Errorf("result = %v, want nil", result)
	}
}

// ---------------------------------------------------------------------------
// Variables and scopes
// ---------------------------------------------------------------------------

func TestDefineLoadStore(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 5)
	b.EmitString(OpDefineVar, "x")
	b.EmitInt(OpPushInt, 8)
	b.EmitString(OpStoreVar, "x")
	b.EmitString(OpLoadVar, "x")

	result, _ := run(t, b)
	wantInt(t, result, 8)
}

func TestLoadUndefinedFails(t *testing.T) {
	b := NewBuilder()
	b.EmitString(OpLoadVar, "missing")

	err := runErr(t, b)
	var le *LookupError
	if !errors.As(err, &le) {
		t.Fatalf("error = %v, want LookupError", err)
	}
	if le.Name != "missing" {
		t.Errorf("LookupError.Name = %q, want %q", le.Name, "missing")
	}
}

func TestStoreUndeclaredFails(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 1)
	b.EmitString(OpStoreVar, "ghost")

	err := runErr(t, b)
	var le *LookupError
	if !errors.As(err, &le) {
		t.Errorf("error = %v, want LookupError", err)
	}
}

func TestScopeShadowingAndExit(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 1)
	b.EmitString(OpDefineVar, "x")
	b.Emit(OpPushScope)
	b.EmitInt(OpPushInt, 2)
	b.EmitString(OpDefineVar, "x") // shadows the outer x
	b.Emit(OpPopScope)
	b.EmitString(OpLoadVar, "x")

	result, _ := run(t, b)
	wantInt(t, result, 1)
}

func TestInnerScopeAssignsOuter(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 1)
	b.EmitString(OpDefineVar, "x")
	b.Emit(OpPushScope)
	b.EmitInt(OpPushInt, 9)
	b.EmitString(OpStoreVar, "x") // walks out to the declaring scope
	b.Emit(OpPopScope)
	b.EmitString(OpLoadVar, "x")

	result, _ := run(t, b)
	wantInt(t, result, 9)
}

// ---------------------------------------------------------------------------
// Control flow
// ---------------------------------------------------------------------------

func TestConditionalJump(t *testing.T) {
	// if true then 1 else 2
	b := NewBuilder()
	b.EmitBool(OpPushBool, true)
	jf := b.EmitInt(OpJumpIfFalse, 0)
	b.EmitInt(OpPushInt, 1)
	j := b.EmitInt(OpJump, 0)
	elsePos := b.Len()
	b.EmitInt(OpPushInt, 2)
	end := b.Len()
	b.PatchJump(jf, elsePos)
	b.PatchJump(j, end)

	result, _ := run(t, b)
	wantInt(t, result, 1)
}

func TestLoopSum(t *testing.T) {
	// sum = 0; i = 0; while i < 5 { sum = sum + i; i = i + 1 }; sum
	b := NewBuilder()
	b.EmitInt(OpPushInt, 0)
	b.EmitString(OpDefineVar, "sum")
	b.EmitInt(OpPushInt, 0)
	b.EmitString(OpDefineVar, "i")

	loop := b.Len()
	b.EmitString(OpLoadVar, "i")
	b.EmitInt(OpPushInt, 5)
	b.Emit(OpLess)
	exit := b.EmitInt(OpJumpIfFalse, 0)

	b.EmitString(OpLoadVar, "sum")
	b.EmitString(OpLoadVar, "i")
	b.Emit(OpAdd)
	b.EmitString(OpStoreVar, "sum")
	b.EmitString(OpLoadVar, "i")
	b.EmitInt(OpPushInt, 1)
	b.Emit(OpAdd)
	b.EmitString(OpStoreVar, "i")
	back := b.EmitInt(OpJump, 0)
	b.PatchJump(back, loop)
	b.PatchJump(exit, b.Len())
	b.EmitString(OpLoadVar, "sum")

	result, _ := run(t, b)
	wantInt(t, result, 10)
}

// ---------------------------------------------------------------------------
// Comparison and logic
// ---------------------------------------------------------------------------

func TestMixedWidthEquality(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 3)
	b.EmitFloat(OpPushFloat, 3)
	b.Emit(OpEqual)

	result, _ := run(t, b)
	wantBool(t, result, true)
}

func TestIncompatibleEqualityIsFalse(t *testing.T) {
	b := NewBuilder()
	b.EmitString(OpPushString, "3")
	b.EmitInt(OpPushInt, 3)
	b.Emit(OpEqual)

	result, _ := run(t, b)
	wantBool(t, result, false)
}

func TestIncompatibleOrderingFails(t *testing.T) {
	b := NewBuilder()
	b.EmitString(OpPushString, "a")
	b.EmitInt(OpPushInt, 3)
	b.Emit(OpLess)

	err := runErr(t, b)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TypeError", err)
	}
}

func TestStringOrdering(t *testing.T) {
	b := NewBuilder()
	b.EmitString(OpPushString, "apple")
	b.EmitString(OpPushString, "banana")
	b.Emit(OpLess)

	result, _ := run(t, b)
	wantBool(t, result, true)
}

func TestTruthinessLogic(t *testing.T) {
	// "" OR 5 -> true; 0 AND true -> false; NOT nil -> true
	b := NewBuilder()
	b.EmitString(OpPushString, "")
	b.EmitInt(OpPushInt, 5)
	b.Emit(OpOr)
	b.EmitInt(OpPushInt, 0)
	b.EmitBool(OpPushBool, true)
	b.Emit(OpAnd)
	b.Emit(OpNot)
	b.Emit(OpAnd)

	result, _ := run(t, b)
	wantBool(t, result, true)
}

// ---------------------------------------------------------------------------
// Functions
// ---------------------------------------------------------------------------

func TestCallAndReturn(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpBeginFunction, 0)
	b.Instructions()[0].StrVal = "answer"
	b.EmitInt(OpPushInt, 42)
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitCall("answer", 0)

	result, _ := run(t, b)
	wantInt(t, result, 42)
}

func TestCallWithParams(t *testing.T) {
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 2)
	b.Instructions()[begin].StrVal = "add2"
	b.EmitString(OpParam, "a")
	b.EmitString(OpParam, "b")
	b.EmitString(OpLoadVar, "a")
	b.EmitString(OpLoadVar, "b")
	b.Emit(OpAdd)
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitInt(OpPushInt, 30)
	b.EmitInt(OpPushInt, 12)
	b.EmitCall("add2", 2)

	result, _ := run(t, b)
	wantInt(t, result, 42)
}

func TestOptionalParamFilledWithNil(t *testing.T) {
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 2)
	b.Instructions()[begin].StrVal = "f"
	b.EmitString(OpParam, "a")
	p := b.EmitString(OpParam, "b")
	b.Instructions()[p].BoolVal = true // optional
	b.EmitString(OpLoadVar, "b")
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitInt(OpPushInt, 1)
	b.EmitCall("f", 1)

	result, _ := run(t, b)
	if result == nil || !result.IsNil() {
		t.Errorf("result = %v, want nil value", result)
	}
}

func TestCallWrongArgcFails(t *testing.T) {
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 1)
	b.Instructions()[begin].StrVal = "one"
	b.EmitString(OpParam, "a")
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitCall("one", 0)

	err := runErr(t, b)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TypeError", err)
	}
}

func TestFunctionHeaderParamCountMismatch(t *testing.T) {
	// The header claims zero parameters but a PARAM entry follows.
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 0)
	b.Instructions()[begin].StrVal = "lying"
	b.EmitString(OpParam, "a")
	b.Emit(OpEndFunction)

	err := runErr(t, b)
	var te *TypeError
	if !errors.As(err, &te) {
		t.Errorf("error = %v, want TypeError", err)
	}
}

func TestCallUnknownNameFails(t *testing.T) {
	b := NewBuilder()
	b.EmitCall("nowhere", 0)

	err := runErr(t, b)
	var le *LookupError
	if !errors.As(err, &le) {
		t.Errorf("error = %v, want LookupError", err)
	}
}

func TestImplicitReturnIsNil(t *testing.T) {
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 0)
	b.Instructions()[begin].StrVal = "noop"
	b.Emit(OpEndFunction)
	b.EmitCall("noop", 0)

	result, _ := run(t, b)
	if result == nil || !result.IsNil() {
		t.Errorf("result = %v, want nil value", result)
	}
}

func TestReturnRebalancesStack(t *testing.T) {
	// The body leaves extra junk on the stack; the caller still sees exactly
	// one result above what it had before the call.
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 0)
	b.Instructions()[begin].StrVal = "messy"
	b.EmitInt(OpPushInt, 1)
	b.EmitInt(OpPushInt, 2)
	b.EmitInt(OpPushInt, 3)
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitInt(OpPushInt, 100)
	b.EmitCall("messy", 0)
	b.Emit(OpAdd)

	result, _ := run(t, b)
	wantInt(t, result, 103)
}

func TestFunctionScopeIsolatedFromCaller(t *testing.T) {
	// The callee must not see the caller's locals: its scope hangs off the
	// global scope, not the call site.
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 0)
	b.Instructions()[begin].StrVal = "peek"
	b.EmitString(OpLoadVar, "local")
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.Emit(OpPushScope)
	b.EmitInt(OpPushInt, 1)
	b.EmitString(OpDefineVar, "local")
	b.EmitCall("peek", 0)

	err := runErr(t, b)
	var le *LookupError
	if !errors.As(err, &le) {
		t.Errorf("error = %v, want LookupError", err)
	}
}

func TestEnvRestoredAfterCall(t *testing.T) {
	b := NewBuilder()
	begin := b.EmitInt(OpBeginFunction, 1)
	b.Instructions()[begin].StrVal = "id"
	b.EmitString(OpParam, "x")
	b.EmitString(OpLoadVar, "x")
	b.Emit(OpReturn)
	b.Emit(OpEndFunction)
	b.EmitInt(OpPushInt, 7)
	b.EmitString(OpDefineVar, "y")
	b.EmitInt(OpPushInt, 1)
	b.EmitCall("id", 1)
	b.Emit(OpPop)
	b.EmitString(OpLoadVar, "y") // caller scope must be back

	result, _ := run(t, b)
	wantInt(t, result, 7)
}

// ---------------------------------------------------------------------------
// Unimplemented opcode family
// ---------------------------------------------------------------------------

func TestReservedOpcodesFailLoudly(t *testing.T) {
	for _, op := range []Opcode{OpBeginTry, OpThrow, OpMatchPattern, OpCreateEnum, OpImport} {
		b := NewBuilder()
		b.Emit(op)
		err := runErr(t, b)
		var ne *NotImplementedError
		if !errors.As(err, &ne) {
			t.Errorf("%s: error = %v, want NotImplementedError", op, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Diagnostics
// ---------------------------------------------------------------------------

func TestErrorCarriesLine(t *testing.T) {
	b := NewBuilder()
	pos := b.EmitInt(OpPushInt, 1)
	b.Instructions()[pos].Line = 3
	pos = b.EmitInt(OpPushInt, 0)
	b.Instructions()[pos].Line = 3
	pos = b.Emit(OpDivide)
	b.Instructions()[pos].Line = 4

	err := runErr(t, b)
	if !strings.Contains(err.Error(), "line 4") {
		t.Errorf("error = %q, want line annotation", err)
	}
}

func TestNativePrintln(t *testing.T) {
	var out bytes.Buffer
	b := NewBuilder()
	b.EmitString(OpPushString, "hello")
	b.EmitInt(OpPushInt, 7)
	b.EmitCall("println", 2)

	engine := NewVM(b.Instructions(), WithStdout(&out))
	if _, err := engine.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if out.String() != "hello 7\n" {
		t.Errorf("output = %q, want %q", out.String(), "hello 7\n")
	}
}

func TestHostNative(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 20)
	b.EmitCall("double", 1)

	engine := NewVM(b.Instructions())
	engine.RegisterNative("double", func(r *Region, args []*Value) (*Value, error) {
		if len(args) != 1 {
			return nil, typeErrorf("double expects 1 argument")
		}
		return r.Int64(args[0].Int() * 2), nil
	})
	result, err := engine.Run()
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	wantInt(t, result, 40)
}

func TestDumpStack(t *testing.T) {
	b := NewBuilder()
	b.EmitInt(OpPushInt, 1)
	b.EmitString(OpPushString, "x")
	b.Emit(OpHalt)

	engine := NewVM(b.Instructions())
	c := newContext(0, 0, engine.Globals())
	if err := engine.runContext(c); err != nil {
		t.Fatalf("runContext: %v", err)
	}
	dump := DumpStack(c)
	if !strings.Contains(dump, "depth 2") || !strings.Contains(dump, "String") {
		t.Errorf("unexpected dump: %s", dump)
	}
}
