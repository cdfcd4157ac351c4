package vm

import (
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode operation.
type Opcode uint8

// Stack Operations
const (
	OpNop  Opcode = 0x00 // no operation
	OpPop  Opcode = 0x01 // discard top of stack
	OpDup  Opcode = 0x02 // duplicate top of stack
	OpSwap Opcode = 0x03 // swap top two entries
)

// Push Constants
const (
	OpPushNil    Opcode = 0x10 // push nil
	OpPushBool   Opcode = 0x11 // push boolean (BoolVal)
	OpPushInt    Opcode = 0x12 // push Int64 (IntVal)
	OpPushFloat  Opcode = 0x13 // push Float64 (FloatVal)
	OpPushString Opcode = 0x14 // push string (StrVal)
)

// Variable Operations
const (
	OpDefineVar Opcode = 0x20 // define StrVal in the current scope (pops value)
	OpLoadVar   Opcode = 0x21 // push variable StrVal (walks the chain)
	OpStoreVar  Opcode = 0x22 // assign StrVal walking the chain (pops value)
	OpPushScope Opcode = 0x23 // enter a child scope
	OpPopScope  Opcode = 0x24 // exit the current scope
)

// Arithmetic
const (
	OpAdd      Opcode = 0x30 // pop b, a; push a+b (string concat when either is a string)
	OpSubtract Opcode = 0x31 // pop b, a; push a-b
	OpMultiply Opcode = 0x32 // pop b, a; push a*b (string repetition with an integer)
	OpDivide   Opcode = 0x33 // pop b, a; push a/b
	OpModulo   Opcode = 0x34 // pop b, a; push a%b
	OpNegate   Opcode = 0x35 // pop a; push -a
)

// Comparison
const (
	OpEqual        Opcode = 0x40
	OpNotEqual     Opcode = 0x41
	OpLess         Opcode = 0x42
	OpLessEqual    Opcode = 0x43
	OpGreater      Opcode = 0x44
	OpGreaterEqual Opcode = 0x45
)

// Logic
const (
	OpAnd Opcode = 0x50 // pop b, a; push truthiness(a) && truthiness(b)
	OpOr  Opcode = 0x51
	OpNot Opcode = 0x52 // pop a; push !truthiness(a)
)

// Control Flow
const (
	OpJump        Opcode = 0x60 // ip += IntVal (signed relative, after fetch)
	OpJumpIfTrue  Opcode = 0x61 // pop; jump when truthy
	OpJumpIfFalse Opcode = 0x62 // pop; jump when falsy
	OpHalt        Opcode = 0x63 // stop the current context
)

// Functions
const (
	OpBeginFunction Opcode = 0x70 // register function StrVal with IntVal params; skip body
	OpParam         Opcode = 0x71 // parameter StrVal (BoolVal: optional), read at registration
	OpEndFunction   Opcode = 0x72 // function body end; implicit return nil
	OpCall          Opcode = 0x73 // call StrVal with IntVal arguments
	OpReturn        Opcode = 0x74 // return from the current frame
)

// Composite Values
const (
	OpCreateList  Opcode = 0x80 // pop IntVal elements; push list
	OpListAppend  Opcode = 0x81 // pop value, list; append; push list
	OpCreateDict  Opcode = 0x82 // pop IntVal key/value pairs; push dict
	OpDictSet     Opcode = 0x83 // pop value, key, dict; set; push dict
	OpGetIndex    Opcode = 0x84 // pop index, container; push element
	OpSetIndex    Opcode = 0x85 // pop value, index, container; store; push container
	OpCreateRange Opcode = 0x86 // pop step, end, start; push list (BoolVal: inclusive)
)

// Iteration
const (
	OpGetIterator      Opcode = 0x90 // pop composite; push iterator
	OpIterHasNext      Opcode = 0x91 // peek iterator; push bool
	OpIterNext         Opcode = 0x92 // peek iterator; push next element
	OpIterNextKeyValue Opcode = 0x93 // peek iterator; push key then value
)

// Classes and Objects
const (
	OpBeginClass    Opcode = 0xA0 // begin class StrVal; scan declarations to END_CLASS
	OpSetSuperclass Opcode = 0xA1 // superclass StrVal (inside a class body)
	OpDeclareField  Opcode = 0xA2 // field StrVal with kind IntVal (inside a class body)
	OpDeclareMethod Opcode = 0xA3 // method StrVal at address IntVal (BoolVal: constructor)
	OpEndClass      Opcode = 0xA4 // register the scanned class
	OpLoadThis      Opcode = 0xA5 // push the active frame's receiver
	OpGetProperty   Opcode = 0xA6 // pop object; push field StrVal
	OpSetProperty   Opcode = 0xA7 // pop value, object; set field StrVal
)

// Concurrency
const (
	OpBeginParallel   Opcode = 0xB0 // run the next IntVal TASK entries on a pool of IntVal workers
	OpBeginConcurrent Opcode = 0xB1 // as BEGIN_PARALLEL with the configured worker cap
	OpTask            Opcode = 0xB2 // one task: context starts at address IntVal
	OpEndTask         Opcode = 0xB3 // end of a task body; halts the context
)

// Reserved for unported language features. Executing any of these is a
// NotImplementedError, loud and early rather than a silent stub.
const (
	OpBeginTry     Opcode = 0xE0
	OpEndTry       Opcode = 0xE1
	OpBeginHandler Opcode = 0xE2
	OpEndHandler   Opcode = 0xE3
	OpThrow        Opcode = 0xE4
	OpMatchPattern Opcode = 0xE5
	OpCreateEnum   Opcode = 0xE6
	OpImport       Opcode = 0xE7
)

// ---------------------------------------------------------------------------
// Instruction: fixed-shape bytecode record
// ---------------------------------------------------------------------------

// Instruction is one fixed-shape bytecode entry as produced by the external
// bytecode generator. Which operand fields are meaningful depends on the
// opcode; Line is the originating source line, for diagnostics only.
type Instruction struct {
	Op       Opcode
	IntVal   int32
	FloatVal float32
	BoolVal  bool
	StrVal   string
	Line     uint32
}

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// operand describes which operand fields an opcode reads, for disassembly.
type operand uint8

const (
	operandNone operand = iota
	operandInt
	operandFloat
	operandBool
	operandStr
	operandStrBool
	operandStrInt
	operandIntBool
	operandStrIntBool
)

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name        string
	StackEffect int  // net effect on stack depth
	Variable    bool // true when the effect depends on an operand
	Operands    operand
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpNop:  {Name: "NOP"},
	OpPop:  {Name: "POP", StackEffect: -1},
	OpDup:  {Name: "DUP", StackEffect: 1},
	OpSwap: {Name: "SWAP"},

	OpPushNil:    {Name: "PUSH_NIL", StackEffect: 1},
	OpPushBool:   {Name: "PUSH_BOOL", StackEffect: 1, Operands: operandBool},
	OpPushInt:    {Name: "PUSH_INT", StackEffect: 1, Operands: operandInt},
	OpPushFloat:  {Name: "PUSH_FLOAT", StackEffect: 1, Operands: operandFloat},
	OpPushString: {Name: "PUSH_STRING", StackEffect: 1, Operands: operandStr},

	OpDefineVar: {Name: "DEFINE_VAR", StackEffect: -1, Operands: operandStr},
	OpLoadVar:   {Name: "LOAD_VAR", StackEffect: 1, Operands: operandStr},
	OpStoreVar:  {Name: "STORE_VAR", StackEffect: -1, Operands: operandStr},
	OpPushScope: {Name: "PUSH_SCOPE"},
	OpPopScope:  {Name: "POP_SCOPE"},

	OpAdd:      {Name: "ADD", StackEffect: -1},
	OpSubtract: {Name: "SUBTRACT", StackEffect: -1},
	OpMultiply: {Name: "MULTIPLY", StackEffect: -1},
	OpDivide:   {Name: "DIVIDE", StackEffect: -1},
	OpModulo:   {Name: "MODULO", StackEffect: -1},
	OpNegate:   {Name: "NEGATE"},

	OpEqual:        {Name: "EQUAL", StackEffect: -1},
	OpNotEqual:     {Name: "NOT_EQUAL", StackEffect: -1},
	OpLess:         {Name: "LESS", StackEffect: -1},
	OpLessEqual:    {Name: "LESS_EQUAL", StackEffect: -1},
	OpGreater:      {Name: "GREATER", StackEffect: -1},
	OpGreaterEqual: {Name: "GREATER_EQUAL", StackEffect: -1},

	OpAnd: {Name: "AND", StackEffect: -1},
	OpOr:  {Name: "OR", StackEffect: -1},
	OpNot: {Name: "NOT"},

	OpJump:        {Name: "JUMP", Operands: operandInt},
	OpJumpIfTrue:  {Name: "JUMP_IF_TRUE", StackEffect: -1, Operands: operandInt},
	OpJumpIfFalse: {Name: "JUMP_IF_FALSE", StackEffect: -1, Operands: operandInt},
	OpHalt:        {Name: "HALT"},

	OpBeginFunction: {Name: "BEGIN_FUNCTION", Operands: operandStrInt},
	OpParam:         {Name: "PARAM", Operands: operandStrBool},
	OpEndFunction:   {Name: "END_FUNCTION"},
	OpCall:          {Name: "CALL", Variable: true, Operands: operandStrInt},
	OpReturn:        {Name: "RETURN", Variable: true},

	OpCreateList:  {Name: "CREATE_LIST", Variable: true, Operands: operandInt},
	OpListAppend:  {Name: "LIST_APPEND", StackEffect: -1},
	OpCreateDict:  {Name: "CREATE_DICT", Variable: true, Operands: operandInt},
	OpDictSet:     {Name: "DICT_SET", StackEffect: -2},
	OpGetIndex:    {Name: "GET_INDEX", StackEffect: -1},
	OpSetIndex:    {Name: "SET_INDEX", StackEffect: -2},
	OpCreateRange: {Name: "CREATE_RANGE", StackEffect: -2, Operands: operandBool},

	OpGetIterator:      {Name: "GET_ITERATOR"},
	OpIterHasNext:      {Name: "ITERATOR_HAS_NEXT", StackEffect: 1},
	OpIterNext:         {Name: "ITERATOR_NEXT", StackEffect: 1},
	OpIterNextKeyValue: {Name: "ITERATOR_NEXT_KEY_VALUE", StackEffect: 2},

	OpBeginClass:    {Name: "BEGIN_CLASS", Operands: operandStr},
	OpSetSuperclass: {Name: "SET_SUPERCLASS", Operands: operandStr},
	OpDeclareField:  {Name: "DECLARE_FIELD", Operands: operandStrInt},
	OpDeclareMethod: {Name: "DECLARE_METHOD", Operands: operandStrIntBool},
	OpEndClass:      {Name: "END_CLASS"},
	OpLoadThis:      {Name: "LOAD_THIS", StackEffect: 1},
	OpGetProperty:   {Name: "GET_PROPERTY", Operands: operandStr},
	OpSetProperty:   {Name: "SET_PROPERTY", StackEffect: -2, Operands: operandStr},

	OpBeginParallel:   {Name: "BEGIN_PARALLEL", Operands: operandInt},
	OpBeginConcurrent: {Name: "BEGIN_CONCURRENT", Operands: operandInt},
	OpTask:            {Name: "TASK", Operands: operandInt},
	OpEndTask:         {Name: "END_TASK"},

	OpBeginTry:     {Name: "BEGIN_TRY"},
	OpEndTry:       {Name: "END_TRY"},
	OpBeginHandler: {Name: "BEGIN_HANDLER"},
	OpEndHandler:   {Name: "END_HANDLER"},
	OpThrow:        {Name: "THROW"},
	OpMatchPattern: {Name: "MATCH_PATTERN"},
	OpCreateEnum:   {Name: "CREATE_ENUM", Operands: operandStr},
	OpImport:       {Name: "IMPORT", Operands: operandStr},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", uint8(op))}
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Info().Name
}

// ---------------------------------------------------------------------------
// Disassembly
// ---------------------------------------------------------------------------

// DisassembleInstruction renders a single instruction at a position.
func DisassembleInstruction(pos int, in Instruction) string {
	info := in.Op.Info()
	switch info.Operands {
	case operandInt:
		if in.Op == OpJump || in.Op == OpJumpIfTrue || in.Op == OpJumpIfFalse {
			return fmt.Sprintf("%04d  %s %d (-> %04d)", pos, info.Name, in.IntVal, pos+1+int(in.IntVal))
		}
		return fmt.Sprintf("%04d  %s %d", pos, info.Name, in.IntVal)
	case operandFloat:
		return fmt.Sprintf("%04d  %s %g", pos, info.Name, in.FloatVal)
	case operandBool:
		return fmt.Sprintf("%04d  %s %t", pos, info.Name, in.BoolVal)
	case operandStr:
		return fmt.Sprintf("%04d  %s %q", pos, info.Name, in.StrVal)
	case operandStrBool:
		return fmt.Sprintf("%04d  %s %q %t", pos, info.Name, in.StrVal, in.BoolVal)
	case operandStrInt:
		return fmt.Sprintf("%04d  %s %q %d", pos, info.Name, in.StrVal, in.IntVal)
	case operandStrIntBool:
		return fmt.Sprintf("%04d  %s %q %d %t", pos, info.Name, in.StrVal, in.IntVal, in.BoolVal)
	default:
		return fmt.Sprintf("%04d  %s", pos, info.Name)
	}
}

// Disassemble returns a full disassembly of an instruction stream.
func Disassemble(instrs []Instruction) string {
	var sb strings.Builder
	for i, in := range instrs {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(DisassembleInstruction(i, in))
	}
	return sb.String()
}

// ---------------------------------------------------------------------------
// Builder: helper for constructing instruction streams
// ---------------------------------------------------------------------------

// Builder constructs instruction sequences, mainly for tests and hosts; the
// real front end emits the same records from its own code generator.
type Builder struct {
	instrs []Instruction
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{instrs: make([]Instruction, 0, 32)}
}

// Len returns the current instruction count.
func (b *Builder) Len() int { return len(b.instrs) }

// Instructions returns the constructed stream.
func (b *Builder) Instructions() []Instruction { return b.instrs }

// Emit appends an opcode with no operands and returns its position.
func (b *Builder) Emit(op Opcode) int {
	b.instrs = append(b.instrs, Instruction{Op: op})
	return len(b.instrs) - 1
}

// EmitInt appends an opcode with an integer operand.
func (b *Builder) EmitInt(op Opcode, n int32) int {
	b.instrs = append(b.instrs, Instruction{Op: op, IntVal: n})
	return len(b.instrs) - 1
}

// EmitFloat appends an opcode with a float operand.
func (b *Builder) EmitFloat(op Opcode, f float32) int {
	b.instrs = append(b.instrs, Instruction{Op: op, FloatVal: f})
	return len(b.instrs) - 1
}

// EmitBool appends an opcode with a boolean operand.
func (b *Builder) EmitBool(op Opcode, v bool) int {
	b.instrs = append(b.instrs, Instruction{Op: op, BoolVal: v})
	return len(b.instrs) - 1
}

// EmitString appends an opcode with a string operand.
func (b *Builder) EmitString(op Opcode, s string) int {
	b.instrs = append(b.instrs, Instruction{Op: op, StrVal: s})
	return len(b.instrs) - 1
}

// EmitCall appends a CALL with a name and argument count.
func (b *Builder) EmitCall(name string, argc int32) int {
	b.instrs = append(b.instrs, Instruction{Op: OpCall, StrVal: name, IntVal: argc})
	return len(b.instrs) - 1
}

// EmitMethod appends a DECLARE_METHOD entry.
func (b *Builder) EmitMethod(name string, addr int32, constructor bool) int {
	b.instrs = append(b.instrs, Instruction{Op: OpDeclareMethod, StrVal: name, IntVal: addr, BoolVal: constructor})
	return len(b.instrs) - 1
}

// PatchJump rewrites the jump at pos to land on target.
func (b *Builder) PatchJump(pos, target int) {
	b.instrs[pos].IntVal = int32(target - pos - 1)
}
