package vm

import "fmt"

// ---------------------------------------------------------------------------
// Error taxonomy
// ---------------------------------------------------------------------------
//
// Every runtime failure falls into one of five categories. The engine has no
// internal recovery: any of these aborts the enclosing Run, is reported by
// Execute through the VM logger, and surfaces as a nil result.

// StackUnderflowError reports a pop or peek past the operand stack's depth.
type StackUnderflowError struct {
	Op string // the operation that underflowed
}

func (e *StackUnderflowError) Error() string {
	return fmt.Sprintf("stack underflow in %s", e.Op)
}

// TypeError reports incompatible operand types for an operator or a failed
// conversion.
type TypeError struct {
	Msg string
}

func (e *TypeError) Error() string {
	return "type error: " + e.Msg
}

func typeErrorf(format string, args ...interface{}) *TypeError {
	return &TypeError{Msg: fmt.Sprintf(format, args...)}
}

// OverflowError reports a numeric cast whose source value cannot be
// represented exactly in the destination width.
type OverflowError struct {
	From string // source type name
	To   string // destination type name
	Text string // textual form of the offending value
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("overflow converting %s from %s to %s", e.Text, e.From, e.To)
}

// LookupError reports an unresolvable name: variable, function, method,
// class, dictionary key, or list index.
type LookupError struct {
	What string // "variable", "function", "method", "field", "key", "index", ...
	Name string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.What, e.Name)
}

// ArithmeticError reports division or modulo by zero, or signed overflow in
// add/subtract/multiply/divide/negate.
type ArithmeticError struct {
	Msg string
}

func (e *ArithmeticError) Error() string {
	return "arithmetic error: " + e.Msg
}

func arithErrorf(format string, args ...interface{}) *ArithmeticError {
	return &ArithmeticError{Msg: fmt.Sprintf(format, args...)}
}

// NotImplementedError reports an opcode reserved for an unported language
// feature. These fail loudly at the instruction, not at some later call.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return "not implemented: " + e.Feature
}
