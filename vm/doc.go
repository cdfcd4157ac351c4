// Package vm implements the Veld virtual machine.
//
// This package contains:
//   - Tagged value representation and the numeric conversion rules
//   - Region-based allocation with reference-counted value handles
//   - Chained lexical environments
//   - Class definitions, instances, and inheritance-aware dispatch
//   - Bytecode instruction set and interpreter
//   - Per-context execution state for parallel/concurrent blocks
package vm
