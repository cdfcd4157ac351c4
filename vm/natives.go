package vm

import (
	"fmt"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Built-in natives
// ---------------------------------------------------------------------------

// registerBuiltins installs the standard native functions. Hosts may replace
// any of them through RegisterNative.
func (vm *VM) registerBuiltins() {
	vm.RegisterNative("print", func(r *Region, args []*Value) (*Value, error) {
		fmt.Fprint(vm.stdout, formatArgs(args))
		return nil, nil
	})

	vm.RegisterNative("println", func(r *Region, args []*Value) (*Value, error) {
		fmt.Fprintln(vm.stdout, formatArgs(args))
		return nil, nil
	})

	vm.RegisterNative("len", func(r *Region, args []*Value) (*Value, error) {
		if len(args) != 1 {
			return nil, typeErrorf("len expects 1 argument, got %d", len(args))
		}
		v := args[0]
		switch v.Kind() {
		case KindString:
			return r.Int64(int64(len(v.Str()))), nil
		case KindList:
			return r.Int64(int64(len(v.List()))), nil
		case KindDict:
			return r.Int64(int64(v.DictValue().Len())), nil
		}
		return nil, typeErrorf("len of %s", v.Type())
	})

	vm.RegisterNative("typeOf", func(r *Region, args []*Value) (*Value, error) {
		if len(args) != 1 {
			return nil, typeErrorf("typeOf expects 1 argument, got %d", len(args))
		}
		return r.String(args[0].Type().String()), nil
	})

	vm.RegisterNative("toString", func(r *Region, args []*Value) (*Value, error) {
		if len(args) != 1 {
			return nil, typeErrorf("toString expects 1 argument, got %d", len(args))
		}
		return r.String(args[0].Format()), nil
	})

	vm.RegisterNative("range", func(r *Region, args []*Value) (*Value, error) {
		if len(args) < 2 || len(args) > 3 {
			return nil, typeErrorf("range expects 2 or 3 arguments, got %d", len(args))
		}
		start, err := rangeBound(args[0])
		if err != nil {
			return nil, err
		}
		end, err := rangeBound(args[1])
		if err != nil {
			return nil, err
		}
		step := int64(1)
		if len(args) == 3 {
			if step, err = rangeBound(args[2]); err != nil {
				return nil, err
			}
		}
		if step == 0 {
			return nil, arithErrorf("range step must not be zero")
		}
		var elems []*Value
		if step > 0 {
			for i := start; i < end; i += step {
				elems = append(elems, r.Int64(i))
			}
		} else {
			for i := start; i > end; i += step {
				elems = append(elems, r.Int64(i))
			}
		}
		list := r.NewList(Int64Type, elems...)
		releaseAll(elems)
		return list, nil
	})

	vm.RegisterNative("sleep", func(r *Region, args []*Value) (*Value, error) {
		if len(args) != 1 || !args[0].Kind().IsNumeric() {
			return nil, typeErrorf("sleep expects 1 numeric argument (milliseconds)")
		}
		ms, err := castNumeric(args[0].numeric(), KindInt64)
		if err != nil {
			return nil, err
		}
		if ms.i > 0 {
			time.Sleep(time.Duration(ms.i) * time.Millisecond)
		}
		return nil, nil
	})
}

// formatArgs renders native print arguments separated by single spaces.
func formatArgs(args []*Value) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = a.Format()
	}
	return strings.Join(parts, " ")
}
