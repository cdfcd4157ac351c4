package vm

import "strings"

// ---------------------------------------------------------------------------
// Function registration
// ---------------------------------------------------------------------------

// scanFunction reads a function header starting at a BEGIN_FUNCTION entry:
// the PARAM run that follows, then the body, up to the matching END_FUNCTION.
// Nested BEGIN_FUNCTION/END_FUNCTION pairs inside the body are skipped.
func (vm *VM) scanFunction(addr int) (*FunctionImpl, error) {
	if addr < 0 || addr >= len(vm.program) || vm.program[addr].Op != OpBeginFunction {
		return nil, typeErrorf("no function header at %d", addr)
	}
	head := vm.program[addr]
	impl := &FunctionImpl{Name: head.StrVal, StartAddr: addr + 1}

	pos := addr + 1
	seenOptional := false
	for pos < len(vm.program) && vm.program[pos].Op == OpParam {
		p := vm.program[pos]
		if p.BoolVal {
			seenOptional = true
		} else if seenOptional {
			return nil, typeErrorf("function %s: required parameter %q after an optional one", head.StrVal, p.StrVal)
		}
		impl.Params = append(impl.Params, Param{Name: p.StrVal, Optional: p.BoolVal})
		pos++
	}
	impl.StartAddr = pos

	depth := 0
	for ; pos < len(vm.program); pos++ {
		switch vm.program[pos].Op {
		case OpBeginFunction:
			depth++
		case OpEndFunction:
			if depth == 0 {
				impl.EndAddr = pos
				return impl, nil
			}
			depth--
		}
	}
	return nil, typeErrorf("function %s: missing END_FUNCTION", head.StrVal)
}

// execBeginFunction registers the function whose header starts at the
// current instruction, then jumps execution past its body.
func (vm *VM) execBeginFunction(c *ExecutionContext, in Instruction) error {
	impl, err := vm.scanFunction(c.ip - 1)
	if err != nil {
		return err
	}
	if int32(len(impl.Params)) != in.IntVal {
		return typeErrorf("function %s: header declares %d parameters, found %d", in.StrVal, in.IntVal, len(impl.Params))
	}
	vm.reg.RegisterFunction(impl)
	c.ip = impl.EndAddr + 1
	return nil
}

// ---------------------------------------------------------------------------
// CALL resolution
// ---------------------------------------------------------------------------

// execCall resolves a CALL through, in order: method dispatch for
// "."-prefixed names, instance construction for class names, registered
// bytecode functions, native functions, and finally bare jump-target
// functions. An unresolvable name is a LookupError.
func (vm *VM) execCall(c *ExecutionContext, in Instruction) error {
	name := in.StrVal
	argc := int(in.IntVal)

	if strings.HasPrefix(name, "super.") {
		return vm.callSuper(c, name[len("super."):], argc)
	}
	if strings.HasPrefix(name, ".") {
		return vm.callMethod(c, name[1:], argc)
	}
	if class, ok := vm.reg.Class(name); ok {
		return vm.callConstructor(c, class, argc)
	}
	if impl, ok := vm.reg.Function(name); ok {
		return vm.callFunction(c, impl, argc, nil, false)
	}
	if fn, ok := vm.reg.Native(name); ok {
		return vm.callNative(c, name, fn, argc)
	}
	if addr, ok := vm.reg.UserFunction(name); ok {
		c.pushFrame(&CallFrame{
			FunctionName: name,
			ReturnAddr:   c.ip,
			SavedEnv:     c.env,
			BaseSP:       len(c.stack) - argc,
		})
		c.env = NewEnvironment(vm.global)
		c.ip = addr
		return nil
	}
	return &LookupError{What: "function", Name: name}
}

// popArgs removes argc arguments from the stack, returned in call order.
func (c *ExecutionContext) popArgs(argc int, op string) ([]*Value, error) {
	if len(c.stack) < argc {
		return nil, &StackUnderflowError{Op: op}
	}
	args := make([]*Value, argc)
	copy(args, c.stack[len(c.stack)-argc:])
	c.stack = c.stack[:len(c.stack)-argc]
	return args, nil
}

func releaseAll(vals []*Value) {
	for _, v := range vals {
		v.Release()
	}
}

// callFunction enters a registered bytecode function: validates the argument
// count, binds parameters in a fresh scope whose parent is the global scope,
// fills omitted optional parameters with nil, and pushes the call frame.
func (vm *VM) callFunction(c *ExecutionContext, impl *FunctionImpl, argc int, receiver *Value, construct bool) error {
	required := impl.RequiredParams()
	if argc < required || argc > len(impl.Params) {
		if required == len(impl.Params) {
			return typeErrorf("%s expects %d arguments, got %d", impl.Name, required, argc)
		}
		return typeErrorf("%s expects %d to %d arguments, got %d", impl.Name, required, len(impl.Params), argc)
	}

	args, err := c.popArgs(argc, "CALL "+impl.Name)
	if err != nil {
		return err
	}

	fnEnv := NewEnvironment(vm.global)
	for i, p := range impl.Params {
		var v *Value
		if i < len(args) {
			v = args[i]
		} else if p.Default != nil {
			v = p.Default
		} else {
			v = vm.region.Nil()
		}
		fnEnv.Define(p.Name, v)
	}
	releaseAll(args)

	c.pushFrame(&CallFrame{
		FunctionName: impl.Name,
		Impl:         impl,
		ReturnAddr:   c.ip,
		SavedEnv:     c.env,
		Receiver:     receiver,
		BaseSP:       len(c.stack),
		Construct:    construct,
	})
	c.env = fnEnv
	c.ip = impl.StartAddr
	return nil
}

// callNative invokes a host function and pushes its result. The native owns
// the reference it returns; a nil result becomes the nil value.
func (vm *VM) callNative(c *ExecutionContext, name string, fn NativeFunc, argc int) error {
	args, err := c.popArgs(argc, "CALL "+name)
	if err != nil {
		return err
	}
	result, err := fn(vm.region, args)
	if err != nil {
		releaseAll(args)
		return err
	}
	if result == nil {
		result = vm.region.Nil()
	} else if containsValue(args, result) {
		result.Retain()
	}
	releaseAll(args)
	c.push(result)
	return nil
}

func containsValue(vals []*Value, v *Value) bool {
	for _, x := range vals {
		if x == v {
			return true
		}
	}
	return false
}

// callMethod dispatches a method on the receiver beneath the arguments:
// stack layout is receiver, then argc arguments on top. The receiver is
// lifted out of the stack and travels on the call frame instead.
func (vm *VM) callMethod(c *ExecutionContext, name string, argc int) error {
	recv, err := c.peek(argc, "CALL ."+name)
	if err != nil {
		return err
	}
	if recv.Kind() != KindObject || recv.Object().Class == nil {
		return typeErrorf("cannot call method %q on %s", name, recv.Type())
	}
	method, ok := recv.Object().Class.ResolveMethod(name)
	if !ok {
		return &LookupError{What: "method", Name: recv.Object().Class.Name + "." + name}
	}

	idx := len(c.stack) - 1 - argc
	c.stack = append(c.stack[:idx], c.stack[idx+1:]...)
	if err := vm.invokeMethod(c, recv, method, name, argc); err != nil {
		recv.Release()
		return err
	}
	return nil
}

// callSuper dispatches a method starting above the declaring class of the
// currently running method. The receiver is the active frame's, not popped
// from the stack.
func (vm *VM) callSuper(c *ExecutionContext, name string, argc int) error {
	frame, ok := c.currentFrame()
	if !ok || frame.Receiver == nil {
		return typeErrorf("super.%s outside a method body", name)
	}
	recv := frame.Receiver

	start := recv.Object().Class
	if frame.Impl != nil && frame.Impl.Owner != "" {
		if owner, ok := vm.reg.Class(frame.Impl.Owner); ok {
			start = owner
		}
	}
	if start.Super == nil {
		return &LookupError{What: "method", Name: "super." + name}
	}
	method, ok := start.Super.ResolveMethod(name)
	if !ok {
		return &LookupError{What: "method", Name: "super." + name}
	}
	recv.Retain()
	if err := vm.invokeMethod(c, recv, method, name, argc); err != nil {
		recv.Release()
		return err
	}
	return nil
}

// invokeMethod enters a resolved method. The receiver reference is owned by
// the new call frame and released when the frame returns.
func (vm *VM) invokeMethod(c *ExecutionContext, recv *Value, method *MethodDefinition, name string, argc int) error {
	if method.Abstract || method.Impl == nil {
		return typeErrorf("call to abstract method %q", name)
	}
	return vm.callFunction(c, method.Impl, argc, recv, false)
}

// callConstructor builds a new instance of the class and runs its
// constructor, if any. The instance is the call's result either way.
func (vm *VM) callConstructor(c *ExecutionContext, class *ClassDefinition, argc int) error {
	instance := class.CreateInstance(vm.region)

	ctor, ok := class.Constructor()
	if !ok {
		if argc != 0 {
			instance.Release()
			return typeErrorf("%s has no constructor but was called with %d arguments", class.Name, argc)
		}
		c.push(instance)
		return nil
	}
	if err := vm.callFunction(c, ctor, argc, instance, true); err != nil {
		instance.Release()
		return err
	}
	return nil
}

// ---------------------------------------------------------------------------
// RETURN
// ---------------------------------------------------------------------------

// execReturn leaves the innermost frame: captures the result (the value above
// the frame base, or nil), rebalances the stack to the frame base, restores
// the caller's scope, and resumes at the return address. With no frame left
// the context halts and the stack is left as-is for the host to inspect.
func (vm *VM) execReturn(c *ExecutionContext) error {
	frame, ok := c.popFrame()
	if !ok {
		c.halted = true
		return nil
	}

	var result *Value
	if len(c.stack) > frame.BaseSP {
		v, err := c.pop("RETURN")
		if err != nil {
			return err
		}
		result = v
	}
	c.truncate(frame.BaseSP)

	// Unwind scopes the body opened, then restore the caller's.
	for c.env != frame.SavedEnv && c.env != vm.global && c.env != nil {
		old := c.env
		c.env = old.Parent()
		old.Release()
	}
	c.env = frame.SavedEnv

	if frame.Construct {
		if result != nil {
			result.Release()
		}
		c.push(frame.Receiver)
	} else {
		if result == nil {
			result = vm.region.Nil()
		}
		c.push(result)
		if frame.Receiver != nil {
			frame.Receiver.Release()
		}
	}

	c.ip = frame.ReturnAddr
	return nil
}
