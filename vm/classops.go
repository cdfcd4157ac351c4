package vm

// ---------------------------------------------------------------------------
// Class declaration opcodes
// ---------------------------------------------------------------------------

// execBeginClass scans the class body that starts at the current instruction
// (SET_SUPERCLASS, DECLARE_FIELD, and DECLARE_METHOD entries up to the
// matching END_CLASS), registers the class, and resumes past the body. The
// superclass, when named, must already be registered.
func (vm *VM) execBeginClass(c *ExecutionContext, in Instruction) error {
	var super *ClassDefinition

	// First pass: find the superclass link so field/method entries attach to
	// a fully formed definition.
	end := -1
	for pos := c.ip; pos < len(vm.program); pos++ {
		entry := vm.program[pos]
		if entry.Op == OpEndClass {
			end = pos
			break
		}
		if entry.Op == OpSetSuperclass {
			s, ok := vm.reg.Class(entry.StrVal)
			if !ok {
				return &LookupError{What: "class", Name: entry.StrVal}
			}
			super = s
		}
	}
	if end < 0 {
		return typeErrorf("class %s: missing END_CLASS", in.StrVal)
	}

	class := NewClassDefinition(in.StrVal, super)
	for pos := c.ip; pos < end; pos++ {
		entry := vm.program[pos]
		switch entry.Op {
		case OpSetSuperclass:
			// Handled above.
		case OpDeclareField:
			class.AddField(&FieldDefinition{
				Name: entry.StrVal,
				Type: TypeForKind(Kind(entry.IntVal)),
			})
		case OpDeclareMethod:
			impl, err := vm.scanFunction(int(entry.IntVal))
			if err != nil {
				return typeErrorf("class %s, method %s: %s", in.StrVal, entry.StrVal, err.Error())
			}
			impl.Name = entry.StrVal
			impl.Owner = in.StrVal
			impl.IsConstructor = entry.BoolVal
			class.AddMethod(&MethodDefinition{Name: entry.StrVal, Impl: impl})
		default:
			return typeErrorf("unexpected %s in class %s body", entry.Op, in.StrVal)
		}
	}

	vm.reg.RegisterClass(class)
	c.ip = end + 1
	return nil
}

// ---------------------------------------------------------------------------
// Instance opcodes
// ---------------------------------------------------------------------------

// execLoadThis pushes the active method frame's receiver.
func (vm *VM) execLoadThis(c *ExecutionContext) error {
	frame, ok := c.currentFrame()
	if !ok || frame.Receiver == nil {
		return typeErrorf("LOAD_THIS outside a method body")
	}
	c.push(frame.Receiver.Retain())
	return nil
}

// execProperty handles GET_PROPERTY and SET_PROPERTY. Reads of declared but
// unset fields yield nil; writes to undeclared names create dynamic fields.
func (vm *VM) execProperty(c *ExecutionContext, in Instruction) error {
	if in.Op == OpGetProperty {
		obj, err := c.pop("GET_PROPERTY")
		if err != nil {
			return err
		}
		defer obj.Release()
		if obj.Kind() != KindObject {
			return typeErrorf("cannot read field %q of %s", in.StrVal, obj.Type())
		}
		v, err := obj.Object().GetField(in.StrVal)
		if err != nil {
			return err
		}
		if v == nil {
			c.push(vm.region.Nil())
		} else {
			c.push(v.Retain())
		}
		return nil
	}

	obj, val, err := c.pop2("SET_PROPERTY")
	if err != nil {
		return err
	}
	defer obj.Release()
	defer val.Release()
	if obj.Kind() != KindObject {
		return typeErrorf("cannot write field %q of %s", in.StrVal, obj.Type())
	}
	obj.Object().SetField(in.StrVal, val)
	return nil
}
