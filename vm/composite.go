package vm

import "strconv"

// ---------------------------------------------------------------------------
// Composite opcodes
// ---------------------------------------------------------------------------

// execComposite handles list, dictionary, indexing, and range construction.
func (vm *VM) execComposite(c *ExecutionContext, in Instruction) error {
	switch in.Op {
	case OpCreateList:
		return vm.execCreateList(c, int(in.IntVal))
	case OpListAppend:
		return vm.execListAppend(c)
	case OpCreateDict:
		return vm.execCreateDict(c, int(in.IntVal))
	case OpDictSet:
		return vm.execDictSet(c)
	case OpGetIndex:
		return vm.execGetIndex(c)
	case OpSetIndex:
		return vm.execSetIndex(c)
	case OpCreateRange:
		return vm.execCreateRange(c, in.BoolVal)
	}
	return typeErrorf("unexpected composite opcode %s", in.Op)
}

// execCreateList pops n elements and pushes a list of them. The element type
// is the shared type when every element agrees, Any otherwise.
func (vm *VM) execCreateList(c *ExecutionContext, n int) error {
	elems, err := c.popArgs(n, "CREATE_LIST")
	if err != nil {
		return err
	}
	elemType := AnyType
	if n > 0 {
		elemType = elems[0].Type()
		for _, e := range elems[1:] {
			if !e.Type().Equals(elemType) {
				elemType = AnyType
				break
			}
		}
	}
	list := vm.region.NewList(elemType, elems...)
	releaseAll(elems)
	c.push(list)
	return nil
}

// execListAppend pops a value and a list, appends, and pushes the list back.
func (vm *VM) execListAppend(c *ExecutionContext) error {
	lst, val, err := c.pop2("LIST_APPEND")
	if err != nil {
		return err
	}
	if lst.Kind() != KindList {
		val.Release()
		lst.Release()
		return typeErrorf("LIST_APPEND on %s", lst.Type())
	}
	lst.list = append(lst.list, val)
	c.push(lst)
	return nil
}

// execCreateDict pops n key/value pairs and pushes a dictionary.
func (vm *VM) execCreateDict(c *ExecutionContext, n int) error {
	entries, err := c.popArgs(2*n, "CREATE_DICT")
	if err != nil {
		return err
	}
	d := vm.region.NewDictValue(AnyType, AnyType)
	for i := 0; i < len(entries); i += 2 {
		if err := d.dict.Set(entries[i], entries[i+1]); err != nil {
			releaseAll(entries)
			d.Release()
			return err
		}
	}
	releaseAll(entries)
	c.push(d)
	return nil
}

// execDictSet pops a value, a key, and a dictionary, stores the entry, and
// pushes the dictionary back.
func (vm *VM) execDictSet(c *ExecutionContext) error {
	val, err := c.pop("DICT_SET")
	if err != nil {
		return err
	}
	d, key, err := c.pop2("DICT_SET")
	if err != nil {
		val.Release()
		return err
	}
	if d.Kind() != KindDict {
		val.Release()
		key.Release()
		d.Release()
		return typeErrorf("DICT_SET on %s", d.Type())
	}
	err = d.dict.Set(key, val)
	val.Release()
	key.Release()
	if err != nil {
		d.Release()
		return err
	}
	c.push(d)
	return nil
}

// execGetIndex pops an index and a container and pushes the element. List
// indices must be in-range integers; a missing dictionary key is a
// LookupError, same as an out-of-range index.
func (vm *VM) execGetIndex(c *ExecutionContext) error {
	container, index, err := c.pop2("GET_INDEX")
	if err != nil {
		return err
	}
	defer container.Release()
	defer index.Release()

	switch container.Kind() {
	case KindList:
		i, err := listIndex(index, len(container.list))
		if err != nil {
			return err
		}
		c.push(container.list[i].Retain())
		return nil
	case KindDict:
		v, ok := container.dict.Get(index)
		if !ok {
			return &LookupError{What: "key", Name: index.Format()}
		}
		c.push(v.Retain())
		return nil
	case KindString:
		i, err := listIndex(index, len(container.s))
		if err != nil {
			return err
		}
		c.push(vm.region.String(container.s[i : i+1]))
		return nil
	}
	return typeErrorf("cannot index %s", container.Type())
}

// execSetIndex pops a value, an index, and a container, stores the element,
// and pushes the container back.
func (vm *VM) execSetIndex(c *ExecutionContext) error {
	val, err := c.pop("SET_INDEX")
	if err != nil {
		return err
	}
	container, index, err := c.pop2("SET_INDEX")
	if err != nil {
		val.Release()
		return err
	}

	switch container.Kind() {
	case KindList:
		i, err := listIndex(index, len(container.list))
		index.Release()
		if err != nil {
			val.Release()
			container.Release()
			return err
		}
		container.list[i].Release()
		container.list[i] = val
		c.push(container)
		return nil
	case KindDict:
		err := container.dict.Set(index, val)
		index.Release()
		val.Release()
		if err != nil {
			container.Release()
			return err
		}
		c.push(container)
		return nil
	}
	index.Release()
	val.Release()
	defer container.Release()
	return typeErrorf("cannot index-assign %s", container.Type())
}

// listIndex validates an integer index against a length.
func listIndex(index *Value, length int) (int, error) {
	if !index.Kind().IsInteger() {
		return 0, typeErrorf("index must be an integer, got %s", index.Type())
	}
	n, err := castNumeric(index.numeric(), KindInt64)
	if err != nil {
		return 0, err
	}
	if n.i < 0 || n.i >= int64(length) {
		return 0, &LookupError{What: "index", Name: strconv.FormatInt(n.i, 10)}
	}
	return int(n.i), nil
}

// execCreateRange pops step, end, and start and pushes the arithmetic
// progression as an Int64 list. A zero step is an error; when the step's
// sign cannot reach end from start the range is empty, not an error.
func (vm *VM) execCreateRange(c *ExecutionContext, inclusive bool) error {
	step, err := c.pop("CREATE_RANGE")
	if err != nil {
		return err
	}
	start, end, err := c.pop2("CREATE_RANGE")
	if err != nil {
		step.Release()
		return err
	}
	defer start.Release()
	defer end.Release()
	defer step.Release()

	s, err := rangeBound(start)
	if err != nil {
		return err
	}
	e, err := rangeBound(end)
	if err != nil {
		return err
	}
	st, err := rangeBound(step)
	if err != nil {
		return err
	}
	if st == 0 {
		return arithErrorf("range step must not be zero")
	}

	var elems []*Value
	if st > 0 {
		for i := s; i < e || (inclusive && i == e); i += st {
			elems = append(elems, vm.region.Int64(i))
		}
	} else {
		for i := s; i > e || (inclusive && i == e); i += st {
			elems = append(elems, vm.region.Int64(i))
		}
	}
	list := vm.region.NewList(Int64Type, elems...)
	releaseAll(elems)
	c.push(list)
	return nil
}

// rangeBound coerces a range operand to int64.
func rangeBound(v *Value) (int64, error) {
	if !v.Kind().IsInteger() {
		return 0, typeErrorf("range bounds must be integers, got %s", v.Type())
	}
	n, err := castNumeric(v.numeric(), KindInt64)
	if err != nil {
		return 0, err
	}
	return n.i, nil
}

// ---------------------------------------------------------------------------
// Iteration opcodes
// ---------------------------------------------------------------------------

// execIteration handles iterator construction and advancement. The
// advancement opcodes peek the iterator rather than popping it, so loop
// bodies keep it resident beneath their working values.
func (vm *VM) execIteration(c *ExecutionContext, in Instruction) error {
	if in.Op == OpGetIterator {
		backing, err := c.pop("GET_ITERATOR")
		if err != nil {
			return err
		}
		iter, err := vm.region.NewIterator(backing)
		backing.Release()
		if err != nil {
			return err
		}
		c.push(iter)
		return nil
	}

	v, err := c.peek(0, in.Op.String())
	if err != nil {
		return err
	}
	if v.Kind() != KindIterator {
		return typeErrorf("%s on %s", in.Op, v.Type())
	}
	it := v.IteratorValue()

	switch in.Op {
	case OpIterHasNext:
		c.push(vm.region.Bool(it.HasNext()))
		return nil
	case OpIterNext:
		next, err := it.Next()
		if err != nil {
			return err
		}
		c.push(next.Retain())
		return nil
	case OpIterNextKeyValue:
		k, val, err := it.NextKeyValue(vm.region)
		if err != nil {
			return err
		}
		c.push(k)
		c.push(val)
		return nil
	}
	return typeErrorf("unexpected iteration opcode %s", in.Op)
}
