package vm

import "fmt"

// ---------------------------------------------------------------------------
// Parallel block opcodes
// ---------------------------------------------------------------------------

// execParallel handles BEGIN_PARALLEL and BEGIN_CONCURRENT. The instruction
// announces how many TASK entries follow; each names the start address of
// one task body ending in END_TASK. Every task runs in a fresh execution
// context on a pool of the given width, and the block does not complete
// until every task has. The first task failure aborts the whole run after
// the drain.
func (vm *VM) execParallel(c *ExecutionContext, in Instruction, workers int) error {
	n := int(in.IntVal)
	if n < 0 {
		return typeErrorf("%s with negative task count %d", in.Op, n)
	}

	starts := make([]int, 0, n)
	for i := 0; i < n; i++ {
		pos := c.ip + i
		if pos >= len(vm.program) || vm.program[pos].Op != OpTask {
			return typeErrorf("%s announces %d tasks but entry %d is not TASK", in.Op, n, i)
		}
		starts = append(starts, int(vm.program[pos].IntVal))
	}
	c.ip += n

	if n == 0 {
		return nil
	}

	contexts := make([]*ExecutionContext, n)
	pool := NewPool(workers)
	for i, start := range starts {
		id := int(vm.nextCtxID.Add(1))
		tc := newContext(id, start, NewEnvironment(vm.global))
		contexts[i] = tc
		vm.track(tc)
		pool.Submit(func() {
			vm.runTask(tc)
		})
	}
	pool.Drain()

	var firstErr error
	for _, tc := range contexts {
		if tc.lastErr != nil {
			vm.log.Errorf("task context %d failed: %s", tc.id, tc.lastErr.Error())
			if firstErr == nil {
				firstErr = fmt.Errorf("task context %d: %w", tc.id, tc.lastErr)
			}
		}
		vm.untrack(tc)
	}
	return firstErr
}

// runTask drives one task context to completion, recording any failure in
// the context's error slot. The task's scope and stack are torn down either
// way; values live on in the shared region.
func (vm *VM) runTask(c *ExecutionContext) {
	err := vm.runContext(c)
	if err != nil {
		c.lastErr = err
	}
	c.truncate(0)
	c.env.Release()
}

// ExecuteTask runs the task body at the given address in a fresh context and
// returns its error slot. Used by hosts that schedule task bodies directly.
func (vm *VM) ExecuteTask(startAddr int) error {
	id := int(vm.nextCtxID.Add(1))
	c := newContext(id, startAddr, NewEnvironment(vm.global))
	vm.track(c)
	defer vm.untrack(c)
	vm.runTask(c)
	return c.lastErr
}
