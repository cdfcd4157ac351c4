package vm

import "sync"

// ---------------------------------------------------------------------------
// Pool: fixed-size worker pool for parallel blocks
// ---------------------------------------------------------------------------

// Pool runs submitted tasks on a fixed set of worker goroutines. A pool is
// started and drained per parallel block; workers pull tasks until the queue
// closes.
type Pool struct {
	tasks chan func()
	wg    sync.WaitGroup
}

// NewPool starts a pool with n workers. n is clamped to at least one.
func NewPool(n int) *Pool {
	if n < 1 {
		n = 1
	}
	p := &Pool{tasks: make(chan func(), n)}
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

// Submit queues one task. Blocks when the queue is full.
func (p *Pool) Submit(task func()) {
	p.tasks <- task
}

// Drain closes the queue and waits for every submitted task to finish.
func (p *Pool) Drain() {
	close(p.tasks)
	p.wg.Wait()
}
