package pool

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

// Pool executes bundle builds in order of their deadlines, using a fixed
// number of goroutines. Tasks are added with a function that returns the next
// deadline; a zero deadline removes the task. If a task is added while the
// pool is waiting for the next task, it will wake up the waiting goroutine to
// process the new task immediately. The goroutines exit once the context
// passed to New is done.
type Pool struct {
	mu    sync.Mutex
	queue []*task
	reg   map[string]*task
	wait  chan struct{}
	wg    sync.WaitGroup
}

type task struct {
	name     string
	fn       func(context.Context) time.Time
	deadline time.Time
	rerun    bool
}

func New(ctx context.Context, workers int) *Pool {
	pool := Pool{reg: make(map[string]*task)}

	for range max(workers, 1) {
		pool.wg.Go(func() { pool.work(ctx) })
	}

	return &pool
}

func (p *Pool) Add(name string, fn func(context.Context) time.Time) {
	p.enqueue(&task{name: name, fn: fn, deadline: time.Now()})
}

// Wait blocks until every goroutine has exited, which happens once the
// context passed to New is done and running tasks have returned.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// work is the main loop for each worker goroutine.
func (p *Pool) work(ctx context.Context) {
	for {
		t := p.dequeue(ctx)
		if t == nil {
			return
		}
		p.reschedule(t, t.fn(ctx))
	}
}

// Trigger runs the named task NOW, if it is in the queue, regardless of the
// previous deadline, by pulling it into the front of the queue. If the named
// task is not queued, it's running. In that case, we'll have it override its
// next deadline to NOW, causing an immediate re-run after the current run.
// Subsequent runs will use the deadline returned by the task's `fn`.
func (p *Pool) Trigger(n string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if i := slices.IndexFunc(p.queue, func(t *task) bool { return t.name == n }); i != -1 {
		p.queue[i].deadline = time.Now()
		p.sortAndWake()
		return nil
	}
	// if it's not in p.queue, it must be running at the moment
	if t, ok := p.reg[n]; ok {
		t.rerun = true
		return nil
	}

	return fmt.Errorf("no task with name %s", n)
}

// sortAndWake is used in multiple places, but always needs to be run
// within a p.mu lock!
func (p *Pool) sortAndWake() {
	// Maintain the tasks in deadline order.
	slices.SortFunc(p.queue, func(a, b *task) int {
		return a.deadline.Compare(b.deadline)
	})

	// Wake up any waiting goroutine.
	if p.wait != nil {
		close(p.wait)
		p.wait = nil
	}
}

func (p *Pool) enqueue(t *task) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.enqueueLocked(t)
}

// reschedule queues t again after a run. A trigger received while it ran
// moves the deadline to now, unless the task asked to be removed.
func (p *Pool) reschedule(t *task, deadline time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t.deadline = deadline
	if t.rerun {
		t.rerun = false
		if !deadline.IsZero() {
			t.deadline = time.Now()
		}
	}
	p.enqueueLocked(t)
}

func (p *Pool) enqueueLocked(t *task) {
	if t.deadline.IsZero() {
		// Task requested removal from the pool.
		delete(p.reg, t.name)
		return
	}

	p.reg[t.name] = t
	p.queue = append(p.queue, t)
	p.sortAndWake()
}

// dequeue blocks until the earliest task is due and returns it, or returns
// nil once ctx is done.
func (p *Pool) dequeue(ctx context.Context) *task {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if ctx.Err() != nil {
			return nil
		}

		var t *task
		if len(p.queue) == 0 {
			t = &task{name: "dummy", deadline: time.Now().Add(time.Hour * 24 * 365)} // Default to a far future deadline
		} else {
			t = p.queue[0]
		}

		if t.deadline.After(time.Now()) {
			// Task is not ready yet, wait for it to be executed or another (potentially earlier) task to arrive.

			if p.wait == nil {
				p.wait = make(chan struct{})
			}

			wait := p.wait

			p.mu.Unlock()

			select {
			case <-time.After(time.Until(t.deadline)):
			case <-wait:
			case <-ctx.Done():
			}

			p.mu.Lock()
			continue
		}

		// The first queued task is ready to be executed, remove it from the queue.
		break
	}

	var t *task
	t, p.queue = p.queue[0], p.queue[1:]
	return t
}
