// Package sched implements the work-stealing task scheduler that runs
// the continuations produced by operation dispatch. A fixed pool of
// workers each owns a bounded ring queue; pushes that exceed a ring's
// capacity land on a shared overflow queue, and idle workers drain the
// overflow queue before stealing from peers. Every task submitted while
// the pool is running executes exactly once.
package sched

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// Task is a nullary unit of work. It captures everything it needs
// (dispatch context, inputs, output futures) at creation time.
type Task func()

var (
	// ErrShutdown is returned by Submit once the pool stopped accepting work.
	ErrShutdown = errors.New("sched: pool is shut down")
	// ErrNilTask is returned by Submit for a nil task.
	ErrNilTask = errors.New("sched: nil task")
)

const (
	stateRunning int32 = iota
	stateDraining
	stateStopped
)

// stealRounds bounds how many full sweeps over the peer queues a worker
// makes before parking.
const stealRounds = 2

// Pool is a fixed-size work-stealing worker pool.
type Pool struct {
	workers []*worker

	overflowMu sync.Mutex
	overflow   []Task

	parkMu   sync.Mutex
	parkCond *sync.Cond
	wakeSeq  atomic.Uint64
	waiting  atomic.Int32

	state      atomic.Int32
	pending    atomic.Int64
	nextWorker atomic.Uint64
	wg         sync.WaitGroup
}

type worker struct {
	id   int
	pool *Pool
	q    *taskQueue
}

// NewPool starts numWorkers workers, each with a local queue of
// queueCapacity tasks (power of two). Zero values select runtime.NumCPU
// workers and the default capacity of 1024.
func NewPool(numWorkers, queueCapacity int) *Pool {
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if queueCapacity <= 0 {
		queueCapacity = defaultQueueCapacity
	}

	p := &Pool{workers: make([]*worker, numWorkers)}
	p.parkCond = sync.NewCond(&p.parkMu)
	p.state.Store(stateRunning)

	for i := range p.workers {
		p.workers[i] = &worker{id: i, pool: p, q: newTaskQueue(queueCapacity)}
	}
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *worker) {
			defer p.wg.Done()
			w.run()
		}(w)
	}

	log.Debug().Int("workers", numWorkers).Int("queue_capacity", queueCapacity).Msg("Scheduler pool started")
	return p
}

// Workers returns the worker count.
func (p *Pool) Workers() int { return len(p.workers) }

// Pending returns the number of submitted tasks that have not finished.
func (p *Pool) Pending() int64 { return p.pending.Load() }

// Submit enqueues a task for execution. It never blocks beyond the
// overflow-queue lock and never runs the task inline. Tasks submitted
// after Shutdown are rejected.
func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	if p.state.Load() != stateRunning {
		return ErrShutdown
	}

	p.pending.Add(1)
	tasksSubmitted.Inc()

	i := int(p.nextWorker.Add(1)) % len(p.workers)
	p.submitTo(i, task)
	return nil
}

// submitTo pushes onto a specific worker's queue, spilling to the
// overflow queue when the ring is full.
func (p *Pool) submitTo(i int, task Task) {
	if !p.workers[i].q.push(task) {
		p.overflowMu.Lock()
		p.overflow = append(p.overflow, task)
		p.overflowMu.Unlock()
		overflowPushes.Inc()
	}
	p.wake()
}

func (p *Pool) popOverflow() (Task, bool) {
	p.overflowMu.Lock()
	defer p.overflowMu.Unlock()
	if len(p.overflow) == 0 {
		return nil, false
	}
	t := p.overflow[0]
	p.overflow = p.overflow[1:]
	return t, true
}

func (p *Pool) overflowLen() int {
	p.overflowMu.Lock()
	defer p.overflowMu.Unlock()
	return len(p.overflow)
}

// wake bumps the wake sequence and unparks sleepers. Every enqueue and
// every shutdown transition routes through here so no parked worker can
// miss work.
func (p *Pool) wake() {
	p.wakeSeq.Add(1)
	if p.waiting.Load() > 0 {
		p.parkMu.Lock()
		p.parkCond.Broadcast()
		p.parkMu.Unlock()
	}
}

// Shutdown stops the pool. With drain=true, already-queued tasks run to
// completion before workers exit; with drain=false, workers exit as soon
// as possible and queued tasks are discarded. Blocks until all workers
// have returned. There is no per-task cancellation.
func (p *Pool) Shutdown(drain bool) {
	target := stateStopped
	if drain {
		target = stateDraining
	}
	// A later stop request upgrades an in-progress drain.
	for {
		cur := p.state.Load()
		if cur >= target {
			break
		}
		if p.state.CompareAndSwap(cur, target) {
			break
		}
	}
	p.wake()
	p.wg.Wait()
	p.state.Store(stateStopped)
	log.Debug().Bool("drained", drain).Int64("pending", p.pending.Load()).Msg("Scheduler pool stopped")
}

func (w *worker) run() {
	p := w.pool
	for {
		// Running-local: newest own work first.
		if t, ok := w.q.pop(); ok {
			p.execute(t, false)
			continue
		}

		// Snapshot before scanning shared sources; any enqueue after
		// this point bumps the sequence and prevents the park below.
		seq := p.wakeSeq.Load()

		if t, ok := p.popOverflow(); ok {
			p.execute(t, false)
			continue
		}

		// Stealing: bounded round-robin sweep over peers.
		if t, ok := w.trySteal(); ok {
			p.execute(t, true)
			continue
		}

		switch p.state.Load() {
		case stateStopped:
			return
		case stateDraining:
			if p.pending.Load() == 0 {
				return
			}
		}

		w.park(seq)
	}
}

func (w *worker) trySteal() (Task, bool) {
	p := w.pool
	n := len(p.workers)
	for round := 0; round < stealRounds; round++ {
		for off := 1; off < n; off++ {
			victim := p.workers[(w.id+off)%n]
			if t, ok := victim.q.steal(); ok {
				return t, true
			}
		}
	}
	return nil, false
}

// park sleeps until any enqueue or shutdown signal arrives after the
// given wake-sequence snapshot.
func (w *worker) park(seq uint64) {
	p := w.pool
	p.waiting.Add(1)
	workersParked.Inc()
	p.parkMu.Lock()
	for p.wakeSeq.Load() == seq {
		p.parkCond.Wait()
	}
	p.parkMu.Unlock()
	workersParked.Dec()
	p.waiting.Add(-1)
}

func (p *Pool) execute(t Task, stolen bool) {
	if stolen {
		tasksStolen.Inc()
	}
	func() {
		defer func() {
			if r := recover(); r != nil {
				taskPanics.Inc()
				log.Error().Interface("panic", r).Msg("Task panicked")
			}
		}()
		t()
	}()
	tasksCompleted.Inc()
	if p.pending.Add(-1) == 0 {
		// Unpark drainers waiting for quiescence.
		p.wake()
	}
}
