// Package parallel provides the worker pool shared by the system
// scheduler and the pipeline compiler.
package parallel

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs tasks on a fixed set of goroutines.
//
// Each worker owns a queue and steals from the others when its own queue
// is empty, so a slow pipeline compile does not hold up the systems
// queued behind it.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	workers int
	queues  []chan func()

	done    chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	// next spreads Submit calls across queues.
	next atomic.Uint32
}

// NewWorkerPool starts a pool with the given number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	queueSize := max(workers*4, 8)

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range workers {
		p.queues[i] = make(chan func(), queueSize)
	}
	p.running.Store(true)

	p.wg.Add(workers)
	for i := range workers {
		go p.worker(i)
	}
	return p
}

func (p *WorkerPool) worker(id int) {
	defer p.wg.Done()
	own := p.queues[id]

	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			task()
			continue
		default:
		}

		if task := p.steal(id); task != nil {
			task()
			continue
		}

		select {
		case <-p.done:
			p.drain(own)
			return
		case task := <-own:
			task()
		}
	}
}

func (p *WorkerPool) drain(q chan func()) {
	for {
		select {
		case task := <-q:
			task()
		default:
			return
		}
	}
}

func (p *WorkerPool) steal(id int) func() {
	for i := range p.workers {
		if i == id {
			continue
		}
		select {
		case task := <-p.queues[i]:
			return task
		default:
		}
	}
	return nil
}

// Submit queues a single task without waiting for it.
// It reports false if the pool is closed or fn is nil.
func (p *WorkerPool) Submit(fn func()) bool {
	if fn == nil || !p.running.Load() {
		return false
	}
	q := p.queues[int(p.next.Add(1))%p.workers]
	select {
	case q <- fn:
		return true
	case <-p.done:
		return false
	}
}

// ExecuteAll runs every task and waits for all of them. A single task
// runs on the calling goroutine. Task errors are joined. If the pool is
// closed, tasks run on the calling goroutine.
func (p *WorkerPool) ExecuteAll(tasks []func() error) error {
	switch {
	case len(tasks) == 0:
		return nil
	case len(tasks) == 1 || !p.running.Load():
		var errs []error
		for _, task := range tasks {
			errs = append(errs, task())
		}
		return errors.Join(errs...)
	}

	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	wg.Add(len(tasks))
	for i, task := range tasks {
		run := func() {
			defer wg.Done()
			errs[i] = task()
		}
		select {
		case p.queues[i%p.workers] <- run:
		case <-p.done:
			run()
		}
	}
	wg.Wait()
	return errors.Join(errs...)
}

// Close stops accepting work, finishes queued tasks and stops the
// workers. Close is safe to call multiple times.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *WorkerPool) Workers() int { return p.workers }

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool { return p.running.Load() }

// QueuedWork approximates the number of queued tasks.
func (p *WorkerPool) QueuedWork() int {
	total := 0
	for _, q := range p.queues {
		total += len(q)
	}
	return total
}
