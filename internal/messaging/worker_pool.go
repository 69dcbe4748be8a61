package messaging

import "sync"

// WorkerPool runs jobs on a fixed set of workers. Each worker owns its own
// queue, so jobs submitted to the same shard run in submission order.
type WorkerPool struct {
	queues   []chan func()
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewWorkerPool creates workers goroutines, each with a queue of queueSize.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}

	wp := &WorkerPool{queues: make([]chan func(), workers)}
	for i := range wp.queues {
		wp.queues[i] = make(chan func(), queueSize)
		wp.wg.Add(1)
		go wp.worker(wp.queues[i])
	}
	return wp
}

func (wp *WorkerPool) worker(jobs <-chan func()) {
	defer wp.wg.Done()
	for job := range jobs {
		job()
	}
}

// TrySubmit enqueues job on the worker owning shard. It reports false when
// that worker's queue is full or the pool is stopping; it never blocks.
func (wp *WorkerPool) TrySubmit(shard int, job func()) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return false
	}

	q := wp.queues[PartitionFor(shard, len(wp.queues))]
	select {
	case q <- job:
		return true
	default:
		return false
	}
}

// Stop rejects new jobs, drains queued ones and waits for the workers.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.stopped = true
		for _, q := range wp.queues {
			close(q)
		}
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}
