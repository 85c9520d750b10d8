package worker

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
)

var ErrPoolStopped = errors.New("worker pool stopped")

type Job interface{}

type ProcessFunc func(ctx context.Context, job Job) error

// WorkerPool runs jobs on a fixed set of workers. Jobs submitted with the
// same key always land on the same worker and are processed in submission
// order; jobs with different keys run concurrently.
type WorkerPool struct {
	numWorkers int
	queues     []chan Job
	processor  ProcessFunc
	wg         sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

func NewWorkerPool(numWorkers int, bufferSize int, processor ProcessFunc) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	queues := make([]chan Job, numWorkers)
	for i := range queues {
		queues[i] = make(chan Job, bufferSize)
	}
	return &WorkerPool{
		numWorkers: numWorkers,
		queues:     queues,
		processor:  processor,
	}
}

func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, wp.queues[i])
	}
}

func (wp *WorkerPool) worker(ctx context.Context, jobs <-chan Job) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			wp.processor(ctx, job)
		}
	}
}

// Submit enqueues job on the worker owning key. It blocks while that
// worker's queue is full, until ctx is done.
func (wp *WorkerPool) Submit(ctx context.Context, key string, job Job) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.stopped {
		return ErrPoolStopped
	}

	select {
	case wp.queues[wp.shard(key)] <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the queues and waits for workers to drain them.
func (wp *WorkerPool) Stop() {
	wp.mu.Lock()
	if wp.stopped {
		wp.mu.Unlock()
		return
	}
	wp.stopped = true
	for _, q := range wp.queues {
		close(q)
	}
	wp.mu.Unlock()

	wp.wg.Wait()
}

func (wp *WorkerPool) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(wp.numWorkers))
}
