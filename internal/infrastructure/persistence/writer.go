package persistence

import (
	"context"
	"sync"
	"time"
)

type writeJob struct {
	cacheType string
	data      []byte
	// barrier, when set, is closed once every job queued before it is written.
	barrier chan struct{}
}

type pendingWrite struct {
	data  []byte
	timer *time.Timer
}

// writeQueue debounces saves per cache type and hands them to a single writer
// goroutine, so at most one write is in flight and only the last payload of a
// burst reaches disk. Sends to jobs happen under mu so ordering against
// barriers and close is exact.
type writeQueue struct {
	delay time.Duration
	write func(writeJob)

	mu      sync.Mutex
	pending map[string]*pendingWrite
	closed  bool
	jobs    chan writeJob
	done    chan struct{}
}

func newWriteQueue(delay time.Duration, write func(writeJob)) *writeQueue {
	q := &writeQueue{
		delay:   delay,
		write:   write,
		pending: make(map[string]*pendingWrite),
		jobs:    make(chan writeJob, 16),
		done:    make(chan struct{}),
	}
	go q.loop()
	return q
}

func (q *writeQueue) loop() {
	defer close(q.done)
	for job := range q.jobs {
		if job.barrier != nil {
			close(job.barrier)
			continue
		}
		q.write(job)
	}
}

// schedule replaces any pending payload for cacheType and restarts its timer.
func (q *writeQueue) schedule(cacheType string, data []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if p, ok := q.pending[cacheType]; ok {
		p.timer.Stop()
	}
	p := &pendingWrite{data: data}
	p.timer = time.AfterFunc(q.delay, func() { q.fire(cacheType, p) })
	q.pending[cacheType] = p
}

func (q *writeQueue) fire(cacheType string, p *pendingWrite) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if current, ok := q.pending[cacheType]; !ok || current != p || q.closed {
		return
	}
	delete(q.pending, cacheType)
	q.jobs <- writeJob{cacheType: cacheType, data: p.data}
}

// flush writes every pending payload now and waits for the writer to drain.
func (q *writeQueue) flush(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	for cacheType, p := range q.pending {
		p.timer.Stop()
		q.jobs <- writeJob{cacheType: cacheType, data: p.data}
	}
	q.pending = make(map[string]*pendingWrite)
	barrier := make(chan struct{})
	q.jobs <- writeJob{barrier: barrier}
	q.mu.Unlock()

	select {
	case <-barrier:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cancel drops every pending payload without writing it.
func (q *writeQueue) cancel() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, p := range q.pending {
		p.timer.Stop()
	}
	q.pending = make(map[string]*pendingWrite)
}

// pendingCount reports how many cache types are waiting on their timer.
func (q *writeQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// close flushes, then stops the writer goroutine.
func (q *writeQueue) close(ctx context.Context) error {
	err := q.flush(ctx)
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return err
	}
	q.closed = true
	close(q.jobs)
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-ctx.Done():
		if err == nil {
			err = ctx.Err()
		}
	}
	return err
}
