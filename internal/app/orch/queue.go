package orch

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const (
	mirrorLanes    = 8
	mirrorLaneSize = 256
)

type mirrorJob struct {
	timeout time.Duration
	fn      func(ctx context.Context)
}

// mirrorQueue runs background writes off the event path. Jobs submitted under
// the same key run one at a time in submission order. A full lane blocks the
// submitter until the lane drains.
type mirrorQueue struct {
	mu     sync.RWMutex
	closed bool
	lanes  []chan mirrorJob

	pending sync.WaitGroup
	workers sync.WaitGroup
}

func newMirrorQueue(lanes, size int) *mirrorQueue {
	q := &mirrorQueue{lanes: make([]chan mirrorJob, lanes)}
	for i := range q.lanes {
		lane := make(chan mirrorJob, size)
		q.lanes[i] = lane
		q.workers.Add(1)
		go q.run(lane)
	}
	return q
}

func (q *mirrorQueue) run(lane chan mirrorJob) {
	defer q.workers.Done()
	for job := range lane {
		ctx, cancel := context.WithTimeout(context.Background(), job.timeout)
		job.fn(ctx)
		cancel()
		q.pending.Done()
	}
}

func (q *mirrorQueue) lane(key string) chan mirrorJob {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return q.lanes[int(h.Sum32()%uint32(len(q.lanes)))]
}

// submit reports false once the queue is closed.
func (q *mirrorQueue) submit(key string, job mirrorJob) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	q.pending.Add(1)
	q.lane(key) <- job
	return true
}

// wait blocks until every job submitted so far has run.
func (q *mirrorQueue) wait() {
	q.pending.Wait()
}

// close refuses new jobs, runs the queued ones and stops the workers.
func (q *mirrorQueue) close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for _, lane := range q.lanes {
		close(lane)
	}
	q.mu.Unlock()
	q.workers.Wait()
}
