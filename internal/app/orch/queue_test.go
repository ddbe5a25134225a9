package orch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorQueueKeepsOrderPerKey(t *testing.T) {
	q := newMirrorQueue(4, 2)
	defer q.close()

	var mu sync.Mutex
	seen := make(map[string][]int)
	for i := 0; i < 200; i++ {
		key := fmt.Sprintf("u%d", i%5)
		i := i
		require.True(t, q.submit(key, mirrorJob{timeout: time.Second, fn: func(context.Context) {
			mu.Lock()
			seen[key] = append(seen[key], i)
			mu.Unlock()
		}}))
	}
	q.wait()

	require.Len(t, seen, 5)
	for key, order := range seen {
		assert.Len(t, order, 40, key)
		assert.IsIncreasing(t, order, key)
	}
}

func TestMirrorQueueJobsGetDeadline(t *testing.T) {
	q := newMirrorQueue(1, 1)
	defer q.close()

	var hasDeadline bool
	q.submit("k", mirrorJob{timeout: time.Second, fn: func(ctx context.Context) {
		_, hasDeadline = ctx.Deadline()
	}})
	q.wait()
	assert.True(t, hasDeadline)
}

func TestMirrorQueueCloseDrainsAndRefuses(t *testing.T) {
	q := newMirrorQueue(2, 8)
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 10; i++ {
		q.submit(fmt.Sprintf("k%d", i), mirrorJob{timeout: time.Second, fn: func(context.Context) {
			time.Sleep(time.Millisecond)
			mu.Lock()
			ran++
			mu.Unlock()
		}})
	}
	q.close()
	assert.Equal(t, 10, ran)

	assert.False(t, q.submit("k", mirrorJob{timeout: time.Second, fn: func(context.Context) {}}))
	assert.NotPanics(t, q.close)
	q.wait()
}
