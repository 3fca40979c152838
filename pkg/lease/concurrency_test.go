package lease

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestLease_ConcurrentAcquireGrantsOne(t *testing.T) {
	l, _ := newTestLease(t)

	const clients = 40
	var granted, denied int64
	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			<-start
			_, err := l.TryAcquire(id, at(0), id, "10.0.0.1")
			var de *DeniedError
			switch {
			case err == nil:
				atomic.AddInt64(&granted, 1)
			case errors.As(err, &de):
				atomic.AddInt64(&denied, 1)
			default:
				t.Errorf("%s: unexpected error %v", id, err)
			}
		}(fmt.Sprintf("client-%d", i))
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, granted)
	assert.EqualValues(t, clients-1, denied)
}

func TestLease_NoOverlappingHolders(t *testing.T) {
	l, _ := newTestLease(t)

	const (
		clients = 20
		rounds  = 200
	)
	var holding, overlaps, grants int64
	var wg sync.WaitGroup
	for i := 0; i < clients; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for r := 0; r < rounds; r++ {
				if _, err := l.TryAcquire(id, at(0), id, "here"); err != nil {
					continue
				}
				atomic.AddInt64(&grants, 1)
				if atomic.AddInt64(&holding, 1) > 1 {
					atomic.AddInt64(&overlaps, 1)
				}
				if !l.Touch(id, at(0)) {
					atomic.AddInt64(&overlaps, 1)
				}
				atomic.AddInt64(&holding, -1)
				assert.NoError(t, l.Release(id, at(0)))
			}
		}(fmt.Sprintf("client-%d", i))
	}
	wg.Wait()

	assert.Zero(t, overlaps, "two callers held the lease at once")
	assert.Positive(t, grants)
	_, ok := l.Snapshot(at(0))
	assert.False(t, ok)
}
