package wizard

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLockerSerializesSameKey(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	var inside, maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "cfg-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxInside)
				if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInside)
	assert.Empty(t, l.locks)
}

func TestLocalLockerIndependentKeys(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestLocalLockerHonorsContext(t *testing.T) {
	l := NewLocalLocker()

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "a")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()
	assert.Empty(t, l.locks)
}

func TestRedisLockerSurfacesConnectionErrors(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "", 0)
	defer client.Close()

	l := NewRedisLocker(client, time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := l.Lock(ctx, "cfg-1")
	require.Error(t, err)
}
