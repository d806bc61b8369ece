package buffer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing_WriteRead(t *testing.T) {
	r := NewRing[int](4)

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	require.NoError(t, r.Write(3))
	assert.Equal(t, 3, r.Size())

	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = r.Read()
	require.True(t, ok)
	assert.Equal(t, 2, v)

	assert.Equal(t, 1, r.Size())
}

func TestRing_EmptyRead(t *testing.T) {
	r := NewRing[string](2)
	_, ok := r.Read()
	assert.False(t, ok)
}

func TestRing_DropOldest(t *testing.T) {
	var dropped []int
	r := NewRing[int](2,
		WithOverflowPolicy[int](DropOldest),
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }),
	)

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	require.NoError(t, r.Write(3)) // evicts 1

	assert.Equal(t, []int{1}, dropped)

	v, _ := r.Read()
	assert.Equal(t, 2, v)
	v, _ = r.Read()
	assert.Equal(t, 3, v)

	assert.Equal(t, int64(1), r.Stats().Dropped)
}

func TestRing_DropNewest(t *testing.T) {
	var dropped []int
	r := NewRing[int](2,
		WithOverflowPolicy[int](DropNewest),
		WithDropCallback[int](func(item int) { dropped = append(dropped, item) }),
	)

	require.NoError(t, r.Write(1))
	require.NoError(t, r.Write(2))
	require.NoError(t, r.Write(3)) // 3 is dropped

	assert.Equal(t, []int{3}, dropped)
	v, _ := r.Read()
	assert.Equal(t, 1, v)
}

func TestRing_BlockPolicy(t *testing.T) {
	r := NewRing[int](1, WithOverflowPolicy[int](Block))
	require.NoError(t, r.Write(1))

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = r.Write(2) // blocks until a read frees space
	}()

	select {
	case <-done:
		t.Fatal("write should have blocked on a full buffer")
	case <-time.After(20 * time.Millisecond):
	}

	v, ok := r.Read()
	require.True(t, ok)
	assert.Equal(t, 1, v)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked write never completed")
	}
}

func TestRing_ReadBlockingWakesOnClose(t *testing.T) {
	r := NewRing[int](2)

	var wg sync.WaitGroup
	wg.Add(1)
	var ok bool
	go func() {
		defer wg.Done()
		_, ok = r.ReadBlocking()
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.Close())
	wg.Wait()
	assert.False(t, ok)
}

func TestRing_ReadBatch(t *testing.T) {
	r := NewRing[int](8)
	for i := 1; i <= 5; i++ {
		require.NoError(t, r.Write(i))
	}

	batch := r.ReadBatch(3)
	assert.Equal(t, []int{1, 2, 3}, batch)
	assert.Equal(t, 2, r.Size())

	batch = r.ReadBatch(10)
	assert.Equal(t, []int{4, 5}, batch)
	assert.Nil(t, r.ReadBatch(3))
}

func TestRing_WriteAfterClose(t *testing.T) {
	r := NewRing[int](2)
	require.NoError(t, r.Close())
	assert.Error(t, r.Write(1))
}

func TestRing_ConcurrentAccess(t *testing.T) {
	r := NewRing[int](128)
	var wg sync.WaitGroup

	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = r.Write(i)
			}
		}()
	}

	read := make(chan int, 1024)
	for rd := 0; rd < 4; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				if v, ok := r.Read(); ok {
					read <- v
				}
			}
		}()
	}

	wg.Wait()
	stats := r.Stats()
	assert.LessOrEqual(t, stats.MaxSize, 128)
}
