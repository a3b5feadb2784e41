package checkpoint

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInternerAssignsStableHandles(t *testing.T) {
	in := NewInterner()

	h1 := in.Handle("region.a")
	h2 := in.Handle("region.b")
	h1again := in.Handle("region.a")

	assert.Equal(t, h1, h1again)
	assert.NotEqual(t, h1, h2)

	name, ok := in.Name(h1)
	assert.True(t, ok)
	assert.Equal(t, "region.a", name)
}

func TestInternerConcurrentInsertsAgreeOnOneHandle(t *testing.T) {
	in := NewInterner()
	const n = 64

	var wg sync.WaitGroup
	handles := make([]uint64, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = in.Handle("shared.region")
		}(i)
	}
	wg.Wait()

	for _, h := range handles {
		assert.Equal(t, handles[0], h)
	}
}
