package symbolindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestHolderEmpty(t *testing.T) {
	h := NewHolder()
	assert.False(t, h.Ready())
	v := h.Current()
	assert.Nil(t, v.Index)
	assert.Zero(t, v.Generation)
}

func TestHolderPublishIncrementsGeneration(t *testing.T) {
	h := NewHolder()

	first, err := h.Publish(mustBuild(t, docRecords()))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation)

	second, err := h.Publish(mustBuild(t, []Record{rec("Board", tgt("", "b"))}))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), second.Generation)

	cur := h.Current()
	assert.Same(t, second.Index, cur.Index)
	assert.True(t, h.Ready())
}

func TestHolderRejectsNil(t *testing.T) {
	h := NewHolder()
	_, err := h.Publish(mustBuild(t, docRecords()))
	require.NoError(t, err)

	_, err = h.Publish(nil)
	require.Error(t, err)
	assert.Equal(t, uint64(1), h.Current().Generation)
}

// Readers must see one complete index or the other, never a mix.
func TestHolderConcurrentSwap(t *testing.T) {
	defer goleak.VerifyNone(t)

	small := mustBuild(t, []Record{rec("Ship", tgt("", "small"))})
	large := mustBuild(t, docRecords())
	h := NewHolder()
	_, err := h.Publish(small)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				v := h.Current()
				n := 0
				for range v.Index.All() {
					n++
				}
				if n != small.Len() && n != large.Len() {
					errs <- fmt.Errorf("generation %d: saw %d entries", v.Generation, n)
					return
				}
			}
		}()
	}
	for i := 0; i < 200; i++ {
		next := large
		if i%2 == 1 {
			next = small
		}
		_, err := h.Publish(next)
		require.NoError(t, err)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint64(201), h.Current().Generation)
}
