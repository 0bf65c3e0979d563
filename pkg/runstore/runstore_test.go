package runstore

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilnrun/kiln/pkg/types"
)

func TestPutAndGet(t *testing.T) {
	s := NewStore()

	rec := &types.RunRecord{ID: "run_abc123def456", Status: types.StatusSucceeded}
	s.Put(rec)

	got, err := s.Get("run_abc123def456")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestGetUnknown(t *testing.T) {
	s := NewStore()

	_, err := s.Get("run_nope00000000")
	require.Error(t, err)
	assert.Equal(t, types.ErrNotFound, types.KindOf(err))
}

func TestConcurrentAccess(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("run_%012d", i)
			s.Put(&types.RunRecord{ID: id, Status: types.StatusFailed})
			got, err := s.Get(id)
			assert.NoError(t, err)
			assert.Equal(t, id, got.ID)
		}(i)
	}
	wg.Wait()
}
