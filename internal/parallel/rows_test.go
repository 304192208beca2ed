package parallel_test

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-insar/internal/parallel"
)

func TestRowsCoversEveryRowOnce(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 1, 15, 16, 17, 1000} {
		hits := make([]int32, n)
		err := parallel.Rows(n, func(start, end int) error {
			for i := start; i < end; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			assert.Equal(t, int32(1), h, "row %d of %d", i, n)
		}
	}
}

func TestEachReturnsError(t *testing.T) {
	t.Parallel()

	err := parallel.Each(100, func(i int) error {
		if i == 42 {
			return assert.AnError
		}
		return nil
	})
	assert.ErrorIs(t, err, assert.AnError)
}
