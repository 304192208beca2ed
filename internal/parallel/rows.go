// Package parallel splits row-oriented numeric work across goroutines.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minRowsPerBand keeps tiny rasters on a single goroutine.
const minRowsPerBand = 16

// Rows calls fn on disjoint [start, end) bands covering [0, n). Each band is handled by exactly
// one goroutine, so fn may write rows of its band without synchronisation. The first error is
// returned once every band has finished.
func Rows(n int, fn func(start, end int) error) error {
	if n <= 0 {
		return nil
	}

	workers := runtime.GOMAXPROCS(0)
	bands := (n + minRowsPerBand - 1) / minRowsPerBand
	if bands < workers {
		workers = bands
	}

	if workers <= 1 {
		return fn(0, n)
	}

	size := (n + workers - 1) / workers

	var errGrp errgroup.Group

	errGrp.SetLimit(workers)

	for start := 0; start < n; start += size {
		start := start
		end := start + size
		if end > n {
			end = n
		}
		errGrp.Go(func() error {
			return fn(start, end)
		})
	}

	return errGrp.Wait()
}

// Each calls fn for every index in [0, n) across goroutines.
func Each(n int, fn func(i int) error) error {
	return Rows(n, func(start, end int) error {
		for i := start; i < end; i++ {
			if err := fn(i); err != nil {
				return err
			}
		}

		return nil
	})
}
