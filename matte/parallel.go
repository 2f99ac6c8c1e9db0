package matte

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// minParallelPixels is the image size below which operations run inline.
const minParallelPixels = 64 * 64

// bandsPerWorker oversubscribes bands so uneven rows balance out.
const bandsPerWorker = 4

func (s *Session) workerCount() int {
	if s.workers > 0 {
		return s.workers
	}
	return runtime.GOMAXPROCS(0)
}

// bandRows returns the number of rows per band and the number of bands.
func (s *Session) bandRows() (rows, bands int) {
	workers := s.workerCount()
	if workers == 1 || s.width*s.height < minParallelPixels {
		return s.height, 1
	}
	bands = min(s.height, workers*bandsPerWorker)
	rows = (s.height + bands - 1) / bands
	return rows, (s.height + rows - 1) / rows
}

// numBands returns the number of bands forEachBand will call fn with.
func (s *Session) numBands() int {
	_, bands := s.bandRows()
	return bands
}

// forEachBand calls fn for disjoint row ranges [y0, y1) covering the image.
// Bands never share pixels, so fn needs no locking as long as it only
// touches the slots of its own rows.
func (s *Session) forEachBand(fn func(band, y0, y1 int) error) error {
	rows, bands := s.bandRows()
	if bands == 1 {
		return fn(0, 0, s.height)
	}

	var g errgroup.Group
	g.SetLimit(s.workerCount())
	for b := range bands {
		g.Go(func() error {
			y0 := b * rows
			return fn(b, y0, min(y0+rows, s.height))
		})
	}
	return g.Wait()
}
