package ingest

import "tsvload/internal/errors"

// Partition is the half-open row range [Start, End) owned by one worker.
type Partition struct {
	Worker int
	Start  int
	End    int
}

// Len returns the number of rows in p.
func (p Partition) Len() int { return p.End - p.Start }

// Partitions splits total rows into workers contiguous ranges. Every range
// but the last holds total/workers rows; the last also takes the remainder.
// When workers exceeds total the leading ranges are empty.
func Partitions(total, workers int) ([]Partition, error) {
	if workers <= 0 {
		return nil, errors.Newf(errors.ErrConfig, "workers must be > 0, got %d", workers)
	}
	if total < 0 {
		return nil, errors.Newf(errors.ErrConfig, "total must be >= 0, got %d", total)
	}
	size := total / workers
	out := make([]Partition, workers)
	for w := range out {
		out[w] = Partition{Worker: w, Start: w * size, End: (w + 1) * size}
	}
	out[workers-1].End = total
	return out, nil
}
