package util

import (
	"fmt"
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// SizeHistogram
// ----------------------------------------------------------------------------

// SizeHistogram tracks the distribution of value sizes using exponential buckets
// from a few bytes up to several gigabytes.
//
// Thread-safe: all methods are safe for concurrent use
type SizeHistogram struct {
	mutex      sync.RWMutex
	boundaries []int
	buckets    []int64
	count      int64
	sum        int64
}

// NewSizeHistogram creates a histogram with the default bucket boundaries.
func NewSizeHistogram() *SizeHistogram {
	boundaries := []int{
		16, 64, 256, 1024, 4096, // bytes
		16384, 65536, 262144, 1048576, // KB
		4194304, 16777216, 67108864, // MB
		268435456, 1073741824, 4294967296,
	}
	return &SizeHistogram{
		boundaries: boundaries,
		buckets:    make([]int64, len(boundaries)+1),
	}
}

func (h *SizeHistogram) bucketOf(size int) int {
	for i, boundary := range h.boundaries {
		if size <= boundary {
			return i
		}
	}
	return len(h.boundaries)
}

// Add records a value of the given size.
func (h *SizeHistogram) Add(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.buckets[h.bucketOf(size)]++
	h.count++
	h.sum += int64(size)
}

// Remove forgets a value of the given size, e.g. after the key was deleted or
// overwritten.
func (h *SizeHistogram) Remove(size int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	i := h.bucketOf(size)
	if h.buckets[i] == 0 {
		return
	}
	h.buckets[i]--
	h.count--
	h.sum -= int64(size)
}

// Count returns the number of tracked values.
func (h *SizeHistogram) Count() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Total returns the sum of all tracked sizes.
func (h *SizeHistogram) Total() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.sum
}

// Average returns the mean size.
func (h *SizeHistogram) Average() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	if h.count == 0 {
		return 0
	}
	return int(h.sum / h.count)
}

// Percentile estimates the given percentile (0-100) from the bucket midpoints.
func (h *SizeHistogram) Percentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	target := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	var cumulative int64
	for i, count := range h.buckets {
		cumulative += count
		if cumulative >= target {
			switch {
			case i == 0:
				return h.boundaries[0] / 2
			case i < len(h.boundaries):
				return (h.boundaries[i-1] + h.boundaries[i]) / 2
			default:
				return h.boundaries[len(h.boundaries)-1] * 2
			}
		}
	}
	return int(h.sum / h.count)
}

// Buckets returns the non-empty buckets as "<=boundary" -> count.
// The overflow bucket is labelled ">" plus the last boundary.
func (h *SizeHistogram) Buckets() map[string]int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	out := make(map[string]int64)
	for i, count := range h.buckets {
		if count == 0 {
			continue
		}
		if i < len(h.boundaries) {
			out[fmt.Sprintf("<=%d", h.boundaries[i])] = count
		} else {
			out[fmt.Sprintf(">%d", h.boundaries[len(h.boundaries)-1])] = count
		}
	}
	return out
}
