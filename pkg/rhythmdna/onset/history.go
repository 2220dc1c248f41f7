package onset

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// history is a fixed ring of recent detection-function values.
type history struct {
	values []float64
	next   int
	count  int
}

func newHistory(size int) history {
	return history{values: make([]float64, size)}
}

func (h *history) push(v float64) {
	h.values[h.next] = v
	h.next = (h.next + 1) % len(h.values)
	if h.count < len(h.values) {
		h.count++
	}
}

func (h *history) reset() {
	h.next = 0
	h.count = 0
}

// threshold is max(floor, mean + k*stddev) over the stored values. Order
// does not matter for the statistics, so the filled prefix is used as is.
func (h *history) threshold(floor, k float64) float64 {
	if h.count < 2 {
		return floor
	}
	mean, std := stat.MeanStdDev(h.values[:h.count], nil)
	t := mean + k*std
	if math.IsNaN(t) || t < floor {
		return floor
	}
	return t
}
