package thermal

// filter is a sliding-window temperature filter: it rejects samples more
// than maxDeviation degrees from the current window mean, protecting the
// state machine from sensor glitches. The first sample is always accepted
// (there is no window yet to deviate from).
type filter struct {
	size         int
	maxDeviation float64
	window       []float64
}

func newFilter(size int, maxDeviation float64) *filter {
	if size < 1 {
		size = 1
	}
	return &filter{size: size, maxDeviation: maxDeviation}
}

// Observe feeds one raw sample, returning the accepted value (identical to
// raw) and whether it passed the deviation check.
func (f *filter) Observe(raw float64) (float64, bool) {
	if len(f.window) > 0 {
		mean := f.mean()
		dev := raw - mean
		if dev < 0 {
			dev = -dev
		}
		if dev > f.maxDeviation {
			return 0, false
		}
	}
	f.window = append(f.window, raw)
	if len(f.window) > f.size {
		f.window = f.window[1:]
	}
	return raw, true
}

func (f *filter) mean() float64 {
	var sum float64
	for _, v := range f.window {
		sum += v
	}
	return sum / float64(len(f.window))
}
