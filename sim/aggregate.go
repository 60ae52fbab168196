package sim

// Distribution is the aggregate of one run's stash-size samples:
// for each threshold R in [0, MaxStash], Tail[R] counts the samples
// whose stash size exceeded R.
type Distribution struct {
	Total    int   // number of recorded samples
	MaxStash int   // largest stash size observed
	Tail     []int // Tail[R] = |{samples with size > R}|, R = 0..MaxStash
}

// Aggregate builds the tail-count distribution from a sample sequence.
// Counts are computed with a histogram and a suffix sum, one pass each.
func Aggregate(samples []Observation) Distribution {
	if len(samples) == 0 {
		return Distribution{Tail: []int{0}}
	}

	maxStash := 0
	for _, s := range samples {
		if s.StashSize > maxStash {
			maxStash = s.StashSize
		}
	}

	hist := make([]int, maxStash+1)
	for _, s := range samples {
		hist[s.StashSize]++
	}

	// countGE[k] = samples with size >= k; Tail[R] = countGE[R+1]
	tail := make([]int, maxStash+1)
	running := 0
	for k := maxStash; k >= 0; k-- {
		if k < maxStash {
			tail[k] = running
		}
		running += hist[k]
	}

	return Distribution{
		Total:    len(samples),
		MaxStash: maxStash,
		Tail:     tail,
	}
}

// Prob returns the empirical P[size(S) > r]. Thresholds beyond the
// observed maximum have probability zero.
func (d Distribution) Prob(r int) float64 {
	if d.Total == 0 || r < 0 {
		return 0
	}
	if r > d.MaxStash {
		return 0
	}
	return float64(d.Tail[r]) / float64(d.Total)
}

// Points returns the (R, P[size(S) > R]) series for R >= 1, the form
// plotted against a log-scale axis (R=0 is excluded, matching the
// reported curves).
func (d Distribution) Points() (rs []int, ps []float64) {
	for r := 1; r <= d.MaxStash; r++ {
		rs = append(rs, r)
		ps = append(ps, d.Prob(r))
	}
	return rs, ps
}

// Mean returns the mean stash size over a sample sequence.
func Mean(samples []Observation) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0
	for _, s := range samples {
		sum += s.StashSize
	}
	return float64(sum) / float64(len(samples))
}
