package schedule

import "github.com/samber/lo"

// The policies below lay out 0 < n < total firings over total sub-steps.

func soonAsPossible(n, total int) []bool {
	out := make([]bool, total)
	for i := 0; i < n; i++ {
		out[i] = true
	}
	return out
}

func lateAsPossible(n, total int) []bool {
	out := make([]bool, total)
	for i := total - n; i < total; i++ {
		out[i] = true
	}
	return out
}

// centered starts at total/2 - n/2 and extends right, clamped to the sequence.
func centered(n, total int) []bool {
	out := make([]bool, total)
	start := total/2 - n/2
	if start < 0 {
		start = 0
	}
	end := min(start+n, total)
	for i := start; i < end; i++ {
		out[i] = true
	}
	return out
}

// halfBeginningHalfEnd fires n/2 times at the start and the rest at the end.
func halfBeginningHalfEnd(n, total int) []bool {
	out := make([]bool, total)
	head := n / 2
	tail := total - (n - head)
	for i := range out {
		out[i] = i < head || i >= tail
	}
	return out
}

func interleaveEvenly(n, total int) []bool {
	return lo.Map(Interleave([]int{n, total}), func(ready []bool, _ int) bool { return ready[0] })
}
