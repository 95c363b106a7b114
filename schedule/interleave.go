package schedule

import "github.com/samber/lo"

// Interleave spreads each counter's firings evenly over max(times) steps. Step i (from 1) fires
// counter k while its accumulator is below i, after which the accumulator grows by max/times[k].
// A counter never fires more than times[k] times, so a zero count never fires.
func Interleave(times []int) [][]bool {
	total := 0
	if len(times) > 0 {
		total = lo.Max(times)
	}
	if total <= 0 {
		return nil
	}
	increments := lo.Map(times, func(t int, _ int) float64 {
		if t <= 0 {
			return 0
		}
		return float64(total) / float64(t)
	})
	state := make([]float64, len(times))
	fired := make([]int, len(times))

	out := make([][]bool, 0, total)
	for i := 1; i <= total; i++ {
		ready := make([]bool, len(times))
		for k, t := range times {
			if fired[k] >= t || state[k] >= float64(i) {
				continue
			}
			state[k] += increments[k]
			fired[k]++
			ready[k] = true
		}
		out = append(out, ready)
	}
	return out
}
