package planner

import (
	"math"
)

// VariableTimesteps returns the timesteps, in units of t0, at which a robot's horizon places its
// variables. Spacing grows by one every lookaheadMultiple variables so the near future is sampled
// densely. The first timestep is 0 and the last is horizon. When maxVariables is positive the
// sequence is cut to that many entries, keeping the horizon.
func VariableTimesteps(horizon, lookaheadMultiple, maxVariables int) []int {
	if horizon < 1 {
		horizon = 1
	}
	if lookaheadMultiple < 1 {
		lookaheadMultiple = 1
	}
	m := float64(lookaheadMultiple)
	sections := 1 + int(0.5*(-1+math.Sqrt(1+8*float64(horizon)/m)))

	var timesteps []int
	for i := 0; i < lookaheadMultiple*(sections+1); i++ {
		section := i / lookaheadMultiple
		f := (m/2*float64(section) + float64(i-section*lookaheadMultiple)) * float64(section+1)
		if f >= float64(horizon) {
			timesteps = append(timesteps, horizon)
			break
		}
		timesteps = append(timesteps, int(f))
	}
	if timesteps[len(timesteps)-1] != horizon {
		timesteps = append(timesteps, horizon)
	}

	if maxVariables >= 2 && len(timesteps) > maxVariables {
		timesteps = append(timesteps[:maxVariables-1], horizon)
	}
	return timesteps
}
