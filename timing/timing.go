// Package timing brackets strategy runs with a millisecond stopwatch and
// summarizes repeated runs.
package timing

import (
	"fmt"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// A Stopwatch measures the time elapsed since it was started.
type Stopwatch struct {
	start time.Time
}

// Start returns a running Stopwatch.
func Start() Stopwatch {
	return Stopwatch{start: time.Now()}
}

// Elapsed returns the time since the stopwatch was started.
func (s Stopwatch) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Milliseconds returns the whole milliseconds since the stopwatch was
// started.
func (s Stopwatch) Milliseconds() int64 {
	return s.Elapsed().Milliseconds()
}

// A Summary describes a series of elapsed times in milliseconds.
type Summary struct {
	Runs   int
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Summarize returns the summary of samples. The standard deviation of fewer
// than two samples is 0.
func Summarize(samples []time.Duration) Summary {
	if len(samples) == 0 {
		return Summary{}
	}
	ms := make([]float64, len(samples))
	for i, d := range samples {
		ms[i] = float64(d) / float64(time.Millisecond)
	}
	s := Summary{Runs: len(ms), Min: floats.Min(ms), Max: floats.Max(ms)}
	if len(ms) < 2 {
		s.Mean = ms[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(ms, nil)
	return s
}

func (s Summary) String() string {
	return fmt.Sprintf("mean %.2f ms, stddev %.2f ms, min %.2f ms, max %.2f ms over %d runs",
		s.Mean, s.StdDev, s.Min, s.Max, s.Runs)
}
