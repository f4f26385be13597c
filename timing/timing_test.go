package timing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ExampleSummarize() {
	s := Summarize([]time.Duration{2 * time.Millisecond, 4 * time.Millisecond, 6 * time.Millisecond})
	fmt.Println(s)

	// Output:
	// mean 4.00 ms, stddev 2.00 ms, min 2.00 ms, max 6.00 ms over 3 runs
}

func TestSummarize_Single(t *testing.T) {
	s := Summarize([]time.Duration{1500 * time.Microsecond})
	assert.Equal(t, Summary{Runs: 1, Mean: 1.5, Min: 1.5, Max: 1.5}, s)
}

func TestSummarize_Empty(t *testing.T) {
	assert.Equal(t, Summary{}, Summarize(nil))
}

func TestStopwatch(t *testing.T) {
	sw := Start()
	time.Sleep(2 * time.Millisecond)
	assert.GreaterOrEqual(t, sw.Milliseconds(), int64(2))
	assert.GreaterOrEqual(t, sw.Elapsed(), 2*time.Millisecond)
}
