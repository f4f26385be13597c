// Package dataset generates the reproducible input of a reduction run.
package dataset

import (
	"fmt"
	"math/rand/v2"
)

const (
	// DefaultSeed is the seed used when none is configured.
	DefaultSeed uint64 = 7649

	// DefaultMaxValue is the largest generated element by default.
	DefaultMaxValue = 3000

	// NoZero is the zero index that injects no zero element.
	NoZero = -1
)

// Rand is a seeded source of uniform integers. The same seed and call
// sequence always yields the same values.
type Rand struct {
	r *rand.Rand
}

// NewRand returns a Rand seeded with seed.
func NewRand(seed uint64) *Rand {
	return &Rand{r: rand.New(rand.NewPCG(seed, seed))}
}

// Intn returns a uniform integer in [min, max], inclusive. It panics if
// max < min.
func (r *Rand) Intn(min, max int) int {
	if max < min {
		panic(fmt.Sprintf("invalid range: %v:%v", min, max))
	}
	return min + r.r.IntN(max-min+1)
}

// Options configures Generate. The zero Options uses DefaultSeed and
// DefaultMaxValue.
type Options struct {
	seed     uint64
	seeded   bool
	maxValue int
}

// WithSeed sets the seed of the generator.
func (o Options) WithSeed(seed uint64) Options {
	o.seed = seed
	o.seeded = true
	return o
}

// WithMaxValue sets the largest generated element. Values <= 0 select
// DefaultMaxValue.
func (o Options) WithMaxValue(maxValue int) Options {
	o.maxValue = maxValue
	return o
}

func (o Options) normalize() Options {
	if !o.seeded {
		o.seed = DefaultSeed
	}
	if o.maxValue <= 0 {
		o.maxValue = DefaultMaxValue
	}
	return o
}

// Generate returns size uniform values in [1, maxValue]. If zeroIndex is not
// NoZero, the element at that index is forced to zero. The returned slice is
// not modified afterwards by any package of this module.
//
// Generate panics if size < 0 or zeroIndex is neither NoZero nor in
// [0, size).
func Generate(size, zeroIndex int, opts Options) []uint32 {
	if size < 0 {
		panic(fmt.Sprintf("invalid size: %v", size))
	}
	if zeroIndex < NoZero || zeroIndex >= size {
		panic(fmt.Sprintf("invalid index for zero: %v", zeroIndex))
	}
	opts = opts.normalize()
	r := NewRand(opts.seed)
	data := make([]uint32, size)
	for i := range data {
		data[i] = uint32(r.Intn(1, opts.maxValue))
	}
	if zeroIndex != NoZero {
		data[zeroIndex] = 0
	}
	return data
}
