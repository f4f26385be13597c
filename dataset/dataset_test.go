package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Reproducible(t *testing.T) {
	a := Generate(1000, NoZero, Options{}.WithSeed(42))
	b := Generate(1000, NoZero, Options{}.WithSeed(42))
	require.Equal(t, a, b)

	c := Generate(1000, NoZero, Options{}.WithSeed(43))
	assert.NotEqual(t, a, c)
}

func TestGenerate_Bounds(t *testing.T) {
	data := Generate(5000, NoZero, Options{}.WithMaxValue(7))
	for i, x := range data {
		if x < 1 || x > 7 {
			t.Fatalf("element %d out of range: %d", i, x)
		}
	}
}

func TestGenerate_DefaultOptions(t *testing.T) {
	require.Equal(t,
		Generate(64, NoZero, Options{}),
		Generate(64, NoZero, Options{}.WithSeed(DefaultSeed).WithMaxValue(DefaultMaxValue)))
}

func TestGenerate_ZeroIndex(t *testing.T) {
	data := Generate(12, 5, Options{})
	for i, x := range data {
		if i == 5 {
			assert.Zero(t, x)
		} else {
			assert.NotZero(t, x, "element %d", i)
		}
	}
}

func TestGenerate_InvalidZeroIndex(t *testing.T) {
	assert.Panics(t, func() { Generate(12, 12, Options{}) })
	assert.Panics(t, func() { Generate(12, -2, Options{}) })
}

func TestRand_Intn(t *testing.T) {
	r := NewRand(1)
	seen := make(map[int]bool)
	for i := 0; i < 10000; i++ {
		v := r.Intn(2, 5)
		require.GreaterOrEqual(t, v, 2)
		require.LessOrEqual(t, v, 5)
		seen[v] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, 9, NewRand(1).Intn(9, 9))
	assert.Panics(t, func() { r.Intn(5, 4) })
}
