package testutil

import (
	"math"
	"math/rand"
	"sync"

	"github.com/ctessum/sparse"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Float64 returns a pseudo-random number in [0.0,1.0).
func (r *RNG) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Float64()
}

// FillUniform fills dst with random values in range [minVal, maxVal).
// Locks only once per call.
func (r *RNG) FillUniform(dst []float64, minVal, maxVal float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := maxVal - minVal
	for i := range dst {
		dst[i] = minVal + r.rand.Float64()*span
	}
}

// FillGaussian fills dst with values drawn from N(mean, stddev²).
func (r *RNG) FillGaussian(dst []float64, mean, stddev float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range dst {
		dst[i] = mean + r.rand.NormFloat64()*stddev
	}
}

// UniformField returns a dense array of the given shape filled with values
// in [minVal, maxVal).
func (r *RNG) UniformField(minVal, maxVal float64, shape ...int) *sparse.DenseArray {
	arr := sparse.ZerosDense(shape...)
	r.FillUniform(arr.Elements, minVal, maxVal)
	return arr
}

// GaussianField returns a dense array of the given shape filled with
// normally distributed values.
func (r *RNG) GaussianField(mean, stddev float64, shape ...int) *sparse.DenseArray {
	arr := sparse.ZerosDense(shape...)
	r.FillGaussian(arr.Elements, mean, stddev)
	return arr
}

// SyntheticValue is the value of the synthetic field at first-axis index z
// and inner position index: sin(d/64) + sin(z/32), where d is the distance
// of index from (256, 256, ...). For a (z, y, x) field d is
// hypot(x-256, y-256).
func SyntheticValue(z int, index ...int) float64 {
	var d2 float64
	for _, i := range index {
		c := float64(i - 256)
		d2 += c * c
	}
	return math.Sin(math.Sqrt(d2)/64) + math.Sin(float64(z)/32)
}

// SyntheticField returns a dense array whose element at [z, i1, ..., in]
// is SyntheticValue(z, i1, ..., in).
func SyntheticField(shape ...int) *sparse.DenseArray {
	arr := sparse.ZerosDense(shape...)
	if len(shape) == 0 || len(arr.Elements) == 0 {
		return arr
	}

	inner := shape[1:]
	row := len(arr.Elements) / shape[0]
	index := make([]int, len(inner))
	for j := 0; j < row; j++ {
		rem := j
		for a := len(inner) - 1; a >= 0; a-- {
			index[a] = rem % inner[a]
			rem /= inner[a]
		}
		for z := 0; z < shape[0]; z++ {
			arr.Elements[z*row+j] = SyntheticValue(z, index...)
		}
	}
	return arr
}
