package algebra

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/notargets/DGAMG/partitions"
)

// Dot is the global inner product of two distributed vectors. Ranks with
// empty vectors still take part in the reduction.
func Dot(comm partitions.Communicator, x, y []float64) (float64, error) {
	local := 0.0
	if len(x) > 0 {
		local = floats.Dot(x, y)
	}
	sum, err := partitions.OrSerial(comm).AllReduce([]float64{local}, partitions.Sum)
	if err != nil {
		return 0, err
	}
	return sum[0], nil
}

// Norm is the global Euclidean norm
func Norm(comm partitions.Communicator, x []float64) (float64, error) {
	d, err := Dot(comm, x, x)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(d), nil
}

// MaxAbs is the global maximum norm
func MaxAbs(comm partitions.Communicator, x []float64) (float64, error) {
	local := 0.0
	for _, v := range x {
		local = math.Max(local, math.Abs(v))
	}
	red, err := partitions.OrSerial(comm).AllReduce([]float64{local}, partitions.Max)
	if err != nil {
		return 0, err
	}
	return red[0], nil
}

// Axpy updates y += alpha·x
func Axpy(y []float64, alpha float64, x []float64) {
	if len(y) > 0 {
		floats.AddScaled(y, alpha, x)
	}
}
