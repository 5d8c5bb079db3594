package kernels

import (
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas32"
)

// Host reference implementations, used to check device results.

// ReferenceTanh is the host version of Tanh.
func ReferenceTanh(src []float32, dests [][]float32, dest2 []float32, n int) {
	for i, dest := range dests {
		for j := range n {
			y := float32(math.Tanh(float64(src[i*n+j])))
			dest[j] = y
			dest2[i*n+j] = 1 - y*y
		}
	}
}

// ReferenceMatrixMultiplyMatrix is the host version of MatrixMultiplyMatrix, on column-major
// slices.
//
// A column-major m×n matrix is a row-major n×m one, so y^T = x^T·W^T is a plain Gemm on the
// same memory.
func ReferenceMatrixMultiplyMatrix(w, x, y []float32, row, col, count int, useb bool) {
	wt := blas32.General{Rows: col, Cols: row, Stride: row, Data: w}
	xt := blas32.General{Rows: count, Cols: col, Stride: col, Data: x}
	yt := blas32.General{Rows: count, Cols: row, Stride: row, Data: y}
	var beta float32
	if useb {
		beta = 1
	}
	blas32.Gemm(blas.NoTrans, blas.NoTrans, 1, xt, wt, beta, yt)
}

// ReferenceAdam is the host version of UpdateAdam on flat slices. reg is applied as given.
func ReferenceAdam(val, grad, mean, square []float32, iter int, beta1, beta2, alpha, reg, eps float32) {
	lrt := AdamLR(alpha, beta1, beta2, iter)
	for i := range val {
		g := grad[i] + reg*val[i]
		mean[i] = beta1*mean[i] + (1-beta1)*g
		square[i] = beta2*square[i] + (1-beta2)*g*g
		val[i] -= mean[i] * lrt / float32(math.Sqrt(float64(square[i]+eps)))
	}
}

// ReferenceSGD is the host version of UpdateSGD on flat slices. reg is applied as given.
func ReferenceSGD(val, grad, velocity []float32, lr, momentum, reg float32) {
	for i := range val {
		velocity[i] = momentum*velocity[i] + grad[i] + reg*val[i]
		val[i] -= lr * velocity[i]
	}
}

// ReferenceGlobalNorm returns the L2 norm of the concatenation of bufs.
func ReferenceGlobalNorm(bufs ...[]float32) float32 {
	var sum float64
	for _, buf := range bufs {
		n := float64(blas32.Nrm2(blas32.Vector{N: len(buf), Data: buf, Inc: 1}))
		sum += n * n
	}
	return float32(math.Sqrt(sum))
}
