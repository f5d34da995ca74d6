package algebra

// Model problems used by tests and the examples

// Laplace1D is the n×n tridiagonal matrix with 2 on the diagonal and -1 off it
func Laplace1D(n int) *Matrix {
	return Laplace1DRows(n, 0, n)
}

// Laplace1DRows holds rows [lo,hi) of Laplace1D(n)
func Laplace1DRows(n, lo, hi int) *Matrix {
	b := NewBuilder(hi-lo, n).WithRowOffset(lo)
	for g := lo; g < hi; g++ {
		b.Add(g-lo, g, 2)
		if g > 0 {
			b.Add(g-lo, g-1, -1)
		}
		if g < n-1 {
			b.Add(g-lo, g+1, -1)
		}
	}
	return b.Build()
}

// Laplace2D is the 5-point stencil on an nx×ny grid, numbered x fastest
func Laplace2D(nx, ny int) *Matrix {
	return Laplace2DRows(nx, ny, 0, nx*ny)
}

// Laplace2DRows holds rows [lo,hi) of Laplace2D(nx, ny)
func Laplace2DRows(nx, ny, lo, hi int) *Matrix {
	n := nx * ny
	b := NewBuilder(hi-lo, n).WithRowOffset(lo)
	for g := lo; g < hi; g++ {
		i, j := g%nx, g/nx
		b.Add(g-lo, g, 4)
		if i > 0 {
			b.Add(g-lo, g-1, -1)
		}
		if i < nx-1 {
			b.Add(g-lo, g+1, -1)
		}
		if j > 0 {
			b.Add(g-lo, g-nx, -1)
		}
		if j < ny-1 {
			b.Add(g-lo, g+nx, -1)
		}
	}
	return b.Build()
}

// BlockLaplace1D couples bs unknowns per node of a 1D path: the Laplace1D
// stencil times a small symmetric coupling block.
func BlockLaplace1D(nodes, bs int) *Matrix {
	n := nodes * bs
	b := NewBuilder(n, n).WithBlockSize(bs)
	coupling := func(r, c int) float64 {
		if r == c {
			return 1
		}
		return 0.2
	}
	for node := 0; node < nodes; node++ {
		for r := 0; r < bs; r++ {
			row := node*bs + r
			for c := 0; c < bs; c++ {
				b.Add(row, node*bs+c, 2*coupling(r, c))
				if node > 0 {
					b.Add(row, (node-1)*bs+c, -coupling(r, c))
				}
				if node < nodes-1 {
					b.Add(row, (node+1)*bs+c, -coupling(r, c))
				}
			}
		}
	}
	return b.Build()
}
