package algebra

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Dense expands the local rows into a dense matrix over all global columns.
// It returns nil for an empty matrix.
func (m *Matrix) Dense() *mat.Dense {
	if m.rows == 0 || m.cols == 0 {
		return nil
	}
	d := mat.NewDense(m.rows, m.cols, nil)
	for i := 0; i < m.rows; i++ {
		cols, vals := m.Row(i)
		for k, j := range cols {
			d.Set(i, j, vals[k])
		}
	}
	return d
}

// Format prints the local rows as a static C array, for pasting small
// operators into a debugger or a reference test
func (m *Matrix) Format(name string) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("const double %s[%d][%d] = {\n", name, m.rows, m.cols))
	for i := 0; i < m.rows; i++ {
		sb.WriteString("    {")
		for j := 0; j < m.cols; j++ {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%.15e", m.At(i, j)))
		}
		sb.WriteString("}")
		if i < m.rows-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("};\n")
	return sb.String()
}
