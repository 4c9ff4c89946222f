package domain

import "fmt"

// MaxMatrixSlots bounds rows*cols.
const MaxMatrixSlots = 4096

// DefaultMatrixDimensions is the 3x3 grid used when nothing is configured.
var DefaultMatrixDimensions = MatrixDimensions{Rows: 3, Cols: 3}

// MatrixDimensions is the size of the matrix grid.
type MatrixDimensions struct {
	Rows int `json:"rows" yaml:"rows"`
	Cols int `json:"cols" yaml:"cols"`
}

// NewMatrixDimensions rejects empty and oversized grids.
func NewMatrixDimensions(rows, cols int) (MatrixDimensions, error) {
	if rows < 1 || cols < 1 {
		return MatrixDimensions{}, fmt.Errorf("%w: matrix needs at least one row and one column, got %dx%d",
			ErrConfiguration, rows, cols)
	}
	// compare before multiplying so huge sizes cannot overflow past the cap
	if rows > MaxMatrixSlots || cols > MaxMatrixSlots || rows > MaxMatrixSlots/cols {
		return MatrixDimensions{}, fmt.Errorf("%w: matrix %dx%d exceeds %d slots",
			ErrConfiguration, rows, cols, MaxMatrixSlots)
	}
	return MatrixDimensions{Rows: rows, Cols: cols}, nil
}

// Slots returns the number of cells.
func (d MatrixDimensions) Slots() int {
	return d.Rows * d.Cols
}

// Position maps a watch list index to its cell.
func (d MatrixDimensions) Position(i int) (row, col int) {
	return i / d.Cols, i % d.Cols
}

func (d MatrixDimensions) String() string {
	return fmt.Sprintf("%dx%d", d.Rows, d.Cols)
}
