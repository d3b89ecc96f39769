package domain

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
)

// UnknownDim marks a dimension whose size is not known at import time,
// most commonly the batch axis.
const UnknownDim int64 = -1

// Shape is an ordered sequence of dimension sizes. UnknownDim entries
// propagate unchanged through layers that do not alter that axis.
type Shape []int64

// NewShape copies dims into a new Shape.
func NewShape(dims ...int64) Shape { return Shape(slices.Clone(dims)) }

// Rank returns the number of dimensions.
func (s Shape) Rank() int { return len(s) }

// Clone returns an independent copy of s.
func (s Shape) Clone() Shape {
	if s == nil {
		return nil
	}
	return slices.Clone(s)
}

// Equal reports whether s and o have identical dimensions.
func (s Shape) Equal(o Shape) bool { return slices.Equal(s, o) }

// IsKnown reports whether the dimension at axis has a concrete size.
func (s Shape) IsKnown(axis int) bool { return s[axis] >= 0 }

// FullyKnown reports whether every dimension except the leading batch
// axis is known.
func (s Shape) FullyKnown() bool {
	for i := 1; i < len(s); i++ {
		if s[i] < 0 {
			return false
		}
	}
	return true
}

// String renders the shape as [d0, d1, ...] with -1 for unknown dims.
func (s Shape) String() string {
	parts := make([]string, len(s))
	for i, d := range s {
		parts[i] = strconv.FormatInt(d, 10)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// ScaleDim multiplies a dimension by factor, leaving unknown dims unknown.
// A negative factor or a product that does not fit in an int64 is an
// InvalidConfigurationError carrying the dim and the factor.
func ScaleDim(d, factor int64) (int64, error) {
	if d < 0 {
		return UnknownDim, nil
	}
	params := map[string]any{"dim": d, "factor": factor}
	if factor < 0 {
		return 0, NewInvalidConfigurationError(fmt.Sprintf("negative scale factor %d", factor), params)
	}
	if factor != 0 && d > math.MaxInt64/factor {
		return 0, NewInvalidConfigurationError(
			fmt.Sprintf("dimension %d scaled by %d overflows", d, factor), params)
	}
	return d * factor, nil
}

// AddDims adds two dimensions, returning UnknownDim when either is unknown.
// A sum that does not fit in an int64 is an InvalidConfigurationError.
func AddDims(a, b int64) (int64, error) {
	if a < 0 || b < 0 {
		return UnknownDim, nil
	}
	if a > math.MaxInt64-b {
		return 0, NewInvalidConfigurationError(
			fmt.Sprintf("dimension %d plus %d overflows", a, b),
			map[string]any{"dim": a, "addend": b})
	}
	return a + b, nil
}

// ElementCount multiplies dims. known is false when any dim is unknown;
// the error reports a product that does not fit in an int64.
func ElementCount(dims Shape) (n int64, known bool, err error) {
	n = 1
	for _, d := range dims {
		if d < 0 {
			return 0, false, nil
		}
	}
	for _, d := range dims {
		if n, err = ScaleDim(n, d); err != nil {
			return 0, true, err
		}
	}
	return n, true, nil
}
