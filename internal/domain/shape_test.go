package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape(t *testing.T) {
	s := NewShape(-1, 16, 16, 3)

	assert.Equal(t, 4, s.Rank())
	assert.Equal(t, "[-1, 16, 16, 3]", s.String())
	assert.False(t, s.IsKnown(0))
	assert.True(t, s.IsKnown(1))
	assert.True(t, s.FullyKnown(), "batch axis is ignored")
	assert.False(t, NewShape(-1, -1, 3).FullyKnown())

	c := s.Clone()
	c[1] = 99
	assert.Equal(t, int64(16), s[1], "Clone must not share storage")
	assert.True(t, s.Equal(NewShape(-1, 16, 16, 3)))
}

func TestDimArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		op      func() (int64, error)
		want    int64
		wantErr bool
	}{
		{name: "scale", op: func() (int64, error) { return ScaleDim(16, 3) }, want: 48},
		{name: "scale unknown", op: func() (int64, error) { return ScaleDim(UnknownDim, 3) }, want: UnknownDim},
		{name: "scale by zero", op: func() (int64, error) { return ScaleDim(16, 0) }, want: 0},
		{name: "scale to max", op: func() (int64, error) { return ScaleDim(math.MaxInt64, 1) }, want: math.MaxInt64},
		{name: "scale overflow", op: func() (int64, error) { return ScaleDim(16, 1<<62) }, wantErr: true},
		{name: "negative factor", op: func() (int64, error) { return ScaleDim(16, -2) }, wantErr: true},
		{name: "add", op: func() (int64, error) { return AddDims(2, 3) }, want: 5},
		{name: "add unknown", op: func() (int64, error) { return AddDims(2, UnknownDim) }, want: UnknownDim},
		{name: "add overflow", op: func() (int64, error) { return AddDims(math.MaxInt64, 1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.op()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfiguration)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ScaleDim(16, 1<<62)
	var ie *ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, int64(16), ie.Params["dim"])
	assert.Equal(t, int64(1<<62), ie.Params["factor"])
}

func TestElementCount(t *testing.T) {
	n, known, err := ElementCount(NewShape(4, 5, 6))
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, int64(120), n)

	_, known, err = ElementCount(NewShape(4, UnknownDim, 1<<62))
	require.NoError(t, err)
	assert.False(t, known, "unknown dims win over overflow")

	_, _, err = ElementCount(NewShape(1<<32, 1<<32))
	assert.ErrorIs(t, err, ErrInvalidConfiguration)
}

func TestParseFormatVersion(t *testing.T) {
	tests := []struct {
		in      string
		want    FormatVersion
		wantErr bool
	}{
		{in: "keras1", want: FormatKeras1},
		{in: "Keras2", want: FormatKeras2},
		{in: "2", want: FormatKeras2},
		{in: "1.2.2", want: FormatKeras1},
		{in: "2.4.0", want: FormatKeras2},
		{in: "3.0", wantErr: true},
		{in: "tensorflow", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormatVersion(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVersionRange(t *testing.T) {
	r := OnlyVersion(FormatKeras1)

	assert.True(t, r.Contains(FormatKeras1))
	assert.False(t, r.Contains(FormatKeras2))
	assert.True(t, AllVersions.Overlaps(r))
	assert.False(t, r.Overlaps(OnlyVersion(FormatKeras2)))
	assert.False(t, VersionRange{Min: 2, Max: 1}.Valid())
	assert.Equal(t, "keras1..keras2", AllVersions.String())
}
