package facematch

import (
	"math"
	"testing"
)

func TestComputeIoU(t *testing.T) {
	tests := []struct {
		name     string
		a        BBox
		b        BBox
		expected float64
	}{
		{
			name:     "identical boxes",
			a:        BBox{Left: 0, Top: 0, Width: 0.5, Height: 0.5},
			b:        BBox{Left: 0, Top: 0, Width: 0.5, Height: 0.5},
			expected: 1.0,
		},
		{
			name:     "no overlap",
			a:        BBox{Left: 0, Top: 0, Width: 0.1, Height: 0.1},
			b:        BBox{Left: 0.5, Top: 0.5, Width: 0.1, Height: 0.1},
			expected: 0.0,
		},
		{
			name:     "partial overlap",
			a:        BBox{Left: 0, Top: 0, Width: 0.2, Height: 0.2},
			b:        BBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.2},
			expected: 0.01 / 0.07, // intersection=0.01, union=0.04+0.04-0.01
		},
		{
			name:     "one inside other",
			a:        BBox{Left: 0, Top: 0, Width: 0.4, Height: 0.4},
			b:        BBox{Left: 0.1, Top: 0.1, Width: 0.2, Height: 0.2},
			expected: 0.04 / 0.16,
		},
		{
			name:     "empty boxes",
			a:        BBox{},
			b:        BBox{},
			expected: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ComputeIoU(tt.a, tt.b)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("ComputeIoU(%v, %v) = %v, want %v", tt.a, tt.b, result, tt.expected)
			}
		})
	}
}

func TestConvertPixelBBoxToDisplayRelative(t *testing.T) {
	tests := []struct {
		name        string
		bbox        []float64
		width       int // raw file width
		height      int // raw file height
		orientation int
		expected    BBox
		ok          bool
	}{
		{
			name:        "orientation 1 (normal) - no dimension swap",
			bbox:        []float64{100, 200, 300, 400},
			width:       1000,
			height:      800,
			orientation: 1,
			expected:    BBox{Left: 0.1, Top: 0.25, Width: 0.2, Height: 0.25},
			ok:          true,
		},
		{
			name:        "orientation 6 (90 CW) - dimensions swapped for display",
			bbox:        []float64{100, 200, 300, 400},
			width:       1000,
			height:      800,
			orientation: 6,
			expected:    BBox{Left: 0.125, Top: 0.2, Width: 0.25, Height: 0.2},
			ok:          true,
		},
		{
			name:        "orientation 3 (180 rotation) - no dimension swap",
			bbox:        []float64{100, 200, 300, 400},
			width:       1000,
			height:      800,
			orientation: 3,
			expected:    BBox{Left: 0.1, Top: 0.25, Width: 0.2, Height: 0.25},
			ok:          true,
		},
		{
			name:   "invalid bbox",
			bbox:   []float64{100, 200},
			width:  1000,
			height: 800,
		},
		{
			name:   "zero dimensions",
			bbox:   []float64{100, 200, 300, 400},
			width:  0,
			height: 800,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := ConvertPixelBBoxToDisplayRelative(tt.bbox, tt.width, tt.height, tt.orientation)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if !ok {
				return
			}
			assertBBox(t, result, tt.expected)
		})
	}
}

func TestNormalizeBBox(t *testing.T) {
	tests := []struct {
		name     string
		in       BBox
		expected BBox
		ok       bool
	}{
		{
			name:     "inside unit square",
			in:       BBox{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4},
			expected: BBox{Left: 0.1, Top: 0.2, Width: 0.3, Height: 0.4},
			ok:       true,
		},
		{
			name:     "negative origin clamped",
			in:       BBox{Left: -0.2, Top: -1, Width: 0.3, Height: 0.4},
			expected: BBox{Left: 0, Top: 0, Width: 0.3, Height: 0.4},
			ok:       true,
		},
		{
			name:     "overflow trimmed",
			in:       BBox{Left: 0.8, Top: 0.9, Width: 0.5, Height: 0.5},
			expected: BBox{Left: 0.8, Top: 0.9, Width: 0.2, Height: 0.1},
			ok:       true,
		},
		{
			name: "zero width",
			in:   BBox{Left: 0.1, Top: 0.1, Width: 0, Height: 0.2},
		},
		{
			name: "origin at right edge",
			in:   BBox{Left: 1, Top: 0.1, Width: 0.2, Height: 0.2},
		},
		{
			name: "NaN",
			in:   BBox{Left: math.NaN(), Top: 0.1, Width: 0.2, Height: 0.2},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, ok := NormalizeBBox(tt.in)
			if ok != tt.ok {
				t.Fatalf("NormalizeBBox(%v) ok = %v, want %v", tt.in, ok, tt.ok)
			}
			if ok {
				assertBBox(t, result, tt.expected)
			}
		})
	}
}

func assertBBox(t *testing.T, got, want BBox) {
	t.Helper()
	if math.Abs(got.Left-want.Left) > 1e-9 || math.Abs(got.Top-want.Top) > 1e-9 ||
		math.Abs(got.Width-want.Width) > 1e-9 || math.Abs(got.Height-want.Height) > 1e-9 {
		t.Errorf("bbox = %+v, want %+v", got, want)
	}
}
