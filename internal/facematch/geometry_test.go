package facematch

import (
	"image"
	"math"
	"testing"
)

func TestConvertPixelBBoxToRelative(t *testing.T) {
	tests := []struct {
		name     string
		bbox     []float64
		width    int
		height   int
		expected []float64
	}{
		{
			name:     "quarter box",
			bbox:     []float64{0, 0, 50, 25},
			width:    200,
			height:   100,
			expected: []float64{0, 0, 0.25, 0.25},
		},
		{
			name:     "full frame",
			bbox:     []float64{0, 0, 640, 480},
			width:    640,
			height:   480,
			expected: []float64{0, 0, 1, 1},
		},
		{
			name:     "zero dimensions pass through",
			bbox:     []float64{1, 2, 3, 4},
			width:    0,
			height:   0,
			expected: []float64{1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := ConvertPixelBBoxToRelative(tt.bbox, tt.width, tt.height)
			if len(result) != len(tt.expected) {
				t.Fatalf("expected %d values, got %d", len(tt.expected), len(result))
			}
			for i := range result {
				if math.Abs(result[i]-tt.expected[i]) > 1e-9 {
					t.Errorf("result[%d] = %f, want %f", i, result[i], tt.expected[i])
				}
			}
		})
	}
}

func TestClampBBox(t *testing.T) {
	bounds := image.Rect(0, 0, 100, 80)

	tests := []struct {
		name     string
		bbox     []float64
		expected image.Rectangle
	}{
		{"inside", []float64{10.2, 20.7, 30.1, 40.9}, image.Rect(10, 20, 31, 41)},
		{"overflowing", []float64{-5, -5, 120, 90}, image.Rect(0, 0, 100, 80)},
		{"outside", []float64{200, 200, 210, 210}, image.Rectangle{}},
		{"malformed", []float64{1, 2, 3}, image.Rectangle{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClampBBox(tt.bbox, bounds)
			if got != tt.expected && !(got.Empty() && tt.expected.Empty()) {
				t.Errorf("ClampBBox(%v) = %v, want %v", tt.bbox, got, tt.expected)
			}
		})
	}
}
