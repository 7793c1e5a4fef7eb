package facematch

import "math"

// ComputeIoU calculates Intersection over Union between two boxes.
func ComputeIoU(a, b BBox) float64 {
	x1 := max(a.Left, b.Left)
	y1 := max(a.Top, b.Top)
	x2 := min(a.Left+a.Width, b.Left+b.Width)
	y2 := min(a.Top+a.Height, b.Top+b.Height)

	if x2 <= x1 || y2 <= y1 {
		return 0 // No intersection
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := a.Width*a.Height + b.Width*b.Height - intersection
	if union <= 0 {
		return 0
	}

	return intersection / union
}

// ConvertPixelBBoxToDisplayRelative converts a pixel bounding box [x1, y1, x2, y2]
// to a relative box in display space.
//
// Stored dimensions are raw file dimensions, which are swapped for EXIF
// orientations 5-8 (90° rotations). The detector already rotated the image,
// so only the dimensions need to follow the orientation.
func ConvertPixelBBoxToDisplayRelative(bbox []float64, fileWidth, fileHeight, orientation int) (BBox, bool) {
	if len(bbox) != 4 || fileWidth <= 0 || fileHeight <= 0 {
		return BBox{}, false
	}

	displayWidth, displayHeight := fileWidth, fileHeight
	if orientation >= 5 && orientation <= 8 {
		displayWidth, displayHeight = fileHeight, fileWidth
	}

	x1 := bbox[0] / float64(displayWidth)
	y1 := bbox[1] / float64(displayHeight)
	x2 := bbox[2] / float64(displayWidth)
	y2 := bbox[3] / float64(displayHeight)

	return NormalizeBBox(BBox{Left: x1, Top: y1, Width: x2 - x1, Height: y2 - y1})
}

// NormalizeBBox clamps a box into the unit square. Boxes with NaN fields or
// without a positive area after clamping are rejected.
func NormalizeBBox(b BBox) (BBox, bool) {
	for _, v := range []float64{b.Left, b.Top, b.Width, b.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BBox{}, false
		}
	}

	b.Left = clamp01(b.Left)
	b.Top = clamp01(b.Top)
	b.Width = clamp01(b.Width)
	b.Height = clamp01(b.Height)
	if b.Width <= 0 || b.Height <= 0 {
		return BBox{}, false
	}

	// Trim whatever overflows the right and bottom edges.
	if b.Left+b.Width > 1 {
		b.Width = max(0, 1-b.Left)
	}
	if b.Top+b.Height > 1 {
		b.Height = max(0, 1-b.Top)
	}
	if b.Width <= 0 || b.Height <= 0 {
		return BBox{}, false
	}

	return b, true
}

func clamp01(v float64) float64 {
	return max(0, min(1, v))
}
