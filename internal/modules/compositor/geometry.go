package compositor

import (
	"fmt"
	"math"
)

const mmPerInch = 25.4

// Geometry is the pixel layout of a bordered print.
type Geometry struct {
	PxPerMM  float64
	PrintW   int
	PrintH   int
	BorderPx int
	ArtW     int
	ArtH     int
}

// ComputeGeometry derives pixel sizes from physical dimensions. The art box
// must keep at least one pixel on each axis.
func ComputeGeometry(widthMM, heightMM, borderMM float64, dpi int) (Geometry, error) {
	if dpi <= 0 {
		return Geometry{}, fmt.Errorf("dpi must be positive, got %d", dpi)
	}
	if widthMM <= 0 || heightMM <= 0 {
		return Geometry{}, fmt.Errorf("print dimensions must be positive, got %vx%vmm", widthMM, heightMM)
	}
	if borderMM < 0 {
		return Geometry{}, fmt.Errorf("border must not be negative, got %vmm", borderMM)
	}
	pxPerMM := float64(dpi) / mmPerInch
	g := Geometry{
		PxPerMM:  pxPerMM,
		BorderPx: int(math.Round(borderMM * pxPerMM)),
		PrintW:   int(math.Round(widthMM * pxPerMM)),
		PrintH:   int(math.Round(heightMM * pxPerMM)),
	}
	g.ArtW = g.PrintW - 2*g.BorderPx
	g.ArtH = g.PrintH - 2*g.BorderPx
	if g.ArtW < 1 || g.ArtH < 1 {
		return Geometry{}, fmt.Errorf("border %vmm leaves no art area on %vx%vmm at %d dpi", borderMM, widthMM, heightMM, dpi)
	}
	return g, nil
}

// Layout places a scaled source inside the art box. Offsets are relative to
// the full print canvas, border included.
type Layout struct {
	ScaledW   int
	ScaledH   int
	PadLeft   int
	PadRight  int
	PadTop    int
	PadBottom int
	OffsetX   int
	OffsetY   int
}

// FitLayout letterboxes srcW x srcH into the art box without cropping. An odd
// leftover pixel goes to the right or bottom padding.
func FitLayout(srcW, srcH int, g Geometry) Layout {
	if srcW < 1 {
		srcW = 1
	}
	if srcH < 1 {
		srcH = 1
	}
	scale := math.Min(float64(g.ArtW)/float64(srcW), float64(g.ArtH)/float64(srcH))
	l := Layout{
		ScaledW: clamp(int(math.Round(float64(srcW)*scale)), 1, g.ArtW),
		ScaledH: clamp(int(math.Round(float64(srcH)*scale)), 1, g.ArtH),
	}
	padX := g.ArtW - l.ScaledW
	padY := g.ArtH - l.ScaledH
	l.PadLeft = padX / 2
	l.PadRight = padX - l.PadLeft
	l.PadTop = padY / 2
	l.PadBottom = padY - l.PadTop
	l.OffsetX = g.BorderPx + l.PadLeft
	l.OffsetY = g.BorderPx + l.PadTop
	return l
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
