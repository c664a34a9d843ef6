package recognition

import (
	"image"
	"image/color"

	"github.com/kozaktomas/face-attendance/internal/facematch"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	boxThickness = 2
	labelOffsetX = 6
	labelOffsetY = 10
)

var (
	knownColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	unknownColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}
)

func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(b)
	draw.Draw(dst, b, src, b.Min, draw.Src)
	return dst
}

func drawFace(img *image.RGBA, f FaceResult) {
	if f.Box.Empty() {
		return
	}
	c := unknownColor
	if f.Known {
		c = knownColor
	}
	drawRect(img, f.Box, c, boxThickness)
	drawLabel(img, f.Box.Min.X+labelOffsetX, f.Box.Min.Y-labelOffsetY, facematch.DisplayLabel(f.Label), c)
}

// drawRect strokes r inward with the given thickness.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color, thickness int) {
	u := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+thickness),
		image.Rect(r.Min.X, r.Max.Y-thickness, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+thickness, r.Max.Y),
		image.Rect(r.Max.X-thickness, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e.Intersect(r), u, image.Point{}, draw.Src)
	}
}

// drawLabel writes text with its baseline at (x, y). Text outside the image is clipped.
func drawLabel(img *image.RGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}
