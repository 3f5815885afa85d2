package treemap

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Export resolution for bot delivery.
const (
	ExportWidth  = 1920
	ExportHeight = 1080
)

var (
	colorBorder = color.RGBA{R: 0x11, G: 0x14, B: 0x18, A: 0xff}
	colorText   = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Render draws the cells onto a width x height canvas and returns the
// encoded JPEG. Each cell is filled with its change color, outlined, and
// labeled with the gift name and value label when the cell is large
// enough to hold them.
func Render(cells []Cell, width, height int) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("render: invalid canvas %dx%d", width, height)
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(colorBorder), image.Point{}, draw.Src)

	for _, c := range cells {
		rect := image.Rect(
			int(c.X)+1, int(c.Y)+1,
			int(c.X+c.W)-1, int(c.Y+c.H)-1,
		)
		if rect.Empty() {
			continue
		}
		draw.Draw(img, rect, image.NewUniform(CellColor(c.Change)), image.Point{}, draw.Src)
		drawLabels(img, rect, c)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("render: jpeg encode: %w", err)
	}
	return buf.Bytes(), nil
}

// RenderExport renders the layout at the fixed 1920x1080 export size.
func RenderExport(items []Item) ([]byte, error) {
	cells := Layout(items, ExportWidth, ExportHeight)
	return Render(cells, ExportWidth, ExportHeight)
}

// drawLabels centers the name and value label inside the cell. Labels
// that would overflow the cell are dropped rather than clipped.
func drawLabels(img *image.RGBA, rect image.Rectangle, c Cell) {
	face := basicfont.Face7x13
	lineH := face.Metrics().Height.Ceil()

	lines := make([]string, 0, 2)
	if c.Name != "" {
		lines = append(lines, c.Name)
	}
	if c.Label != "" {
		lines = append(lines, c.Label)
	}
	if len(lines) == 0 || rect.Dy() < lineH*len(lines)+4 {
		return
	}

	d := font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(colorText),
		Face: face,
	}

	totalH := lineH * len(lines)
	y := rect.Min.Y + (rect.Dy()-totalH)/2 + face.Metrics().Ascent.Ceil()
	for _, line := range lines {
		w := d.MeasureString(line).Ceil()
		if w > rect.Dx()-4 {
			y += lineH
			continue
		}
		d.Dot = fixed.P(rect.Min.X+(rect.Dx()-w)/2, y)
		d.DrawString(line)
		y += lineH
	}
}
