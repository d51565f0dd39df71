package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	previewPixelsPerUnit = 8
	previewGridStep      = 8
	previewBaseRadius    = 6
)

// kindAppearance holds the preview colour of each object kind.
var kindAppearance = map[ObjectKind]string{
	KindTree:  "#2e7d32",
	KindRock:  "#8d8d8d",
	KindGrass: "#9ccc65",
}

// SaveChunkPreview renders a top-down PNG of the chunk into outputDir as
// chunk_{x}_{z}.png. Each object is a disc sized by its scale with a tick
// showing its yaw.
func SaveChunkPreview(chunk *ChunkData, outputDir string) error {
	if chunk == nil {
		return fmt.Errorf("chunk is nil")
	}
	if err := ensurePreviewDir(outputDir); err != nil {
		return err
	}

	size := ChunkSize * previewPixelsPerUnit
	img := image.NewNRGBA(image.Rect(0, 0, size, size))

	background := color.NRGBA{R: 38, G: 50, B: 30, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)
	drawGrid(img, applyLighting(background, 1.4))

	origin := chunk.Coord().Origin()
	for _, obj := range chunk.Objects {
		cx := int(math.Round((obj.Position.X() - origin.X()) * previewPixelsPerUnit))
		cy := int(math.Round((obj.Position.Z() - origin.Z()) * previewPixelsPerUnit))
		radius := int(math.Round(previewBaseRadius * obj.Scale.X()))

		base := resolveKindColor(obj.Kind)
		fillDisc(img, cx, cy, radius, base)

		yaw := obj.Rotation.Y()
		tipX := cx + int(math.Round(math.Cos(yaw)*float64(radius)))
		tipY := cy + int(math.Round(math.Sin(yaw)*float64(radius)))
		drawLine(img, cx, cy, tipX, tipY, applyLighting(base, 0.5))
	}

	path := filepath.Join(outputDir, fmt.Sprintf("chunk_%d_%d.png", chunk.X, chunk.Z))
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

func resolveKindColor(kind ObjectKind) color.NRGBA {
	if hex, ok := kindAppearance[kind]; ok {
		if col, ok := parseHexColor(hex); ok {
			return col
		}
	}
	return color.NRGBA{R: 128, G: 128, B: 128, A: 255}
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	v, err := strconv.ParseUint(trimmed, 16, 32)
	if err != nil {
		return color.NRGBA{}, false
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	scale := func(c uint8) uint8 {
		return uint8(clamp(math.Round(float64(c)*factor), 0, 255))
	}
	return color.NRGBA{R: scale(base.R), G: scale(base.G), B: scale(base.B), A: 255}
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

func drawGrid(img *image.NRGBA, col color.NRGBA) {
	bounds := img.Bounds()
	step := previewGridStep * previewPixelsPerUnit
	for x := bounds.Min.X; x < bounds.Max.X; x += step {
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			img.SetNRGBA(x, y, col)
		}
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y += step {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			img.SetNRGBA(x, y, col)
		}
	}
}

func fillDisc(img *image.NRGBA, cx, cy, radius int, col color.NRGBA) {
	if radius < 1 {
		radius = 1
	}
	r2 := radius * radius
	for dy := -radius; dy <= radius; dy++ {
		for dx := -radius; dx <= radius; dx++ {
			if dx*dx+dy*dy > r2 {
				continue
			}
			// SetNRGBA ignores points outside the bounds.
			img.SetNRGBA(cx+dx, cy+dy, col)
		}
	}
}

func drawLine(img *image.NRGBA, x0, y0, x1, y1 int, col color.NRGBA) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	errTerm := dx + dy
	for {
		img.SetNRGBA(x0, y0, col)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * errTerm
		if e2 >= dy {
			errTerm += dy
			x0 += sx
		}
		if e2 <= dx {
			errTerm += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}
