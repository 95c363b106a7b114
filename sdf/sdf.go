// Package sdf samples signed distance fields stored as grayscale images. Bright pixels are free
// space and dark pixels are obstacles.
package sdf

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	xdraw "golang.org/x/image/draw"

	"go.viam.com/gbpplanner/utils"
)

// Sampler maps world coordinates to field intensities.
type Sampler interface {
	// Sample returns the intensity at a world position, and false outside the field.
	Sample(x, y float64) (uint8, bool)
	// Bounds returns the width and height of the field in pixels.
	Bounds() image.Point
	// WorldSize is the side length, in world units, covered by the field. The field is centred on
	// the origin.
	WorldSize() float64
}

// Image is a Sampler backed by a grayscale image. World y grows upward while image rows grow
// downward, so rows are flipped.
type Image struct {
	gray      *image.Gray
	worldSize float64
}

// NewImage converts img to grayscale and wraps it.
func NewImage(img image.Image, worldSize float64) (*Image, error) {
	if worldSize <= 0 {
		return nil, errors.Errorf("world size must be positive, got %v", worldSize)
	}
	bounds := img.Bounds()
	if bounds.Empty() {
		return nil, errors.New("sdf image is empty")
	}
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, bounds.Min, xdraw.Src)
	return &Image{gray: gray, worldSize: worldSize}, nil
}

// Load reads an image file as a field covering worldSize world units.
func Load(path string, worldSize float64) (*Image, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "loading sdf %q", path)
	}
	return NewImage(img, worldSize)
}

// Bounds returns the image size in pixels.
func (s *Image) Bounds() image.Point {
	return s.gray.Bounds().Size()
}

// WorldSize returns the world size covered by the image.
func (s *Image) WorldSize() float64 {
	return s.worldSize
}

// Gray returns the underlying image.
func (s *Image) Gray() *image.Gray {
	return s.gray
}

// Pixel returns the pixel a world position falls in, and false outside the image.
func (s *Image) Pixel(x, y float64) (image.Point, bool) {
	size := s.Bounds()
	scale := float64(size.X) / s.worldSize
	offset := s.worldSize / 2
	col := math.Floor((x + offset) * scale)
	row := math.Floor((offset - y) * scale)
	if col < 0 || row < 0 || col >= float64(size.X) || row >= float64(size.Y) {
		return image.Point{}, false
	}
	return image.Point{X: int(col), Y: int(row)}, true
}

// Sample returns the intensity at a world position.
func (s *Image) Sample(x, y float64) (uint8, bool) {
	px, ok := s.Pixel(x, y)
	if !ok {
		return 0, false
	}
	return s.gray.GrayAt(px.X, px.Y).Y, true
}

// Rescale returns a copy of the field resampled to width pixels wide, keeping the aspect ratio.
func (s *Image) Rescale(width int) *Image {
	size := s.Bounds()
	height := int(math.Round(float64(size.Y) * float64(width) / float64(size.X)))
	dst := image.NewGray(image.Rect(0, 0, width, max(height, 1)))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), s.gray, s.gray.Bounds(), xdraw.Src, nil)
	return &Image{gray: dst, worldSize: s.worldSize}
}

// FromObstacles builds a field from an obstacle mask where pixels darker than mid-gray are
// obstacles. Free pixels brighten linearly with their distance to the nearest obstacle, reaching
// white at radius pixels. A positive blur smooths the result with a gaussian of that sigma.
func FromObstacles(mask image.Image, worldSize float64, radius int, blur float64) (*Image, error) {
	if radius <= 0 {
		return nil, errors.Errorf("radius must be positive, got %d", radius)
	}
	occupancy, err := NewImage(mask, worldSize)
	if err != nil {
		return nil, err
	}
	size := occupancy.Bounds()
	obstacle := func(x, y int) bool {
		return occupancy.gray.GrayAt(x, y).Y < 128
	}

	field := image.NewGray(image.Rect(0, 0, size.X, size.Y))
	utils.ParallelForEachPixel(size, func(x, y int) {
		if obstacle(x, y) {
			field.SetGray(x, y, color.Gray{Y: 0})
			return
		}
		best := math.Inf(1)
		for dy := -radius; dy <= radius; dy++ {
			for dx := -radius; dx <= radius; dx++ {
				nx, ny := x+dx, y+dy
				if nx < 0 || ny < 0 || nx >= size.X || ny >= size.Y || !obstacle(nx, ny) {
					continue
				}
				best = math.Min(best, math.Hypot(float64(dx), float64(dy)))
			}
		}
		intensity := 255 * utils.Clamp(best/float64(radius), 0, 1)
		field.SetGray(x, y, color.Gray{Y: uint8(intensity)})
	})

	if blur <= 0 {
		return &Image{gray: field, worldSize: worldSize}, nil
	}
	return NewImage(imaging.Blur(field, blur), worldSize)
}

// Clear is a Sampler with no obstacles anywhere.
type Clear struct {
	Size float64
}

// Sample is always outside the field.
func (c Clear) Sample(float64, float64) (uint8, bool) {
	return 0, false
}

// Bounds is empty.
func (c Clear) Bounds() image.Point {
	return image.Point{}
}

// WorldSize returns the configured size.
func (c Clear) WorldSize() float64 {
	return c.Size
}
