package raster

import (
	"fmt"
	"image"
	"image/draw"
)

// MSE computes the mean squared error over the RGB channels of two frames.
// Alpha is ignored. Frames of different size are an error.
func MSE(current, reference image.Image) (float64, error) {
	a, b := toRGBA(current), toRGBA(reference)

	width, height := a.Bounds().Dx(), a.Bounds().Dy()
	if width != b.Bounds().Dx() || height != b.Bounds().Dy() {
		return 0, fmt.Errorf("frame size mismatch: %dx%d vs %dx%d",
			width, height, b.Bounds().Dx(), b.Bounds().Dy())
	}
	if width == 0 || height == 0 {
		return 0, nil
	}

	var sum float64
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			i := a.PixOffset(a.Rect.Min.X+x, a.Rect.Min.Y+y)
			j := b.PixOffset(b.Rect.Min.X+x, b.Rect.Min.Y+y)

			dr := float64(a.Pix[i+0]) - float64(b.Pix[j+0])
			dg := float64(a.Pix[i+1]) - float64(b.Pix[j+1])
			db := float64(a.Pix[i+2]) - float64(b.Pix[j+2])

			sum += dr*dr + dg*dg + db*db
		}
	}

	// Mean over pixels and channels
	return sum / float64(width*height*3), nil
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	bounds := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba
}
