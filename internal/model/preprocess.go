package model

import (
	"image"

	"github.com/nfnt/resize"
)

// ResizeTo is the square size images are scaled to before the center crop.
const ResizeTo = 256

var (
	imagenetMean = [3]float32{0.485, 0.456, 0.406}
	imagenetStd  = [3]float32{0.229, 0.224, 0.225}
)

// Preprocess scales img to ResizeTo x ResizeTo, crops the center
// meta.ImageSize square, and normalises each channel with the ImageNet
// mean and standard deviation. The result is laid out as meta.Layout.
func Preprocess(img image.Image, meta Metadata) []float32 {
	size := meta.ImageSize
	if size <= 0 {
		size = DefaultImageSize
	}

	scaled := ResizeTo
	if size > scaled {
		scaled = size
	}

	resized := resize.Resize(uint(scaled), uint(scaled), img, resize.Bicubic)
	bounds := resized.Bounds()
	offset := (scaled - size) / 2

	plane := size * size
	data := make([]float32, 3*plane)

	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			r, g, b, _ := resized.At(bounds.Min.X+offset+x, bounds.Min.Y+offset+y).RGBA()
			rgb := [3]float32{
				float32(r>>8) / 255.0,
				float32(g>>8) / 255.0,
				float32(b>>8) / 255.0,
			}

			pixel := y*size + x
			for c := 0; c < 3; c++ {
				v := (rgb[c] - imagenetMean[c]) / imagenetStd[c]
				if meta.Layout == NCHW {
					data[c*plane+pixel] = v
				} else {
					data[pixel*3+c] = v
				}
			}
		}
	}

	return data
}
