package model

import (
	"fmt"
)

type Layout string

const (
	NCHW Layout = "NCHW"
	NHWC Layout = "NHWC"
)

const DefaultImageSize = 224

type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	Layout      Layout  `json:"layout"`
	ImageSize   int     `json:"image_size"`
}

func (m Metadata) InputSize() int {
	return volume(m.InputShape)
}

func (m Metadata) NumClasses() int {
	return volume(m.OutputShape)
}

// Result is the argmax of one classification.
type Result struct {
	ClassIndex  int
	Label       string
	Confidence  float32
	Scores      []float32
	Predictions map[string]float32 // score per class name
}

func volume(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}

// NewMetadata builds metadata from an image model's declared input and output.
// Dynamic dimensions (-1 or 0) are fixed to 1, which pins the batch size.
func NewMetadata(inputName string, inputShape []int64, outputName string, outputShape []int64) (Metadata, error) {
	in := resolveDynamic(inputShape)
	out := resolveDynamic(outputShape)

	if len(in) != 4 {
		return Metadata{}, fmt.Errorf("expected a 4-d image input, got shape %v", inputShape)
	}

	meta := Metadata{
		InputName:   inputName,
		OutputName:  outputName,
		InputShape:  in,
		OutputShape: out,
	}

	switch {
	case in[1] == 3:
		meta.Layout = NCHW
		meta.ImageSize = int(in[2])
	case in[3] == 3:
		meta.Layout = NHWC
		meta.ImageSize = int(in[1])
	default:
		return Metadata{}, fmt.Errorf("cannot find a 3-channel axis in input shape %v", inputShape)
	}

	if meta.ImageSize <= 1 {
		meta.ImageSize = DefaultImageSize
		if meta.Layout == NCHW {
			meta.InputShape[2], meta.InputShape[3] = DefaultImageSize, DefaultImageSize
		} else {
			meta.InputShape[1], meta.InputShape[2] = DefaultImageSize, DefaultImageSize
		}
	}

	return meta, nil
}

func resolveDynamic(shape []int64) []int64 {
	out := make([]int64, len(shape))
	for i, d := range shape {
		if d <= 0 {
			d = 1
		}
		out[i] = d
	}
	return out
}
