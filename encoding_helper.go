package capsulenets

import (
	"github.com/chewxy/math32"
	"gorgonia.org/vecf32"

	"github.com/ayushchakravarthy/capsule-nets/mnist"
)

// EncodeImage encodes 8 bit grayscale pixels as floats in [0, 1].
func EncodeImage(pixels []byte, prealloc []float32) []float32 {
	if len(prealloc) != len(pixels) {
		prealloc = make([]float32, len(pixels))
	}
	for i := range pixels {
		prealloc[i] = float32(pixels[i])
	}
	vecf32.Scale(prealloc, 1.0/255.0)
	return prealloc
}

// EncodeOneHot encodes a class label as a one-hot row.
func EncodeOneHot(label, nClasses int, prealloc []float32) []float32 {
	if len(prealloc) != nClasses {
		prealloc = make([]float32, nClasses)
	}
	for i := range prealloc {
		prealloc[i] = 0
	}
	prealloc[label] = 1
	return prealloc
}

// Examples flattens a dataset split into individually labelled examples.
// The images alias the split's backing data.
func Examples(set *mnist.Set) []Example {
	shp := set.Images.Shape()
	imgSize := shp.TotalSize() / shp[0]
	data := set.Images.Data().([]float32)

	retVal := make([]Example, set.N)
	for i := range retVal {
		retVal[i] = Example{
			Image: data[i*imgSize : (i+1)*imgSize],
			Label: int(set.Labels[i]),
		}
	}
	return retVal
}

// ArgmaxF32 returns the index of the largest element.
func ArgmaxF32(a []float32) int {
	max := math32.Inf(-1)
	var retVal int
	for i, v := range a {
		if v > max {
			max = v
			retVal = i
		}
	}
	return retVal
}
