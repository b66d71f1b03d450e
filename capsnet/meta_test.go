package capsnet

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

func TestShuffleBatch(t *testing.T) {
	const n, imgSize, nClasses = 6, 9, 4

	// distinct, recognizable rows: image i is all i, label i%nClasses
	xsBacking := make([]float32, n*imgSize)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		for j := 0; j < imgSize; j++ {
			xsBacking[i*imgSize+j] = float32(i)
		}
		labels[i] = i % nClasses
	}
	Xs := tensor.New(tensor.WithShape(n, 1, 3, 3), tensor.WithBacking(xsBacking))
	Ys := tensor.New(tensor.WithShape(n, nClasses), tensor.WithBacking(oneHot(labels, nClasses)))

	require.NoError(t, shuffleBatch(Xs, Ys))

	assert := assert.New(t)
	assert.Equal(tensor.Shape{n, 1, 3, 3}, Xs.Shape(), "shape must be restored after shuffling")
	xs := Xs.Data().([]float32)
	ys := Ys.Data().([]float32)
	seen := make(map[int]bool)
	for i := 0; i < n; i++ {
		orig := int(xs[i*imgSize])
		for j := 1; j < imgSize; j++ {
			assert.Equal(float32(orig), xs[i*imgSize+j], "row %d was torn apart", i)
		}
		assert.False(seen[orig], "row %d appears twice", orig)
		seen[orig] = true
		// the label must have moved with its image
		assert.Equal(float32(1), ys[i*nClasses+orig%nClasses], "row %d lost its label", i)
	}
}

func TestTrain(t *testing.T) {
	conf := smallConf()
	c := New(conf)
	require.NoError(t, c.Init())

	const n = 4 // 2 batches of 2
	Xs := tensor.New(tensor.WithShape(n, conf.Channels, conf.Height, conf.Width),
		tensor.WithBacking(tensor.Random(Float, n*conf.Channels*conf.Height*conf.Width)))
	Ys := tensor.New(tensor.WithShape(n, conf.NClasses), tensor.WithBacking(oneHot([]int{0, 1, 2, 3}, conf.NClasses)))

	require.NoError(t, Train(c, Xs, Ys, 2, 1, 0.001))
	cost := c.Cost()
	assert.False(t, math32.IsNaN(cost) || math32.IsInf(cost, 0), "cost %v", cost)
}

func TestInferencer(t *testing.T) {
	conf := smallConf()
	c := New(conf)
	require.NoError(t, c.Init())

	inferer, err := Infer(c, 1, false)
	require.NoError(t, err)
	defer inferer.Close()

	image := make([]float32, conf.Channels*conf.Height*conf.Width)
	for i := range image {
		image[i] = float32(i%7) / 7
	}
	probs, class, err := inferer.Infer(image)
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Len(probs, conf.NClasses)
	assert.True(class >= 0 && class < conf.NClasses)
	for i, p := range probs {
		assert.False(math32.IsNaN(p) || math32.IsInf(p, 0), "class %d: %v", i, p)
	}
	if inferer.ExecLog() != "" {
		t.Error("Should not have any logs")
	}

	// the same image through the same weights twice must agree
	probs2, _, err := inferer.Infer(image)
	require.NoError(t, err)
	assert.Equal(probs, probs2)
}
