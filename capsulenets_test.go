package capsulenets

import (
	"path/filepath"
	"testing"

	"github.com/ayushchakravarthy/capsule-nets/capsnet"
	"github.com/ayushchakravarthy/capsule-nets/mnist"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorgonia.org/tensor"
)

// smallConf is a capsule network small enough for tests.
func smallConf() capsnet.Config {
	conf := capsnet.DefaultConf(2, 4)
	conf.Height = 10
	conf.Width = 10
	conf.Conv1Filters = 4
	conf.Conv1Kernel = 3
	conf.Conv1Stride = 1
	conf.PrimaryCaps = 2
	conf.PrimaryDim = 4
	conf.PrimaryKernel = 3
	conf.PrimaryStride = 2
	conf.OutputDim = 4
	conf.BatchSize = 2
	return conf
}

// smallSet builds a synthetic labelled split matching smallConf's geometry.
func smallSet(n int) *mnist.Set {
	imgSize := 10 * 10
	backing := make([]float32, n*imgSize)
	labels := make([]uint8, n)
	for i := 0; i < n; i++ {
		labels[i] = uint8(i % 4)
		for j := 0; j < imgSize; j++ {
			backing[i*imgSize+j] = float32((i+j)%5) / 5
		}
	}
	return &mnist.Set{
		Images: tensor.New(tensor.WithShape(n, 1, 10, 10), tensor.WithBacking(backing)),
		Labels: labels,
		N:      n,
	}
}

func TestNewPanicsOnInvalidConf(t *testing.T) {
	conf := smallConf()
	conf.NClasses = 1
	assert.Panics(t, func() { New(Config{NNConf: conf}) })
}

func TestPrepareBatches(t *testing.T) {
	s := New(Config{Name: "test", NNConf: smallConf(), Epochs: 1})

	// 5 examples, batch size 2: the trailing example is dropped
	Xs, Ys, batches, err := s.prepareBatches(smallSet(5))
	require.NoError(t, err)

	assert := assert.New(t)
	assert.Equal(2, batches)
	assert.Equal(tensor.Shape{4, 1, 10, 10}, Xs.Shape())
	assert.Equal(tensor.Shape{4, 4}, Ys.Shape())

	ys := Ys.Data().([]float32)
	for i := 0; i < 4; i++ {
		assert.Equal(float32(1), ys[i*4+i%4], "example %d must be one-hot at its label", i)
	}

	_, _, _, err = s.prepareBatches(smallSet(1))
	assert.Error(err, "a single example cannot fill a batch of 2")
}

func TestSessionMarginLoss(t *testing.T) {
	s := New(Config{Name: "test", NNConf: smallConf(), Epochs: 1})

	// all lengths exactly on their margins: no penalty
	assert.InDelta(t, 0, s.marginLoss([]float32{0.9, 0.1, 0.1, 0.1}, 0), 1e-7)

	// target short by 0.7, one non-target over by 0.2
	loss := s.marginLoss([]float32{0.2, 0.3, 0.1, 0.1}, 0)
	assert.InDelta(t, 0.7*0.7+0.5*0.2*0.2, loss, 1e-5)
}

func TestSessionLearn(t *testing.T) {
	conf := Config{
		Name:              "smoke",
		NNConf:            smallConf(),
		Epochs:            1,
		LearnRate:         0.001,
		TestBatchSize:     2,
		CheckpointPattern: filepath.Join(t.TempDir(), "%03d_model.gob"),
	}
	s := New(conf)
	require.NoError(t, s.Learn(smallSet(4), smallSet(2)))

	assert := assert.New(t)
	require.Len(t, s.Accuracy, 1)
	assert.True(s.Accuracy[0] >= 0 && s.Accuracy[0] <= 1)
	require.Len(t, s.TestLoss, 1)
	assert.False(s.TestLoss[0] < 0)

	// the checkpoint must load back
	s2 := New(conf)
	require.NoError(t, s2.Load(filepath.Join(filepath.Dir(conf.CheckpointPattern), "000_model.gob")))
}
