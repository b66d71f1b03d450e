package capsnet

import (
	"math/rand"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/gorgonia/ops/nn"
	"gorgonia.org/tensor"
)

var Float = G.Float32

type maebe struct {
	err error
	rnd *rand.Rand
}

// generic monad... may be useful
func (m *maebe) do(f func() (*G.Node, error)) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = f(); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// conv applies a valid padding convolution. Capsule convolutions shrink the
// feature map, so unlike the usual same padding conv there is no padding at all.
func (m *maebe) conv(input *G.Node, filterCount, size, stride int, name string) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	featureCount := input.Shape()[1]
	filterShape := tensor.Shape{filterCount, featureCount, size, size}
	filter := G.NewTensor(input.Graph(), Float, 4, G.WithShape(filterShape...), G.WithName("Filter"+name), G.WithValue(m.glorotU(filterShape)))

	if retVal, m.err = nnops.Conv2d(input, filter, []int{size, size}, []int{0, 0}, []int{stride, stride}, []int{1, 1}); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) rectify(input *G.Node) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = nnops.Rectify(input); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) reshape(input *G.Node, to tensor.Shape) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Reshape(input, to); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) transpose(input *G.Node, pattern ...int) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Transpose(input, pattern...); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

func (m *maebe) sum(input *G.Node, along ...int) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.Sum(input, along...); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}

// softmax normalizes along the given axis. Each slice along that axis sums to 1.
func (m *maebe) softmax(input *G.Node, axis int) (retVal *G.Node) {
	if m.err != nil {
		return nil
	}
	if retVal, m.err = G.SoftMax(input, axis); m.err != nil {
		m.err = errors.WithStack(m.err)
	}
	return
}
