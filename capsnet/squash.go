package capsnet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// epsilon guards the division by the capsule length in squash, and the sqrt
// in the class probabilities. A zero capsule must squash to zero, not NaN.
const epsilon = 1e-8

// squash rescales every capsule vector of a [batch, caps, dim] layer to
// length s/(1+s), where s is its squared norm, preserving direction. Lengths
// land in [0, 1).
func (m *maebe) squash(v *G.Node) *G.Node {
	if m.err != nil {
		return nil
	}
	shp := v.Shape()
	one := G.NewConstant(float32(1))
	eps := G.NewConstant(float32(epsilon))

	sq := m.do(func() (*G.Node, error) { return G.Square(v) })
	lensq := m.sum(sq, 2) // [batch, caps]

	denom := m.do(func() (*G.Node, error) { return G.Add(lensq, one) })
	scale := m.do(func() (*G.Node, error) { return G.HadamardDiv(lensq, denom) })

	length := m.do(func() (*G.Node, error) { return G.Add(lensq, eps) })
	length = m.do(func() (*G.Node, error) { return G.Sqrt(length) })
	scale = m.do(func() (*G.Node, error) { return G.HadamardDiv(scale, length) })

	scale = m.reshape(scale, tensor.Shape{shp[0], shp[1], 1})
	return m.do(func() (*G.Node, error) { return G.BroadcastHadamardProd(v, scale, nil, []byte{2}) })
}
