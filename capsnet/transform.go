package capsnet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// capsTransform projects each input capsule into a vote for every output
// capsule. w holds one [inDim, outCaps*outDim] block per input capsule.
//
// [batch, inCaps, inDim] x [inCaps, inDim, outCaps*outDim]
//	-> votes [batch, inCaps, outCaps, outDim]
func (m *maebe) capsTransform(u, w *G.Node, outCaps, outDim int) *G.Node {
	if m.err != nil {
		return nil
	}
	shp := u.Shape()
	batch, inCaps := shp[0], shp[1]

	// batch the matmul over the capsule axis, not the data batch axis:
	// each input capsule has its own weight block
	ut := m.transpose(u, 1, 0, 2) // [inCaps, batch, inDim]
	votes := m.do(func() (*G.Node, error) { return G.BatchedMatMul(ut, w) })
	votes = m.transpose(votes, 1, 0, 2) // [batch, inCaps, outCaps*outDim]
	return m.reshape(votes, tensor.Shape{batch, inCaps, outCaps, outDim})
}
