package capsnet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// routing resolves, by iterative agreement, which input capsules' votes
// dominate each output capsule. b is the learned base logit matrix
// [inCaps, outCaps]; uHat is the vote tensor [batch, inCaps, outCaps, outDim].
//
// The initial pass couples with softmax(b), shared across the batch. Each
// refinement round then adds the vote/output dot products to a per batch
// working copy of the logits, re-normalizes and re-squashes. The working
// logits are derived nodes: b itself is never written to, and gradients
// reach it through the broadcast add. Exactly iterations rounds are run;
// there is no convergence check.
func (m *maebe) routing(uHat, b *G.Node, iterations int) *G.Node {
	if m.err != nil {
		return nil
	}
	shp := uHat.Shape()
	batch, inCaps, outCaps, outDim := shp[0], shp[1], shp[2], shp[3]

	c := m.softmax(b, 1) // [inCaps, outCaps], rows sum to 1
	c4 := m.reshape(c, tensor.Shape{1, inCaps, outCaps, 1})
	weighted := m.do(func() (*G.Node, error) { return G.BroadcastHadamardProd(uHat, c4, nil, []byte{0, 3}) })
	s := m.sum(weighted, 1) // [batch, outCaps, outDim]
	v := m.squash(s)

	if iterations < 1 {
		return v
	}

	base := m.reshape(b, tensor.Shape{1, inCaps, outCaps})
	var logits *G.Node
	for r := 0; r < iterations; r++ {
		// agreement: dot every vote with the current output estimate
		v4 := m.reshape(v, tensor.Shape{batch, 1, outCaps, outDim})
		agree := m.do(func() (*G.Node, error) { return G.BroadcastHadamardProd(uHat, v4, nil, []byte{1}) })
		agree = m.sum(agree, 3) // [batch, inCaps, outCaps]

		if logits == nil {
			logits = m.do(func() (*G.Node, error) { return G.BroadcastAdd(agree, base, nil, []byte{0}) })
		} else {
			logits = m.do(func() (*G.Node, error) { return G.Add(logits, agree) })
		}

		ci := m.softmax(logits, 2)
		ci4 := m.reshape(ci, tensor.Shape{batch, inCaps, outCaps, 1})
		weighted := m.do(func() (*G.Node, error) { return G.BroadcastHadamardProd(uHat, ci4, nil, []byte{3}) })
		v = m.squash(m.sum(weighted, 1))
	}
	return v
}
