package capsnet

import (
	G "gorgonia.org/gorgonia"
)

// marginLoss pushes the target class capsule length above MPlus and every
// other class length below MMinus. lengths is [batch, nClasses]; targets is
// the one-hot matrix of the same shape.
//
//	T * relu(m+ - l)^2 + lambda * (1-T) * relu(l - m-)^2
//
// averaged over all batch x class entries, or summed when SumLoss is set.
func (m *maebe) marginLoss(lengths, targets *G.Node, conf Config) *G.Node {
	if m.err != nil {
		return nil
	}
	one := G.NewConstant(float32(1))
	mPlus := G.NewConstant(float32(conf.MPlus))
	mMinus := G.NewConstant(float32(conf.MMinus))
	lambda := G.NewConstant(float32(conf.Lambda))

	pos := m.do(func() (*G.Node, error) { return G.Sub(mPlus, lengths) })
	pos = m.rectify(pos)
	pos = m.do(func() (*G.Node, error) { return G.Square(pos) })
	pos = m.do(func() (*G.Node, error) { return G.HadamardProd(targets, pos) })

	neg := m.do(func() (*G.Node, error) { return G.Sub(lengths, mMinus) })
	neg = m.rectify(neg)
	neg = m.do(func() (*G.Node, error) { return G.Square(neg) })
	absent := m.do(func() (*G.Node, error) { return G.Sub(one, targets) })
	neg = m.do(func() (*G.Node, error) { return G.HadamardProd(absent, neg) })
	neg = m.do(func() (*G.Node, error) { return G.Mul(neg, lambda) })

	losses := m.do(func() (*G.Node, error) { return G.Add(pos, neg) })
	if conf.SumLoss {
		return m.do(func() (*G.Node, error) { return G.Sum(losses) })
	}
	return m.do(func() (*G.Node, error) { return G.Mean(losses) })
}
