package capsnet

import (
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// primaryCaps converts a feature map into the first capsule representation:
// one convolution whose channels are regrouped into caps vectors of dim per
// spatial position, flattened into a single capsule axis and squashed.
//
// [batch, features, h, w] -> [batch, caps*h'*w', dim]
func (m *maebe) primaryCaps(input *G.Node, caps, dim, kernel, stride int, name string) *G.Node {
	convd := m.conv(input, caps*dim, kernel, stride, name)
	if m.err != nil {
		return nil
	}
	shp := convd.Shape() // [batch, caps*dim, h', w']
	batch, h, w := shp[0], shp[2], shp[3]

	grouped := m.reshape(convd, tensor.Shape{batch, caps, dim, h, w})
	// capsule index runs over (type, row, col); the vector dimension goes last
	permuted := m.transpose(grouped, 0, 1, 3, 4, 2)
	flat := m.reshape(permuted, tensor.Shape{batch, caps * h * w, dim})
	return m.squash(flat)
}
