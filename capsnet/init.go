package capsnet

import (
	"math/rand"

	"github.com/chewxy/math32"
	"gorgonia.org/tensor"
)

// Weight initializers backed by an explicitly seeded RNG. Gorgonia's stock
// InitWFns draw from their own generators, which makes runs irreproducible;
// every learnable here gets its backing from the maebe's *rand.Rand instead.

func uniformBacking(rnd *rand.Rand, n int, low, high float32) []float32 {
	retVal := make([]float32, n)
	for i := range retVal {
		retVal[i] = low + (high-low)*rnd.Float32()
	}
	return retVal
}

// glorotU initializes a tensor uniformly in ±sqrt(6/(fanIn+fanOut)).
func (m *maebe) glorotU(shp tensor.Shape) *tensor.Dense {
	fanIn, fanOut := fans(shp)
	limit := math32.Sqrt(6 / (fanIn + fanOut))
	return m.uniform(shp, -limit, limit)
}

// uniform initializes a tensor uniformly in [low, high).
func (m *maebe) uniform(shp tensor.Shape, low, high float32) *tensor.Dense {
	return tensor.New(tensor.WithShape(shp.Clone()...), tensor.WithBacking(uniformBacking(m.rnd, shp.TotalSize(), low, high)))
}

func fans(shp tensor.Shape) (fanIn, fanOut float32) {
	switch shp.Dims() {
	case 4: // conv filter: [filters, features, kh, kw]
		receptive := float32(shp[2] * shp[3])
		fanIn = float32(shp[1]) * receptive
		fanOut = float32(shp[0]) * receptive
	default:
		fanIn = float32(shp[0])
		fanOut = float32(shp[shp.Dims()-1])
	}
	return fanIn, fanOut
}
