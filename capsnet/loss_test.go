package capsnet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

func runMarginLoss(t *testing.T, conf Config, lengths, targets []float32, batch int) float32 {
	t.Helper()
	g := G.NewGraph()
	l := G.NewMatrix(g, Float, G.WithShape(batch, conf.NClasses), G.WithName("lengths"))
	tgt := G.NewMatrix(g, Float, G.WithShape(batch, conf.NClasses), G.WithName("targets"))
	m := maebe{rnd: rand.New(rand.NewSource(1))}
	loss := m.marginLoss(l, tgt, conf)
	require.NoError(t, m.err)
	var lossVal G.Value
	G.Read(loss, &lossVal)

	vm := G.NewTapeMachine(g)
	defer vm.Close()
	G.Let(l, tensor.New(tensor.WithShape(batch, conf.NClasses), tensor.WithBacking(lengths)))
	G.Let(tgt, tensor.New(tensor.WithShape(batch, conf.NClasses), tensor.WithBacking(targets)))
	require.NoError(t, vm.RunAll())
	return lossVal.Data().(float32)
}

// Lengths sitting exactly on their margins incur no penalty: the target term
// vanishes at m+, the non-target term vanishes at m-.
func TestMarginLossBoundary(t *testing.T) {
	conf := DefaultConf(3, 3)

	lengths := []float32{0.9, 0.1, 0.1}
	targets := []float32{1, 0, 0}
	loss := runMarginLoss(t, conf, lengths, targets, 1)
	assert.InDelta(t, 0, loss, 1e-7)
}

func TestMarginLoss(t *testing.T) {
	assert := assert.New(t)
	conf := DefaultConf(3, 3)

	// batch 0: target at margin, one non-target at margin, one over by 0.2
	// batch 1: target short by 0.7, non-targets below the margin
	lengths := []float32{
		0.9, 0.1, 0.3,
		0, 0, 0.2,
	}
	targets := []float32{
		1, 0, 0,
		0, 0, 1,
	}
	// 0.5*0.2^2 + 0.7^2 = 0.02 + 0.49
	want := float32(0.51)

	conf.SumLoss = true
	sum := runMarginLoss(t, conf, lengths, targets, 2)
	assert.InDelta(want, sum, 1e-5)

	conf.SumLoss = false
	mean := runMarginLoss(t, conf, lengths, targets, 2)
	assert.InDelta(want/6, mean, 1e-5, "mean is over all batch x class entries")
}
