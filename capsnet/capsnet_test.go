package capsnet

import (
	"bytes"
	"encoding/gob"
	"runtime"
	"testing"

	"github.com/chewxy/math32"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// smallConf is a capsule network small enough for tests: 10x10 inputs,
// 2x3x3 = 18 primary capsules, 4 classes.
func smallConf() Config {
	conf := DefaultConf(2, 4)
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

func oneHot(labels []int, nClasses int) []float32 {
	retVal := make([]float32, len(labels)*nClasses)
	for i, l := range labels {
		retVal[i*nClasses+l] = 1
	}
	return retVal
}

func TestSanity(t *testing.T) {
	conf := smallConf()
	c := New(conf)
	if err := c.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	t.Logf("Number of nodes: %d", len(c.g.AllNodes()))
	prog, _, err := G.Compile(c.g)
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("Requires %d bytes", prog.CPUMemReq())

	m := G.NewTapeMachine(c.g, G.BindDualValues(c.Model()...))
	defer m.Close()
	xs := tensor.New(tensor.WithShape(c.images.Shape()...), tensor.WithBacking(tensor.Random(Float, c.images.Shape().TotalSize())))
	ys := tensor.New(tensor.WithShape(conf.BatchSize, conf.NClasses), tensor.WithBacking(oneHot([]int{1, 3}, conf.NClasses)))
	G.Let(c.images, xs)
	G.Let(c.targets, ys)

	model := G.NodesToValueGrads(c.Model())
	solver := G.NewAdamSolver(G.WithLearnRate(0.001), G.WithBatchSize(float64(conf.BatchSize)))
	for i := 0; i < 3; i++ {
		if err := m.RunAll(); err != nil {
			t.Fatalf("%+v", err)
		}
		cost := c.Cost()
		if math32.IsNaN(cost) || math32.IsInf(cost, 0) {
			t.Fatalf("iteration %d: non-finite cost %v", i, cost)
		}
		if err := solver.Step(model); err != nil {
			t.Fatal(err)
		}
		m.Reset()
	}
	runtime.GC()
}

// The canonical MNIST configuration must wire up exactly: 32 capsule types on
// a 6x6 grid makes 1152 primary capsules of dimension 8, transformed into 10
// class capsules of dimension 16.
func TestShapeContract(t *testing.T) {
	conf := DefaultConf(3, 10)
	conf.BatchSize = 1
	conf.FwdOnly = true

	c := New(conf)
	if err := c.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	assert := assert.New(t)
	assert.Equal(tensor.Shape{1, 10, 16}, c.caps.Shape())
	assert.Equal(tensor.Shape{1, 10}, c.probs.Shape())
	assert.Equal(tensor.Shape{1152, 10}, c.b.Shape())
}

func TestZeroImageForward(t *testing.T) {
	conf := DefaultConf(3, 10)
	conf.BatchSize = 1
	conf.FwdOnly = true

	c := New(conf)
	if err := c.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	m := G.NewTapeMachine(c.g)
	defer m.Close()

	zero := tensor.New(tensor.WithShape(1, 1, 28, 28), tensor.Of(Float))
	G.Let(c.images, zero)
	if err := m.RunAll(); err != nil {
		t.Fatalf("%+v", err)
	}

	probs := c.Probs()
	if len(probs) != 10 {
		t.Fatalf("expected 10 probabilities, got %d", len(probs))
	}
	for i, p := range probs {
		if math32.IsNaN(p) || math32.IsInf(p, 0) {
			t.Errorf("class %d: non-finite probability %v", i, p)
		}
		if p < 0 || p >= 1 {
			t.Errorf("class %d: probability %v out of [0,1)", i, p)
		}
	}
}

func TestEncodeDecode(t *testing.T) {
	conf := smallConf()
	c := New(conf)
	if err := c.Init(); err != nil {
		t.Fatalf("%+v", err)
	}

	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	if err := enc.Encode(c); err != nil {
		t.Fatalf("Encoding Failure %v", err)
	}

	dec := gob.NewDecoder(&buf)
	c2 := New(conf)
	if err := dec.Decode(c2); err != nil {
		t.Fatalf("Decoding Failure %v", err)
	}

	model := c.Model()
	model2 := c2.Model()
	if len(model) != len(model2) {
		t.Fatalf("model size mismatch: %d vs %d", len(model), len(model2))
	}
	for i, n := range model {
		if diff := cmp.Diff(n.Value().Data(), model2[i].Value().Data()); diff != "" {
			t.Errorf("%d - %v differs after round trip:\n%s", i, n.Name(), diff)
		}
	}
}

func TestClone(t *testing.T) {
	c := New(smallConf())
	if err := c.Init(); err != nil {
		t.Fatalf("%+v", err)
	}
	c2, err := c.Clone()
	if err != nil {
		t.Fatalf("%+v", err)
	}

	model := c.Model()
	model2 := c2.Model()
	for i, n := range model {
		if diff := cmp.Diff(n.Value().Data(), model2[i].Value().Data()); diff != "" {
			t.Errorf("%d - %v differs after clone:\n%s", i, n.Name(), diff)
		}
	}
}
