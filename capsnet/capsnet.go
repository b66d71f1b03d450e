package capsnet

import (
	"bytes"
	"encoding/gob"
	"math/rand"

	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// CapsNet is the whole capsule network architecture.
//
// image -> relu(conv1) -> primary capsules -> votes -> routing -> class
// capsules. The class probability is the Euclidean length of that class's
// capsule vector.
type CapsNet struct {
	Config

	g       *G.ExprGraph
	images  *G.Node // input batch, BCHW
	targets *G.Node // one-hot labels. A matrix of 1s and 0s

	b     *G.Node // routing logits, learned and never reset
	caps  *G.Node // output class capsules
	probs *G.Node // per class capsule lengths

	capsVal  G.Value
	probsVal G.Value
	costVal  G.Value
}

// New returns a new, uninitialized *CapsNet.
func New(conf Config) *CapsNet {
	return &CapsNet{Config: conf}
}

// Init builds the expression graph: the forward pass, and unless FwdOnly is
// set, the margin loss and its gradients.
func (c *CapsNet) Init() error {
	if _, err := c.NumPrimaryCaps(); err != nil {
		return errors.WithMessage(err, "invalid configuration")
	}
	c.reset()
	c.g = G.NewGraph()
	m := maebe{rnd: rand.New(rand.NewSource(c.Seed))}
	if err := c.fwd(&m); err != nil {
		return err
	}
	return c.bwd(&m)
}

func (c *CapsNet) fwd(m *maebe) error {
	// note, the data should be arranged like so:
	//	BatchSize, Channels, Height, Width
	// because Gorgonia only supports doing convolutions on BCHW format
	c.images = G.NewTensor(c.g, Float, 4, G.WithShape(c.BatchSize, c.Channels, c.Height, c.Width), G.WithName("Images"))

	conv1 := m.conv(c.images, c.Conv1Filters, c.Conv1Kernel, c.Conv1Stride, "Conv1")
	conv1 = m.rectify(conv1)

	primary := m.primaryCaps(conv1, c.PrimaryCaps, c.PrimaryDim, c.PrimaryKernel, c.PrimaryStride, "Primary")
	if m.err != nil {
		return m.err
	}

	inCaps := primary.Shape()[1]
	stdv := 1 / math32.Sqrt(float32(inCaps))
	wShape := tensor.Shape{inCaps, c.PrimaryDim, c.NClasses * c.OutputDim}
	w := G.NewTensor(c.g, Float, 3, G.WithShape(wShape...), G.WithName("CapsWeights"), G.WithValue(m.uniform(wShape, -stdv, stdv)))
	uHat := m.capsTransform(primary, w, c.NClasses, c.OutputDim)

	c.b = G.NewMatrix(c.g, Float, G.WithShape(inCaps, c.NClasses), G.WithName("RoutingLogits"), G.WithInit(G.Zeroes()))
	c.caps = m.routing(uHat, c.b, c.RoutingIterations)

	// class probability = capsule length
	eps := G.NewConstant(float32(epsilon))
	sq := m.do(func() (*G.Node, error) { return G.Square(c.caps) })
	lensq := m.sum(sq, 2)
	lensq = m.do(func() (*G.Node, error) { return G.Add(lensq, eps) })
	c.probs = m.do(func() (*G.Node, error) { return G.Sqrt(lensq) })
	if m.err != nil {
		return m.err
	}

	G.Read(c.caps, &c.capsVal)
	G.Read(c.probs, &c.probsVal)
	return nil
}

func (c *CapsNet) bwd(m *maebe) error {
	if c.FwdOnly {
		return nil
	}
	c.targets = G.NewMatrix(c.g, Float, G.WithShape(c.BatchSize, c.NClasses), G.WithName("Targets"))

	cost := m.marginLoss(c.probs, c.targets, c.Config)
	if m.err != nil {
		return m.err
	}
	G.Read(cost, &c.costVal)

	if _, err := G.Grad(cost, c.Model()...); err != nil {
		return err
	}
	return nil
}

// Model returns the learnable nodes: both convolution filters, the capsule
// transform weights and the routing logits.
func (c *CapsNet) Model() G.Nodes {
	retVal := make(G.Nodes, 0, 4)
	for _, n := range c.g.AllNodes() {
		if n.IsVar() && n != c.images && n != c.targets {
			retVal = append(retVal, n)
		}
	}
	return retVal
}

// Cost returns the cost recorded by the last training run.
func (c *CapsNet) Cost() float32 {
	if c.costVal == nil {
		return math32.NaN()
	}
	return c.costVal.Data().(float32)
}

// Probs returns the class probabilities recorded by the last run, one row of
// NClasses per batch item.
func (c *CapsNet) Probs() []float32 {
	if c.probsVal == nil {
		return nil
	}
	return c.probsVal.Data().([]float32)
}

// Caps returns the output capsule values recorded by the last run, flattened
// row-major from [batch, NClasses, OutputDim].
func (c *CapsNet) Caps() []float32 {
	if c.capsVal == nil {
		return nil
	}
	return c.capsVal.Data().([]float32)
}

func (c *CapsNet) Clone() (*CapsNet, error) {
	c2 := New(c.Config)
	if err := c2.Init(); err != nil {
		return nil, err
	}

	model := c.Model()
	model2 := c2.Model()
	for i, n := range model {
		if err := G.Let(model2[i], n.Value()); err != nil {
			return nil, err
		}
	}
	return c2, nil
}

func (c *CapsNet) reset() {
	c.g = nil
	c.images = nil
	c.targets = nil
	c.b = nil
	c.caps = nil
	c.probs = nil
}

func (c *CapsNet) GobEncode() (retVal []byte, err error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	for _, n := range c.Model() {
		v := n.Value()
		if err = enc.Encode(&v); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

func (c *CapsNet) GobDecode(p []byte) error {
	c.reset()
	if err := c.Init(); err != nil {
		return err
	}

	buf := bytes.NewBuffer(p)
	dec := gob.NewDecoder(buf)
	for _, n := range c.Model() {
		var v G.Value
		if err := dec.Decode(&v); err != nil {
			return err
		}
		G.Let(n, v)
	}
	return nil
}
