package capsnet

import (
	"bytes"
	"log"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
	"gorgonia.org/tensor/native"
)

// Train runs epochs passes of minibatch Adam over the training tensors.
// Xs is the image tensor [N, channels, height, width]; Ys is the one-hot
// label matrix [N, nClasses]. Both are shuffled in place between passes.
func Train(c *CapsNet, Xs, Ys *tensor.Dense, batches, epochs int, learnRate float64) error {
	solver := G.NewAdamSolver(G.WithLearnRate(learnRate), G.WithBatchSize(float64(c.BatchSize)))
	return TrainWithSolver(c, Xs, Ys, batches, epochs, solver)
}

// TrainWithSolver is Train with a caller-owned solver.
func TrainWithSolver(c *CapsNet, Xs, Ys *tensor.Dense, batches, epochs int, solver G.Solver) error {
	for i := 0; i < epochs; i++ {
		for bat := 0; bat < batches; bat++ {
			var s slicer
			m := G.NewTapeMachine(c.g, G.BindDualValues(c.Model()...))
			model := G.NodesToValueGrads(c.Model())
			batchStart := bat * c.Config.BatchSize
			batchEnd := batchStart + c.Config.BatchSize

			xs := s.Slice(Xs, sli(batchStart, batchEnd))
			ys := s.Slice(Ys, sli(batchStart, batchEnd))
			if s.err != nil {
				m.Close()
				return s.err
			}

			G.Let(c.images, xs)
			G.Let(c.targets, ys)
			if err := m.RunAll(); err != nil {
				m.Close()
				return errors.Wrapf(err, "batch %d of pass %d", bat, i)
			}
			if err := solver.Step(model); err != nil {
				m.Close()
				return err
			}
			m.Close()
			tensor.ReturnTensor(xs)
			tensor.ReturnTensor(ys)
		}
		if err := shuffleBatch(Xs, Ys); err != nil {
			return err
		}
	}
	return nil
}

// shuffleBatch shuffles the rows of the training tensors in place, keeping
// images and labels aligned.
func shuffleBatch(Xs, Ys *tensor.Dense) (err error) {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	oriXs := Xs.Shape().Clone()
	oriYs := Ys.Shape().Clone()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("%v %v", Xs.Shape(), Ys.Shape())
			panic(r)
		}
	}()
	Xs.Reshape(as2D(Xs.Shape())...)
	Ys.Reshape(as2D(Ys.Shape())...)

	var matXs, matYs [][]float32
	if matXs, err = native.MatrixF32(Xs); err != nil {
		return errors.Wrapf(err, "shuffle batch failed - Xs")
	}
	if matYs, err = native.MatrixF32(Ys); err != nil {
		return errors.Wrapf(err, "shuffle batch failed - Ys")
	}

	tmpX := make([]float32, Xs.Shape()[1])
	tmpY := make([]float32, Ys.Shape()[1])
	for i := range matXs {
		j := r.Intn(i + 1)
		swapRows(matXs[i], matXs[j], tmpX)
		swapRows(matYs[i], matYs[j], tmpY)
	}
	Xs.Reshape(oriXs...)
	Ys.Reshape(oriYs...)
	return nil
}

func swapRows(a, b, tmp []float32) {
	copy(tmp, a)
	copy(a, b)
	copy(b, tmp)
}

func as2D(s tensor.Shape) tensor.Shape {
	retVal := tensor.BorrowInts(2)
	retVal[0] = s[0]
	retVal[1] = s[1]
	for i := 2; i < len(s); i++ {
		retVal[1] *= s[i]
	}
	return retVal
}

// Inferencer is a struct that holds the state for a fwd-only *CapsNet and a
// VM. By using an Inferencer, there is no longer a need to create a VM every
// time a classification needs to be done.
type Inferencer struct {
	c *CapsNet
	m G.VM

	input *tensor.Dense
	buf   *bytes.Buffer
}

// Infer takes a trained *CapsNet and creates an inference data structure
// classifying batchSize images at a time.
func Infer(c *CapsNet, batchSize int, toLog bool) (*Inferencer, error) {
	conf := c.Config
	conf.FwdOnly = true
	conf.BatchSize = batchSize
	retVal := &Inferencer{
		c:     New(conf),
		input: tensor.New(tensor.WithShape(batchSize, conf.Channels, conf.Height, conf.Width), tensor.Of(Float)),
	}
	if err := retVal.c.Init(); err != nil {
		return nil, err
	}

	infModel := retVal.c.Model()
	for i, n := range c.Model() {
		original := n.Value().Data().([]float32)
		cloned := infModel[i].Value().Data().([]float32)
		copy(cloned, original)
	}

	retVal.buf = new(bytes.Buffer)
	if toLog {
		logger := log.New(retVal.buf, "", 0)
		retVal.m = G.NewTapeMachine(retVal.c.g,
			G.WithLogger(logger),
			G.WithWatchlist(),
			G.TraceExec(),
			G.WithValueFmt("%+1.1v"),
			G.WithNaNWatch(),
		)
	} else {
		retVal.m = G.NewTapeMachine(retVal.c.g)
	}
	return retVal, nil
}

// CapsNet returns the underlying fwd-only network.
func (in *Inferencer) CapsNet() *CapsNet { return in.c }

// InferBatch classifies up to the Inferencer's batch size of images, given as
// one flat row-major slice, and returns one row of class probabilities per image.
func (in *Inferencer) InferBatch(images []float32) ([][]float32, error) {
	in.buf.Reset()

	// copy images into the preallocated input tensor
	in.input.Zero()
	data := in.input.Data().([]float32)
	copy(data, images)

	in.m.Reset()
	G.Let(in.c.images, in.input)
	if err := in.m.RunAll(); err != nil {
		return nil, err
	}

	probs := in.c.probsVal.Data().([]float32)
	retVal := make([][]float32, in.c.BatchSize)
	for i := range retVal {
		row := make([]float32, in.c.NClasses)
		copy(row, probs[i*in.c.NClasses:(i+1)*in.c.NClasses])
		retVal[i] = row
	}
	return retVal, nil
}

// Infer classifies a single image, returning the class probabilities and the
// predicted class.
func (in *Inferencer) Infer(image []float32) (probs []float32, class int, err error) {
	rows, err := in.InferBatch(image)
	if err != nil {
		return nil, 0, err
	}
	probs = rows[0]
	return probs, argmax(probs), nil
}

// ExecLog returns the execution log. If Infer was called with toLog = false, then it will return an empty string
func (in *Inferencer) ExecLog() string { return in.buf.String() }

// Close implements a closer, because well, a gorgonia VM is a resource.
func (in *Inferencer) Close() error { return in.m.Close() }
