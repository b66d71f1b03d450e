package capsnet

import "github.com/pkg/errors"

// Config configures the capsule network
type Config struct {
	Channels int // input image channels
	Height   int
	Width    int

	Conv1Filters int // filter count of the first convolution
	Conv1Kernel  int
	Conv1Stride  int

	PrimaryCaps   int // number of primary capsule types
	PrimaryDim    int // dimension of a primary capsule vector
	PrimaryKernel int
	PrimaryStride int

	OutputDim int // dimension of a class capsule vector
	NClasses  int

	RoutingIterations int // routing rounds past the initial pass. 0 disables refinement

	// margin loss
	MPlus  float64
	MMinus float64
	Lambda float64
	// SumLoss sums the per-entry penalties instead of averaging them
	SumLoss bool

	BatchSize int
	Seed      int64 // seeds all weight initialization
	FwdOnly   bool  // is this a fwd only graph?

	// WithReconstruction is a stub. The reconstruction decoder is not implemented.
	WithReconstruction bool
}

// DefaultConf returns the configuration for 28x28 single channel MNIST digits.
func DefaultConf(routingIterations, nClasses int) Config {
	return Config{
		Channels: 1,
		Height:   28,
		Width:    28,

		Conv1Filters: 256,
		Conv1Kernel:  9,
		Conv1Stride:  1,

		PrimaryCaps:   32,
		PrimaryDim:    8,
		PrimaryKernel: 9,
		PrimaryStride: 2,

		OutputDim: 16,
		NClasses:  nClasses,

		RoutingIterations: routingIterations,

		MPlus:  0.9,
		MMinus: 0.1,
		Lambda: 0.5,

		BatchSize: 128,
		Seed:      1,
	}
}

func (conf Config) IsValid() bool {
	_, err := conf.NumPrimaryCaps()
	return err == nil &&
		conf.Channels >= 1 &&
		conf.Conv1Filters >= 1 &&
		conf.PrimaryCaps >= 1 &&
		conf.PrimaryDim >= 1 &&
		conf.OutputDim >= 1 &&
		conf.NClasses >= 2 &&
		conf.RoutingIterations >= 0 &&
		conf.BatchSize >= 1 &&
		conf.MPlus > 0 && conf.MPlus < 1 &&
		conf.MMinus > 0 && conf.MMinus < 1 &&
		conf.Lambda >= 0 && conf.Lambda <= 1 &&
		!conf.WithReconstruction
}

// PrimaryOut returns the spatial size of the primary capsule grid, computed
// from the convolution arithmetic of both convolutions.
func (conf Config) PrimaryOut() (h, w int, err error) {
	if h, err = convOut(conf.Height, conf.Conv1Kernel, conf.Conv1Stride, "conv1 height"); err != nil {
		return 0, 0, err
	}
	if w, err = convOut(conf.Width, conf.Conv1Kernel, conf.Conv1Stride, "conv1 width"); err != nil {
		return 0, 0, err
	}
	if h, err = convOut(h, conf.PrimaryKernel, conf.PrimaryStride, "primary height"); err != nil {
		return 0, 0, err
	}
	if w, err = convOut(w, conf.PrimaryKernel, conf.PrimaryStride, "primary width"); err != nil {
		return 0, 0, err
	}
	return h, w, nil
}

// NumPrimaryCaps returns the total number of primary capsules: one per
// (capsule type, spatial position) pair.
func (conf Config) NumPrimaryCaps() (int, error) {
	h, w, err := conf.PrimaryOut()
	if err != nil {
		return 0, err
	}
	return conf.PrimaryCaps * h * w, nil
}

// convOut computes the output size of a valid padding convolution.
func convOut(in, kernel, stride int, name string) (int, error) {
	if kernel < 1 || stride < 1 {
		return 0, errors.Errorf("%s: kernel %d and stride %d must be positive", name, kernel, stride)
	}
	out := (in-kernel)/stride + 1
	if out < 1 {
		return 0, errors.Errorf("%s: input size %d with kernel %d and stride %d yields output size %d", name, in, kernel, stride, out)
	}
	return out, nil
}
