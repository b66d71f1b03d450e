package capsulenets

import (
	"io"

	"github.com/ayushchakravarthy/capsule-nets/capsnet"
)

type Config struct {
	Name   string
	NNConf capsnet.Config

	Epochs        int
	LearnRate     float64
	TestBatchSize int

	// LogInterval is how many epochs pass between progress log lines.
	LogInterval int

	// CheckpointPattern is a fmt pattern with one %d verb for the epoch
	// number. Empty disables per-epoch checkpoints.
	CheckpointPattern string

	// extensions
	OutputEncoder OutputEncoder
}

// Example is one labelled image.
type Example struct {
	Image []float32
	Label int
}

// Prediction is one classified sample, kept around for rendering.
type Prediction struct {
	Image []float32
	Label int
	Class int
}

// OutputEncoder encodes the state of training as whatever.
//
// An example OutputEncoder is the GifEncoder. Another example would be a logger.
type OutputEncoder interface {
	Encode(ms MetaState) error
	Flush() error
}

// MetaState is what an OutputEncoder sees after every epoch.
type MetaState interface {
	Name() string
	Epoch() int
	Accuracy() float32
	Samples() []Prediction
}

// Inferer is anything that can classify a single image.
type Inferer interface {
	Infer(a []float32) (probs []float32, class int, err error)
	io.Closer
}

// ExecLogger is anything that can return the execution log.
type ExecLogger interface {
	ExecLog() string
}
