package capsulenets

import (
	"encoding/gob"
	"fmt"
	"log"
	"os"

	"github.com/ayushchakravarthy/capsule-nets/capsnet"
	"github.com/ayushchakravarthy/capsule-nets/mnist"
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"
)

// maxSamples is how many classified test images are kept per epoch for the
// OutputEncoder.
const maxSamples = 16

// Session is the top level structure and the entry point of the API. It wires
// the capsule network to a dataset and runs the train/evaluate loop.
type Session struct {
	// state
	Statistics
	NN    *capsnet.CapsNet
	epoch int

	// config
	name              string
	nnConf            capsnet.Config
	epochs            int
	learnRate         float64
	testBatchSize     int
	logInterval       int
	checkpointPattern string

	// io
	outEnc OutputEncoder
}

// New creates a Session. It takes a configuration holding the network
// hyperparameters and the training schedule.
func New(conf Config) *Session {
	if !conf.NNConf.IsValid() {
		panic("NNConf is not valid. Unable to proceed")
	}

	nn := capsnet.New(conf.NNConf)
	if err := nn.Init(); err != nil {
		panic(fmt.Sprintf("%+v", err))
	}

	if conf.Epochs <= 0 {
		conf.Epochs = 10
	}
	if conf.LearnRate <= 0 {
		conf.LearnRate = 0.001
	}
	if conf.TestBatchSize <= 0 {
		conf.TestBatchSize = conf.NNConf.BatchSize
	}
	if conf.LogInterval <= 0 {
		conf.LogInterval = 1
	}

	return &Session{
		Statistics:        makeStatistics(),
		NN:                nn,
		name:              conf.Name,
		nnConf:            conf.NNConf,
		epochs:            conf.Epochs,
		learnRate:         conf.LearnRate,
		testBatchSize:     conf.TestBatchSize,
		logInterval:       conf.LogInterval,
		checkpointPattern: conf.CheckpointPattern,
		outEnc:            conf.OutputEncoder,
	}
}

// Learn trains for the configured number of epochs. After every epoch the
// test split is evaluated, statistics are recorded, the OutputEncoder (if
// any) gets a frame, and a checkpoint is written (if configured).
func (s *Session) Learn(train, test *mnist.Set) error {
	Xs, Ys, batches, err := s.prepareBatches(train)
	if err != nil {
		return err
	}
	log.Printf("Training %q: %d batches of %d for %d epochs", s.name, batches, s.nnConf.BatchSize, s.epochs)

	for s.epoch = 0; s.epoch < s.epochs; s.epoch++ {
		if err = capsnet.Train(s.NN, Xs, Ys, batches, 1, s.learnRate); err != nil {
			return errors.WithMessage(err, "train fail")
		}
		trainLoss := s.NN.Cost()

		testLoss, acc, samples, err := s.evaluate(test)
		if err != nil {
			return errors.WithMessage(err, "evaluate fail")
		}
		s.update(s.epoch, trainLoss, testLoss, acc)
		if s.epoch%s.logInterval == 0 {
			log.Printf("Epoch %d\ttrain loss %.6f\ttest loss %.6f\taccuracy %.4f", s.epoch, trainLoss, testLoss, acc)
		}

		if s.outEnc != nil {
			if err = s.outEnc.Encode(metaState{name: s.name, epoch: s.epoch, accuracy: acc, samples: samples}); err != nil {
				return err
			}
		}
		if s.checkpointPattern != "" {
			if err = s.Save(fmt.Sprintf(s.checkpointPattern, s.epoch)); err != nil {
				return err
			}
		}
	}

	if s.outEnc != nil {
		return s.outEnc.Flush()
	}
	return nil
}

// evaluate runs the test split through a fwd-only copy of the network,
// returning the margin loss and accuracy over all full batches, plus a few
// classified samples for rendering.
func (s *Session) evaluate(test *mnist.Set) (loss, acc float32, samples []Prediction, err error) {
	inferer, err := capsnet.Infer(s.NN, s.testBatchSize, false)
	if err != nil {
		return 0, 0, nil, err
	}
	defer inferer.Close()

	imgSize := s.nnConf.Channels * s.nnConf.Height * s.nnConf.Width
	data := test.Images.Data().([]float32)

	var correct, total int
	for start := 0; start+s.testBatchSize <= test.N; start += s.testBatchSize {
		batch := data[start*imgSize : (start+s.testBatchSize)*imgSize]
		rows, err := inferer.InferBatch(batch)
		if err != nil {
			return 0, 0, nil, err
		}
		for i, probs := range rows {
			label := int(test.Labels[start+i])
			class := ArgmaxF32(probs)
			if class == label {
				correct++
			}
			total++
			loss += s.marginLoss(probs, label)

			if len(samples) < maxSamples {
				img := make([]float32, imgSize)
				copy(img, data[(start+i)*imgSize:(start+i+1)*imgSize])
				samples = append(samples, Prediction{Image: img, Label: label, Class: class})
			}
		}
	}
	if total == 0 {
		return 0, 0, nil, errors.Errorf("test set of %d images yields no full batch of %d", test.N, s.testBatchSize)
	}
	return loss / float32(total), float32(correct) / float32(total), samples, nil
}

// marginLoss mirrors the network's cost node for fwd-only evaluation: the
// summed margin penalty of a single classified image.
func (s *Session) marginLoss(probs []float32, label int) float32 {
	mPlus := float32(s.nnConf.MPlus)
	mMinus := float32(s.nnConf.MMinus)
	lambda := float32(s.nnConf.Lambda)

	var loss float32
	for j, p := range probs {
		if j == label {
			d := math32.Max(0, mPlus-p)
			loss += d * d
		} else {
			d := math32.Max(0, p-mMinus)
			loss += lambda * d * d
		}
	}
	return loss
}

// prepareBatches lays the dataset out as batch-aligned tensors: images in
// BCHW and labels as a one-hot matrix. Trailing examples that do not fill a
// batch are dropped.
func (s *Session) prepareBatches(set *mnist.Set) (Xs, Ys *tensor.Dense, batches int, err error) {
	batches = set.N / s.nnConf.BatchSize
	if batches == 0 {
		return nil, nil, 0, errors.Errorf("%d examples cannot fill a single batch of %d", set.N, s.nnConf.BatchSize)
	}
	total := batches * s.nnConf.BatchSize
	imgSize := s.nnConf.Channels * s.nnConf.Height * s.nnConf.Width

	src := set.Images.Data().([]float32)
	XsBacking := make([]float32, total*imgSize)
	copy(XsBacking, src[:total*imgSize])

	YsBacking := make([]float32, total*s.nnConf.NClasses)
	for i := 0; i < total; i++ {
		EncodeOneHot(int(set.Labels[i]), s.nnConf.NClasses, YsBacking[i*s.nnConf.NClasses:(i+1)*s.nnConf.NClasses])
	}

	Xs = tensor.New(tensor.WithBacking(XsBacking), tensor.WithShape(total, s.nnConf.Channels, s.nnConf.Height, s.nnConf.Width))
	Ys = tensor.New(tensor.WithBacking(YsBacking), tensor.WithShape(total, s.nnConf.NClasses))
	return Xs, Ys, batches, nil
}

// Save writes the trained weights into filename.
func (s *Session) Save(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := gob.NewEncoder(f)
	return enc.Encode(s.NN)
}

// Load reads trained weights from filename into a fresh network.
func (s *Session) Load(filename string) error {
	f, err := os.Open(filename)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()

	s.NN = capsnet.New(s.nnConf)
	dec := gob.NewDecoder(f)
	if err = dec.Decode(s.NN); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

type metaState struct {
	name     string
	epoch    int
	accuracy float32
	samples  []Prediction
}

func (ms metaState) Name() string          { return ms.name }
func (ms metaState) Epoch() int            { return ms.epoch }
func (ms metaState) Accuracy() float32     { return ms.accuracy }
func (ms metaState) Samples() []Prediction { return ms.samples }
