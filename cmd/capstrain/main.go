// capstrain trains a capsule network on MNIST.
package main

import (
	"flag"
	"log"
	"os"

	capsulenets "github.com/ayushchakravarthy/capsule-nets"
	"github.com/ayushchakravarthy/capsule-nets/capsnet"
	enc "github.com/ayushchakravarthy/capsule-nets/encoding/gif"
	"github.com/ayushchakravarthy/capsule-nets/mnist"

	"net/http"
	_ "net/http/pprof"
)

var (
	batchSize         = flag.Int("batch-size", 128, "input batch size for training")
	testBatchSize     = flag.Int("test-batch-size", 1000, "input batch size for testing")
	epochs            = flag.Int("epochs", 250, "number of epochs to train")
	lr                = flag.Float64("lr", 0.001, "learning rate")
	seed              = flag.Int64("seed", 1, "random seed")
	routingIterations = flag.Int("routing-iterations", 3, "routing rounds past the initial pass")
	sumLoss           = flag.Bool("sum-loss", false, "sum the margin penalties instead of averaging")
	logInterval       = flag.Int("log-interval", 1, "epochs between progress log lines")
	dataDir           = flag.String("data", "./data", "directory holding the MNIST IDX files")
	checkpoint        = flag.String("save", "", "checkpoint pattern, e.g. %03d_model.gob (empty disables)")
	statsFile         = flag.String("stats", "", "write per-epoch statistics as CSV")
	gifFile           = flag.String("gif", "", "render sampled test predictions per epoch into an animated GIF")
	dotFile           = flag.String("dot", "", "write the strongest learned couplings as graphviz dot")
	pprofAddr         = flag.String("pprof", "localhost:6060", "pprof listen address")
)

func main() {
	flag.Parse()

	go func() {
		log.Printf("pprof on http://%s/debug/pprof", *pprofAddr)
		http.ListenAndServe(*pprofAddr, nil)
	}()

	train, err := mnist.Load("train", *dataDir)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	test, err := mnist.Load("test", *dataDir)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	log.Printf("Loaded %d training and %d test images from %s", train.N, test.N, *dataDir)

	nnConf := capsnet.DefaultConf(*routingIterations, mnist.NumLabels)
	nnConf.BatchSize = *batchSize
	nnConf.Seed = *seed
	nnConf.SumLoss = *sumLoss

	conf := capsulenets.Config{
		Name:              "CapsNet MNIST",
		NNConf:            nnConf,
		Epochs:            *epochs,
		LearnRate:         *lr,
		TestBatchSize:     *testBatchSize,
		LogInterval:       *logInterval,
		CheckpointPattern: *checkpoint,
	}

	var gifOut *os.File
	if *gifFile != "" {
		if gifOut, err = os.Create(*gifFile); err != nil {
			log.Fatal(err)
		}
		defer gifOut.Close()
		ge := enc.NewGifEncoder(mnist.ImgHeight, mnist.ImgWidth)
		ge.Writer = gifOut
		conf.OutputEncoder = ge
	}

	s := capsulenets.New(conf)
	if err := s.Learn(train, test); err != nil {
		log.Fatalf("%+v", err)
	}

	if *statsFile != "" {
		if err := s.Dump(*statsFile); err != nil {
			log.Fatalf("dumping statistics: %v", err)
		}
	}
	if *dotFile != "" {
		dot, err := s.NN.RoutingDot(5)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		if err := os.WriteFile(*dotFile, []byte(dot), 0644); err != nil {
			log.Fatal(err)
		}
	}
}
