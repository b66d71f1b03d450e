package capsulenets

import (
	"encoding/csv"
	"os"
	"strconv"
)

// Statistics records one row per epoch.
type Statistics struct {
	Epochs    []int
	TrainLoss []float32
	TestLoss  []float32
	Accuracy  []float32
}

func makeStatistics() Statistics {
	return Statistics{
		Epochs:    make([]int, 0, 64),
		TrainLoss: make([]float32, 0, 64),
		TestLoss:  make([]float32, 0, 64),
		Accuracy:  make([]float32, 0, 64),
	}
}

func (s *Statistics) update(epoch int, trainLoss, testLoss, accuracy float32) {
	s.Epochs = append(s.Epochs, epoch)
	s.TrainLoss = append(s.TrainLoss, trainLoss)
	s.TestLoss = append(s.TestLoss, testLoss)
	s.Accuracy = append(s.Accuracy, accuracy)
}

// Dump writes the statistics as CSV.
func (s *Statistics) Dump(filename string) error {
	f, err := os.OpenFile(filename, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"epoch", "train_loss", "test_loss", "accuracy"}); err != nil {
		return err
	}
	for i, epoch := range s.Epochs {
		record := []string{
			strconv.Itoa(epoch),
			strconv.FormatFloat(float64(s.TrainLoss[i]), 'f', 6, 32),
			strconv.FormatFloat(float64(s.TestLoss[i]), 'f', 6, 32),
			strconv.FormatFloat(float64(s.Accuracy[i]), 'f', 4, 32),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
