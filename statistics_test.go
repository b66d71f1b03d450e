package capsulenets

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatisticsDump(t *testing.T) {
	s := makeStatistics()
	s.update(0, 0.52, 0.48, 0.31)
	s.update(1, 0.40, 0.37, 0.67)

	filename := filepath.Join(t.TempDir(), "stats.csv")
	require.NoError(t, s.Dump(filename))

	f, err := os.Open(filename)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	assert := assert.New(t)
	require.Len(t, records, 3)
	assert.Equal([]string{"epoch", "train_loss", "test_loss", "accuracy"}, records[0])
	assert.Equal("0", records[1][0])
	assert.Equal([]string{"1", "0.400000", "0.370000", "0.6700"}, records[2])
}
