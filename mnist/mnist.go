// Package mnist loads the MNIST handwritten digit database from IDX files,
// plain or gzipped, into tensors ready for the capsule network.
package mnist

import (
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gorgonia.org/tensor"
	"gorgonia.org/vecf32"
)

const (
	ImgHeight = 28
	ImgWidth  = 28
	NumLabels = 10
)

const (
	imageMagic = 0x00000803
	labelMagic = 0x00000801
)

var fileNames = map[string][2]string{
	"train": {"train-images-idx3-ubyte", "train-labels-idx1-ubyte"},
	"test":  {"t10k-images-idx3-ubyte", "t10k-labels-idx1-ubyte"},
}

// Set is one split of the database.
type Set struct {
	Images *tensor.Dense // [N, 1, ImgHeight, ImgWidth], float32 in [0,1]
	Labels []uint8       // digit per image
	N      int
}

// Load reads the "train" or "test" split from dir.
func Load(typ, dir string) (*Set, error) {
	names, ok := fileNames[typ]
	if !ok {
		return nil, errors.Errorf("unknown dataset type %q, expected \"train\" or \"test\"", typ)
	}

	imgF, err := open(dir, names[0])
	if err != nil {
		return nil, err
	}
	defer imgF.Close()
	pixels, n, h, w, err := ReadImages(imgF)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", names[0])
	}
	if h != ImgHeight || w != ImgWidth {
		return nil, errors.Errorf("%q: expected %dx%d images, got %dx%d", names[0], ImgHeight, ImgWidth, h, w)
	}

	lblF, err := open(dir, names[1])
	if err != nil {
		return nil, err
	}
	defer lblF.Close()
	labels, err := ReadLabels(lblF)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %q", names[1])
	}
	if len(labels) != n {
		return nil, errors.Errorf("%d images but %d labels", n, len(labels))
	}

	return &Set{
		Images: tensor.New(tensor.WithShape(n, 1, h, w), tensor.WithBacking(pixels)),
		Labels: labels,
		N:      n,
	}, nil
}

// ReadImages parses an IDX image file: magic, count, rows, cols, then raw 8
// bit pixels. Pixels are scaled into [0,1].
func ReadImages(r io.Reader) (pixels []float32, n, h, w int, err error) {
	var header [4]int32
	for i := range header {
		if err = binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, 0, 0, 0, errors.Wrap(err, "short IDX header")
		}
	}
	if header[0] != imageMagic {
		return nil, 0, 0, 0, errors.Errorf("bad IDX image magic 0x%08x", header[0])
	}
	n, h, w = int(header[1]), int(header[2]), int(header[3])
	if n < 0 || h < 1 || w < 1 {
		return nil, 0, 0, 0, errors.Errorf("nonsense IDX image dimensions %d x %d x %d", n, h, w)
	}

	raw := make([]byte, n*h*w)
	if _, err = io.ReadFull(r, raw); err != nil {
		return nil, 0, 0, 0, errors.Wrap(err, "truncated IDX image data")
	}
	pixels = make([]float32, len(raw))
	for i, px := range raw {
		pixels[i] = float32(px)
	}
	vecf32.Scale(pixels, 1.0/255.0)
	return pixels, n, h, w, nil
}

// ReadLabels parses an IDX label file: magic, count, then one byte per label.
func ReadLabels(r io.Reader) ([]uint8, error) {
	var header [2]int32
	for i := range header {
		if err := binary.Read(r, binary.BigEndian, &header[i]); err != nil {
			return nil, errors.Wrap(err, "short IDX header")
		}
	}
	if header[0] != labelMagic {
		return nil, errors.Errorf("bad IDX label magic 0x%08x", header[0])
	}
	n := int(header[1])
	if n < 0 {
		return nil, errors.Errorf("nonsense IDX label count %d", n)
	}

	labels := make([]uint8, n)
	if _, err := io.ReadFull(r, labels); err != nil {
		return nil, errors.Wrap(err, "truncated IDX label data")
	}
	for i, l := range labels {
		if l >= NumLabels {
			return nil, errors.Errorf("label %d at index %d out of range", l, i)
		}
	}
	return labels, nil
}

// open tries name, then name.gz.
func open(dir, name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err == nil {
		return f, nil
	}
	g, gzErr := os.Open(filepath.Join(dir, name+".gz"))
	if gzErr != nil {
		return nil, errors.Wrapf(err, "%q not found in %q (also tried .gz)", name, dir)
	}
	zr, err := gzip.NewReader(g)
	if err != nil {
		g.Close()
		return nil, errors.Wrapf(err, "%q.gz is not a gzip file", name)
	}
	return &gzReadCloser{Reader: zr, f: g}, nil
}

type gzReadCloser struct {
	*gzip.Reader
	f *os.File
}

func (r *gzReadCloser) Close() error {
	if err := r.Reader.Close(); err != nil {
		r.f.Close()
		return err
	}
	return r.f.Close()
}
