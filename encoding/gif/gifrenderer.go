package gif

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"io"
	"math"

	capsulenets "github.com/ayushchakravarthy/capsule-nets"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/math/fixed"
)

var regular *truetype.Font

const (
	dpi             = 144.0
	fontsize        = 12.0
	lineheight      = 1.2
	scale           = 2 // pixel magnification of the digits
	cols            = 4
	dummyLongString = `Epoch 100000, accuracy 0.0000`
)

func init() {
	var err error
	if regular, err = truetype.Parse(gomono.TTF); err != nil {
		panic(err)
	}
}

// 256 level grayscale, index = luminance
var globPalette = func() color.Palette {
	p := make(color.Palette, 256)
	for i := range p {
		p[i] = color.Gray{uint8(i)}
	}
	return p
}()

// Encoder renders every epoch's sampled predictions into one frame of an
// animated GIF: a grid of digits, each captioned prediction:label, under an
// epoch/accuracy header. It implements the capsulenets.OutputEncoder interface.
type Encoder struct {
	H, W int
	font.Drawer

	out *gif.GIF
	io.Writer
	face font.Face

	imgH, imgW  int // digit size in dataset pixels
	padH, padW  int // padding so everything don't start at the topleft
	initialized bool
}

// NewGifEncoder for digits of imgH x imgW pixels.
func NewGifEncoder(imgH, imgW int) *Encoder {
	return &Encoder{
		H:    -1,
		W:    -1,
		imgH: imgH,
		imgW: imgW,
		padH: 10,
		padW: 10,

		Drawer: font.Drawer{
			Src: image.Black,
		},
		out: &gif.GIF{LoopCount: -1},
	}
}

// Encode one epoch as a frame.
func (enc *Encoder) Encode(ms capsulenets.MetaState) error {
	samples := ms.Samples()

	dy := int(math.Ceil(fontsize * lineheight * dpi / 72))
	cellW := enc.imgW*scale + enc.padW
	cellH := enc.imgH*scale + dy + enc.padH

	if !enc.initialized {
		// lazy init of specifications
		enc.face = truetype.NewFace(regular, &truetype.Options{
			Size:    fontsize,
			DPI:     dpi,
			Hinting: font.HintingFull,
		})
		enc.Drawer.Src = image.Black
		enc.Drawer.Face = enc.face

		rows := (len(samples) + cols - 1) / cols
		if rows == 0 {
			rows = 1
		}
		headerW := font.MeasureString(enc.Face, dummyLongString).Ceil()
		w := cols*cellW + 2*enc.padW
		if headerW+2*enc.padW > w {
			w = headerW + 2*enc.padW
		}
		enc.W = w
		enc.H = rows*cellH + dy + 2*enc.padH
		enc.initialized = true
	}

	im := image.NewPaletted(image.Rect(0, 0, enc.W, enc.H), globPalette)
	draw.Draw(im, im.Bounds(), image.White, image.ZP, draw.Src)
	enc.Dst = im

	y := enc.padH + dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(ms.Name())
	y += dy
	enc.Dot = fixed.P(enc.padW, y)
	enc.DrawString(fmt.Sprintf("Epoch %d, accuracy %.4f", ms.Epoch(), ms.Accuracy()))

	for i, s := range samples {
		x0 := enc.padW + (i%cols)*cellW
		y0 := y + enc.padH + (i/cols)*cellH
		enc.drawDigit(im, s.Image, x0, y0)

		enc.Dot = fixed.P(x0, y0+enc.imgH*scale+dy)
		enc.DrawString(fmt.Sprintf("%d:%d", s.Class, s.Label))
	}

	enc.out.Image = append(enc.out.Image, im)
	enc.out.Delay = append(enc.out.Delay, 50)
	return nil
}

// drawDigit draws a [0,1] grayscale digit magnified, ink on white.
func (enc *Encoder) drawDigit(im *image.Paletted, pixels []float32, x0, y0 int) {
	it := capsulenets.MakeIterator(pixels, enc.imgH, enc.imgW)
	defer capsulenets.ReturnIterator(enc.imgH, enc.imgW, it)

	for r, row := range it {
		for c, v := range row {
			if v < 0 {
				v = 0
			} else if v > 1 {
				v = 1
			}
			idx := uint8(255 - v*255)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					im.SetColorIndex(x0+c*scale+dx, y0+r*scale+dy, idx)
				}
			}
		}
	}
}

// Flush writes the gif into the writer. The final frame lingers.
func (enc *Encoder) Flush() error {
	if n := len(enc.out.Delay); n > 0 {
		enc.out.Delay[n-1] = 300
	}
	return gif.EncodeAll(enc.Writer, enc.out)
}
