package imaging

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeError reports bytes that are not a supported image.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("cannot identify image file: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var errEmpty = errors.New("empty input")

// Options describes the tensor a network wants.
type Options struct {
	Width         int
	Height        int
	ChannelsFirst bool
	Interpolation resize.InterpolationFunction
}

// Tensor is a batch of one image, values in [0,1].
type Tensor struct {
	Data  []float32
	Shape []int64
}

// ParseInterpolation maps a config name to a resize kernel.
func ParseInterpolation(name string) (resize.InterpolationFunction, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "nearest":
		return resize.NearestNeighbor, nil
	case "bilinear":
		return resize.Bilinear, nil
	case "", "bicubic":
		return resize.Bicubic, nil
	case "mitchell":
		return resize.MitchellNetravali, nil
	case "lanczos2":
		return resize.Lanczos2, nil
	case "lanczos", "lanczos3":
		return resize.Lanczos3, nil
	}
	return 0, fmt.Errorf("unknown interpolation %q", name)
}

func Decode(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", &DecodeError{Err: errEmpty}
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", &DecodeError{Err: err}
	}
	return img, format, nil
}

// ToRGB returns an opaque copy of img. Alpha is dropped rather than
// composited, so a transparent pixel keeps its straight colour.
func ToRGB(img image.Image) *image.RGBA {
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))

	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
		return dst
	}

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
			i := dst.PixOffset(x, y)
			dst.Pix[i+0] = c.R
			dst.Pix[i+1] = c.G
			dst.Pix[i+2] = c.B
			dst.Pix[i+3] = 0xff
		}
	}
	return dst
}

// Preprocess decodes data, forces RGB, resizes (no crop) to the target
// size and scales every channel by 1/255.
func Preprocess(data []byte, opts Options) (*Tensor, error) {
	img, _, err := Decode(data)
	if err != nil {
		return nil, err
	}
	return FromImage(img, opts)
}

func FromImage(img image.Image, opts Options) (*Tensor, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", opts.Width, opts.Height)
	}
	if img.Bounds().Empty() {
		return nil, &DecodeError{Err: errors.New("image has no pixels")}
	}

	rgb := ToRGB(img)
	resized := resize.Resize(uint(opts.Width), uint(opts.Height), rgb, opts.Interpolation)

	w, h := opts.Width, opts.Height
	plane := w * h
	data := make([]float32, 3*plane)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b := pixel(resized, x, y)
			if opts.ChannelsFirst {
				i := y*w + x
				data[i] = float32(r) / 255.0
				data[plane+i] = float32(g) / 255.0
				data[2*plane+i] = float32(b) / 255.0
			} else {
				i := (y*w + x) * 3
				data[i] = float32(r) / 255.0
				data[i+1] = float32(g) / 255.0
				data[i+2] = float32(b) / 255.0
			}
		}
	}

	shape := []int64{1, int64(h), int64(w), 3}
	if opts.ChannelsFirst {
		shape = []int64{1, 3, int64(h), int64(w)}
	}
	return &Tensor{Data: data, Shape: shape}, nil
}

func pixel(img image.Image, x, y int) (r, g, b uint8) {
	if m, ok := img.(*image.RGBA); ok {
		i := m.PixOffset(m.Rect.Min.X+x, m.Rect.Min.Y+y)
		return m.Pix[i], m.Pix[i+1], m.Pix[i+2]
	}
	b0 := img.Bounds().Min
	r32, g32, b32, _ := img.At(b0.X+x, b0.Y+y).RGBA()
	return uint8(r32 >> 8), uint8(g32 >> 8), uint8(b32 >> 8)
}
