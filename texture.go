package vkframe

import (
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/andewx/vkframe/hal"
	"github.com/anthonynsimon/bild/transform"
	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Texture is decoded 8-bit RGBA pixel data, tightly packed, top row first.
type Texture struct {
	Width, Height uint32
	Pixels        []byte
}

// DecodeTexture decodes any registered image format into RGBA.
func DecodeTexture(r io.Reader) (*Texture, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(err, "decode texture")
	}
	return TextureFromImage(img), nil
}

// LoadTexture decodes the image file at path.
func LoadTexture(path string) (*Texture, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer f.Close()

	head := make([]byte, 262)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	if !filetype.IsImage(head[:n]) {
		return nil, errors.Errorf("load %s: not an image file", path)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.WithStack(err)
	}
	tex, err := DecodeTexture(f)
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	Logger().Debug("texture loaded", "path", path, "width", tex.Width, "height", tex.Height)
	return tex, nil
}

func TextureFromImage(img image.Image) *Texture {
	b := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*b.Dx() || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	}
	return &Texture{Width: uint32(b.Dx()), Height: uint32(b.Dy()), Pixels: rgba.Pix}
}

// Image returns the pixels as an image sharing tex's buffer.
func (tex *Texture) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    tex.Pixels,
		Stride: 4 * int(tex.Width),
		Rect:   image.Rect(0, 0, int(tex.Width), int(tex.Height)),
	}
}

// FitTexture downscales tex so neither side exceeds maxSize, keeping the
// aspect ratio. tex is returned unchanged when it already fits or maxSize is
// zero.
func FitTexture(tex *Texture, maxSize uint32) *Texture {
	if maxSize == 0 || (tex.Width <= maxSize && tex.Height <= maxSize) {
		return tex
	}
	w, h := maxSize, maxSize
	if tex.Width > tex.Height {
		h = max(1, uint32(uint64(tex.Height)*uint64(maxSize)/uint64(tex.Width)))
	} else {
		w = max(1, uint32(uint64(tex.Width)*uint64(maxSize)/uint64(tex.Height)))
	}
	Logger().Debug("texture downscaled", "from", [2]uint32{tex.Width, tex.Height}, "to", [2]uint32{w, h})
	return TextureFromImage(transform.Resize(tex.Image(), int(w), int(h), transform.Linear))
}

// Checkerboard generates an n x n texture of cell-sized squares.
func Checkerboard(n, cell int) *Texture {
	img := image.NewRGBA(image.Rect(0, 0, n, n))
	for y := 0; y < n; y++ {
		for x := 0; x < n; x++ {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			i := img.PixOffset(x, y)
			img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = v, v, v, 255
		}
	}
	return TextureFromImage(img)
}

// UploadTexture uploads tex as an sRGB sampled image read by fragment shaders.
func (u *StagedUploader) UploadTexture(tex *Texture) (*DeviceImage, error) {
	return u.UploadToImage(tex.Pixels, tex.Width, tex.Height, hal.FormatR8G8B8A8Srgb, hal.StageFragmentShader)
}
