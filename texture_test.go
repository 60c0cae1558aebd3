package vkframe

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckerboard(t *testing.T) {
	tex := Checkerboard(4, 2)
	require.Equal(t, uint32(4), tex.Width)
	require.Equal(t, uint32(4), tex.Height)
	require.Len(t, tex.Pixels, 4*4*4)

	at := func(x, y int) byte { return tex.Pixels[(y*4+x)*4] }
	assert.Equal(t, byte(220), at(0, 0))
	assert.Equal(t, byte(40), at(2, 0))
	assert.Equal(t, byte(40), at(0, 2))
	assert.Equal(t, byte(220), at(3, 3))
	assert.Equal(t, byte(255), tex.Pixels[3])
}

func TestTextureFromImageConvertsAndRebases(t *testing.T) {
	src := image.NewNRGBA(image.Rect(10, 10, 12, 11))
	src.Set(10, 10, color.NRGBA{R: 255, A: 255})
	src.Set(11, 10, color.NRGBA{B: 255, A: 255})

	tex := TextureFromImage(src)
	assert.Equal(t, uint32(2), tex.Width)
	assert.Equal(t, uint32(1), tex.Height)
	assert.Equal(t, []byte{255, 0, 0, 255, 0, 0, 255, 255}, tex.Pixels)
}

func TestTextureFromImageSubImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(2, 2, color.RGBA{G: 200, A: 255})
	sub := img.SubImage(image.Rect(2, 2, 4, 4))

	tex := TextureFromImage(sub)
	assert.Equal(t, uint32(2), tex.Width)
	require.Len(t, tex.Pixels, 2*2*4)
	assert.Equal(t, []byte{0, 200, 0, 255}, tex.Pixels[:4])
}

func TestLoadTexture(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 3, 2))
	img.Set(1, 1, color.RGBA{R: 1, G: 2, B: 3, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	path := filepath.Join(t.TempDir(), "tex.png")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	tex, err := LoadTexture(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), tex.Width)
	assert.Equal(t, uint32(2), tex.Height)
	assert.Equal(t, []byte{1, 2, 3, 255}, tex.Pixels[(1*3+1)*4:(1*3+2)*4])

	_, err = LoadTexture(filepath.Join(t.TempDir(), "none.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = DecodeTexture(bytes.NewReader([]byte("not an image")))
	assert.Error(t, err)

	text := filepath.Join(t.TempDir(), "notes.png")
	require.NoError(t, os.WriteFile(text, []byte("plain text, not pixels"), 0o644))
	_, err = LoadTexture(text)
	assert.ErrorContains(t, err, "not an image")
}

func TestFitTexture(t *testing.T) {
	tex := Checkerboard(8, 2)
	assert.Same(t, tex, FitTexture(tex, 0))
	assert.Same(t, tex, FitTexture(tex, 8))

	wide := TextureFromImage(image.NewRGBA(image.Rect(0, 0, 8, 4)))
	fit := FitTexture(wide, 4)
	assert.Equal(t, uint32(4), fit.Width)
	assert.Equal(t, uint32(2), fit.Height)
	assert.Len(t, fit.Pixels, 4*2*4)

	tall := TextureFromImage(image.NewRGBA(image.Rect(0, 0, 1, 16)))
	fit = FitTexture(tall, 4)
	assert.Equal(t, uint32(1), fit.Width)
	assert.Equal(t, uint32(4), fit.Height)
}
