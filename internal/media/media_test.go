package media

import (
	"bytes"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pngBytes encodes a generated test image: a horizontal gradient tinted
// by seed, so different seeds give visually different content.
func pngBytes(t *testing.T, width, height int, seed uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(x * 255 / width),
				G: seed,
				B: uint8(y * 255 / height),
				A: 255,
			})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func gifBytes(t *testing.T, frames int) []byte {
	t.Helper()
	g := &gif.GIF{}
	palette := color.Palette{color.Black, color.White}
	for f := 0; f < frames; f++ {
		frame := image.NewPaletted(image.Rect(0, 0, 16, 16), palette)
		for x := 0; x < 16; x++ {
			frame.SetColorIndex(x, f%16, 1)
		}
		g.Image = append(g.Image, frame)
		g.Delay = append(g.Delay, 10)
	}
	var buf bytes.Buffer
	require.NoError(t, gif.EncodeAll(&buf, g))
	return buf.Bytes()
}

func TestComputeDeterministic(t *testing.T) {
	hasher := StdHasher{}
	data := pngBytes(t, 64, 48, 10)

	a, err := hasher.Compute(data)
	require.NoError(t, err)
	b, err := hasher.Compute(data)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 64, a.Width)
	assert.Equal(t, 48, a.Height)
	assert.False(t, a.Animated)
	assert.Len(t, a.Embedding, embeddingSide*embeddingSide*3)
}

func TestComputeRejectsBadContent(t *testing.T) {
	hasher := StdHasher{}

	_, err := hasher.Compute(nil)
	assert.ErrorIs(t, err, ErrCorrupt)

	_, err = hasher.Compute([]byte("definitely not an image"))
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestComputeDetectsAnimation(t *testing.T) {
	hasher := StdHasher{}

	multi, err := hasher.Compute(gifBytes(t, 3))
	require.NoError(t, err)
	assert.True(t, multi.Animated)

	single, err := hasher.Compute(gifBytes(t, 1))
	require.NoError(t, err)
	assert.False(t, single.Animated)
}

func TestEmbeddingIsUnitLength(t *testing.T) {
	hasher := StdHasher{}
	hashes, err := hasher.Compute(pngBytes(t, 32, 32, 200))
	require.NoError(t, err)

	var norm float64
	for _, v := range hashes.Embedding {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, norm, 0.001)

	// a unit vector against itself is exact similarity
	assert.InDelta(t, 1.0, CosineSimilarity(hashes.Embedding, hashes.Embedding), 0.0001)
}

func TestHammingDistance(t *testing.T) {
	assert.Equal(t, 0, HammingDistance(0xdeadbeef, 0xdeadbeef))
	assert.Equal(t, 1, HammingDistance(0b1000, 0b0000))
	assert.Equal(t, 64, HammingDistance(0, ^uint64(0)))
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 0}, []float32{2, 0}), 0.0001)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 0.0001)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}), "length mismatch")
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}), "zero vector")
	assert.Zero(t, CosineSimilarity(nil, nil))
}

func TestThumbnailPassthroughWhenSmall(t *testing.T) {
	thumbs := StdThumbnailer{}
	data := pngBytes(t, 100, 80, 5)

	out, err := thumbs.Thumbnail(data)
	require.NoError(t, err)
	assert.Equal(t, data, out, "content within bounds keeps original bytes")
}

func TestThumbnailShrinksLargeImages(t *testing.T) {
	thumbs := StdThumbnailer{}
	data := pngBytes(t, 1000, 400, 5)

	out, err := thumbs.Thumbnail(data)
	require.NoError(t, err)

	img, format, err := image.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, "png", format)
	assert.LessOrEqual(t, img.Bounds().Dx(), ThumbnailMaxDimension)
	assert.LessOrEqual(t, img.Bounds().Dy(), ThumbnailMaxDimension)
	// aspect ratio preserved by the fit
	assert.Equal(t, ThumbnailMaxDimension, img.Bounds().Dx())
}

func TestThumbnailRejectsBadContent(t *testing.T) {
	thumbs := StdThumbnailer{}
	_, err := thumbs.Thumbnail([]byte("garbage"))
	assert.ErrorIs(t, err, ErrCorrupt)
}
