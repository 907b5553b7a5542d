// Package media implements the image collaborators the archive engine
// consumes: perceptual hashing, embedding vectors, and thumbnail
// generation. Everything here operates on raw bytes so callers never
// deal with decoded images.
package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"math"
	"math/bits"
	"sort"

	// register decoders for the content types the remote site serves
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/corona10/goimagehash"
	imglib "github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	log "github.com/sirupsen/logrus"
)

// ErrCorrupt is returned for empty, truncated, or undecodable content.
var ErrCorrupt = errors.New("corrupt or unsupported image content")

const (
	// ThumbnailMaxDimension bounds the longest side of generated thumbnails.
	ThumbnailMaxDimension = 280

	waveletScale  = 64 // downscale size feeding the wavelet hash
	waveletBlock  = 8  // low-frequency band size (8x8 = 64 bits)
	embeddingSide = 8  // embedding grid; 8x8 RGB = 192 dimensions
)

// Hashes carries everything the engine derives from one image's bytes.
type Hashes struct {
	Percept   uint64
	Average   uint64
	Diff      uint64
	Wavelet   uint64
	Embedding []float32
	Width     int
	Height    int
	Animated  bool
}

// Hasher computes similarity signals from raw image bytes.
type Hasher interface {
	Compute(data []byte) (Hashes, error)
}

// Thumbnailer produces a smaller rendition of raw image bytes.
type Thumbnailer interface {
	Thumbnail(data []byte) ([]byte, error)
}

// StdHasher is the default Hasher, built on goimagehash plus a wavelet
// low-band hash and a downsampled color embedding.
type StdHasher struct{}

// Compute decodes data and derives the four 64-bit hashes, the
// embedding vector, dimensions and the animated flag.
func (StdHasher) Compute(data []byte) (Hashes, error) {
	if len(data) == 0 {
		return Hashes{}, fmt.Errorf("%w: empty content", ErrCorrupt)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return Hashes{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	animated := false
	if format == "gif" {
		if g, gifErr := gif.DecodeAll(bytes.NewReader(data)); gifErr == nil && len(g.Image) > 1 {
			animated = true
		}
	}

	percept, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return Hashes{}, fmt.Errorf("%w: perception hash: %v", ErrCorrupt, err)
	}
	average, err := goimagehash.AverageHash(img)
	if err != nil {
		return Hashes{}, fmt.Errorf("%w: average hash: %v", ErrCorrupt, err)
	}
	diff, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return Hashes{}, fmt.Errorf("%w: difference hash: %v", ErrCorrupt, err)
	}

	bounds := img.Bounds()
	return Hashes{
		Percept:   percept.GetHash(),
		Average:   average.GetHash(),
		Diff:      diff.GetHash(),
		Wavelet:   waveletHash(img),
		Embedding: embed(img),
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		Animated:  animated,
	}, nil
}

// waveletHash builds a 64-bit hash from the low-frequency Haar band of
// the image: downscale to 64x64 grayscale, reduce to the 8x8 LL band by
// repeated 2x2 averaging, then threshold each coefficient against the
// band median.
func waveletHash(img image.Image) uint64 {
	small := resize.Resize(waveletScale, waveletScale, img, resize.Bilinear)
	gray := make([]float64, waveletScale*waveletScale)
	for y := 0; y < waveletScale; y++ {
		for x := 0; x < waveletScale; x++ {
			gray[y*waveletScale+x] = luminance(small.At(small.Bounds().Min.X+x, small.Bounds().Min.Y+y))
		}
	}

	// 64 -> 8 is three Haar levels; the LL band of each level is the
	// 2x2 mean of the previous one.
	size := waveletScale
	for size > waveletBlock {
		half := size / 2
		next := make([]float64, half*half)
		for y := 0; y < half; y++ {
			for x := 0; x < half; x++ {
				next[y*half+x] = (gray[(2*y)*size+2*x] + gray[(2*y)*size+2*x+1] +
					gray[(2*y+1)*size+2*x] + gray[(2*y+1)*size+2*x+1]) / 4.0
			}
		}
		gray, size = next, half
	}

	sorted := make([]float64, len(gray))
	copy(sorted, gray)
	sort.Float64s(sorted)
	median := (sorted[len(sorted)/2-1] + sorted[len(sorted)/2]) / 2.0

	var hash uint64
	for i, v := range gray {
		if v > median {
			hash |= 1 << uint(63-i)
		}
	}
	return hash
}

// embed produces a unit-length color vector from an 8x8 downscale of
// the image. Cosine similarity between two embeddings then reduces to a
// dot product.
func embed(img image.Image) []float32 {
	small := resize.Resize(embeddingSide, embeddingSide, img, resize.Bilinear)
	vec := make([]float32, 0, embeddingSide*embeddingSide*3)
	var norm float64
	for y := 0; y < embeddingSide; y++ {
		for x := 0; x < embeddingSide; x++ {
			r, g, b, _ := small.At(small.Bounds().Min.X+x, small.Bounds().Min.Y+y).RGBA()
			for _, c := range []uint32{r, g, b} {
				v := float32(c) / 65535.0
				vec = append(vec, v)
				norm += float64(v) * float64(v)
			}
		}
	}
	if norm > 0 {
		scale := float32(1.0 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}

func luminance(c color.Color) float64 {
	r, g, b, _ := c.RGBA()
	return 0.299*float64(r)/257.0 + 0.587*float64(g)/257.0 + 0.114*float64(b)/257.0
}

// HammingDistance counts differing bits between two 64-bit hashes.
func HammingDistance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// CosineSimilarity computes the cosine of the angle between two
// embedding vectors. Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// StdThumbnailer is the default Thumbnailer: a Lanczos fit bounded by
// ThumbnailMaxDimension, re-encoded in the source format where possible.
type StdThumbnailer struct{}

// Thumbnail returns a smaller rendition of data. Content already within
// the thumbnail bounds is returned unchanged.
func (StdThumbnailer) Thumbnail(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty content", ErrCorrupt)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() <= ThumbnailMaxDimension && bounds.Dy() <= ThumbnailMaxDimension {
		log.Debugf("Image (%dx%d) already within thumbnail bounds, keeping original bytes",
			bounds.Dx(), bounds.Dy())
		return data, nil
	}

	thumb := imglib.Fit(img, ThumbnailMaxDimension, ThumbnailMaxDimension, imglib.Lanczos)

	encFormat, err := imglib.FormatFromExtension(format)
	if err != nil {
		// Animated gifs collapse to a still first frame here; webp and
		// anything else without an encoder falls back to JPEG.
		encFormat = imglib.JPEG
	}
	var buf bytes.Buffer
	if err := imglib.Encode(&buf, thumb, encFormat); err != nil {
		return nil, fmt.Errorf("encoding thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
