// Package codec converts raw camera frames into model input tensors.
//
// The only conversion the worker needs is interleaved RGBA8 to planar
// RGB float32 (CHW layout) normalized to [0,1]. The alpha channel is
// dropped. No resizing happens here; frames must already be at the
// model's spatial resolution.
package codec

import (
	"fmt"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

const bytesPerPixel = 4 // R, G, B, A

// Encode converts an interleaved RGBA8 pixel buffer into a planar RGB
// float32 tensor of shape {1, 3, height, width} with values in [0,1].
//
// Plane k at index i equals pixels[4*i+k]/255 for k in {0,1,2}.
// The input buffer is never mutated and may be reused by the caller
// after Encode returns.
func Encode(pixels []byte, width, height uint32) (*tensor.Raw, error) {
	return EncodeWith(pixels, width, height, parallel.DefaultConfig())
}

// EncodeWith is Encode with an explicit parallelism config.
func EncodeWith(pixels []byte, width, height uint32, cfg parallel.Config) (*tensor.Raw, error) {
	numPixels := int(width) * int(height)
	if len(pixels) != numPixels*bytesPerPixel {
		return nil, fmt.Errorf("pixel buffer length %d does not match %dx%d RGBA frame (want %d)",
			len(pixels), width, height, numPixels*bytesPerPixel)
	}

	out := make([]float32, 3*numPixels)
	r := out[:numPixels]
	g := out[numPixels : 2*numPixels]
	b := out[2*numPixels : 3*numPixels]

	parallel.Range(numPixels, func(start, end int) {
		for i := start; i < end; i++ {
			off := i * bytesPerPixel
			r[i] = float32(pixels[off]) / 255.0
			g[i] = float32(pixels[off+1]) / 255.0
			b[i] = float32(pixels[off+2]) / 255.0
		}
	}, cfg)

	return tensor.FromSlice(out, tensor.Shape{1, 3, int(height), int(width)})
}
