package codec

import (
	"testing"

	"github.com/born-ml/vision/internal/parallel"
	"github.com/born-ml/vision/internal/tensor"
)

func TestEncodePlanarLayout(t *testing.T) {
	// 2x1 frame: pixel 0 = (255, 0, 0, 255), pixel 1 = (0, 128, 255, 0).
	pixels := []byte{
		255, 0, 0, 255,
		0, 128, 255, 0,
	}

	out, err := Encode(pixels, 2, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !out.Shape().Equal(tensor.Shape{1, 3, 1, 2}) {
		t.Fatalf("Shape = %v, want [1 3 1 2]", out.Shape())
	}

	data := out.Data()
	want := []float32{
		1.0, 0.0, // R plane
		0.0, 128.0 / 255.0, // G plane
		0.0, 1.0, // B plane
	}
	for i, w := range want {
		if data[i] != w {
			t.Errorf("data[%d] = %f, want %f", i, data[i], w)
		}
	}
}

func TestEncodeNormalizedRange(t *testing.T) {
	const w, h = 8, 8
	pixels := make([]byte, w*h*4)
	for i := range pixels {
		pixels[i] = byte(i * 7)
	}

	out, err := Encode(pixels, w, h)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if out.NumElements() != 3*w*h {
		t.Errorf("NumElements = %d, want %d", out.NumElements(), 3*w*h)
	}
	for i, v := range out.Data() {
		if v < 0 || v > 1 {
			t.Errorf("data[%d] = %f, outside [0,1]", i, v)
		}
	}
	// Plane k at index i equals pixels[4*i+k]/255.
	n := w * h
	data := out.Data()
	for k := range 3 {
		for i := range n {
			want := float32(pixels[4*i+k]) / 255.0
			if data[k*n+i] != want {
				t.Fatalf("plane %d index %d = %f, want %f", k, i, data[k*n+i], want)
			}
		}
	}
}

func TestEncodeAllZero(t *testing.T) {
	pixels := make([]byte, 4*4*4)
	out, err := Encode(pixels, 4, 4)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i, v := range out.Data() {
		if v != 0 {
			t.Errorf("data[%d] = %f, want 0", i, v)
		}
	}
}

func TestEncodeAlphaIgnored(t *testing.T) {
	a := []byte{10, 20, 30, 0}
	b := []byte{10, 20, 30, 255}

	outA, err := Encode(a, 1, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	outB, err := Encode(b, 1, 1)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	for i := range outA.Data() {
		if outA.Data()[i] != outB.Data()[i] {
			t.Errorf("Alpha changed output at index %d", i)
		}
	}
}

func TestEncodeLengthMismatch(t *testing.T) {
	if _, err := Encode(make([]byte, 10), 2, 2); err == nil {
		t.Error("Expected error for short pixel buffer, got nil")
	}
	if _, err := Encode(make([]byte, 32), 2, 2); err == nil {
		t.Error("Expected error for oversized pixel buffer, got nil")
	}
}

func TestEncodeDoesNotMutateInput(t *testing.T) {
	pixels := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	orig := make([]byte, len(pixels))
	copy(orig, pixels)

	if _, err := Encode(pixels, 2, 1); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	for i := range pixels {
		if pixels[i] != orig[i] {
			t.Errorf("Input mutated at index %d", i)
		}
	}
}

func TestEncodeParallelMatchesSequential(t *testing.T) {
	const w, h = 64, 48
	pixels := make([]byte, w*h*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}

	seq, err := EncodeWith(pixels, w, h, parallel.Sequential())
	if err != nil {
		t.Fatalf("sequential Encode failed: %v", err)
	}
	par, err := EncodeWith(pixels, w, h, parallel.Config{Enabled: true, NumWorkers: 8, MinChunkSize: 16})
	if err != nil {
		t.Fatalf("parallel Encode failed: %v", err)
	}

	for i := range seq.Data() {
		if seq.Data()[i] != par.Data()[i] {
			t.Fatalf("Mismatch at index %d: %f vs %f", i, seq.Data()[i], par.Data()[i])
		}
	}
}
