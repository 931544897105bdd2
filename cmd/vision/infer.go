package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/born-ml/vision/internal/log"
	"github.com/born-ml/vision/worker"
)

// inferResult is the JSON the infer command prints.
type inferResult struct {
	FrameID      uint64    `json:"frame_id"`
	Dims         []int     `json:"dims"`
	Min          float32   `json:"min"`
	Max          float32   `json:"max"`
	First        []float32 `json:"first,omitempty"`
	PreprocessMs float64   `json:"preprocess_ms"`
	InferenceMs  float64   `json:"inference_ms"`
	TotalMs      float64   `json:"total_ms"`
}

func inferCommand() *cli.Command {
	return &cli.Command{
		Name:  "infer",
		Usage: "Load a model, run one frame through it, print the result",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "model",
				Usage:    "Path to ONNX model file",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "frame",
				Usage: "Raw RGBA8 frame file; omitted means a zero frame",
			},
			&cli.UintFlag{
				Name:  "width",
				Usage: "Frame width in pixels",
				Value: 640,
			},
			&cli.UintFlag{
				Name:  "height",
				Usage: "Frame height in pixels",
				Value: 640,
			},
			&cli.StringFlag{
				Name:  "provider",
				Usage: "Execution provider: webgpu or cpu",
			},
		},
		Action: inferAction,
	}
}

func inferAction(c *cli.Context) error {
	width := uint32(c.Uint("width"))
	height := uint32(c.Uint("height"))

	pixels := make([]byte, int(width)*int(height)*4)
	if path := c.String("frame"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read frame: %w", err)
		}
		if len(data) != len(pixels) {
			return fmt.Errorf("frame file is %d bytes, want %d for %dx%d RGBA", len(data), len(pixels), width, height)
		}
		pixels = data
	}

	opts := worker.DefaultOptions()
	if provider := c.String("provider"); provider != "" {
		opts.Providers = []string{provider}
	}

	w := worker.New(worker.WithLogger(log.New("vision")))
	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go w.Run(ctx)

	w.Submit(worker.Init{ModelPath: c.String("model"), Options: opts})
	w.Submit(worker.ProcessFrame{Frame: worker.Frame{
		Data:   pixels,
		Width:  width,
		Height: height,
		ID:     1,
	}})

	for ev := range w.Events() {
		switch e := ev.(type) {
		case worker.ModelLoaded:
			continue
		case worker.Error:
			return fmt.Errorf("%s", e.Cause)
		case worker.FrameProcessed:
			return printResult(e)
		}
	}
	return fmt.Errorf("worker stopped without a result")
}

func printResult(e worker.FrameProcessed) error {
	res := inferResult{
		FrameID:      e.FrameID,
		Dims:         e.Output.Dims,
		PreprocessMs: float64(e.Timings.Preprocess.Microseconds()) / 1e3,
		InferenceMs:  float64(e.Timings.Inference.Microseconds()) / 1e3,
		TotalMs:      float64(e.Timings.Total.Microseconds()) / 1e3,
	}
	if len(e.Output.Data) > 0 {
		res.Min, res.Max = e.Output.Data[0], e.Output.Data[0]
		for _, v := range e.Output.Data {
			if v < res.Min {
				res.Min = v
			}
			if v > res.Max {
				res.Max = v
			}
		}
		n := len(e.Output.Data)
		if n > 8 {
			n = 8
		}
		res.First = e.Output.Data[:n]
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
