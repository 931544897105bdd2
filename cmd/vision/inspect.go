package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/born-ml/vision/internal/engine"
	"github.com/born-ml/vision/internal/engine/onnx"
)

// inspectResult is the JSON the inspect command prints.
type inspectResult struct {
	InputNames   []string `json:"input_names"`
	OutputNames  []string `json:"output_names"`
	InputDims    []int64  `json:"input_dims"`
	SupportedOps []string `json:"supported_ops,omitempty"`
}

func inspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Print a model's declared inputs and outputs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "model",
				Usage:    "Path to ONNX model file",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "ops",
				Usage: "Also list the operators this runtime supports",
			},
		},
		Action: inspectAction,
	}
}

func inspectAction(c *cli.Context) error {
	data, err := os.ReadFile(c.String("model"))
	if err != nil {
		return fmt.Errorf("read model: %w", err)
	}

	opts := engine.DefaultOptions()
	opts.Providers = []string{"cpu"}
	ses, err := onnx.Default().Load(data, opts)
	if err != nil {
		return err
	}
	defer ses.Close()

	res := inspectResult{
		InputNames:  ses.InputNames(),
		OutputNames: ses.OutputNames(),
		InputDims:   ses.InputDims(),
	}
	if c.Bool("ops") {
		res.SupportedOps = onnx.SupportedOps()
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}
