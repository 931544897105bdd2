package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/born-ml/vision/internal/config"
	"github.com/born-ml/vision/internal/log"
	"github.com/born-ml/vision/internal/protocol"
	"github.com/born-ml/vision/worker"
)

// maxWireMessage bounds a single inbound message. A 4K RGBA frame is
// ~33 MB; 64 MB leaves headroom for model bytes sent inline.
const maxWireMessage = 64 << 20

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the worker over stdin/stdout (length-prefixed msgpack)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML config file",
			},
			&cli.StringFlag{
				Name:  "model",
				Usage: "Model to load at startup (overrides config)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Minimum log level: debug, info, warn, error",
			},
		},
		Action: serveAction,
	}
}

func serveAction(c *cli.Context) error {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if model := c.String("model"); model != "" {
		cfg.Model.Path = model
	}
	if level := c.String("log-level"); level != "" {
		cfg.Log.Level = level
	}

	logger := log.NewAtLevel("vision", cfg.Log.Level)
	defer logger.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	w := worker.New(
		worker.WithLogger(logger),
		worker.WithQueueDepth(cfg.Worker.QueueDepth),
	)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		w.Run(ctx)
	}()

	// Writer goroutine: drains worker events onto stdout until the
	// event channel closes.
	out := bufio.NewWriter(os.Stdout)
	wg.Add(1)
	go func() {
		defer wg.Done()
		for ev := range w.Events() {
			raw, err := protocol.EncodeOutbound(ev)
			if err != nil {
				logger.Error("encode event", zap.Error(err))
				continue
			}
			if err := writeFrame(out, raw); err != nil {
				logger.Error("write event", zap.Error(err))
				return
			}
		}
	}()

	if cfg.Model.Path != "" {
		w.Submit(worker.Init{ModelPath: cfg.Model.Path, Options: cfg.Options()})
	}

	err := readLoop(ctx, os.Stdin, w, logger)
	stop()
	wg.Wait()
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// readLoop decodes length-prefixed envelopes from r and submits them.
// A malformed message is reported back and skipped; the loop ends on
// EOF, a read error, or cancellation. Reads happen on their own
// goroutine so a signal is honored even while blocked on input.
func readLoop(ctx context.Context, r io.Reader, w *worker.Worker, logger *zap.Logger) error {
	type readResult struct {
		raw []byte
		err error
	}
	reads := make(chan readResult)
	go func() {
		in := bufio.NewReader(r)
		for {
			raw, err := readFrame(in)
			select {
			case reads <- readResult{raw: raw, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case res := <-reads:
			if res.err != nil {
				return res.err
			}
			msg, err := protocol.DecodeInbound(res.raw)
			if err != nil {
				logger.Warn("rejected message", zap.Error(err))
				continue
			}
			if err := w.SubmitContext(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maxWireMessage {
		return nil, fmt.Errorf("message of %d bytes exceeds limit", size)
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("short message body: %w", err)
	}
	return buf, nil
}

func writeFrame(w *bufio.Writer, raw []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(raw)))
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(raw); err != nil {
		return err
	}
	return w.Flush()
}
