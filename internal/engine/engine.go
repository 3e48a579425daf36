// Package engine executes compiled render commands with ffmpeg. It is
// the only package that touches the encoder binary; everything upstream
// works on the compiled command description.
package engine

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sceneforge/internal/pkg/errors"
	"sceneforge/internal/pkg/logger"
	"sceneforge/internal/render/compiler"
)

// DefaultTimeout bounds a single render. Jobs that exceed it are failed
// rather than left occupying the worker.
const DefaultTimeout = 2 * time.Hour

// stderr is unbounded on long renders; only the tail is useful for
// diagnosing a failure.
const stderrTailBytes = 4096

type Engine struct {
	binary  string
	timeout time.Duration
	log     *logger.Logger
}

type Config struct {
	// Binary is the ffmpeg executable, "ffmpeg" by default.
	Binary  string
	Timeout time.Duration
	Log     *logger.Logger
}

func New(cfg Config) *Engine {
	e := &Engine{
		binary:  cfg.Binary,
		timeout: cfg.Timeout,
		log:     cfg.Log,
	}
	if e.binary == "" {
		e.binary = "ffmpeg"
	}
	if e.timeout <= 0 {
		e.timeout = DefaultTimeout
	}
	if e.log == nil {
		e.log = logger.NewDefault()
	}
	e.log = e.log.WithComponent("engine")
	return e
}

// Args assembles the full ffmpeg argument list for a compiled command,
// in demuxer order: global flags, inputs, the filter graph, stream
// mappings, codec parameters and the output path.
func Args(cmd *compiler.CompiledCommand) []string {
	args := []string{"-y"}

	for _, in := range cmd.Inputs {
		if in.Loop {
			args = append(args, "-loop", "1")
		}
		args = append(args, "-i", in.Path)
	}

	args = append(args, "-filter_complex", cmd.FilterComplex())
	args = append(args, "-map", "["+string(cmd.VideoOutput)+"]")
	if cmd.AudioOutput != "" {
		args = append(args, "-map", "["+string(cmd.AudioOutput)+"]")
	}

	args = append(args,
		"-c:v", cmd.Codec.VideoCodec,
		"-preset", cmd.Codec.Preset,
		"-crf", strconv.Itoa(cmd.Codec.CRF),
		"-pix_fmt", cmd.Codec.PixelFormat,
	)
	if cmd.AudioOutput != "" {
		args = append(args,
			"-c:a", cmd.Codec.AudioCodec,
			"-b:a", cmd.Codec.AudioBitrate,
		)
	}

	if cmd.ForceDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(cmd.ForceDuration, 'f', -1, 64))
	}

	return append(args, cmd.OutputPath)
}

// Render runs the compiled command to completion. The render is bounded
// by the engine timeout; on failure the tail of ffmpeg's stderr is
// attached to the error.
func (e *Engine) Render(ctx context.Context, cmd *compiler.CompiledCommand) error {
	log := e.log.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	args := Args(cmd)
	log.Debug("starting ffmpeg",
		"inputs", len(cmd.Inputs),
		"stages", len(cmd.Stages),
		"output", cmd.OutputPath,
	)

	proc := exec.CommandContext(ctx, e.binary, args...)
	var stderr tailBuffer
	proc.Stderr = &stderr

	start := time.Now()
	err := proc.Run()
	if err == nil {
		log.Info("render finished",
			"output", cmd.OutputPath,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil
	}

	if ctx.Err() == context.DeadlineExceeded {
		return errors.New(errors.CodeTimeout, fmt.Sprintf("render exceeded %s", e.timeout)).
			WithField("output", cmd.OutputPath)
	}
	return errors.WrapWithCode(err, errors.CodeRenderFailed, "engine.render", "ffmpeg failed").
		WithField("stderr_tail", stderr.String())
}

// tailBuffer keeps only the last stderrTailBytes written to it.
type tailBuffer struct {
	buf []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.buf = append(t.buf, p...)
	if len(t.buf) > stderrTailBytes {
		t.buf = t.buf[len(t.buf)-stderrTailBytes:]
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	return strings.TrimSpace(string(t.buf))
}
