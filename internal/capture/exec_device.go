package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/eleven-am/livescribe/internal/shared"
)

// ExecDevice captures microphone audio through an external recorder process
// (arecord, ffmpeg, sox) that writes raw PCM16 to stdout. The {rate} and
// {channels} placeholders in Args are substituted from the stream config.
type ExecDevice struct {
	Command string
	Args    []string
	log     *slog.Logger
}

// DefaultRecorderArgs capture raw mono PCM16 with arecord.
var DefaultRecorderArgs = []string{
	"-q", "-f", "S16_LE", "-r", "{rate}", "-c", "{channels}", "-t", "raw",
}

func NewExecDevice(command string, args []string, log *slog.Logger) *ExecDevice {
	if log == nil {
		log = slog.Default()
	}
	if command == "" {
		command = "arecord"
	}
	if len(args) == 0 {
		args = DefaultRecorderArgs
	}
	return &ExecDevice{
		Command: command,
		Args:    args,
		log:     log.With("component", "capture-device"),
	}
}

func (d *ExecDevice) Open(ctx context.Context, cfg StreamConfig) (Stream, error) {
	cfg = cfg.withDefaults()

	path, err := exec.LookPath(d.Command)
	if err != nil {
		return nil, fmt.Errorf("recorder %q: %w", d.Command, errors.Join(shared.ErrDeviceUnavailable, err))
	}

	cmd := exec.CommandContext(ctx, path, expandArgs(d.Args, cfg)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recorder stdout: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("recorder %q: %w", d.Command, errors.Join(shared.ErrDeviceAccessDenied, err))
		}
		return nil, fmt.Errorf("recorder %q: %w", d.Command, errors.Join(shared.ErrDeviceUnavailable, err))
	}

	d.log.Info("recorder started", "command", d.Command, "sample_rate", cfg.SampleRate)
	return &execStream{cmd: cmd, out: stdout}, nil
}

func expandArgs(args []string, cfg StreamConfig) []string {
	expanded := make([]string, len(args))
	for i, arg := range args {
		arg = strings.ReplaceAll(arg, "{rate}", strconv.Itoa(cfg.SampleRate))
		arg = strings.ReplaceAll(arg, "{channels}", strconv.Itoa(cfg.Channels))
		expanded[i] = arg
	}
	return expanded
}

type execStream struct {
	cmd *exec.Cmd
	out io.ReadCloser
}

func (s *execStream) Read(buf []byte) (int, error) {
	return s.out.Read(buf)
}

func (s *execStream) Close() error {
	_ = s.out.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	_ = s.cmd.Wait()
	return nil
}
