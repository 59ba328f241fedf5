package video

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/abishek-baskaran/zvision/internal/logger"
)

// FFmpeg locates and invokes the ffmpeg binary
type FFmpeg struct {
	path string
	log  *logger.Logger
}

// NewFFmpeg detects the ffmpeg binary on PATH
func NewFFmpeg(log *logger.Logger) (*FFmpeg, error) {
	path, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("ffmpeg not found in PATH: %w", err)
	}
	log.Debug("ffmpeg binary detected", "path", path)
	return &FFmpeg{path: path, log: log}, nil
}

// Path returns the resolved ffmpeg binary path
func (f *FFmpeg) Path() string {
	return f.path
}

// Command builds an exec.Cmd for the given ffmpeg arguments
func (f *FFmpeg) Command(ctx context.Context, args ...string) *exec.Cmd {
	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	return exec.CommandContext(ctx, f.path, full...)
}

// ValidateInput checks that ffmpeg can decode at least one frame from
// the input. Used to fail fast on bad file paths or dead streams.
func (f *FFmpeg) ValidateInput(ctx context.Context, input string) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cmd := f.Command(ctx, "-i", input, "-frames:v", "1", "-f", "null", "-")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("input validation failed for %s: %w (%s)", input, err, string(out))
	}
	return nil
}

// MJPEGArgs builds the argument list for a continuous MJPEG pipe from
// the given source. Device sources are addressed via v4l2.
func MJPEGArgs(source string, kind SourceKind, width, height int) []string {
	args := []string{}

	switch kind {
	case KindDevice:
		args = append(args, "-f", "v4l2", "-i", "/dev/video"+source)
	case KindStream:
		if strings.HasPrefix(source, "rtsp://") {
			args = append(args, "-rtsp_transport", "tcp")
		}
		args = append(args, "-i", source)
	default:
		args = append(args, "-re", "-i", source)
	}

	if width > 0 && height > 0 {
		args = append(args, "-vf", "scale="+strconv.Itoa(width)+":"+strconv.Itoa(height))
	}

	args = append(args, "-f", "mjpeg", "-q:v", "5", "pipe:1")
	return args
}
