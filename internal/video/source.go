package video

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"github.com/abishek-baskaran/zvision/internal/logger"
)

// SourceKind classifies a camera source string
type SourceKind int

const (
	// KindFile is a local video file. Reaching EOF loops back to the start.
	KindFile SourceKind = iota
	// KindStream is a network stream (rtsp/rtmp/http). Read failures
	// trigger reconnect with backoff.
	KindStream
	// KindDevice is a local capture device addressed by numeric index.
	KindDevice
)

func (k SourceKind) String() string {
	switch k {
	case KindStream:
		return "stream"
	case KindDevice:
		return "device"
	default:
		return "file"
	}
}

// ClassifySource determines the kind of a source string
func ClassifySource(source string) SourceKind {
	if _, err := strconv.Atoi(source); err == nil {
		return KindDevice
	}
	for _, prefix := range []string{"rtsp://", "rtmp://", "http://", "https://"} {
		if strings.HasPrefix(source, prefix) {
			return KindStream
		}
	}
	return KindFile
}

// Source abstracts a frame producer so capture workers can run against
// real ffmpeg-backed sources or synthetic ones in tests.
type Source interface {
	// Open prepares the source for reading
	Open(ctx context.Context) error
	// ReadFrame blocks until the next frame is available
	ReadFrame() (*Frame, error)
	// Restart reopens the source: loop-to-start for files, reconnect
	// for streams and devices
	Restart(ctx context.Context) error
	// Close releases the source. Safe to call multiple times.
	Close() error
	// Kind returns the source classification
	Kind() SourceKind
}

const (
	defaultFrameWidth  = 640
	defaultFrameHeight = 480

	// maxFrameSize bounds a single MJPEG frame scan so a corrupt
	// stream cannot grow the read buffer without limit
	maxFrameSize = 8 << 20
)

// FFmpegSource reads frames from a long-lived ffmpeg child process
// that transcodes the input to an MJPEG stream on stdout.
type FFmpegSource struct {
	cameraID string
	source   string
	kind     SourceKind
	width    int
	height   int
	ffmpeg   *FFmpeg
	log      *logger.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdout io.ReadCloser
	reader *bufio.Reader
	cancel context.CancelFunc
	opened bool
}

// NewFFmpegSource creates a source for the given camera and input
func NewFFmpegSource(cameraID, source string, ffmpeg *FFmpeg, log *logger.Logger) *FFmpegSource {
	return &FFmpegSource{
		cameraID: cameraID,
		source:   source,
		kind:     ClassifySource(source),
		width:    defaultFrameWidth,
		height:   defaultFrameHeight,
		ffmpeg:   ffmpeg,
		log:      log,
	}
}

// Kind returns the source classification
func (s *FFmpegSource) Kind() SourceKind {
	return s.kind
}

// Open starts the ffmpeg child process
func (s *FFmpegSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	procCtx, cancel := context.WithCancel(context.Background())
	cmd := s.ffmpeg.Command(procCtx, MJPEGArgs(s.source, s.kind, s.width, s.height)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("failed to start ffmpeg for %s: %w", s.source, err)
	}

	s.cmd = cmd
	s.stdout = stdout
	s.reader = bufio.NewReaderSize(stdout, 1<<20)
	s.cancel = cancel
	s.opened = true

	s.log.Debug("source opened",
		"camera_id", s.cameraID,
		"source", s.source,
		"kind", s.kind.String())
	return nil
}

// ReadFrame reads the next JPEG frame from the ffmpeg pipe. Returns
// io.EOF when the stream ends (end of file or dropped connection).
func (s *FFmpegSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	reader := s.reader
	s.mu.Unlock()

	if reader == nil {
		return nil, fmt.Errorf("source not open")
	}

	data, err := readJPEG(reader)
	if err != nil {
		return nil, err
	}
	return NewFrame(s.cameraID, data, s.width, s.height), nil
}

// Restart tears down the ffmpeg process and starts a fresh one. For
// file sources this restarts playback from the first frame.
func (s *FFmpegSource) Restart(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.log.Debug("close before restart", "camera_id", s.cameraID, "error", err)
	}
	return s.Open(ctx)
}

// Close stops the ffmpeg process and releases the pipe
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened {
		return nil
	}
	s.opened = false

	if s.cancel != nil {
		s.cancel()
	}
	if s.stdout != nil {
		_ = s.stdout.Close()
	}
	if s.cmd != nil {
		// CommandContext already killed the process via cancel; Wait
		// reaps it and always reports an error we don't care about.
		_ = s.cmd.Wait()
	}
	s.cmd = nil
	s.stdout = nil
	s.reader = nil
	s.cancel = nil
	return nil
}

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// readJPEG scans an MJPEG byte stream for the next complete JPEG image
func readJPEG(r *bufio.Reader) ([]byte, error) {
	// Seek the start-of-image marker.
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if b != jpegSOI[0] {
			continue
		}
		next, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if next == jpegSOI[1] {
			break
		}
	}

	buf := bytes.NewBuffer(make([]byte, 0, 64<<10))
	buf.Write(jpegSOI)

	// Accumulate until the end-of-image marker.
	for buf.Len() < maxFrameSize {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		if b == jpegEOI[1] && buf.Len() >= 4 {
			data := buf.Bytes()
			if data[len(data)-2] == jpegEOI[0] {
				return data, nil
			}
		}
	}
	return nil, fmt.Errorf("frame exceeds %d bytes without EOI marker", maxFrameSize)
}
