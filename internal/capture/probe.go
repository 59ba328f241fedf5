package capture

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"

	"github.com/abishek-baskaran/zvision/internal/logger"
)

// Prober checks that a stream endpoint is alive before the capture
// worker pays the cost of a full source reopen.
type Prober interface {
	Probe(ctx context.Context) error
}

// RTSPProber performs a DESCRIBE/SETUP/PLAY handshake against an RTSP
// endpoint and waits for a first RTP packet.
type RTSPProber struct {
	url     string
	timeout time.Duration
	log     *logger.Logger
}

// NewRTSPProber creates a prober for the given source URL. Returns nil
// for non-RTSP sources; the capture worker treats a nil prober as
// "reopen without probing".
func NewRTSPProber(source string, timeout time.Duration, log *logger.Logger) *RTSPProber {
	if !strings.HasPrefix(source, "rtsp://") {
		return nil
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &RTSPProber{url: source, timeout: timeout, log: log}
}

// Probe connects and waits for media to flow
func (p *RTSPProber) Probe(ctx context.Context) error {
	u, err := base.ParseURL(p.url)
	if err != nil {
		return fmt.Errorf("invalid rtsp url: %w", err)
	}

	client := &gortsplib.Client{
		ReadTimeout:  p.timeout,
		WriteTimeout: p.timeout,
	}
	defer client.Close()

	desc, _, err := client.Describe(u)
	if err != nil {
		return fmt.Errorf("describe failed: %w", err)
	}

	if err := client.SetupAll(desc.BaseURL, desc.Medias); err != nil {
		return fmt.Errorf("setup failed: %w", err)
	}

	packet := make(chan struct{}, 1)
	client.OnPacketRTPAny(func(_ *description.Media, _ format.Format, _ *rtp.Packet) {
		select {
		case packet <- struct{}{}:
		default:
		}
	})

	if _, err := client.Play(nil); err != nil {
		return fmt.Errorf("play failed: %w", err)
	}

	select {
	case <-packet:
		p.log.Debug("rtsp probe received media", "url", p.url)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.timeout):
		return fmt.Errorf("no media received within %v", p.timeout)
	}
}
