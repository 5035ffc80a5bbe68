package camera

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	"sync"
	"time"

	"drawing-assistant-go/src/configs"
	"drawing-assistant-go/src/core/utils"
)

// Frame is one captured camera image, held as encoded JPEG bytes. Frames are
// ephemeral: the caller that received one owns it and must not share it.
type Frame struct {
	Data       []byte
	Width      int
	Height     int
	CapturedAt time.Time
}

// Device is a single physical (or network) camera. Implementations are not
// safe for concurrent use; Source serializes access.
type Device interface {
	// ReadFrame returns the next frame from the device.
	ReadFrame() (*Frame, error)
	Close() error
}

// Source wraps one Device behind a mutex. Concurrent grabs against a single
// camera are undefined with most drivers, so every read holds the lock.
// A device that fails stays failed until process restart; there is no
// reopen-on-error policy here.
type Source struct {
	mu     sync.Mutex
	device Device
	failed bool
	logger *utils.TaggedLogger
}

// NewSource builds the configured device and wraps it in a Source.
func NewSource(cfg configs.CameraConfig, logger *utils.Logger) (*Source, error) {
	var device Device
	switch cfg.Type {
	case "mjpeg":
		if cfg.StreamURL == "" {
			return nil, fmt.Errorf("camera: mjpeg device requires stream_url")
		}
		device = NewMJPEGDevice(cfg.StreamURL)
	case "still":
		if cfg.SnapURL == "" {
			return nil, fmt.Errorf("camera: still device requires snap_url")
		}
		device = NewStillDevice(cfg.SnapURL)
	default:
		return nil, fmt.Errorf("camera: unknown device type %q", cfg.Type)
	}

	return &Source{
		device: device,
		logger: logger.WithTag("camera"),
	}, nil
}

// NewSourceWithDevice wraps an existing device; used by tests and by callers
// that construct devices themselves.
func NewSourceWithDevice(device Device, logger *utils.Logger) *Source {
	return &Source{
		device: device,
		logger: logger.WithTag("camera"),
	}
}

// Grab returns the most recent frame, or ok=false when the device is
// unavailable or the read fails. It never panics and never retries.
func (s *Source) Grab() (*Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failed {
		return nil, false
	}

	frame, err := s.device.ReadFrame()
	if err != nil {
		s.failed = true
		s.logger.Error(fmt.Sprintf("frame read failed, device marked unavailable: %v", err))
		return nil, false
	}

	if frame.Width == 0 || frame.Height == 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(frame.Data)); err == nil {
			frame.Width = cfg.Width
			frame.Height = cfg.Height
		}
	}
	if frame.CapturedAt.IsZero() {
		frame.CapturedAt = time.Now()
	}

	return frame, true
}

// Close releases the underlying device.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.device.Close()
}
