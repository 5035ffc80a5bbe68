package image

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"sync/atomic"

	"golang.org/x/image/draw"

	"drawing-assistant-go/src/core/utils"
)

// Metrics counts processor activity.
type Metrics struct {
	TotalProcessed  int64
	Downscaled      int64
	FailedDecodes   int64
	RejectedFormats int64
}

// Processor validates raw image bytes and prepares them for model upload.
// Frames wider than maxWidth are downscaled before encoding to keep request
// payloads small.
type Processor struct {
	maxWidth int
	logger   *utils.TaggedLogger
	metrics  Metrics
}

// NewProcessor creates a processor. maxWidth <= 0 disables downscaling.
func NewProcessor(maxWidth int, logger *utils.Logger) *Processor {
	return &Processor{
		maxWidth: maxWidth,
		logger:   logger.WithTag("image"),
	}
}

// Prepare validates data, downscales it when needed and returns the base64
// payload plus the detected format name.
func (p *Processor) Prepare(data []byte) (string, string, error) {
	atomic.AddInt64(&p.metrics.TotalProcessed, 1)

	format := DetectFormat(data)
	if format == "" {
		atomic.AddInt64(&p.metrics.RejectedFormats, 1)
		return "", "", fmt.Errorf("unsupported image format")
	}

	if p.maxWidth > 0 {
		if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil && cfg.Width > p.maxWidth {
			scaled, err := p.downscale(data, cfg)
			if err != nil {
				p.logger.Warn(fmt.Sprintf("downscale failed, sending original frame: %v", err))
			} else {
				data = scaled
				format = "jpeg"
				atomic.AddInt64(&p.metrics.Downscaled, 1)
			}
		}
	}

	return base64.StdEncoding.EncodeToString(data), format, nil
}

// Decode decodes data into an image, counting failures.
func (p *Processor) Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		atomic.AddInt64(&p.metrics.FailedDecodes, 1)
		return nil, fmt.Errorf("decode image: %v", err)
	}
	return img, nil
}

func (p *Processor) downscale(data []byte, cfg image.Config) ([]byte, error) {
	src, err := p.Decode(data)
	if err != nil {
		return nil, err
	}

	height := cfg.Height * p.maxWidth / cfg.Width
	dst := image.NewRGBA(image.Rect(0, 0, p.maxWidth, height))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode scaled frame: %v", err)
	}
	return buf.Bytes(), nil
}

// GetMetrics returns a snapshot of the processor counters.
func (p *Processor) GetMetrics() Metrics {
	return Metrics{
		TotalProcessed:  atomic.LoadInt64(&p.metrics.TotalProcessed),
		Downscaled:      atomic.LoadInt64(&p.metrics.Downscaled),
		FailedDecodes:   atomic.LoadInt64(&p.metrics.FailedDecodes),
		RejectedFormats: atomic.LoadInt64(&p.metrics.RejectedFormats),
	}
}

// DetectFormat sniffs the image format from magic bytes. Empty string means
// the data is not a recognized raster image.
func DetectFormat(data []byte) string {
	switch {
	case hasJPEGHeader(data):
		return "jpeg"
	case hasPNGHeader(data):
		return "png"
	case hasGIFHeader(data):
		return "gif"
	case hasBMPHeader(data):
		return "bmp"
	case hasWebPHeader(data):
		return "webp"
	default:
		return ""
	}
}

func hasJPEGHeader(data []byte) bool {
	return len(data) >= 2 && data[0] == 0xFF && data[1] == 0xD8
}

func hasPNGHeader(data []byte) bool {
	return len(data) >= 8 &&
		data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 &&
		data[4] == 0x0D && data[5] == 0x0A && data[6] == 0x1A && data[7] == 0x0A
}

func hasGIFHeader(data []byte) bool {
	return len(data) >= 6 &&
		data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 &&
		(data[4] == 0x37 || data[4] == 0x39) && data[5] == 0x61
}

func hasBMPHeader(data []byte) bool {
	return len(data) >= 2 && data[0] == 0x42 && data[1] == 0x4D
}

func hasWebPHeader(data []byte) bool {
	return len(data) >= 12 &&
		data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50
}
