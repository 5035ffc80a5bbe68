package camera

import (
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"time"
)

// MJPEGDevice reads frames from a multipart/x-mixed-replace JPEG stream, the
// format served by IP webcams and phone camera apps. The stream connection is
// opened lazily on the first read and reused for subsequent frames.
type MJPEGDevice struct {
	streamURL string
	client    *http.Client
	body      io.ReadCloser
	reader    *multipart.Reader
}

// NewMJPEGDevice creates a device for the given stream URL.
func NewMJPEGDevice(streamURL string) *MJPEGDevice {
	return &MJPEGDevice{
		streamURL: streamURL,
		// No overall timeout: the stream stays open across frames.
		client: &http.Client{},
	}
}

func (d *MJPEGDevice) connect() error {
	req, err := http.NewRequest(http.MethodGet, d.streamURL, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %v", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("stream returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/x-mixed-replace" {
		resp.Body.Close()
		return fmt.Errorf("unexpected stream content type %q", resp.Header.Get("Content-Type"))
	}
	boundary := params["boundary"]
	if boundary == "" {
		resp.Body.Close()
		return fmt.Errorf("stream content type missing boundary")
	}

	d.body = resp.Body
	d.reader = multipart.NewReader(resp.Body, boundary)
	return nil
}

// ReadFrame returns the next JPEG part from the stream.
func (d *MJPEGDevice) ReadFrame() (*Frame, error) {
	if d.reader == nil {
		if err := d.connect(); err != nil {
			return nil, err
		}
	}

	part, err := d.reader.NextPart()
	if err != nil {
		return nil, fmt.Errorf("read stream part: %v", err)
	}
	defer part.Close()

	data, err := io.ReadAll(part)
	if err != nil {
		return nil, fmt.Errorf("read frame body: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("stream part is not a JPEG image")
	}

	return &Frame{Data: data, CapturedAt: time.Now()}, nil
}

// Close shuts down the stream connection.
func (d *MJPEGDevice) Close() error {
	if d.body != nil {
		return d.body.Close()
	}
	return nil
}
