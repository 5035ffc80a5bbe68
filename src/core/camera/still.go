package camera

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

// StillDevice fetches a single-shot JPEG per read, the /shot.jpg style
// endpoint most IP webcam apps expose alongside their stream.
type StillDevice struct {
	snapURL string
	client  *http.Client
}

// NewStillDevice creates a device for the given snapshot URL.
func NewStillDevice(snapURL string) *StillDevice {
	return &StillDevice{
		snapURL: snapURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// ReadFrame fetches one snapshot.
func (d *StillDevice) ReadFrame() (*Frame, error) {
	resp, err := d.client.Get(d.snapURL)
	if err != nil {
		return nil, fmt.Errorf("fetch snapshot: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("snapshot returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read snapshot body: %v", err)
	}
	if len(data) < 2 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("snapshot is not a JPEG image")
	}

	return &Frame{Data: data, CapturedAt: time.Now()}, nil
}

// Close is a no-op; each read opens its own connection.
func (d *StillDevice) Close() error {
	return nil
}
