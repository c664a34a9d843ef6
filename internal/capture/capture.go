// Package capture fetches camera frames over HTTP.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// maxFrameBytes bounds a single frame download.
const maxFrameBytes = 16 << 20

// Frame is one captured camera image.
type Frame struct {
	Data       []byte // encoded bytes as received
	Image      image.Image
	CapturedAt time.Time
}

// Source produces frames.
type Source interface {
	Capture(ctx context.Context) (*Frame, error)
	Close() error
}

// HTTPSource fetches a still image per request, as served by an ESP32-CAM /capture endpoint.
type HTTPSource struct {
	url     string
	timeout time.Duration
	client  *http.Client
	now     func() time.Time
}

// NewHTTPSource creates an HTTP frame source. timeout bounds each fetch.
func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = constants.DefaultFetchTimeout
	}
	return &HTTPSource{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
		now:     time.Now,
	}
}

// Capture fetches and decodes one frame.
func (s *HTTPSource) Capture(ctx context.Context) (*Frame, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch frame: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("fetch frame: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFrameBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	if len(data) > maxFrameBytes {
		return nil, errors.New("read frame: frame too large")
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	return &Frame{Data: data, Image: img, CapturedAt: s.now()}, nil
}

// Close releases idle connections.
func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
