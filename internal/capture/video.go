package capture

import (
	"fmt"
	"time"

	"camwatch/internal/core"

	"gocv.io/x/gocv"
)

// VideoSource reads frames from a camera stream or video file through
// OpenCV. Frames are handed out as encoded JPEG bytes so the rest of the
// pipeline never touches a Mat.
type VideoSource struct {
	descriptor  string
	openTimeout time.Duration
	readTimeout time.Duration
	cap         *gocv.VideoCapture
	frame       gocv.Mat
}

func NewVideoSource(descriptor string, openTimeout, readTimeout time.Duration) *VideoSource {
	return &VideoSource{
		descriptor:  descriptor,
		openTimeout: openTimeout,
		readTimeout: readTimeout,
	}
}

// NewFactory returns a Factory producing VideoSources with the given timeouts.
func NewFactory(openTimeout, readTimeout time.Duration) Factory {
	return func(descriptor string) Source {
		return NewVideoSource(descriptor, openTimeout, readTimeout)
	}
}

// Open connects to the stream. Open and read timeouts bound how long a
// stalled source can delay worker shutdown.
func (v *VideoSource) Open() error {
	cap, err := gocv.OpenVideoCapture(v.descriptor)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrSourceUnavailable, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%w: %s", core.ErrSourceUnavailable, v.descriptor)
	}

	cap.Set(gocv.VideoCaptureOpenTimeoutMsec, float64(v.openTimeout.Milliseconds()))
	cap.Set(gocv.VideoCaptureReadTimeoutMsec, float64(v.readTimeout.Milliseconds()))

	v.cap = cap
	v.frame = gocv.NewMat()
	return nil
}

// Read grabs one frame and returns it JPEG-encoded.
func (v *VideoSource) Read() ([]byte, error) {
	if v.cap == nil {
		return nil, fmt.Errorf("%w: source not open", core.ErrSourceUnavailable)
	}
	if ok := v.cap.Read(&v.frame); !ok || v.frame.Empty() {
		return nil, fmt.Errorf("%w: failed to read frame from %s", core.ErrSourceUnavailable, v.descriptor)
	}

	buf, err := gocv.IMEncode(".jpg", v.frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, len(buf.GetBytes()))
	copy(out, buf.GetBytes())
	return out, nil
}

// Close releases the capture handle. Safe to call when Open failed.
func (v *VideoSource) Close() error {
	if v.cap == nil {
		return nil
	}
	v.frame.Close()
	err := v.cap.Close()
	v.cap = nil
	return err
}
