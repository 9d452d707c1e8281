// Package worker runs the per-(user, camera) frame processing loops and
// the supervisor that converges them to the desired camera sets.
package worker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"camwatch/internal/capture"
	"camwatch/internal/core"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/notify"
	"camwatch/internal/store"
)

// Status is the lifecycle state of one worker.
type Status int32

const (
	StatusOpening Status = iota
	StatusRetrying
	StatusRunning
	StatusStopped
)

func (s Status) String() string {
	switch s {
	case StatusOpening:
		return "opening"
	case StatusRetrying:
		return "retrying"
	case StatusRunning:
		return "running"
	case StatusStopped:
		return "stopped"
	}
	return "unknown"
}

// confidenceFloor is the minimum confidence (exclusive) for a detection
// to count.
const confidenceFloor = 0.5

// Tunables are the timing knobs of a worker. Production values come from
// the config; tests shrink them.
type Tunables struct {
	OpenAttempts     int
	OpenRetryDelay   time.Duration
	ThrottleInterval time.Duration
	FrameInterval    time.Duration
}

func DefaultTunables() Tunables {
	return Tunables{
		OpenAttempts:     3,
		OpenRetryDelay:   5 * time.Second,
		ThrottleInterval: 5 * time.Second,
		FrameInterval:    33 * time.Millisecond,
	}
}

// TenantState is the slice of the tenant store a worker and its
// supervisor need.
type TenantState interface {
	Cameras(username string) (map[string]string, error)
	DetectionSettings(username string) (map[string]store.DetectionSetting, error)
	ChatTargets(username string) []store.ChatTarget
	RecordImage(username, camera, path, timestamp string) error
}

// SnapshotWriter persists one qualifying frame and reports its path and
// recorded timestamp.
type SnapshotWriter interface {
	Save(username, camera string, frame []byte) (string, string, error)
}

// Worker owns one capture source and runs the detect, filter, throttle,
// persist, notify cycle until its camera is removed or the source becomes
// permanently unavailable.
type Worker struct {
	username string
	camera   string

	source     capture.Source
	detector   detect.Detector
	dispatcher notify.Dispatcher
	state      TenantState
	snapshots  SnapshotWriter
	publish    func(frame []byte)
	logger     *logger.Logger
	tun        Tunables

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	status atomic.Int32

	lastSnapshot time.Time
	onExit       func(w *Worker, failed bool)
}

func newWorker(username, camera string, source capture.Source, detector detect.Detector, deps Deps, onExit func(*Worker, bool)) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		username:   username,
		camera:     camera,
		source:     source,
		detector:   detector,
		dispatcher: deps.Dispatcher,
		state:      deps.State,
		snapshots:  deps.Snapshots,
		publish:    deps.publishFunc(username, camera),
		logger:     deps.Logger,
		tun:        deps.Tunables,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// Stop requests a cooperative shutdown. The loop observes the cancel at
// the top of its next iteration; a worker blocked in a slow read may take
// up to one read timeout to actually exit.
func (w *Worker) Stop() {
	w.cancel()
}

// Done is closed once the worker has fully exited and released its source.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Status reports the current lifecycle state.
func (w *Worker) Status() Status {
	return Status(w.status.Load())
}

func (w *Worker) setStatus(s Status) {
	w.status.Store(int32(s))
}

func (w *Worker) run() {
	failed := false
	defer func() {
		w.source.Close()
		w.setStatus(StatusStopped)
		if w.onExit != nil {
			w.onExit(w, failed)
		}
		w.logger.Info("Camera %s/%s: worker stopped", w.username, w.camera)
		close(w.done)
	}()

	if err := w.open(); err != nil {
		if !errors.Is(err, context.Canceled) {
			failed = true
			w.logger.Error("Camera %s/%s: %v", w.username, w.camera, err)
		}
		return
	}

	w.setStatus(StatusRunning)
	w.logger.Info("Camera %s/%s: processing started", w.username, w.camera)

	for {
		select {
		case <-w.ctx.Done():
			return
		default:
		}

		frame, err := w.source.Read()
		if err != nil {
			// A read error during a requested stop is not a source failure.
			if w.ctx.Err() == nil {
				failed = true
				w.logger.Error("Camera %s/%s: %v", w.username, w.camera, err)
			}
			return
		}

		if w.publish != nil {
			w.publish(frame)
		}

		w.processFrame(frame)

		select {
		case <-time.After(w.tun.FrameInterval):
		case <-w.ctx.Done():
			return
		}
	}
}

// open attempts to open the capture source with bounded retry.
func (w *Worker) open() error {
	for attempt := 1; attempt <= w.tun.OpenAttempts; attempt++ {
		if w.ctx.Err() != nil {
			return context.Canceled
		}

		w.setStatus(StatusOpening)
		err := w.source.Open()
		if err == nil {
			w.logger.Info("Camera %s/%s opened on attempt %d", w.username, w.camera, attempt)
			return nil
		}
		w.logger.Warning("Camera %s/%s: open attempt %d/%d failed: %v", w.username, w.camera, attempt, w.tun.OpenAttempts, err)

		if attempt < w.tun.OpenAttempts {
			w.setStatus(StatusRetrying)
			select {
			case <-time.After(w.tun.OpenRetryDelay):
			case <-w.ctx.Done():
				return context.Canceled
			}
		}
	}
	return fmt.Errorf("%w: giving up after %d attempts", core.ErrSourceUnavailable, w.tun.OpenAttempts)
}

// processFrame runs detection on one frame and, when a qualifying
// detection passes the throttle, persists a snapshot and fans out
// notifications.
func (w *Worker) processFrame(frame []byte) {
	detections, err := w.detector.Detect(frame)
	if err != nil {
		w.logger.Error("Camera %s/%s: detection failed: %v", w.username, w.camera, err)
		return
	}

	settings, err := w.state.DetectionSettings(w.username)
	if err != nil {
		// User removed mid-run; the next reconcile stops this worker.
		w.logger.Warning("Camera %s/%s: %v", w.username, w.camera, err)
		return
	}

	detected := make(map[int]bool)
	for _, d := range detections {
		if d.Confidence <= confidenceFloor {
			continue
		}
		s, ok := settings[strconv.Itoa(d.ClassID)]
		if !ok || !s.Detect {
			continue
		}
		detected[d.ClassID] = true
	}

	if len(detected) == 0 {
		return
	}
	if !w.lastSnapshot.IsZero() && time.Since(w.lastSnapshot) < w.tun.ThrottleInterval {
		return
	}

	path, timestamp, err := w.snapshots.Save(w.username, w.camera, frame)
	if err != nil {
		w.logger.Error("Camera %s/%s: %v", w.username, w.camera, err)
		return
	}
	if err := w.state.RecordImage(w.username, w.camera, path, timestamp); err != nil {
		w.logger.Error("Camera %s/%s: failed to index snapshot: %v", w.username, w.camera, err)
		return
	}
	w.lastSnapshot = time.Now()
	w.logger.Info("Camera %s/%s: saved snapshot %s", w.username, w.camera, path)

	w.notifyTargets(detected, settings, path, timestamp)
}

// notifyTargets sends one notification per detected notify-enabled class
// and bound chat target. Delivery failures are logged and swallowed.
func (w *Worker) notifyTargets(detected map[int]bool, settings map[string]store.DetectionSetting, path, timestamp string) {
	targets := w.state.ChatTargets(w.username)
	if len(targets) == 0 {
		return
	}

	for classID := range detected {
		if s := settings[strconv.Itoa(classID)]; !s.Notify {
			continue
		}
		caption := fmt.Sprintf("Object detected: %s\nCamera: %s\nDate and time: %s", detect.Label(classID), w.camera, timestamp)
		for _, target := range targets {
			if err := w.dispatcher.Notify(w.ctx, target, path, caption); err != nil {
				w.logger.Warning("Camera %s/%s: %v", w.username, w.camera, err)
			}
		}
	}
}
