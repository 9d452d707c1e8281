package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"camwatch/internal/capture"
	"camwatch/internal/config"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSource replays queued frames and then repeats an idle frame the
// detector never matches, so the loop keeps spinning until stopped.
type fakeSource struct {
	mu        sync.Mutex
	failOpens int
	openCalls int
	closed    bool
	queue     [][]byte
	readErr   error
}

func (s *fakeSource) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openCalls++
	if s.openCalls <= s.failOpens {
		return errors.New("no signal")
	}
	return nil
}

func (s *fakeSource) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, s.readErr
	}
	if len(s.queue) > 0 {
		frame := s.queue[0]
		s.queue = s.queue[1:]
		return frame, nil
	}
	return []byte("idle"), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSource) opens() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openCalls
}

// fakeDetector maps frame bytes to canned detections.
type fakeDetector struct {
	byFrame map[string][]detect.Detection
}

func (d *fakeDetector) Detect(frame []byte) ([]detect.Detection, error) {
	return d.byFrame[string(frame)], nil
}

type fakeState struct {
	mu       sync.Mutex
	cameras  map[string]string
	settings map[string]store.DetectionSetting
	targets  []store.ChatTarget
	err      error

	recordErr error
	recorded  []string
}

func (f *fakeState) Cameras(username string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]string, len(f.cameras))
	for k, v := range f.cameras {
		out[k] = v
	}
	return out, nil
}

func (f *fakeState) DetectionSettings(username string) (map[string]store.DetectionSetting, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.settings, nil
}

func (f *fakeState) ChatTargets(username string) []store.ChatTarget {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.targets
}

func (f *fakeState) RecordImage(username, camera, path, timestamp string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, path)
	return nil
}

func (f *fakeState) recordedPaths() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.recorded...)
}

type fakeSnapshots struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (f *fakeSnapshots) Save(username, camera string, frame []byte) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", "", f.err
	}
	f.saves++
	return fmt.Sprintf("captures/%s/%s/%d.jpg", username, camera, f.saves), "2026-01-02_10-00-00", nil
}

func (f *fakeSnapshots) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves
}

type dispatchCall struct {
	target  store.ChatTarget
	path    string
	caption string
}

type fakeDispatcher struct {
	mu    sync.Mutex
	calls []dispatchCall
	err   error
}

func (f *fakeDispatcher) Notify(ctx context.Context, target store.ChatTarget, imagePath, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, dispatchCall{target: target, path: imagePath, caption: caption})
	return f.err
}

func (f *fakeDispatcher) sent() []dispatchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]dispatchCall(nil), f.calls...)
}

func testTunables() Tunables {
	return Tunables{
		OpenAttempts:     3,
		OpenRetryDelay:   time.Millisecond,
		ThrottleInterval: time.Hour,
		FrameInterval:    time.Millisecond,
	}
}

func workerLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
}

func personFrame() []byte { return []byte("person-frame") }

func personDetector(confidence float64) *fakeDetector {
	return &fakeDetector{byFrame: map[string][]detect.Detection{
		"person-frame": {{ClassID: 0, Confidence: confidence}},
	}}
}

func testDeps(t *testing.T, state *fakeState, snaps *fakeSnapshots, disp *fakeDispatcher) Deps {
	t.Helper()
	return Deps{
		State:      state,
		Dispatcher: disp,
		Snapshots:  snaps,
		Logger:     workerLogger(t),
		Tunables:   testTunables(),
	}
}

func startWorker(t *testing.T, deps Deps, src capture.Source, det detect.Detector) *Worker {
	t.Helper()
	w := newWorker("alice", "front", src, det, deps, nil)
	go w.run()
	t.Cleanup(func() {
		w.Stop()
		<-w.Done()
	})
	return w
}

func TestWorkerSnapshotAndNotify(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: true, Notify: true}},
		targets:  []store.ChatTarget{{Code: "code-1", ChatID: "chat-42"}},
	}
	snaps := &fakeSnapshots{}
	disp := &fakeDispatcher{}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	startWorker(t, testDeps(t, state, snaps, disp), src, personDetector(0.9))

	require.Eventually(t, func() bool { return len(disp.sent()) == 1 }, time.Second, time.Millisecond)

	call := disp.sent()[0]
	assert.Equal(t, "chat-42", call.target.ChatID)
	assert.Equal(t, "captures/alice/front/1.jpg", call.path)
	assert.Contains(t, call.caption, "Object detected: person")
	assert.Contains(t, call.caption, "Camera: front")
	assert.Equal(t, []string{"captures/alice/front/1.jpg"}, state.recordedPaths())
}

func TestWorkerThrottlesSnapshots(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: true, Notify: false}},
	}
	snaps := &fakeSnapshots{}
	src := &fakeSource{queue: [][]byte{personFrame(), personFrame(), personFrame()}}

	startWorker(t, testDeps(t, state, snaps, &fakeDispatcher{}), src, personDetector(0.9))

	require.Eventually(t, func() bool { return snaps.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, snaps.count())
}

func TestWorkerIgnoresDisabledClass(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: false, Notify: true}},
	}
	snaps := &fakeSnapshots{}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	w := startWorker(t, testDeps(t, state, snaps, &fakeDispatcher{}), src, personDetector(0.9))

	require.Eventually(t, func() bool { return w.Status() == StatusRunning }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, snaps.count())
}

func TestWorkerIgnoresLowConfidence(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: true, Notify: true}},
	}
	snaps := &fakeSnapshots{}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	// Exactly at the floor does not qualify.
	w := startWorker(t, testDeps(t, state, snaps, &fakeDispatcher{}), src, personDetector(0.5))

	require.Eventually(t, func() bool { return w.Status() == StatusRunning }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, snaps.count())
}

func TestWorkerSnapshotsWithoutNotifyFlag(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: true, Notify: false}},
		targets:  []store.ChatTarget{{Code: "code-1", ChatID: "chat-42"}},
	}
	snaps := &fakeSnapshots{}
	disp := &fakeDispatcher{}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	startWorker(t, testDeps(t, state, snaps, disp), src, personDetector(0.9))

	require.Eventually(t, func() bool { return snaps.count() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, disp.sent())
}

func TestWorkerSurvivesNotifyFailure(t *testing.T) {
	state := &fakeState{
		settings: map[string]store.DetectionSetting{"0": {Detect: true, Notify: true}},
		targets:  []store.ChatTarget{{Code: "code-1", ChatID: "chat-42"}},
	}
	disp := &fakeDispatcher{err: errors.New("relay down")}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	w := startWorker(t, testDeps(t, state, &fakeSnapshots{}, disp), src, personDetector(0.9))

	require.Eventually(t, func() bool { return len(disp.sent()) == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, StatusRunning, w.Status())
}

func TestWorkerSkipsNotifyWhenIndexingFails(t *testing.T) {
	state := &fakeState{
		settings:  map[string]store.DetectionSetting{"0": {Detect: true, Notify: true}},
		targets:   []store.ChatTarget{{Code: "code-1", ChatID: "chat-42"}},
		recordErr: errors.New("disk full"),
	}
	snaps := &fakeSnapshots{}
	disp := &fakeDispatcher{}
	src := &fakeSource{queue: [][]byte{personFrame()}}

	w := startWorker(t, testDeps(t, state, snaps, disp), src, personDetector(0.9))

	require.Eventually(t, func() bool { return snaps.count() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, disp.sent())
	assert.Equal(t, StatusRunning, w.Status())
}

func TestWorkerGivesUpAfterOpenAttempts(t *testing.T) {
	var exitMu sync.Mutex
	var exitFailed *bool

	src := &fakeSource{failOpens: 10}
	deps := testDeps(t, &fakeState{}, &fakeSnapshots{}, &fakeDispatcher{})

	w := newWorker("alice", "front", src, &fakeDetector{}, deps, func(_ *Worker, failed bool) {
		exitMu.Lock()
		defer exitMu.Unlock()
		exitFailed = &failed
	})
	go w.run()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not give up")
	}

	assert.Equal(t, StatusStopped, w.Status())
	assert.Equal(t, 3, src.opens())
	assert.True(t, src.isClosed())

	exitMu.Lock()
	defer exitMu.Unlock()
	require.NotNil(t, exitFailed)
	assert.True(t, *exitFailed)
}

func TestWorkerStopDuringOpenRetry(t *testing.T) {
	var exitMu sync.Mutex
	var exitFailed *bool

	src := &fakeSource{failOpens: 10}
	deps := testDeps(t, &fakeState{}, &fakeSnapshots{}, &fakeDispatcher{})
	deps.Tunables.OpenRetryDelay = time.Minute

	w := newWorker("alice", "front", src, &fakeDetector{}, deps, func(_ *Worker, failed bool) {
		exitMu.Lock()
		defer exitMu.Unlock()
		exitFailed = &failed
	})
	go w.run()

	require.Eventually(t, func() bool { return src.opens() >= 1 }, time.Second, time.Millisecond)
	w.Stop()

	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop during retry wait")
	}

	exitMu.Lock()
	defer exitMu.Unlock()
	require.NotNil(t, exitFailed)
	assert.False(t, *exitFailed)
}

func TestWorkerStopReleasesSource(t *testing.T) {
	src := &fakeSource{}
	deps := testDeps(t, &fakeState{settings: map[string]store.DetectionSetting{}}, &fakeSnapshots{}, &fakeDispatcher{})

	w := newWorker("alice", "front", src, &fakeDetector{}, deps, nil)
	go w.run()

	require.Eventually(t, func() bool { return w.Status() == StatusRunning }, time.Second, time.Millisecond)
	w.Stop()
	<-w.Done()

	assert.True(t, src.isClosed())
	assert.Equal(t, StatusStopped, w.Status())
}
