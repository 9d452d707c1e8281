package worker

import (
	"sync"

	"camwatch/internal/capture"
	"camwatch/internal/detect"
	"camwatch/internal/logger"
	"camwatch/internal/notify"
	"camwatch/internal/ws"
)

// FramePublisher receives live frames for viewer fan-out; satisfied by
// the websocket hub. Optional.
type FramePublisher interface {
	Broadcast(topic string, frame []byte)
}

// Deps bundles everything workers need. Sources and Detectors are
// factories because each worker exclusively owns its capture handle and
// detection network.
type Deps struct {
	State      TenantState
	Sources    capture.Factory
	Detectors  detect.Factory
	Dispatcher notify.Dispatcher
	Snapshots  SnapshotWriter
	Publisher  FramePublisher
	Logger     *logger.Logger
	Tunables   Tunables
}

func (d Deps) publishFunc(username, camera string) func([]byte) {
	if d.Publisher == nil {
		return nil
	}
	topic := ws.Topic(username, camera)
	return func(frame []byte) {
		d.Publisher.Broadcast(topic, frame)
	}
}

// Supervisor reconciles the desired camera set of each user against the
// set of running workers. At most one worker exists per (user, camera)
// pair at any instant.
type Supervisor struct {
	mu      sync.Mutex
	running map[string]map[string]*Worker
	failed  map[string]map[string]bool
	deps    Deps
}

func NewSupervisor(deps Deps) *Supervisor {
	return &Supervisor{
		running: make(map[string]map[string]*Worker),
		failed:  make(map[string]map[string]bool),
		deps:    deps,
	}
}

// Reconcile converges the running workers of username to the camera set
// in the tenant store. It is idempotent and safe to invoke repeatedly and
// concurrently. Cameras whose worker previously exited on a permanent
// source failure are skipped until ClearFailure is called for them by an
// explicit user action.
func (s *Supervisor) Reconcile(username string) {
	desired, err := s.deps.State.Cameras(username)
	if err != nil {
		s.StopAll(username)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	running := s.running[username]
	for name, w := range running {
		if _, ok := desired[name]; !ok {
			w.Stop()
			delete(running, name)
			delete(s.failed[username], name)
			s.deps.Logger.Info("Camera %s/%s removed, worker stopping", username, name)
		}
	}

	for name, descriptor := range desired {
		if _, ok := running[name]; ok {
			continue
		}
		if s.failed[username][name] {
			continue
		}
		s.spawnLocked(username, name, descriptor)
	}
}

// spawnLocked starts a worker for one camera. Caller holds s.mu.
func (s *Supervisor) spawnLocked(username, camera, descriptor string) {
	detector, err := s.deps.Detectors()
	if err != nil {
		s.deps.Logger.Error("Camera %s/%s: failed to create detector: %v", username, camera, err)
		return
	}

	source := s.deps.Sources(descriptor)
	w := newWorker(username, camera, source, detector, s.deps, s.workerExited)

	if s.running[username] == nil {
		s.running[username] = make(map[string]*Worker)
	}
	s.running[username][camera] = w

	go w.run()
	s.deps.Logger.Info("Camera %s/%s: worker started", username, camera)
}

// workerExited removes the bookkeeping entry of a worker that stopped on
// its own and records a failure mark when the source failed permanently.
func (s *Supervisor) workerExited(w *Worker, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.running[w.username][w.camera]; cur == w {
		delete(s.running[w.username], w.camera)
	}
	if failed {
		if s.failed[w.username] == nil {
			s.failed[w.username] = make(map[string]bool)
		}
		s.failed[w.username][w.camera] = true
	}
}

// ClearFailure removes the permanent-failure mark for one camera so the
// next reconcile may respawn it. Invoked when the user adds or updates
// the camera.
func (s *Supervisor) ClearFailure(username, camera string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.failed[username], camera)
}

// StopAll stops every worker of username and clears the failure marks.
// The stop is cooperative; workers drain on their own.
func (s *Supervisor) StopAll(username string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, w := range s.running[username] {
		w.Stop()
	}
	delete(s.running, username)
	delete(s.failed, username)
}

// Running reports the camera names with a live worker for username.
func (s *Supervisor) Running(username string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for name := range s.running[username] {
		names = append(names, name)
	}
	return names
}

// WorkerStatus reports the state of one worker, if it exists.
func (s *Supervisor) WorkerStatus(username, camera string) (Status, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.running[username][camera]
	if !ok {
		return StatusStopped, false
	}
	return w.Status(), true
}

// Shutdown stops every worker and waits for all of them to release their
// resources.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	var done []<-chan struct{}
	for username, workers := range s.running {
		for _, w := range workers {
			w.Stop()
			done = append(done, w.Done())
		}
		delete(s.running, username)
		delete(s.failed, username)
	}
	s.mu.Unlock()

	for _, ch := range done {
		<-ch
	}
}
