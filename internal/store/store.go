// Package store holds all per-tenant state: user profiles, camera sets,
// detection settings, auth-code bindings and the captured-image index.
// Every mutation is written through the injected Persister before the
// caller sees success, so observed success implies durability.
package store

import (
	"fmt"
	"sync"

	"camwatch/internal/core"
)

// Store is the tenant state store. A single RWMutex serializes access from
// the workers and the request-handling goroutines; the "new images" queue
// is transient and never persisted.
type Store struct {
	mu        sync.RWMutex
	state     State
	newImages map[string]ImageIndex
	persist   Persister
}

// NewStore builds a Store backed by the given Persister and restores any
// previously saved state.
func NewStore(p Persister) (*Store, error) {
	state, err := p.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load state: %w", err)
	}
	for name, u := range state.Users {
		u.Username = name
		if u.Cameras == nil {
			u.Cameras = make(map[string]string)
		}
		if u.DetectionSettings == nil {
			u.DetectionSettings = make(map[string]DetectionSetting)
		}
		if u.AuthCodes == nil {
			u.AuthCodes = make(map[string]ChatBinding)
		}
		state.Users[name] = u
	}
	return &Store{
		state:     state,
		newImages: make(map[string]ImageIndex),
		persist:   p,
	}, nil
}

// update applies fn to the state and persists the result. If persistence
// fails the mutation is rolled back and ErrPersistence is returned, so
// in-memory and on-disk state never diverge after a reported success.
func (s *Store) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backup := s.snapshotLocked()
	if err := fn(&s.state); err != nil {
		return err
	}
	if err := s.persist.Save(s.snapshotLocked()); err != nil {
		s.state = backup
		return fmt.Errorf("%w: %v", core.ErrPersistence, err)
	}
	return nil
}

// snapshotLocked deep-copies the durable state. Callers must hold s.mu.
func (s *Store) snapshotLocked() State {
	out := State{
		Users:          make(map[string]User, len(s.state.Users)),
		CapturedImages: make(map[string]ImageIndex, len(s.state.CapturedImages)),
	}
	for name, u := range s.state.Users {
		out.Users[name] = copyUser(u)
	}
	for name, idx := range s.state.CapturedImages {
		out.CapturedImages[name] = copyIndex(idx)
	}
	return out
}

// CreateUser registers a new user with an already hashed password.
func (s *Store) CreateUser(username, passwordHash string, role Role) error {
	return s.update(func(st *State) error {
		if _, ok := st.Users[username]; ok {
			return fmt.Errorf("user %s: %w", username, core.ErrExists)
		}
		st.Users[username] = newUser(username, passwordHash, role)
		return nil
	})
}

// User returns a copy of the profile for username.
func (s *Store) User(username string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.Users[username]
	if !ok {
		return User{}, fmt.Errorf("user %s: %w", username, core.ErrNotFound)
	}
	return copyUser(u), nil
}

// Users returns copies of all profiles, keyed by username.
func (s *Store) Users() map[string]User {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]User, len(s.state.Users))
	for name, u := range s.state.Users {
		out[name] = copyUser(u)
	}
	return out
}

// Role reports the role of username.
func (s *Store) Role(username string) (Role, error) {
	u, err := s.User(username)
	if err != nil {
		return "", err
	}
	return u.Role, nil
}

// UpdateUser overwrites the mutable profile fields set in the argument
// maps; nil maps and an empty role leave the current values in place.
func (s *Store) UpdateUser(username string, cameras map[string]string, settings map[string]DetectionSetting, role Role) error {
	return s.update(func(st *State) error {
		u, ok := st.Users[username]
		if !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		if cameras != nil {
			u.Cameras = cameras
		}
		if settings != nil {
			u.DetectionSettings = settings
		}
		if role != "" {
			u.Role = role
		}
		st.Users[username] = u
		return nil
	})
}

// DeleteUser removes the user and all owned images from the index. It
// returns the paths of the removed image files so the caller can delete
// them from disk.
func (s *Store) DeleteUser(username string) ([]string, error) {
	var paths []string
	err := s.update(func(st *State) error {
		if _, ok := st.Users[username]; !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		for _, images := range st.CapturedImages[username] {
			for path := range images {
				paths = append(paths, path)
			}
		}
		delete(st.Users, username)
		delete(st.CapturedImages, username)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	delete(s.newImages, username)
	s.mu.Unlock()
	return paths, nil
}

// AddCamera registers or replaces a camera source for username.
func (s *Store) AddCamera(username, name, source string) error {
	return s.update(func(st *State) error {
		u, ok := st.Users[username]
		if !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		u.Cameras[name] = source
		return nil
	})
}

// RemoveCamera deletes a camera from username's set.
func (s *Store) RemoveCamera(username, name string) error {
	return s.update(func(st *State) error {
		u, ok := st.Users[username]
		if !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		if _, ok := u.Cameras[name]; !ok {
			return fmt.Errorf("camera %s: %w", name, core.ErrNotFound)
		}
		delete(u.Cameras, name)
		return nil
	})
}

// Cameras returns a copy of username's camera map.
func (s *Store) Cameras(username string) (map[string]string, error) {
	u, err := s.User(username)
	if err != nil {
		return nil, err
	}
	return u.Cameras, nil
}

// UpdateDetectionSettings replaces the per-class detection settings.
func (s *Store) UpdateDetectionSettings(username string, settings map[string]DetectionSetting) error {
	return s.update(func(st *State) error {
		u, ok := st.Users[username]
		if !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		u.DetectionSettings = settings
		st.Users[username] = u
		return nil
	})
}

// DetectionSettings returns a copy of username's per-class settings.
func (s *Store) DetectionSettings(username string) (map[string]DetectionSetting, error) {
	u, err := s.User(username)
	if err != nil {
		return nil, err
	}
	return u.DetectionSettings, nil
}

// BindAuthCode attaches a notification auth code to the account. Only one
// code may exist per account; the existing one is returned with ErrExists.
func (s *Store) BindAuthCode(username, code string) (string, error) {
	var existing string
	err := s.update(func(st *State) error {
		u, ok := st.Users[username]
		if !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		for c := range u.AuthCodes {
			existing = c
			return fmt.Errorf("auth code: %w", core.ErrExists)
		}
		u.AuthCodes[code] = ChatBinding{Username: username}
		return nil
	})
	if err != nil {
		return existing, err
	}
	return code, nil
}

// LinkChat completes the relay handshake: it finds the user owning the
// code and binds the chat target to it.
func (s *Store) LinkChat(code, chatID string) (string, error) {
	var username string
	err := s.update(func(st *State) error {
		for name, u := range st.Users {
			if binding, ok := u.AuthCodes[code]; ok {
				binding.ChatID = chatID
				u.AuthCodes[code] = binding
				username = name
				return nil
			}
		}
		return fmt.Errorf("auth code %s: %w", code, core.ErrNotFound)
	})
	if err != nil {
		return "", err
	}
	return username, nil
}

// ChatTargets returns the bound, non-empty chat targets of username.
func (s *Store) ChatTargets(username string) []ChatTarget {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.state.Users[username]
	if !ok {
		return nil
	}
	var targets []ChatTarget
	for code, binding := range u.AuthCodes {
		if binding.ChatID != "" {
			targets = append(targets, ChatTarget{Code: code, ChatID: binding.ChatID})
		}
	}
	return targets
}

// RecordImage adds a captured image to the durable index and to the
// transient "new since last poll" queue.
func (s *Store) RecordImage(username, camera, path, timestamp string) error {
	err := s.update(func(st *State) error {
		if _, ok := st.Users[username]; !ok {
			return fmt.Errorf("user %s: %w", username, core.ErrNotFound)
		}
		idx := st.CapturedImages[username]
		if idx == nil {
			idx = make(ImageIndex)
			st.CapturedImages[username] = idx
		}
		if idx[camera] == nil {
			idx[camera] = make(map[string]string)
		}
		idx[camera][path] = timestamp
		return nil
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.newImages[username]
	if idx == nil {
		idx = make(ImageIndex)
		s.newImages[username] = idx
	}
	if idx[camera] == nil {
		idx[camera] = make(map[string]string)
	}
	idx[camera][path] = timestamp
	return nil
}

// Images returns a copy of username's captured-image index.
func (s *Store) Images(username string) (ImageIndex, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.state.Users[username]; !ok {
		return nil, fmt.Errorf("user %s: %w", username, core.ErrNotFound)
	}
	idx, ok := s.state.CapturedImages[username]
	if !ok {
		return make(ImageIndex), nil
	}
	return copyIndex(idx), nil
}

// DrainNewImages returns the images captured since the last poll and
// clears the queue.
func (s *Store) DrainNewImages(username string) ImageIndex {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.newImages[username]
	if !ok {
		return make(ImageIndex)
	}
	delete(s.newImages, username)
	return idx
}

// DeleteImage removes one image from the durable index and the new queue.
func (s *Store) DeleteImage(username, path string) error {
	err := s.update(func(st *State) error {
		for _, images := range st.CapturedImages[username] {
			if _, ok := images[path]; ok {
				delete(images, path)
				return nil
			}
		}
		return fmt.Errorf("image %s: %w", path, core.ErrNotFound)
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, images := range s.newImages[username] {
		delete(images, path)
	}
	return nil
}
