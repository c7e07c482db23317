/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package registry tracks which device session is live for each analyzer.
package registry

import (
	"errors"
	"sync"

	"github.com/rudrakshya/LIS/pkg/logger"
)

// ErrDeviceNotConnected is returned by SendTo when no live session exists
// for the device.
var ErrDeviceNotConnected = errors.New("device not connected")

// Session is the registry's view of a live device connection.
type Session interface {
	DeviceID() string
	RemoteAddr() string
	Send(data string) error
	Close() error
}

// Registry maps device ids to their live session. At most one session per
// device: registering a new session for an id evicts and closes the old one.
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]Session
	logger   logger.Logger
}

// NewRegistry returns an empty Registry.
func NewRegistry(log logger.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]Session),
		logger:   log,
	}
}

// Register installs the session for its device id, closing any prior
// session holding that id.
func (r *Registry) Register(s Session) {
	deviceID := s.DeviceID()

	r.mu.Lock()
	prior := r.sessions[deviceID]
	r.sessions[deviceID] = s
	r.mu.Unlock()

	if prior != nil && prior != s {
		r.logger.Info().
			Str("device_id", deviceID).
			Str("remote_addr", prior.RemoteAddr()).
			Msg("Evicting prior session for device")

		_ = prior.Close()
	}

	r.logger.Info().
		Str("device_id", deviceID).
		Str("remote_addr", s.RemoteAddr()).
		Msg("Device session registered")
}

// Unregister removes the session for the device id, but only when the
// registered session is the one given. A session racing its own eviction
// must not remove its replacement.
func (r *Registry) Unregister(deviceID string, s Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[deviceID]; ok && current == s {
		delete(r.sessions, deviceID)

		r.logger.Info().Str("device_id", deviceID).Msg("Device session unregistered")
	}
}

// Get returns the live session for the device id.
func (r *Registry) Get(deviceID string) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[deviceID]

	return s, ok
}

// SendTo routes data to the named device's live session.
func (r *Registry) SendTo(deviceID, data string) error {
	s, ok := r.Get(deviceID)
	if !ok {
		return ErrDeviceNotConnected
	}

	return s.Send(data)
}

// List returns the device ids with a live session.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}

	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.sessions)
}

// CloseAll closes every live session and empties the registry. Used during
// shutdown after the listener has stopped accepting.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := make([]Session, 0, len(r.sessions))

	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}

	r.sessions = make(map[string]Session)
	r.mu.Unlock()

	for _, s := range sessions {
		_ = s.Close()
	}
}
