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

// Package server accepts TCP connections from laboratory analyzers and runs
// one Session per connection.
package server

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rudrakshya/LIS/pkg/catalog"
	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/protocol/astm"
	"github.com/rudrakshya/LIS/pkg/protocol/hl7"
	"github.com/rudrakshya/LIS/pkg/registry"
	"github.com/rudrakshya/LIS/pkg/router"
)

const (
	defaultIdleTimeout    = 5 * time.Minute
	defaultMaxErrors      = 5
	defaultMaxMessageSize = 1 << 20
)

// Config holds the TCP listener settings.
type Config struct {
	ListenAddr     string          `json:"listen_addr"`
	AuthToken      string          `json:"auth_token"`
	IdleTimeout    models.Duration `json:"idle_timeout,omitempty"`
	MaxErrors      int             `json:"max_errors,omitempty"`
	MaxMessageSize int             `json:"max_message_size,omitempty"`
}

// Validate implements config validation.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return errMissingListenAddr
	}

	return nil
}

func (c *Config) idleTimeout() time.Duration {
	if c.IdleTimeout <= 0 {
		return defaultIdleTimeout
	}

	return time.Duration(c.IdleTimeout)
}

func (c *Config) maxErrors() int {
	if c.MaxErrors <= 0 {
		return defaultMaxErrors
	}

	return c.MaxErrors
}

func (c *Config) maxMessageSize() int {
	if c.MaxMessageSize <= 0 {
		return defaultMaxMessageSize
	}

	return c.MaxMessageSize
}

// Server owns the listener and the live sessions.
type Server struct {
	cfg      *Config
	registry *registry.Registry
	catalog  catalog.Catalog
	router   *router.Router
	hl7      *hl7.Codec
	astm     *astm.Codec
	logger   logger.Logger

	listener net.Listener

	mu       sync.Mutex
	sessions map[*Session]struct{}

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	accepted atomic.Uint64
	messages atomic.Uint64
	errors   atomic.Uint64
}

// Stats is a point-in-time snapshot of server activity. Accepted counts
// every connection ever taken from the listener; Messages and Errors
// aggregate across all sessions, live and closed.
type Stats struct {
	ActiveSessions int    `json:"active_sessions"`
	Accepted       uint64 `json:"accepted_connections"`
	Messages       uint64 `json:"messages_handled"`
	Errors         uint64 `json:"protocol_errors"`
}

// NewServer wires a Server. The router must be started separately.
func NewServer(cfg *Config, reg *registry.Registry, cat catalog.Catalog, rt *router.Router, log logger.Logger) *Server {
	return &Server{
		cfg:      cfg,
		registry: reg,
		catalog:  cat,
		router:   rt,
		hl7:      hl7.NewCodec(),
		astm:     astm.NewCodec(),
		logger:   log,
		sessions: make(map[*Session]struct{}),
		done:     make(chan struct{}),
	}
}

// Start binds the listener and launches the accept loop.
func (s *Server) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.ListenAddr, err)
	}

	s.listener = ln

	s.wg.Add(1)

	go s.acceptLoop()

	s.logger.Info().Str("listen_addr", ln.Addr().String()).Msg("TCP server started")

	return nil
}

// Addr returns the bound listener address, useful when ListenAddr requested
// an ephemeral port.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}

	return s.listener.Addr().String()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}

			s.logger.Error().Err(err).Msg("Accept failed")

			continue
		}

		sess := newSession(conn, s)
		s.accepted.Add(1)

		s.mu.Lock()
		s.sessions[sess] = struct{}{}
		s.mu.Unlock()

		s.logger.Info().Str("remote_addr", sess.RemoteAddr()).Msg("Connection accepted")

		s.wg.Add(1)

		go func() {
			defer s.wg.Done()
			defer s.dropSession(sess)

			sess.run()
		}()
	}
}

func (s *Server) dropSession(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
}

// Stop closes the listener, then every live session, and waits for all
// connection goroutines to finish.
func (s *Server) Stop(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.done)

		if s.listener != nil {
			_ = s.listener.Close()
		}

		s.mu.Lock()
		sessions := make([]*Session, 0, len(s.sessions))

		for sess := range s.sessions {
			sessions = append(sessions, sess)
		}
		s.mu.Unlock()

		for _, sess := range sessions {
			_ = sess.Close()
		}
	})

	s.wg.Wait()

	s.logger.Info().Msg("TCP server stopped")

	return nil
}

// SessionCount returns the number of live connections.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.sessions)
}

// Stats returns a snapshot of server counters.
func (s *Server) Stats() Stats {
	return Stats{
		ActiveSessions: s.SessionCount(),
		Accepted:       s.accepted.Load(),
		Messages:       s.messages.Load(),
		Errors:         s.errors.Load(),
	}
}
