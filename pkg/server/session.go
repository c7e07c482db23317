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

package server

import (
	"encoding/json"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/protocol/frame"
)

// Session is the per-connection state machine: unauthenticated on accept,
// then authenticated, then optionally bound to a device id, then the message
// loop until disconnect.
type Session struct {
	conn      net.Conn
	server    *Server
	assembler *frame.LineAssembler
	logger    logger.Logger

	mu            sync.Mutex
	authenticated bool
	deviceID      string
	messageCount  int
	errorCount    int
	closed        bool

	connectedAt  time.Time
	lastActivity time.Time

	closeOnce sync.Once
}

func newSession(conn net.Conn, srv *Server) *Session {
	now := time.Now()

	return &Session{
		conn:         conn,
		server:       srv,
		assembler:    frame.NewLineAssembler(srv.cfg.maxMessageSize()),
		logger:       srv.logger,
		connectedAt:  now,
		lastActivity: now,
	}
}

// DeviceID returns the bound device id, empty until identification.
func (s *Session) DeviceID() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.deviceID
}

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

// Send writes data to the connection. Safe to call from other goroutines;
// outbound order dispatch and the health monitor use it.
func (s *Session) Send(data string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}

	_, err := s.conn.Write([]byte(data))

	return err
}

// Close tears the session down: unregister if device-bound, close the
// transport. Idempotent; every disconnect path funnels through here.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		deviceID := s.deviceID
		s.mu.Unlock()

		if deviceID != "" {
			s.server.registry.Unregister(deviceID, s)
		}

		_ = s.conn.Close()

		s.logger.Info().
			Str("remote_addr", s.RemoteAddr()).
			Str("device_id", deviceID).
			Msg("Connection closed")
	})

	return nil
}

// run is the connection read loop. It owns the conn for reading; writes go
// through Send.
func (s *Session) run() {
	defer s.Close()

	if err := s.Send("LIS_READY\r\n"); err != nil {
		return
	}

	buf := make([]byte, 4096)

	for {
		idle := s.server.cfg.idleTimeout()
		_ = s.conn.SetReadDeadline(time.Now().Add(idle))

		n, err := s.conn.Read(buf)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.logger.Info().
					Str("remote_addr", s.RemoteAddr()).
					Dur("idle", idle).
					Msg("Connection idle, disconnecting")

				_ = s.Send("TIMEOUT\r\n")
			}

			return
		}

		s.mu.Lock()
		s.lastActivity = time.Now()
		s.mu.Unlock()

		messages, err := s.assembler.Feed(buf[:n])
		if err != nil {
			if s.recordError() {
				return
			}

			continue
		}

		for _, msg := range messages {
			if err := s.handleMessage(msg); err != nil {
				return
			}
		}
	}
}

// handleMessage processes one complete frame. A non-nil return ends the
// connection.
func (s *Session) handleMessage(message string) error {
	s.mu.Lock()
	s.messageCount++
	authenticated := s.authenticated
	s.mu.Unlock()

	s.server.messages.Add(1)

	if strings.HasPrefix(message, "AUTH:") {
		s.handleAuthentication(message)

		return nil
	}

	if strings.HasPrefix(message, "DEVICE_ID:") {
		s.handleDeviceIdentification(message)

		return nil
	}

	if !authenticated {
		_ = s.Send("AUTH_REQUIRED\r\n")

		return nil
	}

	switch Classify(message) {
	case models.KindHL7:
		s.handleHL7(message)
	case models.KindASTM:
		s.handleASTM(message)
	case models.KindJSON:
		s.handleJSON(message)
	case models.KindCommand:
		if err := s.handleCommand(message); err != nil {
			return err
		}
	default:
		s.handleRaw(message)
	}

	s.mu.Lock()
	exceeded := s.errorCount > s.server.cfg.maxErrors()
	s.mu.Unlock()

	if exceeded {
		s.logger.Warn().
			Str("remote_addr", s.RemoteAddr()).
			Int("errors", s.server.cfg.maxErrors()).
			Msg("Error budget exceeded, disconnecting")

		return errTooManyErrors
	}

	return nil
}

func (s *Session) handleAuthentication(message string) {
	token := strings.TrimSpace(strings.SplitN(message, ":", 2)[1])

	if token != "" && token == s.server.cfg.AuthToken {
		s.mu.Lock()
		s.authenticated = true
		s.mu.Unlock()

		_ = s.Send("AUTH_OK\r\n")
		s.logger.Info().Str("remote_addr", s.RemoteAddr()).Msg("Client authenticated")

		return
	}

	_ = s.Send("AUTH_FAILED\r\n")
	s.logger.Warn().Str("remote_addr", s.RemoteAddr()).Msg("Authentication failed")
}

func (s *Session) handleDeviceIdentification(message string) {
	deviceID := strings.TrimSpace(strings.SplitN(message, ":", 2)[1])

	if !s.server.catalog.IsActive(deviceID) {
		_ = s.Send("DEVICE_UNKNOWN\r\n")
		s.logger.Warn().
			Str("remote_addr", s.RemoteAddr()).
			Str("device_id", deviceID).
			Msg("Unknown device id")

		return
	}

	s.mu.Lock()
	s.deviceID = deviceID
	s.mu.Unlock()

	s.server.registry.Register(s)

	_ = s.Send("DEVICE_OK\r\n")
	s.logger.Info().
		Str("remote_addr", s.RemoteAddr()).
		Str("device_id", deviceID).
		Msg("Device identified")
}

func (s *Session) handleHL7(message string) {
	res := s.server.hl7.Process(message)

	if res.Status != "success" {
		s.recordError()
	}

	// Acknowledge before downstream processing; persistence must never
	// stall the wire.
	_ = s.Send(res.Ack)

	if res.Status == "success" {
		s.enqueue(models.KindHL7, message)
	}
}

func (s *Session) handleASTM(message string) {
	res := s.server.astm.Process(message)

	if res.Status != "success" {
		s.recordError()
	}

	_ = s.Send(res.Ack)

	if res.Status == "success" {
		s.enqueue(models.KindASTM, message)
	}
}

func (s *Session) handleJSON(message string) {
	var payload map[string]interface{}

	if err := json.Unmarshal([]byte(message), &payload); err != nil {
		s.recordError()

		reply, _ := json.Marshal(map[string]string{"error": "Invalid JSON"})
		_ = s.Send(string(reply) + "\r\n")

		return
	}

	reply, _ := json.Marshal(map[string]string{
		"status":    "received",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	_ = s.Send(string(reply) + "\r\n")

	s.enqueue(models.KindJSON, message)
}

func (s *Session) handleCommand(message string) error {
	switch strings.ToUpper(strings.TrimSpace(message)) {
	case "PING":
		_ = s.Send("PONG\r\n")
	case "STATUS":
		_ = s.Send(s.statusJSON() + "\r\n")
	case "DISCONNECT":
		_ = s.Send("BYE\r\n")

		return errClientDisconnect
	default:
		_ = s.Send("UNKNOWN_COMMAND: " + strings.ToUpper(strings.TrimSpace(message)) + "\r\n")
	}

	return nil
}

func (s *Session) handleRaw(message string) {
	s.logger.Debug().
		Str("remote_addr", s.RemoteAddr()).
		Int("length", len(message)).
		Msg("Raw message received")

	_ = s.Send("RECEIVED\r\n")

	s.enqueue(models.KindRaw, message)
}

func (s *Session) statusJSON() string {
	s.mu.Lock()
	status := map[string]interface{}{
		"device_id":     s.deviceID,
		"connected_at":  s.connectedAt.UTC().Format(time.RFC3339),
		"message_count": s.messageCount,
		"error_count":   s.errorCount,
		"authenticated": s.authenticated,
	}
	s.mu.Unlock()

	out, _ := json.Marshal(status)

	return string(out)
}

// enqueue hands the message to the router. A full queue costs the device
// the message, not the connection.
func (s *Session) enqueue(kind models.MessageKind, content string) {
	s.mu.Lock()
	deviceID := s.deviceID
	s.mu.Unlock()

	if deviceID == "" {
		host, _, err := net.SplitHostPort(s.RemoteAddr())
		if err != nil {
			host = s.RemoteAddr()
		}

		deviceID = "tcp_" + host
	}

	msg := &models.InboundMessage{
		ID:         uuid.New().String(),
		Kind:       kind,
		Content:    content,
		DeviceID:   deviceID,
		RemoteAddr: s.RemoteAddr(),
		ReceivedAt: time.Now(),
	}

	if err := s.server.router.Publish(msg); err != nil {
		s.logger.Error().
			Err(err).
			Str("device_id", deviceID).
			Msg("Failed to enqueue message")
	}
}

// recordError bumps the error counter and reports whether the budget is
// exhausted.
func (s *Session) recordError() bool {
	s.server.errors.Add(1)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.errorCount++

	return s.errorCount > s.server.cfg.maxErrors()
}

// Classify sniffs a frame's protocol family by prefix.
func Classify(message string) models.MessageKind {
	message = strings.TrimSpace(message)

	if strings.HasPrefix(message, "MSH|") {
		return models.KindHL7
	}

	for _, prefix := range []string{"H|", "P|", "O|", "R|", "L|"} {
		if strings.HasPrefix(message, prefix) {
			return models.KindASTM
		}
	}

	if strings.HasPrefix(message, "{") && strings.HasSuffix(message, "}") {
		return models.KindJSON
	}

	switch strings.ToUpper(message) {
	case "PING", "STATUS", "DISCONNECT":
		return models.KindCommand
	}

	return models.KindRaw
}
