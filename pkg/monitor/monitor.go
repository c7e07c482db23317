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

// Package monitor keeps analyzer connectivity healthy: outbound connectors
// are dialed and pinged on an interval, and inbound sessions that stop
// answering are demoted.
package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/registry"
)

const defaultInterval = 30 * time.Second

// Target is one outbound analyzer connection under supervision. The device
// package's Connector satisfies it.
type Target interface {
	Connect() error
	Ping() error
	Close() error
	Status() models.ConnectionStatus
	Equipment() *models.Equipment
}

// SessionPinger probes inbound device sessions. The session registry
// satisfies it.
type SessionPinger interface {
	List() []string
	SendTo(deviceID, data string) error
	Get(deviceID string) (registry.Session, bool)
}

// Stats is a snapshot of monitor counters.
type Stats struct {
	Scans      uint64 `json:"scans"`
	Reconnects uint64 `json:"reconnects"`
	Demotions  uint64 `json:"demotions"`
	PingFails  uint64 `json:"ping_failures"`
}

// Monitor is the periodic health scanner.
type Monitor struct {
	interval time.Duration
	clock    Clock
	sessions SessionPinger
	logger   logger.Logger

	mu      sync.Mutex
	targets map[string]Target
	stats   Stats

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewMonitor builds a Monitor. interval <= 0 takes the default; sessions may
// be nil when only outbound connectors are supervised.
func NewMonitor(interval time.Duration, sessions SessionPinger, log logger.Logger) *Monitor {
	if interval <= 0 {
		interval = defaultInterval
	}

	return &Monitor{
		interval: interval,
		clock:    realClock{},
		sessions: sessions,
		logger:   log,
		targets:  make(map[string]Target),
		done:     make(chan struct{}),
	}
}

// Watch places an outbound connector under supervision.
func (m *Monitor) Watch(t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.targets[t.Equipment().EquipmentID] = t
}

// Start launches the scan loop.
func (m *Monitor) Start(ctx context.Context) error {
	m.wg.Add(1)

	go m.run(ctx)

	m.logger.Info().Dur("interval", m.interval).Msg("Health monitor started")

	return nil
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := m.clock.Ticker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.done:
			return
		case <-ticker.Chan():
			m.scan()
		}
	}
}

// scan walks every target and registered session once. Faults are isolated
// per device; one dead analyzer never blocks the rest of the scan.
func (m *Monitor) scan() {
	m.mu.Lock()
	m.stats.Scans++

	targets := make([]Target, 0, len(m.targets))
	for _, t := range m.targets {
		targets = append(targets, t)
	}
	m.mu.Unlock()

	for _, t := range targets {
		m.checkTarget(t)
	}

	if m.sessions != nil {
		for _, deviceID := range m.sessions.List() {
			m.checkSession(deviceID)
		}
	}
}

func (m *Monitor) checkTarget(t Target) {
	eq := t.Equipment()

	if t.Status() != models.StatusConnected {
		if err := t.Connect(); err != nil {
			m.logger.Warn().
				Err(err).
				Str("equipment_id", eq.EquipmentID).
				Msg("Reconnect failed")

			return
		}

		m.mu.Lock()
		m.stats.Reconnects++
		m.mu.Unlock()

		m.logger.Info().Str("equipment_id", eq.EquipmentID).Msg("Analyzer reconnected")

		return
	}

	if err := t.Ping(); err != nil {
		m.mu.Lock()
		m.stats.PingFails++
		m.mu.Unlock()

		m.logger.Warn().
			Err(err).
			Str("equipment_id", eq.EquipmentID).
			Msg("Ping failed, dropping connection")

		// Drop now; the next scan reconnects.
		_ = t.Close()
	}
}

func (m *Monitor) checkSession(deviceID string) {
	if err := m.sessions.SendTo(deviceID, "PING\r\n"); err == nil {
		return
	}

	m.mu.Lock()
	m.stats.Demotions++
	m.mu.Unlock()

	m.logger.Warn().Str("device_id", deviceID).Msg("Session unresponsive, demoting")

	if sess, ok := m.sessions.Get(deviceID); ok {
		_ = sess.Close()
	}
}

// Stop ends the scan loop.
func (m *Monitor) Stop(_ context.Context) error {
	m.stopOnce.Do(func() {
		close(m.done)
	})

	m.wg.Wait()

	return nil
}

// Stats returns a snapshot of the monitor's counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.stats
}
