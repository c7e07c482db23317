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

package device

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/protocol/bt1500"
	"github.com/rudrakshya/LIS/pkg/protocol/frame"
)

const serialReportBufferMax = 8192

// Publisher receives messages produced by a serial listener. The message
// router satisfies it.
type Publisher interface {
	Publish(msg *models.InboundMessage) error
}

// SerialListener drains a BT-1500's serial port: raw chunks accumulate in a
// report assembler, complete reports are parsed and converted to HL7, and
// each converted result is published for downstream processing.
type SerialListener struct {
	connector *Connector
	parser    *bt1500.Parser
	assembler *frame.ReportAssembler
	publisher Publisher
	logger    logger.Logger

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSerialListener builds a listener over an already-constructed connector.
func NewSerialListener(conn *Connector, pub Publisher, log logger.Logger) *SerialListener {
	return &SerialListener{
		connector: conn,
		parser:    bt1500.NewParser(),
		assembler: frame.NewReportAssembler(serialReportBufferMax),
		publisher: pub,
		logger:    log,
		done:      make(chan struct{}),
	}
}

// Start connects the port and launches the read loop.
func (l *SerialListener) Start(_ context.Context) error {
	if err := l.connector.Connect(); err != nil {
		return err
	}

	l.wg.Add(1)

	go l.readLoop()

	l.logger.Info().
		Str("equipment_id", l.connector.equipment.EquipmentID).
		Str("serial_port", l.connector.equipment.SerialPort).
		Msg("Serial listener started")

	return nil
}

func (l *SerialListener) readLoop() {
	defer l.wg.Done()

	buf := make([]byte, 1024)

	for {
		select {
		case <-l.done:
			return
		default:
		}

		l.connector.mu.Lock()
		conn := l.connector.conn
		l.connector.mu.Unlock()

		if conn == nil {
			return
		}

		n, err := conn.Read(buf)
		if err != nil {
			select {
			case <-l.done:
			default:
				l.logger.Error().
					Err(err).
					Str("equipment_id", l.connector.equipment.EquipmentID).
					Msg("Serial read failed")
			}

			return
		}

		if n == 0 {
			continue
		}

		report, complete, err := l.assembler.Feed(buf[:n])
		if err != nil {
			l.logger.Warn().
				Err(err).
				Str("equipment_id", l.connector.equipment.EquipmentID).
				Msg("Discarding corrupt serial buffer")

			continue
		}

		if complete {
			l.handleReport(report)
		}
	}
}

func (l *SerialListener) handleReport(report string) {
	results, err := l.parser.Parse(report)
	if err != nil {
		l.logger.Warn().
			Err(err).
			Str("equipment_id", l.connector.equipment.EquipmentID).
			Msg("Unparseable BT-1500 report")

		return
	}

	for _, result := range results {
		// Calibration output is informational; only sample results go upstream.
		if result.Type != bt1500.AnalyzeSample {
			l.logger.Info().
				Str("equipment_id", l.connector.equipment.EquipmentID).
				Str("report_type", string(result.Type)).
				Int("parameters", len(result.Parameters)).
				Msg("BT-1500 calibration report recorded")

			continue
		}

		raw := l.parser.ToHL7(result, "")

		msg := &models.InboundMessage{
			ID:         uuid.New().String(),
			Kind:       models.KindHL7,
			Content:    raw,
			DeviceID:   l.connector.equipment.EquipmentID,
			ReceivedAt: time.Now(),
		}

		if err := l.publisher.Publish(msg); err != nil {
			l.logger.Error().
				Err(err).
				Str("equipment_id", l.connector.equipment.EquipmentID).
				Str("report_type", string(result.Type)).
				Msg("Failed to publish BT-1500 result")

			continue
		}

		l.logger.Info().
			Str("equipment_id", l.connector.equipment.EquipmentID).
			Str("report_type", string(result.Type)).
			Int("parameters", len(result.Parameters)).
			Msg("BT-1500 report processed")
	}
}

// Stop ends the read loop and closes the port.
func (l *SerialListener) Stop(_ context.Context) error {
	l.stopOnce.Do(func() {
		close(l.done)
		_ = l.connector.Close()
	})

	l.wg.Wait()

	return nil
}
