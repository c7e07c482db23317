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

// Package device dials analyzers the laboratory reaches out to: TCP
// instruments the LIS connects to directly, and serial instruments like the
// BT-1500 read on a listener loop.
package device

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/protocol/hl7"
)

// ErrNotConnected is returned for operations on a connector without a live
// transport.
var ErrNotConnected = errors.New("device not connected")

// ErrUnsupportedProtocol is returned when equipment names a protocol the
// connector cannot dial.
var ErrUnsupportedProtocol = errors.New("unsupported communication protocol")

const defaultDialTimeout = 10 * time.Second

// Connector manages one outbound analyzer connection.
type Connector struct {
	equipment *models.Equipment
	hl7       *hl7.Codec
	logger    logger.Logger

	dialTimeout time.Duration

	// Transport factories, swappable in tests.
	dialTCP  func(addr string, timeout time.Duration) (io.ReadWriteCloser, error)
	openPort func(port string, mode *serial.Mode) (io.ReadWriteCloser, error)

	mu     sync.Mutex
	conn   io.ReadWriteCloser
	status models.ConnectionStatus
}

// NewConnector builds a Connector for the equipment record.
func NewConnector(eq *models.Equipment, log logger.Logger) *Connector {
	return &Connector{
		equipment:   eq,
		hl7:         hl7.NewCodec(),
		logger:      log,
		dialTimeout: defaultDialTimeout,
		dialTCP: func(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
			return net.DialTimeout("tcp", addr, timeout)
		},
		openPort: func(port string, mode *serial.Mode) (io.ReadWriteCloser, error) {
			return serial.Open(port, mode)
		},
		status: models.StatusDisconnected,
	}
}

// Connect dials the analyzer over its configured transport.
func (c *Connector) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil
	}

	c.status = models.StatusConnecting

	var (
		conn io.ReadWriteCloser
		err  error
	)

	switch c.equipment.Protocol {
	case models.ProtocolTCPIP, models.ProtocolHL7Net:
		addr := fmt.Sprintf("%s:%d", c.equipment.Host, c.equipment.Port)
		conn, err = c.dialTCP(addr, c.dialTimeout)
	case models.ProtocolSerial:
		mode := &serial.Mode{
			BaudRate: c.equipment.BaudRate,
			DataBits: 8,
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		}
		conn, err = c.openPort(c.equipment.SerialPort, mode)
	default:
		c.status = models.StatusError

		return fmt.Errorf("%w: %s", ErrUnsupportedProtocol, c.equipment.Protocol)
	}

	if err != nil {
		c.status = models.StatusError

		return fmt.Errorf("failed to connect to %s: %w", c.equipment.EquipmentID, err)
	}

	c.conn = conn
	c.status = models.StatusConnected

	c.logger.Info().
		Str("equipment_id", c.equipment.EquipmentID).
		Str("protocol", string(c.equipment.Protocol)).
		Msg("Analyzer connected")

	return nil
}

// Send writes raw data to the analyzer.
func (c *Connector) Send(data string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	if _, err := c.conn.Write([]byte(data)); err != nil {
		c.status = models.StatusError

		return fmt.Errorf("failed to send to %s: %w", c.equipment.EquipmentID, err)
	}

	return nil
}

// Ping probes the analyzer with a PING line. A write failure marks the
// connector errored.
func (c *Connector) Ping() error {
	return c.Send("PING\r\n")
}

// SendOrder dispatches an ORM order to the analyzer.
func (c *Connector) SendOrder(order hl7.OrderRequest) error {
	raw := c.hl7.GenerateOrder(c.equipment.EquipmentID, order)

	if err := c.Send(raw + "\n"); err != nil {
		return err
	}

	c.logger.Info().
		Str("equipment_id", c.equipment.EquipmentID).
		Str("order_number", order.OrderNumber).
		Msg("Order dispatched")

	return nil
}

// Close drops the transport. Safe to call when already disconnected.
func (c *Connector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	c.status = models.StatusDisconnected

	return err
}

// Status returns the connector's connection state.
func (c *Connector) Status() models.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status
}

// Equipment returns the equipment record this connector dials.
func (c *Connector) Equipment() *models.Equipment {
	return c.equipment
}
