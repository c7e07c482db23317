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

package models

// CommunicationProtocol identifies how an analyzer is reached.
type CommunicationProtocol string

const (
	ProtocolTCPIP  CommunicationProtocol = "tcp_ip"
	ProtocolSerial CommunicationProtocol = "serial"
	ProtocolHL7Net CommunicationProtocol = "hl7"
)

// ConnectionStatus tracks the live state of a managed analyzer connection.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "disconnected"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	StatusTimeout      ConnectionStatus = "timeout"
)

// Equipment is the catalog record for a logical analyzer. The catalog is an
// index of known devices, not connection state; live sessions are tracked by
// the session registry.
type Equipment struct {
	EquipmentID  string                `json:"equipment_id"`
	Name         string                `json:"name"`
	Manufacturer string                `json:"manufacturer,omitempty"`
	Model        string                `json:"model,omitempty"`
	Protocol     CommunicationProtocol `json:"protocol"`
	Host         string                `json:"host,omitempty"`
	Port         int                   `json:"port,omitempty"`
	SerialPort   string                `json:"serial_port,omitempty"`
	BaudRate     int                   `json:"baud_rate,omitempty"`
	IsActive     bool                  `json:"is_active"`
}
