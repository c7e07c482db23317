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

import "time"

// MessageKind is the protocol family of a classified inbound message.
type MessageKind string

const (
	KindHL7     MessageKind = "HL7"
	KindASTM    MessageKind = "ASTM"
	KindJSON    MessageKind = "JSON"
	KindCommand MessageKind = "COMMAND"
	KindRaw     MessageKind = "RAW"
)

// InboundMessage is the unit of work handed from a connection to the message
// router once the wire acknowledgment has been written. Ownership transfers
// to the router on enqueue; nothing mutates it afterwards.
type InboundMessage struct {
	ID         string      `json:"id"`
	Kind       MessageKind `json:"kind"`
	Content    string      `json:"content"`
	DeviceID   string      `json:"device_id"`
	RemoteAddr string      `json:"remote_addr,omitempty"`
	ReceivedAt time.Time   `json:"received_at"`
}
