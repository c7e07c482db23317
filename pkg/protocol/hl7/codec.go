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

// Package hl7 parses and builds HL7 v2 pipe-delimited messages as spoken by
// laboratory analyzers: ORM orders, ORU results, ADT patient updates, QRY
// queries and ACK acknowledgments.
package hl7

import (
	"fmt"
	"strings"
	"time"
)

const (
	segmentSeparator      = "\r"
	defaultFieldSeparator = "|"
	componentSeparator    = "^"
	repetitionSeparator   = "~"
	escapeCharacter       = "\\"
	subcomponentSeparator = "&"

	// encodingChars is MSH-2 as emitted in generated messages.
	encodingChars = `^~\&`

	timestampLayout = "20060102150405"

	unknownControlID = "UNKNOWN"
)

// AckCode is the MSA-1 acknowledgment code.
type AckCode string

const (
	AckAccept AckCode = "AA" // application accept
	AckError  AckCode = "AE" // application error
	AckReject AckCode = "AR" // application reject
)

// Codec encodes and decodes HL7 messages. It is stateless and cheap to
// construct; share or build per caller as convenient.
type Codec struct {
	// FieldSeparator defaults to "|".
	FieldSeparator string

	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewCodec returns a Codec with the standard separators.
func NewCodec() *Codec {
	return &Codec{
		FieldSeparator: defaultFieldSeparator,
		now:            time.Now,
	}
}

func (c *Codec) fieldSep() string {
	if c.FieldSeparator == "" {
		return defaultFieldSeparator
	}

	return c.FieldSeparator
}

func (c *Codec) timestamp() string {
	now := c.now
	if now == nil {
		now = time.Now
	}

	return now().Format(timestampLayout)
}

// Decode parses a raw HL7 message into a Message. The segment separator is a
// carriage return; \r\n and bare \n are tolerated and normalized. A message
// without an MSH segment is rejected: it has no determinable type or control
// id. Short segments are not an error; missing fields read as empty strings.
func (c *Codec) Decode(raw string) (*Message, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, ErrEmptyMessage
	}

	normalized := strings.ReplaceAll(trimmed, "\r\n", segmentSeparator)
	normalized = strings.ReplaceAll(normalized, "\n", segmentSeparator)

	msg := &Message{
		Raw:      raw,
		segments: make(map[string][]Segment),
	}

	sep := c.fieldSep()

	for _, line := range strings.Split(normalized, segmentSeparator) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Split(line, sep)
		segType := parts[0]

		var fields []string

		if segType == "MSH" {
			// By convention MSH-1 is the field separator itself and the
			// encoding characters sit at fixed position 2; the raw split
			// already leaves them there once the separator is prepended.
			fields = append([]string{sep}, parts[1:]...)
		} else {
			fields = parts[1:]
		}

		seg := Segment{Type: segType, fields: fields}
		msg.ordered = append(msg.ordered, seg)
		msg.segments[segType] = append(msg.segments[segType], seg)
	}

	msh, ok := msg.Segment("MSH")
	if !ok {
		return nil, ErrMissingMSH
	}

	msgType := msh.Field(9)
	typeParts := strings.Split(msgType, componentSeparator)
	msg.Type = typeParts[0]

	if len(typeParts) > 1 {
		msg.TriggerEvent = typeParts[1]
	}

	msg.ControlID = msh.Field(10)
	msg.EncodingChars = msh.Field(2)
	msg.SendingApplication = msh.Field(3)
	msg.SendingFacility = msh.Field(4)
	msg.ReceivingApplication = msh.Field(5)
	msg.ReceivingFacility = msh.Field(6)
	msg.Timestamp = msh.Field(7)
	msg.ProcessingID = msh.Field(11)
	msg.VersionID = msh.Field(12)

	return msg, nil
}

// BuildAck builds a two-segment MSH+MSA acknowledgment for the given control
// id. The result is deterministic apart from the header timestamp.
func (c *Codec) BuildAck(controlID string, code AckCode, text string) string {
	if controlID == "" {
		controlID = unknownControlID
	}

	ts := c.timestamp()

	msh := fmt.Sprintf("MSH|%s|LIS|LAB|SENDER|FACILITY|%s||ACK^R01|%s_ACK|P|2.5",
		encodingChars, ts, controlID)
	msa := fmt.Sprintf("MSA|%s|%s|%s", code, controlID, text)

	return msh + segmentSeparator + msa + segmentSeparator
}

// BuildNak builds a negative acknowledgment (application error) carrying the
// failure text.
func (c *Codec) BuildNak(controlID, errText string) string {
	return c.BuildAck(controlID, AckError, errText)
}

// ExtractControlID pulls MSH-10 out of a raw message without a full decode,
// so a NAK can still reference the original message when decode failed.
func (c *Codec) ExtractControlID(raw string) string {
	normalized := strings.ReplaceAll(strings.TrimSpace(raw), "\r\n", segmentSeparator)
	normalized = strings.ReplaceAll(normalized, "\n", segmentSeparator)

	for _, line := range strings.Split(normalized, segmentSeparator) {
		if !strings.HasPrefix(line, "MSH") {
			continue
		}

		fields := strings.Split(line, c.fieldSep())
		if len(fields) > 9 {
			return fields[9]
		}

		break
	}

	return unknownControlID
}

// GenerateResult assembles an ORU^R01 result message: MSH, PID, OBR and one
// OBX per result with a 1-based set id.
func (c *Codec) GenerateResult(patient PatientInfo, results []ResultInfo) string {
	ts := c.timestamp()
	controlID := "LIS_" + ts

	segments := []string{
		fmt.Sprintf("MSH|%s|LIS|LAB|EMR|HOSPITAL|%s||ORU^R01|%s|P|2.5",
			encodingChars, ts, controlID),
		fmt.Sprintf("PID|1||%s||%s||%s|%s",
			patient.PatientID, patient.Name, patient.DateOfBirth, patient.Gender),
	}

	var first ResultInfo
	if len(results) > 0 {
		first = results[0]
	}

	segments = append(segments,
		fmt.Sprintf("OBR|1|%s||%s|||%s", first.OrderNumber, first.TestCode, ts))

	for i, r := range results {
		segments = append(segments,
			fmt.Sprintf("OBX|%d|NM|%s%s%s||%s|%s|%s|%s|||F",
				i+1, r.TestCode, componentSeparator, r.TestName,
				r.Value, r.Units, r.ReferenceRange, r.AbnormalFlags))
	}

	return strings.Join(segments, segmentSeparator) + segmentSeparator
}

// OrderRequest carries what an outbound ORM^O01 order needs.
type OrderRequest struct {
	PatientID   string
	OrderNumber string
	TestCode    string
	TestName    string
}

// GenerateOrder builds an ORM^O01 order message for dispatch to an analyzer.
func (c *Codec) GenerateOrder(deviceID string, order OrderRequest) string {
	ts := c.timestamp()
	controlID := "ORD_" + ts

	patientID := order.PatientID
	if patientID == "" {
		patientID = unknownControlID
	}

	orderNumber := order.OrderNumber
	if orderNumber == "" {
		orderNumber = controlID
	}

	segments := []string{
		fmt.Sprintf("MSH|%s|LIS|LAB|%s|ANALYZER|%s||ORM^O01|%s|P|2.5",
			encodingChars, deviceID, ts, controlID),
		fmt.Sprintf("PID|1||%s", patientID),
		fmt.Sprintf("ORC|NW|%s|||||||%s", orderNumber, ts),
		fmt.Sprintf("OBR|1|%s||%s%s%s|||%s",
			orderNumber, order.TestCode, componentSeparator, order.TestName, ts),
	}

	return strings.Join(segments, segmentSeparator) + segmentSeparator
}
