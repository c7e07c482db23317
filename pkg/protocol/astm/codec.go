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

// Package astm parses ASTM E1381/E1394 transmissions from laboratory
// analyzers. A transmission is a sequence of CR-separated record lines,
// optionally wrapped in STX/ETX framing with a per-frame checksum trailer.
package astm

import (
	"fmt"
	"strings"
	"time"
)

const (
	STX = '\x02'
	ETX = '\x03'
	ACK = '\x06'
	NAK = '\x15'
	EOT = '\x04'
	ENQ = '\x05'

	recordDelimiter    = "\r"
	fieldDelimiter     = "|"
	componentDelimiter = "^"

	timestampLayout = "20060102150405"
)

// Message is one decoded ASTM transmission.
type Message struct {
	// FrameNumber is the leading digit of the first line, -1 when absent.
	FrameNumber int `json:"frame_number"`

	Records []Record `json:"records"`

	// Checksum is the 2-hex-digit trailer found in the payload, empty when
	// none was present. ChecksumValid reports whether it matched the
	// computed modulo-256 sum. An invalid checksum does not fail the
	// decode; record content is still returned.
	Checksum      string `json:"checksum"`
	ChecksumValid bool   `json:"checksum_valid"`

	Raw       string    `json:"raw"`
	Timestamp time.Time `json:"timestamp"`
}

// Codec decodes ASTM transmissions and builds acknowledgments.
type Codec struct {
	now func() time.Time
}

// NewCodec returns a ready Codec.
func NewCodec() *Codec {
	return &Codec{now: time.Now}
}

func (c *Codec) timeNow() time.Time {
	if c.now == nil {
		return time.Now()
	}

	return c.now()
}

// Decode parses a raw transmission. STX/ETX are stripped, line endings
// normalized to CR, the leading frame digit and checksum trailer recognized,
// and each remaining line parsed into a typed Record.
func (c *Codec) Decode(raw string) (*Message, error) {
	cleaned := cleanMessage(raw)
	if strings.TrimSpace(cleaned) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &Message{
		FrameNumber: extractFrameNumber(cleaned),
		Raw:         raw,
		Timestamp:   c.timeNow(),
	}

	msg.Checksum, msg.ChecksumValid = validateChecksum(cleaned)

	for _, line := range strings.Split(cleaned, recordDelimiter) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if line[0] >= '0' && line[0] <= '9' {
			line = line[1:]
		}

		if isChecksumLine(line) {
			continue
		}

		if !strings.Contains(line, fieldDelimiter) {
			continue
		}

		msg.Records = append(msg.Records, parseRecord(line))
	}

	if len(msg.Records) == 0 {
		return nil, ErrNoRecords
	}

	return msg, nil
}

func cleanMessage(raw string) string {
	cleaned := strings.ReplaceAll(raw, string(STX), "")
	cleaned = strings.ReplaceAll(cleaned, string(ETX), "")
	cleaned = strings.ReplaceAll(cleaned, "\r\n", recordDelimiter)
	cleaned = strings.ReplaceAll(cleaned, "\n", recordDelimiter)

	return cleaned
}

func extractFrameNumber(message string) int {
	lines := strings.Split(message, recordDelimiter)
	if len(lines) > 0 && lines[0] != "" && lines[0][0] >= '0' && lines[0][0] <= '9' {
		return int(lines[0][0] - '0')
	}

	return -1
}

func isChecksumLine(line string) bool {
	if len(line) != 2 {
		return false
	}

	for _, r := range strings.ToUpper(line) {
		if !strings.ContainsRune("0123456789ABCDEF", r) {
			return false
		}
	}

	return true
}

// validateChecksum scans lines back to front for a 2-hex-digit trailer and
// compares it against the sum of everything preceding it in the payload.
func validateChecksum(message string) (checksum string, valid bool) {
	lines := strings.Split(message, recordDelimiter)

	for i := len(lines) - 1; i >= 0; i-- {
		line := lines[i]
		if !isChecksumLine(line) {
			continue
		}

		expected := strings.ToUpper(line)

		content := message[:strings.LastIndex(message, line)]

		return expected, expected == computeChecksum(content)
	}

	return "", false
}

func computeChecksum(content string) string {
	var sum int
	for i := 0; i < len(content); i++ {
		sum += int(content[i])
	}

	return fmt.Sprintf("%02X", sum&0xFF)
}

func parseRecord(line string) Record {
	fields := strings.Split(line, fieldDelimiter)

	rec := Record{
		Type:     fields[0],
		Sequence: field(fields, 1),
		Fields:   fields,
		Raw:      line,
	}

	switch rec.Type {
	case "H":
		rec.Header = parseHeader(fields)
	case "P":
		rec.Patient = parsePatient(fields)
	case "O":
		rec.Order = parseOrder(fields)
	case "R":
		rec.Result = parseResult(fields)
	case "C":
		rec.Comment = parseComment(fields)
	case "L":
		rec.Terminator = parseTerminator(fields)
	case "M":
		rec.Manufacturer = parseManufacturer(fields)
	default:
		rec.Unknown = true
	}

	return rec
}

// CreateAcknowledgment returns the single-byte ACK or NAK control character.
func (c *Codec) CreateAcknowledgment(success bool) string {
	if success {
		return string(ACK)
	}

	return string(NAK)
}

// CreateResultAck builds a framed H+L acknowledgment transmission with the
// checksum trailer, for analyzers that expect a record-level response rather
// than a bare control character.
func (c *Codec) CreateResultAck() string {
	ts := c.timeNow().Format(timestampLayout)

	body := fmt.Sprintf("H|\\^&|||LIS|||||||||%s\rL|1|N\r", ts)

	return string(STX) + body + string(ETX) + computeChecksum(body) + "\r\n"
}

// ProcessResult is the outcome of handling one inbound transmission.
type ProcessResult struct {
	Status           string    `json:"status"`
	RecordsProcessed int       `json:"records_processed"`
	Records          []Record  `json:"records,omitempty"`
	ChecksumValid    bool      `json:"checksum_valid"`
	Timestamp        time.Time `json:"timestamp"`
	Error            string    `json:"error,omitempty"`
	Ack              string    `json:"-"`
}

// Process decodes a transmission and produces the acknowledgment. A checksum
// mismatch is reported in ChecksumValid but the transmission is still
// acknowledged positively; only an undecodable payload draws a NAK.
func (c *Codec) Process(raw string) *ProcessResult {
	msg, err := c.Decode(raw)
	if err != nil {
		return &ProcessResult{
			Status:    "error",
			Error:     err.Error(),
			Timestamp: c.timeNow(),
			Ack:       c.CreateAcknowledgment(false),
		}
	}

	return &ProcessResult{
		Status:           "success",
		RecordsProcessed: len(msg.Records),
		Records:          msg.Records,
		ChecksumValid:    msg.ChecksumValid,
		Timestamp:        msg.Timestamp,
		Ack:              c.CreateAcknowledgment(true),
	}
}
