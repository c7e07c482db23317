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

// Package frame turns raw byte chunks from a transport into complete logical
// messages. TCP analyzers terminate messages with CRLF; the BT-1500 serial
// analyzer emits multi-line reports whose completion is recognized by
// content, not by a terminator.
package frame

import (
	"bytes"
	"errors"
	"regexp"
)

// ErrBufferOverflow is returned when an assembler's buffer exceeds its
// maximum size without completing a message. The buffer is reset.
var ErrBufferOverflow = errors.New("frame buffer overflow")

var lineTerminator = []byte("\r\n")

// LineAssembler accumulates bytes and yields one message per CRLF-terminated
// line. Not safe for concurrent use; each connection owns its own.
type LineAssembler struct {
	buf     bytes.Buffer
	maxSize int
}

// NewLineAssembler returns a LineAssembler. maxSize <= 0 disables the bound.
func NewLineAssembler(maxSize int) *LineAssembler {
	return &LineAssembler{maxSize: maxSize}
}

// Feed appends a chunk and extracts every complete line it now holds. A
// chunk may carry several queued messages, or end mid-terminator; unconsumed
// bytes stay buffered for the next call.
func (a *LineAssembler) Feed(chunk []byte) ([]string, error) {
	a.buf.Write(chunk)

	if a.maxSize > 0 && a.buf.Len() > a.maxSize && !bytes.Contains(a.buf.Bytes(), lineTerminator) {
		a.buf.Reset()

		return nil, ErrBufferOverflow
	}

	var messages []string

	for {
		data := a.buf.Bytes()

		idx := bytes.Index(data, lineTerminator)
		if idx < 0 {
			break
		}

		line := string(data[:idx])
		a.buf.Next(idx + len(lineTerminator))

		if line != "" {
			messages = append(messages, line)
		}
	}

	return messages, nil
}

// Pending reports how many bytes are buffered awaiting a terminator.
func (a *LineAssembler) Pending() int {
	return a.buf.Len()
}

// Reset discards any buffered partial message.
func (a *LineAssembler) Reset() {
	a.buf.Reset()
}

// Report completion heuristics. The analyzer prints a timestamp line and an
// underscore separator run at the end of every report; a buffer containing
// both is a complete report.
var reportTimestampPattern = regexp.MustCompile(`\d{2}-\w{3}-\d{2} \d{2}:\d{2}:\d{2}`)

const reportSeparatorRun = "_ _ _ _ _ _ _ _ _"

// ReportAssembler accumulates serial bytes until the buffer contains both a
// report timestamp and a separator run, then yields the whole buffer. Not
// safe for concurrent use.
type ReportAssembler struct {
	buf     bytes.Buffer
	maxSize int
}

// NewReportAssembler returns a ReportAssembler. maxSize <= 0 disables the
// bound.
func NewReportAssembler(maxSize int) *ReportAssembler {
	return &ReportAssembler{maxSize: maxSize}
}

// Feed appends a chunk and tests the completion heuristics. When the buffer
// holds a complete report it is returned and cleared; otherwise ok is false
// and the bytes are retained. A buffer exceeding the maximum size without
// completing is treated as corrupt and reset.
func (a *ReportAssembler) Feed(chunk []byte) (report string, ok bool, err error) {
	a.buf.Write(chunk)

	data := a.buf.Bytes()

	if reportTimestampPattern.Match(data) && bytes.Contains(data, []byte(reportSeparatorRun)) {
		report = a.buf.String()
		a.buf.Reset()

		return report, true, nil
	}

	if a.maxSize > 0 && a.buf.Len() > a.maxSize {
		a.buf.Reset()

		return "", false, ErrBufferOverflow
	}

	return "", false, nil
}

// Pending reports how many bytes are buffered awaiting completion.
func (a *ReportAssembler) Pending() int {
	return a.buf.Len()
}

// Reset discards any buffered partial report.
func (a *ReportAssembler) Reset() {
	a.buf.Reset()
}
