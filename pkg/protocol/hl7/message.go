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

package hl7

import "strings"

// Segment is one parsed HL7 segment: a type tag plus positional fields.
// Field numbering is 1-based and follows HL7 convention; for MSH the field
// separator itself is field 1 and the encoding characters are field 2.
type Segment struct {
	Type   string
	fields []string
}

// Field returns field n (1-based). Out-of-range positions return the empty
// string, never an error; analyzers routinely send short segments.
func (s Segment) Field(n int) string {
	if n < 1 || n > len(s.fields) {
		return ""
	}

	return s.fields[n-1]
}

// FieldCount reports how many fields the segment carries.
func (s Segment) FieldCount() int {
	return len(s.fields)
}

// Component returns component c (1-based) of field n, splitting on the
// component separator. Missing components default to empty string.
func (s Segment) Component(n, c int) string {
	parts := strings.Split(s.Field(n), componentSeparator)
	if c < 1 || c > len(parts) {
		return ""
	}

	return parts[c-1]
}

// Message is a decoded HL7 message: segments indexed by type, plus the
// header fields every consumer needs. Read-only after decode.
type Message struct {
	Raw          string
	Type         string // 3-letter message type prefix, e.g. "ORM"
	TriggerEvent string // e.g. "O01"
	ControlID    string

	SendingApplication   string
	SendingFacility      string
	ReceivingApplication string
	ReceivingFacility    string
	Timestamp            string
	ProcessingID         string
	VersionID            string
	EncodingChars        string

	ordered  []Segment
	segments map[string][]Segment
}

// Segments returns all segments of the given type in arrival order.
func (m *Message) Segments(segType string) []Segment {
	return m.segments[segType]
}

// Segment returns the first segment of the given type.
func (m *Message) Segment(segType string) (Segment, bool) {
	segs := m.segments[segType]
	if len(segs) == 0 {
		return Segment{}, false
	}

	return segs[0], true
}

// All returns every segment in arrival order.
func (m *Message) All() []Segment {
	return m.ordered
}

// Extract returns field fieldNum of the index-th segment of segType.
// Any absent position yields the empty string.
func (m *Message) Extract(segType string, index, fieldNum int) string {
	segs := m.segments[segType]
	if index < 0 || index >= len(segs) {
		return ""
	}

	return segs[index].Field(fieldNum)
}
