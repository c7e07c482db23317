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

// Package bt1500 parses report text from the BT-1500 Sensacore electrolyte
// analyzer. The device prints multi-line plain-text reports over serial;
// each report section carries electrode readings in mV, sample results in
// mmol/L with optional HIGH/LOW flags, or calibration slopes in mv/decade.
package bt1500

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ReportType identifies a report section.
type ReportType string

const (
	CalibrationReport ReportType = "CALIBRATION_REPORT"
	AnalyzeReport     ReportType = "ANALYZE_REPORT"
	CalibrationSlope  ReportType = "CALIBRATION_SLOPE"
	AnalyzeSample     ReportType = "ANALYZE_SAMPLE"
)

// ErrInvalidReport is returned when raw text carries none of the report
// section markers or no parameter values.
var ErrInvalidReport = errors.New("not a recognizable BT-1500 report")

// Result is one parsed report section.
type Result struct {
	Type       ReportType         `json:"test_type"`
	Timestamp  time.Time          `json:"timestamp"`
	Parameters map[string]float64 `json:"parameters"`
	Units      map[string]string  `json:"units"`
	Flags      map[string]string  `json:"flags"`
	Raw        string             `json:"raw_data"`
}

var (
	electrodeLine = regexp.MustCompile(`^(\w+)\s*=\s*([\d.]+)\s*mV`)
	resultLine    = regexp.MustCompile(`^(\w+)\s*=\s*([\d.]+)\s*mmol/L\s*(\w*)`)
	slopeLine     = regexp.MustCompile(`^(\w+)\s*=\s*([\d.]+)\s*mv/decade`)
	timestampLine = regexp.MustCompile(`^(\d{2}-[A-Za-z]{3}-\d{2}|[A-Za-z]{3}-\d{2}-\d{2}) \d{2}:\d{2}:\d{2}`)
	anyValue      = regexp.MustCompile(`\w+\s*=\s*[\d.]+\s*(mV|mmol/L)`)
)

// The analyzer's firmware is inconsistent about month position, so both
// layouts are tried.
var timestampLayouts = []string{"02-Jan-06 15:04:05", "Jan-02-06 15:04:05"}

var sectionMarkers = map[string]ReportType{
	"CALIBRATION REPORT": CalibrationReport,
	"ANALYZE REPORT":     AnalyzeReport,
	"CALIBRATION SLOPE":  CalibrationSlope,
	"ANALYZE SAMPLE":     AnalyzeSample,
}

// Parser parses BT-1500 report text.
type Parser struct {
	now func() time.Time
}

// NewParser returns a ready Parser.
func NewParser() *Parser {
	return &Parser{now: time.Now}
}

func (p *Parser) timeNow() time.Time {
	if p.now == nil {
		return time.Now()
	}

	return p.now()
}

// Validate reports whether raw looks like BT-1500 output: at least one
// section marker and at least one parameter value line.
func (p *Parser) Validate(raw string) bool {
	var hasMarker bool

	for marker := range sectionMarkers {
		if strings.Contains(raw, marker) {
			hasMarker = true

			break
		}
	}

	return hasMarker && anyValue.MatchString(raw)
}

// Parse splits raw report text into per-section Results. Lines before the
// first section marker are ignored; a value line that fails its pattern is
// skipped rather than failing the report.
func (p *Parser) Parse(raw string) ([]Result, error) {
	if !p.Validate(raw) {
		return nil, ErrInvalidReport
	}

	var (
		results []Result
		current *Result
	)

	flush := func() {
		if current != nil {
			results = append(results, *current)
			current = nil
		}
	}

	for _, line := range strings.Split(strings.TrimSpace(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if rt, ok := sectionMarker(line); ok {
			flush()

			current = &Result{
				Type:       rt,
				Timestamp:  p.timeNow(),
				Parameters: make(map[string]float64),
				Units:      make(map[string]string),
				Flags:      make(map[string]string),
			}
			current.Raw += line + "\n"

			continue
		}

		if current == nil {
			continue
		}

		current.Raw += line + "\n"

		switch {
		case strings.Contains(line, "mv/decade"):
			applyValueLine(current, slopeLine, line, "mv/decade")
		case strings.Contains(line, "mmol/L"):
			if m := resultLine.FindStringSubmatch(line); m != nil {
				if v, err := strconv.ParseFloat(m[2], 64); err == nil {
					current.Parameters[m[1]] = v
					current.Units[m[1]] = "mmol/L"

					if m[3] != "" {
						current.Flags[m[1]] = m[3]
					}
				}
			}
		case strings.Contains(line, "mV"):
			applyValueLine(current, electrodeLine, line, "mV")
		case timestampLine.MatchString(line):
			if ts, ok := parseTimestamp(timestampLine.FindString(line)); ok {
				current.Timestamp = ts
			}
		}
	}

	flush()

	return results, nil
}

func sectionMarker(line string) (ReportType, bool) {
	for marker, rt := range sectionMarkers {
		if strings.Contains(line, marker) {
			return rt, true
		}
	}

	return "", false
}

func applyValueLine(r *Result, re *regexp.Regexp, line, unit string) {
	m := re.FindStringSubmatch(line)
	if m == nil {
		return
	}

	v, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return
	}

	r.Parameters[m[1]] = v
	r.Units[m[1]] = unit
}

func parseTimestamp(line string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, line); err == nil {
			return ts, true
		}
	}

	return time.Time{}, false
}
