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

package bt1500

import (
	"fmt"
	"sort"
	"strings"
)

// Electrolyte panel vocabulary: display names and LOINC codes per parameter.
var (
	parameterNames = map[string]string{
		"Na":  "Sodium",
		"K":   "Potassium",
		"iCa": "Ionized Calcium",
		"Cl":  "Chloride",
		"pH":  "pH",
	}

	loincCodes = map[string]string{
		"Na":  "2951-2",
		"K":   "2823-3",
		"iCa": "2028-9",
		"Cl":  "2075-0",
		"pH":  "2746-1",
	}
)

const hl7TimestampLayout = "20060102150405"

// ToHL7 renders a parsed result as an ORU^R01 message: MSH, PID when a
// patient id is known, OBR, and one OBX per recognized electrolyte
// parameter. Parameters the panel does not know are skipped.
func (p *Parser) ToHL7(result Result, patientID string) string {
	ts := p.timeNow().Format(hl7TimestampLayout)

	segments := []string{
		fmt.Sprintf("MSH|^~\\&|BT-1500|Sensacore|||%s||ORU^R01|%s|P|2.3.1||||||UNICODE", ts, ts),
	}

	if patientID != "" {
		segments = append(segments, fmt.Sprintf("PID|1||%s^^^^MR", patientID))
	}

	testName := "BT-1500 " + string(result.Type)
	if result.Type == AnalyzeSample {
		testName = "BT-1500 Electrolyte Panel"
	}

	obsTS := result.Timestamp.Format(hl7TimestampLayout)
	segments = append(segments, fmt.Sprintf("OBR|1|||%s||%s|||||||||||||||", testName, obsTS))

	// Map iteration order is not stable; emit OBX segments in a fixed order.
	params := make([]string, 0, len(result.Parameters))
	for param := range result.Parameters {
		params = append(params, param)
	}

	sort.Strings(params)

	setID := 1

	for _, param := range params {
		name, known := parameterNames[param]
		if !known {
			continue
		}

		value := result.Parameters[param]
		unit := result.Units[param]
		flag := result.Flags[param]

		obx := fmt.Sprintf("OBX|%d|NM|%s^%s^LN||%g|%s||%s|||F",
			setID, loincCodes[param], name, value, unit, flag)
		segments = append(segments, obx)
		setID++
	}

	return strings.Join(segments, "\r")
}
