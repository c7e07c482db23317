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

package astm

import "strings"

// Record is one parsed ASTM record line. Type is the single-letter record
// identifier; exactly one of the typed views is non-nil for known types.
type Record struct {
	Type     string   `json:"type"`
	Sequence string   `json:"sequence"`
	Fields   []string `json:"fields"`
	Raw      string   `json:"raw"`

	Header       *HeaderRecord       `json:"header,omitempty"`
	Patient      *PatientRecord      `json:"patient,omitempty"`
	Order        *OrderRecord        `json:"order,omitempty"`
	Result       *ResultRecord       `json:"result,omitempty"`
	Comment      *CommentRecord      `json:"comment,omitempty"`
	Terminator   *TerminatorRecord   `json:"terminator,omitempty"`
	Manufacturer *ManufacturerRecord `json:"manufacturer,omitempty"`

	// Unknown marks a record whose type letter is not recognized. Fields
	// and Raw still carry the content.
	Unknown bool `json:"unknown,omitempty"`
}

// TestInformation is the "^"-delimited universal test id used in order and
// result records.
type TestInformation struct {
	TestID     string   `json:"test_id"`
	TestName   string   `json:"test_name"`
	TestType   string   `json:"test_type"`
	Parameters []string `json:"test_parameters,omitempty"`
}

// HeaderRecord is the H record.
type HeaderRecord struct {
	DelimiterDefinition string `json:"delimiter_definition"`
	MessageControlID    string `json:"message_control_id"`
	SenderName          string `json:"sender_name"`
	SenderAddress       string `json:"sender_address"`
	ReceiverID          string `json:"receiver_id"`
	ProcessingID        string `json:"processing_id"`
	Version             string `json:"version"`
	Timestamp           string `json:"timestamp"`
}

// PatientRecord is the P record.
type PatientRecord struct {
	PracticePatientID  string `json:"practice_patient_id"`
	LabPatientID       string `json:"laboratory_patient_id"`
	Name               string `json:"patient_name"`
	BirthDate          string `json:"birthdate"`
	Sex                string `json:"patient_sex"`
	Address            string `json:"patient_address"`
	Phone              string `json:"patient_phone"`
	AttendingPhysician string `json:"attending_physician_id"`
	Location           string `json:"location"`
}

// OrderRecord is the O record.
type OrderRecord struct {
	SpecimenID           string          `json:"specimen_id"`
	InstrumentSpecimenID string          `json:"instrument_specimen_id"`
	Test                 TestInformation `json:"test_information"`
	Priority             string          `json:"priority"`
	RequestedAt          string          `json:"requested_date_time"`
	CollectedAt          string          `json:"collection_date_time"`
	ActionCode           string          `json:"action_code"`
	ClinicalInfo         string          `json:"clinical_info"`
	SpecimenDescriptor   string          `json:"specimen_descriptor"`
	OrderingPhysician    string          `json:"ordering_physician"`
	ReportedAt           string          `json:"reported_date_time"`
}

// ResultRecord is the R record.
type ResultRecord struct {
	Test           TestInformation `json:"test_information"`
	Value          string          `json:"measurement_value"`
	Units          string          `json:"units"`
	ReferenceRange string          `json:"reference_ranges"`
	AbnormalFlags  string          `json:"abnormal_flags"`
	ResultStatus   string          `json:"result_status"`
	OperatorID     string          `json:"operator_id"`
	StartedAt      string          `json:"test_started_date_time"`
	CompletedAt    string          `json:"test_completed_date_time"`
	InstrumentID   string          `json:"instrument_id"`
}

// CommentRecord is the C record.
type CommentRecord struct {
	Source string `json:"comment_source"`
	Text   string `json:"comment_text"`
	Kind   string `json:"comment_type"`
}

// TerminatorRecord is the L record.
type TerminatorRecord struct {
	TerminationCode string `json:"termination_code"`
}

// ManufacturerRecord is the M record.
type ManufacturerRecord struct {
	Info    string `json:"manufacturer_info"`
	Model   string `json:"model"`
	Version string `json:"version"`
}

// field reads a positional field, empty when absent. ASTM records are
// routinely truncated after the last populated field.
func field(fields []string, i int) string {
	if i < len(fields) {
		return fields[i]
	}

	return ""
}

func parseTestInformation(raw string) TestInformation {
	if !strings.Contains(raw, componentDelimiter) {
		return TestInformation{TestID: raw}
	}

	parts := strings.Split(raw, componentDelimiter)

	ti := TestInformation{TestID: parts[0]}
	if len(parts) > 1 {
		ti.TestName = parts[1]
	}

	if len(parts) > 2 {
		ti.TestType = parts[2]
	}

	if len(parts) > 3 {
		ti.Parameters = parts[3:]
	}

	return ti
}

func parseHeader(fields []string) *HeaderRecord {
	return &HeaderRecord{
		DelimiterDefinition: field(fields, 1),
		MessageControlID:    field(fields, 2),
		SenderName:          field(fields, 4),
		SenderAddress:       field(fields, 5),
		ReceiverID:          field(fields, 9),
		ProcessingID:        field(fields, 11),
		Version:             field(fields, 12),
		Timestamp:           field(fields, 13),
	}
}

func parsePatient(fields []string) *PatientRecord {
	return &PatientRecord{
		PracticePatientID:  field(fields, 2),
		LabPatientID:       field(fields, 3),
		Name:               field(fields, 5),
		BirthDate:          field(fields, 7),
		Sex:                field(fields, 8),
		Address:            field(fields, 10),
		Phone:              field(fields, 12),
		AttendingPhysician: field(fields, 13),
		Location:           field(fields, 25),
	}
}

func parseOrder(fields []string) *OrderRecord {
	return &OrderRecord{
		SpecimenID:           field(fields, 2),
		InstrumentSpecimenID: field(fields, 3),
		Test:                 parseTestInformation(field(fields, 4)),
		Priority:             field(fields, 5),
		RequestedAt:          field(fields, 6),
		CollectedAt:          field(fields, 7),
		ActionCode:           field(fields, 9),
		ClinicalInfo:         field(fields, 11),
		SpecimenDescriptor:   field(fields, 13),
		OrderingPhysician:    field(fields, 14),
		ReportedAt:           field(fields, 20),
	}
}

func parseResult(fields []string) *ResultRecord {
	return &ResultRecord{
		Test:           parseTestInformation(field(fields, 2)),
		Value:          field(fields, 3),
		Units:          field(fields, 4),
		ReferenceRange: field(fields, 5),
		AbnormalFlags:  field(fields, 6),
		ResultStatus:   field(fields, 8),
		OperatorID:     field(fields, 10),
		StartedAt:      field(fields, 11),
		CompletedAt:    field(fields, 12),
		InstrumentID:   field(fields, 13),
	}
}

func parseComment(fields []string) *CommentRecord {
	return &CommentRecord{
		Source: field(fields, 2),
		Text:   field(fields, 3),
		Kind:   field(fields, 4),
	}
}

func parseTerminator(fields []string) *TerminatorRecord {
	return &TerminatorRecord{TerminationCode: field(fields, 2)}
}

func parseManufacturer(fields []string) *ManufacturerRecord {
	return &ManufacturerRecord{
		Info:    field(fields, 2),
		Model:   field(fields, 3),
		Version: field(fields, 4),
	}
}
