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

// PatientInfo is the PID segment projected into a struct.
type PatientInfo struct {
	PatientID   string `json:"patient_id"`
	Name        string `json:"name"`
	DateOfBirth string `json:"date_of_birth"`
	Gender      string `json:"gender"`
	Address     string `json:"address"`
	Phone       string `json:"phone"`
}

// OrderInfo combines the OBR order detail with the ORC common order fields.
type OrderInfo struct {
	OrderNumber     string `json:"order_number"`
	UniversalTestID string `json:"universal_test_id"`
	Priority        string `json:"priority"`
	RequestedAt     string `json:"requested_at"`
	OrderingDoctor  string `json:"ordering_doctor"`
	OrderControl    string `json:"order_control"`
	PlacerOrder     string `json:"placer_order"`
	OrderStatus     string `json:"order_status"`
}

// ResultInfo is one OBX observation.
type ResultInfo struct {
	SetID          string `json:"set_id"`
	ValueType      string `json:"value_type"`
	TestCode       string `json:"test_code"`
	TestName       string `json:"test_name"`
	ObservationSub string `json:"observation_sub_id,omitempty"`
	Value          string `json:"value"`
	Units          string `json:"units"`
	ReferenceRange string `json:"reference_range"`
	AbnormalFlags  string `json:"abnormal_flags"`
	ResultStatus   string `json:"result_status"`
	ObservedAt     string `json:"observed_at"`
	OrderNumber    string `json:"order_number,omitempty"`
}

// ProcessResult is the outcome of handling one inbound message: the decoded
// content plus the acknowledgment to return to the device.
type ProcessResult struct {
	Status    string       `json:"status"`
	Type      string       `json:"type"`
	ControlID string       `json:"control_id"`
	Patient   *PatientInfo `json:"patient,omitempty"`
	Orders    []OrderInfo  `json:"orders,omitempty"`
	Results   []ResultInfo `json:"results,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	Ack       string       `json:"-"`
}

// Process decodes raw HL7 and routes it by message type. Orders and results
// are extracted into typed records; an acknowledgment is always produced,
// negative when the message cannot be decoded or the type is unsupported.
func (c *Codec) Process(raw string) *ProcessResult {
	msg, err := c.Decode(raw)
	if err != nil {
		controlID := c.ExtractControlID(raw)

		return &ProcessResult{
			Status:    "error",
			ControlID: controlID,
			Warnings:  []string{err.Error()},
			Ack:       c.BuildNak(controlID, "Message processing failed: "+err.Error()),
		}
	}

	res := &ProcessResult{
		Status:    "success",
		Type:      msg.Type,
		ControlID: msg.ControlID,
	}

	switch msg.Type {
	case "ORM":
		res.Patient = extractPatient(msg)
		res.Orders = extractOrders(msg)
	case "ORU":
		res.Patient = extractPatient(msg)
		res.Results = extractResults(msg)
	case "ADT":
		res.Patient = extractPatient(msg)
	case "QRY", "ACK":
		// Nothing to extract; acknowledged below.
	default:
		res.Status = "error"
		res.Warnings = append(res.Warnings, "unsupported message type: "+msg.Type)
		res.Ack = c.BuildNak(msg.ControlID, "Unsupported message type: "+msg.Type)

		return res
	}

	res.Ack = c.BuildAck(msg.ControlID, AckAccept, "Message processed successfully")

	return res
}

func extractPatient(msg *Message) *PatientInfo {
	pid, ok := msg.Segment("PID")
	if !ok {
		return nil
	}

	return &PatientInfo{
		PatientID:   pid.Field(3),
		Name:        pid.Field(5),
		DateOfBirth: pid.Field(7),
		Gender:      pid.Field(8),
		Address:     pid.Field(11),
		Phone:       pid.Field(13),
	}
}

func extractOrders(msg *Message) []OrderInfo {
	obrs := msg.Segments("OBR")
	orcs := msg.Segments("ORC")

	orders := make([]OrderInfo, 0, len(obrs))

	for i, obr := range obrs {
		order := OrderInfo{
			OrderNumber:     obr.Field(3),
			UniversalTestID: obr.Field(4),
			Priority:        obr.Field(6),
			RequestedAt:     obr.Field(7),
			OrderingDoctor:  obr.Field(16),
		}

		// ORC pairs with OBR positionally when both repeat.
		if i < len(orcs) {
			order.OrderControl = orcs[i].Field(1)
			order.PlacerOrder = orcs[i].Field(2)
			order.OrderStatus = orcs[i].Field(5)
		}

		orders = append(orders, order)
	}

	return orders
}

func extractResults(msg *Message) []ResultInfo {
	var orderNumber string
	if obr, ok := msg.Segment("OBR"); ok {
		orderNumber = obr.Field(3)
	}

	obxs := msg.Segments("OBX")
	results := make([]ResultInfo, 0, len(obxs))

	for _, obx := range obxs {
		ident := obx.Field(3)
		identParts := strings.Split(ident, componentSeparator)

		r := ResultInfo{
			SetID:          obx.Field(1),
			ValueType:      obx.Field(2),
			TestCode:       identParts[0],
			ObservationSub: obx.Field(4),
			Value:          obx.Field(5),
			Units:          obx.Field(6),
			ReferenceRange: obx.Field(7),
			AbnormalFlags:  obx.Field(8),
			ResultStatus:   obx.Field(11),
			ObservedAt:     obx.Field(14),
			OrderNumber:    orderNumber,
		}

		if len(identParts) > 1 {
			r.TestName = identParts[1]
		}

		results = append(results, r)
	}

	return results
}
