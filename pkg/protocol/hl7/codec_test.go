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

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCodec() *Codec {
	c := NewCodec()
	c.now = func() time.Time {
		return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC)
	}

	return c
}

const sampleORM = "MSH|^~\\&|ANALYZER|LAB|LIS|HOSPITAL|20250314092653||ORM^O01|12345|P|2.5\r" +
	"PID|1||PAT001||DOE^JOHN||19800101|M\r" +
	"ORC|NW|ORD123|||SC\r" +
	"OBR|1|ORD123||GLU^Glucose||R|20250314092000|||||||||DR_SMITH\r"

func TestDecodeORM(t *testing.T) {
	c := newTestCodec()

	msg, err := c.Decode(sampleORM)
	require.NoError(t, err)

	assert.Equal(t, "ORM", msg.Type)
	assert.Equal(t, "O01", msg.TriggerEvent)
	assert.Equal(t, "12345", msg.ControlID)
	assert.Equal(t, "ANALYZER", msg.SendingApplication)
	assert.Equal(t, "LAB", msg.SendingFacility)
	assert.Equal(t, "2.5", msg.VersionID)

	msh, ok := msg.Segment("MSH")
	require.True(t, ok)
	assert.Equal(t, "|", msh.Field(1))
	assert.Equal(t, `^~\&`, msh.Field(2))
	assert.Equal(t, "ORM^O01", msh.Field(9))
}

func TestDecodeNormalizesLineEndings(t *testing.T) {
	c := newTestCodec()

	for _, sep := range []string{"\r", "\n", "\r\n"} {
		raw := strings.ReplaceAll(sampleORM, "\r", sep)

		msg, err := c.Decode(raw)
		require.NoError(t, err)
		assert.Len(t, msg.All(), 4)
	}
}

func TestDecodeErrors(t *testing.T) {
	c := newTestCodec()

	_, err := c.Decode("")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = c.Decode("   \r\n  ")
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = c.Decode("PID|1||PAT001\r")
	assert.ErrorIs(t, err, ErrMissingMSH)
}

func TestBuildAckRoundtrip(t *testing.T) {
	c := newTestCodec()

	ack := c.BuildAck("12345", AckAccept, "Message processed successfully")

	msg, err := c.Decode(ack)
	require.NoError(t, err)

	assert.Equal(t, "ACK", msg.Type)

	msa, ok := msg.Segment("MSA")
	require.True(t, ok)
	assert.Equal(t, "AA", msa.Field(1))
	assert.Equal(t, "12345", msa.Field(2))
}

func TestBuildNak(t *testing.T) {
	c := newTestCodec()

	nak := c.BuildNak("99", "boom")

	msg, err := c.Decode(nak)
	require.NoError(t, err)

	msa, ok := msg.Segment("MSA")
	require.True(t, ok)
	assert.Equal(t, "AE", msa.Field(1))
	assert.Equal(t, "99", msa.Field(2))
	assert.Equal(t, "boom", msa.Field(3))
}

func TestProcessORM(t *testing.T) {
	c := newTestCodec()

	res := c.Process(sampleORM)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "ORM", res.Type)
	assert.Equal(t, "12345", res.ControlID)

	require.NotNil(t, res.Patient)
	assert.Equal(t, "PAT001", res.Patient.PatientID)
	assert.Equal(t, "DOE^JOHN", res.Patient.Name)

	require.Len(t, res.Orders, 1)
	assert.Equal(t, "ORD123", res.Orders[0].OrderNumber)
	assert.Equal(t, "GLU^Glucose", res.Orders[0].UniversalTestID)
	assert.Equal(t, "DR_SMITH", res.Orders[0].OrderingDoctor)
	assert.Equal(t, "NW", res.Orders[0].OrderControl)

	ack, err := c.Decode(res.Ack)
	require.NoError(t, err)

	msa, ok := ack.Segment("MSA")
	require.True(t, ok)
	assert.Equal(t, "AA", msa.Field(1))
	assert.Equal(t, "12345", msa.Field(2))
}

func TestProcessORUMultipleResults(t *testing.T) {
	c := newTestCodec()

	const n = 5

	var sb strings.Builder

	sb.WriteString("MSH|^~\\&|ANALYZER|LAB|LIS|HOSPITAL|20250314092653||ORU^R01|777|P|2.5\r")
	sb.WriteString("PID|1||PAT002||ROE^JANE\r")
	sb.WriteString("OBR|1|ORD500||PANEL^Chem Panel\r")

	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "OBX|%d|NM|T%d^Test %d||%d|mg/dL|10-20|N|||F\r", i, i, i, i*10)
	}

	res := c.Process(sb.String())

	assert.Equal(t, "success", res.Status)
	require.Len(t, res.Results, n)

	for i, r := range res.Results {
		assert.Equal(t, fmt.Sprintf("%d", i+1), r.SetID)
		assert.Equal(t, fmt.Sprintf("T%d", i+1), r.TestCode)
		assert.Equal(t, fmt.Sprintf("Test %d", i+1), r.TestName)
		assert.Equal(t, fmt.Sprintf("%d", (i+1)*10), r.Value)
		assert.Equal(t, "mg/dL", r.Units)
		assert.Equal(t, "ORD500", r.OrderNumber)
	}
}

func TestTruncatedPIDReadsEmpty(t *testing.T) {
	c := newTestCodec()

	raw := "MSH|^~\\&|A|B|C|D|20250314092653||ADT^A01|55|P|2.5\r" +
		"PID|1||PAT003\r"

	res := c.Process(raw)

	assert.Equal(t, "success", res.Status)
	require.NotNil(t, res.Patient)
	assert.Equal(t, "PAT003", res.Patient.PatientID)
	assert.Empty(t, res.Patient.Name)
	assert.Empty(t, res.Patient.DateOfBirth)
	assert.Empty(t, res.Patient.Gender)
}

func TestProcessUnsupportedType(t *testing.T) {
	c := newTestCodec()

	raw := "MSH|^~\\&|A|B|C|D|20250314092653||ZZZ^Z01|42|P|2.5\r"

	res := c.Process(raw)

	assert.Equal(t, "error", res.Status)
	require.NotEmpty(t, res.Warnings)
	assert.Contains(t, res.Warnings[0], "unsupported message type")

	ack, err := c.Decode(res.Ack)
	require.NoError(t, err)

	msa, ok := ack.Segment("MSA")
	require.True(t, ok)
	assert.Equal(t, "AE", msa.Field(1))
	assert.Equal(t, "42", msa.Field(2))
}

func TestProcessMalformedStillReferencesControlID(t *testing.T) {
	c := newTestCodec()

	res := c.Process("not an hl7 message")

	assert.Equal(t, "error", res.Status)
	assert.Equal(t, unknownControlID, res.ControlID)
	assert.Contains(t, res.Ack, "MSA|AE|UNKNOWN")
}

func TestGenerateOrderDecodes(t *testing.T) {
	c := newTestCodec()

	raw := c.GenerateOrder("BT1500-01", OrderRequest{
		PatientID:   "PAT009",
		OrderNumber: "ORD900",
		TestCode:    "NA",
		TestName:    "Sodium",
	})

	msg, err := c.Decode(raw)
	require.NoError(t, err)

	assert.Equal(t, "ORM", msg.Type)
	assert.Equal(t, "O01", msg.TriggerEvent)
	assert.Equal(t, "BT1500-01", msg.ReceivingApplication)

	obr, ok := msg.Segment("OBR")
	require.True(t, ok)
	assert.Equal(t, "ORD900", obr.Field(2))
	assert.Equal(t, "NA^Sodium", obr.Field(4))

	orc, ok := msg.Segment("ORC")
	require.True(t, ok)
	assert.Equal(t, "NW", orc.Field(1))
	assert.Equal(t, "ORD900", orc.Field(2))
}

func TestGenerateResultDecodes(t *testing.T) {
	c := newTestCodec()

	raw := c.GenerateResult(
		PatientInfo{PatientID: "PAT010", Name: "DOE^JOHN", DateOfBirth: "19800101", Gender: "M"},
		[]ResultInfo{
			{OrderNumber: "ORD1", TestCode: "NA", TestName: "Sodium", Value: "140", Units: "mmol/L", ReferenceRange: "135-145", AbnormalFlags: "N"},
			{OrderNumber: "ORD1", TestCode: "K", TestName: "Potassium", Value: "4.1", Units: "mmol/L", ReferenceRange: "3.5-5.1", AbnormalFlags: "N"},
		})

	res := c.Process(raw)

	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "ORU", res.Type)
	require.Len(t, res.Results, 2)
	assert.Equal(t, "1", res.Results[0].SetID)
	assert.Equal(t, "NA", res.Results[0].TestCode)
	assert.Equal(t, "2", res.Results[1].SetID)
	assert.Equal(t, "K", res.Results[1].TestCode)
}

func TestExtractControlID(t *testing.T) {
	c := newTestCodec()

	assert.Equal(t, "12345", c.ExtractControlID(sampleORM))
	assert.Equal(t, unknownControlID, c.ExtractControlID("garbage"))
	assert.Equal(t, unknownControlID, c.ExtractControlID("MSH|^~\\&|short"))
}

func TestSegmentComponent(t *testing.T) {
	c := newTestCodec()

	msg, err := c.Decode(sampleORM)
	require.NoError(t, err)

	pid, ok := msg.Segment("PID")
	require.True(t, ok)
	assert.Equal(t, "DOE", pid.Component(5, 1))
	assert.Equal(t, "JOHN", pid.Component(5, 2))
	assert.Empty(t, pid.Component(5, 3))
}
