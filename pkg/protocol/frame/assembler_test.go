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

package frame

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLineAssemblerSingleMessage(t *testing.T) {
	a := NewLineAssembler(0)

	msgs, err := a.Feed([]byte("PING\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"PING"}, msgs)
	assert.Zero(t, a.Pending())
}

func TestLineAssemblerSplitAcrossChunks(t *testing.T) {
	a := NewLineAssembler(0)

	msgs, err := a.Feed([]byte("MSH|^~\\&|ANA"))
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Positive(t, a.Pending())

	msgs, err = a.Feed([]byte("LYZER|LAB|12345\r"))
	require.NoError(t, err)
	assert.Empty(t, msgs)

	msgs, err = a.Feed([]byte("\n"))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "MSH|^~\\&|ANALYZER|LAB|12345", msgs[0])
	assert.Zero(t, a.Pending())
}

func TestLineAssemblerMultipleQueuedMessages(t *testing.T) {
	a := NewLineAssembler(0)

	msgs, err := a.Feed([]byte("PING\r\nSTATUS\r\npartial"))
	require.NoError(t, err)

	assert.Equal(t, []string{"PING", "STATUS"}, msgs)
	assert.Equal(t, len("partial"), a.Pending())

	msgs, err = a.Feed([]byte("\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"partial"}, msgs)
}

func TestLineAssemblerDropsEmptyLines(t *testing.T) {
	a := NewLineAssembler(0)

	msgs, err := a.Feed([]byte("\r\n\r\nPING\r\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"PING"}, msgs)
}

func TestLineAssemblerOverflow(t *testing.T) {
	a := NewLineAssembler(16)

	_, err := a.Feed([]byte(strings.Repeat("x", 32)))
	assert.ErrorIs(t, err, ErrBufferOverflow)
	assert.Zero(t, a.Pending())

	// Recovers after the reset.
	msgs, err := a.Feed([]byte("PING\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"PING"}, msgs)
}

const sampleReport = "ANALYZE REPORT\n" +
	"31-Oct-13 12:18:29\n" +
	"Na =140.231 mmol/L\n" +
	"K  =  4.102 mmol/L\n" +
	"_ _ _ _ _ _ _ _ _\n"

func TestReportAssemblerCompleteReport(t *testing.T) {
	a := NewReportAssembler(0)

	report, ok, err := a.Feed([]byte(sampleReport))
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, sampleReport, report)
	assert.Zero(t, a.Pending())
}

func TestReportAssemblerWaitsForBothMarkers(t *testing.T) {
	a := NewReportAssembler(0)

	// Timestamp alone is not completion.
	_, ok, err := a.Feed([]byte("ANALYZE REPORT\n31-Oct-13 12:18:29\nNa =140.231 mmol/L\n"))
	require.NoError(t, err)
	assert.False(t, ok)

	// Separator run arrives split across two chunks.
	_, ok, err = a.Feed([]byte("_ _ _ _ "))
	require.NoError(t, err)
	assert.False(t, ok)

	report, ok, err := a.Feed([]byte("_ _ _ _ _\n"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, report, "Na =140.231 mmol/L")
	assert.Zero(t, a.Pending())
}

func TestReportAssemblerOverflowResets(t *testing.T) {
	a := NewReportAssembler(64)

	_, ok, err := a.Feed([]byte(strings.Repeat("noise ", 20)))
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrBufferOverflow)
	assert.Zero(t, a.Pending())

	// A full report after the reset still completes.
	report, ok, err := a.Feed([]byte(sampleReport))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, sampleReport, report)
}
