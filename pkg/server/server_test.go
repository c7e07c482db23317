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

package server

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudrakshya/LIS/pkg/catalog"
	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/registry"
	"github.com/rudrakshya/LIS/pkg/router"
)

const testAuthToken = "test-token"

type captureSink struct {
	mu     sync.Mutex
	stored []*models.InboundMessage
}

func (s *captureSink) Store(_ context.Context, msg *models.InboundMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stored = append(s.stored, msg)

	return nil
}

func (s *captureSink) messages() []*models.InboundMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.InboundMessage, len(s.stored))
	copy(out, s.stored)

	return out
}

type testEnv struct {
	server *Server
	sink   *captureSink
	router *router.Router
}

func startTestServer(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	log := logger.NewTestLogger()
	sink := &captureSink{}
	rt := router.NewRouter(sink, 64, time.Second, log)

	ctx := context.Background()
	require.NoError(t, rt.Start(ctx))

	cat := catalog.NewStaticCatalog([]models.Equipment{
		{EquipmentID: "BT1500-01", Name: "BT-1500", Protocol: models.ProtocolTCPIP, IsActive: true},
		{EquipmentID: "RETIRED-01", IsActive: false},
	})

	if cfg == nil {
		cfg = &Config{}
	}

	if cfg.ListenAddr == "" {
		cfg.ListenAddr = "127.0.0.1:0"
	}

	if cfg.AuthToken == "" {
		cfg.AuthToken = testAuthToken
	}

	srv := NewServer(cfg, registry.NewRegistry(log), cat, rt, log)
	require.NoError(t, srv.Start(ctx))

	t.Cleanup(func() {
		require.NoError(t, srv.Stop(ctx))
		require.NoError(t, rt.Stop(ctx))
	})

	return &testEnv{server: srv, sink: sink, router: rt}
}

func dialTestServer(t *testing.T, env *testEnv) net.Conn {
	t.Helper()

	conn, err := net.Dial("tcp", env.server.Addr())
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	// Consume the banner.
	assert.Equal(t, "LIS_READY\r\n", readChunk(t, conn))

	return conn
}

func readChunk(t *testing.T, conn net.Conn) string {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 4096)

	n, err := conn.Read(buf)
	require.NoError(t, err)

	return string(buf[:n])
}

func send(t *testing.T, conn net.Conn, msg string) {
	t.Helper()

	_, err := conn.Write([]byte(msg + "\r\n"))
	require.NoError(t, err)
}

func exchange(t *testing.T, conn net.Conn, msg string) string {
	t.Helper()

	send(t, conn, msg)

	return readChunk(t, conn)
}

func authenticate(t *testing.T, conn net.Conn) {
	t.Helper()

	require.Equal(t, "AUTH_OK\r\n", exchange(t, conn, "AUTH:"+testAuthToken))
}

func TestAuthenticationFlow(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)

	assert.Equal(t, "AUTH_FAILED\r\n", exchange(t, conn, "AUTH:wrong-token"))

	// The connection survives a failed attempt.
	authenticate(t, conn)

	assert.Equal(t, "PONG\r\n", exchange(t, conn, "PING"))
}

func TestUnauthenticatedMessagesRejected(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)

	assert.Equal(t, "AUTH_REQUIRED\r\n", exchange(t, conn, "MSH|^~\\&|A|B|C|D|1||ORM^O01|1|P|2.5"))

	// Still open: authentication succeeds afterwards.
	authenticate(t, conn)
}

func TestDeviceIdentification(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	assert.Equal(t, "DEVICE_UNKNOWN\r\n", exchange(t, conn, "DEVICE_ID:nope"))
	assert.Equal(t, "DEVICE_UNKNOWN\r\n", exchange(t, conn, "DEVICE_ID:RETIRED-01"))
	assert.Equal(t, "DEVICE_OK\r\n", exchange(t, conn, "DEVICE_ID:BT1500-01"))

	_, ok := env.server.registry.Get("BT1500-01")
	assert.True(t, ok)
}

func TestHL7MessageAcknowledgedAndRouted(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)
	require.Equal(t, "DEVICE_OK\r\n", exchange(t, conn, "DEVICE_ID:BT1500-01"))

	ack := exchange(t, conn, "MSH|^~\\&|ANALYZER|LAB|LIS|HOSPITAL|20250314092653||ORU^R01|12345|P|2.5")
	assert.Contains(t, ack, "MSA|AA|12345")

	require.Eventually(t, func() bool {
		return len(env.sink.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	msgs := env.sink.messages()
	assert.Equal(t, models.KindHL7, msgs[0].Kind)
	assert.Equal(t, "BT1500-01", msgs[0].DeviceID)
	assert.Contains(t, msgs[0].Content, "ORU^R01")
}

func TestASTMMessageAcknowledged(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	reply := exchange(t, conn, "R|1|GLU^Glucose|120|mg/dL")
	assert.Equal(t, "\x06", reply)

	require.Eventually(t, func() bool {
		return len(env.sink.messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, models.KindASTM, env.sink.messages()[0].Kind)
}

func TestJSONMessage(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	reply := exchange(t, conn, `{"equipment_id":"BT1500-01","status":"online"}`)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(reply)), &decoded))
	assert.Equal(t, "received", decoded["status"])
}

func TestStatusCommand(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)
	require.Equal(t, "DEVICE_OK\r\n", exchange(t, conn, "DEVICE_ID:BT1500-01"))

	reply := exchange(t, conn, "STATUS")

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(reply)), &status))

	assert.Equal(t, "BT1500-01", status["device_id"])
	assert.Equal(t, true, status["authenticated"])
	assert.NotZero(t, status["message_count"])
}

func TestDisconnectCommand(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	assert.Equal(t, "BYE\r\n", exchange(t, conn, "DISCONNECT"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	_, err := conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestErrorBudgetDisconnects(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	// Messages that classify as HL7 but carry no usable type draw a NAK
	// and count against the budget.
	for i := 0; i < 6; i++ {
		reply := exchange(t, conn, "MSH|^~\\&|broken")
		assert.Contains(t, reply, "MSA|AE")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	_, err := conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestIdleTimeout(t *testing.T) {
	env := startTestServer(t, &Config{IdleTimeout: models.Duration(200 * time.Millisecond)})
	conn := dialTestServer(t, env)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 64)

	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "TIMEOUT\r\n", string(buf[:n]))

	_, err = conn.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReplacementSessionEvictsPrior(t *testing.T) {
	env := startTestServer(t, nil)

	first := dialTestServer(t, env)
	authenticate(t, first)
	require.Equal(t, "DEVICE_OK\r\n", exchange(t, first, "DEVICE_ID:BT1500-01"))

	second := dialTestServer(t, env)
	authenticate(t, second)
	require.Equal(t, "DEVICE_OK\r\n", exchange(t, second, "DEVICE_ID:BT1500-01"))

	// The first connection is closed by the eviction.
	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))

	buf := make([]byte, 16)
	_, err := first.Read(buf)
	assert.ErrorIs(t, err, io.EOF)

	// The replacement still works.
	assert.Equal(t, "PONG\r\n", exchange(t, second, "PING"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    models.MessageKind
	}{
		{"MSH|^~\\&|A|B", models.KindHL7},
		{"H|\\^&|||BT1500", models.KindASTM},
		{"P|1||PAT001", models.KindASTM},
		{"O|1|SPEC01", models.KindASTM},
		{"R|1|GLU^Glucose|120", models.KindASTM},
		{"L|1|N", models.KindASTM},
		{`{"status":"online"}`, models.KindJSON},
		{"PING", models.KindCommand},
		{"ping", models.KindCommand},
		{"STATUS", models.KindCommand},
		{"DISCONNECT", models.KindCommand},
		{"hello analyzer", models.KindRaw},
		{"C|1|comment", models.KindRaw},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.message), "message %q", tt.message)
	}
}

func TestServerStats(t *testing.T) {
	env := startTestServer(t, nil)
	conn := dialTestServer(t, env)
	authenticate(t, conn)

	assert.Equal(t, "PONG\r\n", exchange(t, conn, "PING"))
	assert.Contains(t, exchange(t, conn, "MSH|^~\\&|broken"), "MSA|AE")

	stats := env.server.Stats()
	assert.Equal(t, 1, stats.ActiveSessions)
	assert.Equal(t, uint64(1), stats.Accepted)
	assert.Equal(t, uint64(3), stats.Messages)
	assert.Equal(t, uint64(1), stats.Errors)
}
