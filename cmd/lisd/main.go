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

// lisd is the analyzer-integration daemon: it accepts TCP connections from
// laboratory instruments, listens on serial ports for BT-1500 reports, and
// routes every decoded message downstream.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rudrakshya/LIS/pkg/catalog"
	"github.com/rudrakshya/LIS/pkg/config"
	"github.com/rudrakshya/LIS/pkg/device"
	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
	"github.com/rudrakshya/LIS/pkg/monitor"
	"github.com/rudrakshya/LIS/pkg/registry"
	"github.com/rudrakshya/LIS/pkg/router"
	"github.com/rudrakshya/LIS/pkg/server"
	"github.com/rudrakshya/LIS/pkg/sink"
)

// NATSConfig names the broker and stream messages publish to. An empty URL
// selects the log-only sink.
type NATSConfig struct {
	URL    string `json:"url,omitempty"`
	Stream string `json:"stream,omitempty"`
}

// AppConfig is the daemon's configuration file shape.
type AppConfig struct {
	Server          server.Config      `json:"server"`
	NATS            NATSConfig         `json:"nats,omitempty"`
	Equipment       []models.Equipment `json:"equipment,omitempty"`
	QueueSize       int                `json:"queue_size,omitempty"`
	EnqueueWait     models.Duration    `json:"enqueue_wait,omitempty"`
	MonitorInterval models.Duration    `json:"monitor_interval,omitempty"`
	Logging         *logger.Config     `json:"logging,omitempty"`
}

// Validate implements config validation.
func (c *AppConfig) Validate() error {
	return c.Server.Validate()
}

const defaultStream = "LIS_MESSAGES"

func main() {
	configPath := flag.String("config", "/etc/lis/lisd.json", "Path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatalf("lisd: %v", err)
	}
}

func run(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bootLog := logger.NewComponentLogger("config")

	var cfg AppConfig

	cfgLoader := config.NewConfig(bootLog)
	if err := cfgLoader.LoadAndValidate(ctx, configPath, &cfg); err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}

	mainLog := logger.NewComponentLogger("lisd")

	// Downstream sink: NATS JetStream when configured, log-only otherwise.
	var msgSink router.Sink

	if cfg.NATS.URL != "" {
		stream := cfg.NATS.Stream
		if stream == "" {
			stream = defaultStream
		}

		natsSink, nc, err := sink.Connect(ctx, cfg.NATS.URL, stream,
			logger.NewComponentLogger("sink"), nats.Name("lisd"))
		if err != nil {
			return err
		}

		defer nc.Close()

		msgSink = natsSink
	} else {
		mainLog.Warn().Msg("No NATS broker configured, messages will only be logged")

		msgSink = sink.NewLogSink(logger.NewComponentLogger("sink"))
	}

	rt := router.NewRouter(msgSink, cfg.QueueSize, time.Duration(cfg.EnqueueWait),
		logger.NewComponentLogger("router"))
	if err := rt.Start(ctx); err != nil {
		return err
	}

	reg := registry.NewRegistry(logger.NewComponentLogger("registry"))
	cat := catalog.NewStaticCatalog(cfg.Equipment)

	srv := server.NewServer(&cfg.Server, reg, cat, rt, logger.NewComponentLogger("server"))
	if err := srv.Start(ctx); err != nil {
		return err
	}

	mon := monitor.NewMonitor(time.Duration(cfg.MonitorInterval), reg,
		logger.NewComponentLogger("monitor"))

	// Serial analyzers get a listener each; TCP analyzers the LIS dials get
	// a supervised connector.
	var listeners []*device.SerialListener

	for _, eq := range cat.Active() {
		connLog := logger.NewComponentLogger("device")

		switch eq.Protocol {
		case models.ProtocolSerial:
			l := device.NewSerialListener(device.NewConnector(eq, connLog), rt, connLog)
			if err := l.Start(ctx); err != nil {
				mainLog.Error().
					Err(err).
					Str("equipment_id", eq.EquipmentID).
					Msg("Serial listener failed to start, monitor will retry via connector")

				continue
			}

			listeners = append(listeners, l)
		case models.ProtocolTCPIP, models.ProtocolHL7Net:
			if eq.Host == "" {
				// Inbound-only device; it dials us.
				continue
			}

			mon.Watch(device.NewConnector(eq, connLog))
		}
	}

	if err := mon.Start(ctx); err != nil {
		return err
	}

	mainLog.Info().Str("listen_addr", srv.Addr()).Msg("lisd running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	mainLog.Info().Str("signal", sig.String()).Msg("Shutting down")

	// Background tasks first, then live connections, then the listener.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := mon.Stop(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Monitor shutdown failed")
	}

	for _, l := range listeners {
		if err := l.Stop(shutdownCtx); err != nil {
			mainLog.Error().Err(err).Msg("Serial listener shutdown failed")
		}
	}

	if err := rt.Stop(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Router shutdown failed")
	}

	if err := srv.Stop(shutdownCtx); err != nil {
		mainLog.Error().Err(err).Msg("Server shutdown failed")
	}

	mainLog.Info().Msg("Shutdown complete")

	return nil
}
