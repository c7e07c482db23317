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

// Package router decouples protocol decoding from downstream persistence.
// Sessions enqueue decoded messages and return to the wire immediately; a
// single consumer drains the queue in FIFO order into the configured sink.
package router

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rudrakshya/LIS/pkg/logger"
	"github.com/rudrakshya/LIS/pkg/models"
)

// ErrQueueFull is returned by Publish when the queue stayed full past the
// enqueue wait. The message is dropped.
var ErrQueueFull = errors.New("message queue full")

// ErrRouterStopped is returned by Publish after Stop.
var ErrRouterStopped = errors.New("router stopped")

const (
	defaultQueueSize   = 1024
	defaultEnqueueWait = 2 * time.Second
)

// Sink consumes routed messages. A Store error is logged and does not stop
// the consumer; at-least-once-attempted, not guaranteed delivery.
type Sink interface {
	Store(ctx context.Context, msg *models.InboundMessage) error
}

// Stats is a snapshot of router counters.
type Stats struct {
	Published uint64 `json:"published"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
	Queued    int    `json:"queued"`
}

// Router is the bounded FIFO queue between sessions and the sink.
type Router struct {
	queue       chan *models.InboundMessage
	sink        Sink
	logger      logger.Logger
	enqueueWait time.Duration

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRouter builds a Router draining into sink. queueSize <= 0 and
// enqueueWait <= 0 take defaults.
func NewRouter(sink Sink, queueSize int, enqueueWait time.Duration, log logger.Logger) *Router {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}

	if enqueueWait <= 0 {
		enqueueWait = defaultEnqueueWait
	}

	return &Router{
		queue:       make(chan *models.InboundMessage, queueSize),
		sink:        sink,
		logger:      log,
		enqueueWait: enqueueWait,
		done:        make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (r *Router) Start(ctx context.Context) error {
	r.wg.Add(1)

	go r.consume(ctx)

	r.logger.Info().Int("queue_size", cap(r.queue)).Msg("Message router started")

	return nil
}

// Publish enqueues a message for downstream processing. When the queue is
// full it waits up to the configured bound, then drops the message with an
// error; a slow sink must never stall the wire acknowledgment indefinitely.
func (r *Router) Publish(msg *models.InboundMessage) error {
	select {
	case <-r.done:
		return ErrRouterStopped
	default:
	}

	select {
	case r.queue <- msg:
		r.published.Add(1)

		return nil
	default:
	}

	timer := time.NewTimer(r.enqueueWait)
	defer timer.Stop()

	select {
	case r.queue <- msg:
		r.published.Add(1)

		return nil
	case <-r.done:
		return ErrRouterStopped
	case <-timer.C:
		r.dropped.Add(1)
		r.logger.Error().
			Str("device_id", msg.DeviceID).
			Str("kind", string(msg.Kind)).
			Msg("Queue full, dropping message")

		return ErrQueueFull
	}
}

func (r *Router) consume(ctx context.Context) {
	defer r.wg.Done()

	for {
		select {
		case <-r.done:
			// Drain what is already queued before exiting.
			for {
				select {
				case msg := <-r.queue:
					r.deliver(ctx, msg)
				default:
					return
				}
			}
		case msg := <-r.queue:
			r.deliver(ctx, msg)
		}
	}
}

func (r *Router) deliver(ctx context.Context, msg *models.InboundMessage) {
	if err := r.sink.Store(ctx, msg); err != nil {
		r.failed.Add(1)
		r.logger.Error().
			Err(err).
			Str("message_id", msg.ID).
			Str("device_id", msg.DeviceID).
			Msg("Failed to store message")

		return
	}

	r.delivered.Add(1)
}

// Stop shuts the consumer down after it drains the queue. Safe to call more
// than once.
func (r *Router) Stop(_ context.Context) error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.wg.Wait()

	return nil
}

// Stats returns a snapshot of the router's counters.
func (r *Router) Stats() Stats {
	return Stats{
		Published: r.published.Load(),
		Delivered: r.delivered.Load(),
		Dropped:   r.dropped.Load(),
		Failed:    r.failed.Load(),
		Queued:    len(r.queue),
	}
}
