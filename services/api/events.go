// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/modelshelf/pkg/events"
)

const (
	eventBuffer  = 256
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// handleEvents upgrades to a websocket and streams events as JSON.
//
// ?types=download.progress,download.completed limits the stream. A client
// that cannot keep up loses progress updates rather than blocking
// publishers; every other event is delivered.
func (s *Server) handleEvents(c *gin.Context) {
	var types []events.Type
	if raw := c.Query("types"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				types = append(types, events.Type(t))
			}
		}
	}

	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Error("failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()

	queue := newEventQueue(eventBuffer)
	subID := s.emitter.Subscribe(func(ev *events.Event) {
		if !queue.push(*ev) {
			s.logger.Warn("event stream client is slow, dropping event", "type", ev.Type, "model_id", ev.ModelID)
		}
	}, types...)
	defer s.emitter.Unsubscribe(subID)
	s.logger.Info("event stream client connected", "subscription", subID)

	// The read loop only detects the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-queue.ready:
			for _, ev := range queue.drain() {
				_ = ws.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := ws.WriteJSON(ev); err != nil {
					s.logger.Warn("failed to write websocket event", "error", err)
					return
				}
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		case <-closed:
			s.logger.Info("event stream client disconnected", "subscription", subID)
			return
		case <-c.Request.Context().Done():
			return
		}
	}
}

// eventQueue buffers events for one client in publish order. Past limit it
// drops progress updates; lifecycle events are always kept so a client
// never misses how a download ended.
type eventQueue struct {
	mu    sync.Mutex
	items []events.Event
	limit int
	ready chan struct{}
}

func newEventQueue(limit int) *eventQueue {
	return &eventQueue{limit: limit, ready: make(chan struct{}, 1)}
}

// push queues ev and reports whether it was kept.
func (q *eventQueue) push(ev events.Event) bool {
	q.mu.Lock()
	if len(q.items) >= q.limit && ev.Type == events.TypeDownloadProgress {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

// drain returns the queued events and empties the queue.
func (q *eventQueue) drain() []events.Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}
