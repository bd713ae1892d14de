// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file contains the live websocket feed. The hub broadcasts each
// trend sample to every connected dashboard; dead connections drop on
// the first failed write.
package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/FleetCore/pkg/logging"
	"github.com/AleutianAI/FleetCore/services/fleetcore/datatypes"
	"github.com/AleutianAI/FleetCore/services/fleetcore/observability"
)

// liveWriteTimeout bounds each broadcast write so one stalled client
// cannot block the hub.
const liveWriteTimeout = 5 * time.Second

var liveUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// LiveHub fans trend samples out to the connected websocket clients.
//
// # Thread Safety
//
// Safe for concurrent use.
type LiveHub struct {
	log *logging.Logger
	obs *observability.PipelineMetrics

	mu    sync.Mutex
	conns map[*websocket.Conn]bool
}

// NewLiveHub builds an empty hub.
func NewLiveHub(obs *observability.PipelineMetrics, log *logging.Logger) *LiveHub {
	if log == nil {
		log = logging.Default()
	}
	return &LiveHub{
		log:   log,
		obs:   obs,
		conns: make(map[*websocket.Conn]bool),
	}
}

// Broadcast sends one sample to every client, pruning connections whose
// write fails. Wired as the trend recorder's OnSample callback.
func (h *LiveHub) Broadcast(point datatypes.TrendPoint) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		if err := conn.WriteJSON(point); err != nil {
			h.log.Debug("Live feed client dropped", "error", err)
			conn.Close()
			delete(h.conns, conn)
		}
	}
	h.setGaugeLocked()
}

// Count reports the connected client total.
func (h *LiveHub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

func (h *LiveHub) add(conn *websocket.Conn) {
	h.mu.Lock()
	h.conns[conn] = true
	h.setGaugeLocked()
	h.mu.Unlock()
}

func (h *LiveHub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.conns, conn)
	h.setGaugeLocked()
	h.mu.Unlock()
}

func (h *LiveHub) setGaugeLocked() {
	if h.obs != nil {
		h.obs.LiveFeedClients.Set(float64(len(h.conns)))
	}
}

// HandleLive upgrades the connection and keeps it registered until the
// client disconnects. The feed is one-way; inbound messages are
// discarded.
func HandleLive(h *LiveHub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := liveUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			h.log.Warn("Live feed upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		h.add(conn)
		defer h.remove(conn)
		h.log.Debug("Live feed client connected", "clients", h.Count())

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}
}
