/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/friendsincode/marquee/internal/logbuffer"
	"github.com/friendsincode/marquee/internal/schedule"
	"github.com/friendsincode/marquee/internal/version"
)

const maxCommandBody = 64 << 10

type statusResponse struct {
	Time           time.Time        `json:"time"`
	Version        string           `json:"version"`
	Update         any              `json:"update,omitempty"`
	CurrentAssetID string           `json:"current_asset_id"`
	Playlist       any              `json:"playlist,omitempty"`
	Schedule       *schedule.Status `json:"schedule,omitempty"`
	TV             any              `json:"tv,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Time: s.now(), Version: version.Version}
	if s.deps.Updates != nil {
		if info := s.deps.Updates.Info(); info.UpdateAvailable {
			resp.Update = info
		}
	}
	if s.deps.Scheduler != nil {
		snap := s.deps.Scheduler.Snapshot()
		resp.CurrentAssetID = snap.CurrentAssetID
		resp.Playlist = snap
	}
	if s.deps.Slots != nil {
		slots, err := s.deps.Slots.ListSlots(r.Context())
		if err != nil {
			s.logger.Error().Err(err).Msg("status: list slots")
			writeError(w, http.StatusInternalServerError, "catalog_unavailable")
			return
		}
		st := schedule.StatusAt(resp.Time, slots)
		resp.Schedule = &st
	}
	if s.deps.TV != nil {
		resp.TV = s.deps.TV.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	if s.deps.Slots == nil {
		writeError(w, http.StatusServiceUnavailable, "catalog_unavailable")
		return
	}
	slots, err := s.deps.Slots.ListSlots(r.Context())
	if err != nil {
		s.logger.Error().Err(err).Msg("schedule: list slots")
		writeError(w, http.StatusInternalServerError, "catalog_unavailable")
		return
	}
	summaries := make([]schedule.SlotSummary, 0, len(slots))
	for _, slot := range slots {
		summaries = append(summaries, schedule.Summarize(slot))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": schedule.StatusAt(s.now(), slots),
		"slots":  summaries,
	})
}

func (s *Server) handleTV(w http.ResponseWriter, r *http.Request) {
	if s.deps.TV == nil {
		writeError(w, http.StatusServiceUnavailable, "tv_control_disabled")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.TV.Status(r.Context()))
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.History.Recent(limit))
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.Logs == nil {
		writeError(w, http.StatusServiceUnavailable, "log_buffer_disabled")
		return
	}
	q := logbuffer.Query{
		Level:     r.URL.Query().Get("level"),
		Component: r.URL.Query().Get("component"),
		Search:    r.URL.Query().Get("q"),
		Limit:     queryInt(r, "limit", 200),
	}
	if since := r.URL.Query().Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_since")
			return
		}
		q.Since = t
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": s.deps.Logs.Find(q),
		"stats":   s.deps.Logs.Stats(),
	})
}

// handleCommand accepts the same message forms as the remote transports.
func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	if s.deps.Commands == nil {
		writeError(w, http.StatusServiceUnavailable, "commands_disabled")
		return
	}
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxCommandBody))
	if err != nil || len(raw) == 0 {
		writeError(w, http.StatusBadRequest, "empty_command")
		return
	}
	reply := s.deps.Commands(r.Context(), raw, "http")
	if reply == nil {
		w.WriteHeader(http.StatusAccepted)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
