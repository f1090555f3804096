// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kadirpekel/deepquest/pkg/checkpoint"
	"github.com/kadirpekel/deepquest/pkg/fault"
	"github.com/kadirpekel/deepquest/pkg/stream"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type researchRequest struct {
	ID       string        `json:"id,omitempty"`
	Messages []chatMessage `json:"messages"`
}

type checkpointRequest struct {
	SessionID    string `json:"sessionId"`
	CheckpointID string `json:"checkpointId"`
	Action       string `json:"action"`
	Data         string `json:"data,omitempty"`
}

// handleResearch starts a session and streams its frames as ndjson
// until the pipeline finishes or the client goes away. The pipeline
// itself runs detached from the request context so a dropped stream
// does not kill the research; /api/sessions/{id}/abort does that.
func (s *Server) handleResearch(w http.ResponseWriter, r *http.Request) {
	if s.cfg.ReadyCheck != nil {
		if err := s.cfg.ReadyCheck(); err != nil {
			writeError(w, err)
			return
		}
	}

	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.KindValidation, "invalid request body: %v", err))
		return
	}
	query := lastUserMessage(req.Messages)
	if query == "" {
		writeError(w, fault.New(fault.KindValidation, "no user message in request"))
		return
	}

	sess, err := s.sessions.Create(req.ID, query)
	if err != nil {
		writeError(w, err)
		return
	}
	go s.runner.Run(context.Background(), sess)

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, fault.New(fault.KindInternal, "streaming unsupported by transport"))
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Session-Id", sess.ID)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	enc := json.NewEncoder(w)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	writeFrame := func(f stream.Frame) bool {
		if err := enc.Encode(f); err != nil {
			slog.Debug("client stream write failed", "session", sess.ID, "error", err)
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case f := <-sess.Writer.Frames():
			if !writeFrame(f) {
				return
			}
		case <-ticker.C:
			// Keep idle connections alive while a slow stage works.
			if time.Since(sess.Writer.LastActivity()) >= s.cfg.HeartbeatInterval {
				if !writeFrame(stream.Heartbeat()) {
					return
				}
			}
		case <-sess.Writer.Done():
			for {
				select {
				case f := <-sess.Writer.Frames():
					if !writeFrame(f) {
						return
					}
				default:
					return
				}
			}
		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.New(fault.KindValidation, "invalid request body: %v", err))
		return
	}

	action, err := parseAction(req.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, ok := s.sessions.Get(req.SessionID)
	if !ok {
		writeNotFound(w, req.SessionID)
		return
	}
	if cp := sess.Checkpoint(); cp != nil && cp.ID != req.CheckpointID {
		writeJSON(w, http.StatusConflict, map[string]string{
			"error": "checkpoint " + req.CheckpointID + " is not pending for session " + req.SessionID,
		})
		return
	}

	if err := s.sessions.ResolveCheckpoint(req.SessionID, req.CheckpointID, checkpoint.Resolution{
		Action: action,
		Data:   req.Data,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAbort(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.sessions.Get(id); !ok {
		writeNotFound(w, id)
		return
	}
	s.sessions.Abort(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "aborted"})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	sess, ok := s.sessions.Get(id)
	if !ok {
		writeNotFound(w, id)
		return
	}

	body := map[string]any{
		"id":    sess.ID,
		"query": sess.Query,
		"state": string(sess.State()),
	}
	if msg := sess.Err(); msg != "" {
		body["error"] = msg
	}
	if cp := sess.Checkpoint(); cp != nil {
		body["checkpoint"] = cp
	}
	writeJSON(w, http.StatusOK, body)
}

func parseAction(raw string) (checkpoint.Action, error) {
	switch checkpoint.Action(strings.ToLower(raw)) {
	case checkpoint.ActionApprove:
		return checkpoint.ActionApprove, nil
	case checkpoint.ActionEdit:
		return checkpoint.ActionEdit, nil
	case checkpoint.ActionIterate:
		return checkpoint.ActionIterate, nil
	default:
		return "", fault.New(fault.KindValidation, "unknown checkpoint action %q", raw)
	}
}

func lastUserMessage(messages []chatMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == "user" {
			return strings.TrimSpace(messages[i].Content)
		}
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeNotFound(w http.ResponseWriter, id string) {
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown session " + id})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch fault.Classify(err) {
	case fault.KindValidation:
		status = http.StatusBadRequest
	case fault.KindRateLimit:
		status = http.StatusTooManyRequests
	case fault.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	msg := err.Error()
	var fe *fault.Error
	if errors.As(err, &fe) {
		msg = fe.Message
	}
	writeJSON(w, status, map[string]string{"error": msg})
}
