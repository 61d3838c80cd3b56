// SPDX-License-Identifier: MIT

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	xglog "github.com/kahvel/notifyd/internal/log"
	"github.com/kahvel/notifyd/internal/queue"
	"github.com/kahvel/notifyd/internal/stream"
	"github.com/kahvel/notifyd/internal/termination"
)

// maxBodyBytes bounds mutation request bodies; payloads are tiny JSON objects.
const maxBodyBytes = 16 << 10

type enqueueRequest struct {
	ID string `json:"id"`
}

type terminationRequest struct {
	ChatID string `json:"chatId"`
	Cookie string `json:"cookie"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	defer func() {
		_, _ = io.Copy(io.Discard, r.Body)
	}()

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.store.Enqueue(r.Context(), req.ID); err != nil {
		if errors.Is(err, queue.ErrStoreUnavailable) {
			writeServiceUnavailable(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": "enqueued successfully"})
}

func (s *Server) handleDequeue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := s.store.Dequeue(r.Context(), req.ID); err != nil {
		if errors.Is(err, queue.ErrStoreUnavailable) {
			writeServiceUnavailable(w, err)
			return
		}
		writeError(w, http.StatusInternalServerError, "dequeue failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": "dequeued successfully"})
}

func (s *Server) handleAddTermination(w http.ResponseWriter, r *http.Request) {
	var req terminationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}
	if s.cfg.EndChatURL == "" {
		writeError(w, http.StatusServiceUnavailable, "end-chat endpoint not configured")
		return
	}

	cookie := req.Cookie
	if cookie == "" {
		cookie = r.Header.Get("Cookie")
	}

	action := termination.NewEndChatAction(s.endChatClient, s.cfg.EndChatURL, req.ChatID, cookie)
	s.scheduler.Add(req.ChatID, action)
	writeJSON(w, http.StatusOK, map[string]string{"response": "Chat will be terminated soon"})
}

func (s *Server) handleRemoveTermination(w http.ResponseWriter, r *http.Request) {
	var req terminationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ChatID == "" {
		writeError(w, http.StatusBadRequest, "chatId is required")
		return
	}

	s.scheduler.Remove(req.ChatID)
	writeJSON(w, http.StatusOK, map[string]string{"response": "Chat termination will be canceled"})
}

func (s *Server) handlePublishNotification(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel id is required")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil || len(body) == 0 || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "body must be a JSON payload")
		return
	}

	id, err := s.source.Publish(r.Context(), channelID, body)
	if err != nil {
		writeServiceUnavailable(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"response": "notification published", "id": id})
}

func (s *Server) handleNotificationStream(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")
	if channelID == "" {
		writeError(w, http.StatusBadRequest, "channel id is required")
		return
	}

	ctx, cancel := s.streamContext(r)
	defer cancel()

	session := stream.NewSession(stream.Options{
		Kind:      stream.KindNotification,
		SubjectID: channelID,
		Interval:  s.cfg.PollInterval,
		Logger:    xglog.WithComponentFromContext(r.Context(), "stream"),
	})

	if err := session.Run(ctx, w, stream.NotificationPoller(s.source, channelID)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleQueueStream(w http.ResponseWriter, r *http.Request) {
	chatID := chi.URLParam(r, "chatID")
	if chatID == "" {
		writeError(w, http.StatusBadRequest, "chat id is required")
		return
	}

	ctx, cancel := s.streamContext(r)
	defer cancel()

	session := stream.NewSession(stream.Options{
		Kind:       stream.KindQueuePosition,
		SubjectID:  chatID,
		Interval:   s.cfg.PollInterval,
		AlwaysEmit: s.cfg.QueueHeartbeat,
		Logger:     xglog.WithComponentFromContext(r.Context(), "stream"),
	})

	if err := session.Run(ctx, w, stream.QueuePositionPoller(s.store, chatID)); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
