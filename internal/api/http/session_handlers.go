package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tokengate/tokengate/internal/domain/identity"
	"github.com/tokengate/tokengate/internal/domain/session"
	"github.com/tokengate/tokengate/internal/infrastructure/world"
)

type joinRequest struct {
	Name string `json:"name"`
}

type chatRequest struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

type interactRequest struct {
	Name   string `json:"name"`
	Action string `json:"action"`
	// Item is the marker of the held item to use, if any.
	Item string `json:"item,omitempty"`
}

func parseName(raw string) (identity.Identity, bool) {
	id := identity.Identity(strings.TrimSpace(raw))
	return id, !id.IsZero()
}

func (s *Server) joinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	id, ok := parseName(req.Name)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "name required")
		return
	}

	var added bool
	if err := s.loop.Call(r.Context(), func() error {
		_, added = s.world.Join(id)
		return nil
	}); err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	if !added {
		respondError(w, http.StatusConflict, "ALREADY_JOINED", "participant already online")
		return
	}

	if err := s.bridge.Dispatch(r.Context(), session.Event{Type: session.EventJoined, Identity: id, At: time.Now().UTC()}); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"identity": id, "status": "JOINED"})
}

func (s *Server) leaveSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	id, ok := parseName(req.Name)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "name required")
		return
	}

	var left bool
	if err := s.loop.Call(r.Context(), func() error {
		left = s.world.Leave(id)
		return nil
	}); err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	if !left {
		respondError(w, http.StatusNotFound, "NOT_ONLINE", "participant not online")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"identity": id, "status": "LEFT"})
}

func (s *Server) chatSession(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	id, ok := parseName(req.Name)
	if !ok || strings.TrimSpace(req.Message) == "" {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "name and message required")
		return
	}

	err := s.loop.Call(r.Context(), func() error {
		return s.world.Chat(id, req.Message)
	})
	if errors.Is(err, world.ErrNotOnline) {
		respondError(w, http.StatusNotFound, "NOT_ONLINE", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}

	if err := s.bridge.Dispatch(r.Context(), session.Event{
		Type: session.EventChatSent, Identity: id, Message: req.Message, At: time.Now().UTC(),
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"status": "SENT"})
}

func (s *Server) interactSession(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_BODY", err.Error())
		return
	}
	id, ok := parseName(req.Name)
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "name required")
		return
	}
	action := session.Action(strings.ToUpper(strings.TrimSpace(req.Action)))
	switch action {
	case session.ActionRightClickAir, session.ActionRightClickBlock, session.ActionLeftClickAir, session.ActionLeftClickBlock:
	default:
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "unknown action")
		return
	}

	var item *session.Item
	err := s.loop.Call(r.Context(), func() error {
		if req.Item == "" {
			if !s.world.Online(id) {
				return world.ErrNotOnline
			}
			return nil
		}
		var err error
		item, err = s.world.HeldItem(id, req.Item)
		return err
	})
	if errors.Is(err, world.ErrNotOnline) {
		respondError(w, http.StatusNotFound, "NOT_ONLINE", err.Error())
		return
	}
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}

	if err := s.bridge.Dispatch(r.Context(), session.Event{
		Type: session.EventInteracted, Identity: id, Action: action, Item: item, At: time.Now().UTC(),
	}); err != nil {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, map[string]interface{}{"status": "ACCEPTED"})
}

func (s *Server) streamSession(w http.ResponseWriter, r *http.Request) {
	id, ok := parseName(r.URL.Query().Get("name"))
	if !ok {
		respondError(w, http.StatusBadRequest, "INVALID_PARAM", "name required")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "streaming not supported")
		return
	}
	online, err := s.world.IsOnline(r.Context(), id)
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "UNAVAILABLE", err.Error())
		return
	}
	if !online {
		respondError(w, http.StatusNotFound, "NOT_ONLINE", "participant not online")
		return
	}

	stream := session.NewStream(id)
	s.hub.Register(stream)
	defer s.hub.Unregister(stream)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	// Initial comment flushes headers.
	_, _ = w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-stream.MessageChan:
			if !ok || msg == nil {
				return
			}
			payload, _ := json.Marshal(msg)
			_, _ = w.Write([]byte("event: " + string(msg.Kind) + "\n"))
			_, _ = w.Write([]byte("data: "))
			_, _ = w.Write(payload)
			_, _ = w.Write([]byte("\n\n"))
			flusher.Flush()
			if msg.Kind == session.KindKick {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
