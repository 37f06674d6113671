package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	loomerr "github.com/loomchat/loom/internal/errors"
	"github.com/loomchat/loom/internal/event"
	"github.com/loomchat/loom/internal/memory"
	"github.com/loomchat/loom/internal/provider"
)

// --- Helpers ---

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	jsonResponse(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func statusForCode(code string) int {
	switch code {
	case loomerr.CodeSessionInvalid:
		return http.StatusBadRequest
	case loomerr.CodeStorageUnavailable:
		return http.StatusServiceUnavailable
	case loomerr.CodeProviderUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// --- Health ---

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": s.cfg.Version,
		"name":    s.cfg.Name,
	})
}

// --- Models ---

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.models.ListModels(r.Context())
	if err != nil {
		jsonError(w, http.StatusBadGateway, "model backend unavailable: "+err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, models)
}

// --- Sessions ---

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.mem.Sessions())
}

// postMessageRequest is the body of POST /api/sessions/{id}/messages.
type postMessageRequest struct {
	Content string `json:"content"`
	Style   string `json:"style,omitempty"`
	Model   string `json:"model,omitempty"`
	Stream  bool   `json:"stream,omitempty"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Content == "" {
		jsonError(w, http.StatusBadRequest, "content is required")
		return
	}

	// Accept the user turn. A durability warning does not fail the chat.
	if _, err := s.mem.RecordTurn(sessionID, memory.RoleUser, req.Content, ""); err != nil {
		if loomerr.AsCode(err) == loomerr.CodeSessionInvalid {
			jsonError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Warn("User turn accepted without durability", "session_id", sessionID, "error", err)
	}

	compReq := s.buildCompletion(sessionID, req.Model, req.Style)

	if req.Stream {
		s.streamCompletion(w, r, sessionID, compReq)
		return
	}

	start := time.Now()
	resp, err := s.prov.Complete(r.Context(), compReq)
	if err != nil {
		jsonError(w, statusForCode(loomerr.AsCode(err)), "completion failed: "+err.Error())
		return
	}
	s.metrics.RecordInferenceLatency(time.Since(start))

	rec, err := s.mem.RecordTurn(sessionID, memory.RoleAssistant, resp.Content, "")
	if err != nil {
		s.logger.Warn("Assistant turn accepted without durability", "session_id", sessionID, "error", err)
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"record":      rec,
		"model":       resp.Model,
		"stop_reason": resp.StopReason,
		"usage":       resp.Usage,
	})
}

// streamCompletion streams model output as SSE and records the full
// assistant turn when the stream finishes.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, sessionID string, compReq *provider.CompletionRequest) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	start := time.Now()
	var full string

	err := s.prov.Stream(r.Context(), compReq, func(ev provider.StreamEvent) {
		if ev.Type == "text" {
			full += ev.Content
		}
		data, err := json.Marshal(ev)
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	})
	if err != nil {
		data, _ := json.Marshal(map[string]string{"type": "error", "error": err.Error()})
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
		if full == "" {
			return
		}
		// Partial output still becomes part of the conversation.
	}
	s.metrics.RecordInferenceLatency(time.Since(start))

	if _, err := s.mem.RecordTurn(sessionID, memory.RoleAssistant, full, ""); err != nil {
		s.logger.Warn("Assistant turn accepted without durability", "session_id", sessionID, "error", err)
	}
}

// buildCompletion turns the session's buffered history into a provider
// request with the configured sampling parameters.
func (s *Server) buildCompletion(sessionID, model, style string) *provider.CompletionRequest {
	history := s.mem.Context(sessionID)

	messages := make([]provider.Message, 0, len(history))
	for _, rec := range history {
		messages = append(messages, provider.Message{
			Role:    string(rec.Role),
			Content: rec.Content,
		})
	}

	if model == "" {
		model = s.cfg.Ollama.Model
	}

	return &provider.CompletionRequest{
		Model:       model,
		System:      s.cfg.SystemPrompt(style),
		Messages:    messages,
		Temperature: s.cfg.Ollama.Temperature,
		TopP:        s.cfg.Ollama.TopP,
		NumPredict:  s.cfg.Ollama.NumPredict,
		KeepAlive:   s.cfg.Ollama.KeepAlive,
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if sessionID == "" {
		jsonError(w, http.StatusBadRequest, "session id is required")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"records":    s.mem.Context(sessionID),
	})
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	status, err := s.mem.GetOrCreate(sessionID)
	if err != nil {
		jsonError(w, statusForCode(loomerr.AsCode(err)), err.Error())
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if err := s.mem.ClearSession(sessionID); err != nil {
		// The buffer is already empty; report the durable-clear failure.
		jsonResponse(w, http.StatusOK, map[string]interface{}{
			"session_id": sessionID,
			"cleared":    true,
			"warning":    err.Error(),
		})
		return
	}
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"session_id": sessionID,
		"cleared":    true,
	})
}

// --- Images ---

type imageRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Prompt    string `json:"prompt"`
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if s.images == nil {
		jsonError(w, http.StatusNotImplemented, "image generation is disabled")
		return
	}

	var req imageRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	res, err := s.images.Generate(r.Context(), req.Prompt)
	if err != nil {
		s.eventBus.Emit(event.NewEvent(event.ImageFailed, map[string]interface{}{
			"session_id": req.SessionID,
			"prompt":     req.Prompt,
			"error":      err.Error(),
		}))
		jsonError(w, http.StatusBadGateway, err.Error())
		return
	}

	s.metrics.IncImagesGenerated()
	s.eventBus.Emit(event.NewEvent(event.ImageGenerated, map[string]interface{}{
		"session_id": req.SessionID,
		"prompt":     req.Prompt,
		"path":       res.Path,
	}))

	// An image request is a conversation turn like any other.
	if req.SessionID != "" {
		if _, err := s.mem.RecordTurn(req.SessionID, memory.RoleUser, "/image "+req.Prompt, ""); err != nil {
			s.logger.Warn("Image turn accepted without durability", "session_id", req.SessionID, "error", err)
		}
		if _, err := s.mem.RecordTurn(req.SessionID, memory.RoleAssistant, "Generated image for: "+req.Prompt, res.Path); err != nil {
			s.logger.Warn("Image turn accepted without durability", "session_id", req.SessionID, "error", err)
		}
	}

	jsonResponse(w, http.StatusOK, res)
}

// --- Metrics ---

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	jsonResponse(w, http.StatusOK, s.metrics.GetSummary())
}

// --- SSE ---

func (s *Server) handleSSEEvents(w http.ResponseWriter, r *http.Request) {
	s.serveSSE(w, r, "")
}

func (s *Server) handleSSEEventsFiltered(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionID")
	s.serveSSE(w, r, sessionID)
}

func (s *Server) serveSSE(w http.ResponseWriter, r *http.Request, sessionID string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		jsonError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	clientID := uuid.New().String()
	client := s.broker.Subscribe(r.Context(), clientID, sessionID)

	// Send initial connected event.
	data, _ := json.Marshal(map[string]string{"type": "connected", "client_id": clientID})
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()

	for ev := range client.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
