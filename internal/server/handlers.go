package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiseki/internal/models"
	"github.com/hyperjump/kaiseki/internal/orchestrator"
)

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req models.AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		s.respondError(w, http.StatusBadRequest, "topic is required")
		return
	}
	s.logger.Debug("analyze request",
		zap.String("topic", req.Topic),
		zap.Int("text_len", len(req.Text)),
		zap.String("session_id", req.SessionID),
	)
	result, err := s.orchestrator.AnalyzeDocument(r.Context(), req.Text, req.Topic, req.SessionID)
	if err != nil {
		s.respondOperationError(w, "analyze", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.Result(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondOperationError(w, "get session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.orchestrator.DeleteSession(r.Context(), id); err != nil {
		s.respondOperationError(w, "delete session", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"session_id": id, "status": "deleted"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.orchestrator.Snapshot(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondOperationError(w, "snapshot", err)
		return
	}
	s.respondJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleUpdateTopic(w http.ResponseWriter, r *http.Request) {
	var req models.TopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Topic == "" {
		s.respondError(w, http.StatusBadRequest, "topic is required")
		return
	}
	result, err := s.orchestrator.UpdateTopic(r.Context(), chi.URLParam(r, "id"), req.Topic)
	if err != nil {
		s.respondOperationError(w, "update topic", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleRefreshLabels(w http.ResponseWriter, r *http.Request) {
	result, err := s.orchestrator.RefreshLabels(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondOperationError(w, "refresh labels", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	var req models.MergeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orchestrator.MergeParagraphs(r.Context(), chi.URLParam(r, "id"), req.First, req.Second)
	if err != nil {
		s.respondOperationError(w, "merge", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.paragraphID(w, r)
	if !ok {
		return
	}
	var req models.SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orchestrator.SplitParagraph(r.Context(), chi.URLParam(r, "id"), pid, req.Position)
	if err != nil {
		s.respondOperationError(w, "split", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleReorder(w http.ResponseWriter, r *http.Request) {
	var req models.ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orchestrator.ReorderParagraphs(r.Context(), chi.URLParam(r, "id"), req.Order)
	if err != nil {
		s.respondOperationError(w, "reorder", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.paragraphID(w, r)
	if !ok {
		return
	}
	var req models.ParagraphTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	paragraph, err := s.orchestrator.PreviewParagraph(r.Context(), chi.URLParam(r, "id"), pid, req.Text)
	if err != nil {
		s.respondOperationError(w, "preview", err)
		return
	}
	s.respondJSON(w, http.StatusOK, paragraph)
}

func (s *Server) handleCommitParagraph(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.paragraphID(w, r)
	if !ok {
		return
	}
	var req models.ParagraphTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := s.orchestrator.CommitParagraph(r.Context(), chi.URLParam(r, "id"), pid, req.Text)
	if err != nil {
		s.respondOperationError(w, "commit paragraph", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDeleteParagraph(w http.ResponseWriter, r *http.Request) {
	pid, ok := s.paragraphID(w, r)
	if !ok {
		return
	}
	result, err := s.orchestrator.DeleteParagraph(r.Context(), chi.URLParam(r, "id"), pid)
	if err != nil {
		s.respondOperationError(w, "delete paragraph", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"relevance_ready": s.relevance != nil && s.relevance.Ready(),
	}
	if s.relevance != nil {
		resp["vector_cache_size"] = s.relevance.CacheLen()
	}
	if s.gateway != nil {
		resp["gateway"] = s.gateway.Stats()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) paragraphID(w http.ResponseWriter, r *http.Request) (int, bool) {
	pid, err := strconv.Atoi(chi.URLParam(r, "pid"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid paragraph id")
		return 0, false
	}
	return pid, true
}

// respondOperationError maps orchestrator errors to HTTP statuses: unknown
// sessions are 404, invalid edits and empty documents are 400, the rest 500.
func (s *Server) respondOperationError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		s.respondError(w, http.StatusNotFound, "session not found")
	case errors.Is(err, orchestrator.ErrInvalidEdit), errors.Is(err, orchestrator.ErrEmptyDocument):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error(op+" failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
