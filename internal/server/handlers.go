package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

type handler struct {
	chat      *service.Chat
	retriever service.ChunkRetriever
	collector *metrics.Collector
	logger    *slog.Logger
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func (h *handler) health(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) stats(w http.ResponseWriter, req *http.Request) {
	if h.collector == nil {
		writeError(w, http.StatusNotFound, "metrics disabled")
		return
	}
	writeJSON(w, http.StatusOK, h.collector.Snapshot())
}

func (h *handler) chatOnce(w http.ResponseWriter, req *http.Request) {
	var chatReq service.ChatRequest
	if err := json.NewDecoder(req.Body).Decode(&chatReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if chatReq.SiteID == "" || chatReq.Message == "" {
		writeError(w, http.StatusBadRequest, "site_id and message are required")
		return
	}

	start := time.Now()
	resp, err := h.chat.Ask(req.Context(), chatReq)
	if err != nil {
		if errors.Is(err, service.ErrRateLimited) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		h.logger.Error("chat request failed", "site_id", chatReq.SiteID, "error", err)
		writeError(w, http.StatusInternalServerError, "chat failed")
		return
	}
	if h.collector != nil {
		h.collector.RecordLLMUsage(metrics.OpLLMGenerate, time.Since(start),
			int64(resp.PromptTokens), int64(resp.CompletionTokens))
	}

	writeJSON(w, http.StatusOK, resp)
}

type searchRequest struct {
	SiteID   string  `json:"site_id"`
	Query    string  `json:"query"`
	TopK     int     `json:"top_k,omitempty"`
	MinScore float64 `json:"min_score,omitempty"`
}

func (h *handler) search(w http.ResponseWriter, req *http.Request) {
	var searchReq searchRequest
	if err := json.NewDecoder(req.Body).Decode(&searchReq); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if searchReq.SiteID == "" || searchReq.Query == "" {
		writeError(w, http.StatusBadRequest, "site_id and query are required")
		return
	}

	start := time.Now()
	results, err := h.retriever.Retrieve(req.Context(), searchReq.SiteID, searchReq.Query, service.RetrievalOptions{
		TopK:     searchReq.TopK,
		MinScore: searchReq.MinScore,
	})
	if err != nil {
		h.logger.Error("search request failed", "site_id", searchReq.SiteID, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	if h.collector != nil {
		h.collector.RecordTiming(metrics.OpDBSearch, time.Since(start))
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}
