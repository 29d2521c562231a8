package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/sitechat-go/internal/metrics"
	"github.com/raphaelgruber/sitechat-go/internal/service"
)

// The widget is embedded on arbitrary customer sites, so origins are
// not restricted here. Site-level access control happens on site_id.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(req *http.Request) bool { return true },
}

const wsWriteTimeout = 10 * time.Second

// wsEvent is one streaming protocol frame. "done" and "error" are
// terminal; nothing follows them.
type wsEvent struct {
	Type             string           `json:"type"` // start | token | citation | done | error
	ConversationID   string           `json:"conversation_id,omitempty"`
	Token            string           `json:"token,omitempty"`
	Citation         *serviceCitation `json:"citation,omitempty"`
	Answer           string           `json:"answer,omitempty"`
	PromptTokens     int              `json:"prompt_tokens,omitempty"`
	CompletionTokens int              `json:"completion_tokens,omitempty"`
	Error            string           `json:"error,omitempty"`
}

type serviceCitation struct {
	ChunkID string  `json:"chunk_id"`
	URL     string  `json:"url"`
	Title   *string `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// chatStream answers one question per connection, streaming tokens as
// they are generated.
func (h *handler) chatStream(w http.ResponseWriter, req *http.Request) {
	conn, err := upgrader.Upgrade(w, req, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var chatReq service.ChatRequest
	if err := conn.ReadJSON(&chatReq); err != nil {
		h.writeEvent(conn, wsEvent{Type: "error", Error: "invalid request"})
		return
	}
	if chatReq.SiteID == "" || chatReq.Message == "" {
		h.writeEvent(conn, wsEvent{Type: "error", Error: "site_id and message are required"})
		return
	}

	if err := h.writeEvent(conn, wsEvent{Type: "start"}); err != nil {
		return
	}

	start := time.Now()
	resp, err := h.chat.AskStream(req.Context(), chatReq, func(token string) error {
		return h.writeEvent(conn, wsEvent{Type: "token", Token: token})
	})
	if err != nil {
		msg := "chat failed"
		if errors.Is(err, service.ErrRateLimited) {
			msg = "rate limit exceeded"
		} else {
			h.logger.Error("chat stream failed", "site_id", chatReq.SiteID, "error", err)
		}
		h.writeEvent(conn, wsEvent{Type: "error", Error: msg})
		return
	}
	if h.collector != nil {
		h.collector.RecordLLMUsage(metrics.OpLLMStream, time.Since(start),
			int64(resp.PromptTokens), int64(resp.CompletionTokens))
	}

	for _, c := range resp.Citations {
		if err := h.writeEvent(conn, wsEvent{Type: "citation", Citation: &serviceCitation{
			ChunkID: c.ChunkID,
			URL:     c.URL,
			Title:   c.Title,
			Snippet: c.Snippet,
			Score:   c.Score,
		}}); err != nil {
			return
		}
	}

	h.writeEvent(conn, wsEvent{
		Type:             "done",
		ConversationID:   resp.ConversationID,
		Answer:           resp.Answer,
		PromptTokens:     resp.PromptTokens,
		CompletionTokens: resp.CompletionTokens,
	})
}

func (h *handler) writeEvent(conn *websocket.Conn, event wsEvent) error {
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(event)
}
