// Package ws exposes the conversation over a websocket, one connection per user.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/pollinator-bot/backend/internal/handler/bot"
	"github.com/zhouzirui/pollinator-bot/backend/internal/middleware"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
)

const (
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	pingPeriod   = 54 * time.Second
)

// Handler WebSocket 对话处理器
type Handler struct {
	dispatcher bot.Dispatcher
	limiter    *middleware.RateLimiter
	upgrader   websocket.Upgrader
	pingPeriod time.Duration
}

// New 创建 WebSocket 处理器
func New(dispatcher bot.Dispatcher, limiter *middleware.RateLimiter) *Handler {
	return &Handler{
		dispatcher: dispatcher,
		limiter:    limiter,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		pingPeriod: pingPeriod,
	}
}

// RegisterRoutes 注册 WebSocket 路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{userID}", h.handleWebSocket)
}

// outgoingMessage 是服务端推送给客户端的帧。
type outgoingMessage struct {
	Type      string               `json:"type"`
	UserID    string               `json:"userId,omitempty"`
	Replies   []conversation.Reply `json:"replies,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp int64                `json:"timestamp"`
}

// conn 串行化写操作，gorilla 连接只允许一个并发写者。
type conn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *conn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(v)
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

// handleWebSocket 处理 WebSocket 连接
func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		http.Error(w, "userID is required", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[websocket] upgrade failed: %v", err)
		return
	}
	defer ws.Close()
	c := &conn{ws: ws}

	log.Printf("[websocket] new connection for user: %s", userID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	_ = ws.SetReadDeadline(time.Now().Add(readTimeout))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(readTimeout))
	})

	go h.pingLoop(ctx, c)

	_ = c.writeJSON(outgoingMessage{Type: "connected", UserID: userID, Timestamp: time.Now().UnixMilli()})

	for {
		var ev conversation.Event
		if err := ws.ReadJSON(&ev); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[websocket] read error user=%s: %v", userID, err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(readTimeout))

		if ev.UserID != "" && ev.UserID != userID {
			_ = c.writeJSON(outgoingMessage{Type: "error", Error: "user mismatch", Timestamp: time.Now().UnixMilli()})
			continue
		}
		ev.UserID = userID

		if err := c.writeJSON(h.handleEvent(ctx, ev)); err != nil {
			log.Printf("[websocket] write failed user=%s: %v", userID, err)
			return
		}
	}
}

func (h *Handler) handleEvent(ctx context.Context, ev conversation.Event) outgoingMessage {
	if ev.Kind == "" {
		ev.Kind = bot.InferKind(ev)
	}
	if ev.Kind == conversation.KindText {
		ev = bot.ParseCommand(ev)
	}

	now := time.Now().UnixMilli()
	if !h.limiter.Allow(ev.UserID) {
		return outgoingMessage{Type: "error", Error: "rate limit exceeded", Timestamp: now}
	}

	replies, err := h.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		log.Printf("[websocket] dispatch failed user=%s: %v", ev.UserID, err)
		return outgoingMessage{Type: "error", Error: "failed to handle message", Timestamp: now}
	}
	return outgoingMessage{Type: "replies", UserID: ev.UserID, Replies: replies, Timestamp: now}
}

func (h *Handler) pingLoop(ctx context.Context, c *conn) {
	ticker := time.NewTicker(h.pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				return
			}
		}
	}
}
