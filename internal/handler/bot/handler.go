package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/pollinator-bot/backend/internal/middleware"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/export"
	"github.com/zhouzirui/pollinator-bot/backend/pkg/utils"
)

// UserHeader 携带调用方的用户 ID。
const UserHeader = "X-User-ID"

// Dispatcher 是对话入口。
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error)
}

// Exporter 生成观测记录导出文件。
type Exporter interface {
	Export(ctx context.Context, callerID string) (*export.File, error)
}

// Handler 机器人 HTTP 处理器
type Handler struct {
	dispatcher Dispatcher
	exporter   Exporter
	limiter    *middleware.RateLimiter
}

// New 创建处理器，limiter 为 nil 时不限流。
func New(dispatcher Dispatcher, exporter Exporter, limiter *middleware.RateLimiter) *Handler {
	return &Handler{dispatcher: dispatcher, exporter: exporter, limiter: limiter}
}

// RegisterRoutes 注册消息与导出路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/messages", h.handleMessage)
	r.With(middleware.RateLimit(h.limiter, userFromHeader)).Get("/export", h.handleExport)
}

type messageResponse struct {
	Replies []conversation.Reply `json:"replies"`
}

// handleMessage 把一条入站事件交给对话引擎。
func (h *Handler) handleMessage(w http.ResponseWriter, r *http.Request) {
	var ev conversation.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if ev.UserID == "" {
		ev.UserID = userFromHeader(r)
	}
	if ev.UserID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId is required")
		return
	}
	if ev.Kind == "" {
		ev.Kind = InferKind(ev)
	}
	if ev.Kind == conversation.KindText {
		ev = ParseCommand(ev)
	}

	if !h.limiter.Allow(ev.UserID) {
		w.Header().Set("Retry-After", "1")
		utils.RespondError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	replies, err := h.dispatcher.Dispatch(r.Context(), ev)
	if err != nil {
		log.Printf("[http] dispatch failed user=%s: %v", ev.UserID, err)
		utils.RespondError(w, http.StatusInternalServerError, "failed to handle message")
		return
	}
	if replies == nil {
		replies = []conversation.Reply{}
	}

	utils.RespondJSON(w, http.StatusOK, messageResponse{Replies: replies})
}

// handleExport 返回 CSV 附件。
func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	caller := userFromHeader(r)
	if caller == "" {
		utils.RespondError(w, http.StatusUnauthorized, UserHeader+" header is required")
		return
	}

	file, err := h.exporter.Export(r.Context(), caller)
	switch {
	case errors.Is(err, export.ErrUnauthorized):
		utils.RespondError(w, http.StatusForbidden, "export is restricted to administrators")
		return
	case errors.Is(err, export.ErrNoObservations):
		utils.RespondJSON(w, http.StatusOK, map[string]any{"status": "empty", "rows": 0})
		return
	case err != nil:
		log.Printf("[http] export failed caller=%s: %v", caller, err)
		utils.RespondError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("X-Export-Rows", fmt.Sprint(file.Rows))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.Data); err != nil {
		log.Printf("[http] write export failed caller=%s: %v", caller, err)
	}
}

func userFromHeader(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(UserHeader))
}

// InferKind 根据载荷字段推断事件类型。
func InferKind(ev conversation.Event) conversation.Kind {
	switch {
	case ev.Location != nil:
		return conversation.KindLocation
	case ev.FileID != "" && strings.HasPrefix(ev.MimeType, "video/"):
		return conversation.KindVideo
	case ev.FileID != "" && ev.MimeType != "" && !strings.HasPrefix(ev.MimeType, "image/"):
		return conversation.KindDocument
	case ev.FileID != "":
		return conversation.KindPhoto
	case ev.Command != "":
		return conversation.KindCommand
	case ev.Text != "":
		return conversation.KindText
	default:
		return conversation.KindOther
	}
}

// ParseCommand 把 "/start" 形式的文本转成命令事件。
func ParseCommand(ev conversation.Event) conversation.Event {
	text := strings.TrimSpace(ev.Text)
	if !strings.HasPrefix(text, "/") || len(text) < 2 {
		return ev
	}
	name, args, _ := strings.Cut(text[1:], " ")
	// Telegram 群聊里命令可能带 @botname 后缀
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return ev
	}
	ev.Kind = conversation.KindCommand
	ev.Command = strings.ToLower(name)
	ev.Args = strings.TrimSpace(args)
	return ev
}
