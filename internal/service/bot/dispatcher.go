// Package bot routes inbound events to the conversation engine or to
// stateless commands such as the administrator export.
package bot

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/engine"
	"github.com/zhouzirui/pollinator-bot/backend/internal/service/export"
)

const (
	CommandExport = "export"
	CommandHelp   = "help"
	CommandLang   = "lang"
)

// Conversation is the dialogue engine.
type Conversation interface {
	Handle(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error)
	Language(ctx context.Context, userID, fallback string) string
	SetLanguage(ctx context.Context, userID, code string) (string, bool)
}

// Exporter renders the observation table for privileged callers.
type Exporter interface {
	Export(ctx context.Context, callerID string) (*export.File, error)
}

// Dispatcher is the single entry point used by every transport.
type Dispatcher struct {
	conversation Conversation
	exporter     Exporter
}

func NewDispatcher(conv Conversation, exporter Exporter) *Dispatcher {
	return &Dispatcher{conversation: conv, exporter: exporter}
}

// Dispatch handles one inbound event and returns the replies to deliver.
func (d *Dispatcher) Dispatch(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error) {
	if ev.UserID == "" {
		return nil, engine.ErrUserRequired
	}
	if ev.Kind == conversation.KindCommand {
		switch strings.ToLower(ev.Command) {
		case CommandExport:
			return d.export(ctx, ev), nil
		case CommandHelp:
			lang := d.conversation.Language(ctx, ev.UserID, ev.Language)
			return []conversation.Reply{conversation.TextReply(engine.Text(lang, engine.MsgHelp))}, nil
		case CommandLang:
			return d.setLanguage(ctx, ev), nil
		}
	}
	return d.conversation.Handle(ctx, ev)
}

// Export runs the export for a caller and renders the outcome as a reply.
func (d *Dispatcher) export(ctx context.Context, ev conversation.Event) []conversation.Reply {
	lang := d.conversation.Language(ctx, ev.UserID, ev.Language)

	file, err := d.exporter.Export(ctx, ev.UserID)
	switch {
	case errors.Is(err, export.ErrUnauthorized):
		log.Printf("[bot] export refused for user=%s", ev.UserID)
		return []conversation.Reply{conversation.TextReply(engine.Text(lang, engine.MsgExportDenied))}
	case errors.Is(err, export.ErrNoObservations):
		return []conversation.Reply{conversation.TextReply(engine.Text(lang, engine.MsgExportEmpty))}
	case err != nil:
		log.Printf("[bot] export failed for user=%s: %v", ev.UserID, err)
		return []conversation.Reply{conversation.TextReply(engine.Text(lang, engine.MsgExportFailed))}
	}

	return []conversation.Reply{{
		Kind: conversation.ReplyDocument,
		Text: engine.Text(lang, engine.MsgExportReady, file.Rows),
		Document: &conversation.Document{
			Name:        file.Name,
			ContentType: file.ContentType,
			Data:        file.Data,
		},
	}}
}

func (d *Dispatcher) setLanguage(ctx context.Context, ev conversation.Event) []conversation.Reply {
	lang, ok := d.conversation.SetLanguage(ctx, ev.UserID, ev.Args)
	if !ok {
		current := d.conversation.Language(ctx, ev.UserID, ev.Language)
		return []conversation.Reply{conversation.TextReply(engine.Text(current, engine.MsgUnknownLanguage))}
	}
	return []conversation.Reply{conversation.TextReply(engine.Text(lang, engine.MsgLanguageSet))}
}
