// Package telegram connects the dispatcher to the Telegram Bot API via long polling.
package telegram

import (
	"context"
	"log"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/semaphore"

	"github.com/zhouzirui/pollinator-bot/backend/internal/middleware"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
)

const (
	defaultConcurrency = 64
	pollTimeout        = 60
	maxPending         = 32
)

// API is the subset of *tgbotapi.BotAPI used by the transport.
type API interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Dispatcher handles one inbound event.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error)
}

// Bot pumps updates into the dispatcher. Each active user gets a goroutine
// draining that user's own queue, so one user's updates are handled in
// arrival order and a slow dispatch never delays anyone else.
type Bot struct {
	api         API
	dispatcher  Dispatcher
	limiter     *middleware.RateLimiter
	concurrency int64
	sem         *semaphore.Weighted

	mu     sync.Mutex
	queues map[int64]*userQueue
	wg     sync.WaitGroup
}

type userQueue struct {
	pending []tgbotapi.Update
}

// Option customizes a Bot.
type Option func(*Bot)

// WithConcurrency caps how many updates are dispatched at the same time across users.
func WithConcurrency(n int) Option {
	return func(b *Bot) {
		if n > 0 {
			b.concurrency = int64(n)
		}
	}
}

// WithRateLimiter drops updates from users above the limit.
func WithRateLimiter(l *middleware.RateLimiter) Option {
	return func(b *Bot) { b.limiter = l }
}

// New wraps api and dispatcher.
func New(api API, dispatcher Dispatcher, opts ...Option) *Bot {
	b := &Bot{
		api:         api,
		dispatcher:  dispatcher,
		concurrency: defaultConcurrency,
		queues:      make(map[int64]*userQueue),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.sem = semaphore.NewWeighted(b.concurrency)
	return b
}

// Run polls until ctx is cancelled, then waits for queued updates to drain.
func (b *Bot) Run(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := b.api.GetUpdatesChan(u)

	log.Printf("[telegram] polling updates, concurrency=%d", b.concurrency)
	defer func() {
		b.wg.Wait()
		log.Println("[telegram] stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			b.enqueue(ctx, update)
		}
	}
}

// enqueue appends update to its user's queue and starts a drainer when the
// user has none running.
func (b *Bot) enqueue(ctx context.Context, update tgbotapi.Update) {
	userID := update.Message.From.ID

	b.mu.Lock()
	q, running := b.queues[userID]
	if !running {
		q = &userQueue{}
		b.queues[userID] = q
	}
	if len(q.pending) >= maxPending {
		b.mu.Unlock()
		log.Printf("[telegram] backlog full, dropping update=%d user=%d", update.UpdateID, userID)
		return
	}
	q.pending = append(q.pending, update)
	b.mu.Unlock()

	if !running {
		b.wg.Add(1)
		go b.drain(ctx, userID, q)
	}
}

// drain handles one user's updates in order and exits once the queue is empty.
func (b *Bot) drain(ctx context.Context, userID int64, q *userQueue) {
	defer b.wg.Done()
	for {
		b.mu.Lock()
		if len(q.pending) == 0 {
			delete(b.queues, userID)
			b.mu.Unlock()
			return
		}
		update := q.pending[0]
		q.pending[0] = tgbotapi.Update{}
		q.pending = q.pending[1:]
		b.mu.Unlock()

		// 关闭阶段仍要处理完已入队的消息
		_ = b.sem.Acquire(context.WithoutCancel(ctx), 1)
		b.handleUpdate(ctx, update)
		b.sem.Release(1)
	}
}

// handleUpdate dispatches one message; a panic is logged and swallowed so the
// user's queue keeps draining.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	msg := update.Message
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[telegram] panic handling update=%d: %v\n%s", update.UpdateID, r, debug.Stack())
		}
	}()

	ev := toEvent(msg)
	if !b.limiter.Allow(ev.UserID) {
		log.Printf("[telegram] rate limit exceeded user=%s", ev.UserID)
		return
	}

	replies, err := b.dispatcher.Dispatch(ctx, ev)
	if err != nil {
		log.Printf("[telegram] dispatch failed user=%s: %v", ev.UserID, err)
		return
	}

	for _, reply := range replies {
		if _, err := b.api.Send(render(msg.Chat.ID, reply)); err != nil {
			log.Printf("[telegram] send failed chat=%d: %v", msg.Chat.ID, err)
		}
	}
}

// toEvent classifies a Telegram message into a transport-neutral event.
func toEvent(msg *tgbotapi.Message) conversation.Event {
	ev := conversation.Event{
		UserID:   strconv.FormatInt(msg.From.ID, 10),
		Language: msg.From.LanguageCode,
	}

	switch {
	case msg.IsCommand():
		ev.Kind = conversation.KindCommand
		ev.Command = strings.ToLower(msg.Command())
		ev.Args = msg.CommandArguments()
	case len(msg.Photo) > 0:
		// 最后一个尺寸分辨率最高
		ev.Kind = conversation.KindPhoto
		ev.FileID = msg.Photo[len(msg.Photo)-1].FileID
	case msg.Video != nil:
		ev.Kind = conversation.KindVideo
		ev.FileID = msg.Video.FileID
		ev.MimeType = msg.Video.MimeType
	case msg.Document != nil:
		ev.Kind = conversation.KindDocument
		ev.FileID = msg.Document.FileID
		ev.MimeType = msg.Document.MimeType
	case msg.Location != nil:
		ev.Kind = conversation.KindLocation
		ev.Location = &conversation.Location{
			Latitude:  msg.Location.Latitude,
			Longitude: msg.Location.Longitude,
		}
	case msg.Text != "":
		ev.Kind = conversation.KindText
		ev.Text = msg.Text
	default:
		ev.Kind = conversation.KindOther
	}

	ev.Text = firstNonEmpty(ev.Text, msg.Caption)
	return ev
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// render converts a reply directive into a Bot API request.
func render(chatID int64, reply conversation.Reply) tgbotapi.Chattable {
	switch reply.Kind {
	case conversation.ReplyDocument:
		if reply.Document != nil {
			doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
				Name:  reply.Document.Name,
				Bytes: reply.Document.Data,
			})
			doc.Caption = reply.Text
			return doc
		}
	case conversation.ReplyChoice:
		msg := tgbotapi.NewMessage(chatID, reply.Text)
		if len(reply.Choices) > 0 {
			row := make([]tgbotapi.KeyboardButton, 0, len(reply.Choices))
			for _, choice := range reply.Choices {
				row = append(row, tgbotapi.NewKeyboardButton(choice))
			}
			keyboard := tgbotapi.NewReplyKeyboard(row)
			keyboard.OneTimeKeyboard = true
			keyboard.ResizeKeyboard = true
			msg.ReplyMarkup = keyboard
		}
		return msg
	}

	msg := tgbotapi.NewMessage(chatID, reply.Text)
	if reply.RemoveKeyboard {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	return msg
}
