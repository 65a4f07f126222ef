// Package engine drives the multi-step observation dialogue.
package engine

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/zhouzirui/pollinator-bot/backend/internal/metrics"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/model/observation"
	"github.com/zhouzirui/pollinator-bot/backend/internal/validator"
)

const (
	CommandStart  = "start"
	CommandCancel = "cancel"

	maxFullNameRunes = 256
)

var ErrUserRequired = errors.New("event user id is required")

// SessionStore is the per-user session storage consumed by the engine.
type SessionStore interface {
	Lock(userID string) func()
	Get(ctx context.Context, userID string) (conversation.Session, error)
	Put(ctx context.Context, sess conversation.Session)
}

// Config tunes validation and persistence behaviour.
type Config struct {
	// RequireMedia rejects "next" in COLLECT_MEDIA until at least one file arrived.
	RequireMedia       bool
	Location           *time.Location
	DefaultLanguage    string
	PersistTimeout     time.Duration
	PersistRetries     int
	PersistConcurrency int
	RetryBackoff       time.Duration
}

// Engine maps (session state, inbound event) to replies and the next session.
type Engine struct {
	sessions SessionStore
	repo     observation.Repository
	cfg      Config
	now      func() time.Time
	metrics  *metrics.Metrics
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMetrics reports message and persistence counters.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine wires the engine to its session store and repository.
func NewEngine(sessions SessionStore, repo observation.Repository, cfg Config, opts ...Option) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if lang, ok := NormalizeLanguage(cfg.DefaultLanguage); ok {
		cfg.DefaultLanguage = lang
	} else {
		cfg.DefaultLanguage = DefaultLanguage
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.PersistRetries < 0 {
		cfg.PersistRetries = 0
	}
	if cfg.PersistConcurrency <= 0 {
		cfg.PersistConcurrency = 4
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 200 * time.Millisecond
	}

	e := &Engine{
		sessions: sessions,
		repo:     repo,
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Handle processes one inbound event for its user. Events of the same user
// are serialized; malformed input re-prompts without changing state.
func (e *Engine) Handle(ctx context.Context, ev conversation.Event) ([]conversation.Reply, error) {
	if ev.UserID == "" {
		return nil, ErrUserRequired
	}

	unlock := e.sessions.Lock(ev.UserID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, ev.UserID)
	exists := err == nil
	state := conversation.StateStart
	if exists {
		state = sess.State
	}
	e.metrics.MessageHandled(string(state))

	lang := e.languageFor(sess, exists, ev)

	if ev.Kind == conversation.KindCommand {
		switch strings.ToLower(ev.Command) {
		case CommandStart:
			return e.begin(ctx, ev.UserID, lang), nil
		case CommandCancel:
			return e.cancel(ctx, sess, exists, lang), nil
		}
	}

	if !exists || state == conversation.StateStart {
		return e.begin(ctx, ev.UserID, lang), nil
	}
	if state.Terminal() {
		return nil, nil
	}

	next, replies := e.step(ctx, sess, ev)
	e.sessions.Put(ctx, next)
	return replies, nil
}

// Language returns the reply language of the user's session.
func (e *Engine) Language(ctx context.Context, userID, fallback string) string {
	sess, err := e.sessions.Get(ctx, userID)
	if err == nil && sess.Language != "" {
		return sess.Language
	}
	if lang, ok := NormalizeLanguage(fallback); ok {
		return lang
	}
	return e.cfg.DefaultLanguage
}

// SetLanguage changes the reply language without touching the dialogue state.
func (e *Engine) SetLanguage(ctx context.Context, userID, code string) (string, bool) {
	lang, ok := NormalizeLanguage(code)
	if !ok {
		return "", false
	}

	unlock := e.sessions.Lock(userID)
	defer unlock()

	sess, err := e.sessions.Get(ctx, userID)
	if err != nil {
		sess = conversation.NewSession(userID, conversation.StateStart, lang)
	}
	sess.Language = lang
	e.sessions.Put(ctx, sess)
	return lang, true
}

func (e *Engine) languageFor(sess conversation.Session, exists bool, ev conversation.Event) string {
	if exists && sess.Language != "" {
		return sess.Language
	}
	if lang, ok := NormalizeLanguage(ev.Language); ok {
		return lang
	}
	return e.cfg.DefaultLanguage
}

func (e *Engine) begin(ctx context.Context, userID, lang string) []conversation.Reply {
	e.sessions.Put(ctx, conversation.NewSession(userID, conversation.StateConsent, lang))
	return []conversation.Reply{
		conversation.ChoiceReply(Text(lang, MsgConsentPrompt), Text(lang, MsgYes), Text(lang, MsgNo)),
	}
}

func (e *Engine) cancel(ctx context.Context, sess conversation.Session, exists bool, lang string) []conversation.Reply {
	if !exists || sess.State == conversation.StateStart || sess.State.Terminal() {
		return []conversation.Reply{conversation.TextReply(Text(lang, MsgNothingToCancel))}
	}
	e.sessions.Put(ctx, ended(sess))
	return []conversation.Reply{removeKeyboard(Text(lang, MsgCancelled))}
}

func (e *Engine) step(ctx context.Context, sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	switch sess.State {
	case conversation.StateConsent:
		return e.onConsent(sess, ev)
	case conversation.StateFullName:
		return e.onFullName(sess, ev)
	case conversation.StateCollectMedia:
		return e.onCollectMedia(sess, ev)
	case conversation.StateAwaitDate:
		return e.onDate(sess, ev)
	case conversation.StateAwaitLocation:
		return e.onLocation(ctx, sess, ev)
	case conversation.StateNextOrDone:
		return e.onNextOrDone(sess, ev)
	default:
		next := conversation.NewSession(sess.UserID, conversation.StateConsent, sess.Language)
		lang := sess.Language
		return next, []conversation.Reply{
			conversation.ChoiceReply(Text(lang, MsgConsentPrompt), Text(lang, MsgYes), Text(lang, MsgNo)),
		}
	}
}

func (e *Engine) onConsent(sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	if !affirmativeTokens.match(inputText(ev)) {
		return ended(sess), []conversation.Reply{removeKeyboard(Text(lang, MsgDeclined))}
	}

	next := sess.Clone()
	next.ConsentGiven = true
	next.State = conversation.StateFullName
	return next, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskName), Text(lang, MsgSkip))}
}

func (e *Engine) onFullName(sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	reprompt := []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskName), Text(lang, MsgSkip))}

	text := strings.TrimSpace(inputText(ev))
	skipped := skipTokens.match(text)
	switch {
	case skipped:
	case ev.Kind != conversation.KindText, text == "":
		return sess, reprompt
	}

	next := sess.Clone()
	next.FullName = nil
	if !skipped {
		name := truncateRunes(text, maxFullNameRunes)
		next.FullName = &name
	}
	next.MediaRefs = []conversation.MediaRef{}
	next.State = conversation.StateCollectMedia
	return next, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskMedia), Text(lang, MsgNext))}
}

func (e *Engine) onCollectMedia(sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	media := conversation.Classify(ev)

	switch media.Class {
	case conversation.MediaImage, conversation.MediaVideo:
		ref, _ := media.MediaRef()
		next := sess.Clone()
		next.MediaRefs = append(next.MediaRefs, ref)
		return next, []conversation.Reply{
			conversation.ChoiceReply(Text(lang, MsgMediaAdded, len(next.MediaRefs)), Text(lang, MsgNext)),
		}
	case conversation.MediaUnsupported:
		return sess, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgUnsupportedMedia), Text(lang, MsgNext))}
	}

	if !continueTokens.match(inputText(ev)) {
		return sess, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskMedia), Text(lang, MsgNext))}
	}
	if len(sess.MediaRefs) == 0 && e.cfg.RequireMedia {
		return sess, []conversation.Reply{conversation.TextReply(Text(lang, MsgNeedMedia))}
	}

	next := sess.Clone()
	next.State = conversation.StateAwaitDate
	return next, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskDate), Text(lang, MsgToday))}
}

func (e *Engine) onDate(sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	text := inputText(ev)

	var observedAt time.Time
	if todayTokens.match(text) {
		observedAt = e.now().In(e.cfg.Location).Truncate(time.Minute)
	} else {
		if ev.Kind != conversation.KindText {
			return sess, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgBadDate), Text(lang, MsgToday))}
		}
		ts, err := validator.ParseObservationTimestamp(text, e.cfg.Location)
		if err != nil {
			return sess, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgBadDate), Text(lang, MsgToday))}
		}
		observedAt = ts
	}

	next := sess.Clone()
	next.ObservedAt = &observedAt
	next.State = conversation.StateAwaitLocation
	return next, []conversation.Reply{removeKeyboard(Text(lang, MsgAskLocation))}
}

func (e *Engine) onLocation(ctx context.Context, sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	next := sess.Clone()
	next.Latitude, next.Longitude, next.Address = nil, nil, nil

	switch {
	case ev.Location != nil:
		lat, lon := ev.Location.Latitude, ev.Location.Longitude
		next.Latitude, next.Longitude = &lat, &lon
	case ev.Kind == conversation.KindText && strings.TrimSpace(ev.Text) != "":
		address := strings.TrimSpace(ev.Text)
		next.Address = &address
		if lat, lon, ok := validator.ExtractCoordinates(address); ok && validator.InRange(lat, lon) {
			next.Latitude, next.Longitude = &lat, &lon
		}
	default:
		return sess, []conversation.Reply{conversation.TextReply(Text(lang, MsgBadLocation))}
	}

	result := e.persist(ctx, next)
	next.State = conversation.StateNextOrDone

	var outcome string
	switch {
	case result.total == 0:
		outcome = Text(lang, MsgNothingSaved)
	case result.saved == result.total:
		outcome = Text(lang, MsgSaved, result.saved)
	case result.saved == 0:
		outcome = Text(lang, MsgSaveFailed)
	default:
		outcome = Text(lang, MsgPartiallySaved, result.saved, result.total)
	}

	return next, []conversation.Reply{
		conversation.TextReply(outcome),
		conversation.ChoiceReply(Text(lang, MsgAskMore), Text(lang, MsgAddAnother), Text(lang, MsgFinish)),
	}
}

func (e *Engine) onNextOrDone(sess conversation.Session, ev conversation.Event) (conversation.Session, []conversation.Reply) {
	lang := sess.Language
	if !addAnotherTokens.match(inputText(ev)) {
		return ended(sess), []conversation.Reply{removeKeyboard(Text(lang, MsgThanks))}
	}

	next := conversation.NewSession(sess.UserID, conversation.StateCollectMedia, lang)
	next.ConsentGiven = true
	return next, []conversation.Reply{conversation.ChoiceReply(Text(lang, MsgAskMedia), Text(lang, MsgNext))}
}

// ended keeps only the identity of a finished conversation so that later
// messages are ignored until an explicit restart.
func ended(sess conversation.Session) conversation.Session {
	return conversation.NewSession(sess.UserID, conversation.StateEnd, sess.Language)
}

func removeKeyboard(text string) conversation.Reply {
	r := conversation.TextReply(text)
	r.RemoveKeyboard = true
	return r
}

func truncateRunes(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}
