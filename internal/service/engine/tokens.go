package engine

import (
	"strings"

	"github.com/zhouzirui/pollinator-bot/backend/internal/model/conversation"
)

type tokenSet map[string]struct{}

func newTokenSet(label Message, extra ...string) tokenSet {
	set := make(tokenSet)
	for _, lang := range Languages {
		set[normalize(Text(lang, label))] = struct{}{}
	}
	for _, token := range extra {
		set[normalize(token)] = struct{}{}
	}
	return set
}

func (s tokenSet) match(text string) bool {
	_, ok := s[normalize(text)]
	return ok
}

var (
	affirmativeTokens = newTokenSet(MsgYes, "yes", "y", "да", "ага", "иә", "ия", "ok", "ок", "согласен", "согласна", "agree", "+")
	skipTokens        = newTokenSet(MsgSkip, "skip", "/skip", "пропустить", "өткізу", "-")
	continueTokens    = newTokenSet(MsgNext, "next", "/next", "далее", "дальше", "готово", "done", "келесі")
	todayTokens       = newTokenSet(MsgToday, "today", "/today", "сегодня", "бүгін")
	addAnotherTokens  = newTokenSet(MsgAddAnother, "add", "/add", "ещё", "еще", "добавить", "добавить еще", "тағы", "more", "add another")
)

func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.TrimRight(text, ".!")
}

// inputText returns the text an event carries for token matching.
func inputText(ev conversation.Event) string {
	if ev.Kind == conversation.KindCommand {
		return "/" + ev.Command
	}
	return ev.Text
}
