// Package bot wires the holiday commands onto the router.
package bot

import (
	"context"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"holidaybot/internal/holidays"
	kit "holidaybot/internal/transport"
	"holidaybot/internal/transport/router"
	logx "holidaybot/pkg/logx"
	"holidaybot/pkg/tgui"
)

const (
	textStart = "Привет! Этот бот отвечает за праздники чата. " +
		"Используйте /holidays или дождитесь автоматической рассылки."
	textChatNotConfigured = "ID чата ещё не настроен. Сначала выполните /chatid в нужном чате " +
		"и укажите значение telegram.target_chat_id в конфигурации."
	textAdminOnly    = "Команда доступна только администраторам."
	textTimeRequired = "Укажите время в формате ЧЧ:ММ, например 08:30."
	textChatIDHint   = "Укажите его в telegram.target_chat_id, чтобы бот работал только здесь."
)

type Options struct {
	DigestLimit int
	Clock       func() time.Time
}

// Bot holds the command handlers. The digest limit is hot-reloadable.
type Bot struct {
	svc         *holidays.Service
	clock       func() time.Time
	digestLimit atomic.Int64
}

func New(svc *holidays.Service, opt Options) *Bot {
	if opt.Clock == nil {
		opt.Clock = time.Now
	}
	b := &Bot{svc: svc, clock: opt.Clock}
	b.SetDigestLimit(opt.DigestLimit)
	return b
}

func (b *Bot) SetDigestLimit(n int) {
	if n <= 0 {
		n = holidays.DefaultDigestLimit
	}
	b.digestLimit.Store(int64(n))
}

func (b *Bot) DigestLimit() int { return int(b.digestLimit.Load()) }

// Commands returns the command set in menu order.
func (b *Bot) Commands() []router.Command {
	return []router.Command{
		{
			Name:        "start",
			Description: "Описание HolidayBot",
			Usage:       "/start",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, textStart)
			},
		},
		{
			Name:        "holidays",
			Description: "Праздники на сегодня",
			Usage:       "/holidays",
			Timeout:     20 * time.Second,
			Handle:      b.cmdHolidays,
		},
		{
			Name:         "holidaystime",
			Description:  "Время автопубликации",
			Usage:        "/holidaystime [ЧЧ:ММ]",
			Access:       router.AccessAdmin,
			Precondition: requireTargetChat,
			Handle:       b.cmdHolidaysTime,
		},
		{
			Name:        "chatid",
			Description: "ID этого чата",
			Usage:       "/chatid",
			Handle: func(ctx context.Context, req *router.Request) error {
				return req.Reply(ctx, "ID этого чата: "+tgui.Code(strconv.FormatInt(req.Chat.ChatID, 10)).String()+"\n"+textChatIDHint)
			},
		},
	}
}

// RouterOptions carries the reply texts the router needs for these commands.
func RouterOptions() router.Options {
	return router.Options{
		DenyText: textAdminOnly,
		BusyText: "Бот занят, попробуйте чуть позже.",
	}
}

func (b *Bot) cmdHolidays(ctx context.Context, req *router.Request) error {
	r := b.svc.TodayHolidays(ctx, b.clock(), false)
	req.Logger.Debug("holidays served", logx.Int("count", r.Len()), logx.String("annotation", r.Error))
	return req.Reply(ctx, holidays.FormatDigest(r, b.DigestLimit()))
}

func (b *Bot) cmdHolidaysTime(ctx context.Context, req *router.Request) error {
	store := b.svc.Store()
	if req.Rest == "" {
		return req.Reply(ctx, "Текущее время автопубликации: "+store.AutopostTime()+" (МСК).")
	}
	// Quotes are stripped, so `/holidaystime ""` counts as an empty value.
	value := strings.TrimSpace(strings.Join(req.Args, " "))
	if value == "" {
		return req.Reply(ctx, textTimeRequired)
	}
	normalized, changed, err := store.SetAutopostTime(value)
	if err != nil {
		return req.Reply(ctx, err.Error())
	}
	if changed {
		req.Logger.Info("autopost time changed by command", logx.String("value", normalized))
	}
	return req.Reply(ctx, "Время автопубликации обновлено: "+normalized+" (МСК).")
}

func requireTargetChat(req *router.Request) string {
	if req.Policy.TargetChatID == 0 {
		return textChatNotConfigured
	}
	return ""
}

// StartupCheck logs the warnings an operator needs before the first autopost:
// a missing target chat or a bot without admin rights in it.
func StartupCheck(ctx context.Context, checker kit.ChatAdminChecker, targetChatID int64, log logx.Logger) {
	if targetChatID == 0 {
		log.Warn("target chat not configured; run /chatid in the destination chat and set telegram.target_chat_id")
		return
	}
	if checker == nil {
		return
	}
	ok, err := checker.IsChatAdmin(ctx, targetChatID, checker.SelfID())
	switch {
	case err != nil:
		log.Warn("cannot verify bot rights in target chat", logx.Int64("chat_id", targetChatID), logx.Err(err))
	case !ok:
		log.Warn("bot is not an administrator of the target chat", logx.Int64("chat_id", targetChatID))
	}
}
