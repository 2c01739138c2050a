package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"resumeq/pkg/logx"
)

// telegramSink sends terminal-failure alerts to a Telegram chat.
//
// The bot is constructed offline so an unreachable Telegram API at startup
// cannot stop the scheduler; delivery failures surface per send. Sends are
// rate limited and silently dropped beyond the limit — an alert storm must
// not turn into an API ban.
type telegramSink struct {
	bot     *tele.Bot
	chat    *tele.Chat
	limiter *rate.Limiter
	log     logx.Logger
}

func newTelegramSink(cfg Config, log logx.Logger) (Sink, error) {
	if cfg.Token == "" {
		return nil, errors.New("alert.token is required for telegram driver")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("alert.chat_id is required for telegram driver")
	}

	bot, err := tele.NewBot(tele.Settings{Token: cfg.Token, Offline: true})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}

	perMin := cfg.RatePerMinute
	if perMin <= 0 {
		perMin = 6
	}
	return &telegramSink{
		bot:     bot,
		chat:    &tele.Chat{ID: cfg.ChatID},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin),
		log:     log,
	}, nil
}

func (s *telegramSink) Send(_ context.Context, sev Severity, msg string) error {
	if !s.limiter.Allow() {
		s.log.Warn("telegram alert dropped by rate limit", logx.String("severity", string(sev)))
		return nil
	}

	prefix := "⚠️"
	if sev == SeverityCritical {
		prefix = "🚨"
	}
	if _, err := s.bot.Send(s.chat, prefix+" "+msg, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
