package bot

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"igrelay/pkg/accounts"
	"igrelay/pkg/config"
	"igrelay/pkg/instagram"
	"igrelay/pkg/logger"
	"igrelay/pkg/ratelimit"
	"igrelay/pkg/relay"
)

// Bot runs the Telegram update loop and owns all per-chat state
type Bot struct {
	api         *tgbotapi.BotAPI
	cfg         *config.Config
	relay       *relay.Relay
	pool        *accounts.Manager
	igSessions  *instagram.SessionStore
	chatLimiter *ratelimit.PerChatLimiter
	chats       *sessionStore
	logger      logger.Logger
}

// New connects to the Telegram Bot API
func New(
	cfg *config.Config,
	rel *relay.Relay,
	pool *accounts.Manager,
	igSessions *instagram.SessionStore,
	log logger.Logger,
) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}

	log.InfoWithFields("connected to Telegram", map[string]interface{}{
		"bot": api.Self.UserName,
	})

	return &Bot{
		api:         api,
		cfg:         cfg,
		relay:       rel,
		pool:        pool,
		igSessions:  igSessions,
		chatLimiter: ratelimit.NewPerChatLimiter(cfg.RateLimit.PerChatPerHour, cfg.RateLimit.PerChatPerDay),
		chats:       newSessionStore(),
		logger:      log,
	}, nil
}

// Username returns the bot's Telegram username
func (b *Bot) Username() string {
	return b.api.Self.UserName
}

// Run receives updates until the context is cancelled
func (b *Bot) Run(ctx context.Context) error {
	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.cfg.Telegram.PollTimeout

	updates := b.api.GetUpdatesChan(updateCfg)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			b.logger.Info("update loop stopped")
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Text == "" {
				continue
			}
			// Fetches block on Instagram and media uploads; never
			// stall the update loop on them.
			go b.handleMessage(ctx, update.Message)
		}
	}
}

// handleMessage dispatches one incoming message
func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.ErrorWithFields("handler panic", map[string]interface{}{
				"chat_id": msg.Chat.ID,
				"panic":   fmt.Sprintf("%v", r),
			})
		}
	}()

	b.logger.DebugWithFields("message received", map[string]interface{}{
		"chat_id": msg.Chat.ID,
		"command": msg.Command(),
	})

	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	b.handleText(ctx, msg)
}
