package bot

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"igrelay/pkg/instagram"
	"igrelay/pkg/link"
	"igrelay/pkg/relay"
)

// handleCommand dispatches a /command message
func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		_ = b.reply(msg.Chat.ID, msgWelcome)
	case "help":
		text := msgHelp
		if b.cfg.IsAdmin(msg.From.ID) {
			text += "\n\n" + msgAdminHelp
		}
		_ = b.reply(msg.Chat.ID, text)
	case "login":
		b.handleLogin(ctx, msg)
	case "verify":
		b.handleVerify(ctx, msg, strings.TrimSpace(msg.CommandArguments()))
	case "status":
		b.handleStatus(msg)
	case "accounts", "addaccount", "removeaccount", "rotate",
		"setlimit", "setcooldown", "autorotate", "stoprotation", "rotationstatus":
		b.handleAdminCommand(ctx, msg)
	default:
		_ = b.reply(msg.Chat.ID, "Unknown command. Try /help.")
	}
}

// handleLogin starts an Instagram login for the chat
func (b *Bot) handleLogin(ctx context.Context, msg *tgbotapi.Message) {
	// The message holds a password; remove it from the chat history first
	b.deleteMessage(msg.Chat.ID, msg.MessageID)

	if !msg.Chat.IsPrivate() {
		_ = b.reply(msg.Chat.ID, msgLoginPrivateOnly)
		return
	}

	fields := strings.Fields(msg.CommandArguments())
	if len(fields) != 2 {
		_ = b.reply(msg.Chat.ID, msgLoginUsage)
		return
	}
	username := link.SanitizeUsername(fields[0])
	password := fields[1]

	session := b.chats.get(msg.Chat.ID)
	session.mu.Lock()
	defer session.mu.Unlock()

	client := instagram.NewClient(&b.cfg.Instagram, b.logger)

	// A saved session skips the login (and its challenge risk) entirely
	restored, err := b.igSessions.Restore(client, username)
	if err != nil {
		b.logger.WithError(err).Warn("failed to restore chat session")
	}
	if restored {
		session.client = client
		session.igUsername = username
		session.clearPending()
		_ = b.reply(msg.Chat.ID, fmt.Sprintf(msgLoginSuccess, username))
		return
	}

	err = client.Login(ctx, username, password)
	if err == nil {
		session.client = client
		session.igUsername = username
		session.clearPending()
		if saveErr := b.igSessions.Save(client); saveErr != nil {
			b.logger.WithError(saveErr).Warn("failed to save chat session")
		}
		_ = b.reply(msg.Chat.ID, fmt.Sprintf(msgLoginSuccess, username))
		return
	}

	var challenge *instagram.ChallengeError
	if stderrors.As(err, &challenge) {
		session.pendingClient = client
		session.igUsername = username
		session.pendingIdentifier = challenge.Identifier
		session.pendingExpiry = time.Now().Add(b.cfg.Instagram.VerificationWait)
		_ = b.reply(msg.Chat.ID, fmt.Sprintf(msgChallengeSent, b.cfg.Instagram.VerificationWait))
		return
	}

	b.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Warn("chat login failed")
	_ = b.reply(msg.Chat.ID, "Login failed: "+userMessage(err))
}

// handleVerify completes a pending login with a verification code
func (b *Bot) handleVerify(ctx context.Context, msg *tgbotapi.Message, code string) {
	if !link.IsVerificationCode(code) {
		_ = b.reply(msg.Chat.ID, msgVerifyUsage)
		return
	}

	session := b.chats.get(msg.Chat.ID)
	session.mu.Lock()
	defer session.mu.Unlock()

	if session.pendingExpired() {
		session.clearPending()
		_ = b.reply(msg.Chat.ID, msgVerificationExpired)
		return
	}
	if !session.pending() {
		_ = b.reply(msg.Chat.ID, msgNoPendingVerification)
		return
	}

	client := session.pendingClient
	err := client.SubmitVerificationCode(ctx, session.igUsername, session.pendingIdentifier, code)
	if err != nil {
		b.logger.WithError(err).WithField("chat_id", msg.Chat.ID).Warn("verification failed")
		_ = b.reply(msg.Chat.ID, "Verification failed: "+userMessage(err))
		return
	}

	session.client = client
	session.clearPending()
	if saveErr := b.igSessions.Save(client); saveErr != nil {
		b.logger.WithError(saveErr).Warn("failed to save chat session")
	}
	_ = b.reply(msg.Chat.ID, fmt.Sprintf(msgLoginSuccess, session.igUsername))
}

// handleStatus reports the chat's login and the bot's pool state for admins
func (b *Bot) handleStatus(msg *tgbotapi.Message) {
	session := b.chats.get(msg.Chat.ID)
	session.mu.Lock()

	var sb strings.Builder
	switch {
	case session.client != nil:
		fmt.Fprintf(&sb, "Logged in as @%s.\n", session.igUsername)
	case session.pending():
		fmt.Fprintf(&sb, "Waiting for a verification code for @%s (expires %s).\n",
			session.igUsername, time.Until(session.pendingExpiry).Round(time.Second))
	default:
		sb.WriteString("Not logged in. Public profiles only.\n")
	}
	session.mu.Unlock()

	if b.cfg.IsAdmin(msg.From.ID) {
		status := b.pool.Status()
		fmt.Fprintf(&sb, "\nPool: %d accounts (%d available, %d cooling, %d banned), active: %s",
			status.Total, status.Available, status.Cooling, status.Banned, orNone(status.Active))
	}

	_ = b.reply(msg.Chat.ID, sb.String())
}

// handleText routes plain text: pending verification codes first, then
// anything that parses as a profile, post or reel reference.
func (b *Bot) handleText(ctx context.Context, msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)

	if link.IsVerificationCode(text) {
		session := b.chats.get(msg.Chat.ID)
		session.mu.Lock()
		waiting := session.pending() || session.pendingExpired()
		session.mu.Unlock()
		if waiting {
			b.handleVerify(ctx, msg, text)
			return
		}
	}

	target, ok := link.Parse(text)
	if !ok {
		_ = b.reply(msg.Chat.ID, msgUnrecognized)
		return
	}

	if allowed, retryAfter := b.chatLimiter.Allow(msg.Chat.ID); !allowed {
		_ = b.reply(msg.Chat.ID, rateLimitedMessage(retryAfter))
		return
	}

	b.fetchAndSend(ctx, msg.Chat.ID, target)
}

// fetchAndSend runs a relay request end to end for one chat. A progress
// message is posted up front and either removed once the media lands or
// rewritten with what went wrong.
func (b *Bot) fetchAndSend(ctx context.Context, chatID int64, target link.Target) {
	b.sendTyping(chatID)
	progressID := b.replyTracked(chatID, msgFetching)

	session := b.chats.get(chatID)
	session.mu.Lock()
	chatClient := session.client
	session.mu.Unlock()

	start := time.Now()
	delivery, err := b.relay.Fetch(ctx, relay.Request{
		Target:     target,
		ChatClient: chatClient,
	})
	if err != nil {
		b.logger.WarnWithFields("fetch failed", map[string]interface{}{
			"chat_id": chatID,
			"kind":    string(target.Kind),
			"error":   err.Error(),
		})
		b.editMessage(chatID, progressID, userMessage(err))
		return
	}
	defer delivery.Cleanup()

	if progressID != 0 {
		b.deleteMessage(chatID, progressID)
	}

	if err := b.sendDelivery(chatID, delivery); err != nil {
		b.logger.WithError(err).WithField("chat_id", chatID).Error("failed to send media")
		_ = b.reply(chatID, "I fetched the media but couldn't send it. Please try again.")
		return
	}

	b.logger.InfoWithFields("request served", map[string]interface{}{
		"chat_id":  chatID,
		"kind":     string(target.Kind),
		"items":    len(delivery.Media),
		"duration": time.Since(start),
	})
}

// deleteMessage removes a message, ignoring failures (the bot may lack the
// delete permission in groups)
func (b *Bot) deleteMessage(chatID int64, messageID int) {
	_, _ = b.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
