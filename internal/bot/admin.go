package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"igrelay/pkg/accounts"
	"igrelay/pkg/link"
)

// handleAdminCommand dispatches rotation pool management commands
func (b *Bot) handleAdminCommand(ctx context.Context, msg *tgbotapi.Message) {
	if !b.cfg.IsAdmin(msg.From.ID) {
		_ = b.reply(msg.Chat.ID, msgNotAdmin)
		return
	}

	args := strings.Fields(msg.CommandArguments())

	switch msg.Command() {
	case "accounts":
		b.adminListAccounts(msg.Chat.ID)
	case "addaccount":
		b.adminAddAccount(msg, args)
	case "removeaccount":
		b.adminRemoveAccount(msg.Chat.ID, args)
	case "rotate":
		b.adminRotate(msg.Chat.ID)
	case "setlimit":
		b.adminSetLimit(msg.Chat.ID, args)
	case "setcooldown":
		b.adminSetCooldown(msg.Chat.ID, args)
	case "autorotate":
		b.adminAutoRotate(ctx, msg.Chat.ID)
	case "stoprotation":
		b.adminStopRotation(msg.Chat.ID)
	case "rotationstatus":
		b.adminRotationStatus(msg.Chat.ID)
	}
}

func (b *Bot) adminListAccounts(chatID int64) {
	states := b.pool.List()
	if len(states) == 0 {
		_ = b.reply(chatID, "The rotation pool is empty. Add accounts with /addaccount.")
		return
	}

	active := b.pool.Active()
	limit := b.pool.DailyLimit()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Rotation pool (%d accounts):\n", len(states))
	for _, st := range states {
		marker := " "
		if st.Username == active {
			marker = "*"
		}
		fmt.Fprintf(&sb, "%s %s - %s, %d/%d today", marker, st.Username, st.Status, st.UsedToday, limit)
		if st.Status == accounts.StatusCooling {
			fmt.Fprintf(&sb, " (back %s)", st.CooldownUntil.Format("15:04"))
		}
		sb.WriteString("\n")
	}
	_ = b.reply(chatID, sb.String())
}

func (b *Bot) adminAddAccount(msg *tgbotapi.Message, args []string) {
	// The message holds a password; remove it from the chat history first
	b.deleteMessage(msg.Chat.ID, msg.MessageID)

	if len(args) != 2 {
		_ = b.reply(msg.Chat.ID, "Usage: /addaccount <username> <password>")
		return
	}
	username := link.SanitizeUsername(args[0])

	if err := b.pool.Add(username, args[1]); err != nil {
		_ = b.reply(msg.Chat.ID, "Couldn't add account: "+err.Error())
		return
	}
	_ = b.reply(msg.Chat.ID, fmt.Sprintf("Added @%s to the rotation pool.", username))
}

func (b *Bot) adminRemoveAccount(chatID int64, args []string) {
	if len(args) != 1 {
		_ = b.reply(chatID, "Usage: /removeaccount <username>")
		return
	}
	username := link.SanitizeUsername(args[0])

	if err := b.pool.Remove(username); err != nil {
		_ = b.reply(chatID, "Couldn't remove account: "+err.Error())
		return
	}
	_ = b.reply(chatID, fmt.Sprintf("Removed @%s from the rotation pool.", username))
}

func (b *Bot) adminRotate(chatID int64) {
	username, err := b.pool.Rotate()
	if err != nil {
		_ = b.reply(chatID, "Couldn't rotate: "+err.Error())
		return
	}
	_ = b.reply(chatID, fmt.Sprintf("Active account is now @%s.", username))
}

func (b *Bot) adminSetLimit(chatID int64, args []string) {
	if len(args) != 1 {
		_ = b.reply(chatID, "Usage: /setlimit <requests per day>")
		return
	}
	limit, err := strconv.Atoi(args[0])
	if err != nil || limit <= 0 {
		_ = b.reply(chatID, "The limit must be a positive number.")
		return
	}

	if err := b.pool.SetDailyLimit(limit); err != nil {
		_ = b.reply(chatID, "Couldn't set limit: "+err.Error())
		return
	}
	_ = b.reply(chatID, fmt.Sprintf("Daily limit set to %d requests per account.", limit))
}

func (b *Bot) adminSetCooldown(chatID int64, args []string) {
	if len(args) != 1 {
		_ = b.reply(chatID, "Usage: /setcooldown <hours>")
		return
	}
	hours, err := strconv.ParseFloat(args[0], 64)
	if err != nil || hours <= 0 {
		_ = b.reply(chatID, "The cooldown must be a positive number of hours.")
		return
	}

	cooldown := time.Duration(hours * float64(time.Hour))
	if err := b.pool.SetCooldown(cooldown); err != nil {
		_ = b.reply(chatID, "Couldn't set cooldown: "+err.Error())
		return
	}
	_ = b.reply(chatID, fmt.Sprintf("Cooldown set to %s.", cooldown))
}

func (b *Bot) adminAutoRotate(ctx context.Context, chatID int64) {
	if err := b.pool.StartAutoRotate(ctx); err != nil {
		_ = b.reply(chatID, "Couldn't start auto-rotation: "+err.Error())
		return
	}
	_ = b.reply(chatID, "Auto-rotation started.")
}

func (b *Bot) adminStopRotation(chatID int64) {
	if err := b.pool.StopAutoRotate(); err != nil {
		_ = b.reply(chatID, "Couldn't stop auto-rotation: "+err.Error())
		return
	}
	_ = b.reply(chatID, "Auto-rotation stopped.")
}

func (b *Bot) adminRotationStatus(chatID int64) {
	status := b.pool.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Active account: %s\n", orNone(status.Active))
	fmt.Fprintf(&sb, "Accounts: %d total, %d available, %d cooling, %d banned\n",
		status.Total, status.Available, status.Cooling, status.Banned)
	fmt.Fprintf(&sb, "Daily limit: %d, cooldown: %s\n", status.DailyLimit, status.Cooldown)
	if status.Active != "" {
		fmt.Fprintf(&sb, "Active usage today: %.0f%%\n", status.ActiveUsage*100)
	}
	if status.AutoRotating {
		sb.WriteString("Auto-rotation: running")
	} else {
		sb.WriteString("Auto-rotation: stopped")
	}
	_ = b.reply(chatID, sb.String())
}
