package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"igrelay/pkg/instagram"
	"igrelay/pkg/relay"
)

// mediaGroupLimit is Telegram's cap on items per media group
const mediaGroupLimit = 10

// sendDelivery sends staged media to a chat: photos batched into media
// groups, videos one by one since large uploads fail more often and a failed
// group drags everything down with it.
func (b *Bot) sendDelivery(chatID int64, delivery *relay.Delivery) error {
	if err := b.reply(chatID, delivery.Caption); err != nil {
		return err
	}

	var photos []tgbotapi.InputMediaPhoto
	flushPhotos := func() error {
		for start := 0; start < len(photos); start += mediaGroupLimit {
			end := start + mediaGroupLimit
			if end > len(photos) {
				end = len(photos)
			}
			batch := photos[start:end]

			if len(batch) == 1 {
				photo := tgbotapi.NewPhoto(chatID, batch[0].Media)
				if _, err := b.api.Send(photo); err != nil {
					return fmt.Errorf("failed to send photo: %w", err)
				}
				continue
			}

			group := make([]interface{}, 0, len(batch))
			for _, p := range batch {
				group = append(group, p)
			}
			if _, err := b.api.SendMediaGroup(tgbotapi.MediaGroupConfig{
				ChatID: chatID,
				Media:  group,
			}); err != nil {
				return fmt.Errorf("failed to send media group: %w", err)
			}
		}
		photos = photos[:0]
		return nil
	}

	for i, media := range delivery.Media {
		if delivery.Kinds[i] == instagram.MediaKindVideo {
			// Keep photo order intact around the video
			if err := flushPhotos(); err != nil {
				return err
			}
			video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(media.Path))
			if _, err := b.api.Send(video); err != nil {
				return fmt.Errorf("failed to send video: %w", err)
			}
			continue
		}
		photos = append(photos, tgbotapi.NewInputMediaPhoto(tgbotapi.FilePath(media.Path)))
	}

	return flushPhotos()
}

// reply sends a plain text message to a chat
func (b *Bot) reply(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// replyTracked sends a text message and returns its ID so it can be edited or
// deleted later. A zero ID means the send failed.
func (b *Bot) replyTracked(chatID int64, text string) int {
	sent, err := b.api.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0
	}
	return sent.MessageID
}

// editMessage rewrites a previously sent message in place
func (b *Bot) editMessage(chatID int64, messageID int, text string) {
	if messageID == 0 {
		_ = b.reply(chatID, text)
		return
	}
	_, _ = b.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

// sendTyping shows the upload-in-progress chat action
func (b *Bot) sendTyping(chatID int64) {
	action := tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadDocument)
	_, _ = b.api.Request(action)
}
