package telegram

import (
	"strconv"

	"github.com/go-telegram/bot/models"
)

// Bot API types used by the relay. They are the library's models, so the
// webhook decodes exactly what the Bot API sends.
type (
	Update                   = models.Update
	Message                  = models.Message
	User                     = models.User
	Chat                     = models.Chat
	CallbackQuery            = models.CallbackQuery
	MaybeInaccessibleMessage = models.MaybeInaccessibleMessage
	InlineKeyboardMarkup     = models.InlineKeyboardMarkup
	InlineKeyboardButton     = models.InlineKeyboardButton
)

// OutgoingMessage is a sendMessage request.
type OutgoingMessage struct {
	ChatID      int64
	Text        string
	ReplyMarkup *InlineKeyboardMarkup
}

// Inbound is an update reduced to what command dispatch needs. Button
// presses are treated as if the user had typed the button's data.
type Inbound struct {
	UserID     string
	ChatID     int64
	Text       string
	CallbackID string // set for button presses
}

// InboundFrom normalises an update. ok is false for update kinds the relay
// ignores (edits, channel posts, messages without a sender).
func InboundFrom(u *Update) (in Inbound, ok bool) {
	switch {
	case u == nil:
		return Inbound{}, false

	case u.Message != nil:
		if u.Message.From == nil {
			return Inbound{}, false
		}
		return Inbound{
			UserID: strconv.FormatInt(u.Message.From.ID, 10),
			ChatID: u.Message.Chat.ID,
			Text:   u.Message.Text,
		}, true

	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		chatID := cq.From.ID
		switch {
		case cq.Message.Message != nil:
			chatID = cq.Message.Message.Chat.ID
		case cq.Message.InaccessibleMessage != nil:
			chatID = cq.Message.InaccessibleMessage.Chat.ID
		}
		return Inbound{
			UserID:     strconv.FormatInt(cq.From.ID, 10),
			ChatID:     chatID,
			Text:       cq.Data,
			CallbackID: cq.ID,
		}, true
	}
	return Inbound{}, false
}
