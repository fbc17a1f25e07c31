// Package telegram is the Telegram front-end for Deskmate.
package telegram

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	tele "gopkg.in/telebot.v4"

	"github.com/sarkar-ai-taken/deskmate/internal/gateway"
	. "github.com/sarkar-ai-taken/deskmate/internal/logging"
	"github.com/sarkar-ai-taken/deskmate/internal/types"
)

// messageLimit is Telegram's maximum message length.
const messageLimit = 4096

// captionLimit is Telegram's maximum caption length.
const captionLimit = 1024

// ApprovalHandler resolves an approval response and returns a short status
// line to show on the prompt message.
type ApprovalHandler func(resp types.ApprovalResponse) string

// Bot is the Telegram messaging client.
type Bot struct {
	bot       *tele.Bot
	handler   gateway.MessageHandler
	approvals ApprovalHandler

	mu      sync.Mutex
	prompts map[string]sentPrompt // key: channelID + ":" + actionID
}

// sentPrompt remembers a delivered approval prompt so a later decision can
// rewrite it.
type sentPrompt struct {
	msg *tele.Message
	at  time.Time
}

// New creates the bot and verifies the token against the API.
func New(token string, approvals ApprovalHandler) (*Bot, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token not configured")
	}

	pref := tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	bot, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	L_debug("telegram: bot created", "username", bot.Me.Username, "id", bot.Me.ID)

	b := &Bot{bot: bot, approvals: approvals, prompts: make(map[string]sentPrompt)}
	b.setupHandlers()
	return b, nil
}

// ClientType identifies the client in sessions and the user allowlist.
func (b *Bot) ClientType() string {
	return "telegram"
}

// MaxMessageLength returns Telegram's message size limit.
func (b *Bot) MaxMessageLength() int {
	return messageLimit
}

// Start begins long polling. The poll loop runs on its own goroutine.
func (b *Bot) Start(handler gateway.MessageHandler) error {
	b.handler = handler
	L_info("telegram: starting", "username", b.bot.Me.Username)
	go b.bot.Start()
	return nil
}

// Stop halts polling.
func (b *Bot) Stop() {
	L_info("telegram: stopping")
	b.bot.Stop()
}

func (b *Bot) setupHandlers() {
	b.bot.Handle(tele.OnText, b.handleText)
	b.bot.Handle(&tele.Btn{Unique: approveUnique}, b.handleApprovalCallback(true))
	b.bot.Handle(&tele.Btn{Unique: rejectUnique}, b.handleApprovalCallback(false))
}

// handleText forwards every text message, commands included, to the
// gateway. Group chats are ignored.
func (b *Bot) handleText(c tele.Context) error {
	if c.Chat().Type != tele.ChatPrivate {
		L_debug("telegram: ignoring group message", "chatID", c.Chat().ID)
		return nil
	}
	if b.handler == nil {
		return nil
	}

	sender := c.Sender()
	name := strings.TrimSpace(sender.FirstName + " " + sender.LastName)
	if name == "" {
		name = sender.Username
	}

	b.handler(types.IncomingMessage{
		ClientType: b.ClientType(),
		ChannelID:  strconv.FormatInt(c.Chat().ID, 10),
		UserID:     strconv.FormatInt(sender.ID, 10),
		UserName:   name,
		Text:       c.Text(),
	})
	return nil
}

// SendMessage sends text to a chat and returns the message id. With
// markdown set, the text is rendered to Telegram HTML with a plain-text
// fallback.
func (b *Bot) SendMessage(channelID, text string, markdown bool) (string, error) {
	chat, err := chatFor(channelID)
	if err != nil {
		return "", err
	}

	var msg *tele.Message
	if markdown {
		msg, err = b.bot.Send(chat, FormatMessage(text), &tele.SendOptions{ParseMode: tele.ModeHTML})
		if err != nil {
			L_debug("telegram: HTML send failed, falling back to plain text", "error", err)
			msg, err = b.bot.Send(chat, text)
		}
	} else {
		msg, err = b.bot.Send(chat, text)
	}
	if err != nil {
		return "", fmt.Errorf("telegram send: %w", err)
	}
	return strconv.Itoa(msg.ID), nil
}

// EditMessage replaces a sent message's text. With markdown set, the HTML
// rendering is attempted once and its failure returned, so the caller can
// decide to retry plain.
func (b *Bot) EditMessage(channelID, messageID, text string, markdown bool) error {
	chat, err := chatFor(channelID)
	if err != nil {
		return err
	}
	msgID, err := strconv.Atoi(messageID)
	if err != nil {
		return fmt.Errorf("telegram edit: bad message id %q", messageID)
	}
	msg := &tele.Message{ID: msgID, Chat: chat}

	if markdown {
		_, err = b.bot.Edit(msg, FormatMessage(text), &tele.SendOptions{ParseMode: tele.ModeHTML})
	} else {
		_, err = b.bot.Edit(msg, text)
	}
	if err != nil {
		return fmt.Errorf("telegram edit: %w", err)
	}
	return nil
}

// SendFile delivers a file, as a photo when the content is an image and as
// a document otherwise.
func (b *Bot) SendFile(channelID, path, caption string) error {
	chat, err := chatFor(channelID)
	if err != nil {
		return err
	}
	if len(caption) > captionLimit {
		caption = caption[:captionLimit]
	}

	var media any
	if mtype, err := mimetype.DetectFile(path); err == nil && strings.HasPrefix(mtype.String(), "image/") {
		media = &tele.Photo{File: tele.FromDisk(path), Caption: caption}
	} else {
		media = &tele.Document{File: tele.FromDisk(path), Caption: caption, FileName: filepath.Base(path)}
	}

	if _, err := b.bot.Send(chat, media); err != nil {
		return fmt.Errorf("telegram send file: %w", err)
	}
	L_debug("telegram: sent file", "channel", channelID, "path", path)
	return nil
}

func chatFor(channelID string) (*tele.Chat, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("telegram: bad channel id %q", channelID)
	}
	return &tele.Chat{ID: id}, nil
}
