package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

type Bot struct {
	api         *tgbotapi.BotAPI
	pollTimeout int
}

type CommandUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Command  string
	Args     string
}

type TextUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Text     string
}

type CallbackUpdate struct {
	CallbackID string
	ChatID     int64
	UserID     int64
	Username   string
	Name       string
	Data       string
}

// MediaKind mirrors the payload kinds the relay understands.
type MediaKind string

const (
	MediaPhoto    MediaKind = "photo"
	MediaVoice    MediaKind = "voice"
	MediaDocument MediaKind = "document"
	MediaSticker  MediaKind = "sticker"
	MediaVideo    MediaKind = "video"
)

type MediaUpdate struct {
	ChatID   int64
	UserID   int64
	Username string
	Name     string
	Kind     MediaKind
	FileID   string
	FileName string
	FileSize int64
	Caption  string
}

type Handlers struct {
	OnCommand  func(context.Context, CommandUpdate) error
	OnText     func(context.Context, TextUpdate) error
	OnMedia    func(context.Context, MediaUpdate) error
	OnCallback func(context.Context, CallbackUpdate) error
}

func NewBot(token string, pollTimeout int) (*Bot, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram bot token is empty")
	}
	if pollTimeout <= 0 {
		pollTimeout = 30
	}

	api, err := tgbotapi.NewBotAPI(strings.TrimSpace(token))
	if err != nil {
		return nil, fmt.Errorf("create telegram bot api: %w", err)
	}

	return &Bot{api: api, pollTimeout: pollTimeout}, nil
}

func (b *Bot) Listen(ctx context.Context, handlers Handlers) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}

	updateCfg := tgbotapi.NewUpdate(0)
	updateCfg.Timeout = b.pollTimeout
	updates := b.api.GetUpdatesChan(updateCfg)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			if update.Message != nil && update.Message.From != nil {
				if err := b.dispatchMessage(ctx, update.Message, handlers); err != nil {
					return err
				}
				continue
			}

			if update.CallbackQuery != nil && update.CallbackQuery.From != nil && handlers.OnCallback != nil {
				chatID := int64(0)
				if update.CallbackQuery.Message != nil {
					chatID = update.CallbackQuery.Message.Chat.ID
				}
				err := handlers.OnCallback(ctx, CallbackUpdate{
					CallbackID: update.CallbackQuery.ID,
					ChatID:     chatID,
					UserID:     update.CallbackQuery.From.ID,
					Username:   update.CallbackQuery.From.UserName,
					Name:       displayName(update.CallbackQuery.From),
					Data:       update.CallbackQuery.Data,
				})
				if err != nil {
					return err
				}
			}
		}
	}
}

func (b *Bot) dispatchMessage(ctx context.Context, msg *tgbotapi.Message, handlers Handlers) error {
	if msg.IsCommand() && handlers.OnCommand != nil {
		return handlers.OnCommand(ctx, CommandUpdate{
			ChatID:   msg.Chat.ID,
			UserID:   msg.From.ID,
			Username: msg.From.UserName,
			Name:     displayName(msg.From),
			Command:  msg.Command(),
			Args:     msg.CommandArguments(),
		})
	}

	if media, ok := extractMedia(msg); ok {
		if handlers.OnMedia == nil {
			return nil
		}
		return handlers.OnMedia(ctx, media)
	}

	text := strings.TrimSpace(msg.Text)
	if text != "" && handlers.OnText != nil {
		return handlers.OnText(ctx, TextUpdate{
			ChatID:   msg.Chat.ID,
			UserID:   msg.From.ID,
			Username: msg.From.UserName,
			Name:     displayName(msg.From),
			Text:     text,
		})
	}

	return nil
}

func extractMedia(msg *tgbotapi.Message) (MediaUpdate, bool) {
	media := MediaUpdate{
		ChatID:   msg.Chat.ID,
		UserID:   msg.From.ID,
		Username: msg.From.UserName,
		Name:     displayName(msg.From),
		Caption:  msg.Caption,
	}

	switch {
	case len(msg.Photo) > 0:
		// last entry is the largest rendition
		photo := msg.Photo[len(msg.Photo)-1]
		media.Kind = MediaPhoto
		media.FileID = photo.FileID
		media.FileSize = int64(photo.FileSize)
	case msg.Voice != nil:
		media.Kind = MediaVoice
		media.FileID = msg.Voice.FileID
		media.FileSize = int64(msg.Voice.FileSize)
	case msg.Document != nil:
		media.Kind = MediaDocument
		media.FileID = msg.Document.FileID
		media.FileName = msg.Document.FileName
		media.FileSize = int64(msg.Document.FileSize)
	case msg.Sticker != nil:
		media.Kind = MediaSticker
		media.FileID = msg.Sticker.FileID
		media.FileSize = int64(msg.Sticker.FileSize)
	case msg.Video != nil:
		media.Kind = MediaVideo
		media.FileID = msg.Video.FileID
		media.FileName = msg.Video.FileName
		media.FileSize = int64(msg.Video.FileSize)
	default:
		return MediaUpdate{}, false
	}

	return media, true
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return name
}

func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	return b.SendTextWithKeyboard(ctx, chatID, text, nil)
}

func (b *Bot) SendTextWithKeyboard(ctx context.Context, chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if keyboard != nil {
		msg.ReplyMarkup = *keyboard
	}
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

// SendTextWithReplyKeyboard attaches a persistent reply keyboard to the
// message.
func (b *Bot) SendTextWithReplyKeyboard(ctx context.Context, chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

// SendTextRemoveKeyboard clears any reply keyboard on the user's side.
func (b *Bot) SendTextRemoveKeyboard(ctx context.Context, chatID int64, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}

	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}

	_ = ctx
	return nil
}

// SendMedia re-sends media by its Telegram file id; the file bytes never
// touch this process.
func (b *Bot) SendMedia(ctx context.Context, chatID int64, kind MediaKind, fileID, caption string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if chatID == 0 {
		return fmt.Errorf("chat id is required")
	}
	if strings.TrimSpace(fileID) == "" {
		return fmt.Errorf("file id is required")
	}

	file := tgbotapi.FileID(fileID)
	var msg tgbotapi.Chattable
	switch kind {
	case MediaPhoto:
		cfg := tgbotapi.NewPhoto(chatID, file)
		cfg.Caption = caption
		msg = cfg
	case MediaVoice:
		cfg := tgbotapi.NewVoice(chatID, file)
		cfg.Caption = caption
		msg = cfg
	case MediaDocument:
		cfg := tgbotapi.NewDocument(chatID, file)
		cfg.Caption = caption
		msg = cfg
	case MediaSticker:
		msg = tgbotapi.NewSticker(chatID, file)
	case MediaVideo:
		cfg := tgbotapi.NewVideo(chatID, file)
		cfg.Caption = caption
		msg = cfg
	default:
		return fmt.Errorf("unsupported media kind: %s", kind)
	}

	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send telegram media: %w", err)
	}

	_ = ctx
	return nil
}

func (b *Bot) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if b == nil || b.api == nil {
		return fmt.Errorf("telegram bot is not initialized")
	}
	if strings.TrimSpace(callbackID) == "" {
		return nil
	}

	cfg := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cfg); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}

	_ = ctx
	return nil
}

// IsForbidden reports whether the error means the user blocked the bot or
// deleted the account, so no message will ever reach them again.
func IsForbidden(err error) bool {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == 403
	}
	return false
}
