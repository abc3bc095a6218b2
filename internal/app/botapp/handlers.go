package botapp

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/domain/enums"
	tginfra "github.com/asasin266/bot/internal/infra/telegram"
	"github.com/asasin266/bot/internal/pkg/sanitize"
	matchsvc "github.com/asasin266/bot/internal/services/match"
	relaysvc "github.com/asasin266/bot/internal/services/relay"
	usersvc "github.com/asasin266/bot/internal/services/users"
)

func (a *App) handleCommand(ctx context.Context, update tginfra.CommandUpdate) error {
	if err := a.users.EnsureUser(ctx, update.UserID, update.Username, update.Name); err != nil {
		a.logger.Warn("ensure user failed", zap.Int64("user_id", update.UserID), zap.Error(err))
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "start":
		if err := a.bot.SendTextWithReplyKeyboard(ctx, update.ChatID, msgMainMenu, kbMain()); err != nil {
			a.logger.Warn("send main menu failed", zap.Int64("chat_id", update.ChatID), zap.Error(err))
		}
	case "profile":
		a.showProfile(ctx, update.ChatID, update.UserID)
	case "complain":
		a.setPending(update.ChatID, pendingComplaint)
		a.sendText(ctx, update.ChatID, msgAskComplaint)
	case "setinterests":
		a.applyInterests(ctx, update.ChatID, update.UserID, update.Args)
	case "stats", "broadcast", "ban", "unban", "promote", "demote", "history":
		a.handleAdminCommand(ctx, update)
	}
	return nil
}

func (a *App) handleText(ctx context.Context, update tginfra.TextUpdate) error {
	if err := a.users.EnsureUser(ctx, update.UserID, update.Username, update.Name); err != nil {
		a.logger.Warn("ensure user failed", zap.Int64("user_id", update.UserID), zap.Error(err))
	}

	switch update.Text {
	case btnSearch, btnChangeSex:
		user, err := a.users.Get(ctx, update.UserID)
		if err == nil && user.Banned {
			a.sendText(ctx, update.ChatID, msgBanned)
			return nil
		}
		prefix := cbSearchSexPrefix
		text := msgWhoToSearch
		if update.Text == btnChangeSex {
			prefix = cbProfileSexPrefix
			text = msgChooseSex
		}
		kb := kbChooseSex(prefix)
		if err := a.bot.SendTextWithKeyboard(ctx, update.ChatID, text, &kb); err != nil {
			a.logger.Warn("send sex picker failed", zap.Int64("chat_id", update.ChatID), zap.Error(err))
		}
		return nil
	case btnNext:
		a.nextPartner(ctx, update.ChatID, update.UserID)
		return nil
	case btnEnd:
		a.endChat(ctx, update.ChatID, update.UserID)
		return nil
	case btnProfile:
		a.showProfile(ctx, update.ChatID, update.UserID)
		return nil
	case btnComplain:
		a.setPending(update.ChatID, pendingComplaint)
		a.sendText(ctx, update.ChatID, msgAskComplaint)
		return nil
	}

	switch a.takePending(update.ChatID) {
	case pendingAge:
		a.applyAge(ctx, update.ChatID, update.UserID, update.Text)
		return nil
	case pendingInterests:
		a.applyInterests(ctx, update.ChatID, update.UserID, update.Text)
		return nil
	case pendingComplaint:
		a.fileFreeFormComplaint(ctx, update.ChatID, update.UserID, update.Text)
		return nil
	}

	a.relayPayload(ctx, update.ChatID, update.UserID, relaysvc.Payload{
		Kind: enums.PayloadText,
		Text: update.Text,
	})
	return nil
}

func (a *App) handleMedia(ctx context.Context, update tginfra.MediaUpdate) error {
	if err := a.users.EnsureUser(ctx, update.UserID, update.Username, update.Name); err != nil {
		a.logger.Warn("ensure user failed", zap.Int64("user_id", update.UserID), zap.Error(err))
	}

	a.relayPayload(ctx, update.ChatID, update.UserID, relaysvc.Payload{
		Kind:     payloadKind(update.Kind),
		Caption:  sanitize.Text(update.Caption, a.cfg.Chat.TextMaxLen),
		FileID:   update.FileID,
		FileName: update.FileName,
		FileSize: update.FileSize,
	})
	return nil
}

func payloadKind(kind tginfra.MediaKind) enums.PayloadKind {
	switch kind {
	case tginfra.MediaPhoto:
		return enums.PayloadPhoto
	case tginfra.MediaVoice:
		return enums.PayloadVoice
	case tginfra.MediaDocument:
		return enums.PayloadDocument
	case tginfra.MediaSticker:
		return enums.PayloadSticker
	case tginfra.MediaVideo:
		return enums.PayloadVideo
	default:
		return enums.PayloadOther
	}
}

func (a *App) relayPayload(ctx context.Context, chatID, userID int64, payload relaysvc.Payload) {
	_, err := a.relay.Relay(ctx, userID, payload)
	if err == nil {
		return
	}

	var rateErr *relaysvc.RateLimitedError
	var rejectErr *relaysvc.PayloadRejectedError
	switch {
	case errors.As(err, &rateErr):
		a.sendText(ctx, chatID, msgTooFast)
	case errors.As(err, &rejectErr):
		if payload.Kind == enums.PayloadDocument && strings.Contains(rejectErr.Reason, "not allowed") {
			a.sendText(ctx, chatID, msgBadFileType)
		} else {
			a.sendText(ctx, chatID, msgFileTooBig)
		}
	case errors.Is(err, relaysvc.ErrBanned):
		a.sendText(ctx, chatID, msgBanned)
	case errors.Is(err, relaysvc.ErrNotPaired):
		// free text outside a dialog is ignored, as the menu covers
		// every outside-dialog action
	case errors.Is(err, relaysvc.ErrPartnerUnavailable):
		a.sendText(ctx, chatID, msgPartnerGone)
		a.sendMainMenu(ctx, chatID)
	default:
		a.logger.Error("relay failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
	}
}

func (a *App) handleCallback(ctx context.Context, update tginfra.CallbackUpdate) error {
	if err := a.users.EnsureUser(ctx, update.UserID, update.Username, update.Name); err != nil {
		a.logger.Warn("ensure user failed", zap.Int64("user_id", update.UserID), zap.Error(err))
	}

	data := strings.TrimSpace(update.Data)
	switch {
	case strings.HasPrefix(data, cbSearchSexPrefix):
		a.startSearch(ctx, update, strings.TrimPrefix(data, cbSearchSexPrefix))
	case strings.HasPrefix(data, cbProfileSexPrefix):
		a.applySex(ctx, update, strings.TrimPrefix(data, cbProfileSexPrefix))
	case data == cbNextPartner:
		a.answerCallback(ctx, update.CallbackID, "")
		a.nextPartner(ctx, update.ChatID, update.UserID)
	case data == cbEndChat:
		a.answerCallback(ctx, update.CallbackID, "")
		a.endChat(ctx, update.ChatID, update.UserID)
	case data == cbComplainPartner:
		a.complainAboutPartner(ctx, update)
	case data == cbEditSex:
		kb := kbChooseSex(cbProfileSexPrefix)
		a.answerCallback(ctx, update.CallbackID, "")
		if err := a.bot.SendTextWithKeyboard(ctx, update.ChatID, msgChooseSex, &kb); err != nil {
			a.logger.Warn("send sex picker failed", zap.Int64("chat_id", update.ChatID), zap.Error(err))
		}
	case data == cbEditAge:
		a.setPending(update.ChatID, pendingAge)
		a.answerCallback(ctx, update.CallbackID, "")
		a.sendText(ctx, update.ChatID, msgAskAge)
	case data == cbEditInterests:
		a.setPending(update.ChatID, pendingInterests)
		a.answerCallback(ctx, update.CallbackID, "")
		a.sendText(ctx, update.ChatID, msgAskInterests)
	case data == cbBecomeVIP:
		if err := a.users.GrantVIP(ctx, update.UserID); err != nil {
			a.logger.Warn("grant vip failed", zap.Int64("user_id", update.UserID), zap.Error(err))
			a.answerCallback(ctx, update.CallbackID, msgSendFailed)
			return nil
		}
		a.answerCallback(ctx, update.CallbackID, "Вы стали VIP (демо).")
		a.sendText(ctx, update.ChatID, msgNowVIP)
	default:
		a.answerCallback(ctx, update.CallbackID, "")
	}
	return nil
}

func (a *App) startSearch(ctx context.Context, update tginfra.CallbackUpdate, rawSex string) {
	filter, ok := enums.ParseSex(rawSex)
	if !ok || filter == enums.SexUnset {
		a.answerCallback(ctx, update.CallbackID, "")
		return
	}

	partnerID, err := a.match.Search(ctx, update.UserID, filter)
	if err != nil {
		switch {
		case errors.Is(err, matchsvc.ErrBanned):
			a.answerCallback(ctx, update.CallbackID, msgBanned)
		case errors.Is(err, matchsvc.ErrAlreadyPaired):
			a.answerCallback(ctx, update.CallbackID, msgPartnerFound)
		default:
			a.logger.Error("search failed", zap.Int64("user_id", update.UserID), zap.Error(err))
			a.answerCallback(ctx, update.CallbackID, msgSendFailed)
		}
		return
	}

	a.answerCallback(ctx, update.CallbackID, msgQueued)
	if partnerID == 0 {
		if err := a.bot.SendTextRemoveKeyboard(ctx, update.ChatID, msgSearching); err != nil {
			a.logger.Warn("send searching notice failed", zap.Int64("chat_id", update.ChatID), zap.Error(err))
		}
		return
	}

	a.notifyPaired(ctx, update.UserID)
	a.notifyPaired(ctx, partnerID)
}

func (a *App) notifyPaired(ctx context.Context, userID int64) {
	kb := kbDialog()
	if err := a.bot.SendTextWithKeyboard(ctx, userID, msgPartnerFound, &kb); err != nil && !tginfra.IsForbidden(err) {
		a.logger.Warn("send pairing notice failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (a *App) endChat(ctx context.Context, chatID, userID int64) {
	partnerID, err := a.match.EndChat(ctx, userID)
	if err != nil {
		if errors.Is(err, matchsvc.ErrNotPaired) {
			a.sendText(ctx, chatID, msgNotInChat)
			return
		}
		a.logger.Error("end chat failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}

	a.sendMainMenu(ctx, chatID)
	a.sendDialogEnded(ctx, partnerID)
}

func (a *App) nextPartner(ctx context.Context, chatID, userID int64) {
	abandoned, err := a.match.NextPartner(ctx, userID)
	if err != nil {
		if errors.Is(err, matchsvc.ErrBanned) {
			a.sendText(ctx, chatID, msgBanned)
			return
		}
		if errors.Is(err, matchsvc.ErrNotPaired) {
			a.sendText(ctx, chatID, msgNotInChat)
			return
		}
		a.logger.Error("next partner failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}

	if abandoned != 0 {
		a.sendDialogEnded(ctx, abandoned)
	}
	if err := a.bot.SendTextRemoveKeyboard(ctx, chatID, msgSearchingNew); err != nil {
		a.logger.Warn("send searching notice failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (a *App) sendDialogEnded(ctx context.Context, userID int64) {
	if err := a.bot.SendTextWithReplyKeyboard(ctx, userID, msgDialogEnded, kbMain()); err != nil && !tginfra.IsForbidden(err) {
		a.logger.Warn("send dialog-ended notice failed", zap.Int64("user_id", userID), zap.Error(err))
	}
}

func (a *App) sendMainMenu(ctx context.Context, chatID int64) {
	if err := a.bot.SendTextWithReplyKeyboard(ctx, chatID, msgDialogEnded, kbMain()); err != nil {
		a.logger.Warn("send main menu failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (a *App) complainAboutPartner(ctx context.Context, update tginfra.CallbackUpdate) {
	user, err := a.users.Get(ctx, update.UserID)
	if err != nil || !user.Paired() {
		a.answerCallback(ctx, update.CallbackID, msgNotInChat)
		return
	}

	if _, err := a.complaints.File(ctx, update.UserID, user.Partner, "Жалоба через кнопку"); err != nil {
		a.logger.Error("file complaint failed", zap.Int64("user_id", update.UserID), zap.Error(err))
		a.answerCallback(ctx, update.CallbackID, msgSendFailed)
		return
	}
	a.answerCallback(ctx, update.CallbackID, msgComplaintAccepted)
}

func (a *App) fileFreeFormComplaint(ctx context.Context, chatID, userID int64, text string) {
	// "<target id> <reason>" or a free description forwarded verbatim
	about := int64(0)
	reason := text
	fields := strings.Fields(text)
	if len(fields) > 0 {
		if id, err := strconv.ParseInt(fields[0], 10, 64); err == nil && id > 0 {
			about = id
			reason = strings.TrimSpace(strings.TrimPrefix(text, fields[0]))
		}
	}

	if about == 0 || about == userID {
		// no target to attach, forward to the operator as-is
		if a.cfg.Bot.AdminID != 0 {
			a.sendText(ctx, a.cfg.Bot.AdminID, fmt.Sprintf("⚠️ Обращение от %d: %s", userID, sanitize.Text(text, 500)))
		}
		a.sendText(ctx, chatID, msgComplaintAccepted)
		return
	}

	if _, err := a.complaints.File(ctx, userID, about, reason); err != nil {
		a.logger.Error("file complaint failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}
	a.sendText(ctx, chatID, msgComplaintAccepted)
}

func (a *App) showProfile(ctx context.Context, chatID, userID int64) {
	user, err := a.users.Get(ctx, userID)
	if err != nil {
		a.logger.Warn("load profile failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}

	vip := "нет"
	if user.VIP {
		vip = "да"
	}
	age := "не указан"
	if user.Age > 0 {
		age = strconv.Itoa(user.Age)
	}
	interests := "не указаны"
	if len(user.Interests) > 0 {
		interests = strings.Join(user.Interests, ", ")
	}
	text := fmt.Sprintf("Ваш профиль:\nПол: %s\nВозраст: %s\nИнтересы: %s\nVIP: %s",
		user.Sex, age, interests, vip)

	kb := kbProfile()
	if err := a.bot.SendTextWithKeyboard(ctx, chatID, text, &kb); err != nil {
		a.logger.Warn("send profile failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (a *App) applySex(ctx context.Context, update tginfra.CallbackUpdate, rawSex string) {
	if err := a.users.SetSex(ctx, update.UserID, rawSex); err != nil {
		a.answerCallback(ctx, update.CallbackID, msgSendFailed)
		return
	}
	a.answerCallback(ctx, update.CallbackID, "Пол обновлён.")
}

func (a *App) applyAge(ctx context.Context, chatID, userID int64, text string) {
	age, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		a.sendText(ctx, chatID, msgBadAge)
		return
	}
	if err := a.users.SetAge(ctx, userID, age); err != nil {
		if errors.Is(err, usersvc.ErrValidation) {
			a.sendText(ctx, chatID, msgBadAge)
			return
		}
		a.logger.Warn("set age failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}
	a.sendText(ctx, chatID, fmt.Sprintf("Возраст обновлён: %d", age))
}

func (a *App) applyInterests(ctx context.Context, chatID, userID int64, raw string) {
	if err := a.users.SetInterests(ctx, userID, trimArg(raw)); err != nil {
		a.logger.Warn("set interests failed", zap.Int64("user_id", userID), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}
	a.sendText(ctx, chatID, msgInterestsUpdated)
}

func (a *App) answerCallback(ctx context.Context, callbackID, text string) {
	if err := a.bot.AnswerCallback(ctx, callbackID, text); err != nil {
		a.logger.Warn("answer callback failed", zap.Error(err))
	}
}
