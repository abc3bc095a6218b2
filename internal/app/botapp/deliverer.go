package botapp

import (
	"context"
	"fmt"

	"github.com/asasin266/bot/internal/domain/enums"
	"github.com/asasin266/bot/internal/domain/model"
	tginfra "github.com/asasin266/bot/internal/infra/telegram"
	relaysvc "github.com/asasin266/bot/internal/services/relay"
)

// botDeliverer pushes relayed payloads out through Telegram. A 403 from
// the API means the recipient blocked the bot, which the relay treats as
// a dead partner.
type botDeliverer struct {
	bot *tginfra.Bot
}

func (d *botDeliverer) Deliver(ctx context.Context, recipientID int64, payload relaysvc.Payload) error {
	var err error
	switch payload.Kind {
	case enums.PayloadText:
		err = d.bot.SendText(ctx, recipientID, payload.Text)
	case enums.PayloadPhoto:
		err = d.bot.SendMedia(ctx, recipientID, tginfra.MediaPhoto, payload.FileID, payload.Caption)
	case enums.PayloadVoice:
		err = d.bot.SendMedia(ctx, recipientID, tginfra.MediaVoice, payload.FileID, payload.Caption)
	case enums.PayloadDocument:
		err = d.bot.SendMedia(ctx, recipientID, tginfra.MediaDocument, payload.FileID, payload.Caption)
	case enums.PayloadSticker:
		err = d.bot.SendMedia(ctx, recipientID, tginfra.MediaSticker, payload.FileID, "")
	case enums.PayloadVideo:
		err = d.bot.SendMedia(ctx, recipientID, tginfra.MediaVideo, payload.FileID, payload.Caption)
	default:
		return fmt.Errorf("unsupported payload kind: %s", payload.Kind)
	}

	if err != nil {
		if tginfra.IsForbidden(err) {
			return relaysvc.ErrRecipientUnreachable
		}
		return err
	}
	return nil
}

// adminNotifier forwards filed complaints to the operator chat.
type adminNotifier struct {
	bot     *tginfra.Bot
	adminID int64
}

func (n *adminNotifier) NotifyComplaint(ctx context.Context, complaint model.Complaint) error {
	if n.adminID == 0 {
		return nil
	}
	text := fmt.Sprintf("⚠️ Жалоба: от %d на %d\nПричина: %s",
		complaint.FromUser, complaint.AboutUser, complaint.Reason)
	return n.bot.SendText(ctx, n.adminID, text)
}
