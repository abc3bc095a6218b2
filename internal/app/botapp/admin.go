package botapp

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	tginfra "github.com/asasin266/bot/internal/infra/telegram"
)

const broadcastPause = 50 * time.Millisecond

func (a *App) handleAdminCommand(ctx context.Context, update tginfra.CommandUpdate) {
	if !a.isAdmin(update.UserID) {
		a.sendText(ctx, update.ChatID, msgNoAccess)
		return
	}

	switch strings.ToLower(strings.TrimSpace(update.Command)) {
	case "stats":
		a.adminStats(ctx, update.ChatID)
	case "broadcast":
		a.adminBroadcast(ctx, update.ChatID, update.Args)
	case "ban":
		a.adminBan(ctx, update.ChatID, update.Args)
	case "unban":
		a.adminUnban(ctx, update.ChatID, update.Args)
	case "promote":
		a.adminSetVIP(ctx, update.ChatID, update.Args, true)
	case "demote":
		a.adminSetVIP(ctx, update.ChatID, update.Args, false)
	case "history":
		a.adminHistory(ctx, update.ChatID, update.Args)
	}
}

func (a *App) adminStats(ctx context.Context, chatID int64) {
	stats, err := a.users.Stats(ctx)
	if err != nil {
		a.logger.Error("load stats failed", zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}
	a.sendText(ctx, chatID, fmt.Sprintf(
		"👥 Пользователей: %d\n⭐ VIP: %d\n⛔ Заблокировано: %d\n⏳ В очереди: %d",
		stats.Total, stats.VIP, stats.Banned, stats.Queued,
	))
}

func (a *App) adminBroadcast(ctx context.Context, chatID int64, args string) {
	text := trimArg(args)
	if text == "" {
		a.sendText(ctx, chatID, "Использование: /broadcast текст")
		return
	}

	ids, err := a.users.ListIDs(ctx)
	if err != nil {
		a.logger.Error("list users for broadcast failed", zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}

	runID := uuid.NewString()
	a.logger.Info("broadcast started",
		zap.String("run_id", runID),
		zap.Int("recipients", len(ids)),
	)

	sent := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if err := a.bot.SendText(ctx, id, "📢 Админ: "+text); err != nil {
			continue
		}
		sent++
		time.Sleep(broadcastPause)
	}

	a.logger.Info("broadcast finished", zap.String("run_id", runID), zap.Int("sent", sent))
	a.sendText(ctx, chatID, fmt.Sprintf("Отправлено %d сообщений.", sent))
}

func (a *App) adminBan(ctx context.Context, chatID int64, args string) {
	target, ok := parseTargetID(args)
	if !ok {
		a.sendText(ctx, chatID, "Использование: /ban <user_id>")
		return
	}

	exPartner, err := a.users.Ban(ctx, target)
	if err != nil {
		a.logger.Error("ban failed", zap.Int64("target_id", target), zap.Error(err))
		a.sendText(ctx, chatID, "Ошибка: "+err.Error())
		return
	}

	a.sendText(ctx, target, "⛔ Вы заблокированы администратором.")
	if exPartner != 0 {
		a.sendDialogEnded(ctx, exPartner)
	}
	a.sendText(ctx, chatID, "OK")
}

func (a *App) adminUnban(ctx context.Context, chatID int64, args string) {
	target, ok := parseTargetID(args)
	if !ok {
		a.sendText(ctx, chatID, "Использование: /unban <user_id>")
		return
	}

	if err := a.users.Unban(ctx, target); err != nil {
		a.logger.Error("unban failed", zap.Int64("target_id", target), zap.Error(err))
		a.sendText(ctx, chatID, "Ошибка: "+err.Error())
		return
	}
	a.sendText(ctx, chatID, "OK")
}

func (a *App) adminSetVIP(ctx context.Context, chatID int64, args string, vip bool) {
	usage := "Использование: /promote <user_id>"
	if !vip {
		usage = "Использование: /demote <user_id>"
	}
	target, ok := parseTargetID(args)
	if !ok {
		a.sendText(ctx, chatID, usage)
		return
	}

	var err error
	if vip {
		err = a.users.GrantVIP(ctx, target)
	} else {
		err = a.users.RevokeVIP(ctx, target)
	}
	if err != nil {
		a.logger.Error("set vip failed", zap.Int64("target_id", target), zap.Bool("vip", vip), zap.Error(err))
		a.sendText(ctx, chatID, "Ошибка: "+err.Error())
		return
	}

	if vip {
		a.sendText(ctx, target, "⭐ Вам выдан VIP (администратор).")
	} else {
		a.sendText(ctx, target, "⭐ VIP снят.")
	}
	a.sendText(ctx, chatID, "OK")
}

func (a *App) adminHistory(ctx context.Context, chatID int64, args string) {
	target, ok := parseTargetID(args)
	if !ok {
		a.sendText(ctx, chatID, "Использование: /history <user_id>")
		return
	}

	records, err := a.historyRepo.Recent(ctx, target, a.cfg.Chat.HistoryKeep)
	if err != nil {
		a.logger.Error("load history failed", zap.Int64("target_id", target), zap.Error(err))
		a.sendText(ctx, chatID, msgSendFailed)
		return
	}
	if len(records) == 0 {
		a.sendText(ctx, chatID, "История пуста.")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "История %d:\n", target)
	for _, rec := range records {
		fmt.Fprintf(&sb, "[%s] %s: %s\n",
			rec.CreatedAt.Format("02.01 15:04"), rec.Direction, rec.Content)
	}
	a.sendText(ctx, chatID, sb.String())
}

func parseTargetID(args string) (int64, bool) {
	fields := strings.Fields(args)
	if len(fields) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
