package botapp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/config"
	tginfra "github.com/asasin266/bot/internal/infra/telegram"
	"github.com/asasin266/bot/internal/jobs/cleanup"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
	redisrepo "github.com/asasin266/bot/internal/repo/redis"
	complaintsvc "github.com/asasin266/bot/internal/services/complaints"
	matchsvc "github.com/asasin266/bot/internal/services/match"
	ratesvc "github.com/asasin266/bot/internal/services/rate"
	relaysvc "github.com/asasin266/bot/internal/services/relay"
	usersvc "github.com/asasin266/bot/internal/services/users"
)

// pendingInput tracks what free-form text the bot is waiting for from a
// chat: an age, an interests list or a complaint description.
type pendingInput int

const (
	pendingNone pendingInput = iota
	pendingAge
	pendingInterests
	pendingComplaint
)

type App struct {
	cfg      config.Config
	logger   *zap.Logger
	postgres *pgxpool.Pool
	redis    *goredis.Client
	bot      *tginfra.Bot

	userRepo      *pgrepo.UserRepo
	queueRepo     *pgrepo.QueueRepo
	historyRepo   *pgrepo.HistoryRepo
	complaintRepo *pgrepo.ComplaintRepo

	users      *usersvc.Service
	match      *matchsvc.Service
	relay      *relaysvc.Service
	complaints *complaintsvc.Service
	cleanupJob *cleanup.Job

	pendingMu     sync.Mutex
	pendingByChat map[int64]pendingInput
}

func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, pgrepo.PoolConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres for bot app: %w", err)
	}

	redisClient := redisrepo.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis for bot app: %w", err)
	}

	bot, err := tginfra.NewBot(cfg.Bot.Token, cfg.Bot.PollTimeout)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init telegram bot: %w", err)
	}

	userRepo := pgrepo.NewUserRepo(pool)
	queueRepo := pgrepo.NewQueueRepo(pool)
	pairRepo := pgrepo.NewPairRepo(pool)
	historyRepo := pgrepo.NewHistoryRepo(pool, cfg.Chat.HistoryKeep)
	complaintRepo := pgrepo.NewComplaintRepo(pool)
	rateRepo := redisrepo.NewRateRepo(redisClient)

	userService := usersvc.NewService(usersvc.Dependencies{
		Pool:      pool,
		Directory: userRepo,
		Pairs:     pairRepo,
		Queue:     queueRepo,
	})
	matchService := matchsvc.NewService(matchsvc.Dependencies{
		Directory: userRepo,
		Queue:     queueRepo,
		Pairs:     pairRepo,
		Logger:    logger,
	})
	limiter := ratesvc.NewLimiter(rateRepo, cfg.Chat.MessagesPerMinute, cfg.Chat.RateWindow)
	relayService := relaysvc.NewService(relaysvc.Dependencies{
		Directory: userRepo,
		Pairs:     pairRepo,
		History:   historyRepo,
		Limiter:   limiter,
		Deliverer: &botDeliverer{bot: bot},
		Policy: relaysvc.Policy{
			MaxFileSize:       cfg.Chat.MaxFileSize,
			AllowedExtensions: cfg.Chat.AllowedExtensions,
			TextMaxLen:        cfg.Chat.TextMaxLen,
		},
		Logger: logger,
	})
	complaintService := complaintsvc.NewService(complaintsvc.Dependencies{
		Store:    complaintRepo,
		Notifier: &adminNotifier{bot: bot, adminID: cfg.Bot.AdminID},
		Logger:   logger,
	})
	cleanupJob := cleanup.New(cleanup.Dependencies{
		Queue:     queueRepo,
		Interval:  cfg.Bot.CleanupInterval,
		Retention: cfg.Bot.QueueRetention,
		Logger:    logger,
	})

	return &App{
		cfg:           cfg,
		logger:        logger,
		postgres:      pool,
		redis:         redisClient,
		bot:           bot,
		userRepo:      userRepo,
		queueRepo:     queueRepo,
		historyRepo:   historyRepo,
		complaintRepo: complaintRepo,
		users:         userService,
		match:         matchService,
		relay:         relayService,
		complaints:    complaintService,
		cleanupJob:    cleanupJob,
		pendingByChat: make(map[int64]pendingInput),
	}, nil
}

func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot app started")

	go a.cleanupJob.Run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.bot.Listen(ctx, tginfra.Handlers{
			OnCommand:  a.handleCommand,
			OnText:     a.handleText,
			OnMedia:    a.handleMedia,
			OnCallback: a.handleCallback,
		})
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("bot app stopped")
		return nil
	case err := <-errCh:
		if err == nil || errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
}

func (a *App) Close() {
	if a.postgres != nil {
		a.postgres.Close()
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
}

func (a *App) isAdmin(userID int64) bool {
	return a.cfg.Bot.AdminID != 0 && userID == a.cfg.Bot.AdminID
}

func (a *App) setPending(chatID int64, state pendingInput) {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	if state == pendingNone {
		delete(a.pendingByChat, chatID)
		return
	}
	a.pendingByChat[chatID] = state
}

func (a *App) takePending(chatID int64) pendingInput {
	a.pendingMu.Lock()
	defer a.pendingMu.Unlock()
	state, ok := a.pendingByChat[chatID]
	if !ok {
		return pendingNone
	}
	delete(a.pendingByChat, chatID)
	return state
}

func (a *App) sendText(ctx context.Context, chatID int64, text string) {
	if err := a.bot.SendText(ctx, chatID, text); err != nil && !tginfra.IsForbidden(err) {
		a.logger.Warn("send message failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func trimArg(args string) string {
	return strings.TrimSpace(args)
}
