package opsapp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/asasin266/bot/internal/config"
	pgrepo "github.com/asasin266/bot/internal/repo/postgres"
	complaintsvc "github.com/asasin266/bot/internal/services/complaints"
)

// App is the operator-facing HTTP service: a health probe plus read-only
// stats and complaints endpoints for dashboards.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	server   *http.Server
	postgres *pgxpool.Pool
}

func New(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is nil")
	}

	pool, err := pgrepo.NewPool(ctx, pgrepo.PoolConfig{
		DSN:      cfg.Postgres.DSN,
		MaxConns: cfg.Postgres.MaxConns,
		MinConns: cfg.Postgres.MinConns,
	})
	if err != nil {
		return nil, fmt.Errorf("init postgres for ops app: %w", err)
	}

	userRepo := pgrepo.NewUserRepo(pool)
	complaintRepo := pgrepo.NewComplaintRepo(pool)
	complaintService := complaintsvc.NewService(complaintsvc.Dependencies{
		Store:  complaintRepo,
		Logger: log,
	})

	r := chi.NewRouter()
	applyMiddlewares(r, log)

	r.Get("/healthz", handleHealth)
	r.Route("/v1", func(r chi.Router) {
		r.Use(opsTokenMiddleware(cfg.Ops.Token))
		r.Get("/stats", handleStats(userRepo, log))
		r.Get("/complaints", handleComplaints(complaintService, log))
	})

	server := &http.Server{
		Addr:         cfg.Ops.Addr,
		Handler:      r,
		ReadTimeout:  cfg.Ops.ReadTimeout,
		WriteTimeout: cfg.Ops.WriteTimeout,
		IdleTimeout:  cfg.Ops.IdleTimeout,
	}

	return &App{
		cfg:      cfg,
		logger:   log,
		server:   server,
		postgres: pool,
	}, nil
}

func (a *App) Run() error {
	a.logger.Info("ops server started", zap.String("addr", a.cfg.Ops.Addr))
	err := a.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if a.postgres != nil {
		a.postgres.Close()
	}
	return err
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleStats(userRepo *pgrepo.UserRepo, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := userRepo.Stats(r.Context())
		if err != nil {
			log.Error("load stats failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "STATS_FAILED", "failed to load stats")
			return
		}
		writeJSON(w, http.StatusOK, map[string]int64{
			"total_users":  stats.Total,
			"vip_users":    stats.VIP,
			"banned_users": stats.Banned,
			"queued_users": stats.Queued,
		})
	}
}

func handleComplaints(service *complaintsvc.Service, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeError(w, http.StatusBadRequest, "BAD_LIMIT", "limit must be a non-negative integer")
				return
			}
			limit = parsed
		}

		complaints, err := service.Recent(r.Context(), limit)
		if err != nil {
			log.Error("load complaints failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "COMPLAINTS_FAILED", "failed to load complaints")
			return
		}

		type complaintDTO struct {
			ID        int64  `json:"id"`
			FromUser  int64  `json:"from_user"`
			AboutUser int64  `json:"about_user"`
			Reason    string `json:"reason"`
			CreatedAt string `json:"created_at"`
		}
		out := make([]complaintDTO, 0, len(complaints))
		for _, c := range complaints {
			out = append(out, complaintDTO{
				ID:        c.ID,
				FromUser:  c.FromUser,
				AboutUser: c.AboutUser,
				Reason:    c.Reason,
				CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
			})
		}
		writeJSON(w, http.StatusOK, map[string]any{"complaints": out})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"code": code, "message": message})
}
