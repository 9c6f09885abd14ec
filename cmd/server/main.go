// Command pollbox-server serves the poll API over HTTP.
package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/pollbox/internal/config"
	"github.com/and161185/pollbox/internal/csrf"
	"github.com/and161185/pollbox/internal/limiter"
	"github.com/and161185/pollbox/internal/live"
	"github.com/and161185/pollbox/internal/migrate"
	"github.com/and161185/pollbox/internal/model"
	"github.com/and161185/pollbox/internal/obs"
	"github.com/and161185/pollbox/internal/repository"
	"github.com/and161185/pollbox/internal/repository/memory"
	"github.com/and161185/pollbox/internal/repository/postgres"
	grpcserver "github.com/and161185/pollbox/internal/server/grpc"
	httpserver "github.com/and161185/pollbox/internal/server/http"
	"github.com/and161185/pollbox/internal/service"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// memoryDSN selects in-process storage for local runs.
const memoryDSN = "memory:"

type backend struct {
	users repository.UserRepository
	polls repository.PollRepository
	votes repository.VoteRepository
	lim   interface {
		limiter.Limiter
		limiter.Cleaner
	}
	ping  func(ctx context.Context) error
	close func()
}

// main loads configuration, prepares storage and serves until SIGINT/SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:], ".env")
	if err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
		zap.String("env", cfg.Env),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("storage", zap.Error(err))
	}
	defer be.close()

	janitor, err := limiter.StartJanitor(ctx, cfg.CleanupSpec, be.lim, 24*time.Hour, logger)
	if err != nil {
		logger.Fatal("limiter janitor", zap.Error(err))
	}
	defer janitor.Stop()

	metrics := obs.New(version)
	hub := live.NewHub(logger, metrics.LiveClients.Add)
	tokens := csrf.NewService(cfg.Production())

	authSvc := service.NewAuthService(be.users, []byte(cfg.JWTKey), cfg.AccessTTL, be.lim, cfg.AdminEmails)
	pollSvc := service.NewPollService(service.NewGate(tokens), be.polls, be.votes, hub)

	unsubscribe := authSvc.OnAuthStateChange(func(ev service.AuthEvent, id model.Identity) {
		logger.Info("auth", zap.Stringer("event", ev), zap.String("user_id", id.ID.String()))
	})
	defer unsubscribe()

	api := httpserver.New(httpserver.Deps{
		Auth:    authSvc,
		Polls:   pollSvc,
		Tokens:  tokens,
		Hub:     hub,
		Metrics: metrics,
		Ready:   be.ping,
		Log:     logger,
	}, httpserver.Options{
		Secure:     cfg.Production(),
		RateBurst:  cfg.RateBurst,
		RatePerSec: cfg.RatePerSec,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var hs *grpcserver.Health
	if cfg.GRPCHealthAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCHealthAddr)
		if err != nil {
			logger.Fatal("listen grpc health", zap.Error(err))
		}
		hs = grpcserver.NewHealth(be.ping, logger, grpcserver.Options{Reflection: cfg.Dev})
		go hs.Run(ctx)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", cfg.GRPCHealthAddr))
			if err := hs.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
		_ = srv.Close()
	}
	if hs != nil {
		done := make(chan struct{})
		go func() {
			hs.Stop()
			close(done)
		}()
		select {
		case <-done:
		case <-shutdownCtx.Done():
			hs.Close()
		}
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	var (
		l   *zap.Logger
		err error
	)
	if dev {
		l, err = zap.NewDevelopment()
	} else {
		l, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// openBackend returns Postgres-backed storage, or in-process storage for memoryDSN.
func openBackend(ctx context.Context, dsn string, logger *zap.Logger) (*backend, error) {
	if dsn == memoryDSN {
		logger.Warn("using in-memory storage; data is lost on exit")
		db := memory.New()
		return &backend{
			users: db.Users(),
			polls: db.Polls(),
			votes: db.Votes(),
			lim:   limiter.NewMemory(15*time.Minute, 5, 15*time.Minute),
			ping:  db.Ping,
			close: func() {},
		}, nil
	}

	if err := migrate.Up(ctx, dsn, logger); err != nil {
		return nil, err
	}
	db, err := postgres.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &backend{
		users: postgres.NewUserRepo(db),
		polls: postgres.NewPollRepo(db),
		votes: postgres.NewVoteRepo(db),
		lim:   limiter.NewPG(db.Pool, 15*time.Minute, 5, 15*time.Minute),
		ping:  db.Ping,
		close: db.Close,
	}, nil
}
