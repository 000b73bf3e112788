package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memtest-go/internal/config"
	"memtest-go/internal/database"
	"memtest-go/internal/handlers"
	"memtest-go/internal/models"
	"memtest-go/internal/repository"
	"memtest-go/internal/router"
	"memtest-go/internal/services"
	"memtest-go/internal/session"
	"memtest-go/internal/store"
	"memtest-go/internal/symbols"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServe(ctx)
	},
}

func runServe(ctx context.Context) error {
	_, log, err := bootstrap()
	if err != nil {
		return err
	}
	defer log.Sync()

	// Watch the config file from here on; admin credentials follow reloads.
	cfg, err := config.Init(projectRoot, log)
	if err != nil {
		return err
	}
	if cfg.Logging.Level != "debug" && !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Init(cfg.Database, log)
	if err != nil {
		return err
	}
	results := repository.NewResults(db, log)
	checks := map[string]handlers.Pinger{"database": results}

	sessions, closeStore, err := openStore(ctx, cfg.Store, log)
	if err != nil {
		return err
	}
	defer closeStore()
	if p, ok := sessions.(handlers.Pinger); ok {
		checks["sessions"] = p
	}

	questionnaire, err := models.LoadQuestionnaire(cfg.Test.QuestionnairePath)
	if err != nil {
		return fmt.Errorf("failed to load questionnaire: %w", err)
	}

	settings := cfg.Settings()
	settings.FreeTextLimit = questionnaire.FreeText.MaxLength

	mgr, err := session.NewManager(session.ManagerConfig{
		Store:    sessions,
		Recorder: results,
		Drawer:   symbols.NewRandomGenerator(),
		Settings: settings,
		Logger:   log,
	})
	if err != nil {
		return err
	}
	defer mgr.Close()

	engine := router.Setup(log, router.Deps{
		Config:        cfg,
		Manager:       mgr,
		Questionnaire: questionnaire,
		Results:       results,
		Checks:        checks,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	janitor := services.NewJanitor(log, mgr, nil, cfg.Store.TTL, cfg.Store.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server listening", zap.String("addr", "http://localhost"+srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return janitor.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// openStore builds the configured session store and its cleanup function.
func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (session.Store, func(), error) {
	switch cfg.Backend {
	case "redis":
		r, err := store.NewRedis(ctx, store.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      cfg.TTL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		log.Info("Using redis session store", zap.String("addr", cfg.RedisAddr))
		return r, func() {
			if err := r.Close(); err != nil {
				log.Warn("Failed to close redis client", zap.Error(err))
			}
		}, nil
	default:
		log.Info("Using in-memory session store")
		return store.NewMemory(), func() {}, nil
	}
}
