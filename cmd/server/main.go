package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"

	"datahub/internal/api"
	"datahub/internal/auth"
	"datahub/internal/catalog"
	"datahub/internal/config"
	"datahub/internal/logging"
	"datahub/internal/pg"
	"datahub/internal/reference"
	"datahub/internal/store"
	"datahub/internal/tree"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "datahub:", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Конфиг и логгер
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return err
	}
	log, _, err := logging.Setup(cfg.LogLevel)
	if err != nil {
		log.Warn("bad log level, using info", "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Хранилище: Postgres, если задан URL, иначе память
	var st store.Store
	if cfg.DBURL != "" {
		db, err := pg.Open(ctx, cfg.DBURL, pg.Pool{
			MaxOpen:     cfg.DBMaxOpenConns,
			MaxIdle:     cfg.DBMaxIdleConns,
			MaxLifetime: cfg.DBConnMaxLifetime.Std(),
		})
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer db.Close()
		if cfg.AutoMigrate {
			if err := pg.Migrate(ctx, db); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		st = pg.New(db)
		log.Info("storage: postgres")
	} else {
		st = store.NewMemory()
		log.Warn("storage: in-memory, data is lost on restart")
	}

	// 3. Токены
	secret := cfg.JWTSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		log.Warn("jwt secret is not set, generated a random one; tokens will not survive restart")
	}
	tokens, err := auth.NewTokens(secret, cfg.JWTExpiration.Std())
	if err != nil {
		return err
	}

	// 4. Сервисы и seed
	svc := api.Services{
		Tree:    tree.NewService(st, log),
		Catalog: catalog.NewService(st, log),
		Auth:    auth.NewService(st, tokens, log),
	}

	var reseed func(context.Context) error
	if cfg.SeedPath != "" {
		reseed = func(ctx context.Context) error {
			seed, err := reference.LoadSeed(cfg.SeedPath)
			if err != nil {
				return err
			}
			return reference.Apply(ctx, seed, svc.Auth, svc.Tree, log)
		}
		if err := reseed(ctx); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
	}

	// 5. HTTP
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(svc, api.Options{
		BasePath:       cfg.BasePath,
		CORSOrigins:    cfg.CORSOrigins,
		LoginPerMinute: cfg.LoginPerMinute,
		RequestTimeout: cfg.RequestTimeout.Std(),
		Logger:         log,
		Reseed:         reseed,
	})
	return api.RunServer(ctx, ":"+cfg.Port, router, log)
}

func randomSecret() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
