package main

import (
	"context"
	"log"
	"time"

	"github.com/emanara/passkey-auth/config"
	"github.com/emanara/passkey-auth/db"
	"github.com/emanara/passkey-auth/internal/auth/handler"
	pgrepo "github.com/emanara/passkey-auth/internal/auth/repository/postgres"
	redisrepo "github.com/emanara/passkey-auth/internal/auth/repository/redis"
	"github.com/emanara/passkey-auth/internal/auth/service"
	"github.com/emanara/passkey-auth/internal/resilience"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/gofiber/fiber/v2"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	dbPool, err := db.NewPostgresPool(ctx, cfg.DBURL)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer dbPool.Close()
	redisClient := db.NewRedisClient(cfg.RedisAddr)

	resilienceCfg := resilience.Config{
		MaxAttempts:      cfg.RetryMaxAttempts,
		InitialBackoff:   time.Duration(cfg.RetryBackoffMs) * time.Millisecond,
		FailureThreshold: cfg.BreakerThreshold,
		CoolDown:         cfg.BreakerCoolDown,
	}
	dbExec := resilience.NewExecutor("postgres", resilienceCfg)
	cacheExec := resilience.NewExecutor("redis", resilienceCfg)

	credentialStore := pgrepo.NewCredentialStore(dbPool, dbExec)
	challengeStore := pgrepo.NewChallengeStore(dbPool, dbExec)
	blacklist := redisrepo.NewTokenBlacklist(redisClient, cacheExec)

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          cfg.RPID,
		RPDisplayName: cfg.RPDisplayName,
		RPOrigins:     cfg.RPOrigins,
	})
	if err != nil {
		log.Fatalf("webauthn: %v", err)
	}

	ceremonyService := service.NewCeremonyService(wa, credentialStore, challengeStore,
		time.Duration(cfg.ChallengeExpiryMin)*time.Minute)
	tokenService := service.NewTokenService(cfg.SigningKey, blacklist,
		time.Duration(cfg.AccessExpiryMin)*time.Minute,
		time.Duration(cfg.RefreshExpiryMin)*time.Minute,
		cfg.RevokeAllOnReuse)
	authService := service.NewAuthService(ceremonyService, tokenService, credentialStore, credentialStore, blacklist)
	authHandler := handler.NewAuthHandler(authService)

	// Abandoned ceremonies pile up in the challenge table; sweep them in the
	// background.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			sweepCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			authService.SweepChallenges(sweepCtx)
			cancel()
		}
	}()

	app := fiber.New()
	handler.RegisterRoutes(app, authHandler)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("server: %v", err)
	}
}
