package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/keyturn/go-keyturn-server/global"
	"github.com/keyturn/go-keyturn-server/repository"
	"github.com/keyturn/go-keyturn-server/services"
	"github.com/keyturn/go-keyturn-server/types"
)

// Connect to postgres and apply pending migrations
func ConfigDBPool() *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	pool, err := repository.NewPgPool(ctx)
	if err != nil {
		global.Logger.Log("error", "Failed to connect to postgres", "error", err.Error())
		panic(err)
	}
	applied, mErr := repository.RunMigrations(ctx, pool)
	if mErr != nil {
		global.Logger.Log("error", "Failed to run migrations", "error", mErr.Error())
		panic(mErr)
	}
	if applied > 0 {
		global.Logger.Log("migrations", "applied", "count", applied)
	}
	return pool
}

// Wire the rotation protocol services over the shared pool
func ConfigRotationServices(pool *pgxpool.Pool) (*services.RotationService, *services.DomainService) {
	identityRepo := repository.NewIdentityRepository(pool)
	rotationRepo := repository.NewRotationRepository(pool)
	committer := repository.NewPgRotationCommitter(pool)

	identityService := services.NewIdentityService(identityRepo)
	limitService := services.NewRotationLimitService(rotationRepo)
	domainService := services.NewDomainService()

	rotationService := services.NewRotationService(identityService, rotationRepo, committer, limitService, domainService)
	return rotationService, domainService
}

// Schedule the periodic remote allowlist refresh when a URL is configured
func ConfigAllowlistRefresh(env *types.Environment, domainService *services.DomainService) {
	if global.Conf.Rotation.AllowlistURL == "" {
		return
	}
	spec := fmt.Sprintf("@every %dm", global.Conf.Rotation.AllowlistRefreshMinutes)
	env.Cron.AddFunc(spec, domainService.RefreshRemote)
	env.Cron.Start()
	go domainService.RefreshRemote() // run once on startup
}
