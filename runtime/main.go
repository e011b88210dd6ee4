package main

import (
	"github.com/sahafa-network/guard_api/services"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded")
	}

	ctx, err := context.NewCtx(
		&services.DbService{},
		&services.RedisService{},
		&services.PolicyService{},
		&services.CounterService{},
		&services.LedgerService{},
		&services.JWTService{},
		&services.AuthMiddleware{},
		&services.TenantMiddleware{},
		&services.SecureHeadersMiddleware{},
		&services.APIKeyMiddleware{},
		&services.RateLimitMiddleware{},
		&services.MonitoringService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure services")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service runtime exited")
		return
	}
}
