package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vimrace/race-server/internal/config"
	"github.com/vimrace/race-server/internal/database"
	"github.com/vimrace/race-server/internal/handler"
	"github.com/vimrace/race-server/internal/jobs"
	"github.com/vimrace/race-server/internal/middleware"
	"github.com/vimrace/race-server/internal/redis"
	"github.com/vimrace/race-server/internal/registry"
	"github.com/vimrace/race-server/internal/repository"
	"github.com/vimrace/race-server/internal/service"
	"github.com/vimrace/race-server/internal/ws"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := config.LoadDotEnv(".env"); err != nil {
		log.Fatal().Err(err).Msg("failed to load .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("FLY_APP_NAME") != ""
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
	if err := db.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}
	cancel()
	log.Info().Msg("database connected")

	redisClient, err := redis.NewClient(cfg.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer redisClient.Close()
	log.Info().Msg("redis connected")

	userRepo := repository.NewUserRepository(db.DB)
	raceRepo := repository.NewRaceRepository(db.DB)

	raceContent := service.NewRaceContentService(raceRepo, db)
	if cfg.SeedRacesOnStart {
		seedCtx, seedCancel := context.WithTimeout(context.Background(), config.DBPingTimeout)
		n, err := raceContent.SeedDefaults(seedCtx)
		seedCancel()
		if err != nil {
			log.Error().Err(err).Msg("failed to seed races")
		} else if n > 0 {
			log.Info().Int("count", n).Msg("seeded races")
		}
	}

	rateLimiter := service.NewRateLimiter(redisClient.Client)

	players := registry.New()
	matchService := service.NewMatchService(players, raceContent, cfg.SessionMaxDuration())
	challengeService := service.NewChallengeService(players, userRepo, matchService, rateLimiter, service.ChallengeServiceConfig{
		RateLimitPerMin: cfg.ChallengeRateLimitPerMin,
		TTL:             cfg.ChallengeTTL(),
	})

	connectLimitMiddleware := middleware.NewIPRateLimitMiddleware(rateLimiter, cfg.ConnectRateLimitPerMin, config.RateLimitWindow)
	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	dispatcher := handler.NewDispatcher(challengeService, matchService)
	wsHandler := handler.NewWSHandler(userRepo, players, dispatcher, ws.NewUpgrader(cfg.AllowedOrigins), cfg.SendBufferSize)
	playersHandler := handler.NewPlayersHandler(players, userRepo)
	healthHandler := handler.NewHealthHandler(db, players, matchService)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(securityHeadersMiddleware.Handler)

	r.Get("/health", healthHandler.ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.With(connectLimitMiddleware.Handler).Get("/ws", wsHandler.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))
			r.Use(bodyLimitMiddleware.Handler)
			r.Mount("/players", playersHandler.Routes())
		})
	})

	sweepJob := jobs.NewSweepJob(challengeService, matchService, config.SweepJobInterval)
	sweepJob.Start()
	defer sweepJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	// hijacked websocket connections are not tracked by Shutdown
	for _, p := range players.OnlinePlayers() {
		if conn, err := players.GetConnection(p.ID); err == nil {
			_ = conn.Close()
		}
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
