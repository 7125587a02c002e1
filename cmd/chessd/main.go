package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/justinabrahms/chessduel/internal/auth"
	"github.com/justinabrahms/chessduel/internal/config"
	"github.com/justinabrahms/chessduel/internal/game"
	"github.com/justinabrahms/chessduel/internal/lobby"
	"github.com/justinabrahms/chessduel/internal/store"
	"github.com/justinabrahms/chessduel/internal/web"
)

func main() {
	// Parse command line flags
	var showHelp bool
	flag.BoolVar(&showHelp, "help", false, "Show help information")
	flag.BoolVar(&showHelp, "h", false, "Show help information")
	flag.Parse()

	if showHelp {
		showHelpMessage()
		return
	}

	// Setup logging
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	configureLogging(cfg.Development)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid config")
	}

	st, err := openStore(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Str("driver", cfg.Database.Driver).Msg("Failed to open store")
	}
	defer st.Close()

	tokens, err := auth.NewTokens(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure tokens")
	}
	accounts := auth.NewAccounts(st)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	hub := web.NewHub(web.WithHubLogger(log.With().Str("component", "hub").Logger()))
	go hub.Run(ctx)

	games := game.NewService(st,
		game.WithBroadcaster(hub),
		game.WithIdentityLookup(accounts),
	)
	invitations := lobby.NewInvitations(st, st, games, hub)
	presence := lobby.NewPresence(accounts, hub)

	if cfg.Supervisor.Enabled {
		supervisor := game.NewSupervisor(games, cfg.Supervisor.AbandonAfter,
			game.WithInterval(cfg.Supervisor.Interval),
			game.WithSupervisorLogger(log.With().Str("component", "supervisor").Logger()),
		)
		go func() {
			if err := supervisor.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Supervisor stopped")
			}
		}()
	}

	service := web.NewService(cfg, games, accounts, tokens, invitations, presence, hub)

	// Create server. No write timeout: websocket connections are long lived
	// and manage their own deadlines.
	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     service.Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Str("driver", cfg.Database.Driver).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server exited")
}

func configureLogging(dev config.DevelopmentConfig) {
	level, err := zerolog.ParseLevel(dev.LogLevel)
	if err != nil || dev.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if dev.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
}

func openStore(db config.DatabaseConfig) (store.Store, error) {
	switch db.Driver {
	case "memory":
		log.Warn().Msg("Using in-memory store, games will not survive a restart")
		return store.NewMemoryStore(), nil
	case "sqlite":
		return store.OpenSQLite(db.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", db.Driver)
	}
}

func showHelpMessage() {
	fmt.Println(`chessd

DESCRIPTION:
    Two-player chess server. Validates moves under a simplified rule set,
    records every accepted move in order and pushes updates to connected
    players over WebSocket.

USAGE:
    chessd [OPTIONS]

OPTIONS:
    -h, --help    Show this help message

CONFIGURATION:
    Read from config.yaml in the current directory or ./config. Every key
    can be overridden with a CHESSD_ environment variable, for example
    CHESSD_AUTH_JWT_SECRET. A .env file is loaded first when present.

    Example config.yaml:
        server:
          host: localhost
          port: 8080

        database:
          driver: sqlite          # or memory
          path: data/chessd.db

        auth:
          jwt_secret: "generate with generate-signing-secret"
          token_ttl: 336h

        supervisor:
          enabled: true
          interval: 10m
          abandon_after: 168h

        development:
          debug: true
          log_level: debug

API ENDPOINTS:
    GET  /api/health                           - Service health check
    POST /api/auth/register                    - Create an account
    POST /api/auth/login                       - Exchange credentials for a token
    POST /api/games                            - Start a game against a player
    GET  /api/games/active                     - Caller's game in progress
    GET  /api/games/history                    - Caller's finished games
    GET  /api/games/{id}                       - Game state and board
    GET  /api/games/{id}/moves?lastMoveId=N    - Moves after N
    POST /api/games/{id}/moves                 - Submit a move
    POST /api/games/{id}/resign                - Resign
    GET  /api/lobby/players                    - Online players
    GET  /api/lobby/invitations                - Pending invitations
    POST /api/lobby/invitations                - Invite a player
    POST /api/lobby/invitations/{id}/accept    - Accept and start a game
    POST /api/lobby/invitations/{id}/decline   - Decline
    GET  /ws?token=...                         - WebSocket updates

EXAMPLES:
    # Start with default configuration
    chessd

    # Submit a move
    curl -X POST http://localhost:8080/api/games/$GAME/moves \
      -H "Authorization: Bearer $TOKEN" \
      -d '{"from": "e2", "to": "e4"}'`)
}
