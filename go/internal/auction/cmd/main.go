package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/veilinghq/veiling/go/internal/auction/engine"
	"github.com/veilinghq/veiling/go/internal/auction/gateway"
	"github.com/veilinghq/veiling/go/internal/auction/notify"
	"github.com/veilinghq/veiling/go/internal/auction/repository"
	"github.com/veilinghq/veiling/go/internal/dbconfig"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	settings, err := cfg.settings()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid auction settings")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database for clock durability.
	dbCfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(ctx, dbCfg.DSN())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ping database")
	}
	repo := repository.NewRepository(pool)
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to ensure schema")
	}

	// Transport sinks: WebSocket hub for viewers, JetStream for downstream
	// consumers (order intake, analytics).
	hub := gateway.NewHub(gateway.DefaultConnectionConfig())
	sinks := notify.Fanout{gateway.NewHubNotifier(hub)}

	var js *notify.JetStreamNotifier
	if cfg.NATS.Enabled {
		jsCfg := notify.DefaultJetStreamConfig()
		jsCfg.URL = getEnv("NATS_URL", cfg.NATS.URL)
		if cfg.NATS.StreamName != "" {
			jsCfg.StreamName = cfg.NATS.StreamName
		}
		if cfg.NATS.SubjectPrefix != "" {
			jsCfg.SubjectPrefix = cfg.NATS.SubjectPrefix
		}
		js, err = notify.NewJetStreamNotifier(jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect JetStream sink")
		}
		defer js.Close()
		sinks = append(sinks, js)
	}

	eng := engine.New(engine.Options{
		Settings: settings,
		Notifier: sinks,
		Groups:   hub,
		Store:    repo,
	})

	srv := setupServer(eng, gateway.NewService(hub, eng), hub, getEnv("PORT", cfg.Server.Port))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Run(ctx)
	})
	g.Go(func() error {
		hub.Start(ctx)
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown(context.Background())
	})

	// Resume whatever was live before the last shutdown.
	if err := eng.Hydrate(ctx); err != nil {
		log.Error().Err(err).Msg("failed to hydrate clocks")
	}

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("engine exited")
	}
	log.Info().Msg("shutdown complete")
}
