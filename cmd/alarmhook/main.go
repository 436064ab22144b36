package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/qiniu/alarmhook/internal/alarm"
	alarmapi "github.com/qiniu/alarmhook/internal/alarm/api"
	"github.com/qiniu/alarmhook/internal/alarm/ignorelist"
	"github.com/qiniu/alarmhook/internal/config"
	"github.com/qiniu/alarmhook/internal/database"
	"github.com/qiniu/alarmhook/internal/webhook"
	"github.com/qiniu/alarmhook/internal/webhook/source"
	"github.com/qiniu/alarmhook/internal/webhook/transformer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/qiniu/alarmhook/internal/webhook/transformer/builtin"
)

func main() {
	log.Info().Msg("Starting alarmhook server")
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	if cfg.Logging.Console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	switch strings.ToLower(cfg.Logging.Level) {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ignore, err := ignorelist.Load(cfg.Alarm.IgnoreExceptionsFile)
	if err != nil {
		log.Error().Err(err).Msg("load ignore exception list failed, nothing will be ignored")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// optional PostgreSQL target source
	var dbTargets webhook.Targets
	if cfg.Database.Enabled {
		dsn := database.DSN(cfg.Database.Host, cfg.Database.Port, cfg.Database.User,
			cfg.Database.Password, cfg.Database.DBName, cfg.Database.SSLMode)
		db, derr := database.New(ctx, dsn)
		if derr != nil {
			log.Fatal().Err(derr).Msg("connect database failed")
		}
		defer db.Close()
		if cfg.Webhook.TargetsFromDB {
			src := source.NewPgSource(db)
			if err := src.EnsureSchema(ctx); err != nil {
				log.Fatal().Err(err).Msg("ensure webhook target schema failed")
			}
			if dbTargets, err = src.LoadTargets(ctx); err != nil {
				log.Fatal().Err(err).Msg("load webhook targets from database failed")
			}
		}
	}

	fileTargets, err := source.LoadFile(cfg.Webhook.TargetsFile)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.Webhook.TargetsFile).Msg("load webhook targets failed")
	}

	dispatcher := webhook.NewDispatcher(webhook.Merge(fileTargets, dbTargets),
		webhook.WithDeliveryConfig(webhook.DeliveryConfig{
			ConnectTimeout:           config.ParseDuration(cfg.Webhook.ConnectTimeout, webhook.DefaultConnectTimeout),
			ConnectionRequestTimeout: config.ParseDuration(cfg.Webhook.ConnectionRequestTimeout, webhook.DefaultConnectionRequestTimeout),
			ReadTimeout:              config.ParseDuration(cfg.Webhook.ReadTimeout, webhook.DefaultReadTimeout),
			DeliverTimeout:           config.ParseDuration(cfg.Webhook.DeliverTimeout, 0),
			MaxConcurrency:           cfg.Webhook.MaxConcurrency,
		}),
		webhook.WithMetrics(webhook.NewMetrics(reg)),
	)
	log.Info().Strs("transformers", transformer.Keys()).Msg("payload transformers available")

	if cfg.Webhook.WatchTargetsFile && cfg.Webhook.TargetsFile != "" {
		go func() {
			err := source.WatchFile(ctx, cfg.Webhook.TargetsFile, func(t webhook.Targets) {
				dispatcher.SetTargets(webhook.Merge(t, dbTargets))
			})
			if err != nil {
				log.Warn().Err(err).Str("path", cfg.Webhook.TargetsFile).Msg("webhook targets hot reload disabled")
			}
		}()
	}

	hub := alarm.NewHub(ignore)
	hub.Register("webhook", dispatcher)
	if cfg.Alarm.LogEvents {
		hub.Register("log", alarm.LogCallback{})
	}
	queue := make(chan []alarm.Event, cfg.Alarm.QueueSize)
	go hub.Start(ctx, queue)

	var cache alarmapi.IdempotencyCache = alarmapi.NoopCache{}
	if cfg.Redis.Enabled {
		rdb := alarmapi.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer rdb.Close()
		cache = alarmapi.NewRedisCache(rdb, config.ParseDuration(cfg.Alarm.DedupTTL, 10*time.Minute))
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	alarmapi.RegisterRoutes(router, alarmapi.NewHandlerWithCache(queue, dispatcher, cache), cfg.Alarm.APIBearer, reg)

	srv := &http.Server{Addr: cfg.Server.BindAddr, Handler: router}
	go func() {
		log.Info().Msgf("Starting server on %s", cfg.Server.BindAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("start alarmhook server failed.")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	log.Info().Msg("alarmhook server exit...")
}
