package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/Brownie44l1/fusion-api/internal/adapters"
	"github.com/Brownie44l1/fusion-api/internal/config"
	"github.com/Brownie44l1/fusion-api/internal/handlers"
	"github.com/Brownie44l1/fusion-api/internal/imaging"
	"github.com/Brownie44l1/fusion-api/internal/logger"
	"github.com/Brownie44l1/fusion-api/internal/metrics"
	"github.com/Brownie44l1/fusion-api/internal/pipeline"
)

func main() {
	configFile, err := configPath(os.Args[1:])
	if err != nil {
		log.Fatal().Err(err).Msg("invalid arguments")
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := logger.Init(cfg.App.Name, cfg.App.Env, cfg.App.LogLevel); err != nil {
		log.Fatal().Err(err).Msg("failed to initialize logger")
	}

	metrics.Init(cfg.Metrics.Enabled, cfg.Metrics.Address, cfg.App.Name, cfg.App.Env, cfg.Metrics.SamplingRate)
	defer metrics.Close()

	registry, err := adapters.Load(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load models")
	}
	defer registry.Close()

	clahe, err := imaging.NewCLAHE(cfg.Retina.ClipLimit, cfg.Retina.TileGrid)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid retina preprocessing config")
	}

	handler := handlers.NewHandler(
		pipeline.New(registry, clahe),
		handlers.Info{
			SchemaVersion: registry.Tabular.SchemaVersion(),
			Models:        []string{registry.Tabular.Name(), registry.Nail.Name(), registry.Retina.Name()},
		},
		cfg.App.MaxUploadBytes,
	)

	if !strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinLogger(), cors.New(corsConfig(cfg.CORS)), requestTimeout(cfg.App.RequestTimeout))
	handler.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.App.RequestTimeout,
		WriteTimeout: cfg.App.RequestTimeout + 5*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		log.Info().Msg("endpoints: GET / | GET /health | POST /predict")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
}

// configPath reads --config, falling back to the CONFIG_FILE environment
// variable. An empty result means defaults and environment only.
func configPath(args []string) (string, error) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	path := fs.String("config", os.Getenv("CONFIG_FILE"), "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

func corsConfig(c config.CORSConfig) cors.Config {
	cc := cors.DefaultConfig()
	if len(c.AllowedOrigins) == 0 || slices.Contains(c.AllowedOrigins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = c.AllowedOrigins
	}
	cc.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cc.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	return cc
}

// requestTimeout bounds the time a request may spend in the pipeline.
func requestTimeout(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
