package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ericselin/dashserve"
	headerrules "github.com/ericselin/dashserve/pkg/header-rules"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// this is set by goreleaser
var version string

func main() {
	if version == "" {
		version = "DEV"
	}

	config, err := dashserve.ParseEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// set log level
	logLevel, err := zerolog.ParseLevel(config.LogLevel)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid LOG_LEVEL")
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if config.LogFile != "" {
		if logFileOutput, err := os.OpenFile(config.LogFile, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644); err != nil {
			log.Fatal().Err(err).Msg("Cannot open log file")
		} else {
			logOutputs = append(logOutputs, logFileOutput)
		}
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()

	rules := headerrules.Defaults
	if config.HeaderRules != "" {
		if rules, err = headerrules.Load(config.HeaderRules); err != nil {
			log.Fatal().Err(err).Str("file", config.HeaderRules).Msg("Cannot load header rules")
		}
	}

	if info, err := os.Stat(config.AssetRoot); err != nil || !info.IsDir() {
		// not fatal: requests fail one by one until the build shows up
		log.Warn().Err(err).Str("root", config.AssetRoot).Msg("Asset root is not a directory")
	}

	var metrics *dashserve.Metrics
	if config.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = dashserve.NewMetrics(reg)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			log.Info().Msgf("Serving metrics on %s/metrics", config.MetricsAddr)
			if err := http.ListenAndServe(config.MetricsAddr, mux); err != nil {
				log.Error().Err(err).Msg("Metrics listener stopped")
			}
		}()
	}

	logger := log.Logger
	server := &http.Server{
		Addr: config.Addr(),
		Handler: dashserve.New(dashserve.Config{
			Root:       os.DirFS(config.AssetRoot),
			Entry:      config.Entry,
			Logger:     &logger,
			Rules:      rules,
			KillSwitch: config.KillSwitch,
			WorkerPath: config.WorkerPath,
			Metrics:    metrics,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Shutdown failed")
		}
	}()

	log.Info().Msgf("Serving %s (entry %s) on %s", config.AssetRoot, config.Entry, config.Addr())
	log.Info().Msgf("Local:   http://localhost:%d", config.Port)
	if urls, err := dashserve.NetworkURLs(config.Port); err != nil {
		log.Debug().Err(err).Msg("Could not list network addresses")
	} else {
		for _, u := range urls {
			log.Info().Msgf("Network: %s", u)
		}
	}

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
	<-shutdownDone
	log.Info().Msg("Server stopped")
}
