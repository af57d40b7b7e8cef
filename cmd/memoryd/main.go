// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command memoryd starts the Aleutian Memory API server.
//
// Aleutian Memory is a memory-bank service: clients retain facts into
// named banks, recall them with keyword queries, and ask reflect
// questions that a tool-calling LLM loop answers from retrieved evidence.
//
// Usage:
//
//	go run ./cmd/memoryd
//	go run ./cmd/memoryd -port 9090
//	go run ./cmd/memoryd -config memoryd.yaml
//
// With an LLM provider (for reflect):
//
//	MEMORY_LLM_PROVIDER=groq MEMORY_LLM_API_KEY=gsk_... \
//	MEMORY_LLM_MODEL=llama-3.3-70b-versatile go run ./cmd/memoryd
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/memory/health
//
//	# Create a bank
//	curl -X PUT http://localhost:8080/v1/memory/banks/ops \
//	  -H "Content-Type: application/json" \
//	  -d '{"mission": "track operational incidents"}'
//
//	# Retain and reflect
//	curl -X POST http://localhost:8080/v1/memory/banks/ops/retain \
//	  -H "Content-Type: application/json" \
//	  -d '{"items": [{"text": "postgres upgrade finished"}]}'
//	curl -X POST http://localhost:8080/v1/memory/banks/ops/reflect \
//	  -H "Content-Type: application/json" \
//	  -d '{"query": "is the postgres upgrade done?"}'
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/AleutianAI/AleutianMemory/services/llm"
	"github.com/AleutianAI/AleutianMemory/services/memory"
	"github.com/AleutianAI/AleutianMemory/services/memory/bank"
	"github.com/AleutianAI/AleutianMemory/services/memory/reflect"
	badgerstore "github.com/AleutianAI/AleutianMemory/services/memory/storage/badger"
	"github.com/AleutianAI/AleutianMemory/services/metrics"
)

const serviceVersion = "0.1.0"

func main() {
	port := flag.Int("port", 0, "Port to listen on (overrides config file)")
	debug := flag.Bool("debug", false, "Enable debug mode")
	configPath := flag.String("config", "", "Path to YAML config file")
	flag.Parse()

	cfg, err := loadServerConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *debug {
		cfg.Debug = true
	}

	if cfg.Debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so callers can correlate reflect spans
	// with their own traces.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	// Metrics: the OTel collector exports into its own registry; the
	// gateway's promauto counters live on the default one. /metrics
	// serves both.
	otelRegistry := prometheus.NewRegistry()
	var collector metrics.Collector
	otelCollector, err := metrics.NewOTelCollector(otelRegistry, "aleutian-memory", serviceVersion)
	if err != nil {
		slog.Warn("Metrics collector unavailable, telemetry disabled",
			slog.String("error", err.Error()))
	} else {
		collector = otelCollector
	}

	// Bank storage with graceful degradation: an unusable data directory
	// starts the server without bank routes instead of failing boot.
	var store *bank.Store
	var db *badgerstore.DB
	if cfg.DataDir != "" {
		storeCfg := badgerstore.DefaultConfig()
		storeCfg.Path = cfg.DataDir
		db, err = badgerstore.OpenDB(storeCfg)
		if err != nil {
			slog.Warn("Bank storage unavailable, memory endpoints degraded",
				slog.String("path", cfg.DataDir),
				slog.String("error", err.Error()),
			)
		} else {
			store = bank.NewStore(db)
		}
	}

	// A typed nil client must not become a non-nil Gateway interface.
	var gateway reflect.Gateway
	if client := setupGateway(cfg, collector); client != nil {
		gateway = client
	}

	serviceCfg := memory.DefaultServiceConfig()
	if cfg.Reflect.MaxIterations > 0 {
		serviceCfg.MaxIterations = cfg.Reflect.MaxIterations
	}
	serviceCfg.ConcurrentTools = cfg.Reflect.ConcurrentTools

	svc := memory.NewService(serviceCfg, store, gateway, collector)
	handlers := memory.NewHandlers(svc)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("aleutian-memory"))
	if cfg.Debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	memory.RegisterRoutes(v1, handlers)

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, otelRegistry},
		promhttp.HandlerOpts{},
	)))

	printBanner(cfg.Port, store != nil, gateway != nil)

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		slog.Info("Shutting down Aleutian Memory server")
		if db != nil {
			if err := db.Close(); err != nil {
				slog.Warn("Failed to close bank storage", slog.String("error", err.Error()))
			}
		}
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Port)
	slog.Info("Starting Aleutian Memory server", slog.String("address", addr))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// setupGateway builds the LLM gateway from MEMORY_LLM_* environment
// variables. Returns nil (reflect disabled) when the environment is not
// configured.
func setupGateway(cfg serverConfig, collector metrics.Collector) *llm.Client {
	llmCfg, err := llm.ConfigFromEnv()
	if err != nil {
		slog.Warn("LLM gateway not configured, reflect endpoints degraded",
			slog.String("error", err.Error()))
		return nil
	}
	llmCfg.MaxRetries = cfg.LLM.MaxRetries
	llmCfg.RequestsPerSecond = cfg.LLM.RequestsPerSecond
	return llm.NewClient(llmCfg, llm.WithCollector(collector))
}

// printBanner prints the startup banner.
func printBanner(port int, storeReady, reflectReady bool) {
	status := func(ok bool) string {
		if ok {
			return "enabled"
		}
		return "disabled"
	}
	fmt.Printf(`
  Aleutian Memory %s
  ---------------------------------
  listening : http://localhost:%d
  banks     : %s
  reflect   : %s
  metrics   : http://localhost:%d/metrics

`, serviceVersion, port, status(storeReady), status(reflectReady), port)
}
