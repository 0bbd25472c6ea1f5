// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command chatbot starts the TNEA admissions assistant API server.
//
// The chatbot turns free-form messages about Tamil Nadu engineering
// admissions into structured intents and entities, remembers them per
// session, and routes them to the downstream decision backend for
// cutoff prediction, college recommendation, comparison and
// Safe/Target/Dream classification.
//
// Usage:
//
//	go run ./cmd/chatbot
//	go run ./cmd/chatbot -port 9090
//
// With a remote intent classifier:
//
//	INTENT_CLASSIFIER_URL=http://localhost:8600/predict go run ./cmd/chatbot
//
// Example requests:
//
//	# Health check
//	curl http://localhost:8080/v1/chat/health
//
//	# Chat turn
//	curl -X POST http://localhost:8080/v1/chat/message \
//	  -H "Content-Type: application/json" \
//	  -d '{"user_id": "u1", "message": "I have 178 cutoff BC, suggest CSE colleges in Chennai"}'
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/tneainsight/chatbot/services/chatbot"
	"github.com/tneainsight/chatbot/services/chatbot/backend"
	"github.com/tneainsight/chatbot/services/chatbot/config"
	"github.com/tneainsight/chatbot/services/chatbot/intent"
	"github.com/tneainsight/chatbot/services/chatbot/nlu"
	"github.com/tneainsight/chatbot/services/chatbot/session"
)

func main() {
	port := flag.Int("port", 8080, "Port to listen on")
	debug := flag.Bool("debug", false, "Enable debug mode")
	flag.Parse()

	if *debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// W3C TraceContext propagation so downstream calls correlate with
	// caller traces.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger := slog.Default()
	cfg := config.LoadServiceConfig()

	vocab, err := config.GetVocabulary()
	if err != nil {
		slog.Error("Failed to load vocabulary", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rules, err := config.GetIntentRules()
	if err != nil {
		slog.Error("Failed to load intent rules", slog.String("error", err.Error()))
		os.Exit(1)
	}
	faq, err := config.GetFAQTable()
	if err != nil {
		slog.Error("Failed to load FAQ templates", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Classifier is optional; without one, resolution is rule-only.
	var classifier intent.Classifier = intent.UnavailableClassifier{}
	if cfg.ClassifierURL != "" {
		classifier = intent.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierTimeout)
		slog.Info("Intent classifier connected", slog.String("url", cfg.ClassifierURL))
	} else {
		slog.Info("No intent classifier configured, using rule-only resolution")
	}

	canon := nlu.NewCanonicalizer(vocab)
	extractor := nlu.NewExtractor(vocab, canon)
	sessions := session.NewStore(cfg.SessionCapacity, cfg.SessionTTL, logger)
	client := backend.NewClient(cfg, logger)
	resolver := intent.NewResolver(classifier, rules, cfg, logger)
	engine := chatbot.NewEngine(sessions, extractor, canon, client, faq, logger)
	handlers := chatbot.NewHandlers(engine, resolver, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("tnea-chatbot"))
	if *debug {
		router.Use(gin.Logger())
	}

	v1 := router.Group("/v1")
	chatbot.RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	printBanner(*port, cfg)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		slog.Info("Shutting down TNEA chatbot server")
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", *port)
	slog.Info("Starting TNEA chatbot server",
		slog.String("address", addr),
		slog.String("backend", cfg.APIBaseURL))
	if err := router.Run(addr); err != nil {
		slog.Error("Failed to start server", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func printBanner(port int, cfg *config.ServiceConfig) {
	classifierStatus := "DISABLED (set INTENT_CLASSIFIER_URL to enable)"
	if cfg.ClassifierURL != "" {
		classifierStatus = "ENABLED"
	}

	banner := `
╔═══════════════════════════════════════════════════════════════════╗
║                      TNEA CHATBOT SERVER                          ║
╠═══════════════════════════════════════════════════════════════════╣
║                                                                   ║
║  Conversational front-end for TNEA admissions decisions.          ║
║  Intent Classifier: %-44s ║
║                                                                   ║
║  Quick Start:                                                     ║
║  ┌─────────────────────────────────────────────────────────────┐  ║
║  │ # Health check                                              │  ║
║  │ curl http://localhost:%d/v1/chat/health               │  ║
║  │                                                             │  ║
║  │ # Chat turn                                                 │  ║
║  │ curl -X POST http://localhost:%d/v1/chat/message \    │  ║
║  │   -H "Content-Type: application/json" \                     │  ║
║  │   -d '{"user_id": "u1", "message": "178 cutoff BC CSE?"}'   │  ║
║  └─────────────────────────────────────────────────────────────┘  ║
║                                                                   ║
║  Endpoints:                                                       ║
║  ├── Chat: POST /v1/chat/message                                  ║
║  ├── Meta: GET /v1/chat/intents                                   ║
║  └── Health: GET /v1/chat/health, /v1/chat/ready                  ║
║                                                                   ║
║  Press Ctrl+C to stop                                             ║
╚═══════════════════════════════════════════════════════════════════╝
`
	fmt.Printf(banner, classifierStatus, port, port)
}
