// Copyright (C) 2025 Edge Room Labs (dev@theedgeroom.com)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"database/sql"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"
	_ "modernc.org/sqlite"

	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/edgeroom/eventdesk/agents"
	"github.com/edgeroom/eventdesk/config"
	"github.com/edgeroom/eventdesk/datatypes"
	"github.com/edgeroom/eventdesk/ingest"
	"github.com/edgeroom/eventdesk/llm"
	"github.com/edgeroom/eventdesk/observability"
	"github.com/edgeroom/eventdesk/pkg/logging"
	"github.com/edgeroom/eventdesk/routes"
	"github.com/edgeroom/eventdesk/session"
	"github.com/edgeroom/eventdesk/supervisor"
	"github.com/edgeroom/eventdesk/vectorstore"
)

const serviceName = "eventdesk"

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "eventdesk-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient connects to the vector index. A missing or invalid URL
// is not fatal: the service runs in relational-only mode and the semantic
// agent is simply not registered.
func newWeaviateClient() *weaviate.Client {
	weaviateURL := strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' ")
	if weaviateURL == "" || !strings.Contains(weaviateURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running in relational-only mode.")
		return nil
	}

	parsedURL, err := url.Parse(weaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in relational-only mode.",
			"url", weaviateURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client", "error", err)
		return nil
	}
	datatypes.EnsureWeaviateSchema(client)
	return client
}

func newLLMClient() (llm.LLMClient, error) {
	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to ollama")
		return llm.NewOllamaClient()
	}
}

// startRetentionSweep removes idle sessions on a fixed interval until ctx
// is cancelled.
func startRetentionSweep(ctx context.Context, store session.Store) {
	ticker := time.NewTicker(time.Hour)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := store.CleanupExpired(ctx)
				if err != nil {
					slog.Error("Retention sweep failed", "error", err)
					continue
				}
				if removed > 0 {
					observability.SessionsCleanedTotal.Add(float64(removed))
					slog.Info("Retention sweep removed idle sessions", "removed", removed)
				}
			}
		}
	}()
}

func main() {
	port := os.Getenv("EVENTDESK_PORT")
	if port == "" {
		port = "12310"
	}

	closeLogs, err := logging.Setup(logging.FromEnv(serviceName))
	if err != nil {
		log.Fatalf("failed to setup logging: %v", err)
	}
	defer closeLogs()

	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	cfg := config.FromEnv()

	sqlitePath := os.Getenv("SQLITE_DB_PATH")
	if sqlitePath == "" {
		sqlitePath = "data/eventdesk.db"
	}
	db, err := sql.Open("sqlite", sqlitePath)
	if err != nil {
		log.Fatalf("failed to open the relational store: %v", err)
	}
	defer db.Close()
	if err := ingest.EnsureSchema(context.Background(), db); err != nil {
		log.Fatalf("failed to prepare the relational schema: %v", err)
	}

	sessionPath := os.Getenv("SESSION_DB_PATH")
	if sessionPath == "" {
		sessionPath = "data/sessions"
	}
	store, err := session.NewBadgerStore(session.DefaultBadgerConfig(sessionPath), cfg.Retention)
	if err != nil {
		log.Fatalf("failed to open the session store: %v", err)
	}
	defer store.Close()

	llmClient, err := newLLMClient()
	if err != nil {
		log.Fatalf("failed to initialize the LLM client: %v", err)
	}

	agentList := []agents.Agent{
		agents.NewStructuredQueryAgent(db, llmClient, cfg),
	}

	var pipeline *ingest.Pipeline
	weaviateClient := newWeaviateClient()
	if weaviateClient != nil {
		embedder, err := vectorstore.NewOpenAIEmbedder()
		if err != nil {
			slog.Warn("Embedder unavailable; semantic retrieval disabled", "error", err)
			pipeline = ingest.NewPipeline(ingest.NewSearchDataClient(), db, nil, nil)
		} else {
			vstore := vectorstore.NewWeaviateStore(weaviateClient)
			agentList = append(agentList,
				agents.NewSemanticRetrievalAgent(embedder, vstore, llmClient, cfg))
			pipeline = ingest.NewPipeline(ingest.NewSearchDataClient(), db, embedder, vstore)
		}
	} else {
		pipeline = ingest.NewPipeline(ingest.NewSearchDataClient(), db, nil, nil)
	}

	sup := supervisor.New(nil, agentList, store, cfg)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	startRetentionSweep(sweepCtx, store)

	router := gin.Default()
	router.Use(otelgin.Middleware(serviceName))
	routes.SetupRoutes(router, sup, store, pipeline)

	log.Println("Starting the eventdesk server on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
