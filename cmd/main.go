package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"ocr-rag/internal/api"
	"ocr-rag/internal/chromemdb"
	"ocr-rag/internal/config"
	"ocr-rag/internal/embedding"
	"ocr-rag/internal/helper"
	"ocr-rag/internal/history"
	"ocr-rag/internal/llmservice"
	"ocr-rag/internal/ocr"
	"ocr-rag/internal/pdfimage"
	"ocr-rag/internal/rag"
	"ocr-rag/internal/service"
	"ocr-rag/internal/storage"
	"ocr-rag/internal/websearch"
	"ocr-rag/internal/workflow"
)

const configFilePath = "./configs/config.yaml"

func main() {
	configPath := flag.String("config", getenv("CONFIG_FILE", configFilePath), "Path to the YAML config file")
	serve := flag.Bool("serve", false, "Run the HTTP API server")
	files := flag.String("file", "", "Comma separated PDF files to upload")
	sessionID := flag.String("session", "", "Session id for upload, query, reset and history")
	query := flag.String("query", "", "Question to ask against the session")
	reset := flag.Bool("reset", false, "Clear the session history and index")
	purge := flag.Bool("purge", false, "With -reset, also delete stored artifacts")
	showHistory := flag.Bool("history", false, "Print the session history")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		// logger is not configured yet
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	setupLogger(&cfg.Log)
	log.Debug().Str("config", *configPath).Msg("Loaded config")

	ctx := context.Background()
	svc, closer, err := setup(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Error initializing service")
	}
	defer closer.Close()

	switch {
	case *serve:
		runServer(cfg, svc)
	case *files != "":
		uploadFiles(ctx, svc, *sessionID, *files)
	case *query != "":
		askQuestion(ctx, svc, *sessionID, *query)
	case *reset:
		if err := svc.Reset(ctx, *sessionID, *purge); err != nil {
			log.Fatal().Err(err).Msg("Error resetting session")
		}
		log.Info().Str("session_id", *sessionID).Msg("Session reset")
	case *showHistory:
		turns, err := svc.History(ctx, *sessionID)
		if err != nil {
			log.Fatal().Err(err).Msg("Error reading history")
		}
		helper.PrettyPrint(turns)
	default:
		flag.Usage()
		log.Fatal().Msg("Please provide -serve, -file, -query, -reset or -history")
	}
}

func setupLogger(cfg *config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer = os.Stdout
	if cfg.Console {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Caller().Logger()
}

// setup wires the configured backends into a service. The closer releases
// the history backend.
func setup(ctx context.Context, cfg *config.Config) (*service.Service, io.Closer, error) {
	embedder, err := embedding.NewEmbedder(ctx, &cfg.EmbedLLM, cfg.RAG.EmbedBatchSize)
	if err != nil {
		return nil, nil, err
	}
	index, err := chromemdb.NewVectorDBManager(&cfg.RAG, embedder)
	if err != nil {
		return nil, nil, err
	}
	llm, err := llmservice.NewModel(ctx, &cfg.LLM)
	if err != nil {
		return nil, nil, err
	}
	store, err := storage.New(ctx, &cfg.Storage)
	if err != nil {
		return nil, nil, err
	}
	hist, closer, err := history.New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	var web workflow.WebSearcher
	if cfg.WebSearch.APIKey != "" {
		web = websearch.NewTavilyClient(&cfg.WebSearch)
	} else {
		log.Warn().Msg("TAVILY_API_KEY not set, web fallback disabled")
	}

	svc, err := service.New(cfg, service.Deps{
		Storage:     store,
		Index:       index,
		History:     hist,
		OCR:         ocr.NewTesseractEngine(cfg.OCR.Languages, cfg.OCR.DPI),
		Rasterizer:  pdfimage.NewPdftoppm(&cfg.OCR),
		Synthesizer: rag.NewSynthesizer(llm, &cfg.LLM),
		Web:         web,
	})
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return svc, closer, nil
}

func runServer(cfg *config.Config, svc *service.Service) {
	server := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           api.NewRouter(cfg, svc),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("Server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped")
}

func uploadFiles(ctx context.Context, svc *service.Service, sessionID, list string) {
	var sources []service.Source
	for _, path := range strings.Split(list, ",") {
		path = strings.TrimSpace(path)
		if path == "" {
			continue
		}
		sources = append(sources, service.NewFileSource(filepath.Base(path), path))
	}

	result, err := svc.Upload(ctx, sessionID, sources)
	if err != nil {
		log.Fatal().Err(err).Msg("Error uploading documents")
	}
	log.Info().Str("session_id", result.SessionID).Int("chunks", result.ChunkCount).Msg("Documents indexed")
	fmt.Printf("%s\n", result.SessionID)
}

func askQuestion(ctx context.Context, svc *service.Service, sessionID, query string) {
	resp, err := svc.Ask(ctx, sessionID, query)
	if err != nil {
		log.Fatal().Err(err).Msg("Error querying")
	}

	log.Info().Msg("Query: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n\n", query)
	log.Info().Bool("web_fallback", resp.WebFallback).Msg("Response: ~~~~~~~~~~~~~~~~~~~~~~~~~>>>>>")
	fmt.Printf("%s\n", resp.Answer)
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
