package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nhartono/daftar/internal/api"
	"github.com/nhartono/daftar/internal/compose"
	"github.com/nhartono/daftar/internal/config"
	"github.com/nhartono/daftar/internal/engine"
	"github.com/nhartono/daftar/internal/extract"
	"github.com/nhartono/daftar/internal/llm"
	"github.com/nhartono/daftar/internal/schema"
	"github.com/nhartono/daftar/internal/storage"
	"github.com/nhartono/daftar/internal/upload"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the registration assistant server (HTTP + MCP)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "daftar version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(cfg.Log.Level, "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	// A broken form definition is a startup failure, never a runtime one.
	f, err := loadSchema(cfg.Form.SchemaPath)
	if err != nil {
		return fmt.Errorf("loading form schema: %w", err)
	}
	slog.Info("form schema loaded", "form", f.FormName, "version", f.Version, "sections", len(f.Sections))

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := llm.New(cfg.Ollama.BaseURL, cfg.Ollama.ChatModel)
	if !client.IsRunning(ctx) {
		printWarning("Ollama not reachable at %s; chat turns will fail until it is up", cfg.Ollama.BaseURL)
		slog.Warn("ollama not reachable", "base_url", cfg.Ollama.BaseURL)
	}

	eng, err := engine.New(
		f,
		store.SessionStore(),
		extract.New(client, 3),
		compose.New(client, cfg.Chat.HistoryWindow),
		engine.Options{SkipKeywords: cfg.Chat.SkipKeywords},
	)
	if err != nil {
		return fmt.Errorf("building engine: %w", err)
	}

	handler := api.NewHandler(api.Deps{
		Engine:  eng,
		DB:      store,
		Uploads: upload.NewManager(cfg.Storage.DataDir),
		Token:   cfg.API.Token,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	mcpAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.MCPPort)
	mcpSrv := server.NewStreamableHTTPServer(api.NewMCPServer(api.MCPDeps{Engine: eng}))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "daftar listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started", "addr", mcpAddr)
		if err := mcpSrv.Start(mcpAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown", "error", err)
		}
		return mcpSrv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func loadSchema(path string) (*schema.FormSchema, error) {
	if path == "" {
		return schema.Default(), nil
	}
	return schema.LoadFile(path)
}
