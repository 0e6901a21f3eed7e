// Package main runs a local emulator of the Björn Lundén accounting API.
//
// Configuration comes from the environment:
//
//	PORT       listen port (default 8089)
//	DB_PATH    bbolt token database (default ./data/emulator.db)
//	FIXTURES   YAML fixtures file (default: built-in demo data)
//	TOKEN_TTL  lifetime of issued tokens, e.g. 1h (default 1h)
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/shunichi-ikebuchi/bl-docs/pkg/emulator"
)

const (
	defaultPort   = "8089"
	defaultDBPath = "./data/emulator.db"
)

func main() {
	// Setup structured JSON logging.
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = defaultPort
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = defaultDBPath
	}

	fixtures := emulator.DemoFixtures()
	if path := os.Getenv("FIXTURES"); path != "" {
		f, err := emulator.LoadFixtures(path)
		if err != nil {
			slog.Error("failed to load fixtures", "error", err, "path", path)
			os.Exit(1)
		}
		fixtures = f
	}

	opts := []emulator.Option{emulator.WithLogger(logger)}
	if v := os.Getenv("TOKEN_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			slog.Error("invalid TOKEN_TTL", "error", err, "value", v)
			os.Exit(1)
		}
		opts = append(opts, emulator.WithTokenTTL(ttl))
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		slog.Error("failed to create data directory", "error", err, "db_path", dbPath)
		os.Exit(1)
	}

	st, err := emulator.OpenStore(dbPath)
	if err != nil {
		slog.Error("failed to initialize store", "error", err, "db_path", dbPath)
		os.Exit(1)
	}
	defer func() {
		if err := st.Close(); err != nil {
			slog.Error("failed to close store", "error", err)
		}
	}()

	slog.Info("database initialized", "db_path", dbPath)

	srv := emulator.New(st, fixtures, opts...)

	addr := fmt.Sprintf(":%s", port)
	slog.Info("starting Björn Lundén API emulator", "addr", addr,
		"client_id", fixtures.ClientID, "companies", len(fixtures.Companies))

	server := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown.
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, os.Interrupt, syscall.SIGTERM)
		<-sigint

		slog.Info("shutting down server")
		if err := server.Close(); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
