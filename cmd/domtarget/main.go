// Command domtarget is the semantic element resolution engine.
//
// Usage:
//
//	domtarget -config domtarget.yaml               # daemon with config file
//	domtarget -html page.html -find "search box"   # scan a file, resolve, exit
//	domtarget -url https://example.com -find "login button"
//	domtarget -mcp                                 # MCP server on stdio
//	domtarget -http :8090                          # HTTP API
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/domtarget/bounds"
	"github.com/hazyhaar/domtarget/connectivity"
	"github.com/hazyhaar/domtarget/httpapi"
	"github.com/hazyhaar/domtarget/match"
	"github.com/hazyhaar/domtarget/matchlog"
	"github.com/hazyhaar/domtarget/scanner"
)

func main() {
	configPath := flag.String("config", "", "path to domtarget.yaml config file")
	htmlPath := flag.String("html", "", "static HTML file to scan")
	pageURL := flag.String("url", "", "page URL to scan with a live browser")
	findQuery := flag.String("find", "", "description to resolve (exit after results)")
	mcpStdio := flag.Bool("mcp", false, "serve MCP on stdio")
	httpAddr := flag.String("http", "", "HTTP API listen address")
	dbPath := flag.String("db", "", "path to decision log SQLite database")
	headful := flag.Bool("headful", false, "run the live browser with a visible window")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	switch *logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := cliOptions{
		htmlPath:  *htmlPath,
		pageURL:   *pageURL,
		findQuery: *findQuery,
		mcpStdio:  *mcpStdio,
		httpAddr:  *httpAddr,
		dbPath:    *dbPath,
		headful:   *headful,
	}
	if err := run(ctx, logger, *configPath, opts); err != nil {
		logger.Error("domtarget: fatal", "error", err)
		os.Exit(1)
	}
}

const (
	shutdownTimeout = 5 * time.Second
	handlerTimeout  = 30 * time.Second
)

type cliOptions struct {
	htmlPath  string
	pageURL   string
	findQuery string
	mcpStdio  bool
	httpAddr  string
	dbPath    string
	headful   bool
}

func run(ctx context.Context, logger *slog.Logger, configPath string, opts cliOptions) error {
	cfg := &match.Config{}
	if configPath != "" {
		loaded, err := match.LoadConfigFile(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.dbPath != "" {
		cfg.DBPath = opts.dbPath
	}
	if opts.httpAddr != "" {
		cfg.HTTPAddr = opts.httpAddr
	}

	var matcherOpts []match.Option

	// Decision log.
	var store *matchlog.Store
	if cfg.DBPath != "" {
		s, err := matchlog.Open(cfg.DBPath)
		if err != nil {
			return fmt.Errorf("decision log: %w", err)
		}
		defer s.Close()
		store = s
		matcherOpts = append(matcherOpts, match.WithRecorder(s))
	}

	// Live browser, wired as the bounds resolver's DOM.
	var live *scanner.Live
	if opts.pageURL != "" {
		live = scanner.NewLive(scanner.LiveConfig{Headful: opts.headful}, logger)
		if err := live.Start(ctx); err != nil {
			return err
		}
		defer live.Close()
		matcherOpts = append(matcherOpts, match.WithBounds(bounds.New(live, cfg.Bounds, logger)))
	}

	m := match.New(*cfg, logger, matcherOpts...)

	const oneShotContext = "cli"
	switch {
	case opts.htmlPath != "":
		data, err := os.ReadFile(opts.htmlPath)
		if err != nil {
			return err
		}
		elements, err := scanner.Snapshot(data, scanner.Options{})
		if err != nil {
			return err
		}
		for _, sem := range elements {
			m.RegisterElement(oneShotContext, sem)
		}
		logger.Info("domtarget: scanned file", "path", opts.htmlPath, "elements", len(elements))
	case opts.pageURL != "":
		if err := live.Open(ctx, oneShotContext, opts.pageURL); err != nil {
			return err
		}
		n, err := live.ScanInto(ctx, oneShotContext, m)
		if err != nil {
			return err
		}
		logger.Info("domtarget: scanned page", "url", opts.pageURL, "elements", n)
	}

	// One-shot: resolve and print.
	if opts.findQuery != "" {
		matches := m.FindByDescription(ctx, oneShotContext, opts.findQuery, 0)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(matches)
	}

	// Connectivity router for in-process callers.
	router := connectivity.New(connectivity.WithLogger(logger))
	router.Use(
		connectivity.Logging(logger),
		connectivity.Recovery(logger),
		connectivity.Timeout(handlerTimeout),
	)
	m.RegisterConnectivity(router)

	// MCP on stdio: blocking, single transport.
	if opts.mcpStdio {
		srv := mcp.NewServer(&mcp.Implementation{
			Name:    "domtarget",
			Version: "1.0.0",
		}, nil)
		m.RegisterMCP(srv)
		logger.Info("domtarget: serving MCP on stdio")
		return srv.Run(ctx, &mcp.StdioTransport{})
	}

	if cfg.HTTPAddr == "" {
		fmt.Fprintln(os.Stderr, "usage: domtarget -html <file>|-url <url> -find <query> | -mcp | -http <addr>")
		os.Exit(1)
	}

	// HTTP API daemon.
	api := httpapi.New(m, store, logger)
	server := &http.Server{Addr: cfg.HTTPAddr, Handler: api.Router()}

	errc := make(chan error, 1)
	go func() {
		logger.Info("domtarget: serving HTTP", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("domtarget: shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutCtx)
}
