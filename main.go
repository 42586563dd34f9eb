package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"

	"billcard/internal/audit"
	"billcard/internal/cache"
	"billcard/internal/config"
	"billcard/internal/handlers/billcard"
	"billcard/internal/handlers/export"
	"billcard/internal/handlers/labels"
	"billcard/internal/ledger"
	"billcard/internal/logger"
	"billcard/internal/response"
	"billcard/internal/server"
	"billcard/internal/upstream"
	"billcard/internal/websocket"
)

func main() {
	configPath := os.Getenv("BILLCARD_CONFIG")
	if configPath == "" {
		configPath = "billcard.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	cfg.BindFlags(flag.CommandLine)
	flag.Parse()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "invalid config:", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Format, cfg.Log.Level)
	decimal.MarshalJSONWithoutQuotes = true

	loc, _ := cfg.Location()
	db, err := initDB(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("DB init failed")
	}
	defer db.Close()

	store := cache.NewStore(cfg.Cache.TTL)
	store.StartJanitor(cfg.Cache.TTL)
	defer store.Close()

	hub := websocket.NewHub(log)
	app := &server.App{
		DB:  db,
		Hub: hub,
		Engine: ledger.NewEngine(ledger.Options{
			Location: loc,
			Fallback: ledger.FallbackWindow{
				Enabled:    cfg.Ledger.FallbackWindow,
				YearsBack:  cfg.Ledger.FallbackYears,
				YearsAhead: cfg.Ledger.FallbackAhead,
			},
		}),
		Cache: store,
		Loader: &cache.Loader{
			Store:  store,
			Source: upstream.NewClient(cfg.Upstream.BaseURL, cfg.Upstream.Token, cfg.Upstream.Timeout, log),
		},
		Config: cfg,
		Log:    log,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Audit.RetentionDays > 0 {
		go runAuditCleanup(ctx, app)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           newHandler(app, server.NewRateLimiter()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("upstream", cfg.Upstream.BaseURL).Msg("billcard server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("shutdown")
	}
}

func runAuditCleanup(ctx context.Context, app *server.App) {
	interval := app.Config.Audit.CleanupInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		audit.CleanupOld(app.DB, app.Config.Audit.RetentionDays, app.Log)
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}

// newHandler wires routes and the middleware chain.
func newHandler(app *server.App, rl *server.RateLimiter) http.Handler {
	bills := &billcard.Handler{
		DB:     app.DB,
		Hub:    app.Hub,
		Engine: app.Engine,
		Cache:  app.Cache,
		Loader: app.Loader,
	}
	exports := &export.Handler{DB: app.DB, Hub: app.Hub, Bills: bills}
	qr := &labels.Handler{
		DB:      app.DB,
		Hub:     app.Hub,
		Bills:   bills,
		Size:    app.Config.Labels.Size,
		BaseURL: app.Config.Labels.BaseURL,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]interface{}{
			"status":        "ok",
			"cache_entries": app.Cache.Len(),
			"ws_clients":    app.Hub.ClientCount(),
		})
	})
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.HandleWebSocket(app.Hub, w, r)
	})

	// API routes - using a simple router
	mux.HandleFunc("/api/v1/", func(w http.ResponseWriter, r *http.Request) {
		parts, ok := pathSegments(r)
		if !ok {
			response.Err(w, "malformed path", http.StatusBadRequest)
			return
		}
		n := len(parts)

		switch {
		// Bill cards
		case parts[0] == "bills" && n == 1 && r.Method == "GET":
			bills.ListBills(w, r)
		case parts[0] == "bills" && n == 2 && parts[1] == "refresh" && r.Method == "POST":
			bills.RefreshBills(w, r)
		case parts[0] == "bills" && n == 2 && parts[1] == "refresh":
			w.Header().Set("Allow", "POST")
			response.Err(w, "method not allowed", http.StatusMethodNotAllowed)
		case parts[0] == "bills" && n == 2 && r.Method == "GET":
			bills.GetBill(w, r, parts[1])
		case parts[0] == "bills" && n == 3 && parts[2] == "range" && r.Method == "GET":
			bills.GetBillRange(w, r, parts[1])

		// Scan
		case parts[0] == "scan" && n == 1 && r.Method == "GET":
			bills.Scan(w, r, r.URL.Query().Get("code"))
		case parts[0] == "scan" && n == 2 && r.Method == "GET":
			bills.Scan(w, r, parts[1])

		// Export
		case parts[0] == "export" && n == 2 && parts[1] == "bills" && r.Method == "GET":
			exports.ExportBills(w, r)
		case parts[0] == "export" && n == 3 && parts[1] == "bills" && r.Method == "GET":
			exports.ExportBill(w, r, parts[2])

		// Labels
		case parts[0] == "labels" && n == 2 && parts[1] == "sheet" && r.Method == "POST":
			qr.LabelSheet(w, r)
		case parts[0] == "labels" && n == 2 && strings.HasSuffix(parts[1], ".png") && r.Method == "GET":
			qr.LabelPNG(w, r, strings.TrimSuffix(parts[1], ".png"))

		// Audit
		case parts[0] == "audit" && n == 1 && r.Method == "GET":
			bills.ListAudit(w, r)

		default:
			response.Err(w, "not found", http.StatusNotFound)
		}
	})

	var h http.Handler = mux
	h = server.GzipMiddleware(h)
	h = server.RateLimitMiddleware(rl)(h)
	h = server.SecurityHeaders(h)
	h = server.LoggingMiddleware(h)
	h = server.RequestID(app.Log)(h)
	return h
}

// pathSegments splits the escaped path so part numbers may carry an encoded '/'.
func pathSegments(r *http.Request) ([]string, bool) {
	path := strings.TrimPrefix(r.URL.EscapedPath(), "/api/v1/")
	path = strings.Trim(path, "/")
	raw := strings.Split(path, "/")
	parts := make([]string, len(raw))
	for i, s := range raw {
		p, err := url.PathUnescape(s)
		if err != nil {
			return nil, false
		}
		parts[i] = p
	}
	return parts, true
}
