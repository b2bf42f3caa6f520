package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/nx-scanner/internal/ledger"
	"github.com/sells-group/nx-scanner/internal/ticket"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the scan API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		led, st, err := initLedger(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		janitor := ledger.NewJanitor(st, time.Duration(cfg.Server.JanitorIntervalSecs)*time.Second)
		go janitor.Run(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(led, rate.Limit(cfg.Server.RateLimit), cfg.Server.RateBurst),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the scan API. Parsing happens server-side so clients
// only ever submit raw payload text.
func newRouter(led *ledger.Ledger, limit rate.Limit, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))
	r.Use(rateLimiter(limit, burst))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/api/scans", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Text string `json:"text"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		res := ticket.Parse(body.Text)
		receipt, err := led.Record(req.Context(), res.Raw, res.FieldMap())
		if err != nil {
			if eris.Is(err, ledger.ErrEmptyKey) {
				writeError(w, http.StatusBadRequest, "empty payload")
				return
			}
			zap.L().Error("record scan failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"ok":           true,
			"kind":         res.Kind,
			"valid":        res.Valid(),
			"errors":       res.Errors,
			"parsed":       res.FieldMap(),
			"wasDuplicate": receipt.WasDuplicate,
			"count":        receipt.Count,
			"receipt":      receipt,
		})
	})

	r.Get("/api/scans/list", func(w http.ResponseWriter, req *http.Request) {
		records, err := led.ListToday(req.Context())
		if err != nil {
			zap.L().Error("list scans failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":    true,
			"scans": records,
			"count": len(records),
		})
	})

	r.Post("/api/scans/clear", func(w http.ResponseWriter, req *http.Request) {
		n, err := led.ClearAll(req.Context())
		if err != nil {
			zap.L().Error("clear scans failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deletedCount": n})
	})

	return r
}

// rateLimiter applies one shared token bucket across all clients; the
// scan kiosk fleet is small enough that per-IP buckets are not worth it.
func rateLimiter(limit rate.Limit, burst int) func(http.Handler) http.Handler {
	limiter := rate.NewLimiter(limit, burst)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"ok": false, "error": msg})
}
