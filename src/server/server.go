package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"

	"tradesync/src/handler"
	"tradesync/src/ws"
)

// requestID tags every request with a short id so collector and dashboard
// calls can be correlated in the logs.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		start := time.Now()
		next.ServeHTTP(w, r)

		logger.WithFields(map[string]interface{}{
			"request_id": id,
			"method":     r.Method,
			"path":       r.URL.Path,
			"duration":   time.Since(start).String(),
		}).Debug("request handled")
	})
}

func StartServer(port string) {
	// Router with middleware
	r := chi.NewRouter()
	r.Use(requestID)

	hub := ws.NewHub()

	// Public routes
	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error(" \"/health error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		// Agent collectors
		r.Post("/trades/sync", handler.DefaultSyncTradesHandler(hub))
		r.Post("/trades/auth", handler.DefaultTradesAuthHandler())
		r.Post("/account", handler.DefaultCollectAccountHandler(hub))
		r.Post("/price", handler.DefaultCollectPriceHandler())
		r.Post("/volatility", handler.DefaultCollectVolatilityHandler())

		// Dashboard reads
		r.Get("/accounts", handler.DefaultGetAccountsHandler())
		r.Get("/accounts/{login}", handler.DefaultGetAccountByLoginHandler())
		r.Get("/trades", handler.DefaultGetTradesHandler())
		r.Get("/trades/combined", handler.DefaultGetCombinedTradesHandler())
		r.Get("/configs", handler.DefaultGetConfigsHandler())
		r.Get("/configs/{id}", handler.DefaultGetConfigByIDHandler())

		// Operator mutations
		r.Post("/configs/param", handler.DefaultUpdateTradeParamHandler())
		r.Post("/configs/auth", handler.DefaultUpdateAuthParamHandler())
		r.Post("/configs/sltp", handler.DefaultUpdateSLTPHandler())

		// Derived statistics
		r.Get("/volatility/calculate", handler.DefaultCalculateVolatilityHandler())
		r.Post("/volatility/backfill", handler.DefaultBackfillVolatilityHandler())
	})

	// Dashboard push feed
	r.Get("/ws/updates", hub.ServeHTTP)

	// Graceful server
	// Server setup
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	// Start server in goroutine
	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	// Shutdown on SIGINT or SIGTERM
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
