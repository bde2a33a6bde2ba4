package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// runMetricsServer /metricsを公開し、ctxが終了したらサーバーを停止する
// 返されるチャネルは停止完了時に閉じられる
func runMetricsServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, log *slog.Logger) <-chan struct{} {
	h := http.NewServeMux()
	h.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: metricsTimeout,
		ReadTimeout:       metricsTimeout,
	}
	s.RegisterOnShutdown(func() {
		log.Info("Metrics server is shutting down")
	})
	go func() {
		log.Info("Starting metrics server", "address", addr)
		err := s.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failed to start metrics server", "error", err)
		}
	}()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown metrics server", "error", err)
		}
	}()
	return done
}
