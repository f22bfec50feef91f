/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/httpserver"
	"wallet-ledger-go/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting wallet ledger server")

	if cfg.HTTP.JWTSecret == "" {
		zap.L().Fatal("JWT_SECRET is required")
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	limiter, closeLimiter, err := ratelimit.New(ctx, cfg.RateLimit)
	if err != nil {
		zap.L().Fatal("Failed to initialize rate limiter", zap.Error(err))
	}
	defer func() {
		if err := closeLimiter(); err != nil {
			zap.L().Warn("Failed to close rate limiter", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	ready := httpserver.NewHealth(false, services.Ledger.HealthCheck)

	router := httpserver.NewRouter(httpserver.RouterOptions{
		Ledger:       services.Ledger,
		Limiter:      limiter,
		Metrics:      services.Metrics,
		Registry:     services.Registry,
		Health:       ready,
		JWTSecret:    []byte(cfg.HTTP.JWTSecret),
		OperatorRole: cfg.HTTP.OperatorRole,
		MetricsPath:  cfg.HTTP.MetricsPath,
	})
	server := httpserver.NewServer(cfg.HTTP, router)

	go func() {
		zap.L().Info("Server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("Server error", zap.Error(err))
		}
	}()
	ready.SetReady(true)

	waitForShutdown(server, ready)
}

func waitForShutdown(server *http.Server, ready *httpserver.Health) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ready.SetReady(false)
	zap.L().Info("Shutdown signal received, draining requests...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		zap.L().Error("Shutdown error", zap.Error(err))
		return
	}
	zap.L().Info("Shutdown complete")
}
