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
	"flag"
	"fmt"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/payout"
	"wallet-ledger-go/internal/prime"

	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	idFlag := flag.String("id", "", "Crypto withdrawal id to pay out (required)")
	flag.Parse()

	if *idFlag == "" {
		zap.L().Fatal("Flag --id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	zap.L().Info("Loading asset configuration", zap.String("file", cfg.Prime.AssetsFile))
	assets, err := common.LoadAssetConfig(cfg.Prime.AssetsFile)
	if err != nil {
		zap.L().Fatal("Failed to load asset config", zap.Error(err))
	}

	zap.L().Info("Loading Prime API credentials")
	primeService, err := prime.NewService(cfg.Prime)
	if err != nil {
		zap.L().Fatal("Failed to create Prime service", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	ctx = models.WithRequestMeta(ctx, &models.RequestMeta{ActorId: "operator", Source: "cli"})

	payouts := payout.NewService(services.Ledger, primeService, assets)
	result, err := payouts.Pay(ctx, *idFlag)
	if err != nil {
		common.PrintHeader("PAYOUT FAILED")
		fmt.Printf("Withdrawal: %s\n", *idFlag)
		fmt.Printf("Error:      %v\n", err)
		common.PrintSeparator()
		zap.L().Fatal("Payout failed", zap.String("withdrawal_id", *idFlag), zap.Error(err))
	}

	common.PrintHeader("PAYOUT SUBMITTED")
	fmt.Printf("Withdrawal:      %s\n", *idFlag)
	fmt.Printf("Activity ID:     %s\n", result.ActivityId)
	fmt.Printf("Amount:          %s %s\n", result.Amount, result.Asset)
	fmt.Printf("Destination:     %s\n", result.Destination)
	fmt.Printf("Idempotency Key: %s\n", result.IdempotencyKey)
	common.PrintSeparator()
	fmt.Println("\nFinalize with cmd/withdrawal once Prime reports the transfer as done.")
}
