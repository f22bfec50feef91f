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
	"flag"
	"fmt"
	"strings"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/models"
	"wallet-ledger-go/internal/store"

	"go.uber.org/zap"
)

type finalizeRequest struct {
	id     string
	status models.WithdrawalStatus
	notes  string
	txHash string
}

func parseAndValidateFlags() (*finalizeRequest, error) {
	idFlag := flag.String("id", "", "Withdrawal id (required)")
	statusFlag := flag.String("status", "", "Outcome: completed or failed (required)")
	notesFlag := flag.String("notes", "", "Operator notes")
	txHashFlag := flag.String("tx-hash", "", "Settlement transaction hash")
	flag.Parse()

	if *idFlag == "" || *statusFlag == "" {
		return nil, fmt.Errorf("flags --id and --status are required")
	}

	status := models.WithdrawalStatus(*statusFlag)
	if status != models.WithdrawalStatusCompleted && status != models.WithdrawalStatusFailed {
		return nil, fmt.Errorf("--status must be completed or failed, got %q", *statusFlag)
	}

	return &finalizeRequest{
		id:     *idFlag,
		status: status,
		notes:  *notesFlag,
		txHash: *txHashFlag,
	}, nil
}

func printWithdrawal(title string, w *models.WithdrawalSummary) {
	common.PrintHeader(title)
	fmt.Printf("Withdrawal:      %s\n", w.Id)
	fmt.Printf("Method:          %s\n", w.Method)
	fmt.Printf("Status:          %s\n", w.Status)
	fmt.Printf("Amount:          %s %s\n", w.Amount.String(), w.Currency)
	fmt.Printf("Processing Fee:  %s %s\n", w.ProcessingFee.String(), w.Currency)
	fmt.Printf("Net Amount:      %s %s\n", w.NetAmount.String(), w.Currency)
	if w.TransactionHash != "" {
		fmt.Printf("Transaction:     %s\n", w.TransactionHash)
	}
	if w.Notes != "" {
		fmt.Printf("Notes:           %s\n", w.Notes)
	}
	common.PrintSeparator()
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	req, err := parseAndValidateFlags()
	if err != nil {
		zap.L().Fatal("Invalid flags", zap.Error(err))
	}

	zap.L().Info("Finalizing withdrawal",
		zap.String("withdrawal_id", req.id),
		zap.String("status", string(req.status)))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	ctx = models.WithRequestMeta(ctx, &models.RequestMeta{ActorId: "operator", Source: "cli"})

	withdrawal, err := services.Ledger.GetWithdrawalById(ctx, req.id)
	if err != nil {
		common.PrintHeader("WITHDRAWAL NOT UPDATED")
		if errors.Is(err, store.ErrNotFound) {
			fmt.Printf("Error: withdrawal %s not found\n", req.id)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		common.PrintSeparator()
		zap.L().Fatal("Failed to load withdrawal", zap.String("withdrawal_id", req.id), zap.Error(err))
	}

	summary, err := services.Ledger.FinalizeWithdrawal(ctx, req.id, models.WithdrawalProcess{
		Status:          req.status,
		Notes:           req.notes,
		TransactionHash: req.txHash,
	})
	if err != nil {
		common.PrintHeader("WITHDRAWAL NOT UPDATED")
		fmt.Printf("Withdrawal %s is %s\n", withdrawal.Id, withdrawal.Status)
		fmt.Printf("Error: %v\n", err)
		common.PrintSeparator()
		zap.L().Fatal("Failed to finalize withdrawal", zap.String("withdrawal_id", req.id), zap.Error(err))
	}

	printWithdrawal("WITHDRAWAL "+strings.ToUpper(string(summary.Status)), summary)

	if balance, err := services.Ledger.GetBalance(ctx, withdrawal.AccountId); err == nil {
		fmt.Printf("\nAccount %s balance: %s %s\n\n", withdrawal.AccountId, balance.Balance.String(), balance.Currency)
	}

	zap.L().Info("Withdrawal finalized",
		zap.String("withdrawal_id", summary.Id),
		zap.String("account_id", withdrawal.AccountId),
		zap.String("status", string(summary.Status)))
}
