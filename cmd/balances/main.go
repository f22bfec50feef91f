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

	"go.uber.org/zap"
)

type balanceStats struct {
	accounts     int
	withBalance  int
	inconsistent int
	mirrorDrift  int
}

func printAccount(account models.Account) {
	fmt.Printf("\n┌─ Account: %s\n", account.UserId)
	fmt.Printf("│  Balance: %s %s (v%d, last_entry: %s, updated: %s)\n",
		account.Balance.String(),
		account.Currency,
		account.Version,
		common.ShortId(account.LastEntry),
		account.UpdatedAt.Format("2006-01-02 15:04:05"))
	common.PrintBoxSeparator()
}

func printHistory(records []models.TransactionRecord) {
	for i, r := range records {
		isLast := i == len(records)-1
		fmt.Printf("%s %-10s %-9s %14s  %s -> %s  %s\n",
			common.BoxPrefix(isLast),
			r.Type,
			r.Status,
			r.Amount.String(),
			r.BalanceBefore.String(),
			r.BalanceAfter.String(),
			r.CreatedAt.Format("2006-01-02 15:04:05"))
		if r.Description != "" {
			fmt.Printf("%s   %s\n", common.BoxDetailPrefix(isLast), r.Description)
		}
	}
}

func processAccount(ctx context.Context, services *common.Services, account models.Account, historyLimit int, reconcile bool, stats *balanceStats) {
	printAccount(account)

	if historyLimit > 0 {
		history, err := services.Ledger.GetTransactionHistory(ctx, account.UserId, "", models.Page{Page: 0, Limit: historyLimit})
		if err != nil {
			zap.L().Error("Failed to read history", zap.String("account_id", account.UserId), zap.Error(err))
		} else {
			printHistory(history.Items)
		}
	}

	if reconcile {
		result, err := services.Ledger.Reconcile(ctx, account.UserId)
		switch {
		case err != nil:
			zap.L().Error("Failed to reconcile", zap.String("account_id", account.UserId), zap.Error(err))
		case result.Consistent():
			fmt.Printf("   reconcile: OK (%s)\n", result.Calculated.String())
		default:
			stats.inconsistent++
			fmt.Printf("   reconcile: MISMATCH stored=%s calculated=%s\n", result.Stored.String(), result.Calculated.String())
		}
	}

	if services.Mirror != nil {
		mirrored, err := services.Mirror.UserBalance(ctx, account.UserId, account.Currency)
		switch {
		case err != nil:
			zap.L().Error("Failed to read mirrored balance", zap.String("account_id", account.UserId), zap.Error(err))
		case mirrored.Equal(account.Balance):
			fmt.Printf("   formance:  OK (%s)\n", mirrored.String())
		default:
			stats.mirrorDrift++
			fmt.Printf("   formance:  DRIFT local=%s mirror=%s\n", account.Balance.String(), mirrored.String())
		}
	}
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	accountFlag := flag.String("account", "", "Only report this account id (optional)")
	limitFlag := flag.Int("limit", 100, "Maximum number of accounts to report")
	historyFlag := flag.Int("history", 0, "Number of recent ledger entries to print per account")
	reconcileFlag := flag.Bool("reconcile", false, "Check each stored balance against its ledger entries")
	flag.Parse()

	zap.L().Info("Starting balance query")

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var accounts []models.Account
	if *accountFlag != "" {
		account, err := services.DbService.GetAccount(ctx, *accountFlag)
		if err != nil {
			zap.L().Fatal("Failed to load account", zap.String("account_id", *accountFlag), zap.Error(err))
		}
		accounts = []models.Account{*account}
	} else {
		accounts, err = services.DbService.ListAccounts(ctx, *limitFlag)
		if err != nil {
			zap.L().Fatal("Failed to list accounts", zap.Error(err))
		}
	}

	common.PrintHeader("ACCOUNT BALANCE REPORT")

	stats := balanceStats{}
	for _, account := range accounts {
		stats.accounts++
		if account.Balance.IsPositive() {
			stats.withBalance++
		}
		processAccount(ctx, services, account, *historyFlag, *reconcileFlag, &stats)
	}

	if services.Mirror != nil {
		pending, err := services.Mirror.PendingWithdrawals(ctx, cfg.Policy.Currency)
		if err != nil {
			zap.L().Error("Failed to read pending withdrawals from Formance", zap.Error(err))
		} else {
			fmt.Printf("\nFunds held for pending withdrawals (formance): %s\n", pending.String())
		}
	}

	summary := fmt.Sprintf("SUMMARY: %d accounts (%d with balance, %d inconsistent, %d mirror drift)",
		stats.accounts, stats.withBalance, stats.inconsistent, stats.mirrorDrift)
	common.PrintFooter(summary)

	zap.L().Info("Balance query completed",
		zap.Int("accounts", stats.accounts),
		zap.Int("accounts_with_balance", stats.withBalance),
		zap.Int("inconsistent", stats.inconsistent),
		zap.Int("mirror_drift", stats.mirrorDrift))
}
