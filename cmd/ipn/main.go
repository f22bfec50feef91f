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
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"time"

	"wallet-ledger-go/internal/common"
	"wallet-ledger-go/internal/config"
	"wallet-ledger-go/internal/nowpayments"

	"go.uber.org/zap"
)

// buildNotification renders a provider-style callback body
func buildNotification(paymentId, status, paid, priceCurrency, payCurrency string) ([]byte, error) {
	return json.Marshal(map[string]any{
		"payment_id":     json.Number(paymentId),
		"payment_status": status,
		"actually_paid":  json.Number(paid),
		"price_currency": priceCurrency,
		"pay_currency":   payCurrency,
	})
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	urlFlag := flag.String("url", "http://localhost:8080/api/deposit/ipn", "Notification endpoint of a running server")
	paymentFlag := flag.String("payment-id", "", "Provider payment id (required)")
	statusFlag := flag.String("status", "finished", "Payment status to report")
	paidFlag := flag.String("paid", "0", "Amount actually paid")
	payCurrencyFlag := flag.String("pay-currency", "btc", "Pay currency")
	flag.Parse()

	if *paymentFlag == "" {
		zap.L().Fatal("Flag --payment-id is required")
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}
	if cfg.NowPayments.IPNSecret == "" {
		zap.L().Fatal("NOWPAYMENTS_IPN_SECRET is required to sign notifications")
	}

	body, err := buildNotification(*paymentFlag, *statusFlag, *paidFlag, cfg.Policy.Currency, *payCurrencyFlag)
	if err != nil {
		zap.L().Fatal("Failed to build notification", zap.Error(err))
	}
	signature, err := nowpayments.Sign(body, cfg.NowPayments.IPNSecret)
	if err != nil {
		zap.L().Fatal("Failed to sign notification", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, *urlFlag, bytes.NewReader(body))
	if err != nil {
		zap.L().Fatal("Failed to build request", zap.Error(err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(nowpayments.SignatureHeader, signature)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		zap.L().Fatal("Failed to send notification", zap.Error(err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	fmt.Printf("%d %s\n", resp.StatusCode, string(respBody))

	zap.L().Info("Notification sent",
		zap.String("payment_id", *paymentFlag),
		zap.String("status", *statusFlag),
		zap.Int("http_status", resp.StatusCode))
}
