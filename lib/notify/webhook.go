// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Webhook reports failures as a JSON POST to a fixed URL. The body:
//
//	{"chain": "daily-release", "run_id": "...", "step": "build",
//	 "attempts": 2, "error": "exit code 1"}
//
// Any 2xx response counts as delivered.
type Webhook struct {
	// URL receives the POST.
	URL string

	// Client overrides the HTTP client. Nil means a client with a
	// 30-second timeout.
	Client *http.Client
}

type webhookBody struct {
	Chain    string `json:"chain"`
	RunID    string `json:"run_id"`
	StepID   string `json:"step"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error"`
}

// NotifyFailure implements Notifier.
func (w *Webhook) NotifyFailure(ctx context.Context, failure Failure) error {
	message := ""
	if failure.Err != nil {
		message = failure.Err.Error()
	}
	encoded, err := json.Marshal(webhookBody{
		Chain:    failure.Chain,
		RunID:    failure.RunID,
		StepID:   failure.StepID,
		Attempts: failure.Attempts,
		Error:    message,
	})
	if err != nil {
		return fmt.Errorf("encoding failure report: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("building failure report: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	response, err := client.Do(request)
	if err != nil {
		return fmt.Errorf("delivering failure report: %w", err)
	}
	defer response.Body.Close()
	_, _ = io.Copy(io.Discard, response.Body)

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return fmt.Errorf("failure report to %s: status %s", w.URL, response.Status)
	}
	return nil
}
