// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianMemory/services/memory/bank"
	"github.com/AleutianAI/AleutianMemory/services/memory/reflect"
)

// retainResponse mirrors the server's retain response.
type retainResponse struct {
	Items []bank.Item `json:"items"`
}

// recallResponse mirrors the server's recall response.
type recallResponse struct {
	Results []bank.ScoredItem `json:"results"`
}

func runBankCommand(_ *cobra.Command, args []string) {
	bankName := args[0]
	body := map[string]any{"mission": bankMission}

	var profile bank.Profile
	if err := doRequest("PUT", bankURL(bankName, ""), body, &profile, time.Minute); err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("Bank %q ready (mission: %s)\n", profile.Name, orNone(profile.Mission))
}

func runRetainCommand(_ *cobra.Command, args []string) {
	bankName := args[0]
	items := make([]map[string]any, 0, len(args)-1)
	for _, text := range args[1:] {
		item := map[string]any{"text": text}
		if itemKind != "" {
			item["kind"] = itemKind
		}
		if len(itemEntities) > 0 {
			item["entities"] = itemEntities
		}
		items = append(items, item)
	}

	var resp retainResponse
	if err := doRequest("POST", bankURL(bankName, "retain"), map[string]any{"items": items}, &resp, time.Minute); err != nil {
		fatalf("%v", err)
	}
	for _, it := range resp.Items {
		fmt.Printf("Retained %s [%s] %s\n", it.ID, it.Kind, it.Text)
	}
}

func runRecallCommand(_ *cobra.Command, args []string) {
	bankName := args[0]
	query := strings.Join(args[1:], " ")

	body := map[string]any{"query": query}
	if recallLimit > 0 {
		body["limit"] = recallLimit
	}

	var resp recallResponse
	if err := doRequest("POST", bankURL(bankName, "recall"), body, &resp, time.Minute); err != nil {
		fatalf("%v", err)
	}
	if len(resp.Results) == 0 {
		fmt.Println("No memories matched.")
		return
	}
	for i, hit := range resp.Results {
		fmt.Printf("%d. [%.2f] (%s) %s\n", i+1, hit.Score, hit.Kind, hit.Text)
		fmt.Printf("   id: %s\n", hit.ID)
	}
}

func runReflectCommand(_ *cobra.Command, args []string) {
	bankName := args[0]
	question := strings.Join(args[1:], " ")
	fmt.Printf("Reflecting on %q: %s\n", bankName, question)

	body := map[string]any{"query": question}
	if maxIterations > 0 {
		body["max_iterations"] = maxIterations
	}

	done := make(chan bool)
	go showSpinner("Reflecting", done)

	var result reflect.Result
	err := doRequest("POST", bankURL(bankName, "reflect"), body, &result, 10*time.Minute)
	done <- true
	fmt.Print("\r                                        \r")
	if err != nil {
		fatalf("%v", err)
	}

	fmt.Printf("\nAnswer:\n%s\n", result.Text)
	if len(result.UsedMemoryIDs) > 0 {
		fmt.Println("\nMemories used:")
		for i, id := range result.UsedMemoryIDs {
			fmt.Printf("%d. %s\n", i+1, id)
		}
	}
	fmt.Printf("\n[%d iterations, %s, %d in / %d out tokens]\n",
		result.Iterations, result.FinishReason, result.InputTokens, result.OutputTokens)
}

// bankURL builds a /v1/memory/banks URL for a bank, with an optional
// trailing operation segment.
func bankURL(bankName, op string) string {
	u := fmt.Sprintf("%s/v1/memory/banks/%s", getServerBaseURL(), url.PathEscape(bankName))
	if op != "" {
		u += "/" + op
	}
	return u
}

// doRequest sends a JSON request and decodes the JSON response into out.
// Non-200 statuses become errors carrying the server's body.
func doRequest(method, targetURL string, body any, out any, timeout time.Duration) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequest(method, targetURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("memory server unavailable at %s: %w", getServerBaseURL(), err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// showSpinner animates a progress indicator until done receives.
func showSpinner(msg string, done chan bool) {
	chars := []string{"▖", "▘", "▝", "▗"}
	i := 0

	fmt.Print("\033[?25l")
	defer fmt.Print("\033[?25h")

	for {
		select {
		case <-done:
			return
		default:
			fmt.Printf("\r%s  %s... \033[K", chars[i%len(chars)], msg)
			i++
			time.Sleep(100 * time.Millisecond)
		}
	}
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
