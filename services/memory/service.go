// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package memory is the product surface of the memory service: bank
// profiles, retain, recall, and the reflect operation, exposed over HTTP
// under /v1/memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianMemory/services/memory/bank"
	"github.com/AleutianAI/AleutianMemory/services/memory/reflect"
	"github.com/AleutianAI/AleutianMemory/services/metrics"
)

// ServiceConfig holds service-level settings.
type ServiceConfig struct {
	// MaxIterations is the default reflect tool-round budget. Requests
	// may lower it but not raise it.
	MaxIterations int

	// ConcurrentTools executes a reflect round's tool calls concurrently.
	ConcurrentTools bool
}

// DefaultServiceConfig returns the standard configuration.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		MaxIterations: reflect.DefaultMaxIterations,
	}
}

// Service bundles the bank store, the LLM gateway and the metrics
// collector behind the memory operations.
//
// Description:
//
//	The store and gateway are optional: a Service without a store answers
//	health checks but rejects bank operations, and a Service without a
//	gateway rejects reflect. This lets the server come up degraded when
//	storage or LLM configuration is unavailable instead of failing to
//	boot.
//
// Thread Safety: Service is safe for concurrent use.
type Service struct {
	cfg       ServiceConfig
	store     *bank.Store
	gateway   reflect.Gateway
	collector metrics.Collector
}

// NewService creates a Service. store and gateway may be nil (degraded
// mode); collector may be nil (telemetry disabled).
func NewService(cfg ServiceConfig, store *bank.Store, gateway reflect.Gateway, collector metrics.Collector) *Service {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = reflect.DefaultMaxIterations
	}
	return &Service{
		cfg:       cfg,
		store:     store,
		gateway:   gateway,
		collector: metrics.OrNoop(collector),
	}
}

// StoreReady reports whether bank storage is available.
func (s *Service) StoreReady() bool {
	return s.store != nil
}

// ReflectReady reports whether reflect runs can be served.
func (s *Service) ReflectReady() bool {
	return s.store != nil && s.gateway != nil
}

// errStoreUnavailable and errGatewayUnavailable mark degraded-mode
// rejections so handlers can map them to 503.
var (
	errStoreUnavailable   = errors.New("memory: bank storage is unavailable")
	errGatewayUnavailable = errors.New("memory: LLM gateway is unavailable")
)

// PutProfile creates or updates a bank profile.
func (s *Service) PutProfile(ctx context.Context, profile bank.Profile) error {
	if s.store == nil {
		return errStoreUnavailable
	}
	return s.store.PutProfile(ctx, profile)
}

// GetProfile fetches a bank profile.
func (s *Service) GetProfile(ctx context.Context, bankName string) (*bank.Profile, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}
	return s.store.GetProfile(ctx, bankName)
}

// Retain stores memory items in a bank.
func (s *Service) Retain(ctx context.Context, bankName string, items []bank.Item) ([]bank.Item, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}

	start := time.Now()
	stored, err := s.store.Retain(ctx, bankName, items)
	s.collector.RecordOperation(metrics.OperationLabels{
		Operation: "retain",
		BankID:    bankName,
		Source:    "api",
	}, time.Since(start), err == nil)
	return stored, err
}

// Recall searches retained facts by keyword.
func (s *Service) Recall(ctx context.Context, bankName, query string, limit int) ([]bank.ScoredItem, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}

	start := time.Now()
	hits, err := s.store.Recall(ctx, bankName, query, limit)
	s.collector.RecordOperation(metrics.OperationLabels{
		Operation: "recall",
		BankID:    bankName,
		Source:    "api",
	}, time.Since(start), err == nil)
	return hits, err
}

// Reflect answers a question from a bank's memories with the tool-calling
// loop.
//
// Inputs:
//   - ctx: Context for cancellation.
//   - bankName: The bank to reflect over. Banks without a stored profile
//     get a minimal persona built from the name alone.
//   - query: The question.
//   - maxIterations: Per-request budget override; 0 or values above the
//     configured default fall back to the default.
//
// Outputs:
//   - *reflect.Result: Answer, used memory ids, iteration count, reason.
//   - error: Non-nil on gateway failure or cancellation.
func (s *Service) Reflect(ctx context.Context, bankName, query string, maxIterations int) (*reflect.Result, error) {
	if s.store == nil {
		return nil, errStoreUnavailable
	}
	if s.gateway == nil {
		return nil, errGatewayUnavailable
	}

	profile, err := s.store.GetProfile(ctx, bankName)
	if errors.Is(err, bank.ErrNotFound) {
		profile = &bank.Profile{Name: bankName}
	} else if err != nil {
		return nil, fmt.Errorf("memory: loading profile for reflect: %w", err)
	}

	budget := s.cfg.MaxIterations
	if maxIterations > 0 && maxIterations < budget {
		budget = maxIterations
	}

	opts := []reflect.AgentOption{reflect.WithMaxIterations(budget)}
	if s.cfg.ConcurrentTools {
		opts = append(opts, reflect.WithConcurrentTools())
	}
	agent := reflect.NewAgent(s.gateway, s.store.ReflectRegistry(bankName), opts...)

	start := time.Now()
	result, err := agent.Run(ctx,
		reflect.SystemPrompt(profile.Name, profile.Mission, profile.Disposition), query)

	labels := metrics.OperationLabels{
		Operation: "reflect",
		BankID:    bankName,
		Source:    "api",
	}
	s.collector.RecordOperation(labels, time.Since(start), err == nil)
	if err != nil {
		return nil, err
	}
	s.collector.RecordTokens(labels, result.InputTokens, result.OutputTokens)

	slog.Info("Reflect run completed",
		slog.String("bank", bankName),
		slog.Int("iterations", result.Iterations),
		slog.String("finish_reason", string(result.FinishReason)),
		slog.Int("used_memories", len(result.UsedMemoryIDs)),
	)
	return result, nil
}
